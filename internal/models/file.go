package models

import "strconv"

// ChunkCountAuto tells the server to count chunks itself once a streamed upload is finalized.
const ChunkCountAuto = -1

// RowUnset marks a header or first data row the caller left to the platform default.
// Header row 0 is meaningful: the file has no column-name row.
const RowUnset = -1

// ServerFile describes a tabular file held by the platform and its format metadata.
// The server may normalize fields in its registration response (e.g. header row -1 to 1).
type ServerFile struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Format       string `json:"format,omitempty"`
	Encoding     string `json:"encoding,omitempty"`
	Separator    string `json:"separator,omitempty"` // record separator, 1+ characters
	Delimiter    string `json:"delimiter,omitempty"` // text delimiter
	HeaderRow    int    `json:"headerRow"`           // 0 = no header, RowUnset = default
	FirstDataRow int    `json:"firstDataRow"`        // RowUnset = row after the header
	ChunkCount   int    `json:"chunkCount"`
}

// ApplyDefaults fills unset format metadata with the platform defaults used when a
// streamed upload is finalized.
func (f *ServerFile) ApplyDefaults() {
	if f.Format == "" {
		f.Format = "txt"
	}
	if f.Encoding == "" {
		f.Encoding = "UTF-8"
	}
	if f.Delimiter == "" {
		f.Delimiter = `"`
	}
	if f.HeaderRow < 0 {
		f.HeaderRow = 1
	}
	if f.FirstDataRow <= 0 {
		f.FirstDataRow = f.HeaderRow + 1
	}
}

// ServerFileResponse wraps a file descriptor returned by registration and completion calls.
type ServerFileResponse struct {
	File *ServerFile `json:"file"`
}

// ChunkSlot is one pre-allocated byte range of a server file.
type ChunkSlot struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	Ordinal int    `json:"-"`
}

// ChunkListResponse is the body of a chunk listing call.
type ChunkListResponse struct {
	Chunks []ChunkSlot `json:"chunks"`
}

// OrdinalSlots returns count slots addressed by their position, "0" through "count-1".
// Used when the server has not issued slot ids yet.
func OrdinalSlots(count int) []ChunkSlot {
	slots := make([]ChunkSlot, count)
	for i := range slots {
		slots[i] = ChunkSlot{ID: strconv.Itoa(i), Ordinal: i}
	}
	return slots
}

// NumberSlots assigns ordinals to slots in the order the server returned them.
func NumberSlots(slots []ChunkSlot) []ChunkSlot {
	for i := range slots {
		slots[i].Ordinal = i
	}
	return slots
}
