// Package chunk finds row boundaries so that fixed-size chunks of a tabular file
// never split a record.
package chunk

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
)

// ErrConfiguration marks problems with file metadata that make a transfer impossible
// before any network call is made.
var ErrConfiguration = errors.New("configuration error")

// knownSeparators are split off one at a time from the front of a separator string.
const knownSeparators = "\t,;"

// DecomposeSeparator splits a separator string into the separators it contains.
// Leading tab, comma and semicolon characters become one entry each, in the order
// found. Whatever follows the first other character is kept whole as a final token.
//
//	"\t"      -> ["\t"]
//	",;aaa"   -> [",", ";", "aaa"]
//	"aaa\t,;" -> ["aaa\t,;"]
func DecomposeSeparator(sep string) ([]string, error) {
	if sep == "" {
		return nil, fmt.Errorf("%w: separator is empty", ErrConfiguration)
	}

	var tokens []string
	rest := sep
	for rest != "" && strings.IndexByte(knownSeparators, rest[0]) >= 0 {
		tokens = append(tokens, rest[:1])
		rest = rest[1:]
	}
	if rest != "" {
		tokens = append(tokens, rest)
	}
	return tokens, nil
}

// Separator is a record separator encoded in the charset of the file it delimits.
type Separator struct {
	Bytes []byte
	// Width is the code unit size of the encoding. Boundaries are only accepted at
	// offsets that are a multiple of it.
	Width int
}

// NewSeparator validates sep for a row-aligned transfer and encodes it.
// Exactly one separator is supported; a string that decomposes into several
// is rejected rather than guessing which one delimits rows.
func NewSeparator(sep, encoding string) (Separator, error) {
	tokens, err := DecomposeSeparator(sep)
	if err != nil {
		return Separator{}, err
	}
	if len(tokens) != 1 {
		return Separator{}, fmt.Errorf("%w: separator %q is ambiguous, it contains %d separators (%q)",
			ErrConfiguration, sep, len(tokens), tokens)
	}

	encoded, err := EncodeSeparator(tokens[0], encoding)
	if err != nil {
		return Separator{}, err
	}
	return Separator{Bytes: encoded, Width: EncodingOffset(encoding)}, nil
}

// SplitOffset returns the offset just past the last separator in buf, or -1.
func (s Separator) SplitOffset(buf []byte) int {
	return FindSplitOffset(buf, s.Bytes, s.Width)
}

// EncodeSeparator renders sep in the named charset. An empty encoding means UTF-8.
func EncodeSeparator(sep, encoding string) ([]byte, error) {
	if isUTF8(encoding) {
		return []byte(sep), nil
	}

	enc, err := htmlindex.Get(encoding)
	if err != nil {
		return nil, fmt.Errorf("%w: unsupported encoding %q", ErrConfiguration, encoding)
	}
	out, err := enc.NewEncoder().Bytes([]byte(sep))
	if err != nil {
		return nil, fmt.Errorf("%w: separator %q cannot be encoded as %s: %v", ErrConfiguration, sep, encoding, err)
	}
	return out, nil
}

// EncodingOffset returns the code unit width of encoding: 2 for UTF-16, 1 otherwise.
func EncodingOffset(encoding string) int {
	if isUTF8(encoding) {
		return 1
	}
	enc, err := htmlindex.Get(encoding)
	if err != nil {
		return 1
	}
	name, err := htmlindex.Name(enc)
	if err != nil {
		return 1
	}
	if name == "utf-16le" || name == "utf-16be" {
		return 2
	}
	return 1
}

func isUTF8(encoding string) bool {
	e := strings.ToLower(strings.TrimSpace(encoding))
	return e == "" || e == "utf-8" || e == "utf8"
}
