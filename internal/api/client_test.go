package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gridconnect/gridconnect/internal/config"
	"github.com/gridconnect/gridconnect/internal/models"
	"github.com/gridconnect/gridconnect/internal/retry"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	t.Setenv("DISABLE_HTTP2", "true")

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		APIBaseURL:  srv.URL,
		Token:       "test-token",
		WorkspaceID: "ws1",
		ModelID:     "m1",
		ProxyMode:   "no-proxy",
	}
	client, err := NewClient(cfg, nil)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client
}

// TestNewClientRejectsEmptyBaseURL verifies that NewClient fails with a clear error
// instead of creating a client that fails every request.
func TestNewClientRejectsEmptyBaseURL(t *testing.T) {
	cfg := &config.Config{APIBaseURL: "", Token: "t", ProxyMode: "no-proxy"}

	_, err := NewClient(cfg, nil)
	if err == nil {
		t.Fatal("NewClient() should return error for empty APIBaseURL")
	}
	if !strings.Contains(err.Error(), "API base URL is empty") {
		t.Errorf("NewClient() error = %q, want error containing 'API base URL is empty'", err.Error())
	}
}

func TestRegisterFileSendsMetadata(t *testing.T) {
	var gotAuth, gotRequestID string
	var got models.ServerFile

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/2/0/workspaces/ws1/models/m1/files/113000000001" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get("X-Request-Id")
		_ = json.NewDecoder(r.Body).Decode(&got)

		normalized := got
		normalized.HeaderRow = 1
		_ = json.NewEncoder(w).Encode(models.ServerFileResponse{File: &normalized})
	}))

	file, err := client.RegisterFile(context.Background(), &models.ServerFile{
		ID: "113000000001", Name: "sales.csv", ChunkCount: 3, HeaderRow: -1,
	})
	if err != nil {
		t.Fatalf("RegisterFile() error = %v", err)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotRequestID == "" {
		t.Error("expected an X-Request-Id header")
	}
	if got.ChunkCount != 3 || got.Name != "sales.csv" {
		t.Errorf("server received %+v", got)
	}
	if file == nil || file.HeaderRow != 1 {
		t.Errorf("expected normalized descriptor, got %+v", file)
	}
}

func TestRegisterFileWithoutDescriptor(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))

	file, err := client.RegisterFile(context.Background(), &models.ServerFile{ID: "f"})
	if err != nil {
		t.Fatalf("RegisterFile() error = %v", err)
	}
	if file != nil {
		t.Errorf("expected nil descriptor, got %+v", file)
	}
}

func TestListFileChunksNumbersSlots(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2/0/workspaces/ws1/models/m1/files/f1/chunks" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"chunks":[{"id":"a","name":"Chunk 0"},{"id":"b","name":"Chunk 1"}]}`))
	}))

	slots, err := client.ListFileChunks(context.Background(), "f1")
	if err != nil {
		t.Fatalf("ListFileChunks() error = %v", err)
	}
	if len(slots) != 2 || slots[0].ID != "a" || slots[1].Ordinal != 1 {
		t.Errorf("unexpected slots %+v", slots)
	}
}

func TestUploadAndFetchChunkBytes(t *testing.T) {
	stored := map[string][]byte{}

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path
		switch r.Method {
		case http.MethodPut:
			if ct := r.Header.Get("Content-Type"); ct != "application/octet-stream" {
				t.Errorf("Content-Type = %q", ct)
			}
			data, _ := io.ReadAll(r.Body)
			stored[key] = data
			w.WriteHeader(http.StatusNoContent)
		case http.MethodGet:
			_, _ = w.Write(stored[key])
		}
	}))

	ctx := context.Background()
	if err := client.UploadChunk(ctx, "f1", "0", []byte("a,b\n1,2\n")); err != nil {
		t.Fatalf("UploadChunk() error = %v", err)
	}
	data, err := client.FetchChunk(ctx, "f1", "0")
	if err != nil {
		t.Fatalf("FetchChunk() error = %v", err)
	}
	if string(data) != "a,b\n1,2\n" {
		t.Errorf("FetchChunk() = %q", data)
	}
}

func TestAPIErrorIsNonRetryable(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"status":{"message":"File not found"}}`, http.StatusNotFound)
	}))

	_, err := client.FetchChunk(context.Background(), "missing", "0")
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsNotFound(err) {
		t.Errorf("expected not-found API error, got %v", err)
	}
	if !retry.IsNonRetryable(err) {
		t.Error("API errors must not be retried by the policy")
	}
	if !strings.Contains(err.Error(), "File not found") {
		t.Errorf("error should carry the response body, got %q", err.Error())
	}
}

func TestTaskLifecycleEndpoints(t *testing.T) {
	var paths []string

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		switch r.Method {
		case http.MethodPost:
			var params models.TaskParameters
			_ = json.NewDecoder(r.Body).Decode(&params)
			if params.LocaleName != "en_US" {
				t.Errorf("localeName = %q", params.LocaleName)
			}
			_, _ = w.Write([]byte(`{"task":{"taskId":"T1","taskState":"NOT_STARTED"}}`))
		case http.MethodGet:
			_, _ = w.Write([]byte(`{"task":{"taskId":"T1","taskState":"IN_PROGRESS","progress":0.5}}`))
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		}
	}))

	ctx := context.Background()
	taskID, err := client.CreateTask(ctx, "imports", "112000000001", models.TaskParameters{LocaleName: "en_US"})
	if err != nil || taskID != "T1" {
		t.Fatalf("CreateTask() = %q, %v", taskID, err)
	}

	status, err := client.GetTaskStatus(ctx, "imports", "112000000001", taskID)
	if err != nil {
		t.Fatalf("GetTaskStatus() error = %v", err)
	}
	if status.TaskState != models.TaskInProgress || status.Progress != 0.5 {
		t.Errorf("unexpected status %+v", status)
	}

	cancelled, err := client.CancelTask(ctx, "imports", "112000000001", taskID)
	if err != nil {
		t.Fatalf("CancelTask() error = %v", err)
	}
	if cancelled.TaskState != models.TaskCancelling {
		t.Errorf("expected CANCELLING placeholder, got %s", cancelled.TaskState)
	}

	want := []string{
		"POST /2/0/workspaces/ws1/models/m1/imports/112000000001/tasks",
		"GET /2/0/workspaces/ws1/models/m1/imports/112000000001/tasks/T1",
		"DELETE /2/0/workspaces/ws1/models/m1/imports/112000000001/tasks/T1",
	}
	if strings.Join(paths, "|") != strings.Join(want, "|") {
		t.Errorf("paths = %v, want %v", paths, want)
	}
}

func TestDumpPathsDistinguishNestedResults(t *testing.T) {
	var paths []string

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if strings.HasSuffix(r.URL.Path, "/chunks") {
			_, _ = w.Write([]byte(`{"chunks":[{"id":"0"}]}`))
			return
		}
		_, _ = w.Write([]byte("dump"))
	}))

	ctx := context.Background()
	if _, err := client.ListDumpChunks(ctx, "processes", "P1", "T1", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := client.ListDumpChunks(ctx, "processes", "P1", "T1", "I9"); err != nil {
		t.Fatal(err)
	}
	if _, err := client.FetchDumpChunk(ctx, "processes", "P1", "T1", "I9", "0"); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"/2/0/workspaces/ws1/models/m1/processes/P1/tasks/T1/dump/chunks",
		"/2/0/workspaces/ws1/models/m1/processes/P1/tasks/T1/dumps/I9/chunks",
		"/2/0/workspaces/ws1/models/m1/processes/P1/tasks/T1/dumps/I9/chunks/0",
	}
	for i := range want {
		if i >= len(paths) || paths[i] != want[i] {
			t.Errorf("request %d = %v, want %s", i, paths, want[i])
		}
	}
}

func TestPolicyBackoff(t *testing.T) {
	p := retry.Policy{MaxRetries: 3, Base: time.Second, Multiplier: 2, Cap: 5 * time.Second}
	backoff := PolicyBackoff(p)

	if d := backoff(0, 0, 0, nil); d != time.Second {
		t.Errorf("attempt 0 = %v, want 1s", d)
	}
	if d := backoff(0, 0, 5, nil); d != 5*time.Second {
		t.Errorf("attempt 5 = %v, want cap 5s", d)
	}

	throttled := &http.Response{StatusCode: http.StatusTooManyRequests, Header: http.Header{"Retry-After": []string{"7"}}}
	if d := backoff(time.Second, time.Minute, 0, throttled); d != 7*time.Second {
		t.Errorf("Retry-After should win, got %v", d)
	}
}
