package chunkup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewClient(t *testing.T) {
	c := NewClient("http://example.com/", "secret")
	if c.baseURL != "http://example.com" {
		t.Errorf("expected trailing slash trimmed, got %q", c.baseURL)
	}
	if c.token != "secret" {
		t.Errorf("expected token 'secret', got %q", c.token)
	}
	if c.BaseURL() != "http://example.com" {
		t.Errorf("expected BaseURL 'http://example.com', got %q", c.BaseURL())
	}
}

func TestRequestHeaders(t *testing.T) {
	var gotAuth, gotAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAgent = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "token-123")
	if _, err := c.Ping(context.Background()); err != nil {
		t.Fatalf("ping error: %v", err)
	}
	if gotAuth != "Bearer token-123" {
		t.Errorf("expected bearer auth header, got %q", gotAuth)
	}
	if gotAgent != clientUserAgent {
		t.Errorf("expected user agent %q, got %q", clientUserAgent, gotAgent)
	}
}

func TestRequestHeadersNoToken(t *testing.T) {
	var gotAuth string
	hasAuth := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, hasAuth = r.Header["Authorization"]
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	if _, err := c.Ping(context.Background()); err != nil {
		t.Fatalf("ping error: %v", err)
	}
	if hasAuth {
		t.Errorf("expected no auth header for empty token, got %q", gotAuth)
	}
}

func TestPing(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, `{"status":"ok"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	latency, err := c.Ping(context.Background())
	if err != nil {
		t.Fatalf("ping error: %v", err)
	}
	if gotPath != "/api/network/ping/" {
		t.Errorf("expected ping path, got %q", gotPath)
	}
	if latency <= 0 {
		t.Errorf("expected positive latency, got %f", latency)
	}
}

func TestProbeDownload(t *testing.T) {
	var gotBytes string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBytes = r.URL.Query().Get("bytes")
		_, _ = w.Write(make([]byte, 64*1024))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	mbps, err := c.ProbeDownload(context.Background(), 64*1024)
	if err != nil {
		t.Fatalf("probe download error: %v", err)
	}
	if gotBytes != "65536" {
		t.Errorf("expected bytes=65536, got %q", gotBytes)
	}
	if mbps <= 0 {
		t.Errorf("expected positive throughput, got %f", mbps)
	}
}

func TestProbeUpload(t *testing.T) {
	var received int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received, _ = io.Copy(io.Discard, r.Body)
		fmt.Fprint(w, `{"received_bytes":1024}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	payload := make([]byte, 1024)
	mbps, err := c.ProbeUpload(context.Background(), payload)
	if err != nil {
		t.Fatalf("probe upload error: %v", err)
	}
	if received != 1024 {
		t.Errorf("expected server to receive 1024 bytes, got %d", received)
	}
	if mbps <= 0 {
		t.Errorf("expected positive throughput, got %f", mbps)
	}
}

func TestUploadChunk(t *testing.T) {
	type capture struct {
		fields      map[string]string
		fileContent []byte
		fileCT      string
		fileName    string
	}
	var got capture
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/upload/chunk/" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			return
		}
		got.fields = map[string]string{}
		for name, vals := range r.MultipartForm.Value {
			got.fields[name] = vals[0]
		}
		fh := r.MultipartForm.File["file"][0]
		got.fileCT = fh.Header.Get("Content-Type")
		got.fileName = fh.Filename
		f, _ := fh.Open()
		got.fileContent, _ = io.ReadAll(f)
		f.Close()
		fmt.Fprint(w, `{"status":"ready_to_merge","message":"all chunks received","chunk_id":"c-9","chunks_received":3,"total_chunks":3,"bytes_written":5}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	resp, err := c.UploadChunk(context.Background(), ChunkRequest{
		Filename:      "movie.mp4",
		ContentType:   "video/mp4",
		ChunkNumber:   2,
		TotalChunks:   3,
		TotalSize:     25,
		ChunkSizeName: ChunkMedium,
		Data:          []byte("hello"),
	})
	if err != nil {
		t.Fatalf("upload chunk error: %v", err)
	}

	want := map[string]string{
		"filename":        "movie.mp4",
		"chunk_number":    "2",
		"total_chunks":    "3",
		"total_size":      "25",
		"chunk_size_name": "medium",
	}
	for name, val := range want {
		if got.fields[name] != val {
			t.Errorf("field %s = %q, expected %q", name, got.fields[name], val)
		}
	}
	if _, ok := got.fields["project_id"]; ok {
		t.Error("expected project_id to be omitted when empty")
	}
	if _, ok := got.fields["folder_id"]; ok {
		t.Error("expected folder_id to be omitted when empty")
	}
	if string(got.fileContent) != "hello" {
		t.Errorf("expected file content 'hello', got %q", got.fileContent)
	}
	if got.fileCT != "video/mp4" {
		t.Errorf("expected file part content type video/mp4, got %q", got.fileCT)
	}
	if got.fileName != "movie.mp4" {
		t.Errorf("expected file part name movie.mp4, got %q", got.fileName)
	}
	if resp.Status != "ready_to_merge" {
		t.Errorf("expected status ready_to_merge, got %q", resp.Status)
	}
	if resp.ChunksReceived != 3 || resp.TotalChunks != 3 {
		t.Errorf("unexpected chunk counts: %+v", resp)
	}
	if resp.BytesWritten != 5 {
		t.Errorf("expected 5 bytes written, got %d", resp.BytesWritten)
	}
}

func TestUploadChunkScoping(t *testing.T) {
	var fields map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseMultipartForm(32 << 20)
		fields = map[string]string{}
		for name, vals := range r.MultipartForm.Value {
			fields[name] = vals[0]
		}
		fmt.Fprint(w, `{"status":"success"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	_, err := c.UploadChunk(context.Background(), ChunkRequest{
		Filename:    "doc.pdf",
		ChunkNumber: 0,
		TotalChunks: 1,
		TotalSize:   3,
		ProjectID:   "p-1",
		FolderID:    "f-2",
		Data:        []byte("abc"),
	})
	if err != nil {
		t.Fatalf("upload chunk error: %v", err)
	}
	if fields["project_id"] != "p-1" {
		t.Errorf("expected project_id p-1, got %q", fields["project_id"])
	}
	if fields["folder_id"] != "f-2" {
		t.Errorf("expected folder_id f-2, got %q", fields["folder_id"])
	}
}

func TestUploadChunkDefaultContentType(t *testing.T) {
	var fileCT string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseMultipartForm(32 << 20)
		fileCT = r.MultipartForm.File["file"][0].Header.Get("Content-Type")
		fmt.Fprint(w, `{"status":"success"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	_, err := c.UploadChunk(context.Background(), ChunkRequest{
		Filename:    "blob.bin",
		ChunkNumber: 0,
		TotalChunks: 1,
		TotalSize:   1,
		Data:        []byte{0},
	})
	if err != nil {
		t.Fatalf("upload chunk error: %v", err)
	}
	if fileCT != "application/octet-stream" {
		t.Errorf("expected octet-stream fallback, got %q", fileCT)
	}
}

func TestUploadChunkServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInsufficientStorage)
		fmt.Fprint(w, `{"error":"disk full"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	_, err := c.UploadChunk(context.Background(), ChunkRequest{
		Filename:    "movie.mp4",
		ChunkNumber: 0,
		TotalChunks: 2,
		TotalSize:   10,
		Data:        []byte("12345"),
	})
	if err == nil {
		t.Fatal("expected error from 507 response")
	}
	var uploadErr *UploadError
	if !errors.As(err, &uploadErr) {
		t.Fatalf("expected *UploadError, got %T", err)
	}
	if uploadErr.Status != http.StatusInsufficientStorage {
		t.Errorf("expected status 507, got %d", uploadErr.Status)
	}
	if uploadErr.Filename != "movie.mp4" {
		t.Errorf("expected filename on error, got %q", uploadErr.Filename)
	}
	if !strings.Contains(err.Error(), "disk full") {
		t.Errorf("expected backend message in error, got %q", err.Error())
	}
}

func TestCompleteUpload(t *testing.T) {
	var rawBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/upload/complete/" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		rawBody, _ = io.ReadAll(r.Body)
		fmt.Fprint(w, `{"id":"f-7","name":"movie.mp4","size":25,"content_type":"video/mp4","is_video":true,"processing_status":"processing","message":"merged"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	resp, err := c.CompleteUpload(context.Background(), CompleteRequest{Filename: "movie.mp4"})
	if err != nil {
		t.Fatalf("complete error: %v", err)
	}
	var sent map[string]any
	if err := json.Unmarshal(rawBody, &sent); err != nil {
		t.Fatalf("request body not json: %v", err)
	}
	if sent["filename"] != "movie.mp4" {
		t.Errorf("expected filename in body, got %v", sent["filename"])
	}
	if _, ok := sent["project_id"]; ok {
		t.Error("expected empty project_id omitted from body")
	}
	if resp.ID != "f-7" {
		t.Errorf("expected file id f-7, got %q", resp.ID)
	}
	if !resp.IsVideo || resp.ProcessingStatus != "processing" {
		t.Errorf("unexpected video flags: %+v", resp)
	}
}

func TestUploadStatus(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, `{"status":"in_progress","chunks_received":4,"total_chunks":10,"progress_percent":40}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	resp, err := c.UploadStatus(context.Background(), "my movie.mp4")
	if err != nil {
		t.Fatalf("status error: %v", err)
	}
	if gotPath != "/api/upload/status/my movie.mp4" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if resp.ChunksReceived != 4 || resp.TotalChunks != 10 {
		t.Errorf("unexpected counts: %+v", resp)
	}
	if resp.ProgressPercent != 40 {
		t.Errorf("expected 40 percent, got %f", resp.ProgressPercent)
	}
}

func TestCancelUpload(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		fmt.Fprint(w, `{"message":"Upload cancelled"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	if err := c.CancelUpload(context.Background(), "movie.mp4"); err != nil {
		t.Fatalf("cancel error: %v", err)
	}
	if gotMethod != http.MethodDelete {
		t.Errorf("expected DELETE, got %s", gotMethod)
	}
	if gotPath != "/api/upload/cancel/movie.mp4" {
		t.Errorf("unexpected path %q", gotPath)
	}
}

func TestProcessingStatus(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, `{"processing":false,"message":"Processing complete"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	resp, err := c.ProcessingStatus(context.Background(), "f-7")
	if err != nil {
		t.Fatalf("processing status error: %v", err)
	}
	if gotPath != "/api/upload/processing-status/f-7/" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if resp.Processing {
		t.Error("expected processing false")
	}
	if resp.Message != "Processing complete" {
		t.Errorf("unexpected message %q", resp.Message)
	}
}

func TestChunkSizeCatalog(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/upload/chunk-options/" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		fmt.Fprint(w, `{"small":{"size_bytes":5242880,"size_mb":5,"description":"Stable"},"jumbo":{"size_bytes":104857600,"size_mb":100,"description":"Max speed"}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	catalog, err := c.ChunkSizeCatalog(context.Background())
	if err != nil {
		t.Fatalf("catalog error: %v", err)
	}
	if len(catalog) != 2 {
		t.Fatalf("expected 2 options, got %d", len(catalog))
	}
	small, ok := catalog[ChunkSmall]
	if !ok {
		t.Fatal("expected small option present")
	}
	if small.Name != ChunkSmall {
		t.Errorf("expected Name filled from key, got %q", small.Name)
	}
	if small.SizeBytes != 5*1024*1024 {
		t.Errorf("expected 5MiB, got %d", small.SizeBytes)
	}
}

func TestAPIErrorShapes(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"error key", http.StatusBadRequest, `{"error":"upload incomplete"}`, "upload incomplete"},
		{"detail key", http.StatusNotFound, `{"detail":"No chunks found"}`, "No chunks found"},
		{"garbage body", http.StatusBadGateway, `<html>oops</html>`, "Bad Gateway"},
		{"empty body", http.StatusForbidden, ``, "Forbidden"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(test.status)
				fmt.Fprint(w, test.body)
			}))
			defer srv.Close()

			c := NewClient(srv.URL, "")
			_, err := c.Ping(context.Background())
			if err == nil {
				t.Fatal("expected error")
			}
			var uploadErr *UploadError
			if !errors.As(err, &uploadErr) {
				t.Fatalf("expected *UploadError, got %T", err)
			}
			if uploadErr.Status != test.status {
				t.Errorf("expected status %d, got %d", test.status, uploadErr.Status)
			}
			if !strings.Contains(uploadErr.Error(), test.message) {
				t.Errorf("expected message %q in %q", test.message, uploadErr.Error())
			}
		})
	}
}

func TestUploadErrorFormat(t *testing.T) {
	baseErr := fmt.Errorf("network timeout")

	err1 := &UploadError{Op: "chunk upload", Filename: "movie.mp4", Err: baseErr}
	expected1 := "chunk upload movie.mp4: network timeout"
	if err1.Error() != expected1 {
		t.Errorf("expected %q, got %q", expected1, err1.Error())
	}

	err2 := &UploadError{Op: "finalize", Filename: "movie.mp4", Status: 500, Err: baseErr}
	expected2 := "finalize movie.mp4: network timeout (status 500)"
	if err2.Error() != expected2 {
		t.Errorf("expected %q, got %q", expected2, err2.Error())
	}

	if err2.Unwrap() != baseErr {
		t.Error("Unwrap() should return the original error")
	}
}

func TestContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient(srv.URL, "")
	_, err := c.Ping(ctx)
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestUploadEvents(t *testing.T) {
	events := []UploadEvent{
		EventPlanReady,
		EventUploadStarted,
		EventChunkUploaded,
		EventChunksComplete,
		EventFinalizeStarted,
		EventFinalizeComplete,
		EventUploadComplete,
		EventUploadFailed,
		EventProcessingStarted,
		EventProcessingComplete,
		EventProcessingStalled,
	}

	expectedEvents := []string{
		"plan_ready",
		"upload_started",
		"chunk_uploaded",
		"chunks_complete",
		"finalize_started",
		"finalize_complete",
		"upload_complete",
		"upload_failed",
		"processing_started",
		"processing_complete",
		"processing_stalled",
	}

	for i, event := range events {
		if string(event) != expectedEvents[i] {
			t.Errorf("expected event %s, got %s", expectedEvents[i], string(event))
		}
	}
}

func TestBufferPool(t *testing.T) {
	chunkSize := int64(1024)
	pool := NewBufferPool(chunkSize, 2)

	if pool.Size() != chunkSize {
		t.Errorf("expected pool size %d, got %d", chunkSize, pool.Size())
	}

	// Test getting a buffer
	buf1 := pool.Get()
	if int64(len(buf1)) != chunkSize {
		t.Errorf("expected buffer size %d, got %d", chunkSize, len(buf1))
	}

	// Test putting buffer back
	pool.Put(buf1)

	// Test getting buffer again (should be reused)
	buf2 := pool.Get()
	if int64(len(buf2)) != chunkSize {
		t.Errorf("expected buffer size %d, got %d", chunkSize, len(buf2))
	}

	// Test wrong size buffer is not pooled
	wrongSizeBuf := make([]byte, 512)
	pool.Put(wrongSizeBuf)
}
