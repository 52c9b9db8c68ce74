// Package chunkup provides adaptive chunked uploads against the NAS file
// management API: it probes network conditions, plans chunk size and
// concurrency, transfers files chunk by chunk with live progress, and
// tracks server-side video transcoding to completion.
//
// The library is organized into several modules for better maintainability:
//   - client.go: HTTP client for the upload API boundary
//   - types.go: Type definitions, constants, and the task data model
//   - config.go: Configuration knobs and the tunable planning policy
//   - probe.go: Network measurement and classification
//   - planner.go: Chunk size catalog and upload planning
//   - session.go: Chunked transfer of one file with bounded concurrency
//   - batch.go: Task queue coordination and lifecycle management
//   - tracker.go: Polling of asynchronous transcode jobs
//   - buffer_pool.go: Memory-efficient buffer management
//   - file.go: File source adapters
//   - utils.go: Helper functions and utilities
//
// Basic usage:
//
//	client := chunkup.NewClient("http://nas.local:8001", token)
//	probe := chunkup.NewNetworkProbe(client, chunkup.DefaultTuning(), logger)
//	planner := chunkup.NewChunkPlanner(chunkup.DefaultTuning())
//	batch := chunkup.NewBatch(client, probe, planner, chunkup.DefaultConfig())
//
//	f, _ := chunkup.OpenLocalFile("/path/to/movie.mkv")
//	batch.AddFiles(f)
//	if err := batch.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
package chunkup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const clientUserAgent = "chunkup/1.0"

// Client is the typed HTTP client for the upload API. It is the only
// place that knows URLs, authentication and wire shapes; probe, session
// and tracker all speak to the backend through it. Safe for concurrent
// use.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a client for the upload API.
//
// Parameters:
//   - baseURL: root of the API host (e.g., "http://nas.local:8001")
//   - token: bearer token attached to every request, may be empty
//
// The client carries no global timeout; callers bound every call with a
// context deadline instead, since chunk uploads on slow links can
// legitimately run for minutes.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   100,
				MaxConnsPerHost:       100,
				IdleConnTimeout:       90 * time.Second,
				DisableCompression:    true, // chunk payloads are opaque bytes
				ForceAttemptHTTP2:     true,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
				ResponseHeaderTimeout: 30 * time.Second,
				ReadBufferSize:        32 * 1024,
				WriteBufferSize:       32 * 1024,
			},
		},
	}
}

// BaseURL returns the API root this client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Close releases idle connections held by the client.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", clientUserAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// apiError converts a non-success response into an *UploadError carrying
// the backend's message. Both {"error": ...} and {"detail": ...} body
// conventions are understood.
func apiError(op, filename string, resp *http.Response) error {
	var body struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	msg := ""
	if raw, err := io.ReadAll(io.LimitReader(resp.Body, 8*1024)); err == nil {
		if jerr := json.Unmarshal(raw, &body); jerr == nil {
			if body.Error != "" {
				msg = body.Error
			} else if body.Detail != "" {
				msg = body.Detail
			}
		}
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &UploadError{Op: op, Filename: filename, Status: resp.StatusCode, Err: errors.New(msg)}
}

// Ping measures round-trip latency to the backend in milliseconds.
func (c *Client) Ping(ctx context.Context) (float64, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/network/ping/", nil)
	if err != nil {
		return 0, err
	}
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("ping: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return 0, apiError("ping", "", resp)
	}
	return float64(time.Since(start)) / float64(time.Millisecond), nil
}

// ProbeDownload fetches size opaque bytes from the backend and returns
// the measured download throughput in Mbps.
func (c *Client) ProbeDownload(ctx context.Context, size int64) (float64, error) {
	path := "/api/network/probe/download/?bytes=" + strconv.FormatInt(size, 10)
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return 0, err
	}
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("probe download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return 0, apiError("probe download", "", resp)
	}
	n, err := io.Copy(io.Discard, resp.Body)
	if err != nil {
		return 0, fmt.Errorf("probe download read: %w", err)
	}
	return throughputMbps(n, time.Since(start)), nil
}

// ProbeUpload posts the payload to the backend and returns the measured
// upload throughput in Mbps. Timing is client-side round trip, matching
// what a chunk transmission experiences.
func (c *Client) ProbeUpload(ctx context.Context, payload []byte) (float64, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/api/network/probe/upload/", bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("probe upload: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return 0, apiError("probe upload", "", resp)
	}
	return throughputMbps(int64(len(payload)), time.Since(start)), nil
}

func throughputMbps(transferred int64, elapsed time.Duration) float64 {
	secs := elapsed.Seconds()
	if secs <= 0 || transferred <= 0 {
		return 0
	}
	return float64(transferred) * 8 / secs / 1e6
}

// ChunkRequest describes one chunk transmission.
type ChunkRequest struct {
	Filename      string
	ContentType   string // media type of the whole file, may be empty
	ChunkNumber   int    // 0-based
	TotalChunks   int
	TotalSize     int64
	ProjectID     string
	FolderID      string
	ChunkSizeName ChunkSizeName
	Data          []byte
}

// ChunkResponse is the backend acknowledgment for one chunk.
type ChunkResponse struct {
	Status         string `json:"status"` // "success", or "ready_to_merge" on the closing chunk
	Message        string `json:"message"`
	ChunkID        string `json:"chunk_id"`
	ChunksReceived int    `json:"chunks_received"`
	TotalChunks    int    `json:"total_chunks"`
	BytesWritten   int64  `json:"bytes_written"`
}

// UploadChunk transmits one chunk as a multipart form.
func (c *Client) UploadChunk(ctx context.Context, chunk ChunkRequest) (*ChunkResponse, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := newFilePart(w, chunk.Filename, chunk.ContentType)
	if err != nil {
		return nil, fmt.Errorf("chunk form: %w", err)
	}
	if _, err := part.Write(chunk.Data); err != nil {
		return nil, fmt.Errorf("chunk form write: %w", err)
	}
	fields := map[string]string{
		"filename":        chunk.Filename,
		"chunk_number":    strconv.Itoa(chunk.ChunkNumber),
		"total_chunks":    strconv.Itoa(chunk.TotalChunks),
		"total_size":      strconv.FormatInt(chunk.TotalSize, 10),
		"chunk_size_name": string(chunk.ChunkSizeName),
	}
	if chunk.ProjectID != "" {
		fields["project_id"] = chunk.ProjectID
	}
	if chunk.FolderID != "" {
		fields["folder_id"] = chunk.FolderID
	}
	for name, value := range fields {
		if err := w.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("chunk form field %s: %w", name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("chunk form close: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/upload/chunk/", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UploadError{Op: "chunk upload", Filename: chunk.Filename, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, apiError("chunk upload", chunk.Filename, resp)
	}
	var out ChunkResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("chunk response: %w", err)
	}
	return &out, nil
}

// newFilePart creates the binary form part with an explicit content type;
// CreateFormFile would pin it to application/octet-stream.
func newFilePart(w *multipart.Writer, filename, contentType string) (io.Writer, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, strings.ReplaceAll(filename, `"`, `\"`)))
	h.Set("Content-Type", contentType)
	return w.CreatePart(h)
}

// CompleteRequest asks the backend to merge all received chunks of a file.
type CompleteRequest struct {
	Filename  string `json:"filename"`
	ProjectID string `json:"project_id,omitempty"`
	FolderID  string `json:"folder_id,omitempty"`
}

// CompleteResponse is the finalize result. IsVideo and ProcessingStatus
// are the authoritative decision on whether transcoding follows.
type CompleteResponse struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Size             int64  `json:"size"`
	ContentType      string `json:"content_type"`
	IsVideo          bool   `json:"is_video"`
	ProcessingStatus string `json:"processing_status"`
	Message          string `json:"message"`
}

// CompleteUpload finalizes a fully transmitted file.
func (c *Client) CompleteUpload(ctx context.Context, complete CompleteRequest) (*CompleteResponse, error) {
	body, err := json.Marshal(complete)
	if err != nil {
		return nil, fmt.Errorf("complete request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/api/upload/complete/", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UploadError{Op: "finalize", Filename: complete.Filename, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, apiError("finalize", complete.Filename, resp)
	}
	var out CompleteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("finalize response: %w", err)
	}
	return &out, nil
}

// UploadStatusResponse reports the backend's chunk inventory for a file.
type UploadStatusResponse struct {
	Status          string  `json:"status"`
	ChunksReceived  int     `json:"chunks_received"`
	TotalChunks     int     `json:"total_chunks"`
	ProgressPercent float64 `json:"progress_percent"`
}

// UploadStatus returns how many chunks the backend has registered for the
// filename. Diagnostic; the session's own acknowledgment count drives
// progress.
func (c *Client) UploadStatus(ctx context.Context, filename string) (*UploadStatusResponse, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/upload/status/"+url.PathEscape(filename), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UploadError{Op: "upload status", Filename: filename, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, apiError("upload status", filename, resp)
	}
	var out UploadStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("upload status response: %w", err)
	}
	return &out, nil
}

// CancelUpload removes all chunks the backend holds for the filename.
// Used to leave a clean slate after an aborted or failed transfer.
func (c *Client) CancelUpload(ctx context.Context, filename string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/api/upload/cancel/"+url.PathEscape(filename), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &UploadError{Op: "cancel upload", Filename: filename, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return apiError("cancel upload", filename, resp)
	}
	return nil
}

// ProcessingStatusResponse reports the state of a transcode job.
type ProcessingStatusResponse struct {
	Processing bool   `json:"processing"`
	Message    string `json:"message,omitempty"`
}

// ProcessingStatus polls the transcode state of a finalized file.
func (c *Client) ProcessingStatus(ctx context.Context, fileID string) (*ProcessingStatusResponse, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/upload/processing-status/"+url.PathEscape(fileID)+"/", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UploadError{Op: "processing status", Filename: fileID, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, apiError("processing status", fileID, resp)
	}
	var out ProcessingStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("processing status response: %w", err)
	}
	return &out, nil
}

// ChunkSizeCatalog fetches the backend's copy of the chunk preset
// catalog. Planning always uses the static client-side catalog; this
// call exists so UIs can render server-declared descriptions.
func (c *Client) ChunkSizeCatalog(ctx context.Context) (map[ChunkSizeName]ChunkSizeOption, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/upload/chunk-options/", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UploadError{Op: "chunk options", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, apiError("chunk options", "", resp)
	}
	var out map[ChunkSizeName]ChunkSizeOption
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("chunk options response: %w", err)
	}
	for name, opt := range out {
		opt.Name = name
		out[name] = opt
	}
	return out, nil
}
