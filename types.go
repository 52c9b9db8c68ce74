// Package chunkup - Type definitions and data model
//
// This file contains the core type definitions used throughout the chunkup
// library: network classification, the chunk size catalog, upload plans,
// task state, progress tracking and event handling.
package chunkup

import (
	"io"
	"time"
)

// NetworkClass is the qualitative classification of the current network.
type NetworkClass string

const (
	NetworkExcellent NetworkClass = "excellent"
	NetworkStrong    NetworkClass = "strong"
	NetworkMedium    NetworkClass = "medium"
	NetworkWeak      NetworkClass = "weak"
)

// NetworkCondition is a point-in-time measurement of the network between
// the client and the backend. Produced fresh by every probe and never
// mutated afterwards.
type NetworkCondition struct {
	DownloadMbps   float64      // Measured download throughput in megabits per second
	UploadMbps     float64      // Measured upload throughput in megabits per second
	LatencyMs      float64      // Round-trip latency of a minimal request in milliseconds
	Classification NetworkClass // Derived class used by the planner
}

// ChunkSizeName identifies one entry of the chunk size catalog.
type ChunkSizeName string

const (
	ChunkSmall  ChunkSizeName = "small"  // 5 MiB
	ChunkMedium ChunkSizeName = "medium" // 10 MiB
	ChunkLarge  ChunkSizeName = "large"  // 25 MiB
	ChunkXLarge ChunkSizeName = "xlarge" // 50 MiB
	ChunkJumbo  ChunkSizeName = "jumbo"  // 100 MiB, the backend's native merge size
)

// ChunkSizeOption describes one preset of the static chunk size catalog.
type ChunkSizeOption struct {
	Name        ChunkSizeName `json:"name"`
	SizeBytes   int64         `json:"size_bytes"`
	SizeMB      int           `json:"size_mb"`
	Description string        `json:"description"`
	Pros        []string      `json:"pros"`
	Cons        []string      `json:"cons"`
}

// Resumability is an informational rating of how cheaply an interrupted
// transfer could in principle be resumed with the chosen chunk size.
// Exactly one field is true.
type Resumability struct {
	Excellent bool `json:"excellent"`
	Good      bool `json:"good"`
	Limited   bool `json:"limited"`
}

// UploadConfig is the planner's decision for one file under one network
// condition: which chunk size to use, how many chunks that yields and how
// many of them may be in flight at once.
//
// Invariant: TotalChunks == ceil(fileSize/ChunkSizeBytes) and
// ChunkSizeBytes > 0.
type UploadConfig struct {
	ChunkSizeName          ChunkSizeName
	ChunkSizeBytes         int64
	TotalChunks            int
	ConcurrentChunks       int
	EstimatedUploadMinutes float64
	Resumability           Resumability
}

// TaskStatus is the lifecycle state of an UploadTask.
//
// Transitions: pending -> uploading -> (processing | completed) | error,
// with error reachable from uploading and from finalize. A task never
// leaves completed or error.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskUploading  TaskStatus = "uploading"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskError      TaskStatus = "error"
)

// UploadTask is the per-file record owned by a Batch. One task is created
// per added file and lives until it is removed or the batch is torn down.
// Methods on Batch return copies; the canonical task is mutated only by
// the batch and the session driving it.
type UploadTask struct {
	ID                string     // Generated identifier, unique within the batch
	Filename          string     // Original filename sent to the backend
	Size              int64      // Total file size in bytes
	ContentType       string     // Declared media type, may be empty
	IsVideo           bool       // Client-side hint; the finalize response is authoritative
	Status            TaskStatus // Current lifecycle state
	Progress          float64    // Upload progress percentage (0.0 to 100.0)
	AckedChunks       int        // Chunks acknowledged by the backend so far
	TotalChunks       int        // Chunk count resolved at plan time, 0 until planned
	ErrorMessage      string     // Captured failure message when Status is error
	FileID            string     // Server-side file identifier from the finalize response
	ProcessingStatus  string     // Raw processing state from the finalize response
	ProcessingMessage string     // Last message from the processing tracker
	CreatedAt         time.Time
	UpdatedAt         time.Time

	file File
}

// File is the minimal read surface the uploader needs. ReadAt allows
// several chunks of the same file to be read concurrently.
type File interface {
	io.ReaderAt
	Name() string
	Size() int64
	ContentType() string
}

// UploadEvent represents different stages of the upload lifecycle
type UploadEvent string

const (
	EventUploadStarted      UploadEvent = "upload_started"      // Task moved to uploading
	EventChunkUploaded      UploadEvent = "chunk_uploaded"      // One chunk acknowledged
	EventChunksComplete     UploadEvent = "chunks_complete"     // All chunks acknowledged, before finalize
	EventFinalizeStarted    UploadEvent = "finalize_started"    // Finalize request issued
	EventFinalizeComplete   UploadEvent = "finalize_complete"   // Backend merged the file
	EventUploadComplete     UploadEvent = "upload_complete"     // Task reached completed
	EventUploadFailed       UploadEvent = "upload_failed"       // Task reached error
	EventProcessingStarted  UploadEvent = "processing_started"  // Video transcode running server-side
	EventProcessingComplete UploadEvent = "processing_complete" // Transcode finished, task completed
	EventProcessingStalled  UploadEvent = "processing_stalled"  // Poll failed, tracker stopped
	EventPlanReady          UploadEvent = "plan_ready"          // Large batch planned, summary attached
)

// EventInfo contains information about upload lifecycle events
type EventInfo struct {
	Event    UploadEvent // Type of event
	TaskID   string      // Task the event belongs to, empty for batch-level events
	Filename string      // Name of the file
	Message  string      // Optional message
	Error    error       // Error if applicable
}

// ProgressInfo contains detailed progress information for one task.
type ProgressInfo struct {
	TaskID      string  // Task identifier
	Filename    string  // Name of the file being uploaded
	Current     int64   // Bytes acknowledged so far
	Total       int64   // Total file size in bytes
	Percentage  float64 // Upload progress as percentage (0.0 to 100.0)
	AckedChunks int     // Chunks acknowledged so far
	TotalChunks int     // Total number of chunks
}
