// Package chunkup - Batch coordination
//
// This file provides the upload queue shared by the dashboard: tasks are
// added up front, planned against the measured network condition, and
// uploaded one file at a time. A single mutex guards the task table; all
// status and progress writes funnel through updateTask so readers always
// see a consistent snapshot.
package chunkup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Batch coordinates a queue of upload tasks against one backend.
//
// Files are uploaded sequentially in insertion order; within a file,
// chunks are transferred concurrently according to the active plan.
// All methods are safe for concurrent use.
type Batch struct {
	client  *Client
	prober  Prober
	planner *ChunkPlanner
	cfg     *Config

	mu        sync.RWMutex
	tasks     map[string]*UploadTask
	order     []string
	trackers  map[string]*ProcessingTracker
	override  ChunkSizeName
	lastCond  *NetworkCondition
	running   bool
	closed    bool
	runCancel context.CancelFunc
}

// NewBatch creates a batch coordinator.
//
// The prober supplies network measurements for planning and the planner
// turns them into per-file chunk configurations. A nil cfg uses
// DefaultConfig.
//
// Example:
//
//	client := chunkup.NewClient(baseURL, token)
//	tuning := chunkup.DefaultTuning()
//	batch := chunkup.NewBatch(client,
//		chunkup.NewNetworkProbe(client, tuning, logger),
//		chunkup.NewChunkPlanner(tuning),
//		cfg)
//	tasks, err := batch.AddFiles(file)
//	if err != nil {
//		log.Fatal(err)
//	}
//	err = batch.Start(ctx)
func NewBatch(client *Client, prober Prober, planner *ChunkPlanner, cfg *Config) *Batch {
	return &Batch{
		client:   client,
		prober:   prober,
		planner:  planner,
		cfg:      validateConfig(cfg),
		tasks:    make(map[string]*UploadTask),
		trackers: make(map[string]*ProcessingTracker),
	}
}

// AddFiles queues files for upload and returns their tasks in the order
// given. Every task starts in StatusPending with a fresh ID.
//
// Files reporting a zero size are rejected with ErrEmptyFile. When the
// queue crosses the large-upload threshold, or a video file is added, a
// network probe runs in the background; a large queue additionally
// produces an EventPlanReady event carrying the projected plan.
func (b *Batch) AddFiles(files ...File) ([]*UploadTask, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}
	for _, f := range files {
		if f == nil || f.Size() <= 0 {
			name := "<nil>"
			if f != nil {
				name = f.Name()
			}
			return nil, fmt.Errorf("%w: %s", ErrEmptyFile, name)
		}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBatchClosed
	}

	now := time.Now()
	added := make([]*UploadTask, 0, len(files))
	video := false
	for _, f := range files {
		task := &UploadTask{
			ID:          uuid.NewString(),
			Filename:    f.Name(),
			Size:        f.Size(),
			ContentType: f.ContentType(),
			IsVideo:     isVideoFile(f.Name(), f.ContentType()),
			Status:      TaskPending,
			CreatedAt:   now,
			UpdatedAt:   now,
			file:        f,
		}
		b.tasks[task.ID] = task
		b.order = append(b.order, task.ID)
		if task.IsVideo {
			video = true
		}
		added = append(added, copyTask(task))
	}
	large := b.isLargeLocked()
	b.mu.Unlock()

	if video || large {
		go b.probeAndPlan(large)
	}
	return added, nil
}

// Start uploads every pending task sequentially and blocks until the
// queue is drained or ctx is cancelled. Per-file failures are recorded
// on the task and do not abort the rest of the queue.
//
// The network condition cached by the most recent probe is reused when
// present; otherwise a probe runs first. Only one Start may run at a
// time.
func (b *Batch) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBatchClosed
	}
	if b.running {
		b.mu.Unlock()
		return ErrBatchRunning
	}
	var pending []*UploadTask
	for _, id := range b.order {
		if t := b.tasks[id]; t.Status == TaskPending {
			pending = append(pending, t)
		}
	}
	if len(pending) == 0 {
		b.mu.Unlock()
		return ErrNoFiles
	}
	runCtx, cancel := context.WithCancel(ctx)
	b.running = true
	b.runCancel = cancel
	cached := b.lastCond
	override := b.override
	b.mu.Unlock()

	defer func() {
		cancel()
		b.mu.Lock()
		b.running = false
		b.runCancel = nil
		b.mu.Unlock()
	}()

	var cond NetworkCondition
	if cached != nil {
		cond = *cached
	} else {
		cond = b.measure(runCtx)
	}

	for _, t := range pending {
		if runCtx.Err() != nil {
			break
		}
		b.mu.RLock()
		_, alive := b.tasks[t.ID]
		b.mu.RUnlock()
		if !alive {
			continue
		}
		sess := &uploadSession{
			batch:       b,
			client:      b.client,
			cfg:         b.cfg,
			plan:        b.planFor(t.Size, cond, override),
			taskID:      t.ID,
			filename:    t.Filename,
			contentType: t.ContentType,
			size:        t.Size,
			file:        t.file,
		}
		sess.run(runCtx)
	}
	return nil
}

// SetChunkOption overrides the automatically planned chunk size for
// subsequent uploads. Concurrency is still derived from the network
// condition. An empty name restores automatic selection.
func (b *Batch) SetChunkOption(name ChunkSizeName) error {
	if name != "" {
		if _, ok := chunkOption(name); !ok {
			return fmt.Errorf("%w: %q", ErrUnknownChunkOption, name)
		}
	}
	b.mu.Lock()
	b.override = name
	b.mu.Unlock()
	return nil
}

// Condition returns the most recently measured network condition, if any.
func (b *Batch) Condition() (NetworkCondition, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.lastCond == nil {
		return NetworkCondition{}, false
	}
	return *b.lastCond, true
}

// Running reports whether a Start call is currently draining the queue.
func (b *Batch) Running() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.running
}

// Tasks returns a snapshot of every task in insertion order.
func (b *Batch) Tasks() []*UploadTask {
	b.mu.RLock()
	defer b.mu.RUnlock()

	tasks := make([]*UploadTask, 0, len(b.order))
	for _, id := range b.order {
		tasks = append(tasks, copyTask(b.tasks[id]))
	}
	return tasks
}

// Task returns a snapshot of a single task.
func (b *Batch) Task(id string) (*UploadTask, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	task, ok := b.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return copyTask(task), nil
}

// Remove deletes a task from the queue. Tasks that are uploading or
// processing cannot be removed. Removing a failed task also asks the
// backend to discard any chunks it already stored for that filename.
func (b *Batch) Remove(ctx context.Context, id string) error {
	b.mu.Lock()
	task, ok := b.tasks[id]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if task.Status == TaskUploading || task.Status == TaskProcessing {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrTaskInFlight, task.Filename, task.Status)
	}
	failed := task.Status == TaskError
	filename := task.Filename
	delete(b.tasks, id)
	b.removeFromOrder(id)
	b.mu.Unlock()

	if failed {
		b.cancelRemote(ctx, filename)
	}
	return nil
}

// ClearCompleted removes every completed task and returns the number
// removed.
func (b *Batch) ClearCompleted() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	kept := b.order[:0]
	removed := 0
	for _, id := range b.order {
		if b.tasks[id].Status == TaskCompleted {
			delete(b.tasks, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	b.order = kept
	return removed
}

// ClearAll discards every task. A running upload is cancelled, processing
// trackers are stopped, and the backend is asked to drop partial chunks
// for tasks that were mid-transfer.
func (b *Batch) ClearAll(ctx context.Context) {
	b.teardown(ctx, false)
}

// Close shuts the batch down once no upload is active. It returns
// ErrUploadsActive while a task is still transferring; completed and
// failed tasks are discarded and processing trackers are stopped. A
// closed batch accepts no further files.
func (b *Batch) Close(ctx context.Context) error {
	b.mu.RLock()
	for _, t := range b.tasks {
		if t.Status == TaskUploading {
			b.mu.RUnlock()
			return fmt.Errorf("%w: %s", ErrUploadsActive, t.Filename)
		}
	}
	b.mu.RUnlock()

	b.teardown(ctx, true)
	return nil
}

// ForceClose shuts the batch down immediately. In-flight chunk requests
// are aborted, trackers are stopped, and partial uploads are cancelled
// on the backend best-effort.
func (b *Batch) ForceClose(ctx context.Context) {
	b.teardown(ctx, true)
}

// teardown drains all batch state. When shut is set the batch refuses
// further work afterwards.
func (b *Batch) teardown(ctx context.Context, shut bool) {
	b.mu.Lock()
	cancel := b.runCancel
	trackers := make([]*ProcessingTracker, 0, len(b.trackers))
	for _, tr := range b.trackers {
		trackers = append(trackers, tr)
	}
	var partial []string
	for _, t := range b.tasks {
		if t.Status == TaskUploading || t.Status == TaskError {
			partial = append(partial, t.Filename)
		}
	}
	b.tasks = make(map[string]*UploadTask)
	b.order = nil
	b.trackers = make(map[string]*ProcessingTracker)
	if shut {
		b.closed = true
	}
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, tr := range trackers {
		tr.Stop()
	}
	for _, filename := range partial {
		b.cancelRemote(ctx, filename)
	}
}

// cancelRemote asks the backend to discard stored chunks for a filename.
// Failures are logged and otherwise ignored; the next upload of the same
// filename overwrites whatever remains.
func (b *Batch) cancelRemote(ctx context.Context, filename string) {
	cctx, cancel := context.WithTimeout(ctx, b.cfg.RequestTimeout)
	defer cancel()
	if err := b.client.CancelUpload(cctx, filename); err != nil {
		b.cfg.Logger.Warn().Str("filename", filename).Err(err).Msg("server-side cancel failed")
	}
}

// measure runs a probe bounded by ProbeTimeout and caches the result.
func (b *Batch) measure(ctx context.Context) NetworkCondition {
	pctx, cancel := context.WithTimeout(ctx, b.cfg.ProbeTimeout)
	defer cancel()
	cond := b.prober.Measure(pctx)

	b.mu.Lock()
	c := cond
	b.lastCond = &c
	b.mu.Unlock()
	return cond
}

// probeAndPlan refreshes the cached network condition in the background.
// When announce is set it also emits an EventPlanReady event describing
// the plan for the combined queue, which the dashboard uses to surface
// chunk settings before a large upload starts.
func (b *Batch) probeAndPlan(announce bool) {
	cond := b.measure(context.Background())

	b.mu.RLock()
	override := b.override
	var combined int64
	count := 0
	for _, t := range b.tasks {
		combined += t.Size
		count++
	}
	b.mu.RUnlock()

	if !announce || count == 0 {
		return
	}
	plan := b.planFor(combined, cond, override)
	msg := fmt.Sprintf("%d files, %s total: %s chunks, %d concurrent, ~%.1f min on %s network",
		count, formatBytes(combined), plan.ChunkSizeName, plan.ConcurrentChunks,
		plan.EstimatedUploadMinutes, cond.Classification)
	b.emitEvent(EventPlanReady, "", "", msg, nil)
}

// planFor builds the upload configuration for one file, honoring a
// manual chunk size override when set.
func (b *Batch) planFor(size int64, cond NetworkCondition, override ChunkSizeName) UploadConfig {
	if override != "" {
		if plan, err := b.planner.PlanWithOption(size, cond, override); err == nil {
			return plan
		}
	}
	return b.planner.Plan(size, cond)
}

// isLargeLocked reports whether the queue qualifies as a large upload:
// any single file above the large-file threshold, or more than one file
// with a combined size above the batch threshold. Callers hold b.mu.
func (b *Batch) isLargeLocked() bool {
	t := b.planner.tuning
	var combined int64
	count := 0
	for _, task := range b.tasks {
		if task.Size > t.LargeFileBytes {
			return true
		}
		combined += task.Size
		count++
	}
	return count > 1 && combined > t.LargeBatchBytes
}

// updateTask mutates one task under the batch lock and stamps UpdatedAt.
// Unknown IDs are ignored so late updates from a cancelled run cannot
// resurrect removed tasks.
func (b *Batch) updateTask(id string, fn func(t *UploadTask)) {
	b.mu.Lock()
	if task, ok := b.tasks[id]; ok {
		fn(task)
		task.UpdatedAt = time.Now()
	}
	b.mu.Unlock()
}

// emitEvent delivers an event to the configured callback, if any.
func (b *Batch) emitEvent(event UploadEvent, taskID, filename, message string, err error) {
	if b.cfg.EventFunc == nil {
		return
	}
	b.cfg.EventFunc(EventInfo{
		Event:    event,
		TaskID:   taskID,
		Filename: filename,
		Message:  message,
		Error:    err,
	})
}

// startTracker begins polling the backend for a task whose file entered
// asynchronous processing after the merge.
func (b *Batch) startTracker(taskID, fileID string) {
	tracker := newProcessingTracker(b.client, taskID, fileID,
		b.cfg.PollInterval, b.cfg.RequestTimeout, b.cfg.Logger,
		b.processingComplete, b.processingStalled)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.trackers[taskID] = tracker
	b.mu.Unlock()
	tracker.start()
}

// processingComplete marks a task completed once the backend reports the
// transcode finished.
func (b *Batch) processingComplete(taskID, message string) {
	b.dropTracker(taskID)
	var filename string
	b.mu.Lock()
	if task, ok := b.tasks[taskID]; ok {
		task.Status = TaskCompleted
		task.ProcessingStatus = "completed"
		task.ProcessingMessage = message
		task.UpdatedAt = time.Now()
		filename = task.Filename
	}
	b.mu.Unlock()
	b.emitEvent(EventProcessingComplete, taskID, filename, message, nil)
}

// processingStalled stops tracking a task whose status poll keeps
// failing. The task stays in StatusProcessing; the file may well finish
// server-side, the client just can no longer observe it.
func (b *Batch) processingStalled(taskID string, err error) {
	b.dropTracker(taskID)
	var filename string
	b.mu.RLock()
	if task, ok := b.tasks[taskID]; ok {
		filename = task.Filename
	}
	b.mu.RUnlock()
	b.emitEvent(EventProcessingStalled, taskID, filename, "Processing status unavailable", err)
}

func (b *Batch) dropTracker(taskID string) {
	b.mu.Lock()
	delete(b.trackers, taskID)
	b.mu.Unlock()
}

func (b *Batch) removeFromOrder(id string) {
	for i, v := range b.order {
		if v == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			return
		}
	}
}

func copyTask(t *UploadTask) *UploadTask {
	c := *t
	return &c
}
