// Package chunkup - Chunked transfer of one file
//
// This file drives the upload session for a single task: chunks are
// dispatched in index order through a bounded set of workers, every
// acknowledgment flows back to one collector that owns all task state
// updates, and the session finishes with the finalize call that tells us
// whether server-side transcoding follows.
//
// The transfer guarantees:
//   - no chunk index >= TotalChunks is ever dispatched
//   - dispatch order is non-decreasing, acknowledgments may arrive out of order
//   - progress is computed from the acknowledged count, so it is monotonic
//   - the first failure stops dispatch; later indexes are never sent and
//     in-flight chunks drain without moving state past error
//   - progress reaches exactly 100 only on the completed or processing transition
package chunkup

import (
	"context"
	"fmt"
	"sync"
)

// uploadSession is the single-file transfer runner. Created by the batch
// for each task it starts; lives for one run.
type uploadSession struct {
	batch       *Batch
	client      *Client
	cfg         *Config
	plan        UploadConfig
	taskID      string
	filename    string
	contentType string
	size        int64
	file        File
}

type chunkResult struct {
	index int
	err   error
}

// run executes the full session: chunk phase, finalize, and the handoff
// to the processing tracker for videos. Failures are converted into task
// state, never returned.
func (s *uploadSession) run(ctx context.Context) {
	s.batch.updateTask(s.taskID, func(t *UploadTask) {
		t.Status = TaskUploading
		t.TotalChunks = s.plan.TotalChunks
	})
	s.batch.emitEvent(EventUploadStarted, s.taskID, s.filename, "Upload started", nil)
	s.cfg.Logger.Debug().
		Str("task_id", s.taskID).
		Str("filename", s.filename).
		Int("total_chunks", s.plan.TotalChunks).
		Int("concurrent_chunks", s.plan.ConcurrentChunks).
		Str("chunk_size", string(s.plan.ChunkSizeName)).
		Msg("session started")

	if err := s.transferChunks(ctx); err != nil {
		s.fail(err)
		return
	}

	s.batch.emitEvent(EventChunksComplete, s.taskID, s.filename, "All chunks uploaded", nil)
	s.batch.emitEvent(EventFinalizeStarted, s.taskID, s.filename, "Finalizing upload", nil)

	fctx, cancel := context.WithTimeout(ctx, s.cfg.FinalizeTimeout)
	resp, err := s.client.CompleteUpload(fctx, CompleteRequest{
		Filename:  s.filename,
		ProjectID: s.cfg.ProjectID,
		FolderID:  s.cfg.FolderID,
	})
	cancel()
	if err != nil {
		s.fail(err)
		return
	}
	s.batch.emitEvent(EventFinalizeComplete, s.taskID, s.filename, resp.Message, nil)

	// The finalize response is the authoritative video decision; the
	// client-side hint only influenced probing and display.
	if resp.IsVideo && resp.ProcessingStatus == "processing" {
		s.batch.updateTask(s.taskID, func(t *UploadTask) {
			t.Status = TaskProcessing
			t.Progress = 100
			t.AckedChunks = s.plan.TotalChunks
			t.FileID = resp.ID
			t.ProcessingStatus = resp.ProcessingStatus
			t.ProcessingMessage = resp.Message
		})
		s.emitProgress(s.plan.TotalChunks)
		s.batch.emitEvent(EventProcessingStarted, s.taskID, s.filename, "Video processing started", nil)
		s.batch.startTracker(s.taskID, resp.ID)
		return
	}

	s.batch.updateTask(s.taskID, func(t *UploadTask) {
		t.Status = TaskCompleted
		t.Progress = 100
		t.AckedChunks = s.plan.TotalChunks
		t.FileID = resp.ID
		t.ProcessingStatus = resp.ProcessingStatus
	})
	s.emitProgress(s.plan.TotalChunks)
	s.batch.emitEvent(EventUploadComplete, s.taskID, s.filename, "Upload completed successfully", nil)
}

// transferChunks runs the chunk phase and returns the first failure, or
// the context error when the run was cancelled before completing.
func (s *uploadSession) transferChunks(ctx context.Context) error {
	total := s.plan.TotalChunks
	workers := s.plan.ConcurrentChunks
	if workers < 1 {
		workers = 1
	}
	if workers > total {
		workers = total
	}

	pool := s.cfg.BufferPool
	if pool == nil || pool.Size() != s.plan.ChunkSizeBytes {
		pool = NewBufferPool(s.plan.ChunkSizeBytes, workers)
	}

	indexes := make(chan int)
	results := make(chan chunkResult)
	abort := make(chan struct{})
	var abortOnce sync.Once
	stopDispatch := func() { abortOnce.Do(func() { close(abort) }) }

	// Producer: indexes leave in non-decreasing order and stop at the
	// first failure, so chunks past a failed index are never dispatched.
	go func() {
		defer close(indexes)
		for i := 0; i < total; i++ {
			select {
			case indexes <- i:
			case <-abort:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for index := range indexes {
				// An index handed over in the same instant the abort
				// landed is dropped, not sent.
				select {
				case <-abort:
					continue
				default:
				}
				err := s.sendChunk(ctx, index, pool)
				if err != nil {
					stopDispatch()
				}
				select {
				case results <- chunkResult{index: index, err: err}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	// Collector: the only writer of this task's progress. Results are
	// drained to completion; acknowledgments landing after a failure are
	// observed but no longer advance state.
	acked := 0
	var firstErr error
	for res := range results {
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
				s.cfg.Logger.Warn().
					Str("task_id", s.taskID).
					Int("chunk", res.index).
					Err(res.err).
					Msg("chunk failed, stopping dispatch")
			}
			continue
		}
		if firstErr != nil {
			continue
		}
		acked++
		// The final percent is owned by the completed/processing
		// transition after finalize.
		if acked < total {
			s.batch.updateTask(s.taskID, func(t *UploadTask) {
				t.AckedChunks = acked
				t.Progress = float64(acked) / float64(total) * 100
			})
			s.emitProgress(acked)
		}
		s.batch.emitEvent(EventChunkUploaded, s.taskID, s.filename,
			fmt.Sprintf("Chunk %d/%d uploaded", acked, total), nil)
	}
	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}

// sendChunk reads one chunk and transmits it with a bounded timeout. A
// timed-out call surfaces exactly like a failed one.
func (s *uploadSession) sendChunk(ctx context.Context, index int, pool *BufferPool) error {
	offset := int64(index) * s.plan.ChunkSizeBytes
	want := s.plan.ChunkSizeBytes
	if remain := s.size - offset; remain < want {
		want = remain
	}

	buf := pool.Get()
	defer pool.Put(buf)

	n, err := s.file.ReadAt(buf[:want], offset)
	if int64(n) != want {
		if err == nil {
			err = fmt.Errorf("short read")
		}
		return fmt.Errorf("read chunk %d at offset %d: %w", index, offset, err)
	}

	cctx, cancel := context.WithTimeout(ctx, s.cfg.ChunkTimeout)
	defer cancel()
	_, err = s.client.UploadChunk(cctx, ChunkRequest{
		Filename:      s.filename,
		ContentType:   s.contentType,
		ChunkNumber:   index,
		TotalChunks:   s.plan.TotalChunks,
		TotalSize:     s.size,
		ProjectID:     s.cfg.ProjectID,
		FolderID:      s.cfg.FolderID,
		ChunkSizeName: s.plan.ChunkSizeName,
		Data:          buf[:want],
	})
	return err
}

func (s *uploadSession) emitProgress(acked int) {
	if s.cfg.ProgressFunc == nil {
		return
	}
	total := s.plan.TotalChunks
	s.cfg.ProgressFunc(ProgressInfo{
		TaskID:      s.taskID,
		Filename:    s.filename,
		Current:     chunkBytesAcked(acked, s.plan.ChunkSizeBytes, s.size),
		Total:       s.size,
		Percentage:  float64(acked) / float64(total) * 100,
		AckedChunks: acked,
		TotalChunks: total,
	})
}

// fail moves the task to error with the captured message. Progress stays
// where the last acknowledged chunk left it.
func (s *uploadSession) fail(err error) {
	s.batch.updateTask(s.taskID, func(t *UploadTask) {
		t.Status = TaskError
		t.ErrorMessage = err.Error()
	})
	s.cfg.Logger.Warn().
		Str("task_id", s.taskID).
		Str("filename", s.filename).
		Err(err).
		Msg("upload failed")
	s.batch.emitEvent(EventUploadFailed, s.taskID, s.filename, err.Error(), err)
}
