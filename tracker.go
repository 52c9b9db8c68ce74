// Package chunkup - Transcode job polling
//
// This file provides the processing tracker: one cancellable polling
// loop per video task that finalized into server-side transcoding. The
// interval is fixed, never escalating, because transcode duration is
// unbounded and entirely server-side. Stopping the tracker is the only
// cancellation surface; it fires when the owning task is removed or the
// batch shuts down.
package chunkup

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ProcessingTracker polls the transcode state of one finalized file.
// Owned by the batch that created it; Stop is safe to call any number of
// times and from any goroutine.
type ProcessingTracker struct {
	client   *Client
	interval time.Duration
	timeout  time.Duration
	logger   zerolog.Logger

	taskID string
	fileID string

	onComplete func(taskID, message string)
	onStalled  func(taskID string, err error)

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func newProcessingTracker(client *Client, taskID, fileID string, interval, timeout time.Duration,
	logger zerolog.Logger, onComplete func(taskID, message string), onStalled func(taskID string, err error)) *ProcessingTracker {
	return &ProcessingTracker{
		client:     client,
		interval:   interval,
		timeout:    timeout,
		logger:     logger,
		taskID:     taskID,
		fileID:     fileID,
		onComplete: onComplete,
		onStalled:  onStalled,
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
}

func (pt *ProcessingTracker) start() {
	go pt.loop()
}

func (pt *ProcessingTracker) loop() {
	defer close(pt.done)
	ticker := time.NewTicker(pt.interval)
	defer ticker.Stop()

	for {
		select {
		case <-pt.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), pt.timeout)
			resp, err := pt.client.ProcessingStatus(ctx, pt.fileID)
			cancel()
			if err != nil {
				// Polling stops here and the task stays in processing;
				// the transcode may well still be running server-side.
				pt.logger.Warn().
					Str("task_id", pt.taskID).
					Str("file_id", pt.fileID).
					Err(err).
					Msg("processing poll failed, tracker stopped")
				pt.onStalled(pt.taskID, err)
				return
			}
			if !resp.Processing {
				msg := resp.Message
				if msg == "" {
					msg = "Processing complete"
				}
				pt.onComplete(pt.taskID, msg)
				return
			}
			pt.logger.Debug().
				Str("task_id", pt.taskID).
				Str("file_id", pt.fileID).
				Msg("still processing")
		}
	}
}

// Stop cancels the polling loop. The owning task keeps whatever status
// it had; Stop never mutates task state.
func (pt *ProcessingTracker) Stop() {
	pt.stopOnce.Do(func() { close(pt.stopCh) })
}

// Done is closed when the polling loop has fully exited.
func (pt *ProcessingTracker) Done() <-chan struct{} {
	return pt.done
}
