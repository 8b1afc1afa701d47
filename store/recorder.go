package store

import (
	"context"
	"sync"
	"time"

	"github.com/notifico/dispatcher/interfaces"
)

// PipelineResult is one recorded pipeline run outcome.
type PipelineResult struct {
	EventID        string
	NotificationID string
	PipelineID     string
	Err            error
	At             time.Time
}

// MessageResult is one recorded message send outcome, keyed back to the
// event and notification it belongs to.
type MessageResult struct {
	EventID        string
	NotificationID string
	MessageID      string
	Channel        string
	Err            error
	At             time.Time
}

// MemoryRecorder keeps pipeline and message results in memory, for tests
// and for small deployments that expose them through the admin API without
// a database.
type MemoryRecorder struct {
	mu        sync.Mutex
	pipelines []PipelineResult
	messages  []MessageResult
	now       func() time.Time
}

// NewMemoryRecorder builds an empty MemoryRecorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{now: time.Now}
}

// RecordPipelineResult implements interfaces.Recorder.
func (r *MemoryRecorder) RecordPipelineResult(ctx context.Context, eventID, notificationID, pipelineID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pipelines = append(r.pipelines, PipelineResult{EventID: eventID, NotificationID: notificationID, PipelineID: pipelineID, Err: err, At: r.now()})
}

// RecordMessageResult implements interfaces.Recorder.
func (r *MemoryRecorder) RecordMessageResult(ctx context.Context, eventID, notificationID, messageID, channel string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, MessageResult{EventID: eventID, NotificationID: notificationID, MessageID: messageID, Channel: channel, Err: err, At: r.now()})
}

// PipelineResults returns a snapshot of every recorded pipeline result, most
// recent last.
func (r *MemoryRecorder) PipelineResults() []PipelineResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]PipelineResult, len(r.pipelines))
	copy(out, r.pipelines)
	return out
}

// MessageResults returns a snapshot of every recorded message result, most
// recent last.
func (r *MemoryRecorder) MessageResults() []MessageResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]MessageResult, len(r.messages))
	copy(out, r.messages)
	return out
}

// TeeRecorder fans every call out to two Recorders, e.g. a MemoryRecorder
// backing the admin API's in-process snapshot and a PostgresRecorder
// persisting the same outcomes durably. Both receive every call; neither's
// failure affects the other, matching the Recorder contract that a sink's
// own trouble never surfaces back to the pipeline that called it.
type TeeRecorder struct {
	primary, secondary interfaces.Recorder
}

// NewTeeRecorder builds a Recorder that writes to both primary and
// secondary on every call.
func NewTeeRecorder(primary, secondary interfaces.Recorder) *TeeRecorder {
	return &TeeRecorder{primary: primary, secondary: secondary}
}

// RecordPipelineResult implements interfaces.Recorder.
func (t *TeeRecorder) RecordPipelineResult(ctx context.Context, eventID, notificationID, pipelineID string, err error) {
	t.primary.RecordPipelineResult(ctx, eventID, notificationID, pipelineID, err)
	t.secondary.RecordPipelineResult(ctx, eventID, notificationID, pipelineID, err)
}

// RecordMessageResult implements interfaces.Recorder.
func (t *TeeRecorder) RecordMessageResult(ctx context.Context, eventID, notificationID, messageID, channel string, err error) {
	t.primary.RecordMessageResult(ctx, eventID, notificationID, messageID, channel, err)
	t.secondary.RecordMessageResult(ctx, eventID, notificationID, messageID, channel, err)
}
