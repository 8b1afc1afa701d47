package store

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/notifico/dispatcher/interfaces"
)

// MetricsRecorder wraps another Recorder and additionally counts pipeline
// and message outcomes in Prometheus counters, so a single recorder call
// from the engine drives both persistence and /metrics.
type MetricsRecorder struct {
	next interfaces.Recorder

	pipelinesTotal *prometheus.CounterVec
	messagesTotal  *prometheus.CounterVec
}

// NewMetricsRecorder builds a MetricsRecorder that registers its counters on
// reg. next receives every call after the counters are updated and may be
// nil.
func NewMetricsRecorder(reg prometheus.Registerer, next interfaces.Recorder) *MetricsRecorder {
	m := &MetricsRecorder{
		next: next,
		pipelinesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dispatcher",
			Name:      "pipeline_runs_total",
			Help:      "Total pipeline runs, partitioned by outcome.",
		}, []string{"pipeline_id", "outcome"}),
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dispatcher",
			Name:      "messages_sent_total",
			Help:      "Total messages sent, partitioned by channel and outcome.",
		}, []string{"channel", "outcome"}),
	}
	reg.MustRegister(m.pipelinesTotal, m.messagesTotal)
	return m
}

// RecordPipelineResult implements interfaces.Recorder.
func (m *MetricsRecorder) RecordPipelineResult(ctx context.Context, eventID, notificationID, pipelineID string, err error) {
	m.pipelinesTotal.WithLabelValues(pipelineID, outcome(err)).Inc()
	if m.next != nil {
		m.next.RecordPipelineResult(ctx, eventID, notificationID, pipelineID, err)
	}
}

// RecordMessageResult implements interfaces.Recorder.
func (m *MetricsRecorder) RecordMessageResult(ctx context.Context, eventID, notificationID, messageID, channel string, err error) {
	m.messagesTotal.WithLabelValues(channel, outcome(err)).Inc()
	if m.next != nil {
		m.next.RecordMessageResult(ctx, eventID, notificationID, messageID, channel, err)
	}
}

func outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
