package hub

import "sync/atomic"

type MetricsSnapshot struct {
	LocalAgents   int64
	RequestsSent  int64
	ResponsesRecv int64
	Retries       int64
	Timeouts      int64
	Failures      int64
	InFlight      int64
	LateResponses int64
}

type Metrics struct {
	localAgents   atomic.Int64
	requestsSent  atomic.Int64
	responsesRecv atomic.Int64
	retries       atomic.Int64
	timeouts      atomic.Int64
	failures      atomic.Int64
	inFlight      atomic.Int64
	lateResponses atomic.Int64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) RecordLocalAgent(delta int) {
	m.localAgents.Add(int64(delta))
}

func (m *Metrics) RecordRequestSent() {
	m.requestsSent.Add(1)
}

func (m *Metrics) RecordResponseRecv() {
	m.responsesRecv.Add(1)
}

func (m *Metrics) RecordRetry() {
	m.retries.Add(1)
}

func (m *Metrics) RecordTimeout() {
	m.timeouts.Add(1)
}

func (m *Metrics) RecordFailure() {
	m.failures.Add(1)
}

func (m *Metrics) RecordInFlight(delta int) {
	m.inFlight.Add(int64(delta))
}

func (m *Metrics) RecordLateResponse() {
	m.lateResponses.Add(1)
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		LocalAgents:   m.localAgents.Load(),
		RequestsSent:  m.requestsSent.Load(),
		ResponsesRecv: m.responsesRecv.Load(),
		Retries:       m.retries.Load(),
		Timeouts:      m.timeouts.Load(),
		Failures:      m.failures.Load(),
		InFlight:      m.inFlight.Load(),
		LateResponses: m.lateResponses.Load(),
	}
}
