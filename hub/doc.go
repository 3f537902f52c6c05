// Package hub dispatches request envelopes to agents and correlates their
// replies.
//
// Agents are reached in one of two ways. Agents registered with RegisterAgent
// run in-process: each gets a MessageChannel and a dedicated receive loop,
// and every delivered message is handled on its own goroutine. Any other
// agent is reached through the Transport at its registry endpoint, by default
// a Connect client of the agent service.
//
// # Request/Response
//
//	h := hub.New(ctx, config.DefaultHubConfig())
//	defer h.Shutdown(5 * time.Second)
//
//	result, err := h.Call(ctx, target, "fetch_news", map[string]any{"ticker": "AAPL"})
//
// Every request registers its message id in a correlation map before
// delivery. A reply is matched by correlation id; replies that arrive after
// their requester gave up are dropped and counted as late.
//
// # Failure Semantics
//
//   - ErrUpstreamTimeout: the deadline passed without a reply. Never retried.
//   - *UpstreamFailure: the agent replied with an error envelope or
//     success=false.
//   - ErrAgentUnreachable: the request could not be delivered. The hub
//     resends while the envelope's retry budget allows, incrementing its
//     retry_count each time.
//
// # Concurrency
//
// A process-wide weighted semaphore caps in-flight requests across all
// callers (HubConfig.MaxInflight). The correlation map and the local agent
// table are each guarded by their own RWMutex.
package hub
