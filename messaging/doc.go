// Package messaging provides the message envelope used for agent-to-agent
// communication.
//
// Every exchange between the orchestrator and a worker agent is carried by a
// Message made of three parts:
//
//   - Header: identity, routing, correlation and creation time
//   - Metadata: delivery hints (priority, TTL, retry budget, tags)
//   - Body: the type-specific content (action/payload, result/success,
//     error code/message, or event type/data)
//
// # Message Types
//
//   - Request: asks a receiver to perform an action
//   - Response: answers a request; CorrelationID is the request's MessageID
//   - Error: reports that a request could not be served
//   - Event: one-way broadcast with no receiver
//
// # Construction
//
//	req := messaging.NewRequest("orchestrator", "news-agent", "fetch_news",
//	    map[string]any{"ticker": "AAPL"},
//	    messaging.WithTTL(30*time.Second),
//	    messaging.WithPriority(messaging.PriorityHigh),
//	)
//
//	resp := messaging.NewResponse(req, "news-agent", result, true)
//
// # Delivery
//
// A Message never resends itself. Senders check IsExpired and ShouldRetry and
// call IncrementRetry before a resend; receivers drop expired requests.
//
// # Serialization
//
// ToMap and FromMap convert to and from a plain structural form with enum
// values as lowercase names. JSON and protobuf Struct encodings are built on
// the same form, so all three round trip losslessly.
package messaging
