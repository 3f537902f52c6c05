package messaging

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ToMap returns the structural form of the message. Enum fields are lowercase
// names, the timestamp is RFC 3339 with nanoseconds, TTL is in seconds and an
// empty receiver or correlation id is nil.
func (msg *Message) ToMap() map[string]any {
	var ttl any
	if msg.Metadata.TTL > 0 {
		ttl = msg.Metadata.TTL.Seconds()
	}

	tags := slices.Clone(msg.Metadata.Tags)
	if tags == nil {
		tags = []string{}
	}

	return map[string]any{
		"header": map[string]any{
			"message_id":       msg.Header.MessageID,
			"sender_id":        msg.Header.SenderID,
			"receiver_id":      nullable(msg.Header.ReceiverID),
			"message_type":     string(msg.Header.MessageType),
			"correlation_id":   nullable(msg.Header.CorrelationID),
			"timestamp":        msg.Header.Timestamp.Format(time.RFC3339Nano),
			"protocol_version": msg.Header.ProtocolVersion,
		},
		"metadata": map[string]any{
			"priority":    msg.Metadata.Priority.String(),
			"ttl":         ttl,
			"retry_count": msg.Metadata.RetryCount,
			"max_retries": msg.Metadata.MaxRetries,
			"require_ack": msg.Metadata.RequireAck,
			"tags":        tags,
		},
		"body": msg.bodyMap(),
	}
}

func (msg *Message) bodyMap() map[string]any {
	switch msg.Header.MessageType {
	case MessageTypeRequest:
		return map[string]any{
			"action":  msg.Body.Action,
			"payload": msg.Body.Payload,
		}
	case MessageTypeResponse:
		return map[string]any{
			"result":          msg.Body.Result,
			"success":         msg.Body.Success,
			"original_action": msg.Body.OriginalAction,
		}
	case MessageTypeError:
		return map[string]any{
			"error_code":    msg.Body.ErrorCode,
			"error_message": msg.Body.ErrorMessage,
		}
	case MessageTypeEvent:
		return map[string]any{
			"event_type": msg.Body.EventType,
			"event_data": msg.Body.EventData,
		}
	default:
		return map[string]any{}
	}
}

// FromMap rebuilds a message from its structural form. A missing message id
// is generated; a missing metadata section takes the defaults.
func FromMap(m map[string]any) (*Message, error) {
	if m == nil {
		return nil, protocolErrorf("", "envelope is nil")
	}

	header, err := section(m, "header", true)
	if err != nil {
		return nil, err
	}

	msg := &Message{
		Metadata: Metadata{
			Priority:   PriorityNormal,
			MaxRetries: DefaultMaxRetries,
			Tags:       []string{},
		},
	}

	if err := decodeHeader(header, &msg.Header); err != nil {
		return nil, err
	}

	metadata, err := section(m, "metadata", false)
	if err != nil {
		return nil, err
	}
	if metadata != nil {
		if err := decodeMetadata(metadata, &msg.Metadata); err != nil {
			return nil, err
		}
	}

	body, err := section(m, "body", true)
	if err != nil {
		return nil, err
	}
	if err := decodeBody(body, msg.Header.MessageType, &msg.Body); err != nil {
		return nil, err
	}

	return msg, nil
}

func decodeHeader(h map[string]any, header *Header) error {
	var err error

	if header.MessageID, err = optionalString(h, "header.message_id", "message_id"); err != nil {
		return err
	}
	if header.MessageID == "" {
		header.MessageID = generateID()
	}

	if header.SenderID, err = optionalString(h, "header.sender_id", "sender_id"); err != nil {
		return err
	}
	if header.ReceiverID, err = optionalString(h, "header.receiver_id", "receiver_id"); err != nil {
		return err
	}
	if header.CorrelationID, err = optionalString(h, "header.correlation_id", "correlation_id"); err != nil {
		return err
	}

	messageType, err := optionalString(h, "header.message_type", "message_type")
	if err != nil {
		return err
	}
	header.MessageType = MessageType(messageType)
	if !header.MessageType.IsValid() {
		return protocolErrorf("header.message_type", "unknown message type %q", messageType)
	}

	timestamp, err := optionalString(h, "header.timestamp", "timestamp")
	if err != nil {
		return err
	}
	if timestamp == "" {
		return protocolErrorf("header.timestamp", "missing")
	}
	if header.Timestamp, err = time.Parse(time.RFC3339Nano, timestamp); err != nil {
		return protocolErrorf("header.timestamp", "invalid: %v", err)
	}

	if header.ProtocolVersion, err = optionalString(h, "header.protocol_version", "protocol_version"); err != nil {
		return err
	}
	if header.ProtocolVersion == "" {
		header.ProtocolVersion = ProtocolVersion
	}

	return nil
}

func decodeMetadata(md map[string]any, metadata *Metadata) error {
	if raw, ok := md["priority"]; ok && raw != nil {
		name, ok := raw.(string)
		if !ok {
			return protocolErrorf("metadata.priority", "expected string, got %T", raw)
		}
		priority, err := ParsePriority(name)
		if err != nil {
			return protocolErrorf("metadata.priority", "%v", err)
		}
		metadata.Priority = priority
	}

	if raw, ok := md["ttl"]; ok && raw != nil {
		seconds, err := toFloat(raw)
		if err != nil {
			return protocolErrorf("metadata.ttl", "%v", err)
		}
		if seconds < 0 {
			return protocolErrorf("metadata.ttl", "negative ttl %v", seconds)
		}
		metadata.TTL = time.Duration(math.Round(seconds * float64(time.Second)))
	}

	if raw, ok := md["retry_count"]; ok && raw != nil {
		count, err := toInt(raw)
		if err != nil {
			return protocolErrorf("metadata.retry_count", "%v", err)
		}
		metadata.RetryCount = count
	}

	if raw, ok := md["max_retries"]; ok && raw != nil {
		maxRetries, err := toInt(raw)
		if err != nil {
			return protocolErrorf("metadata.max_retries", "%v", err)
		}
		metadata.MaxRetries = maxRetries
	}

	if raw, ok := md["require_ack"]; ok && raw != nil {
		requireAck, ok := raw.(bool)
		if !ok {
			return protocolErrorf("metadata.require_ack", "expected bool, got %T", raw)
		}
		metadata.RequireAck = requireAck
	}

	if raw, ok := md["tags"]; ok && raw != nil {
		switch tags := raw.(type) {
		case []string:
			metadata.Tags = slices.Clone(tags)
		case []any:
			metadata.Tags = make([]string, 0, len(tags))
			for i, tag := range tags {
				s, ok := tag.(string)
				if !ok {
					return protocolErrorf("metadata.tags", "element %d: expected string, got %T", i, tag)
				}
				metadata.Tags = append(metadata.Tags, s)
			}
		default:
			return protocolErrorf("metadata.tags", "expected list, got %T", raw)
		}
	}

	return nil
}

func decodeBody(b map[string]any, messageType MessageType, body *Body) error {
	var err error

	switch messageType {
	case MessageTypeRequest:
		if body.Action, err = optionalString(b, "body.action", "action"); err != nil {
			return err
		}
		if body.Action == "" {
			return protocolErrorf("body.action", "missing")
		}
		body.Payload = b["payload"]

	case MessageTypeResponse:
		if raw, ok := b["success"]; ok && raw != nil {
			success, ok := raw.(bool)
			if !ok {
				return protocolErrorf("body.success", "expected bool, got %T", raw)
			}
			body.Success = success
		}
		body.Result = b["result"]
		if body.OriginalAction, err = optionalString(b, "body.original_action", "original_action"); err != nil {
			return err
		}

	case MessageTypeError:
		if body.ErrorCode, err = optionalString(b, "body.error_code", "error_code"); err != nil {
			return err
		}
		if body.ErrorCode == "" {
			return protocolErrorf("body.error_code", "missing")
		}
		if body.ErrorMessage, err = optionalString(b, "body.error_message", "error_message"); err != nil {
			return err
		}

	case MessageTypeEvent:
		if body.EventType, err = optionalString(b, "body.event_type", "event_type"); err != nil {
			return err
		}
		if body.EventType == "" {
			return protocolErrorf("body.event_type", "missing")
		}
		body.EventData = b["event_data"]
	}

	return nil
}

func (msg *Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(msg.ToMap())
}

func (msg *Message) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return protocolErrorf("", "invalid json: %v", err)
	}
	decoded, err := FromMap(m)
	if err != nil {
		return err
	}
	*msg = *decoded
	return nil
}

// ToStruct encodes the message as a protobuf Struct for Connect transport.
func (msg *Message) ToStruct() (*structpb.Struct, error) {
	data, err := json.Marshal(msg.ToMap())
	if err != nil {
		return nil, fmt.Errorf("failed to encode message %s: %w", msg.Header.MessageID, err)
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to encode message %s: %w", msg.Header.MessageID, err)
	}
	return s, nil
}

func FromStruct(s *structpb.Struct) (*Message, error) {
	if s == nil {
		return nil, protocolErrorf("", "envelope is nil")
	}
	return FromMap(s.AsMap())
}

func section(m map[string]any, key string, required bool) (map[string]any, error) {
	raw, ok := m[key]
	if !ok || raw == nil {
		if required {
			return nil, protocolErrorf(key, "missing")
		}
		return nil, nil
	}
	s, ok := raw.(map[string]any)
	if !ok {
		return nil, protocolErrorf(key, "expected object, got %T", raw)
	}
	return s, nil
}

func optionalString(m map[string]any, field, key string) (string, error) {
	raw, ok := m[key]
	if !ok || raw == nil {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", protocolErrorf(field, "expected string, got %T", raw)
	}
	return s, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	default:
		return 0, fmt.Errorf("expected number, got %T", v)
	}
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("expected integer, got %v", n)
		}
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		return int(i), err
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
}
