package registry

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

// ToMap renders an AgentInfo in the wire layout shared by the Connect
// service and its clients. Values are restricted to structpb-compatible
// types.
func (a AgentInfo) ToMap() map[string]any {
	capabilities := make([]any, len(a.Capabilities))
	for i, c := range a.Capabilities {
		capabilities[i] = map[string]any{
			"name":        c.Name,
			"version":     c.Version,
			"description": c.Description,
		}
	}

	var heartbeat any
	if !a.LastHeartbeat.IsZero() {
		heartbeat = a.LastHeartbeat.UTC().Format(time.RFC3339Nano)
	}

	return map[string]any{
		"agent_id":       a.AgentID,
		"name":           a.Name,
		"description":    a.Description,
		"endpoint":       a.Endpoint,
		"capabilities":   capabilities,
		"status":         string(a.Status),
		"last_heartbeat": heartbeat,
	}
}

// AgentInfoFromMap is the inverse of ToMap.
func AgentInfoFromMap(data map[string]any) (AgentInfo, error) {
	info := AgentInfo{
		AgentID:     stringField(data, "agent_id"),
		Name:        stringField(data, "name"),
		Description: stringField(data, "description"),
		Endpoint:    stringField(data, "endpoint"),
		Status:      Status(stringField(data, "status")),
	}

	if raw, ok := data["capabilities"]; ok && raw != nil {
		list, ok := raw.([]any)
		if !ok {
			return AgentInfo{}, fmt.Errorf("%w: capabilities must be a list", ErrInvalidRegistration)
		}
		info.Capabilities = make([]Capability, 0, len(list))
		for i, item := range list {
			entry, ok := item.(map[string]any)
			if !ok {
				return AgentInfo{}, fmt.Errorf("%w: capability %d must be an object", ErrInvalidRegistration, i)
			}
			info.Capabilities = append(info.Capabilities, Capability{
				Name:        stringField(entry, "name"),
				Version:     stringField(entry, "version"),
				Description: stringField(entry, "description"),
			})
		}
	}

	if ts := stringField(data, "last_heartbeat"); ts != "" {
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return AgentInfo{}, fmt.Errorf("%w: last_heartbeat: %v", ErrInvalidRegistration, err)
		}
		info.LastHeartbeat = parsed
	}

	return info, nil
}

func agentsToStruct(agents []AgentInfo) (*structpb.Struct, error) {
	list := make([]any, len(agents))
	for i, a := range agents {
		list[i] = a.ToMap()
	}
	return structpb.NewStruct(map[string]any{
		"agents": list,
		"count":  len(agents),
	})
}

func agentsFromStruct(s *structpb.Struct) ([]AgentInfo, error) {
	raw, _ := s.AsMap()["agents"].([]any)
	agents := make([]AgentInfo, 0, len(raw))
	for _, item := range raw {
		entry, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("malformed agent entry %v", item)
		}
		info, err := AgentInfoFromMap(entry)
		if err != nil {
			return nil, err
		}
		agents = append(agents, info)
	}
	return agents, nil
}

func stringField(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}
