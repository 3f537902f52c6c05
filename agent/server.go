package agent

import (
	"encoding/json"
	"net/http"

	"connectrpc.com/connect"

	"github.com/tailored-agentic-units/sentiment/hub"
)

type health struct {
	Status       string   `json:"status"`
	AgentID      string   `json:"agent_id"`
	Name         string   `json:"name"`
	Capabilities []string `json:"capabilities"`
}

// Mux serves the agent Connect service and a GET /healthz check.
func (a *Agent) Mux(opts ...connect.HandlerOption) *http.ServeMux {
	mux := http.NewServeMux()

	path, handler := hub.NewAgentHandler(a.Handle, opts...)
	mux.Handle(path, handler)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		info := a.Info()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(health{
			Status:       "ok",
			AgentID:      info.AgentID,
			Name:         info.Name,
			Capabilities: info.CapabilityNames(),
		})
	})

	return mux
}
