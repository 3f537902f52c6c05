package orchestrator_test

import (
	"errors"
	"testing"

	"github.com/tailored-agentic-units/sentiment/orchestrator"
)

type recorder struct {
	messages []orchestrator.StreamMessage
	fail     bool
}

func (r *recorder) Emit(msg orchestrator.StreamMessage) error {
	if r.fail {
		return errors.New("broken pipe")
	}
	r.messages = append(r.messages, msg)
	return nil
}

func TestStream_SingleTerminal(t *testing.T) {
	rec := &recorder{}
	out := orchestrator.NewStream(rec)

	out.Send(orchestrator.StreamMessage{Type: orchestrator.TypeStatus})
	if !out.Send(orchestrator.StreamMessage{Type: orchestrator.TypeResult}) {
		t.Fatal("first terminal message should be written")
	}
	if out.Send(orchestrator.StreamMessage{Type: orchestrator.TypeError}) {
		t.Error("second terminal message must be dropped")
	}
	if out.Send(orchestrator.StreamMessage{Type: orchestrator.TypeLog}) {
		t.Error("messages after the terminal must be dropped")
	}

	if len(rec.messages) != 2 {
		t.Fatalf("written = %d, want 2", len(rec.messages))
	}
	if !out.Finished() {
		t.Error("Finished() should be true after a terminal message")
	}

	sent, dropped := out.Counts()
	if sent != 2 || dropped != 2 {
		t.Errorf("Counts() = %d/%d, want 2/2", sent, dropped)
	}
}

func TestStream_WriteFailureSwallowed(t *testing.T) {
	rec := &recorder{fail: true}
	out := orchestrator.NewStream(rec)

	if out.Send(orchestrator.StreamMessage{Type: orchestrator.TypeStatus}) {
		t.Error("failed write should report false")
	}
	if !out.Gone() {
		t.Fatal("write failure should mark the client gone")
	}

	rec.fail = false
	if out.Send(orchestrator.StreamMessage{Type: orchestrator.TypeLog}) {
		t.Error("no write should be attempted after the client is gone")
	}
	if len(rec.messages) != 0 {
		t.Errorf("written = %d, want 0", len(rec.messages))
	}
}

func TestStream_Close(t *testing.T) {
	rec := &recorder{}
	out := orchestrator.NewStream(rec)
	out.Close()

	out.Send(orchestrator.StreamMessage{Type: orchestrator.TypeResult})

	if len(rec.messages) != 0 {
		t.Error("closed stream must not write")
	}
	if !out.Finished() {
		t.Error("terminal offered to a closed stream still ends the session")
	}
}
