package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/mediagrab/api/internal/model"
)

func decode(t *testing.T, data []byte) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return m
}

func TestHub_BroadcastReachesSubscribersOfJob(t *testing.T) {
	hub := NewHub()
	a := hub.Subscribe("job-a")
	b := hub.Subscribe("job-b")

	hub.BroadcastProgress("job-a", 42, model.JobStatusRunning, "Downloading")

	select {
	case msg := <-a.Send:
		m := decode(t, msg)
		if m["type"] != model.WSMessageTypeProgress || m["progress"].(float64) != 42 {
			t.Errorf("unexpected message %v", m)
		}
	default:
		t.Fatal("subscriber of job-a got nothing")
	}
	select {
	case msg := <-b.Send:
		t.Fatalf("job-b received job-a message: %s", msg)
	default:
	}
}

func TestHub_LateSubscriberGetsLastState(t *testing.T) {
	hub := NewHub()
	hub.BroadcastComplete("job", &model.DownloadResponse{Success: true, File: "job-x.mp3"})

	c := hub.Subscribe("job")
	m := decode(t, <-c.Send)
	if m["type"] != model.WSMessageTypeComplete {
		t.Errorf("expected replayed completion, got %v", m)
	}

	hub.Forget("job")
	late := hub.Subscribe("job")
	select {
	case msg := <-late.Send:
		t.Errorf("forgotten job replayed %s", msg)
	default:
	}
}

func TestHub_UnsubscribeIsIdempotent(t *testing.T) {
	hub := NewHub()
	c := hub.Subscribe("job")
	hub.Unsubscribe(c)
	hub.Unsubscribe(c)

	if _, ok := <-c.Send; ok {
		t.Error("expected closed channel")
	}
	if hub.Subscribers("job") != 0 {
		t.Error("subscriber still registered")
	}
}

func TestHub_SlowConsumerDropped(t *testing.T) {
	hub := NewHub()
	c := hub.Subscribe("job")
	for i := 0; i <= sendBuffer; i++ {
		hub.BroadcastProgress("job", i, model.JobStatusRunning, "Downloading")
	}
	if hub.Subscribers("job") != 0 {
		t.Error("slow consumer was not dropped")
	}
	// dropping must not break a later unsubscribe
	hub.Unsubscribe(c)
}

func TestHub_ErrorMessage(t *testing.T) {
	hub := NewHub()
	c := hub.Subscribe("job")
	hub.BroadcastError("job", string(model.CodeExecutionFailed), "extractor exited with status 1")

	m := decode(t, <-c.Send)
	errObj := m["error"].(map[string]interface{})
	if errObj["code"] != "EXECUTION_FAILED" {
		t.Errorf("unexpected error payload %v", m)
	}
}

func waitForgotten(t *testing.T, hub *Hub, jobID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		hub.mu.Lock()
		_, ok := hub.last[jobID]
		hub.mu.Unlock()
		if !ok {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("state of %s was never dropped", jobID)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHub_TerminalStateExpires(t *testing.T) {
	hub := NewHub(WithTerminalRetention(20 * time.Millisecond))

	hub.BroadcastError("failed", string(model.CodeExecutionFailed), "extractor exited with status 1")
	hub.BroadcastComplete("done", &model.DownloadResponse{Success: true})
	hub.BroadcastProgress("running", 40, model.JobStatusRunning, "Downloading")

	waitForgotten(t, hub, "failed")
	waitForgotten(t, hub, "done")

	time.Sleep(50 * time.Millisecond)
	c := hub.Subscribe("running")
	select {
	case <-c.Send:
	default:
		t.Error("progress state of a running job should be kept")
	}
}

func TestHub_StaleExpiryKeepsNewerState(t *testing.T) {
	hub := NewHub(WithTerminalRetention(30 * time.Millisecond))

	hub.BroadcastError("job", string(model.CodeExecutionFailed), "first")
	hub.BroadcastProgress("job", 10, model.JobStatusRunning, "Downloading")
	time.Sleep(80 * time.Millisecond)

	c := hub.Subscribe("job")
	select {
	case msg := <-c.Send:
		if m := decode(t, msg); m["type"] != model.WSMessageTypeProgress {
			t.Errorf("unexpected replay %v", m)
		}
	default:
		t.Error("newer state was dropped by an older expiry")
	}
}
