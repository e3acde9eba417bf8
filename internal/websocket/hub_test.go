package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/makeasinger/jobctl/internal/model"
)

func receive(t *testing.T, c *Client) map[string]interface{} {
	t.Helper()
	select {
	case data, ok := <-c.Send:
		if !ok {
			t.Fatal("send channel closed")
		}
		var msg map[string]interface{}
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return nil
}

func TestHub_BroadcastsToJobSubscribers(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	watcher := &Client{JobID: "7", Send: make(chan []byte, 4)}
	other := &Client{JobID: "8", Send: make(chan []byte, 4)}
	hub.Register(watcher)
	hub.Register(other)

	hub.JobChanged(&model.Job{ID: "7", State: model.JobStateActive, Priority: -10})
	msg := receive(t, watcher)
	if msg["type"] != model.WSMessageTypeState || msg["jobId"] != "7" || msg["state"] != "active" {
		t.Errorf("unexpected message %v", msg)
	}
	if msg["priority"] != float64(-10) {
		t.Errorf("expected priority -10, got %v", msg["priority"])
	}

	hub.JobRemoved("7")
	msg = receive(t, watcher)
	if msg["type"] != model.WSMessageTypeRemoved {
		t.Errorf("expected removed message, got %v", msg)
	}

	select {
	case data := <-other.Send:
		t.Errorf("subscriber of another job got %s", data)
	default:
	}
}

func TestHub_Unregister(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	c := &Client{JobID: "1", Send: make(chan []byte, 1)}
	hub.Register(c)
	hub.Unregister(c)

	select {
	case _, ok := <-c.Send:
		if ok {
			t.Error("expected send channel to be closed")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("send channel not closed")
	}
	if n := hub.Subscribers("1"); n != 0 {
		t.Errorf("expected no subscribers, got %d", n)
	}
}
