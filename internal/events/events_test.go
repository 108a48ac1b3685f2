package events

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

type recorder struct {
	events []JobEvent
}

func (r *recorder) Publish(_ context.Context, evt JobEvent) {
	r.events = append(r.events, evt)
}

func TestMultiFansOut(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	Multi{a, nil, Nop{}, b}.Publish(context.Background(), JobEvent{Type: TypeCompleted, JobID: "job-1"})
	if len(a.events) != 1 || len(b.events) != 1 || b.events[0].JobID != "job-1" {
		t.Fatalf("fan out failed: %v %v", a.events, b.events)
	}
}

func TestBuildPublishing(t *testing.T) {
	at := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	msg, err := buildPublishing(JobEvent{Type: TypeFailed, JobID: "job-1", Status: "failed", Error: "nsfw", At: at})
	if err != nil {
		t.Fatalf("buildPublishing: %v", err)
	}
	if msg.ContentType != "application/json" || msg.DeliveryMode != amqp.Persistent || msg.MessageId == "" || !msg.Timestamp.Equal(at) {
		t.Fatalf("unexpected publishing: %#v", msg)
	}
	var decoded JobEvent
	if err := json.Unmarshal(msg.Body, &decoded); err != nil || decoded.Error != "nsfw" {
		t.Fatalf("body = %s (%v)", msg.Body, err)
	}
	if RoutingKey(TypeFailed) != "job.failed" {
		t.Fatalf("routing key = %q", RoutingKey(TypeFailed))
	}
}

func TestHubDeliversFilteredEvents(t *testing.T) {
	hub := NewHub(zerolog.Nop(), nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?job_id=job-a"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	hub.Publish(context.Background(), JobEvent{Type: TypeProcessing, JobID: "job-b", Status: "processing"})
	hub.Publish(context.Background(), JobEvent{Type: TypeCompleted, JobID: "job-a", Status: "completed", ImageCount: 2})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var evt JobEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if evt.JobID != "job-a" || evt.Type != TypeCompleted || evt.ImageCount != 2 {
		t.Fatalf("received %#v, want job-a completed", evt)
	}
}
