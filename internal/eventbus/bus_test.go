package eventbus

import (
	"testing"
	"time"

	"github.com/cwt-dev/cwtd/internal/types"
)

func TestPublishSubscribeRoundTrip(t *testing.T) {
	bus, err := Start(ServerConfig{Port: -1})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer bus.Close()

	received := make(chan Event, 1)
	unsubscribe, err := bus.Subscribe(SubjectStatus, func(ev Event) {
		received <- ev
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer unsubscribe()

	status := types.Running("run-1", time.Now())
	ev := newEvent(KindStatus, "build")
	ev.Status = &status
	bus.Publish(SubjectStatus, ev)

	select {
	case got := <-received:
		if got.JobName != "build" || got.Status == nil || got.Status.RunID != "run-1" {
			t.Fatalf("unexpected event: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published event")
	}
}

type fakeRelayTarget struct {
	statuses  []string
	jobEvents []string
	logs      []string
	questions int
}

func (f *fakeRelayTarget) SendStatus(name string, status types.JobStatus) {
	f.statuses = append(f.statuses, name)
}

func (f *fakeRelayTarget) SendJobEvent(name, event, runID string) {
	f.jobEvents = append(f.jobEvents, name+":"+event)
}

func (f *fakeRelayTarget) SendLogChunk(name, content string, ts time.Time) {
	f.logs = append(f.logs, content)
}

func (f *fakeRelayTarget) SendQuestions(qs []types.Question) {
	f.questions += len(qs)
}

func TestWireRelayForwardsEveryLifecycleSubject(t *testing.T) {
	bus, err := Start(ServerConfig{Port: -1})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer bus.Close()

	target := &fakeRelayTarget{}
	unsubscribe, err := WireRelay(bus, target)
	if err != nil {
		t.Fatalf("WireRelay failed: %v", err)
	}
	defer unsubscribe()

	pub := &PublishRelay{Bus: bus}
	pub.SendStatus("build", types.Idle())
	pub.SendJobEvent("build", "finished", "run-1")
	pub.SendLogChunk("build", "hello", time.Now())
	pub.SendQuestions([]types.Question{{JobName: "build", QuestionID: "q1"}})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(target.statuses) == 1 && len(target.jobEvents) == 1 && len(target.logs) == 1 && target.questions == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected all four events to be forwarded, got %+v", target)
}
