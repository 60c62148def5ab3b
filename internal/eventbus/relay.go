package eventbus

import (
	"time"

	"github.com/cwt-dev/cwtd/internal/types"
)

// PublishRelay publishes job lifecycle callbacks onto a Bus instead of
// calling a fixed set of consumers directly. It satisfies both
// engine.Relay and monitor.Relay by structure.
type PublishRelay struct {
	Bus *Bus
}

func (p *PublishRelay) SendStatus(name string, status types.JobStatus) {
	ev := newEvent(KindStatus, name)
	ev.Status = &status
	p.Bus.Publish(SubjectStatus, ev)
}

func (p *PublishRelay) SendJobEvent(name, event, runID string) {
	ev := newEvent(KindJobEvent, name)
	ev.JobEvent = event
	ev.RunID = runID
	p.Bus.Publish(SubjectJobEvent, ev)
}

func (p *PublishRelay) SendLogChunk(name, content string, ts time.Time) {
	ev := newEvent(KindLogChunk, name)
	ev.Content = content
	ev.Timestamp = ts
	p.Bus.Publish(SubjectLogChunk, ev)
}

func (p *PublishRelay) SendQuestions(qs []types.Question) {
	jobName := ""
	if len(qs) > 0 {
		jobName = qs[0].JobName
	}
	ev := newEvent(KindQuestions, jobName)
	ev.Questions = qs
	p.Bus.Publish(SubjectQuestions, ev)
}

// RelayTarget is satisfied by anything that wants to receive lifecycle
// events forwarded from the bus, e.g. internal/relayclient.Client.
type RelayTarget interface {
	SendStatus(name string, status types.JobStatus)
	SendJobEvent(name, event, runID string)
	SendLogChunk(name, content string, ts time.Time)
	SendQuestions(qs []types.Question)
}

// WireRelay subscribes target to every job-lifecycle subject on bus,
// forwarding each decoded Event to the matching method. Multiple targets
// may be wired to the same bus independently, without knowing about each
// other; cmd/cwtd wires the relay client.
func WireRelay(bus *Bus, target RelayTarget) (unsubscribe func(), err error) {
	var unsubs []func()
	cleanup := func() {
		for _, u := range unsubs {
			u()
		}
	}

	u, err := bus.Subscribe(SubjectStatus, func(ev Event) {
		if ev.Status != nil {
			target.SendStatus(ev.JobName, *ev.Status)
		}
	})
	if err != nil {
		return nil, err
	}
	unsubs = append(unsubs, u)

	u, err = bus.Subscribe(SubjectJobEvent, func(ev Event) {
		target.SendJobEvent(ev.JobName, ev.JobEvent, ev.RunID)
	})
	if err != nil {
		cleanup()
		return nil, err
	}
	unsubs = append(unsubs, u)

	u, err = bus.Subscribe(SubjectLogChunk, func(ev Event) {
		target.SendLogChunk(ev.JobName, ev.Content, ev.Timestamp)
	})
	if err != nil {
		cleanup()
		return nil, err
	}
	unsubs = append(unsubs, u)

	u, err = bus.Subscribe(SubjectQuestions, func(ev Event) {
		target.SendQuestions(ev.Questions)
	})
	if err != nil {
		cleanup()
		return nil, err
	}
	unsubs = append(unsubs, u)

	return cleanup, nil
}
