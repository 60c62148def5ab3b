package eventbus

import (
	"time"

	"github.com/google/uuid"

	"github.com/cwt-dev/cwtd/internal/types"
)

// Kind discriminates the lifecycle events carried on the bus.
type Kind string

const (
	KindStatus    Kind = "status"    // job status transition
	KindLogChunk  Kind = "log_chunk" // incremental pane output
	KindQuestions Kind = "questions" // detected interactive prompt(s)
	KindJobEvent  Kind = "job_event" // finished/failed marker
)

// Subjects a subscriber can bind to. All job events are published under the
// "job." prefix so a subscriber can also wildcard-subscribe to "job.>".
const (
	SubjectStatus    = "job.status"
	SubjectLogChunk  = "job.log"
	SubjectQuestions = "job.questions"
	SubjectJobEvent  = "job.event"
)

// Event is the envelope every subject carries.
type Event struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	JobName   string    `json:"job_name"`
	CreatedAt time.Time `json:"created_at"`

	Status    *types.JobStatus `json:"status,omitempty"`
	Content   string           `json:"content,omitempty"`
	Timestamp time.Time        `json:"timestamp,omitempty"`
	Questions []types.Question `json:"questions,omitempty"`
	JobEvent  string           `json:"job_event,omitempty"`
	RunID     string           `json:"run_id,omitempty"`
}

func newEvent(kind Kind, jobName string) Event {
	return Event{ID: uuid.New().String(), Kind: kind, JobName: jobName, CreatedAt: time.Now()}
}
