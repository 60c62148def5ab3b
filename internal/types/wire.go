package types

import "encoding/json"

// Message type discriminators for the relay wire protocol. Frames are JSON
// objects with a "type" field in snake_case; payload fields live alongside
// it at the top level (not nested), matching the envelope style already
// used for local WebSocket broadcasts.
const (
	TypeListJobs          = "list_jobs"
	TypeRunJob             = "run_job"
	TypePauseJob           = "pause_job"
	TypeResumeJob          = "resume_job"
	TypeStopJob            = "stop_job"
	TypeSendInput          = "send_input"
	TypeGetRunHistory      = "get_run_history"
	TypeAnswerQuestion     = "answer_question"
	TypeSetAutoYesPanes    = "set_auto_yes_panes"

	TypeJobsList      = "jobs_list"
	TypeStatusUpdate  = "status_update"
	TypeLogChunk      = "log_chunk"
	TypeJobsChanged   = "jobs_changed"
	TypeRunHistory    = "run_history"
	TypeClaudeQuestions = "claude_questions"
	TypeJobNotification = "job_notification"
	TypeAck           = "_ack" // sent as-is for every command's ack; the command name is not prepended

	TypeWelcome       = "welcome"
	TypeError         = "error"
	TypeDesktopStatus = "desktop_status"
)

// Broker error codes (spec §6).
const (
	ErrDesktopOffline       = "DESKTOP_OFFLINE"
	ErrJobNotFound          = "JOB_NOT_FOUND"
	ErrUnauthorized         = "UNAUTHORIZED"
	ErrSubscriptionExpired  = "SUBSCRIPTION_EXPIRED"
	ErrRateLimited          = "RATE_LIMITED"
	ErrInternal             = "INTERNAL_ERROR"
	ErrInvalidMessage       = "INVALID_MESSAGE"
)

// Envelope is the minimal shape every frame shares: a type discriminator and
// an optional request id used to correlate acks. Raw is skipped by
// encoding/json; handlers decode type-specific fields by unmarshalling the
// whole frame again into the variant they know.
type Envelope struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Raw  json.RawMessage `json:"-"`
}

// ClientMessage variants (mobile/remote client -> broker -> desktop).

type ListJobsMsg struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type RunJobMsg struct {
	Type   string            `json:"type"`
	ID     string            `json:"id"`
	Name   string            `json:"name"`
	Params map[string]string `json:"params,omitempty"`
}

type PauseJobMsg struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Name string `json:"name"`
}

type ResumeJobMsg struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Name string `json:"name"`
}

type StopJobMsg struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Name string `json:"name"`
}

type SendInputMsg struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Name string `json:"name"`
	Text string `json:"text"`
}

type GetRunHistoryMsg struct {
	Type  string `json:"type"`
	ID    string `json:"id"`
	Name  string `json:"name"`
	Limit int    `json:"limit"`
}

type AnswerQuestionMsg struct {
	Type       string `json:"type"`
	ID         string `json:"id"`
	QuestionID string `json:"question_id"`
	PaneID     string `json:"pane_id"`
	Answer     string `json:"answer"`
}

type SetAutoYesPanesMsg struct {
	Type    string   `json:"type"`
	ID      string   `json:"id"`
	PaneIDs []string `json:"pane_ids"`
}

// DesktopMessage variants (desktop -> broker -> mobiles).

type JobsListMsg struct {
	Type     string               `json:"type"`
	ID       string               `json:"id,omitempty"`
	Jobs     []Job                `json:"jobs"`
	Statuses map[string]JobStatus `json:"statuses"`
}

type StatusUpdateMsg struct {
	Type   string    `json:"type"`
	Name   string    `json:"name"`
	Status JobStatus `json:"status"`
}

type LogChunkMsg struct {
	Type      string `json:"type"`
	Name      string `json:"name"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

type JobsChangedMsg struct {
	Type     string               `json:"type"`
	Jobs     []Job                `json:"jobs"`
	Statuses map[string]JobStatus `json:"statuses"`
}

type RunHistoryMsg struct {
	Type string      `json:"type"`
	ID   string      `json:"id"`
	Runs []RunRecord `json:"runs"`
}

type AckMsg struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type ClaudeQuestionsMsg struct {
	Type      string     `json:"type"`
	Questions []Question `json:"questions"`
}

type JobNotificationMsg struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Event   string `json:"event"`
	RunID   string `json:"run_id"`
}

// ServerMessage variants (broker -> any client).

type WelcomeMsg struct {
	Type          string `json:"type"`
	ConnectionID  string `json:"connection_id"`
	ServerVersion string `json:"server_version"`
}

type ErrorMsg struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type DesktopStatusMsg struct {
	Type       string `json:"type"`
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name"`
	Online     bool   `json:"online"`
}
