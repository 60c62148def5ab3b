// Package ipc exposes a local Unix domain socket carrying line-delimited
// JSON commands from a sibling CLI (cwtctl) or TUI to the daemon: ping,
// list jobs, run/pause/resume/restart a job by name, and a status snapshot.
package ipc

import "github.com/cwt-dev/cwtd/internal/types"

// Command names, the closed set the socket accepts.
const (
	CmdPing         = "ping"
	CmdListJobs     = "list_jobs"
	CmdRunJob       = "run_job"
	CmdPauseJob     = "pause_job"
	CmdResumeJob    = "resume_job"
	CmdRestartJob   = "restart_job"
	CmdGetStatus    = "get_status"
	CmdOpenSettings = "open_settings"
)

// Response types.
const (
	RespPong   = "pong"
	RespOK     = "ok"
	RespJobs   = "jobs"
	RespStatus = "status"
	RespError  = "error"
)

// Command is one line of request JSON.
type Command struct {
	Cmd  string `json:"cmd"`
	Name string `json:"name,omitempty"`
}

// Response is one line of reply JSON.
type Response struct {
	Type     string                     `json:"type"`
	Jobs     []string                   `json:"jobs,omitempty"`
	Statuses map[string]types.JobStatus `json:"statuses,omitempty"`
	Error    string                     `json:"error,omitempty"`
}

func ok() Response                { return Response{Type: RespOK} }
func pong() Response              { return Response{Type: RespPong} }
func errResp(msg string) Response { return Response{Type: RespError, Error: msg} }
