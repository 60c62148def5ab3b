package relayclient

import (
	"context"
	"encoding/json"
	"log"

	"github.com/gorilla/websocket"

	"github.com/cwt-dev/cwtd/internal/types"
)

// handleIncoming decodes one frame forwarded by the broker (originally
// sent by a mobile client) and replies with the matching ack/response.
func (c *Client) handleIncoming(ctx context.Context, conn *websocket.Conn, data []byte) {
	var env types.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Printf("[RELAY] ignoring malformed frame: %v", err)
		return
	}

	switch env.Type {
	case types.TypeListJobs:
		var msg types.ListJobsMsg
		json.Unmarshal(data, &msg)
		c.send(conn, types.JobsListMsg{Type: types.TypeJobsList, ID: msg.ID, Jobs: c.Jobs.Jobs(), Statuses: c.Statuses.All()})

	case types.TypeRunJob:
		var msg types.RunJobMsg
		json.Unmarshal(data, &msg)
		job, ok := c.Jobs.FindByName(msg.Name)
		if !ok {
			c.ack(conn, msg.ID, false, "job not found: "+msg.Name)
			return
		}
		go c.Engine.Execute(context.Background(), job, types.TriggerRemote, msg.Params)
		c.ack(conn, msg.ID, true, "")

	case types.TypePauseJob:
		var msg types.PauseJobMsg
		json.Unmarshal(data, &msg)
		status := c.Statuses.Get(msg.Name)
		if status.Kind != types.StatusRunning {
			c.ack(conn, msg.ID, false, "job is not running")
			return
		}
		c.Statuses.Set(msg.Name, types.Paused())
		c.ack(conn, msg.ID, true, "")

	case types.TypeResumeJob:
		var msg types.ResumeJobMsg
		json.Unmarshal(data, &msg)
		status := c.Statuses.Get(msg.Name)
		if status.Kind != types.StatusPaused {
			c.ack(conn, msg.ID, false, "job is not paused")
			return
		}
		c.Statuses.Set(msg.Name, types.Idle())
		c.ack(conn, msg.ID, true, "")

	case types.TypeStopJob:
		var msg types.StopJobMsg
		json.Unmarshal(data, &msg)
		status := c.Statuses.Get(msg.Name)
		switch status.Kind {
		case types.StatusRunning:
			if status.Pane != "" && c.Panes != nil {
				c.Panes.Kill(ctx, status.Pane)
			}
			c.Statuses.Set(msg.Name, types.Idle())
			c.ack(conn, msg.ID, true, "")
		case types.StatusPaused:
			c.Statuses.Set(msg.Name, types.Idle())
			c.ack(conn, msg.ID, true, "")
		default:
			c.ack(conn, msg.ID, false, "job is not running")
		}

	case types.TypeSendInput:
		var msg types.SendInputMsg
		json.Unmarshal(data, &msg)
		status := c.Statuses.Get(msg.Name)
		if status.Kind != types.StatusRunning || status.Pane == "" {
			c.ack(conn, msg.ID, false, "job has no active pane")
			return
		}
		if c.Panes == nil || c.Panes.SendLine(ctx, status.Pane, msg.Text) != nil {
			c.ack(conn, msg.ID, false, "failed to send input")
			return
		}
		c.ack(conn, msg.ID, true, "")

	case types.TypeGetRunHistory:
		var msg types.GetRunHistoryMsg
		json.Unmarshal(data, &msg)
		limit := msg.Limit
		if limit <= 0 {
			limit = 20
		}
		runs, err := c.History.GetByJob(msg.Name, limit)
		if err != nil {
			log.Printf("[RELAY] failed to load run history for %s: %v", msg.Name, err)
			runs = nil
		}
		c.send(conn, types.RunHistoryMsg{Type: types.TypeRunHistory, ID: msg.ID, Runs: runs})

	default:
		log.Printf("[RELAY] ignoring unknown frame type %q", env.Type)
	}
}

func (c *Client) ack(conn *websocket.Conn, id string, success bool, errText string) {
	c.send(conn, types.AckMsg{Type: types.TypeAck, ID: id, Success: success, Error: errText})
}
