package engine

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cwt-dev/cwtd/internal/types"
)

// Reattach scans the multiplexer for busy panes left over from a previous
// process lifetime and binds a Monitor to each one whose window name
// matches an enabled Prompt/Folder job's project window, so an orphaned
// run survives a daemon restart instead of being silently abandoned.
func (e *Engine) Reattach(ctx context.Context, jobs []types.Job) {
	busy, err := e.Panes.ListBusyPanes(ctx)
	if err != nil {
		log.Printf("[ENGINE] reattach scan failed: %v", err)
		return
	}

	claimed := map[string]bool{}
	for key, panes := range busy {
		session, window, ok := strings.Cut(key, ":")
		if !ok || len(panes) == 0 {
			continue
		}
		if !strings.HasPrefix(window, "cwt-") {
			continue
		}

		job := e.findReattachCandidate(jobs, window, claimed)
		if job == nil {
			continue
		}
		claimed[job.Name] = true

		pane := panes[0]
		runID := "reattach-" + uuid.New().String()
		now := time.Now()

		status := types.Running(runID, now).WithPane(pane, session)
		e.Statuses.Set(job.Name, status)
		e.Relay.SendStatus(job.Name, status)

		if err := e.History.Insert(types.RunRecord{ID: runID, JobName: job.Name, StartedAt: now, Trigger: types.TriggerReattach}); err != nil {
			log.Printf("[ENGINE] warning: failed to record reattach run for %s: %v", job.Name, err)
		}

		target := types.NotifyApp
		bits := job.NotifyApp
		if job.ChatRouteID != "" {
			target = types.NotifyChat
			bits = job.NotifyChat
		}

		e.Monitor.Start(ctx, MonitorParams{
			Session:     session,
			Pane:        pane,
			RunID:       runID,
			JobName:     job.Name,
			Slug:        job.Slug,
			ChatRouteID: job.ChatRouteID,
			NotifyBits:  bits,
			NotifyTgt:   target,
		})
		log.Printf("[ENGINE] reattached %s to pane %s in %s", job.Name, pane, key)
	}
}

func (e *Engine) findReattachCandidate(jobs []types.Job, window string, claimed map[string]bool) *types.Job {
	for i := range jobs {
		job := &jobs[i]
		if !job.Enabled || claimed[job.Name] {
			continue
		}
		if job.Kind != types.KindPrompt && job.Kind != types.KindFolder {
			continue
		}
		if e.Statuses.Get(job.Name).Kind == types.StatusRunning {
			continue
		}
		if projectWindowName(*job) == window {
			return job
		}
	}
	return nil
}
