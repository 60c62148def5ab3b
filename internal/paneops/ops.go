// Package paneops provides centralized tmux CLI operations with rate
// limiting, so concurrent job dispatch never floods the multiplexer with
// back-to-back invocations.
package paneops

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/cwt-dev/cwtd/internal/cwterrors"
	"github.com/cwt-dev/cwtd/internal/types"
)

// interactiveShells are the commands treated as "not busy". A pane running
// any other command is considered live.
var interactiveShells = map[string]bool{
	"bash": true,
	"zsh":  true,
	"fish": true,
	"sh":   true,
	"dash": true,
}

// Ops is a thread-safe façade over the tmux CLI.
type Ops struct {
	limiter        *rate.Limiter
	commandTimeout time.Duration
	binary         string
}

var (
	instance     *Ops
	instanceOnce sync.Once
)

// Get returns the singleton Ops instance.
func Get() *Ops {
	instanceOnce.Do(func() {
		instance = &Ops{
			limiter:        rate.NewLimiter(rate.Every(200*time.Millisecond), 1),
			commandTimeout: 10 * time.Second,
			binary:         "tmux",
		}
	})
	return instance
}

func (o *Ops) run(ctx context.Context, args ...string) ([]byte, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, o.commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, o.binary, args...)
	output, err := cmd.CombinedOutput()

	if ctx.Err() == context.DeadlineExceeded {
		return nil, cwterrors.NewCliError(string(output), ctx.Err())
	}
	if err != nil {
		if _, ok := err.(*exec.Error); ok {
			return nil, cwterrors.NewNotInstalled(err)
		}
		stderr := strings.TrimSpace(string(output))
		if strings.Contains(stderr, "can't find") || strings.Contains(stderr, "no such") {
			return nil, cwterrors.NewNotFound(err)
		}
		return nil, cwterrors.NewCliError(stderr, err)
	}
	return output, nil
}

// EnsureSession creates the named session if it does not already exist.
// Idempotent.
func (o *Ops) EnsureSession(ctx context.Context, name string) error {
	_, err := o.run(ctx, "has-session", "-t", name)
	if err == nil {
		return nil
	}
	_, err = o.run(ctx, "new-session", "-d", "-s", name)
	return err
}

// WindowExists reports whether a window with the given name exists in session.
func (o *Ops) WindowExists(ctx context.Context, session, window string) bool {
	out, err := o.run(ctx, "list-windows", "-t", session, "-F", "#{window_name}")
	if err != nil {
		return false
	}
	for _, line := range strings.Split(string(out), "\n") {
		if strings.TrimSpace(line) == window {
			return true
		}
	}
	return false
}

// EnsureWindow creates window in session with env pre-seeded via tmux
// set-environment before the window's shell starts. The env map is
// established once at window birth and cannot be mutated later.
func (o *Ops) EnsureWindow(ctx context.Context, session, window string, env map[string]string) error {
	if o.WindowExists(ctx, session, window) {
		return nil
	}
	for k, v := range env {
		if _, err := o.run(ctx, "set-environment", "-t", session, k, v); err != nil {
			return err
		}
	}
	_, err := o.run(ctx, "new-window", "-t", session, "-n", window)
	return err
}

// SplitPane always produces a fresh pane in session:window so concurrent
// jobs in the same window do not collide.
func (o *Ops) SplitPane(ctx context.Context, session, window string, env map[string]string) (types.PaneHandle, error) {
	for k, v := range env {
		if _, err := o.run(ctx, "set-environment", "-t", session, k, v); err != nil {
			return "", err
		}
	}
	target := session + ":" + window
	out, err := o.run(ctx, "split-window", "-t", target, "-P", "-F", "#{pane_id}")
	if err != nil {
		return "", err
	}
	return types.PaneHandle(strings.TrimSpace(string(out))), nil
}

// InitialPane returns the pane handle of window's first (birth) pane.
func (o *Ops) InitialPane(ctx context.Context, session, window string) (types.PaneHandle, error) {
	target := session + ":" + window
	out, err := o.run(ctx, "list-panes", "-t", target, "-F", "#{pane_id}")
	if err != nil {
		return "", err
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) == 0 || lines[0] == "" {
		return "", cwterrors.NewNotFound(nil)
	}
	return types.PaneHandle(lines[0]), nil
}

// SendLine appends a newline after text; text is shell-quoted by the caller.
func (o *Ops) SendLine(ctx context.Context, pane types.PaneHandle, text string) error {
	_, err := o.run(ctx, "send-keys", "-t", string(pane), text, "Enter")
	return err
}

// SendRaw types text into pane without appending a newline unless the
// caller embedded one. Used to relay chat input into an interactive pane.
func (o *Ops) SendRaw(ctx context.Context, pane types.PaneHandle, text string) error {
	_, err := o.run(ctx, "send-keys", "-t", string(pane), "-l", text)
	return err
}

// CaptureTail returns pane's visible screen preceded by up to `lines` lines
// of scrollback history (capture-pane -S -N); the result is not trimmed to
// `lines` lines.
func (o *Ops) CaptureTail(ctx context.Context, pane types.PaneHandle, lines int) (string, error) {
	out, err := o.run(ctx, "capture-pane", "-t", string(pane), "-p", "-S", "-"+strconv.Itoa(lines))
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// CaptureFull returns the entire scrollback buffer of pane.
func (o *Ops) CaptureFull(ctx context.Context, pane types.PaneHandle) (string, error) {
	out, err := o.run(ctx, "capture-pane", "-t", string(pane), "-p", "-S", "-")
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// IsBusy reports whether pane's current foreground command is not a known
// interactive shell. This is the canonical liveness signal.
func (o *Ops) IsBusy(ctx context.Context, pane types.PaneHandle) (bool, error) {
	out, err := o.run(ctx, "display-message", "-p", "-t", string(pane), "#{pane_current_command}")
	if err != nil {
		return false, err
	}
	cmd := strings.TrimSpace(string(out))
	return !interactiveShells[cmd], nil
}

// Kill destroys pane. Idempotent: killing an already-gone pane returns nil.
func (o *Ops) Kill(ctx context.Context, pane types.PaneHandle) error {
	_, err := o.run(ctx, "kill-pane", "-t", string(pane))
	if pde, ok := err.(*cwterrors.PaneDriverError); ok && pde.Kind == cwterrors.PaneNotFound {
		return nil
	}
	return err
}

// ListBusyPanes returns pane handles grouped by session:window for every
// pane whose current command is non-shell, used by the reattach scan.
func (o *Ops) ListBusyPanes(ctx context.Context) (map[string][]types.PaneHandle, error) {
	out, err := o.run(ctx, "list-panes", "-a", "-F", "#{session_name}:#{window_name}\t#{pane_id}\t#{pane_current_command}")
	if err != nil {
		return nil, err
	}
	result := map[string][]types.PaneHandle{}
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 3 {
			continue
		}
		if interactiveShells[fields[2]] {
			continue
		}
		key := fields[0]
		result[key] = append(result[key], types.PaneHandle(fields[1]))
	}
	return result, nil
}
