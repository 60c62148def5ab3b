// Package notify shows a local desktop toast when a job needs human
// attention. Toasts only render on Windows; elsewhere NotifyApp is a no-op,
// matching the runtime.GOOS guard the rest of this codebase's ambient
// notification code uses.
package notify

import (
	"fmt"
	"runtime"

	"github.com/go-toast/toast"
)

// Notifier pushes Windows toast notifications for job lifecycle events.
type Notifier struct {
	appID        string
	dashboardURL string
}

// New creates a Notifier. appID and dashboardURL fall back to sane defaults
// when empty.
func New(appID, dashboardURL string) *Notifier {
	if appID == "" {
		appID = "cwtd"
	}
	if dashboardURL == "" {
		dashboardURL = "http://localhost:8080"
	}
	return &Notifier{appID: appID, dashboardURL: dashboardURL}
}

// NotifyApp reports a job lifecycle event. Recognized events are
// "question" (a job is waiting on interactive input) and "finished"
// (a job has finished running); anything else gets a generic toast.
func (n *Notifier) NotifyApp(jobName, event string) {
	if !n.IsSupported() {
		return
	}

	var title, message string
	sound := toast.Default
	switch event {
	case "question":
		title = "Input needed"
		message = fmt.Sprintf("%s is waiting for an answer", jobName)
		sound = toast.IM
	case "finished":
		title = "Job finished"
		message = fmt.Sprintf("%s finished running", jobName)
	default:
		title = "cwtd"
		message = fmt.Sprintf("%s: %s", jobName, event)
	}

	if err := n.push(title, message, sound); err != nil {
		fmt.Printf("[NOTIFY] toast failed for job %q: %v\n", jobName, err)
	}
}

func (n *Notifier) push(title, message string, audio toast.Audio) error {
	if runtime.GOOS != "windows" {
		return fmt.Errorf("toast notifications only supported on Windows")
	}

	notification := toast.Notification{
		AppID:   n.appID,
		Title:   title,
		Message: message,
		Audio:   audio,
		Actions: []toast.Action{
			{Type: "protocol", Label: "Open Dashboard", Arguments: n.dashboardURL},
		},
	}
	return notification.Push()
}

// IsSupported reports whether toast notifications render on this platform.
func (n *Notifier) IsSupported() bool {
	return runtime.GOOS == "windows"
}
