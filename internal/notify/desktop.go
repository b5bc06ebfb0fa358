package notify

import (
	"os/exec"
	"runtime"
	"strings"
)

// DesktopNotifier sends desktop notifications
type DesktopNotifier struct {
	enabled bool
}

// NewDesktopNotifier creates a new desktop notifier
func NewDesktopNotifier(enabled bool) *DesktopNotifier {
	return &DesktopNotifier{enabled: enabled}
}

// Send sends a desktop notification
func (d *DesktopNotifier) Send(n Notification) error {
	if !d.enabled {
		return nil
	}

	switch runtime.GOOS {
	case "darwin":
		return exec.Command("osascript", "-e", appleScript(n)).Run()
	case "linux":
		return exec.Command("notify-send", "--urgency", urgency(n.Type), n.Title, n.Message).Run()
	default:
		return nil
	}
}

var appleScriptEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// appleScript builds the display command with both strings quoted as
// AppleScript literals.
func appleScript(n Notification) string {
	return `display notification "` + appleScriptEscaper.Replace(n.Message) +
		`" with title "` + appleScriptEscaper.Replace(n.Title) + `"`
}

func urgency(t NotificationType) string {
	switch t {
	case NotifyError:
		return "critical"
	case NotifyWarning:
		return "normal"
	default:
		return "low"
	}
}
