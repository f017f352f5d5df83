package ui

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"favsync/pkg/mirror"
)

// Sender raises one desktop notification.
type Sender func(title, message string) error

// Notifier reports the end of a run on the console and, where the platform
// has a notification tool, on the desktop.
type Notifier struct {
	send Sender
}

// NewNotifier picks notify-send, osascript or a PowerShell toast by
// platform. Other platforms only get the console line.
func NewNotifier() *Notifier {
	switch runtime.GOOS {
	case "linux":
		return &Notifier{send: notifySend}
	case "darwin":
		return &Notifier{send: osascript}
	case "windows":
		return &Notifier{send: windowsToast}
	default:
		return &Notifier{}
	}
}

// NewNotifierWithSender uses send for desktop notifications.
func NewNotifierWithSender(send Sender) *Notifier {
	return &Notifier{send: send}
}

// RunFinished summarizes a mirror run. Runs that left items incomplete or
// failed are reported as errors.
func (n *Notifier) RunFinished(sum mirror.Summary) {
	msg := fmt.Sprintf("%d completed, %d skipped, %d incomplete, %d failed",
		len(sum.Completed), len(sum.Skipped), len(sum.Incomplete), len(sum.Failed))
	if len(sum.Incomplete)+len(sum.Failed) > 0 {
		n.SendError("favsync finished with problems", msg)
		return
	}
	n.SendSuccess("favsync finished", msg)
}

func (n *Notifier) SendNotification(title, message string) {
	fmt.Fprintf(Out, "\n%s: %s\n", Cyan(title), Yellow(message))
	n.desktop(title, message)
}

func (n *Notifier) SendError(title, message string) {
	fmt.Fprintf(Out, "\n%s: %s\n", Red(title), Red(message))
	n.desktop(title, message)
}

func (n *Notifier) SendSuccess(title, message string) {
	fmt.Fprintf(Out, "\n%s: %s\n", Green(title), Green(message))
	n.desktop(title, message)
}

// desktop failures are ignored; the console line was already printed
func (n *Notifier) desktop(title, message string) {
	if n.send != nil {
		_ = n.send(title, message)
	}
}

func notifySend(title, message string) error {
	return exec.Command("notify-send", "--app-name=favsync", title, message).Run()
}

func osascript(title, message string) error {
	script := fmt.Sprintf(`display notification %s with title %s`, appleQuote(message), appleQuote(title))
	return exec.Command("osascript", "-e", script).Run()
}

func appleQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

func windowsToast(title, message string) error {
	esc := func(s string) string {
		r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "'", "&apos;")
		return strings.ReplaceAll(r.Replace(s), "`", "``")
	}
	script := fmt.Sprintf(`
[Windows.UI.Notifications.ToastNotificationManager, Windows.UI.Notifications, ContentType = WindowsRuntime] | Out-Null
[Windows.Data.Xml.Dom.XmlDocument, Windows.Data.Xml.Dom.XmlDocument, ContentType = WindowsRuntime] | Out-Null
$doc = [Windows.Data.Xml.Dom.XmlDocument]::new()
$doc.LoadXml('<toast><visual><binding template="ToastText02"><text id="1">%s</text><text id="2">%s</text></binding></visual></toast>')
[Windows.UI.Notifications.ToastNotificationManager]::CreateToastNotifier("favsync").Show([Windows.UI.Notifications.ToastNotification]::new($doc))
`, esc(title), esc(message))
	return exec.Command("powershell", "-NoProfile", "-NonInteractive", "-Command", script).Run()
}
