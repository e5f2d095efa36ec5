// Package notify shows desktop notifications for launch results.
// It talks to the freedesktop notification service over D-Bus and falls
// back to notify-send when the session bus is unavailable.
package notify

import (
	"os/exec"

	"github.com/godbus/dbus/v5"

	"github.com/yllada/swiftrdp/common"
)

const (
	busName    = "org.freedesktop.Notifications"
	objectPath = "/org/freedesktop/Notifications"
	notifyCall = busName + ".Notify"

	defaultIcon = "krdc"
)

// NotificationType represents the type of notification
type NotificationType int

const (
	NotificationInfo NotificationType = iota
	NotificationSuccess
	NotificationWarning
	NotificationError
)

// Notification represents a system notification
type Notification struct {
	Title   string
	Message string
	Type    NotificationType
	Icon    string
}

// icon returns the explicit icon or one derived from the type.
func (n Notification) icon() string {
	if n.Icon != "" {
		return n.Icon
	}
	switch n.Type {
	case NotificationWarning:
		return "dialog-warning"
	case NotificationError:
		return "dialog-error"
	default:
		return defaultIcon
	}
}

// urgency maps the type to the freedesktop urgency level (0 low, 1 normal, 2 critical).
func (n Notification) urgency() byte {
	switch n.Type {
	case NotificationError:
		return 2
	case NotificationWarning:
		return 1
	default:
		return 0
	}
}

func (n Notification) urgencyName() string {
	switch n.urgency() {
	case 2:
		return "critical"
	case 1:
		return "normal"
	default:
		return "low"
	}
}

// Desktop implements common.Notifier.
type Desktop struct {
	enabled  bool
	send     func(Notification) error
	fallback func(Notification) error
}

var _ common.Notifier = (*Desktop)(nil)

// New creates a notifier. A disabled notifier drops everything.
func New(enabled bool) *Desktop {
	return &Desktop{
		enabled:  enabled,
		send:     sendDBus,
		fallback: sendCommand,
	}
}

// Show delivers n over D-Bus, or with notify-send if that fails.
func (d *Desktop) Show(n Notification) error {
	if !d.enabled {
		return nil
	}
	err := d.send(n)
	if err == nil {
		return nil
	}
	common.LogDebug("D-Bus notification failed, using notify-send: %v", err)
	if err := d.fallback(n); err != nil {
		common.LogWarn("Error showing notification: %v", err)
		return err
	}
	return nil
}

// Notify sends an informational notification.
func (d *Desktop) Notify(title, message string) error {
	return d.Show(Notification{Title: title, Message: message, Type: NotificationInfo})
}

// NotifyWithIcon sends a notification with a custom icon.
func (d *Desktop) NotifyWithIcon(title, message, icon string) error {
	return d.Show(Notification{Title: title, Message: message, Type: NotificationInfo, Icon: icon})
}

// NotifyConnected reports a confirmed session.
func (d *Desktop) NotifyConnected(name string) error {
	return d.Show(Notification{
		Title:   "Connected",
		Message: "Connected to " + name,
		Type:    NotificationSuccess,
	})
}

// NotifyError reports a failed launch or background task.
func (d *Desktop) NotifyError(name, message string) error {
	return d.Show(Notification{
		Title:   "Connection Error",
		Message: name + ": " + message,
		Type:    NotificationError,
	})
}

func sendDBus(n Notification) error {
	// The shared session connection must not be closed.
	conn, err := dbus.SessionBus()
	if err != nil {
		return err
	}
	obj := conn.Object(busName, dbus.ObjectPath(objectPath))
	hints := map[string]dbus.Variant{
		"urgency": dbus.MakeVariant(n.urgency()),
	}
	call := obj.Call(notifyCall, 0,
		common.AppName, uint32(0), n.icon(), n.Title, n.Message,
		[]string{}, hints, int32(-1))
	return call.Err
}

func sendCommand(n Notification) error {
	cmd := exec.Command("notify-send",
		"--app-name="+common.AppName,
		"--icon="+n.icon(),
		"--urgency="+n.urgencyName(),
		n.Title,
		n.Message,
	)
	return cmd.Run()
}
