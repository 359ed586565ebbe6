// Package systemd speaks the sd_notify protocol. Every call is a no-op when
// the process was not started by systemd (NOTIFY_SOCKET unset).
package systemd

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Notifier sends state changes to the service manager.
type Notifier struct {
	// UnsetEnv clears NOTIFY_SOCKET after the first message, so child
	// processes do not inherit it.
	UnsetEnv bool

	send func(unsetEnv bool, state string) (bool, error)
}

func New() *Notifier { return &Notifier{send: daemon.SdNotify} }

func (n *Notifier) notify(state string) (bool, error) {
	if n == nil {
		return false, nil
	}
	send := n.send
	if send == nil {
		send = daemon.SdNotify
	}
	return send(n.UnsetEnv, state)
}

// Ready reports startup finished. sent is false outside systemd.
func (n *Notifier) Ready() (sent bool, err error) { return n.notify(daemon.SdNotifyReady) }

func (n *Notifier) Stopping() (bool, error) { return n.notify(daemon.SdNotifyStopping) }

func (n *Notifier) Reloading() (bool, error) { return n.notify(daemon.SdNotifyReloading) }

// Status sets the free-form status line shown by systemctl status.
func (n *Notifier) Status(format string, args ...any) (bool, error) {
	return n.notify("STATUS=" + fmt.Sprintf(format, args...))
}

// WatchdogInterval returns how often to ping, half the unit's WatchdogSec.
// Zero means the watchdog is off for this process.
func WatchdogInterval() time.Duration {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil || d <= 0 {
		return 0
	}
	return d / 2
}

// Watchdog pings every interval while healthy returns nil, until ctx ends.
// A failing health check skips the ping so systemd restarts the unit.
func (n *Notifier) Watchdog(ctx context.Context, interval time.Duration, healthy func() error) error {
	if interval <= 0 {
		return nil
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if healthy != nil && healthy() != nil {
				continue
			}
			if _, err := n.notify(daemon.SdNotifyWatchdog); err != nil {
				return err
			}
		}
	}
}
