// Package systemd reports service state to the systemd manager through the
// sd_notify socket. Every call is a no-op when NOTIFY_SOCKET is unset.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Notifier sends sd_notify messages. The zero value is usable.
type Notifier struct{}

func New() *Notifier { return &Notifier{} }

func (n *Notifier) send(state string) (bool, error) {
	return daemon.SdNotify(false, state)
}

func (n *Notifier) Ready() (bool, error)    { return n.send(daemon.SdNotifyReady) }
func (n *Notifier) Stopping() (bool, error) { return n.send(daemon.SdNotifyStopping) }

// Status sets the free-form status line shown by `systemctl status`.
func (n *Notifier) Status(s string) (bool, error) { return n.send("STATUS=" + s) }

// Watchdog pings the watchdog at half the configured interval until ctx
// ends. It returns immediately when the unit has no WatchdogSec.
func (n *Notifier) Watchdog(ctx context.Context) error {
	every, err := daemon.SdWatchdogEnabled(false)
	if err != nil || every <= 0 {
		return err
	}
	t := time.NewTicker(every / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := n.send(daemon.SdNotifyWatchdog); err != nil {
				return err
			}
		}
	}
}
