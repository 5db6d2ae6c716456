package notification

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/dooshek/murmur/internal/logger"
)

// linuxNotifier shells out to notify-send when no D-Bus connection is usable.
type linuxNotifier struct {
	bin string
}

func newLinuxNotifier() *linuxNotifier {
	return &linuxNotifier{bin: "notify-send"}
}

func (n *linuxNotifier) RequestPermission(ctx context.Context) Permission {
	if _, err := exec.LookPath(n.bin); err != nil {
		logger.Warnf("%s not found, alerts disabled", n.bin)
		return Denied
	}
	return Granted
}

func (n *linuxNotifier) Deliver(ctx context.Context, note Notification) error {
	logger.Debugf("Sending notification: %s - %s", note.Title, note.Body)
	cmd := exec.CommandContext(ctx, n.bin,
		"--app-name", appName,
		"--urgency", note.Urgency.String(),
		note.Title, note.Body)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%w: %s: %v: %s", ErrDelivery, n.bin, err, out)
	}
	return nil
}
