package notification

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/dooshek/murmur/internal/logger"
)

var appleScriptEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

type darwinNotifier struct {
	bin string
}

func newDarwinNotifier() *darwinNotifier {
	return &darwinNotifier{bin: "osascript"}
}

func (n *darwinNotifier) RequestPermission(ctx context.Context) Permission {
	if _, err := exec.LookPath(n.bin); err != nil {
		return Denied
	}
	return Granted
}

func (n *darwinNotifier) Deliver(ctx context.Context, note Notification) error {
	logger.Debugf("Sending macOS notification: %s - %s", note.Title, note.Body)
	cmd := exec.CommandContext(ctx, n.bin, "-e", appleScript(note))
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: osascript: %v", ErrDelivery, err)
	}
	return nil
}

func appleScript(note Notification) string {
	script := fmt.Sprintf(`display notification "%s" with title "%s"`,
		appleScriptEscaper.Replace(note.Body), appleScriptEscaper.Replace(note.Title))
	if note.Sound {
		script += ` sound name "Sosumi"`
	}
	return script
}
