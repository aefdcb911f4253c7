// Package clipboard copies text to the Wayland clipboard with wl-copy.
package clipboard

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const DefaultTimeout = 3 * time.Second

// Copy puts text on the clipboard.
func Copy(ctx context.Context, text string, timeout time.Duration) error {
	if text == "" {
		return fmt.Errorf("cannot copy empty text")
	}
	if err := Available(); err != nil {
		return err
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "wl-copy")
	cmd.Stdin = strings.NewReader(text)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("wl-copy failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func Available() error {
	if _, err := exec.LookPath("wl-copy"); err != nil {
		return fmt.Errorf("wl-copy not found: %w (install wl-clipboard)", err)
	}
	return nil
}
