package document

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// Runner executes a poppler binary. Tests swap in a stub.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// maxLoggedStderr bounds how much of a failing tool's stderr ends up in the log.
const maxLoggedStderr = 4 << 10

type execRunner struct {
	logger *slog.Logger
}

func (r execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	t0 := time.Now()
	err := cmd.Run()
	attrs := []any{
		"tool", name,
		"args", strings.Join(redactPassword(args), " "),
		"elapsed_ms", time.Since(t0).Milliseconds(),
	}
	if err != nil {
		r.logger.Warn("document.exec.failed", append(attrs, "err", err, "stderr", clip(stderr.String(), maxLoggedStderr))...)
		return stdout.Bytes(), stderr.Bytes(), err
	}
	r.logger.Debug("document.exec.ok", append(attrs, "stdout_bytes", stdout.Len())...)
	return stdout.Bytes(), stderr.Bytes(), nil
}

// redactPassword masks the value after poppler's -upw/-opw flags.
func redactPassword(args []string) []string {
	out := append([]string(nil), args...)
	for i := 1; i < len(out); i++ {
		if out[i-1] == "-upw" || out[i-1] == "-opw" {
			out[i] = "***"
		}
	}
	return out
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
