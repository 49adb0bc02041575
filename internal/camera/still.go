package camera

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/lestrrat-go/strftime"
)

const (
	DEFAULT_COMMAND = "rpicam-still"
	DEFAULT_PATTERN = "/var/lib/balloontx/images/%Y%m%d-%H%M%S.jpg"
	DEFAULT_TIMEOUT = 30 * time.Second
)

// Still captures photographs with an external still-capture utility. The
// utility is run as "<Command> <Args...> -o <path>".
type Still struct {
	Command string
	Args    []string
	Timeout time.Duration
	Now     func() time.Time

	pattern *strftime.Strftime
	run     func(ctx context.Context, name string, args ...string) ([]byte, error)
	log     *log.Logger
}

// NewStill builds a camera writing captures to paths formatted from pattern
// (strftime syntax, evaluated in UTC)
func NewStill(command string, args []string, pattern string) (*Still, error) {
	if command == "" {
		command = DEFAULT_COMMAND
	}
	if pattern == "" {
		pattern = DEFAULT_PATTERN
	}
	p, err := strftime.New(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid capture path pattern %q: %w", pattern, err)
	}
	return &Still{
		Command: command,
		Args:    args,
		Timeout: DEFAULT_TIMEOUT,
		Now:     time.Now,
		pattern: p,
		run:     runCommand,
		log:     log.New(os.Stdout, "[CAMERA] ", log.LstdFlags),
	}, nil
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Path returns the file a capture taken at t is written to
func (s *Still) Path(t time.Time) string {
	return s.pattern.FormatString(t.UTC())
}

// Capture takes one photograph and returns its path and JPEG bytes. A
// non-zero exit status or an unreadable file fails the capture.
func (s *Still) Capture(ctx context.Context) (string, []byte, error) {
	path := s.Path(s.Now())
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", nil, fmt.Errorf("failed to create capture directory: %w", err)
	}

	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	args := append(append([]string{}, s.Args...), "-o", path)
	if out, err := s.run(ctx, s.Command, args...); err != nil {
		return "", nil, fmt.Errorf("%s failed: %w (output: %q)", s.Command, err, truncate(out, 200))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read capture: %w", err)
	}
	if len(data) == 0 {
		return "", nil, fmt.Errorf("capture %s is empty", path)
	}

	s.log.Printf("Captured %s (%d bytes)", path, len(data))
	return path, data, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
