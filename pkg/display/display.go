// Package display runs an Xvfb virtual display for browsers on hosts
// without a screen. The display is shared by every suite of a run.
package display

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/devicelab-dev/parabank-e2e/pkg/logger"
	"github.com/devicelab-dev/parabank-e2e/pkg/wait"
)

const (
	firstDisplay     = 99 // First display number tried
	maxRetryAttempts = 10 // Max display number allocation attempts
	startTimeout     = 10 * time.Second
	stopTimeout      = 5 * time.Second
)

// ErrNotFound is returned when the Xvfb binary is not on PATH.
var ErrNotFound = errors.New("Xvfb not found on PATH")

// Options configures the virtual display.
type Options struct {
	Binary      string // Default: Xvfb
	Width       int    // Default: 1280
	Height      int    // Default: 1024
	Depth       int    // Default: 24
	First       int    // First display number tried (default 99)
	MaxAttempts int
	Timeout     time.Duration // Time allowed for the X socket to appear

	// Directories X servers use for lock files and sockets.
	LockDir   string // Default: /tmp
	SocketDir string // Default: /tmp/.X11-unix

	Env []string // Extra environment for the Xvfb process
}

func (o *Options) defaults() {
	if o.Binary == "" {
		o.Binary = "Xvfb"
	}
	if o.Width == 0 {
		o.Width = 1280
	}
	if o.Height == 0 {
		o.Height = 1024
	}
	if o.Depth == 0 {
		o.Depth = 24
	}
	if o.First == 0 {
		o.First = firstDisplay
	}
	if o.MaxAttempts == 0 {
		o.MaxAttempts = maxRetryAttempts
	}
	if o.Timeout == 0 {
		o.Timeout = startTimeout
	}
	if o.LockDir == "" {
		o.LockDir = os.TempDir()
	}
	if o.SocketDir == "" {
		o.SocketDir = filepath.Join(os.TempDir(), ".X11-unix")
	}
}

// Display is a running Xvfb server started by us.
type Display struct {
	Number int
	Start  time.Time

	cmd     *exec.Cmd
	exited  chan struct{}
	waitErr error

	stopOnce    sync.Once
	stopErr     error
	prevDisplay string
	hadPrev     bool
}

// Name returns the DISPLAY value, e.g. ":99".
func (d *Display) Name() string {
	return ":" + strconv.Itoa(d.Number)
}

// Start launches Xvfb on the first free display number and points DISPLAY
// at it. Numbers with a lock file are skipped; a server that dies during
// startup is retried on the next number.
func Start(ctx context.Context, opts Options) (*Display, error) {
	opts.defaults()

	bin, err := exec.LookPath(opts.Binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	num := opts.First
	var lastErr error
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		if inUse(opts, num) {
			logger.Debug("display :%d is in use, trying :%d", num, num+1)
			num++
			continue
		}

		logger.Info("starting Xvfb attempt %d/%d on :%d", attempt, opts.MaxAttempts, num)
		d, err := launch(ctx, bin, num, opts)
		if err == nil {
			return d, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		logger.Warn("Xvfb on :%d failed: %v", num, err)
		num++
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("displays :%d to :%d are in use", opts.First, num-1)
	}
	return nil, fmt.Errorf("failed to start Xvfb after %d attempts: %w", opts.MaxAttempts, lastErr)
}

func inUse(opts Options, num int) bool {
	for _, p := range []string{lockFile(opts, num), socketFile(opts, num)} {
		if _, err := os.Stat(p); err == nil {
			return true
		}
	}
	return false
}

func lockFile(opts Options, num int) string {
	return filepath.Join(opts.LockDir, fmt.Sprintf(".X%d-lock", num))
}

func socketFile(opts Options, num int) string {
	return filepath.Join(opts.SocketDir, fmt.Sprintf("X%d", num))
}

func launch(ctx context.Context, bin string, num int, opts Options) (*Display, error) {
	screen := fmt.Sprintf("%dx%dx%d", opts.Width, opts.Height, opts.Depth)
	cmd := exec.Command(bin, ":"+strconv.Itoa(num), "-screen", "0", screen, "-nolisten", "tcp", "-ac")
	cmd.Env = append(os.Environ(), opts.Env...)
	logger.Debug("Xvfb command: %s %v", bin, cmd.Args[1:])

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start Xvfb: %w", err)
	}

	d := &Display{Number: num, Start: time.Now(), cmd: cmd, exited: make(chan struct{})}
	go func() {
		d.waitErr = cmd.Wait()
		close(d.exited)
	}()

	// polling stops as soon as the process dies
	pollCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-d.exited:
			cancel()
		case <-pollCtx.Done():
		}
	}()

	socket := socketFile(opts, num)
	err := wait.Until(pollCtx, opts.Timeout, 100*time.Millisecond, func(context.Context) (bool, error) {
		_, err := os.Stat(socket)
		return err == nil, err
	})
	if err != nil {
		d.kill()
		<-d.exited
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, wait.ErrTimeout) {
			return nil, fmt.Errorf("no X socket at %s after %v", socket, opts.Timeout)
		}
		if d.waitErr != nil {
			return nil, fmt.Errorf("%w: %v", errExited, d.waitErr)
		}
		return nil, errExited
	}

	d.prevDisplay, d.hadPrev = os.LookupEnv("DISPLAY")
	if err := os.Setenv("DISPLAY", d.Name()); err != nil {
		d.kill()
		return nil, err
	}
	logger.Info("Xvfb ready on %s (PID %d) in %v", d.Name(), cmd.Process.Pid, time.Since(d.Start).Round(time.Millisecond))
	return d, nil
}

var errExited = errors.New("Xvfb exited during startup")

// Stop terminates the server and restores DISPLAY. It is safe to call
// more than once.
func (d *Display) Stop() error {
	d.stopOnce.Do(func() {
		if d.hadPrev {
			os.Setenv("DISPLAY", d.prevDisplay)
		} else {
			os.Unsetenv("DISPLAY")
		}

		logger.Info("stopping Xvfb on %s", d.Name())
		if err := d.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
			logger.Warn("SIGTERM to Xvfb failed: %v", err)
		}
		select {
		case <-d.exited:
		case <-time.After(stopTimeout):
			logger.Warn("Xvfb did not exit after %v, killing", stopTimeout)
			d.kill()
			<-d.exited
			d.stopErr = fmt.Errorf("Xvfb on %s killed after %v", d.Name(), stopTimeout)
		}
		logger.Debug("Xvfb on %s ran for %v", d.Name(), time.Since(d.Start).Round(time.Millisecond))
	})
	return d.stopErr
}

// Running reports whether the server process is still alive.
func (d *Display) Running() bool {
	select {
	case <-d.exited:
		return false
	default:
		return true
	}
}

func (d *Display) kill() {
	if err := d.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		logger.Warn("killing Xvfb: %v", err)
	}
}
