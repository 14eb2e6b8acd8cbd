package daemon

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/yndnr/muxd/internal/telemetry/logger"
)

// EnvChild marks the re-executed daemon process.
const EnvChild = "MUXD_DAEMON_CHILD"

// DefaultReadyTimeout bounds the wait for the child's readiness line.
const DefaultReadyTimeout = 5 * time.Second

// Inherited descriptors in the child (ExtraFiles start at fd 3).
const (
	listenerFD = 3
	readyFD    = 4
)

// ErrNotReady is returned when the child exits or closes the readiness
// pipe without reporting ready.
var ErrNotReady = errors.New("daemon: child did not report ready")

// Options configures Detach.
type Options struct {
	// Args are passed to the re-executed binary. Defaults to os.Args[1:].
	Args []string

	// LogFile receives the child's stdout and stderr. Empty discards them.
	LogFile string

	ReadyTimeout time.Duration

	// Stdout receives the "server running" line. Defaults to os.Stdout.
	Stdout io.Writer
}

// Inherited reports whether this process is the detached daemon child.
func Inherited() bool {
	return os.Getenv(EnvChild) == "1"
}

// Detach starts the daemon child with ln as its listener and waits until it
// reports ready. The parent's copy of ln is closed without unlinking the
// socket path. The child's pid is returned.
func Detach(ln *net.UnixListener, opts Options) (int, error) {
	if Inherited() {
		return 0, errors.New("daemon: already detached")
	}
	if opts.Args == nil {
		opts.Args = os.Args[1:]
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = DefaultReadyTimeout
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}

	exe, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("resolve executable: %w", err)
	}

	lnFile, err := ln.File()
	if err != nil {
		return 0, fmt.Errorf("dup listener: %w", err)
	}
	defer lnFile.Close()

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", os.DevNull, err)
	}
	defer devNull.Close()

	out := devNull
	if opts.LogFile != "" {
		f, err := logger.OpenFile(opts.LogFile)
		if err != nil {
			return 0, fmt.Errorf("open daemon log: %w", err)
		}
		defer f.Close()
		out = f
	}

	readyR, readyW, err := os.Pipe()
	if err != nil {
		return 0, fmt.Errorf("readiness pipe: %w", err)
	}
	defer readyR.Close()

	cmd := exec.Command(exe, opts.Args...)
	cmd.Env = append(os.Environ(), EnvChild+"=1")
	cmd.Stdin = devNull
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.ExtraFiles = []*os.File{lnFile, readyW}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		readyW.Close()
		return 0, fmt.Errorf("start daemon: %w", err)
	}
	// Only the child may hold the write end, so its exit closes the pipe.
	readyW.Close()

	// On failure the child is stopped and the caller still owns ln.
	pid, err := waitReady(readyR, opts.ReadyTimeout)
	if err == nil && pid != cmd.Process.Pid {
		err = fmt.Errorf("daemon: readiness from pid %d, started %d", pid, cmd.Process.Pid)
	}
	if err != nil {
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
		return 0, err
	}
	if err := cmd.Process.Release(); err != nil {
		return 0, fmt.Errorf("release daemon: %w", err)
	}

	ln.SetUnlinkOnClose(false)
	_ = ln.Close()

	fmt.Fprintf(opts.Stdout, "server running (pid %d)\n", pid)
	return pid, nil
}

// InheritedListener rebuilds the listener passed in by Detach.
func InheritedListener() (net.Listener, error) {
	if !Inherited() {
		return nil, errors.New("daemon: not a detached child")
	}
	f := os.NewFile(listenerFD, "muxd-listener")
	if f == nil {
		return nil, errors.New("daemon: listener descriptor missing")
	}
	defer f.Close()

	ln, err := net.FileListener(f)
	if err != nil {
		return nil, fmt.Errorf("inherited listener: %w", err)
	}
	return ln, nil
}

// NotifyReady tells the launcher the daemon is serving. It is a no-op outside
// a detached child and must be called at most once.
func NotifyReady() error {
	if !Inherited() {
		return nil
	}
	f := os.NewFile(readyFD, "muxd-ready")
	if f == nil {
		return errors.New("daemon: readiness descriptor missing")
	}
	defer f.Close()
	return writeReady(f, os.Getpid())
}

func writeReady(w io.Writer, pid int) error {
	_, err := fmt.Fprintf(w, "ready %d\n", pid)
	return err
}

// waitReady reads the readiness line from r, giving up after timeout.
func waitReady(r io.ReadCloser, timeout time.Duration) (int, error) {
	type result struct {
		pid int
		err error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := bufio.NewReader(r).ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = ErrNotReady
			}
			ch <- result{err: err}
			return
		}
		pid, err := parseReady(line)
		ch <- result{pid: pid, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		return res.pid, res.err
	case <-timer.C:
		_ = r.Close()
		return 0, fmt.Errorf("%w within %s", ErrNotReady, timeout)
	}
}

func parseReady(line string) (int, error) {
	fields := strings.Fields(line)
	if len(fields) != 2 || fields[0] != "ready" {
		return 0, fmt.Errorf("daemon: unexpected readiness line %q", strings.TrimSpace(line))
	}
	pid, err := strconv.Atoi(fields[1])
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("daemon: bad pid in readiness line %q", strings.TrimSpace(line))
	}
	return pid, nil
}
