// Package runtime hosts spawned game-server processes. The Host interface is
// the capability the session launcher is built against; tests substitute a
// recording fake.
package runtime

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"
)

// SpawnSpec describes one game-server process.
type SpawnSpec struct {
	Dir         string // working directory with the unpacked package
	Entry       string // package-relative server entry point
	RoomID      string
	Port        int           // port the process must bind
	WaitTimeout time.Duration // how long to wait for the port to come up
}

// Handle tracks a running process.
type Handle interface {
	// Done closes when the process exits, however it exits.
	Done() <-chan struct{}
	// Stop terminates the process. Idempotent.
	Stop()
}

// Host spawns processes and allocates ports.
type Host interface {
	FreePort() (int, error)
	Spawn(ctx context.Context, spec SpawnSpec) (Handle, error)
}

// ExecHost runs game servers as local child processes through an interpreter
// (the package entry points are scripts).
type ExecHost struct {
	Interpreter string
}

func NewExecHost(interpreter string) *ExecHost {
	return &ExecHost{Interpreter: interpreter}
}

var _ Host = (*ExecHost)(nil)

// FreePort asks the kernel for an unused TCP port.
func (h *ExecHost) FreePort() (int, error) {
	l, err := net.Listen("tcp", ":0")
	if err != nil {
		return 0, err
	}
	port := l.Addr().(*net.TCPAddr).Port
	_ = l.Close()
	return port, nil
}

// Spawn starts the server entry and waits until it binds its port. A process
// that exits early or never binds is torn down and reported as an error.
func (h *ExecHost) Spawn(ctx context.Context, spec SpawnSpec) (Handle, error) {
	entry := filepath.Join(spec.Dir, filepath.FromSlash(spec.Entry))
	if _, err := os.Stat(entry); err != nil {
		return nil, fmt.Errorf("server entry %s: %w", spec.Entry, err)
	}
	cmd := exec.Command(h.Interpreter, entry, "--room", spec.RoomID, "--port", strconv.Itoa(spec.Port))
	cmd.Dir = spec.Dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start game server: %w", err)
	}
	hd := &procHandle{cmd: cmd, done: make(chan struct{})}
	go func() {
		_ = cmd.Wait()
		close(hd.done)
	}()

	timeout := spec.WaitTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if err := waitPort(ctx, spec.Port, timeout, hd.done); err != nil {
		hd.Stop()
		return nil, err
	}
	return hd, nil
}

// waitPort polls until the port accepts connections, the process dies, or
// the deadline passes.
func waitPort(ctx context.Context, port int, timeout time.Duration, died <-chan struct{}) error {
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-died:
			return fmt.Errorf("game server exited before binding port %d", port)
		default:
		}
		conn, err := net.DialTimeout("tcp", addr, 300*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("game server did not bind port %d within %s", port, timeout)
}

type procHandle struct {
	cmd  *exec.Cmd
	done chan struct{}

	stopOnce sync.Once
}

func (p *procHandle) Done() <-chan struct{} { return p.done }

// Stop sends SIGTERM and escalates to SIGKILL if the process lingers.
func (p *procHandle) Stop() {
	p.stopOnce.Do(func() {
		if p.cmd.Process == nil {
			return
		}
		_ = p.cmd.Process.Signal(syscall.SIGTERM)
		select {
		case <-p.done:
		case <-time.After(3 * time.Second):
			_ = p.cmd.Process.Kill()
		}
	})
}
