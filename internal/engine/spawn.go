package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"
)

const (
	spawnHost     = "127.0.0.1"
	stopGrace     = 5 * time.Second
	stderrTailMax = 4096
)

// spawnedBackend is a serverBackend whose llama-server it started itself.
type spawnedBackend struct {
	*serverBackend

	cmd     *exec.Cmd
	out     *tailBuffer
	exited  chan struct{}
	waitErr error
	once    sync.Once
}

// openSpawn starts llama-server with opts.ModelPath on a free loopback port
// and waits until it is healthy and serving that file.
func openSpawn(ctx context.Context, opts Options) (Backend, error) {
	if strings.TrimSpace(opts.ModelPath) == "" {
		return nil, errors.New("spawn: model path is empty")
	}
	bin := strings.TrimSpace(opts.ServerBin)
	if bin == "" {
		bin = discoverServerBin()
	}
	if bin == "" {
		return nil, ErrDependencyUnavailable("llama-server not found: set llama_bin or install llama.cpp")
	}
	if fi, err := os.Stat(bin); err != nil || fi.IsDir() {
		return nil, ErrDependencyUnavailable(fmt.Sprintf("llama-server not found or not a file: %s", bin))
	}
	port, err := freePort(spawnHost)
	if err != nil {
		return nil, err
	}

	o := opts
	o.ServerURL = "http://" + net.JoinHostPort(spawnHost, strconv.Itoa(port))
	o.APIKey = ""
	if o.ModelID == "" {
		o.ModelID = o.ModelPath
	}
	sb := newServerBackend(o)
	sb.log = opts.Logger.With().Str("backend", KindSpawn).Logger()

	out := &tailBuffer{max: stderrTailMax}
	// Not CommandContext: the process must outlive the load call.
	cmd := exec.Command(bin, spawnArgs(opts, port)...)
	cmd.Dir = filepath.Dir(opts.ModelPath)
	cmd.Stdout = out
	cmd.Stderr = out
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start llama-server: %w", err)
	}
	b := &spawnedBackend{serverBackend: sb, cmd: cmd, out: out, exited: make(chan struct{})}
	go func() {
		b.waitErr = cmd.Wait()
		close(b.exited)
	}()
	sb.log.Info().Str("bin", bin).Int("pid", cmd.Process.Pid).Int("port", port).Str("model_path", opts.ModelPath).Msg("llama server started")

	readyCtx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-b.exited:
			cancel()
		case <-readyCtx.Done():
		}
	}()
	err = sb.waitReady(readyCtx)
	cancel()
	if err != nil {
		select {
		case <-b.exited:
			return nil, ErrDependencyUnavailable(fmt.Sprintf("llama-server exited before ready: %v; output tail: %s", b.waitErr, out.String()))
		default:
		}
		_ = b.Close()
		return nil, err
	}
	return b, nil
}

// Close stops the child: SIGTERM first, SIGKILL after stopGrace.
func (b *spawnedBackend) Close() error {
	b.once.Do(func() {
		_ = b.serverBackend.Close()
		select {
		case <-b.exited:
			return
		default:
		}
		_ = b.cmd.Process.Signal(syscall.SIGTERM)
		select {
		case <-b.exited:
		case <-time.After(stopGrace):
			_ = b.cmd.Process.Kill()
			<-b.exited
		}
		b.log.Info().Int("pid", b.cmd.Process.Pid).Msg("llama server stopped")
	})
	return nil
}

// PID returns the child's process id.
func (b *spawnedBackend) PID() int { return b.cmd.Process.Pid }

func spawnArgs(opts Options, port int) []string {
	args := []string{
		"-m", opts.ModelPath,
		"--host", spawnHost,
		"--port", strconv.Itoa(port),
	}
	if opts.ContextSize > 0 {
		args = append(args, "-c", strconv.Itoa(opts.ContextSize))
	}
	if opts.GPULayers > 0 {
		args = append(args, "-ngl", strconv.Itoa(opts.GPULayers))
	}
	if opts.Threads > 0 {
		args = append(args, "-t", strconv.Itoa(opts.Threads))
	}
	return append(args, opts.ExtraArgs...)
}

func freePort(host string) (int, error) {
	l, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// discoverServerBin looks for llama-server on PATH and in common install
// locations.
func discoverServerBin() string {
	if p, err := exec.LookPath("llama-server"); err == nil {
		return p
	}
	home, _ := os.UserHomeDir()
	candidates := []string{
		filepath.Join(home, "llama.cpp", "build", "bin", "llama-server"),
		"/usr/local/bin/llama-server",
		"/opt/homebrew/bin/llama-server",
	}
	for _, p := range candidates {
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p
		}
	}
	return ""
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
