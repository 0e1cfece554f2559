// Package adapter supervises the external DAP-compliant adapter process:
// spawning it, performing the initialize handshake, and tearing it down in
// the order real adapters expect.
package adapter

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	godap "github.com/google/go-dap"
	"github.com/sirupsen/logrus"

	"github.com/vajrock/dapctl/internal/dap"
	"github.com/vajrock/dapctl/internal/types"
)

// shutdownGrace is how long Stop waits after SIGTERM before escalating to
// SIGKILL.
const shutdownGrace = 2 * time.Second

// Supervisor owns at most one running adapter child process at a time.
type Supervisor struct {
	log logrus.FieldLogger

	mu       sync.Mutex
	cmd      *exec.Cmd
	client   *dap.Client
	exited   chan struct{} // closed once cmd.Wait() returns
	stopping bool          // true while Stop is tearing down the current process
	onExit   func(error)   // notified when the process exits without Stop having been called
}

// OnExit registers a callback invoked when the adapter process exits
// without Stop having caused it (i.e. a crash). Only one callback is kept;
// registering again replaces it. Safe to call before or after Start.
func (s *Supervisor) OnExit(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onExit = fn
}

// New builds a Supervisor. log may be nil, in which case the standard
// logrus logger is used.
func New(log logrus.FieldLogger) *Supervisor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Supervisor{log: log}
}

// Active reports whether an adapter process is currently running.
func (s *Supervisor) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cmd != nil
}

// Start spawns desc.Command, wires its stdio to a new dap.Client, performs
// the initialize handshake, and returns the client. It refuses to run a
// second adapter concurrently: callers must Stop first.
func (s *Supervisor) Start(ctx context.Context, desc types.AdapterDescriptor) (*dap.Client, error) {
	s.mu.Lock()
	if s.cmd != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("adapter: an adapter process is already running")
	}
	s.mu.Unlock()

	if strings.TrimSpace(desc.Command) == "" {
		return nil, fmt.Errorf("adapter: descriptor has an empty command")
	}

	cmd := exec.CommandContext(ctx, desc.Command, desc.Args...)
	if desc.Cwd != "" {
		cmd.Dir = desc.Cwd
	}
	cmd.Env = mergeEnv(os.Environ(), desc.Env)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &types.AdapterSpawnError{Command: desc.Command, Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &types.AdapterSpawnError{Command: desc.Command, Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &types.AdapterSpawnError{Command: desc.Command, Err: err}
	}

	if err := cmd.Start(); err != nil {
		return nil, &types.AdapterSpawnError{Command: desc.Command, Err: err}
	}

	client := dap.NewClient(stdin, s.log.WithField("component", "dap-client"))
	go client.Run(stdout)
	go s.forwardStderr(stderr)

	exited := make(chan struct{})
	s.mu.Lock()
	s.cmd = cmd
	s.client = client
	s.exited = exited
	s.mu.Unlock()

	go s.watchExit(cmd, exited)

	if _, err := client.Initialize(godap.InitializeRequestArguments{
		ClientID:                     "dapctl",
		ClientName:                   "dapctl",
		AdapterID:                    desc.Command,
		Locale:                       "en-US",
		LinesStartAt1:                true,
		ColumnsStartAt1:              true,
		PathFormat:                   "path",
		SupportsVariableType:         true,
		SupportsVariablePaging:       false,
		SupportsRunInTerminalRequest: false,
		SupportsMemoryReferences:     true,
	}); err != nil {
		s.teardownProcess()
		return nil, fmt.Errorf("adapter: initialize handshake failed: %w", err)
	}

	return client, nil
}

func (s *Supervisor) forwardStderr(r io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			s.log.WithField("stream", "stderr").Warn(strings.TrimRight(string(buf[:n]), "\n"))
		}
		if err != nil {
			return
		}
	}
}

// watchExit owns the single permitted call to cmd.Wait() for this process
// and is the only place that clears s.cmd/s.client/s.exited. When the
// process exits on its own (not as a result of Stop tearing it down), it
// notifies the registered onExit callback so a caller like the backend
// orchestrator can treat it as a crash rather than a stale session.
func (s *Supervisor) watchExit(cmd *exec.Cmd, exited chan struct{}) {
	err := cmd.Wait()

	s.mu.Lock()
	sameProcess := s.cmd == cmd
	stopping := s.stopping
	onExit := s.onExit
	if sameProcess {
		s.cmd = nil
		s.client = nil
	}
	s.mu.Unlock()
	close(exited)

	if !sameProcess {
		return
	}
	if err != nil {
		s.log.WithError(err).Warn("adapter: process exited abnormally")
	} else {
		s.log.Info("adapter: process exited")
	}

	if stopping || onExit == nil {
		return
	}
	onExit(crashError(cmd))
}

// crashError describes why cmd exited, distinguishing a signal (e.g. a
// SIGSEGV crash) from a plain nonzero exit code.
func crashError(cmd *exec.Cmd) error {
	ps := cmd.ProcessState
	if ps == nil {
		return &types.AdapterCrashedError{}
	}
	if status, ok := ps.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return &types.AdapterCrashedError{Signal: status.Signal().String()}
	}
	return &types.AdapterCrashedError{Code: ps.ExitCode()}
}

// Stop performs an ordered shutdown: ask the adapter to disconnect and
// terminate the debuggee, close the client, then SIGTERM the process and
// escalate to SIGKILL if it hasn't exited within shutdownGrace. Stop is a
// no-op if no adapter is active.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	cmd := s.cmd
	client := s.client
	if cmd != nil {
		s.stopping = true
	}
	s.mu.Unlock()

	if cmd == nil {
		return nil
	}

	defer func() {
		s.mu.Lock()
		s.stopping = false
		s.mu.Unlock()
	}()

	if client != nil {
		if _, err := client.Disconnect(true); err != nil {
			s.log.WithError(err).Warn("adapter: disconnect request failed, proceeding with teardown")
		}
		client.Close()
	}

	return s.teardownProcess()
}

func (s *Supervisor) teardownProcess() error {
	s.mu.Lock()
	cmd := s.cmd
	done := s.exited
	s.mu.Unlock()

	if cmd == nil || cmd.Process == nil || done == nil {
		return nil
	}

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil && !strings.Contains(err.Error(), "process already finished") {
		s.log.WithError(err).Warn("adapter: SIGTERM failed, will escalate to SIGKILL")
	}

	select {
	case <-done:
		return nil
	case <-time.After(shutdownGrace):
		if err := cmd.Process.Kill(); err != nil && !strings.Contains(err.Error(), "process already finished") {
			return fmt.Errorf("adapter: failed to kill unresponsive process: %w", err)
		}
		<-done
		return nil
	}
}

func mergeEnv(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}
	merged := make([]string, 0, len(base)+len(overrides))
	merged = append(merged, base...)
	for k, v := range overrides {
		merged = append(merged, k+"="+v)
	}
	return merged
}
