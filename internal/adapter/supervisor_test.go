package adapter

import (
	"context"
	"io"
	"os/exec"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vajrock/dapctl/internal/types"
)

func discardLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestSupervisor_RejectsEmptyCommand(t *testing.T) {
	s := New(discardLogger())
	_, err := s.Start(context.Background(), types.AdapterDescriptor{})
	require.Error(t, err)
	require.False(t, s.Active())
}

func TestSupervisor_RejectsConcurrentStart(t *testing.T) {
	s := New(discardLogger())
	// Simulate an already-running adapter without paying for a real
	// spawn+handshake: the concurrency guard only inspects s.cmd.
	s.mu.Lock()
	s.cmd = &exec.Cmd{}
	s.mu.Unlock()

	_, err := s.Start(context.Background(), types.AdapterDescriptor{Command: "sh", Args: []string{"-c", "cat"}})
	require.Error(t, err)
}

func TestSupervisor_StopIsIdempotent(t *testing.T) {
	s := New(discardLogger())
	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
}

func TestSupervisor_MergeEnv(t *testing.T) {
	base := []string{"PATH=/usr/bin", "HOME=/root"}
	merged := mergeEnv(base, map[string]string{"FOO": "bar"})
	require.Contains(t, merged, "PATH=/usr/bin")
	require.Contains(t, merged, "FOO=bar")
}
