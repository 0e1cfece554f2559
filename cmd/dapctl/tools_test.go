package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vajrock/dapctl/internal/backend"
	"github.com/vajrock/dapctl/internal/types"
)

// fakeBackend is an in-memory stand-in for backend.Backend, letting the MCP
// tool wiring be exercised without a real adapter process.
type fakeBackend struct {
	active bool
	state  types.DebugState
	bps    []types.Breakpoint
	vars   map[string]types.ScopeVariables
	evalFn func(expr string) (*types.EvaluateResult, error)

	startCfg types.DebugConfig
	startErr error

	removedPath string
	removedLine int

	lastNumNextLines int
}

func (f *fakeBackend) StartDebugging(_ types.AdapterDescriptor, cfg types.DebugConfig, bps []types.Breakpoint) (*types.DebugState, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.startCfg = cfg
	f.bps = bps
	f.active = true
	f.state.SessionActive = true
	return &f.state, nil
}

func (f *fakeBackend) StopDebugging() error {
	f.active = false
	f.state = types.DebugState{}
	return nil
}

func (f *fakeBackend) HasActiveSession() bool { return f.active }

func (f *fakeBackend) Restart(args []string) (*types.DebugState, error) {
	f.startCfg.Args = args
	return &f.state, nil
}

func (f *fakeBackend) Continue(int) (*types.DebugState, error) { return &f.state, nil }
func (f *fakeBackend) Step(StepMode, int) (*types.DebugState, error) {
	return &f.state, nil
}
func (f *fakeBackend) Pause(int) error { return nil }

func (f *fakeBackend) SetBreakpoint(bp types.Breakpoint) error {
	f.bps = append(f.bps, bp)
	return nil
}
func (f *fakeBackend) ClearBreakpoints(string) error { return nil }
func (f *fakeBackend) ClearAllBreakpoints() error    { f.bps = nil; return nil }

func (f *fakeBackend) RemoveBreakpoint(path string, line int) error {
	f.removedPath, f.removedLine = path, line
	return nil
}

func (f *fakeBackend) GetBreakpoints() map[string][]types.Breakpoint {
	out := make(map[string][]types.Breakpoint)
	for _, bp := range f.bps {
		out[bp.Path] = append(out[bp.Path], bp)
	}
	return out
}

func (f *fakeBackend) GetCurrentDebugState(numNextLines int) (*types.DebugState, error) {
	f.lastNumNextLines = numNextLines
	return &f.state, nil
}

func (f *fakeBackend) GetActiveFrameID() (int, bool) {
	if f.state.FrameID == nil {
		return 0, false
	}
	return *f.state.FrameID, true
}

func (f *fakeBackend) OnStopped(func(types.StoppedEvent)) backend.Disposable { return func() {} }
func (f *fakeBackend) OnTerminated(func()) backend.Disposable               { return func() {} }
func (f *fakeBackend) OnOutput(func(types.OutputRecord)) backend.Disposable { return func() {} }

func (f *fakeBackend) GetVariables(scope types.VariableScope) (map[string]types.ScopeVariables, error) {
	return f.vars, nil
}

func (f *fakeBackend) EvaluateExpression(expr string) (*types.EvaluateResult, error) {
	if f.evalFn != nil {
		return f.evalFn(expr)
	}
	return &types.EvaluateResult{Result: "42", Type: "int"}, nil
}

func (f *fakeBackend) SetVariable(int, string, string) error { return nil }

func (f *fakeBackend) GetRecentOutput(types.OutputQuery) types.OutputResult {
	return types.OutputResult{Stdout: "hello, world\n"}
}

func (f *fakeBackend) GetLoadedSources() ([]string, error) { return []string{"/tmp/main.go"}, nil }

func (f *fakeBackend) GetModules() ([]types.ModuleInfo, error) {
	return []types.ModuleInfo{{ID: "1", Name: "main", Path: "/tmp/main"}}, nil
}

func (f *fakeBackend) Disassemble(string, int, int) ([]types.Instruction, error) {
	return []types.Instruction{{Address: "0x1000", Instruction: "NOP"}}, nil
}

func (f *fakeBackend) Dispose() error { return nil }

// toolsTestSetup wires an mcp server backed by a fakeBackend to an mcp
// client over an in-process SSE loopback, mirroring how a real MCP client
// drives dapctl.
type toolsTestSetup struct {
	backend    *fakeBackend
	testServer *httptest.Server
	client     *mcp.Client
	session    *mcp.ClientSession
	ctx        context.Context
}

func newToolsTestSetup(t *testing.T) *toolsTestSetup {
	t.Helper()

	fb := &fakeBackend{}
	cfg := &types.StandaloneConfig{
		Adapters: map[string]types.AdapterDescriptor{
			"go": {Command: "dlv", Args: []string{"dap"}},
		},
	}
	log := logrus.New()
	log.SetOutput(noopWriter{})

	srv := newToolServer(fb, cfg, "/workspace", log)

	implementation := mcp.Implementation{Name: "dapctl-test", Version: "v1.0.0"}
	server := mcp.NewServer(&implementation, nil)
	srv.registerTools(server)

	getServer := func(_ *http.Request) *mcp.Server { return server }
	testServer := httptest.NewServer(mcp.NewSSEHandler(getServer))

	clientImpl := mcp.Implementation{Name: "test-client", Version: "v1.0.0"}
	client := mcp.NewClient(&clientImpl, nil)

	ctx := context.Background()
	transport := mcp.NewSSEClientTransport(testServer.URL, &mcp.SSEClientTransportOptions{})
	session, err := client.Connect(ctx, transport)
	require.NoError(t, err)

	return &toolsTestSetup{backend: fb, testServer: testServer, client: client, session: session, ctx: ctx}
}

func (ts *toolsTestSetup) cleanup() {
	if ts.session != nil {
		ts.session.Close()
	}
	if ts.testServer != nil {
		ts.testServer.Close()
	}
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }

func callText(t *testing.T, ts *toolsTestSetup, name string, args map[string]any) (string, bool) {
	t.Helper()
	result, err := ts.session.CallTool(ts.ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	var sb strings.Builder
	for _, c := range result.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return sb.String(), result.IsError
}

func TestTools_DebugRejectsUnknownMode(t *testing.T) {
	ts := newToolsTestSetup(t)
	defer ts.cleanup()

	_, isErr := callText(t, ts, "debug", map[string]any{"mode": "teleport", "path": "/tmp/main.go"})
	require.True(t, isErr)
}

func TestTools_DebugStartsSessionAndSetsBreakpoints(t *testing.T) {
	ts := newToolsTestSetup(t)
	defer ts.cleanup()

	ts.backend.state = types.DebugState{SessionActive: true, FrameName: "main.main", FileFullPath: "/tmp/main.go", CurrentLine: 7}

	text, isErr := callText(t, ts, "debug", map[string]any{
		"mode": "source",
		"path": "/tmp/main.go",
		"breakpoints": []map[string]any{
			{"file": "/tmp/main.go", "line": 7},
		},
	})
	require.False(t, isErr)
	require.Contains(t, text, "main.main")
	require.True(t, ts.backend.active)
	require.Len(t, ts.backend.bps, 1)
	require.Equal(t, "/tmp/main.go", ts.backend.bps[0].Path)
}

func TestTools_BreakpointRequiresFileOrFunction(t *testing.T) {
	ts := newToolsTestSetup(t)
	defer ts.cleanup()

	_, isErr := callText(t, ts, "breakpoint", map[string]any{})
	require.True(t, isErr)
}

func TestTools_ContextReportsNoActiveSession(t *testing.T) {
	ts := newToolsTestSetup(t)
	defer ts.cleanup()

	text, isErr := callText(t, ts, "context", map[string]any{})
	require.False(t, isErr)
	require.Contains(t, text, "No active debug session")
}

func TestTools_ContextIncludesVariables(t *testing.T) {
	ts := newToolsTestSetup(t)
	defer ts.cleanup()

	ts.backend.state = types.DebugState{SessionActive: true, FrameName: "main.processCollection", FileFullPath: "/tmp/main.go", CurrentLine: 67}
	ts.backend.vars = map[string]types.ScopeVariables{
		"Locals": {Variables: []types.Variable{
			{Name: "sum", Value: "30", Type: "int"},
			{Name: "count", Value: "3", Type: "int"},
		}},
	}

	text, isErr := callText(t, ts, "context", map[string]any{})
	require.False(t, isErr)
	require.Contains(t, text, "processCollection")
	require.Contains(t, text, "sum")
	require.Contains(t, text, "count (int) = 3")
}

func TestTools_EvaluateExpression(t *testing.T) {
	ts := newToolsTestSetup(t)
	defer ts.cleanup()

	ts.backend.evalFn = func(expr string) (*types.EvaluateResult, error) {
		require.Equal(t, "greeting", expr)
		return &types.EvaluateResult{Result: "hello, world", Type: "string"}, nil
	}

	text, isErr := callText(t, ts, "evaluate", map[string]any{"expression": "greeting"})
	require.False(t, isErr)
	require.Contains(t, text, "hello, world")
}

func TestTools_StepInvalidMode(t *testing.T) {
	ts := newToolsTestSetup(t)
	defer ts.cleanup()

	_, isErr := callText(t, ts, "step", map[string]any{"mode": "sideways"})
	require.True(t, isErr)
}

func TestTools_InfoSourcesAndModules(t *testing.T) {
	ts := newToolsTestSetup(t)
	defer ts.cleanup()

	text, isErr := callText(t, ts, "info", map[string]any{"type": "sources"})
	require.False(t, isErr)
	require.Contains(t, text, "/tmp/main.go")

	text, isErr = callText(t, ts, "info", map[string]any{"type": "modules"})
	require.False(t, isErr)
	require.Contains(t, text, "main")
}

func TestTools_StopWithNoActiveSession(t *testing.T) {
	ts := newToolsTestSetup(t)
	defer ts.cleanup()

	text, isErr := callText(t, ts, "stop", map[string]any{})
	require.False(t, isErr)
	require.Contains(t, text, "No debug session active")
}

func TestTools_ClearBreakpointsRemovesSingleLine(t *testing.T) {
	ts := newToolsTestSetup(t)
	defer ts.cleanup()

	text, isErr := callText(t, ts, "clear-breakpoints", map[string]any{"file": "/tmp/main.go", "line": 7})
	require.False(t, isErr)
	require.Contains(t, text, "/tmp/main.go:7")
	require.Equal(t, "/tmp/main.go", ts.backend.removedPath)
	require.Equal(t, 7, ts.backend.removedLine)
}

func TestTools_InfoBreakpoints(t *testing.T) {
	ts := newToolsTestSetup(t)
	defer ts.cleanup()

	ts.backend.bps = []types.Breakpoint{{Kind: types.BreakpointSource, Path: "/tmp/main.go", Line: 7}}

	text, isErr := callText(t, ts, "info", map[string]any{"type": "breakpoints"})
	require.False(t, isErr)
	require.Contains(t, text, "/tmp/main.go:7")
}

func TestTools_ContextNumNextLinesZeroIsRespected(t *testing.T) {
	ts := newToolsTestSetup(t)
	defer ts.cleanup()

	ts.backend.state = types.DebugState{SessionActive: true, FrameName: "main.main", FileFullPath: "/tmp/main.go", CurrentLine: 7}

	zero := 0
	b, err := ts.session.CallTool(ts.ctx, &mcp.CallToolParams{Name: "context", Arguments: map[string]any{"numNextLines": zero}})
	require.NoError(t, err)
	require.False(t, b.IsError)
	require.Equal(t, 0, ts.backend.lastNumNextLines)

	_, isErr := callText(t, ts, "context", map[string]any{})
	require.False(t, isErr)
	require.Equal(t, defaultContextLines, ts.backend.lastNumNextLines)
}

func TestTools_Output(t *testing.T) {
	ts := newToolsTestSetup(t)
	defer ts.cleanup()

	text, isErr := callText(t, ts, "output", map[string]any{})
	require.False(t, isErr)
	require.Contains(t, text, "hello, world")
}
