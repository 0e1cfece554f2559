package backend

import "github.com/vajrock/dapctl/internal/types"

// StepMode names the three DAP step operations the backend exposes.
type StepMode string

const (
	StepOver StepMode = "over"
	StepIn   StepMode = "in"
	StepOut  StepMode = "out"
)

// Disposable removes the subscription it was returned from when invoked.
// Calling it more than once is a no-op.
type Disposable func()

// Backend is the uniform contract the outer tool surface (cmd/dapctl)
// drives. Every method hides the underlying DAP request/response/event
// plumbing behind synchronous, language-neutral calls.
type Backend interface {
	// StartDebugging spawns the adapter described by desc, performs
	// launch/attach per cfg.Request, applies the initial breakpoints, and
	// waits for the first stop or termination, giving up after a fixed
	// timeout. It returns the debug state at that point.
	StartDebugging(desc types.AdapterDescriptor, cfg types.DebugConfig, breakpoints []types.Breakpoint) (*types.DebugState, error)

	// StopDebugging tears down the active session, if any. It is a no-op
	// when no session is active.
	StopDebugging() error

	// HasActiveSession reports whether an adapter process is currently
	// supervised.
	HasActiveSession() bool

	// Restart asks the adapter to restart the debuggee, optionally with
	// new program arguments, and re-applies every currently tracked
	// breakpoint once the new process is ready.
	Restart(args []string) (*types.DebugState, error)

	// Continue resumes threadID (0 means the current thread, or the first
	// thread the adapter reports when none is current) and blocks until the
	// program stops again or terminates.
	Continue(threadID int) (*types.DebugState, error)

	// Step performs one step operation on threadID and blocks until the
	// program stops again or terminates.
	Step(mode StepMode, threadID int) (*types.DebugState, error)

	// Pause requests that threadID suspend.
	Pause(threadID int) error

	// SetBreakpoint adds bp to the tracked set and reconciles the
	// affected source (or the function breakpoint list) with the adapter.
	// It and the other breakpoint mutators below need an active session:
	// without one they fail with NoActiveSessionError and leave the tracked
	// set unchanged.
	SetBreakpoint(bp types.Breakpoint) error

	// ClearBreakpoints removes every tracked breakpoint for path and
	// reconciles the adapter with an explicit empty list.
	ClearBreakpoints(path string) error

	// ClearAllBreakpoints removes every tracked breakpoint, source and
	// function alike, and reconciles the adapter.
	ClearAllBreakpoints() error

	// RemoveBreakpoint drops the source breakpoint at path:line and
	// reconciles the adapter with the path's remaining list.
	RemoveBreakpoint(path string, line int) error

	// GetBreakpoints returns a snapshot of every tracked source breakpoint,
	// keyed by path.
	GetBreakpoints() map[string][]types.Breakpoint

	// GetCurrentDebugState synthesizes a DebugState snapshot from the
	// tracker's current thread/frame, refreshing the frame's source line
	// content from disk when possible. numNextLines controls how many
	// lines after the current one are spliced in; 0 returns the current
	// line with an empty tail.
	GetCurrentDebugState(numNextLines int) (*types.DebugState, error)

	// GetActiveFrameID returns the tracker's current frame id, and false
	// if there is no current frame.
	GetActiveFrameID() (int, bool)

	// GetVariables returns the variables visible in the given scope at
	// the current frame.
	GetVariables(scope types.VariableScope) (map[string]types.ScopeVariables, error)

	// EvaluateExpression evaluates expr in the current frame's context.
	EvaluateExpression(expr string) (*types.EvaluateResult, error)

	// SetVariable changes one variable's value in the debuggee.
	SetVariable(variablesReference int, name, value string) error

	// GetRecentOutput returns buffered adapter/debuggee output matching q.
	GetRecentOutput(q types.OutputQuery) types.OutputResult

	// OnStopped subscribes to 'stopped' events, fanned out synchronously in
	// registration order once the tracker's stop-driven frame refresh has
	// run. A panicking or erroring handler does not prevent the others from
	// being called.
	OnStopped(handler func(types.StoppedEvent)) Disposable

	// OnTerminated subscribes to session termination, however it occurs
	// (a 'terminated'/'exited' event, or the adapter process exiting).
	OnTerminated(handler func()) Disposable

	// OnOutput subscribes to adapter/debuggee output as it arrives.
	OnOutput(handler func(types.OutputRecord)) Disposable

	// GetLoadedSources lists every source file the adapter reports as
	// loaded into the debuggee.
	GetLoadedSources() ([]string, error)

	// GetModules lists every module the adapter reports as loaded.
	GetModules() ([]types.ModuleInfo, error)

	// Disassemble returns instructionCount instructions starting
	// instructionOffset past memoryReference.
	Disassemble(memoryReference string, instructionOffset, instructionCount int) ([]types.Instruction, error)

	// Dispose stops any active session. Registered subscribers stay
	// registered. Safe to call multiple times.
	Dispose() error
}
