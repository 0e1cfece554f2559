// Package types holds the wire-neutral shapes the rest of dapctl is built
// around: debug configs, breakpoints, session state, and the synthesized
// views the backend hands back to callers.
package types

import "strings"

// RequestKind distinguishes a launch from an attach request.
type RequestKind string

const (
	RequestLaunch RequestKind = "launch"
	RequestAttach RequestKind = "attach"
)

// DebugConfig is a property bag describing how to launch or attach an
// adapter. Required fields are Type/Request/Name; everything else is
// conventional or adapter-specific and passed through opaquely.
type DebugConfig struct {
	Type        string         `json:"type"`
	Request     RequestKind    `json:"request"`
	Name        string         `json:"name"`
	Program     string         `json:"program,omitempty"`
	Args        []string       `json:"args,omitempty"`
	Cwd         string         `json:"cwd,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	StopOnEntry bool           `json:"stopOnEntry,omitempty"`

	// Extra carries adapter-specific fields the core does not inspect.
	// It is left out of DebugConfig's own JSON encoding; its entries are
	// merged unchanged into the launch/attach request arguments.
	Extra map[string]any `json:"-"`
}

// Uri is a file-system path plus its normalized (forward-slash) form.
type Uri struct {
	Path       string `json:"path"`
	Normalized string `json:"normalized"`
}

// NewUri builds a Uri, normalizing backslashes to forward slashes.
func NewUri(path string) Uri {
	return Uri{Path: path, Normalized: strings.ReplaceAll(path, `\`, "/")}
}

// BreakpointKind discriminates the Breakpoint tagged union.
type BreakpointKind int

const (
	BreakpointSource BreakpointKind = iota
	BreakpointFunction
)

// Breakpoint is a tagged union: a source (path+line) breakpoint or a
// function-name breakpoint.
type Breakpoint struct {
	Kind BreakpointKind

	// Source fields.
	Path   string
	Line   int
	Column int

	// Function fields.
	Name string

	// Shared optional fields.
	Condition    string
	HitCondition string
	LogMessage   string
}

// AdapterDescriptor describes how to spawn a single adapter binary.
type AdapterDescriptor struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Cwd     string            `json:"cwd,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// StandaloneConfig is the top-level shape of debugmcp.config.json.
type StandaloneConfig struct {
	Port     int                          `json:"port,omitempty"`
	Timeout  int                          `json:"timeout,omitempty"`
	Adapters map[string]AdapterDescriptor `json:"adapters"`
	Defaults map[string]map[string]any    `json:"defaults,omitempty"`
}

// OutputCategory is the DAP output event's category field.
type OutputCategory string

const (
	CategoryConsole   OutputCategory = "console"
	CategoryStdout    OutputCategory = "stdout"
	CategoryStderr    OutputCategory = "stderr"
	CategoryTelemetry OutputCategory = "telemetry"
)

// StoppedEvent mirrors the DAP 'stopped' event body the tracker cares about.
type StoppedEvent struct {
	Reason            string
	Description       string
	ThreadID          *int
	AllThreadsStopped bool
}

// OutputEvent mirrors the DAP 'output' event body.
type OutputEvent struct {
	Category OutputCategory
	Output   string
}

// TerminatedEvent mirrors the DAP 'terminated' event body.
type TerminatedEvent struct {
	Restart bool
}

// SourceRef is the subset of a DAP Source the core keeps around.
type SourceRef struct {
	Path string
	Name string
}

// FrameInfo is a single stack frame.
type FrameInfo struct {
	ID     int
	Name   string
	Line   int
	Column int
	Source *SourceRef
}

// ThreadInfo names one thread.
type ThreadInfo struct {
	ID   int
	Name string
}

// SessionState is the backend's session-lifecycle phase.
type SessionState string

const (
	StateInactive     SessionState = "inactive"
	StateInitializing SessionState = "initializing"
	StateRunning      SessionState = "running"
	StateStopped      SessionState = "stopped"
	StateTerminated   SessionState = "terminated"
)

// OutputRecord is one line in the bounded output ring buffer.
type OutputRecord struct {
	Text      string
	Category  OutputCategory
	Timestamp int64 // unix nanoseconds
}

// OutputQuery parameterizes a recent-output retrieval.
type OutputQuery struct {
	Since    int64 // unix nanoseconds; zero means "from the start"
	MaxLines int   // zero means "no limit"
}

// OutputResult is the retrieval result: stdout/console joined by newline,
// stderr joined by newline, and whether the result was capped.
type OutputResult struct {
	Stdout    string
	Stderr    string
	Truncated bool
}

// DebugState is the synthesized snapshot getCurrentDebugState returns.
type DebugState struct {
	SessionActive      bool
	FileFullPath       string
	FileName           string
	CurrentLine        int
	CurrentLineContent string
	NextLines          []string
	FrameID            *int
	ThreadID           *int
	FrameName          string
}

// VariableScope names which DAP scopes getVariables should keep.
type VariableScope string

const (
	ScopeLocal  VariableScope = "local"
	ScopeGlobal VariableScope = "global"
	ScopeAll    VariableScope = "all"
)

// Variable is one entry returned by a DAP 'variables' request.
type Variable struct {
	Name               string
	Value              string
	Type               string
	VariablesReference int
}

// ScopeVariables is the variables (or error) for one named scope.
type ScopeVariables struct {
	Variables []Variable
	Err       string
}

// EvaluateResult is the result of evaluating an expression.
type EvaluateResult struct {
	Result             string
	Type               string
	VariablesReference int
}

// ModuleInfo names one loaded module, as reported by a 'modules' request.
type ModuleInfo struct {
	ID   string
	Name string
	Path string
}

// Instruction is one disassembled instruction.
type Instruction struct {
	Address     string
	Instruction string
}
