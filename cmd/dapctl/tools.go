package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/vajrock/dapctl/internal/backend"
	"github.com/vajrock/dapctl/internal/config"
	"github.com/vajrock/dapctl/internal/types"
)

// toolServer adapts the MCP tool surface to a backend.Backend. It holds no
// DAP state of its own: every debugging concern lives in the backend.
type toolServer struct {
	backend   backend.Backend
	cfg       *types.StandaloneConfig
	workspace string
	log       logrus.FieldLogger
}

func newToolServer(b backend.Backend, cfg *types.StandaloneConfig, workspace string, log logrus.FieldLogger) *toolServer {
	return &toolServer{backend: b, cfg: cfg, workspace: workspace, log: log}
}

// registerTools registers the debugger tools with the MCP server.
func (s *toolServer) registerTools(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "debug",
		Description: "Start a complete debugging session. Modes: 'source' (compile & debug), 'binary' (debug executable), 'attach' (connect to process). Returns full context at first breakpoint.",
	}, s.debug)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "stop",
		Description: "End the debugging session completely.",
	}, s.stop)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "restart",
		Description: "Restart the debugging session with optional new arguments.",
	}, s.restartDebugger)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "breakpoint",
		Description: "Set a breakpoint at file:line or on a function name.",
	}, s.breakpoint)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "clear-breakpoints",
		Description: "Remove one breakpoint (file+line), every breakpoint in a file, or all breakpoints.",
	}, s.clearBreakpoints)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "continue",
		Description: "Continue execution. Optionally specify 'to' location for run-to-cursor. Returns full context when stopped.",
	}, s.continueExecution)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "step",
		Description: "Step through code. Mode: 'over', 'in', or 'out'. Returns full context at new location.",
	}, s.step)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "pause",
		Description: "Pause a running program.",
	}, s.pauseExecution)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "context",
		Description: "Get full debugging context: current location and all variables.",
	}, s.context)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "evaluate",
		Description: "Evaluate an expression in the current context.",
	}, s.evaluateExpression)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "set-variable",
		Description: "Modify a variable's value in the debugged program.",
	}, s.setVariable)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "info",
		Description: "Get program metadata. Type: 'sources', 'modules', or 'breakpoints'.",
	}, s.info)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "disassemble",
		Description: "Disassemble code at a memory address.",
	}, s.disassembleCode)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "output",
		Description: "Retrieve recently buffered stdout/stderr from the debuggee.",
	}, s.output)
}

// BreakpointSpec specifies a breakpoint location.
type BreakpointSpec struct {
	File     string `json:"file,omitempty"`
	Line     int    `json:"line,omitempty"`
	Function string `json:"function,omitempty"`
}

func (b BreakpointSpec) toBreakpoint() types.Breakpoint {
	if b.Function != "" {
		return types.Breakpoint{Kind: types.BreakpointFunction, Name: b.Function}
	}
	return types.Breakpoint{Kind: types.BreakpointSource, Path: b.File, Line: b.Line}
}

// DebugParams defines the parameters for starting a complete debug session.
type DebugParams struct {
	Mode        string           `json:"mode" mcp:"'source' (compile & debug), 'binary' (debug executable), or 'attach' (connect to process)"`
	Path        string           `json:"path,omitempty" mcp:"program path (required for source/binary modes)"`
	Args        []string         `json:"args,omitempty" mcp:"command line arguments for the program"`
	Cwd         string           `json:"cwd,omitempty" mcp:"working directory for the program"`
	ProcessID   int              `json:"processId,omitempty" mcp:"process ID (required for attach mode)"`
	Breakpoints []BreakpointSpec `json:"breakpoints,omitempty" mcp:"initial breakpoints"`
	StopOnEntry bool             `json:"stopOnEntry,omitempty" mcp:"stop at program entry instead of running to first breakpoint"`
}

func (s *toolServer) debug(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[DebugParams]) (*mcp.CallToolResultFor[any], error) {
	args := params.Arguments

	switch args.Mode {
	case "source", "binary", "attach":
	default:
		return nil, fmt.Errorf("invalid mode: %s (must be 'source', 'binary', or 'attach')", args.Mode)
	}
	if args.Mode == "attach" {
		if args.ProcessID == 0 {
			return nil, fmt.Errorf("processId is required for attach mode")
		}
	} else if args.Path == "" {
		return nil, fmt.Errorf("path is required for %s mode", args.Mode)
	}

	overrides := types.DebugConfig{
		Args:        args.Args,
		Cwd:         args.Cwd,
		StopOnEntry: args.StopOnEntry,
	}
	if args.Mode == "attach" {
		overrides.Request = types.RequestAttach
	} else {
		overrides.Request = types.RequestLaunch
	}

	lookupPath := args.Path
	if lookupPath == "" {
		lookupPath = "." // attach mode: no file extension, so the adapter resolves to the fallback language
	}
	if !filepath.IsAbs(lookupPath) {
		lookupPath = filepath.Join(s.workspace, lookupPath)
	}
	dc, err := config.Resolve(s.cfg, lookupPath, overrides)
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"mode": args.Mode, "path": lookupPath}).Info("starting debug session")
	if args.Mode == "attach" {
		dc.Extra = map[string]any{"processId": args.ProcessID, "mode": "local"}
	} else if args.Mode == "binary" {
		dc.Extra = map[string]any{"mode": "exec"}
	} else {
		dc.Extra = map[string]any{"mode": "debug"}
	}

	adapterDesc := s.cfg.Adapters[dc.Type]

	bps := make([]types.Breakpoint, 0, len(args.Breakpoints))
	for _, bp := range args.Breakpoints {
		bps = append(bps, bp.toBreakpoint())
	}

	state, err := s.backend.StartDebugging(adapterDesc, dc, bps)
	if err != nil {
		return nil, err
	}
	return s.contextResult(state)
}

// StopParams defines parameters for stopping the debug session.
type StopParams struct{}

func (s *toolServer) stop(ctx context.Context, _ *mcp.ServerSession, _ *mcp.CallToolParamsFor[StopParams]) (*mcp.CallToolResultFor[any], error) {
	if !s.backend.HasActiveSession() {
		return textResult("No debug session active"), nil
	}
	if err := s.backend.StopDebugging(); err != nil {
		return nil, err
	}
	s.log.Info("debug session stopped")
	return textResult("Debug session stopped"), nil
}

// RestartParams defines the parameters for restarting the debugger.
type RestartParams struct {
	Args []string `json:"args,omitempty" mcp:"new command line arguments for the program upon restart, or empty to reuse previous arguments"`
}

func (s *toolServer) restartDebugger(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[RestartParams]) (*mcp.CallToolResultFor[any], error) {
	state, err := s.backend.Restart(params.Arguments.Args)
	if err != nil {
		return nil, err
	}
	return s.contextResult(state)
}

// BreakpointToolParams defines parameters for setting a breakpoint.
type BreakpointToolParams struct {
	File     string `json:"file,omitempty" mcp:"source file path (required if no function)"`
	Line     int    `json:"line,omitempty" mcp:"line number (required if file provided)"`
	Function string `json:"function,omitempty" mcp:"function name (alternative to file+line)"`
}

func (s *toolServer) breakpoint(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[BreakpointToolParams]) (*mcp.CallToolResultFor[any], error) {
	args := params.Arguments
	if args.Function == "" && (args.File == "" || args.Line == 0) {
		return nil, fmt.Errorf("either function or file+line is required")
	}
	spec := BreakpointSpec{File: args.File, Line: args.Line, Function: args.Function}
	if err := s.backend.SetBreakpoint(spec.toBreakpoint()); err != nil {
		return nil, err
	}
	if args.Function != "" {
		return textResult(fmt.Sprintf("Breakpoint set on function: %s", args.Function)), nil
	}
	return textResult(fmt.Sprintf("Breakpoint set at %s:%d", args.File, args.Line)), nil
}

// ClearBreakpointsParams defines parameters for clearing breakpoints.
type ClearBreakpointsParams struct {
	File string `json:"file,omitempty" mcp:"clear breakpoints in this file (or, with line, just that one)"`
	Line int    `json:"line,omitempty" mcp:"with file, remove only the breakpoint at this line"`
	All  bool   `json:"all,omitempty" mcp:"clear all breakpoints"`
}

func (s *toolServer) clearBreakpoints(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[ClearBreakpointsParams]) (*mcp.CallToolResultFor[any], error) {
	args := params.Arguments
	if args.All {
		if err := s.backend.ClearAllBreakpoints(); err != nil {
			return nil, err
		}
		return textResult("Cleared all breakpoints"), nil
	}
	if args.File == "" {
		return nil, fmt.Errorf("specify 'file' or 'all'")
	}
	if args.Line != 0 {
		if err := s.backend.RemoveBreakpoint(args.File, args.Line); err != nil {
			return nil, err
		}
		return textResult(fmt.Sprintf("Removed breakpoint at %s:%d", args.File, args.Line)), nil
	}
	if err := s.backend.ClearBreakpoints(args.File); err != nil {
		return nil, err
	}
	return textResult(fmt.Sprintf("Cleared breakpoints in: %s", args.File)), nil
}

// ContinueParams defines the parameters for continuing execution.
type ContinueParams struct {
	ThreadID int             `json:"threadId,omitempty" mcp:"thread to continue (default: current thread)"`
	To       *BreakpointSpec `json:"to,omitempty" mcp:"location to run to (sets a breakpoint before continuing)"`
}

func (s *toolServer) continueExecution(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[ContinueParams]) (*mcp.CallToolResultFor[any], error) {
	args := params.Arguments
	if args.To != nil {
		if err := s.backend.SetBreakpoint(args.To.toBreakpoint()); err != nil {
			return nil, err
		}
	}

	state, err := s.backend.Continue(args.ThreadID)
	if err != nil {
		return nil, err
	}
	if !state.SessionActive {
		return textResult("Program terminated"), nil
	}
	return s.contextResult(state)
}

// StepParams defines the parameters for stepping through code.
type StepParams struct {
	Mode     string `json:"mode" mcp:"'over' (next line), 'in' (into function), 'out' (out of function)"`
	ThreadID int    `json:"threadId,omitempty" mcp:"thread to step (default: current thread)"`
}

func (s *toolServer) step(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[StepParams]) (*mcp.CallToolResultFor[any], error) {
	args := params.Arguments
	var mode backend.StepMode
	switch args.Mode {
	case "over":
		mode = backend.StepOver
	case "in":
		mode = backend.StepIn
	case "out":
		mode = backend.StepOut
	default:
		return nil, fmt.Errorf("invalid step mode: %s (must be 'over', 'in', or 'out')", args.Mode)
	}

	state, err := s.backend.Step(mode, args.ThreadID)
	if err != nil {
		return nil, err
	}
	if !state.SessionActive {
		return textResult("Program terminated"), nil
	}
	return s.contextResult(state)
}

// PauseParams defines the parameters for pausing execution.
type PauseParams struct {
	ThreadID int `json:"threadId" mcp:"thread ID to pause"`
}

func (s *toolServer) pauseExecution(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[PauseParams]) (*mcp.CallToolResultFor[any], error) {
	if err := s.backend.Pause(params.Arguments.ThreadID); err != nil {
		return nil, err
	}
	return textResult("Paused execution"), nil
}

// defaultContextLines is how many source lines past the current one are
// included when the caller doesn't specify numNextLines.
const defaultContextLines = 5

// ContextParams defines the parameters for getting debugging context.
// NumNextLines is a pointer so an explicit 0 (current line only, no tail)
// can be distinguished from "omitted" (use defaultContextLines).
type ContextParams struct {
	NumNextLines *int `json:"numNextLines,omitempty" mcp:"number of source lines to include after the current line (default 5)"`
}

func (s *toolServer) context(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[ContextParams]) (*mcp.CallToolResultFor[any], error) {
	n := defaultContextLines
	if params.Arguments.NumNextLines != nil {
		n = *params.Arguments.NumNextLines
	}
	state, err := s.backend.GetCurrentDebugState(n)
	if err != nil {
		return nil, err
	}
	return s.contextResult(state)
}

func (s *toolServer) contextResult(state *types.DebugState) (*mcp.CallToolResultFor[any], error) {
	var b strings.Builder
	if !state.SessionActive {
		b.WriteString("No active debug session.\n")
		return textResultBuilder(&b), nil
	}

	b.WriteString("## Current Location\n")
	if state.FrameName != "" {
		fmt.Fprintf(&b, "Function: %s\n", state.FrameName)
	}
	if state.FileFullPath != "" {
		fmt.Fprintf(&b, "File: %s:%d\n", state.FileFullPath, state.CurrentLine)
	}
	if state.CurrentLineContent != "" {
		fmt.Fprintf(&b, "Line: %s\n", strings.TrimSpace(state.CurrentLineContent))
	}
	b.WriteString("\n")

	vars, err := s.backend.GetVariables(types.ScopeAll)
	if err == nil && len(vars) > 0 {
		b.WriteString("## Variables\n")
		for scope, sv := range vars {
			fmt.Fprintf(&b, "### %s\n", scope)
			if sv.Err != "" {
				fmt.Fprintf(&b, "  (unable to retrieve variables: %s)\n", sv.Err)
				continue
			}
			for _, v := range sv.Variables {
				if v.Type != "" {
					fmt.Fprintf(&b, "  %s (%s) = %s\n", v.Name, v.Type, v.Value)
				} else {
					fmt.Fprintf(&b, "  %s = %s\n", v.Name, v.Value)
				}
			}
		}
	}

	return textResultBuilder(&b), nil
}

// EvaluateParams defines the parameters for evaluating an expression.
type EvaluateParams struct {
	Expression string `json:"expression" mcp:"expression to evaluate"`
}

func (s *toolServer) evaluateExpression(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[EvaluateParams]) (*mcp.CallToolResultFor[any], error) {
	result, err := s.backend.EvaluateExpression(params.Arguments.Expression)
	if err != nil {
		return nil, err
	}
	text := result.Result
	if result.Type != "" {
		text = fmt.Sprintf("%s (type: %s)", result.Result, result.Type)
	}
	return textResult(text), nil
}

// SetVariableParams defines the parameters for setting a variable.
type SetVariableParams struct {
	VariablesReference int    `json:"variablesReference" mcp:"reference to the variable container"`
	Name               string `json:"name" mcp:"name of the variable to set"`
	Value              string `json:"value" mcp:"new value for the variable"`
}

func (s *toolServer) setVariable(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[SetVariableParams]) (*mcp.CallToolResultFor[any], error) {
	args := params.Arguments
	if err := s.backend.SetVariable(args.VariablesReference, args.Name, args.Value); err != nil {
		return nil, err
	}
	return textResult(fmt.Sprintf("Set variable %s to %s", args.Name, args.Value)), nil
}

// InfoParams defines parameters for getting program metadata.
type InfoParams struct {
	Type string `json:"type" mcp:"'sources' (loaded source files), 'modules' (loaded modules), or 'breakpoints' (tracked breakpoints)"`
}

func (s *toolServer) info(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[InfoParams]) (*mcp.CallToolResultFor[any], error) {
	switch params.Arguments.Type {
	case "breakpoints":
		var b strings.Builder
		b.WriteString("Breakpoints:\n")
		for path, bps := range s.backend.GetBreakpoints() {
			for _, bp := range bps {
				fmt.Fprintf(&b, "  %s:%d\n", path, bp.Line)
			}
		}
		return textResultBuilder(&b), nil

	case "sources":
		sources, err := s.backend.GetLoadedSources()
		if err != nil {
			return nil, err
		}
		var b strings.Builder
		b.WriteString("Loaded Sources:\n")
		for _, src := range sources {
			fmt.Fprintf(&b, "  %s\n", src)
		}
		return textResultBuilder(&b), nil

	case "modules":
		modules, err := s.backend.GetModules()
		if err != nil {
			return nil, err
		}
		var b strings.Builder
		b.WriteString("Loaded Modules:\n")
		for _, m := range modules {
			fmt.Fprintf(&b, "  %s (%s)\n", m.Name, m.Path)
		}
		return textResultBuilder(&b), nil

	default:
		return nil, fmt.Errorf("invalid type: %s (must be 'sources', 'modules', or 'breakpoints')", params.Arguments.Type)
	}
}

// DisassembleParams defines the parameters for disassembling code.
type DisassembleParams struct {
	MemoryReference   string `json:"memoryReference" mcp:"memory reference to disassemble"`
	InstructionOffset int    `json:"instructionOffset" mcp:"offset from the memory reference"`
	InstructionCount  int    `json:"instructionCount" mcp:"number of instructions to disassemble"`
}

func (s *toolServer) disassembleCode(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[DisassembleParams]) (*mcp.CallToolResultFor[any], error) {
	args := params.Arguments
	instructions, err := s.backend.Disassemble(args.MemoryReference, args.InstructionOffset, args.InstructionCount)
	if err != nil {
		return nil, err
	}
	var b strings.Builder
	for _, ins := range instructions {
		fmt.Fprintf(&b, "%s  %s\n", ins.Address, ins.Instruction)
	}
	return textResultBuilder(&b), nil
}

// OutputParams defines parameters for retrieving buffered output.
type OutputParams struct {
	MaxLines int `json:"maxLines,omitempty" mcp:"maximum number of most recent lines to return, stdout and stderr combined"`
}

func (s *toolServer) output(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[OutputParams]) (*mcp.CallToolResultFor[any], error) {
	res := s.backend.GetRecentOutput(types.OutputQuery{MaxLines: params.Arguments.MaxLines})
	var b strings.Builder
	if res.Stdout != "" {
		fmt.Fprintf(&b, "## stdout\n%s\n", res.Stdout)
	}
	if res.Stderr != "" {
		fmt.Fprintf(&b, "## stderr\n%s\n", res.Stderr)
	}
	if res.Truncated {
		b.WriteString("(output truncated)\n")
	}
	return textResultBuilder(&b), nil
}

func textResult(s string) *mcp.CallToolResultFor[any] {
	return &mcp.CallToolResultFor[any]{Content: []mcp.Content{&mcp.TextContent{Text: s}}}
}

func textResultBuilder(b *strings.Builder) *mcp.CallToolResultFor[any] {
	return textResult(b.String())
}
