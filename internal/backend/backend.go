// Package backend orchestrates a single debug session: it drives the DAP
// client through the launch/attach handshake, keeps breakpoints and
// session state reconciled, and exposes the uniform Backend contract the
// tool surface calls into.
package backend

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	godap "github.com/google/go-dap"
	"github.com/sirupsen/logrus"

	"github.com/vajrock/dapctl/internal/adapter"
	"github.com/vajrock/dapctl/internal/dap"
	"github.com/vajrock/dapctl/internal/state"
	"github.com/vajrock/dapctl/internal/types"
)

const (
	initializedEventTimeout = 10 * time.Second
	launchResponseTimeout   = 10 * time.Second
	stopEventTimeout        = 30 * time.Second
	sourceContextLines      = 5
)

var _ Backend = (*Orchestrator)(nil)

// Orchestrator is the default Backend implementation.
type Orchestrator struct {
	log     logrus.FieldLogger
	sup     *adapter.Supervisor
	tracker *state.Tracker
	bps     *breakpointStore

	mu         sync.Mutex
	client     *dap.Client
	desc       types.AdapterDescriptor
	cfg        types.DebugConfig
	cancelSubs []func()
	stopNotify chan struct{}

	evMu           sync.Mutex
	nextSubID      int
	stoppedSubs    []stoppedSub
	terminatedSubs []terminatedSub
	outputSubs     []outputSub
}

type stoppedSub struct {
	id int
	fn func(types.StoppedEvent)
}

type terminatedSub struct {
	id int
	fn func()
}

type outputSub struct {
	id int
	fn func(types.OutputRecord)
}

// New builds an Orchestrator. log may be nil, in which case the standard
// logrus logger is used.
func New(log logrus.FieldLogger) *Orchestrator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	o := &Orchestrator{
		log:        log,
		sup:        adapter.New(log),
		tracker:    state.NewTracker(),
		bps:        newBreakpointStore(),
		stopNotify: make(chan struct{}, 1),
	}
	o.sup.OnExit(o.handleAdapterExit)
	return o
}

func (o *Orchestrator) activeClient() *dap.Client {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.client
}

// HasActiveSession reports whether a debug session is currently running.
func (o *Orchestrator) HasActiveSession() bool {
	return o.activeClient() != nil
}

// StartDebugging implements Backend.
func (o *Orchestrator) StartDebugging(desc types.AdapterDescriptor, cfg types.DebugConfig, breakpoints []types.Breakpoint) (*types.DebugState, error) {
	if o.HasActiveSession() {
		return nil, fmt.Errorf("backend: a debug session is already active")
	}

	client, err := o.sup.Start(context.Background(), desc)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	o.client = client
	o.desc = desc
	o.cfg = cfg
	o.mu.Unlock()

	o.tracker.Reset()
	o.tracker.Transition(types.StateInitializing)

	initializedSub, cancelInit := client.SubscribeEvent("initialized")
	events, cancelEvents := client.Subscribe()

	o.mu.Lock()
	o.cancelSubs = []func(){cancelInit, cancelEvents}
	o.mu.Unlock()

	go o.dispatchEvents(events)

	launchErr := make(chan error, 1)
	go func() {
		var err error
		if cfg.Request == types.RequestAttach {
			_, err = client.Attach(launchArgs(cfg))
		} else {
			_, err = client.Launch(launchArgs(cfg))
		}
		launchErr <- err
	}()

	launchDone := false
	var launchResult error
	waitLaunch := func(timeout time.Duration) error {
		if launchDone {
			return launchResult
		}
		select {
		case err := <-launchErr:
			launchDone = true
			launchResult = err
			return err
		case <-time.After(timeout):
			command := "launch"
			if cfg.Request == types.RequestAttach {
				command = "attach"
			}
			return &types.RequestTimedOutError{Command: command, Ms: timeout.Milliseconds()}
		}
	}

	select {
	case <-initializedSub:
	case err := <-launchErr:
		launchDone = true
		launchResult = err
		if err != nil {
			o.abortStart()
			return nil, err
		}
		select {
		case <-initializedSub:
		case <-time.After(2 * time.Second):
			o.abortStart()
			return nil, &types.InitializationTimeoutError{Timeout: "2s"}
		}
	case <-time.After(initializedEventTimeout):
		o.abortStart()
		return nil, &types.InitializationTimeoutError{Timeout: initializedEventTimeout.String()}
	}

	if err := o.applyInitialBreakpoints(breakpoints); err != nil {
		o.abortStart()
		return nil, err
	}

	if _, err := client.ConfigurationDone(); err != nil {
		o.abortStart()
		return nil, err
	}

	if err := waitLaunch(launchResponseTimeout); err != nil {
		o.abortStart()
		return nil, err
	}

	o.tracker.Transition(types.StateRunning)
	return o.awaitStop(stopEventTimeout)
}

// abortStart tears down a partially-started session after a setup failure.
func (o *Orchestrator) abortStart() {
	o.sup.Stop()
	o.mu.Lock()
	o.client = nil
	for _, cancel := range o.cancelSubs {
		cancel()
	}
	o.cancelSubs = nil
	o.mu.Unlock()
	o.tracker.Transition(types.StateInactive)
}

// StopDebugging implements Backend.
func (o *Orchestrator) StopDebugging() error {
	if !o.HasActiveSession() {
		return nil
	}
	if err := o.sup.Stop(); err != nil {
		o.log.WithError(err).Warn("backend: adapter teardown reported an error")
	}

	o.mu.Lock()
	o.client = nil
	for _, cancel := range o.cancelSubs {
		cancel()
	}
	o.cancelSubs = nil
	o.mu.Unlock()

	o.tracker.Transition(types.StateInactive)
	return nil
}

// Dispose implements Backend.
func (o *Orchestrator) Dispose() error {
	return o.StopDebugging()
}

// OnStopped implements Backend.
func (o *Orchestrator) OnStopped(handler func(types.StoppedEvent)) Disposable {
	o.evMu.Lock()
	id := o.nextSubID
	o.nextSubID++
	o.stoppedSubs = append(o.stoppedSubs, stoppedSub{id: id, fn: handler})
	o.evMu.Unlock()
	return func() {
		o.evMu.Lock()
		defer o.evMu.Unlock()
		for i, s := range o.stoppedSubs {
			if s.id == id {
				o.stoppedSubs = append(o.stoppedSubs[:i], o.stoppedSubs[i+1:]...)
				return
			}
		}
	}
}

// OnTerminated implements Backend.
func (o *Orchestrator) OnTerminated(handler func()) Disposable {
	o.evMu.Lock()
	id := o.nextSubID
	o.nextSubID++
	o.terminatedSubs = append(o.terminatedSubs, terminatedSub{id: id, fn: handler})
	o.evMu.Unlock()
	return func() {
		o.evMu.Lock()
		defer o.evMu.Unlock()
		for i, s := range o.terminatedSubs {
			if s.id == id {
				o.terminatedSubs = append(o.terminatedSubs[:i], o.terminatedSubs[i+1:]...)
				return
			}
		}
	}
}

// OnOutput implements Backend.
func (o *Orchestrator) OnOutput(handler func(types.OutputRecord)) Disposable {
	o.evMu.Lock()
	id := o.nextSubID
	o.nextSubID++
	o.outputSubs = append(o.outputSubs, outputSub{id: id, fn: handler})
	o.evMu.Unlock()
	return func() {
		o.evMu.Lock()
		defer o.evMu.Unlock()
		for i, s := range o.outputSubs {
			if s.id == id {
				o.outputSubs = append(o.outputSubs[:i], o.outputSubs[i+1:]...)
				return
			}
		}
	}
}

// fireStopped fans out a 'stopped' event synchronously, in registration
// order. A panicking or erroring subscriber is logged and does not stop
// the remaining ones from running.
func (o *Orchestrator) fireStopped(ev types.StoppedEvent) {
	o.evMu.Lock()
	subs := make([]stoppedSub, len(o.stoppedSubs))
	copy(subs, o.stoppedSubs)
	o.evMu.Unlock()
	for _, s := range subs {
		o.safeCall("stopped", func() { s.fn(ev) })
	}
}

func (o *Orchestrator) fireTerminated() {
	o.evMu.Lock()
	subs := make([]terminatedSub, len(o.terminatedSubs))
	copy(subs, o.terminatedSubs)
	o.evMu.Unlock()
	for _, s := range subs {
		o.safeCall("terminated", func() { s.fn() })
	}
}

func (o *Orchestrator) fireOutput(rec types.OutputRecord) {
	o.evMu.Lock()
	subs := make([]outputSub, len(o.outputSubs))
	copy(subs, o.outputSubs)
	o.evMu.Unlock()
	for _, s := range subs {
		o.safeCall("output", func() { s.fn(rec) })
	}
}

// safeCall runs fn, recovering and logging a panic instead of propagating
// it: a subscriber's failure must never prevent its siblings from
// observing the same event.
func (o *Orchestrator) safeCall(event string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			o.log.WithField("event", event).Warnf("backend: subscriber panicked: %v", r)
		}
	}()
	fn()
}

// handleAdapterExit is registered with the supervisor so an adapter
// process that exits without StopDebugging having been called (a crash)
// still drives the tracker to terminated and notifies subscribers.
func (o *Orchestrator) handleAdapterExit(crashErr error) {
	if !o.HasActiveSession() {
		return
	}

	o.mu.Lock()
	o.client = nil
	for _, cancel := range o.cancelSubs {
		cancel()
	}
	o.cancelSubs = nil
	o.mu.Unlock()

	o.tracker.Transition(types.StateTerminated)
	o.fireTerminated()
	o.notifyStop()

	if crashErr != nil {
		o.log.WithError(crashErr).Warn("backend: adapter exited unexpectedly")
	}
}

func (o *Orchestrator) dispatchEvents(events <-chan godap.Message) {
	for msg := range events {
		switch ev := msg.(type) {
		case *godap.StoppedEvent:
			var threadID *int
			if ev.Body.ThreadId != 0 {
				id := ev.Body.ThreadId
				threadID = &id
			}
			o.tracker.OnStopped(types.StoppedEvent{
				Reason:            ev.Body.Reason,
				Description:       ev.Body.Description,
				ThreadID:          threadID,
				AllThreadsStopped: ev.Body.AllThreadsStopped,
			})
			if threadID != nil {
				o.refreshFrame(*threadID)
			}
			o.fireStopped(types.StoppedEvent{
				Reason:            ev.Body.Reason,
				Description:       ev.Body.Description,
				ThreadID:          threadID,
				AllThreadsStopped: ev.Body.AllThreadsStopped,
			})
			o.notifyStop()

		case *godap.ContinuedEvent:
			o.tracker.OnContinued()

		case *godap.OutputEvent:
			category := types.OutputCategory(orDefault(ev.Body.Category, string(types.CategoryConsole)))
			now := time.Now().UnixNano()
			lines := strings.FieldsFunc(ev.Body.Output, func(r rune) bool { return r == '\r' || r == '\n' })
			for _, line := range lines {
				rec := types.OutputRecord{Text: line, Category: category, Timestamp: now}
				o.tracker.RecordOutput(rec)
				o.fireOutput(rec)
			}

		case *godap.TerminatedEvent:
			o.tracker.Transition(types.StateTerminated)
			o.fireTerminated()
			o.notifyStop()

		case *godap.ExitedEvent:
			o.tracker.Transition(types.StateTerminated)
			o.fireTerminated()
			o.notifyStop()
		}
	}
}

func (o *Orchestrator) notifyStop() {
	o.mu.Lock()
	ch := o.stopNotify
	o.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (o *Orchestrator) refreshFrame(threadID int) {
	client := o.activeClient()
	if client == nil {
		return
	}
	o.tracker.SetCurrentThreadID(threadID)

	resp, err := client.StackTrace(threadID, 0, 1)
	if err != nil || len(resp.Body.StackFrames) == 0 {
		return
	}
	top := resp.Body.StackFrames[0]

	frame := types.FrameInfo{
		ID:     top.Id,
		Name:   top.Name,
		Line:   top.Line,
		Column: top.Column,
	}
	if top.Source != nil {
		frame.Source = &types.SourceRef{Path: top.Source.Path, Name: top.Source.Name}
	}
	o.tracker.SetCurrentFrame(frame)
}

func (o *Orchestrator) awaitStop(timeout time.Duration) (*types.DebugState, error) {
	o.mu.Lock()
	ch := o.stopNotify
	o.mu.Unlock()

	select {
	case <-ch:
	case <-time.After(timeout):
	}
	return o.GetCurrentDebugState(sourceContextLines)
}

// Continue implements Backend.
func (o *Orchestrator) Continue(threadID int) (*types.DebugState, error) {
	client := o.activeClient()
	if client == nil {
		return nil, &types.NoActiveSessionError{}
	}
	id, err := o.ensureThreadId(client, threadID)
	if err != nil {
		return nil, err
	}
	if _, err := client.Continue(id); err != nil {
		return nil, err
	}
	return o.awaitStop(stopEventTimeout)
}

// Step implements Backend.
func (o *Orchestrator) Step(mode StepMode, threadID int) (*types.DebugState, error) {
	client := o.activeClient()
	if client == nil {
		return nil, &types.NoActiveSessionError{}
	}
	id, err := o.ensureThreadId(client, threadID)
	if err != nil {
		return nil, err
	}

	switch mode {
	case StepOver:
		_, err = client.Next(id)
	case StepIn:
		_, err = client.StepIn(id)
	case StepOut:
		_, err = client.StepOut(id)
	default:
		return nil, fmt.Errorf("backend: unknown step mode %q", mode)
	}
	if err != nil {
		return nil, err
	}
	return o.awaitStop(stopEventTimeout)
}

// Pause implements Backend.
func (o *Orchestrator) Pause(threadID int) error {
	client := o.activeClient()
	if client == nil {
		return &types.NoActiveSessionError{}
	}
	id, err := o.ensureThreadId(client, threadID)
	if err != nil {
		return err
	}
	_, err = client.Pause(id)
	return err
}

// ensureThreadId resolves the thread id a stepping/continue/pause
// operation should target. requested, when non-zero, is used and recorded
// as the tracker's current thread. Otherwise the tracker's current thread
// is used if one is set; failing that, a 'threads' request is issued and
// the first thread returned becomes the current one (the documented
// single-thread policy). It fails with NoThreadsAvailableError if the
// adapter reports no threads at all.
func (o *Orchestrator) ensureThreadId(client *dap.Client, requested int) (int, error) {
	if requested != 0 {
		o.tracker.SetCurrentThreadID(requested)
		return requested, nil
	}
	if id := o.tracker.CurrentThreadID(); id != nil {
		return *id, nil
	}

	resp, err := client.Threads()
	if err != nil {
		return 0, err
	}
	if len(resp.Body.Threads) == 0 {
		return 0, &types.NoThreadsAvailableError{}
	}
	id := resp.Body.Threads[0].Id
	o.tracker.SetCurrentThreadID(id)
	return id, nil
}

// Restart implements Backend.
func (o *Orchestrator) Restart(args []string) (*types.DebugState, error) {
	client := o.activeClient()
	if client == nil {
		return nil, &types.NoActiveSessionError{}
	}

	o.mu.Lock()
	cfg := o.cfg
	o.mu.Unlock()
	if len(args) > 0 {
		cfg.Args = args
	}

	if _, err := client.Restart(map[string]any{"arguments": launchArgs(cfg)}); err != nil {
		return nil, err
	}

	for path, bps := range o.bps.Sources() {
		if _, err := client.SetBreakpoints(path, toSourceBreakpoints(bps)); err != nil {
			o.log.WithError(err).WithField("path", path).Warn("backend: failed to re-apply breakpoints after restart")
		}
	}
	if fns := o.bps.Functions(); len(fns) > 0 {
		if _, err := client.SetFunctionBreakpoints(toFunctionBreakpoints(fns)); err != nil {
			o.log.WithError(err).Warn("backend: failed to re-apply function breakpoints after restart")
		}
	}

	o.tracker.Transition(types.StateRunning)
	return o.awaitStop(stopEventTimeout)
}

// SetBreakpoint implements Backend.
func (o *Orchestrator) SetBreakpoint(bp types.Breakpoint) error {
	client := o.activeClient()
	if client == nil {
		return &types.NoActiveSessionError{}
	}

	if bp.Kind == types.BreakpointFunction {
		all := append(o.bps.Functions(), bp)
		current := o.bps.SetFunctions(all)
		_, err := client.SetFunctionBreakpoints(toFunctionBreakpoints(current))
		return err
	}

	path := bp.Path
	current := o.bps.AddSource(path, bp)
	_, err := client.SetBreakpoints(path, toSourceBreakpoints(current))
	return err
}

// ClearBreakpoints implements Backend.
func (o *Orchestrator) ClearBreakpoints(path string) error {
	client := o.activeClient()
	if client == nil {
		return &types.NoActiveSessionError{}
	}
	o.bps.ClearSource(path)
	_, err := client.SetBreakpoints(path, nil)
	return err
}

// RemoveBreakpoint implements Backend.
func (o *Orchestrator) RemoveBreakpoint(path string, line int) error {
	client := o.activeClient()
	if client == nil {
		return &types.NoActiveSessionError{}
	}
	remaining := o.bps.RemoveSource(path, line)
	_, err := client.SetBreakpoints(path, toSourceBreakpoints(remaining))
	return err
}

// GetBreakpoints implements Backend.
func (o *Orchestrator) GetBreakpoints() map[string][]types.Breakpoint {
	return o.bps.Sources()
}

// ClearAllBreakpoints implements Backend.
func (o *Orchestrator) ClearAllBreakpoints() error {
	client := o.activeClient()
	if client == nil {
		return &types.NoActiveSessionError{}
	}

	paths := o.bps.ClearAll()
	for _, path := range paths {
		if _, err := client.SetBreakpoints(path, nil); err != nil {
			return err
		}
	}
	_, err := client.SetFunctionBreakpoints(nil)
	return err
}

func (o *Orchestrator) applyInitialBreakpoints(breakpoints []types.Breakpoint) error {
	client := o.activeClient()
	if client == nil {
		return &types.NoActiveSessionError{}
	}

	var functions []types.Breakpoint
	for _, bp := range breakpoints {
		if bp.Kind == types.BreakpointFunction {
			functions = append(functions, bp)
			continue
		}
		current := o.bps.AddSource(bp.Path, bp)
		if _, err := client.SetBreakpoints(bp.Path, toSourceBreakpoints(current)); err != nil {
			return err
		}
	}
	if len(functions) > 0 {
		current := o.bps.SetFunctions(functions)
		if _, err := client.SetFunctionBreakpoints(toFunctionBreakpoints(current)); err != nil {
			return err
		}
	}
	return nil
}

// GetCurrentDebugState implements Backend.
func (o *Orchestrator) GetCurrentDebugState(numNextLines int) (*types.DebugState, error) {
	if !o.HasActiveSession() {
		return &types.DebugState{}, nil
	}

	ds := &types.DebugState{SessionActive: true}
	frame := o.tracker.CurrentFrame()
	threadID := o.tracker.CurrentThreadID()
	if frame == nil || threadID == nil {
		return ds, nil
	}

	frameID := frame.ID
	ds.FrameID = &frameID
	ds.ThreadID = threadID
	ds.FrameName = frame.Name
	ds.CurrentLine = frame.Line

	if frame.Source != nil {
		ds.FileFullPath = frame.Source.Path
		ds.FileName = filepath.Base(frame.Source.Path)
		if content, next, err := readSourceContext(frame.Source.Path, frame.Line, numNextLines); err == nil {
			ds.CurrentLineContent = content
			ds.NextLines = next
		}
	}
	return ds, nil
}

// GetActiveFrameID implements Backend.
func (o *Orchestrator) GetActiveFrameID() (int, bool) {
	frame := o.tracker.CurrentFrame()
	if frame == nil {
		return 0, false
	}
	return frame.ID, true
}

// GetVariables implements Backend.
func (o *Orchestrator) GetVariables(scope types.VariableScope) (map[string]types.ScopeVariables, error) {
	client := o.activeClient()
	if client == nil {
		return nil, &types.NoActiveSessionError{}
	}
	frame := o.tracker.CurrentFrame()
	if frame == nil {
		return nil, &types.NoActiveSessionError{}
	}

	scopesResp, err := client.Scopes(frame.ID)
	if err != nil {
		return nil, err
	}

	out := make(map[string]types.ScopeVariables, len(scopesResp.Body.Scopes))
	for _, s := range scopesResp.Body.Scopes {
		if !scopeMatches(scope, s.Name) {
			continue
		}
		if s.VariablesReference <= 0 {
			out[s.Name] = types.ScopeVariables{}
			continue
		}
		varsResp, err := client.Variables(s.VariablesReference)
		if err != nil {
			out[s.Name] = types.ScopeVariables{Err: err.Error()}
			continue
		}
		vars := make([]types.Variable, 0, len(varsResp.Body.Variables))
		for _, v := range varsResp.Body.Variables {
			vars = append(vars, types.Variable{
				Name:               v.Name,
				Value:              v.Value,
				Type:               v.Type,
				VariablesReference: v.VariablesReference,
			})
		}
		out[s.Name] = types.ScopeVariables{Variables: vars}
	}
	return out, nil
}

func scopeMatches(want types.VariableScope, scopeName string) bool {
	if want == types.ScopeAll || want == "" {
		return true
	}
	lower := strings.ToLower(scopeName)
	switch want {
	case types.ScopeLocal:
		return strings.Contains(lower, "local")
	case types.ScopeGlobal:
		return strings.Contains(lower, "global")
	}
	return false
}

// EvaluateExpression implements Backend.
func (o *Orchestrator) EvaluateExpression(expr string) (*types.EvaluateResult, error) {
	client := o.activeClient()
	if client == nil {
		return nil, &types.NoActiveSessionError{}
	}
	frame := o.tracker.CurrentFrame()
	frameID := 0
	if frame != nil {
		frameID = frame.ID
	}

	resp, err := client.Evaluate(expr, frameID, "repl")
	if err != nil {
		return nil, err
	}
	return &types.EvaluateResult{
		Result:             resp.Body.Result,
		Type:               resp.Body.Type,
		VariablesReference: resp.Body.VariablesReference,
	}, nil
}

// SetVariable implements Backend.
func (o *Orchestrator) SetVariable(variablesReference int, name, value string) error {
	client := o.activeClient()
	if client == nil {
		return &types.NoActiveSessionError{}
	}
	_, err := client.SetVariable(variablesReference, name, value)
	return err
}

// GetRecentOutput implements Backend.
func (o *Orchestrator) GetRecentOutput(q types.OutputQuery) types.OutputResult {
	return o.tracker.Query(q)
}

// GetLoadedSources implements Backend.
func (o *Orchestrator) GetLoadedSources() ([]string, error) {
	client := o.activeClient()
	if client == nil {
		return nil, &types.NoActiveSessionError{}
	}
	resp, err := client.LoadedSources()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(resp.Body.Sources))
	for _, src := range resp.Body.Sources {
		out = append(out, src.Path)
	}
	return out, nil
}

// GetModules implements Backend.
func (o *Orchestrator) GetModules() ([]types.ModuleInfo, error) {
	client := o.activeClient()
	if client == nil {
		return nil, &types.NoActiveSessionError{}
	}
	resp, err := client.Modules(0, 0)
	if err != nil {
		return nil, err
	}
	out := make([]types.ModuleInfo, 0, len(resp.Body.Modules))
	for _, m := range resp.Body.Modules {
		out = append(out, types.ModuleInfo{
			ID:   fmt.Sprintf("%v", m.Id),
			Name: m.Name,
			Path: m.Path,
		})
	}
	return out, nil
}

// Disassemble implements Backend.
func (o *Orchestrator) Disassemble(memoryReference string, instructionOffset, instructionCount int) ([]types.Instruction, error) {
	client := o.activeClient()
	if client == nil {
		return nil, &types.NoActiveSessionError{}
	}
	resp, err := client.Disassemble(memoryReference, instructionOffset, instructionCount)
	if err != nil {
		return nil, err
	}
	out := make([]types.Instruction, 0, len(resp.Body.Instructions))
	for _, ins := range resp.Body.Instructions {
		out = append(out, types.Instruction{Address: ins.Address, Instruction: ins.Instruction})
	}
	return out, nil
}

func launchArgs(cfg types.DebugConfig) map[string]any {
	args := map[string]any{
		"name":        cfg.Name,
		"type":        cfg.Type,
		"request":     string(cfg.Request),
		"program":     cfg.Program,
		"args":        cfg.Args,
		"cwd":         cfg.Cwd,
		"env":         cfg.Env,
		"stopOnEntry": cfg.StopOnEntry,
	}
	for k, v := range cfg.Extra {
		args[k] = v
	}
	return args
}

func toSourceBreakpoints(bps []types.Breakpoint) []godap.SourceBreakpoint {
	out := make([]godap.SourceBreakpoint, 0, len(bps))
	for _, bp := range bps {
		out = append(out, godap.SourceBreakpoint{
			Line:         bp.Line,
			Column:       bp.Column,
			Condition:    bp.Condition,
			HitCondition: bp.HitCondition,
			LogMessage:   bp.LogMessage,
		})
	}
	return out
}

func toFunctionBreakpoints(bps []types.Breakpoint) []godap.FunctionBreakpoint {
	out := make([]godap.FunctionBreakpoint, 0, len(bps))
	for _, bp := range bps {
		out = append(out, godap.FunctionBreakpoint{
			Name:         bp.Name,
			Condition:    bp.Condition,
			HitCondition: bp.HitCondition,
		})
	}
	return out
}

// readSourceContext returns the text of line (1-indexed) and the next n
// lines following it.
func readSourceContext(path string, line, n int) (string, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	current := 1
	var lineContent string
	var next []string
	for scanner.Scan() {
		switch {
		case current == line:
			lineContent = scanner.Text()
		case current > line && len(next) < n:
			next = append(next, scanner.Text())
		}
		if current > line && len(next) >= n {
			break
		}
		current++
	}
	return lineContent, next, scanner.Err()
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
