package dap

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	godap "github.com/google/go-dap"
	"github.com/sirupsen/logrus"

	"github.com/vajrock/dapctl/internal/types"
)

// DefaultRequestTimeout is the per-request timer duration used when a
// Client is constructed without an explicit override.
const DefaultRequestTimeout = 30 * time.Second

type pendingRequest struct {
	command string
	ch      chan godap.Message
	timer   *time.Timer
}

// Client is a full-duplex DAP codec and request/response correlator over
// an arbitrary byte stream (typically an adapter child's stdio). It owns
// exactly one reader goroutine draining the stream (see §9 "single-consumer
// stream"); all other state is protected by mutexes.
type Client struct {
	w   io.Writer
	log logrus.FieldLogger

	writeMu sync.Mutex

	seq int64 // atomic; next value handed out starts at 1

	pendingMu sync.Mutex
	pending   map[int]*pendingRequest

	requestTimeout time.Duration

	subsMu    sync.Mutex
	allEvents []chan godap.Message
	named     map[string][]chan godap.Message
	reverse   []chan godap.Message

	closedMu sync.Mutex
	closed   bool

	// OnOrphanResponse is invoked (outside any lock) when a response
	// arrives for a request that has already timed out or was never
	// pending. Exposed for tests; defaults to a log line.
	OnOrphanResponse func(godap.Message)
}

// NewClient builds a Client that writes framed messages to w. Call
// Run to begin feeding it bytes read from the adapter.
func NewClient(w io.Writer, log logrus.FieldLogger) *Client {
	if log == nil {
		log = logrus.StandardLogger()
	}
	c := &Client{
		w:              w,
		log:            log,
		pending:        make(map[int]*pendingRequest),
		named:          make(map[string][]chan godap.Message),
		requestTimeout: DefaultRequestTimeout,
	}
	c.OnOrphanResponse = func(msg godap.Message) {
		c.log.WithField("type", fmt.Sprintf("%T", msg)).Warn("dap: orphan response received")
	}
	return c
}

// SetRequestTimeout overrides the per-request timeout (default 30s).
func (c *Client) SetRequestTimeout(d time.Duration) {
	c.requestTimeout = d
}

// Run drains r in a loop, feeding a Parser and dispatching decoded
// messages, until r returns an error (including io.EOF) or the parser
// fails; either way it closes the client before returning. Closing the
// client does not by itself stop Run. Run is meant to be invoked from its
// own goroutine; it blocks until the stream ends.
func (c *Client) Run(r io.Reader) {
	parser := NewParser()
	parser.OnParseError = func(err error) {
		c.log.WithError(err).Warn("dap: discarding malformed frame")
	}

	buf := make([]byte, 64*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			msgs, feedErr := parser.Feed(buf[:n])
			for _, m := range msgs {
				c.handleMessage(m)
			}
			if feedErr != nil {
				c.log.WithError(feedErr).Error("dap: parser error, closing client")
				c.Close()
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				c.log.WithError(err).Warn("dap: read error, closing client")
			}
			c.Close()
			return
		}
	}
}

func (c *Client) handleMessage(msg godap.Message) {
	switch m := msg.(type) {
	case godap.ResponseMessage:
		resp := m.GetResponse()
		c.pendingMu.Lock()
		entry, ok := c.pending[resp.RequestSeq]
		if ok {
			delete(c.pending, resp.RequestSeq)
		}
		c.pendingMu.Unlock()

		if !ok {
			if c.OnOrphanResponse != nil {
				c.OnOrphanResponse(msg)
			}
			return
		}
		entry.timer.Stop()
		entry.ch <- msg

	case godap.EventMessage:
		c.broadcastEvent(msg)

	case godap.RequestMessage:
		c.handleReverseRequest(m)

	default:
		c.log.WithField("type", fmt.Sprintf("%T", msg)).Warn("dap: unrecognized message shape")
	}
}

func (c *Client) broadcastEvent(msg godap.Message) {
	ev, ok := msg.(godap.EventMessage)
	name := ""
	if ok {
		name = ev.GetEvent().Event
	}

	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for _, ch := range c.allEvents {
		select {
		case ch <- msg:
		default:
			c.log.Warn("dap: dropping event, subscriber buffer full")
		}
	}
	for _, ch := range c.named[name] {
		select {
		case ch <- msg:
		default:
			c.log.Warn("dap: dropping named event, subscriber buffer full")
		}
	}
}

// handleReverseRequest fans the request out to any reverse-request
// subscribers, then sends a generic failure response so the adapter is
// never left waiting on a reverse request nobody answered (§5 supplement).
func (c *Client) handleReverseRequest(m godap.RequestMessage) {
	req := m.GetRequest()

	c.subsMu.Lock()
	for _, ch := range c.reverse {
		select {
		case ch <- m:
		default:
			c.log.Warn("dap: dropping reverse request, subscriber buffer full")
		}
	}
	c.subsMu.Unlock()

	resp := &godap.ErrorResponse{
		Response: godap.Response{
			ProtocolMessage: godap.ProtocolMessage{Seq: c.nextSeq(), Type: "response"},
			RequestSeq:      req.Seq,
			Success:         false,
			Command:         req.Command,
		},
		Body: godap.ErrorResponseBody{
			Error: &godap.ErrorMessage{Format: "reverse request not handled by this client"},
		},
	}
	if err := c.write(resp); err != nil {
		c.log.WithError(err).Warn("dap: failed to auto-respond to reverse request")
	}
}

// Subscribe returns a channel of every event the client receives and a
// cancel function that unsubscribes it.
func (c *Client) Subscribe() (<-chan godap.Message, func()) {
	ch := make(chan godap.Message, 64)
	c.subsMu.Lock()
	c.allEvents = append(c.allEvents, ch)
	c.subsMu.Unlock()

	cancel := func() {
		c.subsMu.Lock()
		defer c.subsMu.Unlock()
		c.allEvents = removeChan(c.allEvents, ch)
	}
	return ch, cancel
}

// SubscribeEvent returns a channel scoped to one named DAP event (e.g.
// "stopped", "output", "initialized").
func (c *Client) SubscribeEvent(name string) (<-chan godap.Message, func()) {
	ch := make(chan godap.Message, 64)
	c.subsMu.Lock()
	c.named[name] = append(c.named[name], ch)
	c.subsMu.Unlock()

	cancel := func() {
		c.subsMu.Lock()
		defer c.subsMu.Unlock()
		c.named[name] = removeChan(c.named[name], ch)
	}
	return ch, cancel
}

// SubscribeReverseRequests returns a channel of adapter-initiated requests.
// The client answers them with a generic failure on the wire regardless;
// this stream is purely observational.
func (c *Client) SubscribeReverseRequests() (<-chan godap.Message, func()) {
	ch := make(chan godap.Message, 16)
	c.subsMu.Lock()
	c.reverse = append(c.reverse, ch)
	c.subsMu.Unlock()

	cancel := func() {
		c.subsMu.Lock()
		defer c.subsMu.Unlock()
		c.reverse = removeChan(c.reverse, ch)
	}
	return ch, cancel
}

func removeChan(chans []chan godap.Message, target chan godap.Message) []chan godap.Message {
	out := chans[:0]
	for _, ch := range chans {
		if ch != target {
			out = append(out, ch)
		}
	}
	return out
}

func (c *Client) nextSeq() int {
	return int(atomic.AddInt64(&c.seq, 1))
}

func (c *Client) write(msg godap.Message) error {
	framed, err := Encode(msg)
	if err != nil {
		return fmt.Errorf("dap: failed to encode message: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err = c.w.Write(framed)
	return err
}

// Send issues req (whose Seq must already be set via nextSeq, done by every
// typed wrapper below) and blocks until the correlated response arrives, the
// per-request timer fires, or the client is closed.
func (c *Client) Send(command string, req godap.Message) (godap.Message, error) {
	c.closedMu.Lock()
	closed := c.closed
	c.closedMu.Unlock()
	if closed {
		return nil, &types.ClientClosedError{}
	}

	seq := req.GetSeq()
	ch := make(chan godap.Message, 1)
	timer := time.AfterFunc(c.requestTimeout, func() {
		c.pendingMu.Lock()
		entry, ok := c.pending[seq]
		if ok {
			delete(c.pending, seq)
		}
		c.pendingMu.Unlock()
		if ok {
			entry.ch <- nil // sentinel: timed out
		}
	})

	c.pendingMu.Lock()
	c.pending[seq] = &pendingRequest{command: command, ch: ch, timer: timer}
	c.pendingMu.Unlock()

	if err := c.write(req); err != nil {
		c.pendingMu.Lock()
		delete(c.pending, seq)
		c.pendingMu.Unlock()
		timer.Stop()
		return nil, fmt.Errorf("dap: failed to send %s request: %w", command, err)
	}

	resp := <-ch
	if resp == nil {
		// nil is sent both by the timer and by Close; tell them apart.
		c.closedMu.Lock()
		closedNow := c.closed
		c.closedMu.Unlock()
		if closedNow {
			return nil, &types.ClientClosedError{}
		}
		return nil, &types.RequestTimedOutError{Command: command, Ms: c.requestTimeout.Milliseconds()}
	}

	if rm, ok := resp.(godap.ResponseMessage); ok {
		r := rm.GetResponse()
		if !r.Success {
			return resp, &types.RequestFailedError{Command: command, Message: r.Message}
		}
	}
	return resp, nil
}

// Close marks the client closed, fails every pending request exactly once,
// and makes all future Send calls fail immediately. Close is idempotent.
func (c *Client) Close() error {
	c.closedMu.Lock()
	if c.closed {
		c.closedMu.Unlock()
		return nil
	}
	c.closed = true
	c.closedMu.Unlock()

	c.pendingMu.Lock()
	pending := c.pending
	c.pending = make(map[int]*pendingRequest)
	c.pendingMu.Unlock()

	for _, entry := range pending {
		entry.timer.Stop()
		entry.ch <- nil
	}
	return nil
}

// requestSeq stamps a freshly built Request's ProtocolMessage with the next
// sequence number and type "request".
func (c *Client) requestSeq() godap.ProtocolMessage {
	return godap.ProtocolMessage{Seq: c.nextSeq(), Type: "request"}
}

// --- Typed convenience wrappers -------------------------------------------

func (c *Client) Initialize(args godap.InitializeRequestArguments) (*godap.InitializeResponse, error) {
	req := &godap.InitializeRequest{
		Request:   godap.Request{ProtocolMessage: c.requestSeq(), Command: "initialize"},
		Arguments: args,
	}
	resp, err := c.Send("initialize", req)
	return typed[*godap.InitializeResponse](resp, err)
}

func (c *Client) Launch(args any) (*godap.LaunchResponse, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("dap: failed to marshal launch arguments: %w", err)
	}
	req := &godap.LaunchRequest{
		Request:   godap.Request{ProtocolMessage: c.requestSeq(), Command: "launch"},
		Arguments: raw,
	}
	resp, sendErr := c.Send("launch", req)
	return typed[*godap.LaunchResponse](resp, sendErr)
}

func (c *Client) Attach(args any) (*godap.AttachResponse, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("dap: failed to marshal attach arguments: %w", err)
	}
	req := &godap.AttachRequest{
		Request:   godap.Request{ProtocolMessage: c.requestSeq(), Command: "attach"},
		Arguments: raw,
	}
	resp, sendErr := c.Send("attach", req)
	return typed[*godap.AttachResponse](resp, sendErr)
}

func (c *Client) Disconnect(terminateDebuggee bool) (*godap.DisconnectResponse, error) {
	req := &godap.DisconnectRequest{
		Request: godap.Request{ProtocolMessage: c.requestSeq(), Command: "disconnect"},
		Arguments: godap.DisconnectArguments{
			TerminateDebuggee: terminateDebuggee,
		},
	}
	resp, err := c.Send("disconnect", req)
	return typed[*godap.DisconnectResponse](resp, err)
}

func (c *Client) Terminate(restart bool) (*godap.TerminateResponse, error) {
	req := &godap.TerminateRequest{
		Request:   godap.Request{ProtocolMessage: c.requestSeq(), Command: "terminate"},
		Arguments: godap.TerminateArguments{Restart: restart},
	}
	resp, err := c.Send("terminate", req)
	return typed[*godap.TerminateResponse](resp, err)
}

func (c *Client) SetBreakpoints(path string, bps []godap.SourceBreakpoint) (*godap.SetBreakpointsResponse, error) {
	req := &godap.SetBreakpointsRequest{
		Request: godap.Request{ProtocolMessage: c.requestSeq(), Command: "setBreakpoints"},
		Arguments: godap.SetBreakpointsArguments{
			Source:      godap.Source{Path: path},
			Breakpoints: bps,
		},
	}
	resp, err := c.Send("setBreakpoints", req)
	return typed[*godap.SetBreakpointsResponse](resp, err)
}

func (c *Client) SetFunctionBreakpoints(bps []godap.FunctionBreakpoint) (*godap.SetFunctionBreakpointsResponse, error) {
	req := &godap.SetFunctionBreakpointsRequest{
		Request:   godap.Request{ProtocolMessage: c.requestSeq(), Command: "setFunctionBreakpoints"},
		Arguments: godap.SetFunctionBreakpointsArguments{Breakpoints: bps},
	}
	resp, err := c.Send("setFunctionBreakpoints", req)
	return typed[*godap.SetFunctionBreakpointsResponse](resp, err)
}

func (c *Client) ConfigurationDone() (*godap.ConfigurationDoneResponse, error) {
	req := &godap.ConfigurationDoneRequest{
		Request: godap.Request{ProtocolMessage: c.requestSeq(), Command: "configurationDone"},
	}
	resp, err := c.Send("configurationDone", req)
	return typed[*godap.ConfigurationDoneResponse](resp, err)
}

func (c *Client) Continue(threadID int) (*godap.ContinueResponse, error) {
	req := &godap.ContinueRequest{
		Request:   godap.Request{ProtocolMessage: c.requestSeq(), Command: "continue"},
		Arguments: godap.ContinueArguments{ThreadId: threadID},
	}
	resp, err := c.Send("continue", req)
	return typed[*godap.ContinueResponse](resp, err)
}

func (c *Client) Next(threadID int) (*godap.NextResponse, error) {
	req := &godap.NextRequest{
		Request:   godap.Request{ProtocolMessage: c.requestSeq(), Command: "next"},
		Arguments: godap.NextArguments{ThreadId: threadID},
	}
	resp, err := c.Send("next", req)
	return typed[*godap.NextResponse](resp, err)
}

func (c *Client) StepIn(threadID int) (*godap.StepInResponse, error) {
	req := &godap.StepInRequest{
		Request:   godap.Request{ProtocolMessage: c.requestSeq(), Command: "stepIn"},
		Arguments: godap.StepInArguments{ThreadId: threadID},
	}
	resp, err := c.Send("stepIn", req)
	return typed[*godap.StepInResponse](resp, err)
}

func (c *Client) StepOut(threadID int) (*godap.StepOutResponse, error) {
	req := &godap.StepOutRequest{
		Request:   godap.Request{ProtocolMessage: c.requestSeq(), Command: "stepOut"},
		Arguments: godap.StepOutArguments{ThreadId: threadID},
	}
	resp, err := c.Send("stepOut", req)
	return typed[*godap.StepOutResponse](resp, err)
}

func (c *Client) Pause(threadID int) (*godap.PauseResponse, error) {
	req := &godap.PauseRequest{
		Request:   godap.Request{ProtocolMessage: c.requestSeq(), Command: "pause"},
		Arguments: godap.PauseArguments{ThreadId: threadID},
	}
	resp, err := c.Send("pause", req)
	return typed[*godap.PauseResponse](resp, err)
}

func (c *Client) StackTrace(threadID, startFrame, levels int) (*godap.StackTraceResponse, error) {
	req := &godap.StackTraceRequest{
		Request: godap.Request{ProtocolMessage: c.requestSeq(), Command: "stackTrace"},
		Arguments: godap.StackTraceArguments{
			ThreadId:   threadID,
			StartFrame: startFrame,
			Levels:     levels,
		},
	}
	resp, err := c.Send("stackTrace", req)
	return typed[*godap.StackTraceResponse](resp, err)
}

func (c *Client) Scopes(frameID int) (*godap.ScopesResponse, error) {
	req := &godap.ScopesRequest{
		Request:   godap.Request{ProtocolMessage: c.requestSeq(), Command: "scopes"},
		Arguments: godap.ScopesArguments{FrameId: frameID},
	}
	resp, err := c.Send("scopes", req)
	return typed[*godap.ScopesResponse](resp, err)
}

func (c *Client) Variables(variablesReference int) (*godap.VariablesResponse, error) {
	req := &godap.VariablesRequest{
		Request:   godap.Request{ProtocolMessage: c.requestSeq(), Command: "variables"},
		Arguments: godap.VariablesArguments{VariablesReference: variablesReference},
	}
	resp, err := c.Send("variables", req)
	return typed[*godap.VariablesResponse](resp, err)
}

func (c *Client) Evaluate(expression string, frameID int, context string) (*godap.EvaluateResponse, error) {
	req := &godap.EvaluateRequest{
		Request: godap.Request{ProtocolMessage: c.requestSeq(), Command: "evaluate"},
		Arguments: godap.EvaluateArguments{
			Expression: expression,
			FrameId:    frameID,
			Context:    context,
		},
	}
	resp, err := c.Send("evaluate", req)
	return typed[*godap.EvaluateResponse](resp, err)
}

func (c *Client) Threads() (*godap.ThreadsResponse, error) {
	req := &godap.ThreadsRequest{
		Request: godap.Request{ProtocolMessage: c.requestSeq(), Command: "threads"},
	}
	resp, err := c.Send("threads", req)
	return typed[*godap.ThreadsResponse](resp, err)
}

func (c *Client) Source(sourceRef int, path string) (*godap.SourceResponse, error) {
	req := &godap.SourceRequest{
		Request: godap.Request{ProtocolMessage: c.requestSeq(), Command: "source"},
		Arguments: godap.SourceArguments{
			Source:          &godap.Source{Path: path, SourceReference: sourceRef},
			SourceReference: sourceRef,
		},
	}
	resp, err := c.Send("source", req)
	return typed[*godap.SourceResponse](resp, err)
}

func (c *Client) Restart(args any) (*godap.RestartResponse, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("dap: failed to marshal restart arguments: %w", err)
	}
	req := &godap.RestartRequest{
		Request:   godap.Request{ProtocolMessage: c.requestSeq(), Command: "restart"},
		Arguments: raw,
	}
	resp, sendErr := c.Send("restart", req)
	return typed[*godap.RestartResponse](resp, sendErr)
}

func (c *Client) LoadedSources() (*godap.LoadedSourcesResponse, error) {
	req := &godap.LoadedSourcesRequest{
		Request: godap.Request{ProtocolMessage: c.requestSeq(), Command: "loadedSources"},
	}
	resp, err := c.Send("loadedSources", req)
	return typed[*godap.LoadedSourcesResponse](resp, err)
}

func (c *Client) Modules(startModule, moduleCount int) (*godap.ModulesResponse, error) {
	req := &godap.ModulesRequest{
		Request: godap.Request{ProtocolMessage: c.requestSeq(), Command: "modules"},
		Arguments: godap.ModulesArguments{
			StartModule: startModule,
			ModuleCount: moduleCount,
		},
	}
	resp, err := c.Send("modules", req)
	return typed[*godap.ModulesResponse](resp, err)
}

func (c *Client) SetVariable(variablesReference int, name, value string) (*godap.SetVariableResponse, error) {
	req := &godap.SetVariableRequest{
		Request: godap.Request{ProtocolMessage: c.requestSeq(), Command: "setVariable"},
		Arguments: godap.SetVariableArguments{
			VariablesReference: variablesReference,
			Name:               name,
			Value:              value,
		},
	}
	resp, err := c.Send("setVariable", req)
	return typed[*godap.SetVariableResponse](resp, err)
}

func (c *Client) Disassemble(memoryReference string, instructionOffset, instructionCount int) (*godap.DisassembleResponse, error) {
	req := &godap.DisassembleRequest{
		Request: godap.Request{ProtocolMessage: c.requestSeq(), Command: "disassemble"},
		Arguments: godap.DisassembleArguments{
			MemoryReference:   memoryReference,
			InstructionOffset: instructionOffset,
			InstructionCount:  instructionCount,
		},
	}
	resp, err := c.Send("disassemble", req)
	return typed[*godap.DisassembleResponse](resp, err)
}

// typed asserts resp to T, preserving a non-nil err (including a
// RequestFailedError carrying the raw response) over a failed assertion.
func typed[T godap.Message](resp godap.Message, err error) (T, error) {
	var zero T
	if resp == nil {
		return zero, err
	}
	t, ok := resp.(T)
	if !ok {
		if err != nil {
			return zero, err
		}
		return zero, fmt.Errorf("dap: unexpected response type %T", resp)
	}
	return t, err
}
