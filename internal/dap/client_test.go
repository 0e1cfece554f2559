package dap

import (
	"io"
	"testing"
	"time"

	godap "github.com/google/go-dap"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vajrock/dapctl/internal/types"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// newTestClient wires a Client to an in-memory fake adapter. handle is
// called once per decoded request; it may call reply to write a message
// back on the wire (zero or more times, synchronously or from a goroutine).
func newTestClient(t *testing.T, handle func(req godap.RequestMessage, reply func(godap.Message))) *Client {
	t.Helper()

	clientR, adapterW := io.Pipe()
	adapterR, clientW := io.Pipe()

	client := NewClient(clientW, testLogger())
	go client.Run(clientR)

	reply := func(msg godap.Message) {
		framed, err := Encode(msg)
		if err != nil {
			return
		}
		adapterW.Write(framed)
	}

	go func() {
		parser := NewParser()
		buf := make([]byte, 4096)
		for {
			n, err := adapterR.Read(buf)
			if n > 0 {
				msgs, _ := parser.Feed(buf[:n])
				for _, m := range msgs {
					if req, ok := m.(godap.RequestMessage); ok {
						handle(req, reply)
					}
				}
			}
			if err != nil {
				return
			}
		}
	}()

	t.Cleanup(func() {
		client.Close()
		adapterW.Close()
		clientW.Close()
	})

	return client
}

func successResponse(r *godap.Request) *godap.Response {
	return &godap.Response{
		ProtocolMessage: godap.ProtocolMessage{Type: "response"},
		RequestSeq:      r.Seq,
		Success:         true,
		Command:         r.Command,
	}
}

func TestClient_RequestResponseCorrelation(t *testing.T) {
	client := newTestClient(t, func(req godap.RequestMessage, reply func(godap.Message)) {
		r := req.GetRequest()
		reply(&godap.InitializeResponse{Response: *successResponse(r)})
	})

	resp, err := client.Initialize(godap.InitializeRequestArguments{ClientID: "test"})
	require.NoError(t, err)
	assert.True(t, resp.Success)
}

func TestClient_OutOfOrderResponsesStillCorrelate(t *testing.T) {
	client := newTestClient(t, func(req godap.RequestMessage, reply func(godap.Message)) {
		r := req.GetRequest()
		switch r.Command {
		case "next":
			go func() {
				time.Sleep(20 * time.Millisecond)
				reply(&godap.NextResponse{Response: *successResponse(r)})
			}()
		case "pause":
			reply(&godap.PauseResponse{Response: *successResponse(r)})
		}
	})

	done := make(chan error, 1)
	go func() {
		_, err := client.Next(1)
		done <- err
	}()

	_, err := client.Pause(1)
	require.NoError(t, err, "the faster 'pause' response must not be misrouted to the slower 'next' request")

	require.NoError(t, <-done)
}

func TestClient_RequestTimesOut(t *testing.T) {
	client := newTestClient(t, func(req godap.RequestMessage, reply func(godap.Message)) {
		// Never reply.
	})
	client.SetRequestTimeout(30 * time.Millisecond)

	_, err := client.Pause(1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestClient_OrphanResponseAfterTimeoutIsReported(t *testing.T) {
	client := newTestClient(t, func(req godap.RequestMessage, reply func(godap.Message)) {
		r := req.GetRequest()
		go func() {
			time.Sleep(60 * time.Millisecond)
			reply(&godap.PauseResponse{Response: *successResponse(r)})
		}()
	})
	client.SetRequestTimeout(20 * time.Millisecond)

	orphaned := make(chan struct{}, 1)
	client.OnOrphanResponse = func(godap.Message) {
		select {
		case orphaned <- struct{}{}:
		default:
		}
	}

	_, err := client.Pause(1)
	require.Error(t, err)

	select {
	case <-orphaned:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected the late response to be reported as an orphan")
	}
}

func TestClient_EventFanOut(t *testing.T) {
	client := newTestClient(t, func(req godap.RequestMessage, reply func(godap.Message)) {
		r := req.GetRequest()
		if r.Command == "continue" {
			reply(&godap.ContinueResponse{Response: *successResponse(r)})
			reply(&godap.StoppedEvent{
				Event: godap.Event{ProtocolMessage: godap.ProtocolMessage{Type: "event"}, Event: "stopped"},
				Body:  godap.StoppedEventBody{Reason: "breakpoint", ThreadId: 1},
			})
		}
	})

	all, cancelAll := client.Subscribe()
	defer cancelAll()
	stopped, cancelStopped := client.SubscribeEvent("stopped")
	defer cancelStopped()

	_, err := client.Continue(1)
	require.NoError(t, err)

	select {
	case msg := <-all:
		_, ok := msg.(*godap.StoppedEvent)
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("expected event on generic subscription")
	}

	select {
	case msg := <-stopped:
		ev := msg.(*godap.StoppedEvent)
		assert.Equal(t, "breakpoint", ev.Body.Reason)
	case <-time.After(time.Second):
		t.Fatal("expected event on named subscription")
	}
}

func TestClient_ReverseRequestGetsAutoFailureReply(t *testing.T) {
	replies := make(chan *godap.ErrorResponse, 1)

	clientR, adapterW := io.Pipe()
	adapterR, clientW := io.Pipe()
	client := NewClient(clientW, testLogger())
	go client.Run(clientR)
	t.Cleanup(func() { client.Close(); adapterW.Close(); clientW.Close() })

	go func() {
		parser := NewParser()
		buf := make([]byte, 4096)
		for {
			n, err := adapterR.Read(buf)
			if n > 0 {
				msgs, _ := parser.Feed(buf[:n])
				for _, m := range msgs {
					if resp, ok := m.(*godap.ErrorResponse); ok {
						select {
						case replies <- resp:
						default:
						}
					}
				}
			}
			if err != nil {
				return
			}
		}
	}()

	reverseSub, cancel := client.SubscribeReverseRequests()
	defer cancel()

	runInTerminal := &godap.RunInTerminalRequest{
		Request: godap.Request{ProtocolMessage: godap.ProtocolMessage{Seq: 100, Type: "request"}, Command: "runInTerminal"},
	}
	framed, err := Encode(runInTerminal)
	require.NoError(t, err)
	_, err = adapterW.Write(framed)
	require.NoError(t, err)

	select {
	case msg := <-reverseSub:
		_, ok := msg.(*godap.RunInTerminalRequest)
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("expected reverse request to be observable on the subscription")
	}

	select {
	case resp := <-replies:
		assert.False(t, resp.Success)
		assert.Equal(t, 100, resp.RequestSeq)
	case <-time.After(time.Second):
		t.Fatal("expected an automatic failure response on the wire")
	}
}

func TestClient_CloseFailsPendingRequests(t *testing.T) {
	client := newTestClient(t, func(req godap.RequestMessage, reply func(godap.Message)) {
		// Never reply; Close should unblock the caller instead.
	})

	done := make(chan error, 1)
	go func() {
		_, err := client.Pause(1)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	client.Close()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("Close must unblock pending Send calls")
	}
}

func TestClient_SendAfterCloseFailsImmediately(t *testing.T) {
	client := newTestClient(t, func(req godap.RequestMessage, reply func(godap.Message)) {})
	client.Close()

	_, err := client.Pause(1)
	require.Error(t, err)
	var closedErr *types.ClientClosedError
	require.ErrorAs(t, err, &closedErr)
}
