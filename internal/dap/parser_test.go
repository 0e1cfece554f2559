package dap

import (
	"fmt"
	"testing"

	godap "github.com/google/go-dap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frameInitializeResponse(seq, requestSeq int) []byte {
	msg := &godap.InitializeResponse{
		Response: godap.Response{
			ProtocolMessage: godap.ProtocolMessage{Seq: seq, Type: "response"},
			RequestSeq:      requestSeq,
			Success:         true,
			Command:         "initialize",
		},
	}
	b, err := Encode(msg)
	if err != nil {
		panic(err)
	}
	return b
}

func TestParser_SingleCompleteFrame(t *testing.T) {
	p := NewParser()
	framed := frameInitializeResponse(1, 1)

	msgs, err := p.Feed(framed)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	resp, ok := msgs[0].(*godap.InitializeResponse)
	require.True(t, ok)
	assert.True(t, resp.Success)
}

func TestParser_FragmentedAcrossThreeFeeds(t *testing.T) {
	p := NewParser()
	framed := frameInitializeResponse(2, 1)

	var all []godap.Message
	cut1 := len(framed) / 3
	cut2 := cut1 * 2

	for _, chunk := range [][]byte{framed[:cut1], framed[cut1:cut2], framed[cut2:]} {
		msgs, err := p.Feed(chunk)
		require.NoError(t, err)
		all = append(all, msgs...)
	}

	require.Len(t, all, 1)
	resp, ok := all[0].(*godap.InitializeResponse)
	require.True(t, ok)
	assert.Equal(t, 1, resp.RequestSeq)
}

func TestParser_CoalescedMessagesInOneFeed(t *testing.T) {
	p := NewParser()
	var combined []byte
	combined = append(combined, frameInitializeResponse(1, 1)...)
	combined = append(combined, frameInitializeResponse(2, 2)...)
	combined = append(combined, frameInitializeResponse(3, 3)...)

	msgs, err := p.Feed(combined)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	for i, m := range msgs {
		resp := m.(*godap.InitializeResponse)
		assert.Equal(t, i+1, resp.RequestSeq)
	}
}

func TestParser_PartitionInvariance(t *testing.T) {
	var whole []byte
	for i := 1; i <= 5; i++ {
		whole = append(whole, frameInitializeResponse(i, i)...)
	}

	baseline := NewParser()
	want, err := baseline.Feed(whole)
	require.NoError(t, err)
	require.Len(t, want, 5)

	partitions := [][]int{
		{len(whole)},
		{1, len(whole) - 1},
		{len(whole) / 2, len(whole) - len(whole)/2},
	}

	for _, sizes := range partitions {
		p := NewParser()
		var got []godap.Message
		offset := 0
		for _, size := range sizes {
			chunk := whole[offset : offset+size]
			offset += size
			msgs, err := p.Feed(chunk)
			require.NoError(t, err)
			got = append(got, msgs...)
		}
		require.Equal(t, len(want), len(got))
		for i := range want {
			assert.Equal(t, want[i].(*godap.InitializeResponse).RequestSeq, got[i].(*godap.InitializeResponse).RequestSeq)
		}
	}

	// Byte-at-a-time partition, the most extreme case.
	p := NewParser()
	var got []godap.Message
	for _, b := range whole {
		msgs, err := p.Feed([]byte{b})
		require.NoError(t, err)
		got = append(got, msgs...)
	}
	require.Equal(t, len(want), len(got))
}

func TestParser_MalformedFrameDoesNotPoisonStream(t *testing.T) {
	p := NewParser()
	var parseErrors int
	p.OnParseError = func(error) { parseErrors++ }

	bad := []byte(fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len("not json"), "not json"))
	good := frameInitializeResponse(9, 9)

	msgs, err := p.Feed(append(bad, good...))
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, 1, parseErrors)

	resp := msgs[0].(*godap.InitializeResponse)
	assert.Equal(t, 9, resp.RequestSeq)
}

func TestParser_MissingContentLengthHeaderDiscardsAndContinues(t *testing.T) {
	p := NewParser()
	bad := []byte("X-Other-Header: 1\r\n\r\n")
	good := frameInitializeResponse(4, 4)

	msgs, err := p.Feed(append(bad, good...))
	require.NoError(t, err)
	require.Len(t, msgs, 1)
}

func TestEncode_ProducesValidContentLengthFrame(t *testing.T) {
	msg := &godap.InitializeResponse{
		Response: godap.Response{
			ProtocolMessage: godap.ProtocolMessage{Seq: 1, Type: "response"},
			RequestSeq:      1,
			Success:         true,
			Command:         "initialize",
		},
	}
	framed, err := Encode(msg)
	require.NoError(t, err)

	p := NewParser()
	msgs, err := p.Feed(framed)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
}
