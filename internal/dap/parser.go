// Package dap implements the Content-Length framed DAP wire codec and a
// request/response/event client built on top of it.
package dap

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/go-dap"
)

const headerSeparator = "\r\n\r\n"

type parserState int

const (
	stateSeekingHeader parserState = iota
	stateReadingBody
)

// Parser is a streaming, push-based DAP frame decoder. It holds no
// reference to any transport: callers feed it arbitrary byte chunks via
// Feed, and it returns every complete message the new bytes completed.
// Feeding the same byte sequence in any partition yields the same sequence
// of decoded messages (a malformed frame is dropped and never poisons the
// stream).
type Parser struct {
	buf           bytes.Buffer
	state         parserState
	contentLength int

	// OnParseError, if set, is invoked synchronously from Feed for every
	// frame whose body fails to decode as DAP JSON. Feed continues
	// processing the remainder of the buffer regardless.
	OnParseError func(error)
}

// NewParser returns a Parser ready to receive bytes.
func NewParser() *Parser {
	return &Parser{state: stateSeekingHeader}
}

// Feed appends data to the parser's internal buffer and decodes as many
// complete messages as the buffer now contains. It never blocks and never
// discards bytes that might still complete a future message.
func (p *Parser) Feed(data []byte) ([]dap.Message, error) {
	if len(data) > 0 {
		p.buf.Write(data)
	}

	var out []dap.Message
	for {
		progressed, msg, err := p.step()
		if err != nil {
			return out, err
		}
		if msg != nil {
			out = append(out, msg)
		}
		if !progressed {
			return out, nil
		}
	}
}

// step attempts to make one unit of progress against the buffered bytes.
// It returns progressed=false when there isn't enough data yet to do
// anything more.
func (p *Parser) step() (progressed bool, msg dap.Message, err error) {
	switch p.state {
	case stateSeekingHeader:
		raw := p.buf.Bytes()
		idx := bytes.Index(raw, []byte(headerSeparator))
		if idx < 0 {
			return false, nil, nil
		}

		header := raw[:idx]
		length, ok := parseContentLength(header)
		// Always consume through the separator, whether or not the header
		// was usable: a malformed frame must never poison the stream.
		p.buf.Next(idx + len(headerSeparator))

		if !ok {
			// Discard-and-continue: stay in stateSeekingHeader, try again
			// against whatever bytes remain.
			return true, nil, nil
		}

		p.contentLength = length
		p.state = stateReadingBody
		return true, nil, nil

	case stateReadingBody:
		if p.buf.Len() < p.contentLength {
			return false, nil, nil
		}

		body := make([]byte, p.contentLength)
		if _, readErr := p.buf.Read(body); readErr != nil {
			// Unreachable given the length check above, but fail closed.
			return false, nil, fmt.Errorf("dap: short read on body: %w", readErr)
		}
		p.state = stateSeekingHeader
		p.contentLength = 0

		decoded, decodeErr := dap.DecodeProtocolMessage(body)
		if decodeErr != nil {
			if p.OnParseError != nil {
				p.OnParseError(fmt.Errorf("dap: failed to decode message body: %w", decodeErr))
			}
			return true, nil, nil
		}
		return true, decoded, nil
	}

	return false, nil, nil
}

// parseContentLength scans a raw header block (one or more lines separated
// by \r\n) for a case-insensitive Content-Length header. Unknown headers
// are permitted and ignored.
func parseContentLength(header []byte) (int, bool) {
	lines := strings.Split(string(header), "\r\n")
	for _, line := range lines {
		if line == "" {
			continue
		}
		name, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// Encode frames a DAP message as Content-Length-prefixed JSON, suitable for
// writing directly to the adapter's stdin.
func Encode(msg dap.Message) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Content-Length: %d%s", len(body), headerSeparator)
	buf.Write(body)
	return buf.Bytes(), nil
}
