package rrdcached

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// MaxLineLength is the longest response line the parser accepts,
// terminator excluded.
const MaxLineLength = 1 << 20

// maxPreallocLines caps body slice preallocation so a hostile status line
// cannot make the parser allocate up front.
const maxPreallocLines = 1024

// ParserState is the position of the Parser within a response.
type ParserState int

// Parser states.
const (
	AwaitingStatusLine ParserState = iota
	AwaitingBodyLines
	Complete
	Failed
)

// String returns the state name.
func (s ParserState) String() string {
	switch s {
	case AwaitingStatusLine:
		return "awaiting_status_line"
	case AwaitingBodyLines:
		return "awaiting_body_lines"
	case Complete:
		return "complete"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Parser turns a byte stream into Responses. Bytes arrive through Feed in
// chunks of any size; Next yields a Response only once every line it
// declares has arrived.
//
// A Parser is not safe for concurrent use.
type Parser struct {
	buf     []byte
	state   ParserState
	pending *Response
	err     error
}

// NewParser returns a parser awaiting a status line.
func NewParser() *Parser {
	return &Parser{}
}

// State returns the current state.
func (p *Parser) State() ParserState {
	return p.state
}

// Buffered returns the number of bytes fed but not yet consumed.
func (p *Parser) Buffered() int {
	return len(p.buf)
}

// Feed appends received bytes. Feeding a failed parser is a no-op.
func (p *Parser) Feed(b []byte) {
	if p.state == Failed {
		return
	}
	p.buf = append(p.buf, b...)
}

// Next returns the next complete response. It returns (nil, nil) when more
// bytes are needed. Any framing error moves the parser to Failed and is
// returned by every later call.
func (p *Parser) Next() (*Response, error) {
	if p.state == Failed {
		return nil, p.err
	}
	if p.state == Complete {
		p.state = AwaitingStatusLine
	}

	for {
		line, ok, err := p.takeLine()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}

		switch p.state {
		case AwaitingStatusLine:
			resp, err := p.acceptStatus(line)
			if err != nil {
				return nil, err
			}
			if resp != nil {
				return resp, nil
			}
		case AwaitingBodyLines:
			p.pending.Lines = append(p.pending.Lines, line)
			if len(p.pending.Lines) == p.pending.Code {
				return p.finish(), nil
			}
		}
	}
}

// NextLine returns one raw line, or ok == false when none is buffered yet.
// It is only valid between responses.
func (p *Parser) NextLine() (line string, ok bool, err error) {
	if p.state == Failed {
		return "", false, p.err
	}
	if p.state == AwaitingBodyLines {
		return "", false, p.fail("raw line requested in the middle of a response")
	}
	p.state = AwaitingStatusLine
	return p.takeLine()
}

// acceptStatus parses a status line. It returns the response when the
// line declares no body; otherwise it arms the body state and returns nil.
func (p *Parser) acceptStatus(line string) (*Response, error) {
	code, msg, err := parseStatusLine(line)
	if err != nil {
		return nil, p.fail(err.Error())
	}
	resp := &Response{Code: code, Message: msg}
	if code <= 0 {
		p.state = Complete
		return resp, nil
	}
	resp.Lines = make([]string, 0, min(code, maxPreallocLines))
	p.pending = resp
	p.state = AwaitingBodyLines
	return nil, nil
}

func (p *Parser) finish() *Response {
	resp := p.pending
	p.pending = nil
	p.state = Complete
	return resp
}

// takeLine removes one '\n'-terminated line from the buffer.
func (p *Parser) takeLine() (string, bool, error) {
	i := bytes.IndexByte(p.buf, '\n')
	if i < 0 {
		if len(p.buf) > MaxLineLength {
			return "", false, p.fail(fmt.Sprintf("line exceeds %d bytes", MaxLineLength))
		}
		return "", false, nil
	}
	if i > MaxLineLength {
		return "", false, p.fail(fmt.Sprintf("line exceeds %d bytes", MaxLineLength))
	}
	line := string(p.buf[:i])
	p.buf = p.buf[i+1:]
	if len(p.buf) == 0 {
		p.buf = p.buf[:0:0]
	}
	return line, true, nil
}

func (p *Parser) fail(detail string) error {
	p.state = Failed
	p.pending = nil
	p.buf = nil
	p.err = fmt.Errorf("%w: %s", ErrProtocol, detail)
	return p.err
}

// parseStatusLine splits "<code> <message>". A bare "<code>" is accepted
// with an empty message.
func parseStatusLine(line string) (int, string, error) {
	codeText, msg, _ := strings.Cut(line, " ")
	code, err := strconv.Atoi(codeText)
	if err != nil || codeText == "" || codeText[0] == '+' {
		return 0, "", fmt.Errorf("malformed status line %q", truncateForLog(line))
	}
	return code, msg, nil
}

func truncateForLog(s string) string {
	const limit = 80
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
