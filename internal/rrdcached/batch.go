package rrdcached

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// batchTerminator ends the command list of a batch.
var batchTerminator = []byte(".\n")

// BatchState is the lifecycle position of a BatchSession.
type BatchState int

// Batch session states.
const (
	BatchOpen BatchState = iota
	BatchClosed
	BatchAborted
)

// String returns the state name.
func (s BatchState) String() string {
	switch s {
	case BatchOpen:
		return "open"
	case BatchClosed:
		return "closed"
	case BatchAborted:
		return "aborted"
	default:
		return fmt.Sprintf("batch_state(%d)", int(s))
	}
}

// BatchResult is the outcome of one command submitted in a batch.
type BatchResult struct {
	Command Command

	// Message is the daemon's text for this command, when it sent one.
	Message string

	// Err is nil on success, otherwise a *ResponseError.
	Err error
}

// BatchSession submits commands without waiting for per-command replies
// and collects every outcome at Commit.
//
// A session holds the Conn in ModeBatch from BeginBatch until Commit.
// Ordinary Issue calls fail with ErrBadRequest meanwhile.
type BatchSession struct {
	conn *Conn

	mu       sync.Mutex
	state    BatchState
	commands []Command

	// closing is the negative closing status of the reply, if any.
	closing error
}

// BeginBatch sends BATCH and, once the daemon accepts it, returns a session
// that owns the connection until Commit.
func (c *Conn) BeginBatch(ctx context.Context) (*BatchSession, error) {
	if err := c.usable(); err != nil {
		return nil, err
	}
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.release()

	switch c.Mode() {
	case ModeClosed:
		return nil, c.closedErr()
	case ModeBatch:
		return nil, badRequest("a batch is already open")
	}

	line, _ := Encode(Batch{})
	resp, err := c.roundTrip(ctx, line)
	if err != nil {
		return nil, err
	}
	if resp.Code < 0 {
		c.daemonErrors.Add(1)
		return nil, resp.Err()
	}

	c.setMode(ModeBatch)
	c.logDebug("batch opened")
	return &BatchSession{conn: c, state: BatchOpen}, nil
}

// State returns the session state.
func (s *BatchSession) State() BatchState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Len returns the number of commands submitted so far.
func (s *BatchSession) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.commands)
}

func (s *BatchSession) setState(state BatchState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Add validates cmd and writes it as one line. The reply arrives at Commit.
// A validation failure returns ErrBadRequest and leaves the session open.
func (s *BatchSession) Add(ctx context.Context, cmd Command) error {
	if cmd != nil {
		switch cmd.Verb() {
		case VerbBatch, VerbQuit:
			return badRequest("%s is not allowed inside a batch", cmd.Verb())
		}
	}
	line, err := Encode(cmd)
	if err != nil {
		return err
	}

	c := s.conn
	if err := c.acquire(ctx); err != nil {
		return err
	}
	defer c.release()

	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := c.send(ctx, line); err != nil {
		s.abort(err)
		return err
	}
	s.mu.Lock()
	s.commands = append(s.commands, cmd)
	s.mu.Unlock()
	return nil
}

// Commit sends the terminator and decodes one result per submitted
// command, index-aligned with the Add calls. The connection returns to
// ModeNormal.
//
// A negative closing status is returned as a *ResponseError alongside the
// results. A stream or framing failure aborts the session, closes the
// connection and returns no results.
func (s *BatchSession) Commit(ctx context.Context) ([]BatchResult, error) {
	c := s.conn
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.release()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var results []BatchResult
	err := c.guarded(ctx, func() error {
		if err := c.write(batchTerminator); err != nil {
			return err
		}
		var err error
		results, err = s.readResults()
		return err
	})
	if err != nil {
		s.abort(err)
		return nil, err
	}

	s.setState(BatchClosed)
	c.setMode(ModeNormal)
	c.batches.Add(1)

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	c.daemonErrors.Add(uint64(failed))
	c.logDebug("batch committed", "commands", len(results), "failed", failed)
	return results, s.closing
}

// Abort abandons an open session. The daemon is still collecting batch
// lines, so the stream cannot be resynchronized: the connection is closed
// and later calls fail with ErrConnectionClosed. Abort is a no-op once the
// session is Closed or Aborted.
func (s *BatchSession) Abort() {
	s.mu.Lock()
	open := s.state == BatchOpen
	s.mu.Unlock()
	if open {
		s.abort(errors.New("batch abandoned"))
	}
}

// abort moves the session to Aborted and closes the connection. A write
// that failed on a context check left the stream intact, but the daemon
// is still batching, so that case is fatal here too.
func (s *BatchSession) abort(cause error) {
	s.setState(BatchAborted)
	if KindOf(cause) != KindConnectionClosed {
		cause = fmt.Errorf("%w: %w", ErrConnectionClosed, cause)
	}
	_ = s.conn.fail(cause)
}

func (s *BatchSession) checkOpen() error {
	state := s.State()
	switch {
	case state == BatchAborted || s.conn.Mode() == ModeClosed:
		s.setState(BatchAborted)
		return s.conn.closedErr()
	case state != BatchOpen:
		return badRequest("batch already committed")
	}
	return nil
}

// readResults decodes the reply to the terminator. Two layouts exist:
//
//	per-command:  one "OK ..." or "-<code> <message>" line per command,
//	              then a closing status line
//	error summary: "<k> errors" followed by k "<command-number> <message>"
//	              lines; unlisted commands succeeded
//
// The first line tells them apart. A reply cut short is a framing failure.
// Must hold conn.sem.
func (s *BatchSession) readResults() ([]BatchResult, error) {
	c := s.conn
	n := len(s.commands)
	results := make([]BatchResult, n)
	for i, cmd := range s.commands {
		results[i].Command = cmd
	}

	first, err := c.readLine()
	if err != nil {
		return nil, truncated(err)
	}

	if n > 0 && isPerCommandLine(first) {
		if err := decodePerCommandLine(first, &results[0]); err != nil {
			return nil, err
		}
		for i := 1; i < n; i++ {
			line, err := c.readLine()
			if err != nil {
				return nil, truncated(err)
			}
			if err := decodePerCommandLine(line, &results[i]); err != nil {
				return nil, err
			}
		}
		resp, err := c.readResponse()
		if err != nil {
			return nil, truncated(err)
		}
		s.closing = resp.Err()
		return results, nil
	}

	resp, err := c.parser.acceptStatus(first)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		if resp, err = c.readResponse(); err != nil {
			return nil, truncated(err)
		}
	}
	if resp.Code < 0 {
		s.closing = resp.Err()
		return results, nil
	}
	seen := make(map[int]bool, len(resp.Lines))
	for _, line := range resp.Lines {
		idx, msg, err := parseSummaryLine(line, n)
		if err != nil {
			return nil, err
		}
		if seen[idx] {
			return nil, fmt.Errorf("%w: batch reply lists command %d twice", ErrProtocol, idx+1)
		}
		seen[idx] = true
		results[idx].Message = msg
		results[idx].Err = newResponseError(-1, msg)
	}
	return results, nil
}

func isPerCommandLine(line string) bool {
	return strings.HasPrefix(line, "OK") || strings.HasPrefix(line, "-")
}

func decodePerCommandLine(line string, r *BatchResult) error {
	if rest, ok := strings.CutPrefix(line, "OK"); ok {
		r.Message = strings.TrimSpace(rest)
		return nil
	}
	code, msg, err := parseStatusLine(line)
	if err != nil || code >= 0 {
		return fmt.Errorf("%w: unexpected batch result line %q", ErrProtocol, truncateForLog(line))
	}
	r.Message = msg
	r.Err = newResponseError(code, msg)
	return nil
}

// parseSummaryLine parses "<command-number> <message>" with a 1-based
// command number and returns the 0-based index.
func parseSummaryLine(line string, n int) (int, string, error) {
	numText, msg, _ := strings.Cut(line, " ")
	num, err := strconv.Atoi(numText)
	if err != nil || num < 1 || num > n {
		return 0, "", fmt.Errorf("%w: batch reply line %q names no submitted command", ErrProtocol, truncateForLog(line))
	}
	return num - 1, msg, nil
}

// truncated marks an incomplete batch reply as both a framing failure and
// a lost connection.
func truncated(err error) error {
	if KindOf(err) == KindProtocol {
		return err
	}
	return fmt.Errorf("%w: truncated batch reply: %w", ErrProtocol, err)
}
