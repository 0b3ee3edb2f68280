package rrdcached

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

const (
	readBufferSize = 4096

	// maxEmptyReads bounds consecutive (0, nil) reads before the stream is
	// treated as broken.
	maxEmptyReads = 100
)

// Stream is the byte transport a Conn speaks over. Streams that also
// implement SetDeadline(time.Time) error or io.Closer can be interrupted
// when a call's context ends.
type Stream interface {
	io.Reader
	io.Writer
}

type deadliner interface {
	SetDeadline(t time.Time) error
}

// Mode is the session mode of a Conn.
type Mode int32

// Connection modes.
const (
	ModeNormal Mode = iota
	ModeBatch
	ModeClosed
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeBatch:
		return "batch"
	case ModeClosed:
		return "closed"
	default:
		return fmt.Sprintf("mode(%d)", int32(m))
	}
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// ConnStats holds operational statistics.
type ConnStats struct {
	Commands     uint64 // Commands written, batch lines included
	DaemonErrors uint64 // Negative statuses received
	Batches      uint64 // Batches committed
	BytesOut     uint64
	BytesIn      uint64
	LastActivity time.Time
	Mode         Mode
}

// Conn is one protocol session over a Stream.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Exactly one command is outstanding at a time. Concurrent callers wait
//     their turn; the protocol has no request identifiers, so replies are
//     matched to commands by order alone.
//
// Failure model:
//   - A negative daemon status is returned as a classified error and the
//     connection stays usable.
//   - A stream error, malformed framing, or a context that ends while a
//     call is on the wire leaves an unread reply behind. The connection
//     moves to ModeClosed and every later call fails with
//     ErrConnectionClosed without touching the stream.
type Conn struct {
	stream Stream

	// sem is a one-slot semaphore guarding the stream, the parser and
	// mode transitions. A channel rather than a mutex so that waiting
	// can be abandoned through a context.
	sem chan struct{}

	parser  *Parser
	readBuf []byte

	mode atomic.Int32

	errMu sync.Mutex
	err   error

	closeOnce sync.Once

	// Logger (optional)
	logger   Logger
	loggerMu sync.RWMutex

	// Statistics
	commands     atomic.Uint64
	daemonErrors atomic.Uint64
	batches      atomic.Uint64
	bytesOut     atomic.Uint64
	bytesIn      atomic.Uint64
	lastActivity atomic.Int64 // Unix timestamp
}

// NewConn starts a session over stream. The caller hands ownership of the
// stream to the Conn.
func NewConn(stream Stream) *Conn {
	c := &Conn{
		stream:  stream,
		sem:     make(chan struct{}, 1),
		parser:  NewParser(),
		readBuf: make([]byte, readBufferSize),
	}
	c.lastActivity.Store(time.Now().Unix())
	return c
}

// Mode returns the current session mode.
func (c *Conn) Mode() Mode {
	return Mode(c.mode.Load())
}

// Err returns the failure that closed the connection, or nil while it is
// usable.
func (c *Conn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// SetLogger sets the logger for this connection.
func (c *Conn) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// Stats returns current operational statistics.
func (c *Conn) Stats() ConnStats {
	return ConnStats{
		Commands:     c.commands.Load(),
		DaemonErrors: c.daemonErrors.Load(),
		Batches:      c.batches.Load(),
		BytesOut:     c.bytesOut.Load(),
		BytesIn:      c.bytesIn.Load(),
		LastActivity: time.Unix(c.lastActivity.Load(), 0),
		Mode:         c.Mode(),
	}
}

// Close marks the connection closed and closes the stream if it is an
// io.Closer. An in-flight call is interrupted. Safe to call multiple times.
func (c *Conn) Close() error {
	c.setClosed(fmt.Errorf("%w: closed by caller", ErrConnectionClosed))
	return c.closeStream()
}

// Issue sends one command and waits for its complete reply.
//
// Errors:
//   - ErrBadRequest: validation failed, the connection is batching, or cmd
//     is BATCH (use BeginBatch). Nothing was written.
//   - *ResponseError: the daemon answered with a negative status. The
//     Response is returned too.
//   - ErrProtocol, ErrConnectionClosed: the connection is now unusable.
//
// QUIT is written without waiting for a reply and closes the connection;
// Issue then returns (nil, nil).
func (c *Conn) Issue(ctx context.Context, cmd Command) (*Response, error) {
	if err := c.usable(); err != nil {
		return nil, err
	}
	if cmd != nil && cmd.Verb() == VerbBatch {
		return nil, badRequest("BATCH must be started with BeginBatch")
	}
	line, err := Encode(cmd)
	if err != nil {
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
		return nil, badRequest("%s not allowed while a batch is open", cmd.Verb())
	}

	if cmd.Verb() == VerbQuit {
		err := c.send(ctx, line)
		c.setClosed(fmt.Errorf("%w: session ended by QUIT", ErrConnectionClosed))
		_ = c.closeStream()
		c.logDebug("session ended")
		return nil, err
	}

	resp, err := c.roundTrip(ctx, line)
	if err != nil {
		return nil, err
	}
	if resp.Code < 0 {
		c.daemonErrors.Add(1)
		rerr := resp.Err()
		c.logDebug("daemon rejected command", "verb", string(cmd.Verb()), "code", resp.Code, "message", resp.Message)
		return resp, rerr
	}
	return resp, nil
}

// usable fails fast once the connection is closed.
func (c *Conn) usable() error {
	if c.Mode() == ModeClosed {
		return c.closedErr()
	}
	return nil
}

func (c *Conn) closedErr() error {
	cause := c.Err()
	if cause == nil {
		return ErrConnectionClosed
	}
	if KindOf(cause) == KindConnectionClosed {
		return cause
	}
	return fmt.Errorf("%w: %v", ErrConnectionClosed, cause)
}

// acquire takes the stream. A caller whose context ends while waiting gives
// up without affecting the connection.
func (c *Conn) acquire(ctx context.Context) error {
	select {
	case c.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("rrdcached: waiting for connection: %w", ctx.Err())
	}
}

func (c *Conn) release() {
	<-c.sem
}

// roundTrip writes line and reads one complete response. Must hold sem.
func (c *Conn) roundTrip(ctx context.Context, line []byte) (*Response, error) {
	var resp *Response
	err := c.guarded(ctx, func() error {
		if err := c.write(line); err != nil {
			return err
		}
		var err error
		resp, err = c.readResponse()
		return err
	})
	return resp, err
}

// send writes line without reading. Must hold sem.
func (c *Conn) send(ctx context.Context, line []byte) error {
	return c.guarded(ctx, func() error {
		return c.write(line)
	})
}

// guarded runs op with the stream bound to ctx. If ctx ends first the
// stream is interrupted and the connection poisoned, since an unread reply
// may now sit in the stream. Any error from op is fatal.
func (c *Conn) guarded(ctx context.Context, op func() error) error {
	if err := ctx.Err(); err != nil {
		// Nothing written yet; the connection is still in sync.
		return fmt.Errorf("rrdcached: %w", err)
	}

	stop := func() bool { return true }
	fired := make(chan struct{})
	if ctx.Done() != nil {
		stop = context.AfterFunc(ctx, func() {
			defer close(fired)
			c.interrupt()
		})
	}

	err := op()

	if !stop() {
		<-fired
		if err == nil {
			if d, ok := c.stream.(deadliner); ok {
				// The call completed before the interrupt landed.
				if derr := d.SetDeadline(time.Time{}); derr == nil {
					return nil
				}
			}
		}
		return c.fail(fmt.Errorf("%w: %w", ErrConnectionClosed, ctx.Err()))
	}
	if err != nil {
		return c.fail(err)
	}
	return nil
}

// interrupt unblocks a pending read or write.
func (c *Conn) interrupt() {
	if d, ok := c.stream.(deadliner); ok {
		if err := d.SetDeadline(time.Unix(1, 0)); err == nil {
			return
		}
	}
	_ = c.closeStream()
}

func (c *Conn) write(line []byte) error {
	n, err := c.stream.Write(line)
	c.bytesOut.Add(uint64(n))
	if err == nil && n < len(line) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return fmt.Errorf("%w: write: %w", ErrConnectionClosed, err)
	}
	c.commands.Add(1)
	c.lastActivity.Store(time.Now().Unix())
	return nil
}

// readResponse reads until the parser yields one complete response.
func (c *Conn) readResponse() (*Response, error) {
	var readErr error
	empty := 0
	for {
		resp, err := c.parser.Next()
		if err != nil {
			return nil, err
		}
		if resp != nil {
			return resp, nil
		}
		if readErr != nil {
			return nil, streamErr(readErr)
		}
		readErr = c.readMore(&empty)
	}
}

// readLine reads one raw line between responses.
func (c *Conn) readLine() (string, error) {
	var readErr error
	empty := 0
	for {
		line, ok, err := c.parser.NextLine()
		if err != nil {
			return "", err
		}
		if ok {
			return line, nil
		}
		if readErr != nil {
			return "", streamErr(readErr)
		}
		readErr = c.readMore(&empty)
	}
}

// readMore feeds the parser from the stream. Bytes are fed before the read
// error is considered so a final chunk delivered with io.EOF is not lost.
func (c *Conn) readMore(empty *int) error {
	n, err := c.stream.Read(c.readBuf)
	if n > 0 {
		*empty = 0
		c.parser.Feed(c.readBuf[:n])
		c.bytesIn.Add(uint64(n))
		c.lastActivity.Store(time.Now().Unix())
		return err
	}
	if err == nil {
		*empty++
		if *empty >= maxEmptyReads {
			return io.ErrNoProgress
		}
	}
	return err
}

func streamErr(err error) error {
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: stream ended mid-response", ErrConnectionClosed)
	}
	return fmt.Errorf("%w: read: %w", ErrConnectionClosed, err)
}

// fail poisons the connection with cause and returns it.
func (c *Conn) fail(cause error) error {
	if c.setClosed(cause) {
		c.logError("connection failed", cause)
	}
	_ = c.closeStream()
	return cause
}

// setClosed records cause as the first failure. It reports whether this
// call performed the transition.
func (c *Conn) setClosed(cause error) bool {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err != nil {
		return false
	}
	c.err = cause
	c.mode.Store(int32(ModeClosed))
	return true
}

func (c *Conn) closeStream() error {
	var err error
	c.closeOnce.Do(func() {
		if cl, ok := c.stream.(io.Closer); ok {
			err = cl.Close()
		}
	})
	return err
}

func (c *Conn) setMode(m Mode) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err == nil {
		c.mode.Store(int32(m))
	}
}

func (c *Conn) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// logDebug logs a debug message if logger is set.
func (c *Conn) logDebug(msg string, keysAndValues ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (c *Conn) logError(msg string, err error) {
	if logger := c.getLogger(); logger != nil {
		logger.Error(msg, "error", err)
	}
}
