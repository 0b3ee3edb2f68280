package rrdcached

import (
	"context"
	"time"
)

// Client is a typed facade over a Conn. Each method is one synchronous
// round trip; the client keeps no samples and never retries.
//
// Thread Safety:
//   - All methods are safe for concurrent use; calls are serialized by the
//     underlying Conn.
type Client struct {
	conn      *Conn
	ioTimeout time.Duration
}

// NewClient wraps conn. When ioTimeout > 0 every call runs under that
// timeout in addition to the caller's context.
func NewClient(conn *Conn, ioTimeout time.Duration) *Client {
	return &Client{conn: conn, ioTimeout: ioTimeout}
}

// Conn returns the underlying connection.
func (c *Client) Conn() *Conn {
	return c.conn
}

// Close closes the connection without sending QUIT.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.ioTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.ioTimeout)
}

// Do issues cmd and returns the raw response.
func (c *Client) Do(ctx context.Context, cmd Command) (*Response, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.conn.Issue(ctx, cmd)
}

func (c *Client) exec(ctx context.Context, cmd Command) error {
	_, err := c.Do(ctx, cmd)
	return err
}

func (c *Client) lines(ctx context.Context, cmd Command) ([]string, error) {
	resp, err := c.Do(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return resp.Lines, nil
}

// Ping checks that the daemon answers.
func (c *Client) Ping(ctx context.Context) error {
	return c.exec(ctx, Ping{})
}

// Help returns the status message and documentation lines for topic, or
// the command list when topic is empty.
func (c *Client) Help(ctx context.Context, topic string) (string, []string, error) {
	resp, err := c.Do(ctx, Help{Topic: topic})
	if err != nil {
		return "", nil, err
	}
	return resp.Message, resp.Lines, nil
}

// Create defines a database.
func (c *Client) Create(ctx context.Context, cmd Create) error {
	return c.exec(ctx, cmd)
}

// Update appends samples to database id.
func (c *Client) Update(ctx context.Context, id string, samples ...Sample) error {
	return c.exec(ctx, Update{ID: id, Samples: samples})
}

// UpdateV appends samples and returns the daemon's report lines.
func (c *Client) UpdateV(ctx context.Context, id string, samples ...Sample) ([]string, error) {
	return c.lines(ctx, UpdateV{ID: id, Samples: samples})
}

// First returns the time of the oldest row of archive index archive.
func (c *Client) First(ctx context.Context, id string, archive int) (time.Time, error) {
	return c.timestamp(ctx, First{ID: id, Archive: archive})
}

// Last returns the time of the last update of id.
func (c *Client) Last(ctx context.Context, id string) (time.Time, error) {
	return c.timestamp(ctx, LastUpdate{ID: id})
}

func (c *Client) timestamp(ctx context.Context, cmd Command) (time.Time, error) {
	resp, err := c.Do(ctx, cmd)
	if err != nil {
		return time.Time{}, err
	}
	return ParseTimestamp(resp.Message)
}

// Fetch reads consolidated rows.
func (c *Client) Fetch(ctx context.Context, cmd Fetch) (*FetchResult, error) {
	lines, err := c.lines(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return ParseFetch(lines)
}

// Flush writes pending updates of id to disk.
func (c *Client) Flush(ctx context.Context, id string) error {
	return c.exec(ctx, Flush{ID: id})
}

// FlushAll writes every pending update to disk.
func (c *Client) FlushAll(ctx context.Context) error {
	return c.exec(ctx, FlushAll{})
}

// Pending returns the updates queued for id.
func (c *Client) Pending(ctx context.Context, id string) ([]string, error) {
	return c.lines(ctx, Pending{ID: id})
}

// Forget drops the updates queued for id.
func (c *Client) Forget(ctx context.Context, id string) error {
	return c.exec(ctx, Forget{ID: id})
}

// Queue lists databases with queued updates.
func (c *Client) Queue(ctx context.Context) ([]QueueEntry, error) {
	lines, err := c.lines(ctx, Queue{})
	if err != nil {
		return nil, err
	}
	return ParseQueue(lines)
}

// Stats returns the daemon counters.
func (c *Client) Stats(ctx context.Context) (map[string]int64, error) {
	lines, err := c.lines(ctx, Stats{})
	if err != nil {
		return nil, err
	}
	return ParseStats(lines)
}

// Info returns the header of id.
func (c *Client) Info(ctx context.Context, id string) ([]InfoEntry, error) {
	lines, err := c.lines(ctx, Info{ID: id})
	if err != nil {
		return nil, err
	}
	return ParseInfo(lines)
}

// List returns the databases below path.
func (c *Client) List(ctx context.Context, path string, recursive bool) ([]string, error) {
	return c.lines(ctx, List{Path: path, Recursive: recursive})
}

// Suspend stops writing id to disk.
func (c *Client) Suspend(ctx context.Context, id string) error {
	return c.exec(ctx, Suspend{ID: id})
}

// Resume undoes Suspend.
func (c *Client) Resume(ctx context.Context, id string) error {
	return c.exec(ctx, Resume{ID: id})
}

// SuspendAll stops writing every database to disk.
func (c *Client) SuspendAll(ctx context.Context) error {
	return c.exec(ctx, SuspendAll{})
}

// ResumeAll undoes SuspendAll.
func (c *Client) ResumeAll(ctx context.Context) error {
	return c.exec(ctx, ResumeAll{})
}

// Quit ends the session and closes the connection.
func (c *Client) Quit(ctx context.Context) error {
	return c.exec(ctx, Quit{})
}

// Batch submits cmds in one batch and returns their index-aligned results.
// Every command is validated before BATCH is sent, so a bad request never
// leaves the connection in batch mode. Any other failure after the daemon
// accepted BATCH closes the connection.
func (c *Client) Batch(ctx context.Context, cmds ...Command) ([]BatchResult, error) {
	for _, cmd := range cmds {
		if cmd != nil {
			switch cmd.Verb() {
			case VerbBatch, VerbQuit:
				return nil, badRequest("%s is not allowed inside a batch", cmd.Verb())
			}
		}
		if _, err := Encode(cmd); err != nil {
			return nil, err
		}
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	session, err := c.conn.BeginBatch(ctx)
	if err != nil {
		return nil, err
	}
	for _, cmd := range cmds {
		if err := session.Add(ctx, cmd); err != nil {
			session.Abort()
			return nil, err
		}
	}
	results, err := session.Commit(ctx)
	if err != nil {
		session.Abort()
	}
	return results, err
}
