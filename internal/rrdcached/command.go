package rrdcached

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Verb is the first token of a protocol line.
type Verb string

// Verbs understood by the daemon.
const (
	VerbCreate     Verb = "CREATE"
	VerbUpdate     Verb = "UPDATE"
	VerbUpdateV    Verb = "UPDATEV"
	VerbLast       Verb = "LAST"
	VerbFirst      Verb = "FIRST"
	VerbFetch      Verb = "FETCH"
	VerbFlush      Verb = "FLUSH"
	VerbFlushAll   Verb = "FLUSHALL"
	VerbPending    Verb = "PENDING"
	VerbForget     Verb = "FORGET"
	VerbStats      Verb = "STATS"
	VerbHelp       Verb = "HELP"
	VerbQuit       Verb = "QUIT"
	VerbBatch      Verb = "BATCH"
	VerbPing       Verb = "PING"
	VerbQueue      Verb = "QUEUE"
	VerbInfo       Verb = "INFO"
	VerbList       Verb = "LIST"
	VerbSuspend    Verb = "SUSPEND"
	VerbResume     Verb = "RESUME"
	VerbSuspendAll Verb = "SUSPENDALL"
	VerbResumeAll  Verb = "RESUMEALL"
)

// Command is one protocol request. The set of implementations is closed:
// each verb has its own struct carrying only the fields that verb needs.
type Command interface {
	// Verb returns the protocol verb.
	Verb() Verb

	// Validate reports whether the command can be encoded.
	// Failures wrap ErrBadRequest.
	Validate() error

	// appendArgs appends " arg1 arg2 ..." for a validated command.
	appendArgs(dst []byte) []byte
}

// maxIdentifierLength bounds database identifiers and paths.
const maxIdentifierLength = 4096

// validateIdentifier checks a database identifier. Identifiers with
// whitespace are legal and get quoted on the wire; characters that would
// break line framing or quoting are not.
func validateIdentifier(id string) error {
	if id == "" {
		return badRequest("database identifier is required")
	}
	if len(id) > maxIdentifierLength {
		return badRequest("database identifier exceeds %d bytes", maxIdentifierLength)
	}
	if strings.ContainsAny(id, "\n\r\x00'") {
		return badRequest("database identifier %q contains a forbidden character", id)
	}
	return nil
}

func appendIdentifier(dst []byte, id string) []byte {
	dst = append(dst, ' ')
	if strings.ContainsAny(id, " \t\v\f") {
		dst = append(dst, '\'')
		dst = append(dst, id...)
		return append(dst, '\'')
	}
	return append(dst, id...)
}

func appendToken(dst []byte, tok string) []byte {
	dst = append(dst, ' ')
	return append(dst, tok...)
}

// Sample is one timestamped set of values for UPDATE. The values are
// ordered like the database's data sources.
type Sample struct {
	// Time is truncated to whole seconds. The zero Time means "now" as
	// judged by the daemon.
	Time time.Time

	// Values may contain NaN for unknown readings.
	Values []float64
}

// String renders the sample in the daemon's timestamp:value[:value...] form.
func (s Sample) String() string {
	return string(s.appendTo(nil))
}

func (s Sample) validate() error {
	if len(s.Values) == 0 {
		return badRequest("sample has no values")
	}
	if !s.Time.IsZero() && s.Time.Unix() < 0 {
		return badRequest("sample time precedes the epoch")
	}
	for _, v := range s.Values {
		if math.IsInf(v, 0) {
			return badRequest("sample values must be finite or NaN")
		}
	}
	return nil
}

func (s Sample) appendTo(dst []byte) []byte {
	if s.Time.IsZero() {
		dst = append(dst, 'N')
	} else {
		dst = strconv.AppendInt(dst, s.Time.Unix(), 10)
	}
	for _, v := range s.Values {
		dst = append(dst, ':')
		if math.IsNaN(v) {
			dst = append(dst, 'U')
			continue
		}
		dst = strconv.AppendFloat(dst, v, 'f', -1, 64)
	}
	return dst
}

func validateSamples(id string, samples []Sample) error {
	if err := validateIdentifier(id); err != nil {
		return err
	}
	if len(samples) == 0 {
		return badRequest("update of %q carries no samples", id)
	}
	for _, s := range samples {
		if err := s.validate(); err != nil {
			return err
		}
	}
	return nil
}

func appendSamples(dst []byte, samples []Sample) []byte {
	for _, s := range samples {
		dst = append(dst, ' ')
		dst = s.appendTo(dst)
	}
	return dst
}

// Create defines a new database.
type Create struct {
	ID string

	// Step is the base interval between primary data points. Zero leaves
	// the daemon default (300s).
	Step time.Duration

	// Start is the time of the first data point. Zero leaves the daemon
	// default (now - 10s).
	Start time.Time

	// NoOverwrite asks the daemon to fail when the database exists.
	NoOverwrite bool

	DataSources []DataSource
	Archives    []Archive
}

func (Create) Verb() Verb { return VerbCreate }

func (c Create) Validate() error {
	if err := validateIdentifier(c.ID); err != nil {
		return err
	}
	if c.Step < 0 || c.Step%time.Second != 0 {
		return badRequest("create %q: step must be a whole number of seconds", c.ID)
	}
	if !c.Start.IsZero() && c.Start.Unix() < 0 {
		return badRequest("create %q: start precedes the epoch", c.ID)
	}
	if len(c.DataSources) == 0 {
		return badRequest("create %q: at least one data source is required", c.ID)
	}
	if len(c.Archives) == 0 {
		return badRequest("create %q: at least one archive is required", c.ID)
	}
	seen := make(map[string]struct{}, len(c.DataSources))
	for _, ds := range c.DataSources {
		if err := ds.Validate(); err != nil {
			return err
		}
		if _, dup := seen[ds.Name]; dup {
			return badRequest("create %q: duplicate data source %q", c.ID, ds.Name)
		}
		seen[ds.Name] = struct{}{}
	}
	for _, a := range c.Archives {
		if err := a.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c Create) appendArgs(dst []byte) []byte {
	dst = appendIdentifier(dst, c.ID)
	if c.Step > 0 {
		dst = append(dst, " -s "...)
		dst = strconv.AppendInt(dst, int64(c.Step/time.Second), 10)
	}
	if !c.Start.IsZero() {
		dst = append(dst, " -b "...)
		dst = strconv.AppendInt(dst, c.Start.Unix(), 10)
	}
	if c.NoOverwrite {
		dst = append(dst, " -O"...)
	}
	for _, ds := range c.DataSources {
		dst = appendToken(dst, ds.String())
	}
	for _, a := range c.Archives {
		dst = appendToken(dst, a.String())
	}
	return dst
}

// Update appends samples to a database.
type Update struct {
	ID      string
	Samples []Sample
}

func (Update) Verb() Verb                     { return VerbUpdate }
func (u Update) Validate() error              { return validateSamples(u.ID, u.Samples) }
func (u Update) appendArgs(dst []byte) []byte { return appendSamples(appendIdentifier(dst, u.ID), u.Samples) }

// UpdateV appends samples and asks the daemon to report what it stored.
type UpdateV struct {
	ID      string
	Samples []Sample
}

func (UpdateV) Verb() Verb                     { return VerbUpdateV }
func (u UpdateV) Validate() error              { return validateSamples(u.ID, u.Samples) }
func (u UpdateV) appendArgs(dst []byte) []byte { return appendSamples(appendIdentifier(dst, u.ID), u.Samples) }

// LastUpdate asks for the time of the most recent sample.
type LastUpdate struct {
	ID string
}

func (LastUpdate) Verb() Verb                     { return VerbLast }
func (c LastUpdate) Validate() error              { return validateIdentifier(c.ID) }
func (c LastUpdate) appendArgs(dst []byte) []byte { return appendIdentifier(dst, c.ID) }

// First asks for the time of the oldest row of one archive.
type First struct {
	ID string

	// Archive is the zero-based archive index.
	Archive int
}

func (First) Verb() Verb { return VerbFirst }

func (c First) Validate() error {
	if err := validateIdentifier(c.ID); err != nil {
		return err
	}
	if c.Archive < 0 {
		return badRequest("first %q: archive index must not be negative", c.ID)
	}
	return nil
}

func (c First) appendArgs(dst []byte) []byte {
	dst = appendIdentifier(dst, c.ID)
	dst = append(dst, ' ')
	return strconv.AppendInt(dst, int64(c.Archive), 10)
}

// TimeRef is a FETCH start or end reference: an absolute Unix time,
// a negative offset in seconds, or any daemon time specification that
// contains no whitespace (for example "end-1h").
type TimeRef string

// At returns an absolute time reference.
func At(t time.Time) TimeRef {
	return TimeRef(strconv.FormatInt(t.Unix(), 10))
}

// Ago returns a reference d before now, in whole seconds.
func Ago(d time.Duration) TimeRef {
	return TimeRef(strconv.FormatInt(-int64(d/time.Second), 10))
}

func (r TimeRef) validate() error {
	if r == "" {
		return nil
	}
	if strings.ContainsAny(string(r), " \t\v\f\n\r\x00'") {
		return badRequest("time reference %q contains whitespace or quotes", string(r))
	}
	return nil
}

// Fetch reads consolidated rows from a database.
type Fetch struct {
	ID string
	CF ConsolidationFunction

	// Start and End are optional. End requires Start.
	Start TimeRef
	End   TimeRef

	// Columns restricts the result to these data sources. Requires End.
	Columns []string
}

func (Fetch) Verb() Verb { return VerbFetch }

func (f Fetch) Validate() error {
	if err := validateIdentifier(f.ID); err != nil {
		return err
	}
	if err := f.CF.validate(); err != nil {
		return err
	}
	if err := f.Start.validate(); err != nil {
		return err
	}
	if err := f.End.validate(); err != nil {
		return err
	}
	if f.Start == "" && (f.End != "" || len(f.Columns) > 0) {
		return badRequest("fetch %q: start must be specified", f.ID)
	}
	if f.End == "" && len(f.Columns) > 0 {
		return badRequest("fetch %q: end must be specified", f.ID)
	}
	for _, col := range f.Columns {
		if err := validateDataSourceName(col); err != nil {
			return err
		}
	}
	return nil
}

func (f Fetch) appendArgs(dst []byte) []byte {
	dst = appendIdentifier(dst, f.ID)
	dst = appendToken(dst, string(f.CF))
	if f.Start != "" {
		dst = appendToken(dst, string(f.Start))
	}
	if f.End != "" {
		dst = appendToken(dst, string(f.End))
	}
	for _, col := range f.Columns {
		dst = appendToken(dst, col)
	}
	return dst
}

// Flush writes pending updates of one database to disk.
type Flush struct {
	ID string
}

func (Flush) Verb() Verb                     { return VerbFlush }
func (c Flush) Validate() error              { return validateIdentifier(c.ID) }
func (c Flush) appendArgs(dst []byte) []byte { return appendIdentifier(dst, c.ID) }

// FlushAll writes all pending updates to disk.
type FlushAll struct{}

func (FlushAll) Verb() Verb                   { return VerbFlushAll }
func (FlushAll) Validate() error              { return nil }
func (FlushAll) appendArgs(dst []byte) []byte { return dst }

// Pending lists updates queued for one database.
type Pending struct {
	ID string
}

func (Pending) Verb() Verb                     { return VerbPending }
func (c Pending) Validate() error              { return validateIdentifier(c.ID) }
func (c Pending) appendArgs(dst []byte) []byte { return appendIdentifier(dst, c.ID) }

// Forget drops updates queued for one database.
type Forget struct {
	ID string
}

func (Forget) Verb() Verb                     { return VerbForget }
func (c Forget) Validate() error              { return validateIdentifier(c.ID) }
func (c Forget) appendArgs(dst []byte) []byte { return appendIdentifier(dst, c.ID) }

// Stats asks for daemon counters.
type Stats struct{}

func (Stats) Verb() Verb                   { return VerbStats }
func (Stats) Validate() error              { return nil }
func (Stats) appendArgs(dst []byte) []byte { return dst }

// Help asks for command documentation. An empty Topic lists all commands.
type Help struct {
	Topic string
}

func (Help) Verb() Verb { return VerbHelp }

func (h Help) Validate() error {
	for _, r := range h.Topic {
		if !(r >= 'a' && r <= 'z') && !(r >= 'A' && r <= 'Z') {
			return badRequest("help topic %q must be a single command name", h.Topic)
		}
	}
	return nil
}

func (h Help) appendArgs(dst []byte) []byte {
	if h.Topic == "" {
		return dst
	}
	return appendToken(dst, h.Topic)
}

// Quit ends the session. The daemon closes the connection without replying.
type Quit struct{}

func (Quit) Verb() Verb                   { return VerbQuit }
func (Quit) Validate() error              { return nil }
func (Quit) appendArgs(dst []byte) []byte { return dst }

// Batch opens batch mode. Use Conn.BeginBatch rather than Issue.
type Batch struct{}

func (Batch) Verb() Verb                   { return VerbBatch }
func (Batch) Validate() error              { return nil }
func (Batch) appendArgs(dst []byte) []byte { return dst }

// Ping checks that the daemon is alive.
type Ping struct{}

func (Ping) Verb() Verb                   { return VerbPing }
func (Ping) Validate() error              { return nil }
func (Ping) appendArgs(dst []byte) []byte { return dst }

// Queue lists databases with pending updates.
type Queue struct{}

func (Queue) Verb() Verb                   { return VerbQueue }
func (Queue) Validate() error              { return nil }
func (Queue) appendArgs(dst []byte) []byte { return dst }

// Info asks for the header of a database.
type Info struct {
	ID string
}

func (Info) Verb() Verb                     { return VerbInfo }
func (c Info) Validate() error              { return validateIdentifier(c.ID) }
func (c Info) appendArgs(dst []byte) []byte { return appendIdentifier(dst, c.ID) }

// List enumerates databases below Path.
type List struct {
	Path      string
	Recursive bool
}

func (List) Verb() Verb { return VerbList }

func (l List) Validate() error {
	if err := validateIdentifier(l.Path); err != nil {
		return badRequest("list: path: %v", err)
	}
	return nil
}

func (l List) appendArgs(dst []byte) []byte {
	if l.Recursive {
		dst = append(dst, " RECURSIVE"...)
	}
	return appendIdentifier(dst, l.Path)
}

// Suspend stops writing one database to disk.
type Suspend struct {
	ID string
}

func (Suspend) Verb() Verb                     { return VerbSuspend }
func (c Suspend) Validate() error              { return validateIdentifier(c.ID) }
func (c Suspend) appendArgs(dst []byte) []byte { return appendIdentifier(dst, c.ID) }

// Resume undoes Suspend.
type Resume struct {
	ID string
}

func (Resume) Verb() Verb                     { return VerbResume }
func (c Resume) Validate() error              { return validateIdentifier(c.ID) }
func (c Resume) appendArgs(dst []byte) []byte { return appendIdentifier(dst, c.ID) }

// SuspendAll stops writing every database to disk.
type SuspendAll struct{}

func (SuspendAll) Verb() Verb                   { return VerbSuspendAll }
func (SuspendAll) Validate() error              { return nil }
func (SuspendAll) appendArgs(dst []byte) []byte { return dst }

// ResumeAll undoes SuspendAll.
type ResumeAll struct{}

func (ResumeAll) Verb() Verb                   { return VerbResumeAll }
func (ResumeAll) Validate() error              { return nil }
func (ResumeAll) appendArgs(dst []byte) []byte { return dst }
