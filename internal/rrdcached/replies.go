package rrdcached

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// FetchResult is the decoded body of a FETCH reply.
type FetchResult struct {
	FlushVersion int
	Start        time.Time
	End          time.Time
	Step         time.Duration
	DSNames      []string
	Rows         []FetchRow
}

// FetchRow is one consolidated row. Values are ordered like DSNames;
// unknown values are NaN.
type FetchRow struct {
	Time   time.Time
	Values []float64
}

// ParseFetch decodes FETCH body lines: "Key: value" headers followed by
// "<time>: <v> <v> ..." rows.
func ParseFetch(lines []string) (*FetchResult, error) {
	res := &FetchResult{}
	dsCount := -1

	i := 0
	for ; i < len(lines); i++ {
		key, value, ok := strings.Cut(lines[i], ": ")
		if !ok {
			return nil, fmt.Errorf("%w: fetch header %q", ErrProtocol, truncateForLog(lines[i]))
		}
		if isDigits(key) {
			break
		}
		var err error
		switch key {
		case "FlushVersion":
			res.FlushVersion, err = strconv.Atoi(value)
		case "Start":
			res.Start, err = parseUnix(value)
		case "End":
			res.End, err = parseUnix(value)
		case "Step":
			var step int64
			step, err = strconv.ParseInt(value, 10, 64)
			res.Step = time.Duration(step) * time.Second
		case "DSCount":
			dsCount, err = strconv.Atoi(value)
		case "DSName":
			res.DSNames = strings.Fields(value)
		default:
			// Unknown headers from newer daemons are ignored.
		}
		if err != nil {
			return nil, fmt.Errorf("%w: fetch header %s: %w", ErrProtocol, key, err)
		}
	}

	if dsCount >= 0 && dsCount != len(res.DSNames) {
		return nil, fmt.Errorf("%w: fetch declares %d data sources but names %d", ErrProtocol, dsCount, len(res.DSNames))
	}

	res.Rows = make([]FetchRow, 0, len(lines)-i)
	for ; i < len(lines); i++ {
		row, err := parseFetchRow(lines[i])
		if err != nil {
			return nil, err
		}
		if len(res.DSNames) > 0 && len(row.Values) != len(res.DSNames) {
			return nil, fmt.Errorf("%w: fetch row has %d values, want %d", ErrProtocol, len(row.Values), len(res.DSNames))
		}
		res.Rows = append(res.Rows, row)
	}
	return res, nil
}

// Column returns the values of one data source, or nil when absent.
func (r *FetchResult) Column(name string) []float64 {
	for j, ds := range r.DSNames {
		if ds != name {
			continue
		}
		col := make([]float64, len(r.Rows))
		for i, row := range r.Rows {
			col[i] = row.Values[j]
		}
		return col
	}
	return nil
}

func parseFetchRow(line string) (FetchRow, error) {
	ts, rest, ok := strings.Cut(line, ":")
	if !ok {
		return FetchRow{}, fmt.Errorf("%w: fetch row %q", ErrProtocol, truncateForLog(line))
	}
	t, err := parseUnix(ts)
	if err != nil {
		return FetchRow{}, fmt.Errorf("%w: fetch row time: %w", ErrProtocol, err)
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return FetchRow{}, fmt.Errorf("%w: fetch row %q has no values", ErrProtocol, truncateForLog(line))
	}
	row := FetchRow{Time: t, Values: make([]float64, len(fields))}
	for j, f := range fields {
		v, err := parseValue(f)
		if err != nil {
			return FetchRow{}, fmt.Errorf("%w: fetch row value: %w", ErrProtocol, err)
		}
		row.Values[j] = v
	}
	return row, nil
}

// parseValue accepts the C library spellings of NaN as well as Go's.
func parseValue(s string) (float64, error) {
	switch strings.ToLower(s) {
	case "nan", "-nan", "u":
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// QueueEntry is one line of a QUEUE reply.
type QueueEntry struct {
	ID      string
	Pending int
}

// ParseQueue decodes "<pending> <id>" lines.
func ParseQueue(lines []string) ([]QueueEntry, error) {
	entries := make([]QueueEntry, 0, len(lines))
	for _, line := range lines {
		countText, id, ok := strings.Cut(line, " ")
		id = strings.TrimLeft(id, " ")
		count, err := strconv.Atoi(countText)
		if !ok || err != nil || !isDigits(countText) || id == "" {
			return nil, fmt.Errorf("%w: queue line %q", ErrProtocol, truncateForLog(line))
		}
		entries = append(entries, QueueEntry{ID: id, Pending: count})
	}
	return entries, nil
}

// ParseStats decodes "<Name>: <value>" lines.
func ParseStats(lines []string) (map[string]int64, error) {
	stats := make(map[string]int64, len(lines))
	for _, line := range lines {
		name, value, ok := strings.Cut(line, ":")
		if !ok || name == "" || strings.ContainsAny(name, " \t") {
			return nil, fmt.Errorf("%w: stats line %q", ErrProtocol, truncateForLog(line))
		}
		n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: stats %s: %w", ErrProtocol, name, err)
		}
		stats[name] = n
	}
	return stats, nil
}

// InfoEntry is one line of an INFO reply: "<key> <type> <value>".
type InfoEntry struct {
	Key string

	// Type is the daemon's value type code (0 float, 1 counter, 2 string,
	// 3 integer, 4 blob).
	Type int

	Value string
}

// ParseInfo decodes INFO body lines.
func ParseInfo(lines []string) ([]InfoEntry, error) {
	entries := make([]InfoEntry, 0, len(lines))
	for _, line := range lines {
		parts := strings.SplitN(line, " ", 3)
		if len(parts) < 2 {
			return nil, fmt.Errorf("%w: info line %q", ErrProtocol, truncateForLog(line))
		}
		typ, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("%w: info line %q: %w", ErrProtocol, truncateForLog(line), err)
		}
		e := InfoEntry{Key: parts[0], Type: typ}
		if len(parts) == 3 {
			e.Value = parts[2]
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// ParseTimestamp decodes the Unix time carried in the status message of a
// FIRST or LAST reply.
func ParseTimestamp(message string) (time.Time, error) {
	field, _, _ := strings.Cut(strings.TrimSpace(message), " ")
	t, err := parseUnix(field)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: timestamp %q: %w", ErrProtocol, truncateForLog(message), err)
	}
	return t, nil
}

func parseUnix(s string) (time.Time, error) {
	sec, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, 0), nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
