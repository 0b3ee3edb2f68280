package rrdcached

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestParseFetch(t *testing.T) {
	lines := []string{
		"FlushVersion: 1",
		"Start: 1708800030",
		"End: 1708886440",
		"Step: 10",
		"DSCount: 2",
		"DSName: ds1 ds2",
		"1708800040: 1.0000000000e+00 2.0000000000e+00",
		"1708800050: nan -nan",
		"1708800060: 3 4.5",
	}

	res, err := ParseFetch(lines)
	if err != nil {
		t.Fatalf("ParseFetch() unexpected error: %v", err)
	}
	if res.FlushVersion != 1 {
		t.Errorf("FlushVersion = %d, want 1", res.FlushVersion)
	}
	if !res.Start.Equal(time.Unix(1708800030, 0)) || !res.End.Equal(time.Unix(1708886440, 0)) {
		t.Errorf("Start, End = %v, %v", res.Start, res.End)
	}
	if res.Step != 10*time.Second {
		t.Errorf("Step = %v, want 10s", res.Step)
	}
	if len(res.DSNames) != 2 || res.DSNames[0] != "ds1" || res.DSNames[1] != "ds2" {
		t.Errorf("DSNames = %q", res.DSNames)
	}
	if len(res.Rows) != 3 {
		t.Fatalf("Rows = %d, want 3", len(res.Rows))
	}
	if !res.Rows[0].Time.Equal(time.Unix(1708800040, 0)) || res.Rows[0].Values[0] != 1 || res.Rows[0].Values[1] != 2 {
		t.Errorf("Rows[0] = %+v", res.Rows[0])
	}
	if !math.IsNaN(res.Rows[1].Values[0]) || !math.IsNaN(res.Rows[1].Values[1]) {
		t.Errorf("Rows[1] = %+v, want NaN values", res.Rows[1])
	}

	col := res.Column("ds2")
	if len(col) != 3 || col[0] != 2 || !math.IsNaN(col[1]) || col[2] != 4.5 {
		t.Errorf("Column(ds2) = %v", col)
	}
	if res.Column("missing") != nil {
		t.Error("Column(missing) != nil")
	}
}

func TestParseFetchHeadersOnly(t *testing.T) {
	res, err := ParseFetch([]string{"FlushVersion: 1", "Step: 300", "DSCount: 1", "DSName: t"})
	if err != nil {
		t.Fatalf("ParseFetch() unexpected error: %v", err)
	}
	if len(res.Rows) != 0 {
		t.Errorf("Rows = %d, want 0", len(res.Rows))
	}
}

func TestParseFetchErrors(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
	}{
		{name: "bad flush version", lines: []string{"FlushVersion: xyz"}},
		{name: "bad start", lines: []string{"Start: xyz"}},
		{name: "bad end", lines: []string{"End: xyz"}},
		{name: "bad step", lines: []string{"Step: xyz"}},
		{name: "bad count", lines: []string{"DSCount: xyz"}},
		{name: "not a header", lines: []string{"0 PONG"}},
		{name: "count mismatch", lines: []string{"DSCount: 2", "DSName: a"}},
		{name: "row width", lines: []string{"DSName: a b", "1708800040: 1"}},
		{name: "bad value", lines: []string{"DSName: a", "1708800040: one"}},
		{name: "row without values", lines: []string{"DSName: a", "1708800040: "}},
		{name: "header after rows", lines: []string{"DSName: a", "1708800040: 1", "Step: 10"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseFetch(tt.lines); !errors.Is(err, ErrProtocol) {
				t.Errorf("ParseFetch() error = %v, want ErrProtocol", err)
			}
		})
	}
}

func TestParseQueue(t *testing.T) {
	entries, err := ParseQueue([]string{"12  test.rrd", "1 dir/other file.rrd"})
	if err != nil {
		t.Fatalf("ParseQueue() unexpected error: %v", err)
	}
	want := []QueueEntry{{ID: "test.rrd", Pending: 12}, {ID: "dir/other file.rrd", Pending: 1}}
	if len(entries) != len(want) {
		t.Fatalf("ParseQueue() = %+v, want %+v", entries, want)
	}
	for i := range want {
		if entries[i] != want[i] {
			t.Errorf("entry %d = %+v, want %+v", i, entries[i], want[i])
		}
	}

	for _, bad := range []string{"-0 test.rrd", "x test.rrd", "3", "3 "} {
		if _, err := ParseQueue([]string{bad}); !errors.Is(err, ErrProtocol) {
			t.Errorf("ParseQueue(%q) error = %v, want ErrProtocol", bad, err)
		}
	}
}

func TestParseStats(t *testing.T) {
	stats, err := ParseStats([]string{"QueueLength: 0", "UpdatesReceived: 1234", "JournalBytes: -1"})
	if err != nil {
		t.Fatalf("ParseStats() unexpected error: %v", err)
	}
	if stats["UpdatesReceived"] != 1234 || stats["QueueLength"] != 0 || stats["JournalBytes"] != -1 {
		t.Errorf("ParseStats() = %v", stats)
	}

	for _, bad := range []string{"uptime 1234", " upti:me: 1234", "uptime: x", ": 5"} {
		if _, err := ParseStats([]string{bad}); !errors.Is(err, ErrProtocol) {
			t.Errorf("ParseStats(%q) error = %v, want ErrProtocol", bad, err)
		}
	}
}

func TestParseInfo(t *testing.T) {
	entries, err := ParseInfo([]string{
		"filename 2 /var/lib/rrd/temp.rrd",
		"step 1 300",
		"ds[t].min 0 -4.0000000000e+01",
		"ds[t].last_ds 2",
	})
	if err != nil {
		t.Fatalf("ParseInfo() unexpected error: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("ParseInfo() = %d entries, want 4", len(entries))
	}
	if entries[0] != (InfoEntry{Key: "filename", Type: 2, Value: "/var/lib/rrd/temp.rrd"}) {
		t.Errorf("entry 0 = %+v", entries[0])
	}
	if entries[3] != (InfoEntry{Key: "ds[t].last_ds", Type: 2}) {
		t.Errorf("entry 3 = %+v", entries[3])
	}

	for _, bad := range []string{"lonely", "key x value"} {
		if _, err := ParseInfo([]string{bad}); !errors.Is(err, ErrProtocol) {
			t.Errorf("ParseInfo(%q) error = %v, want ErrProtocol", bad, err)
		}
	}
}

func TestParseTimestamp(t *testing.T) {
	got, err := ParseTimestamp("1708800030")
	if err != nil {
		t.Fatalf("ParseTimestamp() unexpected error: %v", err)
	}
	if !got.Equal(time.Unix(1708800030, 0)) {
		t.Errorf("ParseTimestamp() = %v", got)
	}

	if _, err := ParseTimestamp("abcd"); !errors.Is(err, ErrProtocol) {
		t.Errorf("ParseTimestamp(abcd) error = %v, want ErrProtocol", err)
	}
}
