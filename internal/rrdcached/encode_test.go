package rrdcached

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"
)

func validCommands() []struct {
	name string
	cmd  Command
	want string
} {
	return []struct {
		name string
		cmd  Command
		want string
	}{
		{
			name: "create full",
			cmd: Create{
				ID:          "temp.rrd",
				Step:        10 * time.Second,
				Start:       time.Unix(1700000000, 0),
				NoOverwrite: true,
				DataSources: []DataSource{
					{Name: "t", Type: Gauge, Heartbeat: 20 * time.Second, Min: Bound(-40), Max: Bound(85)},
					{Name: "hits", Type: Counter, Heartbeat: 600 * time.Second},
				},
				Archives: []Archive{
					{CF: Average, XFF: 0.5, Steps: 1, Rows: 100},
					{CF: Max, XFF: 0, Steps: 6, Rows: 700},
				},
			},
			want: "CREATE temp.rrd -s 10 -b 1700000000 -O DS:t:GAUGE:20:-40:85 DS:hits:COUNTER:600:U:U RRA:AVERAGE:0.5:1:100 RRA:MAX:0:6:700\n",
		},
		{
			name: "create defaults",
			cmd: Create{
				ID:          "a",
				DataSources: []DataSource{{Name: "v", Type: Derive, Heartbeat: time.Minute, Min: Bound(0)}},
				Archives:    []Archive{{CF: Last, XFF: 0.25, Steps: 1, Rows: 10}},
			},
			want: "CREATE a DS:v:DERIVE:60:0:U RRA:LAST:0.25:1:10\n",
		},
		{
			name: "update",
			cmd: Update{ID: "temp.rrd", Samples: []Sample{
				{Time: time.Unix(1609459200, 0), Values: []float64{1.5, math.NaN()}},
				{Time: time.Unix(1609459210, 0), Values: []float64{-2, 1e21}},
			}},
			want: "UPDATE temp.rrd 1609459200:1.5:U 1609459210:-2:1000000000000000000000\n",
		},
		{
			name: "update now",
			cmd:  Update{ID: "temp.rrd", Samples: []Sample{{Values: []float64{42}}}},
			want: "UPDATE temp.rrd N:42\n",
		},
		{
			name: "update quoted identifier",
			cmd:  Update{ID: "my data/temp.rrd", Samples: []Sample{{Time: time.Unix(1, 0), Values: []float64{0.1}}}},
			want: "UPDATE 'my data/temp.rrd' 1:0.1\n",
		},
		{
			name: "updatev",
			cmd:  UpdateV{ID: "temp.rrd", Samples: []Sample{{Time: time.Unix(5, 0), Values: []float64{3}}}},
			want: "UPDATEV temp.rrd 5:3\n",
		},
		{
			name: "last",
			cmd:  LastUpdate{ID: "temp.rrd"},
			want: "LAST temp.rrd\n",
		},
		{
			name: "first",
			cmd:  First{ID: "temp.rrd", Archive: 2},
			want: "FIRST temp.rrd 2\n",
		},
		{
			name: "first default archive",
			cmd:  First{ID: "temp.rrd"},
			want: "FIRST temp.rrd 0\n",
		},
		{
			name: "fetch minimal",
			cmd:  Fetch{ID: "temp.rrd", CF: Average},
			want: "FETCH temp.rrd AVERAGE\n",
		},
		{
			name: "fetch range and columns",
			cmd: Fetch{
				ID:      "temp.rrd",
				CF:      Max,
				Start:   At(time.Unix(1700000000, 0)),
				End:     Ago(0),
				Columns: []string{"t", "hits"},
			},
			want: "FETCH temp.rrd MAX 1700000000 0 t hits\n",
		},
		{
			name: "fetch relative",
			cmd:  Fetch{ID: "temp.rrd", CF: Min, Start: Ago(time.Hour)},
			want: "FETCH temp.rrd MIN -3600\n",
		},
		{name: "flush", cmd: Flush{ID: "temp.rrd"}, want: "FLUSH temp.rrd\n"},
		{name: "flushall", cmd: FlushAll{}, want: "FLUSHALL\n"},
		{name: "pending", cmd: Pending{ID: "temp.rrd"}, want: "PENDING temp.rrd\n"},
		{name: "forget", cmd: Forget{ID: "temp.rrd"}, want: "FORGET temp.rrd\n"},
		{name: "stats", cmd: Stats{}, want: "STATS\n"},
		{name: "help", cmd: Help{}, want: "HELP\n"},
		{name: "help topic", cmd: Help{Topic: "update"}, want: "HELP update\n"},
		{name: "quit", cmd: Quit{}, want: "QUIT\n"},
		{name: "batch", cmd: Batch{}, want: "BATCH\n"},
		{name: "ping", cmd: Ping{}, want: "PING\n"},
		{name: "queue", cmd: Queue{}, want: "QUEUE\n"},
		{name: "info", cmd: Info{ID: "temp.rrd"}, want: "INFO temp.rrd\n"},
		{name: "list", cmd: List{Path: "/"}, want: "LIST /\n"},
		{name: "list recursive", cmd: List{Path: "/sensors", Recursive: true}, want: "LIST RECURSIVE /sensors\n"},
		{name: "suspend", cmd: Suspend{ID: "temp.rrd"}, want: "SUSPEND temp.rrd\n"},
		{name: "resume", cmd: Resume{ID: "temp.rrd"}, want: "RESUME temp.rrd\n"},
		{name: "suspendall", cmd: SuspendAll{}, want: "SUSPENDALL\n"},
		{name: "resumeall", cmd: ResumeAll{}, want: "RESUMEALL\n"},
	}
}

func TestEncode(t *testing.T) {
	for _, tt := range validCommands() {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.cmd)
			if err != nil {
				t.Fatalf("Encode() unexpected error: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Encode() = %q, want %q", got, tt.want)
			}
			if strings.Count(string(got), "\n") != 1 {
				t.Errorf("Encode() produced %d lines, want 1", strings.Count(string(got), "\n"))
			}
		})
	}
}

func TestEncodeBadRequest(t *testing.T) {
	ds := []DataSource{{Name: "t", Type: Gauge, Heartbeat: time.Minute}}
	rra := []Archive{{CF: Average, XFF: 0.5, Steps: 1, Rows: 10}}
	sample := []Sample{{Values: []float64{1}}}

	tests := []struct {
		name string
		cmd  Command
	}{
		{name: "nil command", cmd: nil},
		{name: "empty identifier", cmd: Flush{}},
		{name: "newline in identifier", cmd: Flush{ID: "a\nFLUSHALL"}},
		{name: "carriage return in identifier", cmd: Info{ID: "a\rb"}},
		{name: "nul in identifier", cmd: Info{ID: "a\x00b"}},
		{name: "quote in identifier", cmd: Forget{ID: "it's.rrd"}},
		{name: "identifier too long", cmd: Pending{ID: strings.Repeat("a", maxIdentifierLength+1)}},
		{name: "create without data sources", cmd: Create{ID: "a", Archives: rra}},
		{name: "create without archives", cmd: Create{ID: "a", DataSources: ds}},
		{name: "create duplicate data source", cmd: Create{ID: "a", DataSources: append(ds, ds[0]), Archives: rra}},
		{name: "create fractional step", cmd: Create{ID: "a", Step: 1500 * time.Millisecond, DataSources: ds, Archives: rra}},
		{name: "create negative step", cmd: Create{ID: "a", Step: -time.Second, DataSources: ds, Archives: rra}},
		{name: "update sample before epoch", cmd: Update{ID: "a", Samples: []Sample{{Time: time.Unix(-5, 0), Values: []float64{1}}}}},
		{name: "updatev sample before epoch", cmd: UpdateV{ID: "a", Samples: []Sample{{Time: time.Unix(-1, 0), Values: []float64{1}}}}},
		{name: "create start before epoch", cmd: Create{ID: "a", Start: time.Unix(-5, 0), DataSources: ds, Archives: rra}},
		{
			name: "data source zero heartbeat",
			cmd:  Create{ID: "a", DataSources: []DataSource{{Name: "t", Type: Gauge}}, Archives: rra},
		},
		{
			name: "data source max not above min",
			cmd: Create{ID: "a", DataSources: []DataSource{
				{Name: "t", Type: Gauge, Heartbeat: time.Minute, Min: Bound(10), Max: Bound(10)},
			}, Archives: rra},
		},
		{
			name: "data source infinite bound",
			cmd: Create{ID: "a", DataSources: []DataSource{
				{Name: "t", Type: Gauge, Heartbeat: time.Minute, Max: Bound(math.Inf(1))},
			}, Archives: rra},
		},
		{
			name: "data source name with colon",
			cmd:  Create{ID: "a", DataSources: []DataSource{{Name: "t:x", Type: Gauge, Heartbeat: time.Minute}}, Archives: rra},
		},
		{
			name: "data source name too long",
			cmd: Create{ID: "a", DataSources: []DataSource{
				{Name: strings.Repeat("n", maxDataSourceNameLength+1), Type: Gauge, Heartbeat: time.Minute},
			}, Archives: rra},
		},
		{
			name: "unknown data source type",
			cmd:  Create{ID: "a", DataSources: []DataSource{{Name: "t", Type: "RATE", Heartbeat: time.Minute}}, Archives: rra},
		},
		{name: "archive xff above one", cmd: Create{ID: "a", DataSources: ds, Archives: []Archive{{CF: Average, XFF: 1.5, Steps: 1, Rows: 1}}}},
		{name: "archive xff nan", cmd: Create{ID: "a", DataSources: ds, Archives: []Archive{{CF: Average, XFF: math.NaN(), Steps: 1, Rows: 1}}}},
		{name: "archive zero steps", cmd: Create{ID: "a", DataSources: ds, Archives: []Archive{{CF: Average, Rows: 1}}}},
		{name: "archive zero rows", cmd: Create{ID: "a", DataSources: ds, Archives: []Archive{{CF: Average, Steps: 1}}}},
		{name: "archive unknown cf", cmd: Create{ID: "a", DataSources: ds, Archives: []Archive{{CF: "MEDIAN", Steps: 1, Rows: 1}}}},
		{name: "update without samples", cmd: Update{ID: "a"}},
		{name: "update sample without values", cmd: Update{ID: "a", Samples: []Sample{{}}}},
		{name: "update infinite value", cmd: Update{ID: "a", Samples: []Sample{{Values: []float64{math.Inf(-1)}}}}},
		{name: "updatev bad identifier", cmd: UpdateV{ID: "", Samples: sample}},
		{name: "first negative archive", cmd: First{ID: "a", Archive: -1}},
		{name: "fetch unknown cf", cmd: Fetch{ID: "a", CF: "SUM"}},
		{name: "fetch end without start", cmd: Fetch{ID: "a", CF: Average, End: "now"}},
		{name: "fetch columns without end", cmd: Fetch{ID: "a", CF: Average, Start: "-60", Columns: []string{"t"}}},
		{name: "fetch blank in time", cmd: Fetch{ID: "a", CF: Average, Start: "now - 1h"}},
		{name: "fetch bad column", cmd: Fetch{ID: "a", CF: Average, Start: "-60", End: "now", Columns: []string{"a b"}}},
		{name: "help multi word", cmd: Help{Topic: "update now"}},
		{name: "help digits", cmd: Help{Topic: "1"}},
		{name: "list without path", cmd: List{Recursive: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := []byte("prefix")
			got, err := AppendCommand(dst, tt.cmd)
			if !errors.Is(err, ErrBadRequest) {
				t.Fatalf("AppendCommand() error = %v, want ErrBadRequest", err)
			}
			if string(got) != "prefix" {
				t.Errorf("AppendCommand() modified dst to %q on failure", got)
			}
		})
	}
}

func TestParseCommandRoundTrip(t *testing.T) {
	for _, tt := range validCommands() {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := ParseCommand(tt.want)
			if err != nil {
				t.Fatalf("ParseCommand(%q) unexpected error: %v", tt.want, err)
			}
			if cmd.Verb() != tt.cmd.Verb() {
				t.Errorf("Verb() = %s, want %s", cmd.Verb(), tt.cmd.Verb())
			}
			got, err := Encode(cmd)
			if err != nil {
				t.Fatalf("Encode() unexpected error: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("round trip = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseCommand(t *testing.T) {
	t.Run("lower case verb", func(t *testing.T) {
		cmd, err := ParseCommand("update temp.rrd N:1:U")
		if err != nil {
			t.Fatalf("ParseCommand() unexpected error: %v", err)
		}
		u, ok := cmd.(Update)
		if !ok {
			t.Fatalf("ParseCommand() = %T, want Update", cmd)
		}
		if len(u.Samples) != 1 || !u.Samples[0].Time.IsZero() {
			t.Fatalf("samples = %+v, want one sample at N", u.Samples)
		}
		if v := u.Samples[0].Values; len(v) != 2 || v[0] != 1 || !math.IsNaN(v[1]) {
			t.Errorf("values = %v, want [1 NaN]", v)
		}
	})

	t.Run("quoted identifier", func(t *testing.T) {
		cmd, err := ParseCommand("FLUSH 'my data.rrd'\r\n")
		if err != nil {
			t.Fatalf("ParseCommand() unexpected error: %v", err)
		}
		if f, ok := cmd.(Flush); !ok || f.ID != "my data.rrd" {
			t.Errorf("ParseCommand() = %#v, want Flush{ID: %q}", cmd, "my data.rrd")
		}
	})

	t.Run("list path named like the flag", func(t *testing.T) {
		cmd, err := ParseCommand("LIST RECURSIVE")
		if err != nil {
			t.Fatalf("ParseCommand() unexpected error: %v", err)
		}
		if l, ok := cmd.(List); !ok || l.Recursive || l.Path != "RECURSIVE" {
			t.Errorf("ParseCommand() = %#v, want List{Path: RECURSIVE}", cmd)
		}
	})

	bad := []string{
		"",
		"   ",
		"FROB x",
		"FLUSH",
		"FLUSH a b",
		"FLUSH 'unterminated",
		"FLUSH ''",
		"FLUSH 'a'b",
		"FLUSH a'b",
		"STATS now",
		"UPDATE temp.rrd",
		"UPDATE temp.rrd 12",
		"UPDATE temp.rrd x:1",
		"UPDATE temp.rrd N:abc",
		"CREATE",
		"CREATE a -s",
		"CREATE a -s ten DS:t:GAUGE:60:U:U RRA:AVERAGE:0.5:1:1",
		"CREATE a --bogus DS:t:GAUGE:60:U:U RRA:AVERAGE:0.5:1:1",
		"CREATE a DS:t:GAUGE:60:U RRA:AVERAGE:0.5:1:1",
		"CREATE a DS:t:GAUGE:60:U:U RRA:AVERAGE:0.5:1",
		"FIRST a x",
		"FETCH a",
		"FETCH a SUM",
		"HELP a b",
		"LIST a b",
	}
	for _, line := range bad {
		t.Run("reject "+line, func(t *testing.T) {
			if _, err := ParseCommand(line); !errors.Is(err, ErrBadRequest) {
				t.Errorf("ParseCommand(%q) error = %v, want ErrBadRequest", line, err)
			}
		})
	}
}

func TestParseSample(t *testing.T) {
	s, err := ParseSample("1700000000:1.25:U:-3")
	if err != nil {
		t.Fatalf("ParseSample() unexpected error: %v", err)
	}
	if !s.Time.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("Time = %v, want %v", s.Time, time.Unix(1700000000, 0))
	}
	if len(s.Values) != 3 || s.Values[0] != 1.25 || !math.IsNaN(s.Values[1]) || s.Values[2] != -3 {
		t.Errorf("Values = %v, want [1.25 NaN -3]", s.Values)
	}
	if got := s.String(); got != "1700000000:1.25:U:-3" {
		t.Errorf("String() = %q", got)
	}
}

func TestParseSampleRejects(t *testing.T) {
	tests := []string{
		"1700000000",
		"-5:1",
		"soon:1",
		"1700000000:abc",
		"1700000000:+Inf",
	}
	for _, tok := range tests {
		t.Run(tok, func(t *testing.T) {
			if _, err := ParseSample(tok); !errors.Is(err, ErrBadRequest) {
				t.Errorf("ParseSample(%q) error = %v, want ErrBadRequest", tok, err)
			}
		})
	}
}
