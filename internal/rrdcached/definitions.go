package rrdcached

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ConsolidationFunction is the aggregation applied when an archive
// downsamples primary data points.
type ConsolidationFunction string

// Consolidation functions understood by the daemon.
const (
	Average ConsolidationFunction = "AVERAGE"
	Min     ConsolidationFunction = "MIN"
	Max     ConsolidationFunction = "MAX"
	Last    ConsolidationFunction = "LAST"
)

// ParseConsolidationFunction parses a consolidation function name
// (case-insensitive).
func ParseConsolidationFunction(s string) (ConsolidationFunction, error) {
	cf := ConsolidationFunction(strings.ToUpper(s))
	if err := cf.validate(); err != nil {
		return "", err
	}
	return cf, nil
}

func (cf ConsolidationFunction) validate() error {
	switch cf {
	case Average, Min, Max, Last:
		return nil
	default:
		return badRequest("unknown consolidation function %q", string(cf))
	}
}

// DataSourceType is the kind of input a data source accepts.
type DataSourceType string

// Data source types.
const (
	Gauge    DataSourceType = "GAUGE"
	Counter  DataSourceType = "COUNTER"
	DCounter DataSourceType = "DCOUNTER"
	Derive   DataSourceType = "DERIVE"
	DDerive  DataSourceType = "DDERIVE"
	Absolute DataSourceType = "ABSOLUTE"
)

func (t DataSourceType) validate() error {
	switch t {
	case Gauge, Counter, DCounter, Derive, DDerive, Absolute:
		return nil
	default:
		return badRequest("unknown data source type %q", string(t))
	}
}

// maxDataSourceNameLength is the longest data source name accepted.
const maxDataSourceNameLength = 64

// DataSource is one named input channel of a database.
type DataSource struct {
	// Name must be 1-64 characters of letters, digits, '_' or '-'.
	Name string

	Type DataSourceType

	// Heartbeat is the longest gap between updates before the value
	// becomes unknown. Whole seconds, greater than zero.
	Heartbeat time.Duration

	// Min and Max bound accepted values. nil means unbounded ("U").
	Min *float64
	Max *float64
}

// Bound returns a pointer to v, for DataSource.Min and DataSource.Max.
func Bound(v float64) *float64 {
	return &v
}

// Validate checks the data source definition.
func (ds DataSource) Validate() error {
	if err := validateDataSourceName(ds.Name); err != nil {
		return err
	}
	if err := ds.Type.validate(); err != nil {
		return err
	}
	if ds.Heartbeat < time.Second || ds.Heartbeat%time.Second != 0 {
		return badRequest("data source %q: heartbeat must be a positive whole number of seconds", ds.Name)
	}
	for _, b := range []*float64{ds.Min, ds.Max} {
		if b != nil && (math.IsNaN(*b) || math.IsInf(*b, 0)) {
			return badRequest("data source %q: bounds must be finite", ds.Name)
		}
	}
	if ds.Min != nil && ds.Max != nil && *ds.Max <= *ds.Min {
		return badRequest("data source %q: maximum must be greater than minimum", ds.Name)
	}
	return nil
}

// String renders the DS:name:TYPE:heartbeat:min:max definition.
func (ds DataSource) String() string {
	return fmt.Sprintf("DS:%s:%s:%d:%s:%s",
		ds.Name,
		ds.Type,
		int64(ds.Heartbeat/time.Second),
		formatBound(ds.Min),
		formatBound(ds.Max),
	)
}

// Archive is one round-robin archive of a database.
type Archive struct {
	CF ConsolidationFunction

	// XFF is the fraction of unknown primary points (0..1) tolerated
	// before the consolidated value is itself unknown.
	XFF float64

	// Steps is the number of primary points per consolidated point.
	Steps int

	// Rows is the number of consolidated points kept.
	Rows int
}

// Validate checks the archive definition.
func (a Archive) Validate() error {
	if err := a.CF.validate(); err != nil {
		return err
	}
	if math.IsNaN(a.XFF) || a.XFF < 0 || a.XFF > 1 {
		return badRequest("archive: xff must be between 0 and 1")
	}
	if a.Steps <= 0 {
		return badRequest("archive: steps must be greater than 0")
	}
	if a.Rows <= 0 {
		return badRequest("archive: rows must be greater than 0")
	}
	return nil
}

// String renders the RRA:CF:xff:steps:rows definition.
func (a Archive) String() string {
	return fmt.Sprintf("RRA:%s:%s:%d:%d", a.CF, formatFloat(a.XFF), a.Steps, a.Rows)
}

// parseDataSource parses a DS:name:TYPE:heartbeat:min:max token.
func parseDataSource(tok string) (DataSource, error) {
	parts := strings.Split(tok, ":")
	if len(parts) != 6 || parts[0] != "DS" {
		return DataSource{}, badRequest("malformed data source %q", tok)
	}
	hb, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return DataSource{}, badRequest("data source heartbeat %q: %v", parts[3], err)
	}
	ds := DataSource{
		Name:      parts[1],
		Type:      DataSourceType(strings.ToUpper(parts[2])),
		Heartbeat: time.Duration(hb) * time.Second,
	}
	if ds.Min, err = parseBound(parts[4]); err != nil {
		return DataSource{}, err
	}
	if ds.Max, err = parseBound(parts[5]); err != nil {
		return DataSource{}, err
	}
	return ds, ds.Validate()
}

// parseArchive parses a RRA:CF:xff:steps:rows token.
func parseArchive(tok string) (Archive, error) {
	parts := strings.Split(tok, ":")
	if len(parts) != 5 || parts[0] != "RRA" {
		return Archive{}, badRequest("malformed archive %q", tok)
	}
	cf, err := ParseConsolidationFunction(parts[1])
	if err != nil {
		return Archive{}, err
	}
	xff, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return Archive{}, badRequest("archive xff %q: %v", parts[2], err)
	}
	steps, err := strconv.Atoi(parts[3])
	if err != nil {
		return Archive{}, badRequest("archive steps %q: %v", parts[3], err)
	}
	rows, err := strconv.Atoi(parts[4])
	if err != nil {
		return Archive{}, badRequest("archive rows %q: %v", parts[4], err)
	}
	a := Archive{CF: cf, XFF: xff, Steps: steps, Rows: rows}
	return a, a.Validate()
}

func validateDataSourceName(name string) error {
	if name == "" || len(name) > maxDataSourceNameLength {
		return badRequest("data source name must be between 1 and %d characters", maxDataSourceNameLength)
	}
	for _, r := range name {
		if !isNameRune(r) {
			return badRequest("data source name %q may only contain letters, digits, '_' and '-'", name)
		}
	}
	return nil
}

func isNameRune(r rune) bool {
	return r == '_' || r == '-' ||
		(r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}

func formatBound(b *float64) string {
	if b == nil {
		return "U"
	}
	return formatFloat(*b)
}

func parseBound(s string) (*float64, error) {
	if s == "U" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, badRequest("data source bound %q: %v", s, err)
	}
	return &v, nil
}

// formatFloat renders v in the shortest form that round-trips, without
// an exponent.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
