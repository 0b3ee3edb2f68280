package export

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/rrdcached-go/internal/rrdcached"
)

// DefaultMeasurement names exported points when the request leaves it empty.
const DefaultMeasurement = "rrd"

// Point tag and field keys.
const (
	tagDatabase = "database"
	tagDS       = "ds"
	tagCF       = "cf"
	fieldValue  = "value"
)

// Fetcher is the subset of *rrdcached.Client the exporter needs.
type Fetcher interface {
	Fetch(ctx context.Context, cmd rrdcached.Fetch) (*rrdcached.FetchResult, error)
}

// PointWriter is implemented by *influxdb.Client.
type PointWriter interface {
	WritePoints(ctx context.Context, points ...*write.Point) error
}

// Request selects the archive rows to copy.
type Request struct {
	ID    string
	CF    rrdcached.ConsolidationFunction
	Start rrdcached.TimeRef
	End   rrdcached.TimeRef

	// Columns restricts the exported data sources. Empty exports all.
	Columns []string

	// Measurement overrides DefaultMeasurement.
	Measurement string
}

// Exporter copies FETCH results into a time-series store.
type Exporter struct {
	fetcher Fetcher
	writer  PointWriter
}

// New creates an exporter.
func New(fetcher Fetcher, writer PointWriter) (*Exporter, error) {
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if writer == nil {
		return nil, errors.New("point writer is required")
	}
	return &Exporter{fetcher: fetcher, writer: writer}, nil
}

// Export issues one FETCH and writes every known value as a point tagged
// with database, ds and cf. Unknown (NaN) values are skipped. It returns
// the number of points written.
func (e *Exporter) Export(ctx context.Context, req Request) (int, error) {
	res, err := e.fetcher.Fetch(ctx, rrdcached.Fetch{
		ID:      req.ID,
		CF:      req.CF,
		Start:   req.Start,
		End:     req.End,
		Columns: req.Columns,
	})
	if err != nil {
		return 0, fmt.Errorf("fetch %s: %w", req.ID, err)
	}

	points := Points(req, res)
	if len(points) == 0 {
		return 0, nil
	}
	if err := e.writer.WritePoints(ctx, points...); err != nil {
		return 0, fmt.Errorf("write %d points for %s: %w", len(points), req.ID, err)
	}
	return len(points), nil
}

// Points converts a fetch result into points, one per known value.
func Points(req Request, res *rrdcached.FetchResult) []*write.Point {
	measurement := req.Measurement
	if measurement == "" {
		measurement = DefaultMeasurement
	}

	points := make([]*write.Point, 0, len(res.Rows)*len(res.DSNames))
	for _, row := range res.Rows {
		for j, v := range row.Values {
			if math.IsNaN(v) || j >= len(res.DSNames) {
				continue
			}
			points = append(points, write.NewPoint(measurement,
				map[string]string{
					tagDatabase: req.ID,
					tagDS:       res.DSNames[j],
					tagCF:       string(req.CF),
				},
				map[string]interface{}{fieldValue: v},
				row.Time,
			))
		}
	}
	return points
}
