package influxdb

import (
	"context"
	"fmt"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WritePoints writes points in batches of the configured batch size.
//
// Parameters:
//   - ctx: Context for cancellation of in-flight writes
//   - points: Points to write; an empty call is a no-op
//
// Returns:
//   - error: ErrNotConnected, or the first failed batch wrapped in ErrWriteFailed.
//     Batches written before a failure stay written.
//
// Example:
//
//	p := write.NewPoint("rrd",
//	    map[string]string{"database": "temp.rrd", "ds": "t"},
//	    map[string]interface{}{"value": 21.5},
//	    ts)
//	err := client.WritePoints(ctx, p)
func (c *Client) WritePoints(ctx context.Context, points ...*write.Point) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	for start := 0; start < len(points); start += c.batchSize {
		end := min(start+c.batchSize, len(points))
		if err := c.writeAPI.WritePoint(ctx, points[start:end]...); err != nil {
			return fmt.Errorf("%w: points %d-%d: %w", ErrWriteFailed, start, end-1, err)
		}
	}
	return nil
}
