// Package influxdb provides InfluxDB connectivity for rrdc.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, health checks and batched point writes. The export package
// uses it to copy consolidated archive rows out of rrdcached.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.WritePoints(ctx, points...)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
//
// # Error Handling
//
// Writes are blocking; a rejected batch is returned wrapped in
// ErrWriteFailed. Timestamps are written with second precision, matching
// the resolution of round-robin archives.
package influxdb
