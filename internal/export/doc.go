// Package export copies consolidated archive data from rrdcached into
// InfluxDB.
//
//	exp, _ := export.New(rrdClient, influxClient)
//	n, err := exp.Export(ctx, export.Request{
//	    ID:    "temp.rrd",
//	    CF:    rrdcached.Average,
//	    Start: rrdcached.Ago(24 * time.Hour),
//	})
package export
