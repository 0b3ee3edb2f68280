// Package rrdcached implements a client for the rrdcached line protocol.
//
// The daemon speaks a text protocol over a persistent stream: one command
// line in, a status line plus an optional body out. This package owns the
// protocol engine: typed commands and their encoding, an incremental
// response parser, a connection that keeps exactly one command on the wire,
// batch sessions, and classification of daemon errors.
//
// # Wire Format
//
// Every reply starts with a status line:
//
//	<code> <message>
//
// A negative code is an error. A non-negative code is the number of body
// lines that follow:
//
//	-> STATS
//	<- 9 Statistics follow
//	<- QueueLength: 0
//	<- ...
//
// # Usage
//
//	client, err := rrdcached.Dial(ctx, rrdcached.DialConfig{
//	    Address: "unix:///var/run/rrdcached.sock",
//	})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Update(ctx, "temperature.rrd", rrdcached.Sample{
//	    Time:   time.Now(),
//	    Values: []float64{21.5},
//	})
//	if errors.Is(err, rrdcached.ErrNotFound) {
//	    // create the database first
//	}
//
// # Failure Model
//
// Validation failures (ErrBadRequest) happen before any byte is written.
// Daemon rejections (ErrNotFound, ErrAlreadyExists, ErrOutOfOrderUpdate,
// ErrDaemonRejected) leave the connection usable. Framing errors
// (ErrProtocol), stream failures and cancelled in-flight calls
// (ErrConnectionClosed) are fatal: the connection refuses further use and
// the caller must dial again.
//
// # Thread Safety
//
// Conn and Client are safe for concurrent use. Calls are serialized, never
// pipelined. Use one connection per goroutine for parallelism.
package rrdcached
