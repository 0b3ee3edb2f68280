// Package ingest bridges MQTT to rrdcached.
//
// Messages on <prefix>/update/<file-id> carry one or more samples in
// rrdtool syntax, separated by whitespace:
//
//	rrdc/update/net/eth0.rrd   "1708800040:1024:2048 1708800050:U:2100"
//
// Each message becomes one UPDATE. Failures are logged and, when enabled,
// published as JSON to <prefix>/error/<file-id>.
package ingest
