// Package mqtt provides MQTT client connectivity for the rrdc bridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//
// # Architecture
//
// The bridge lets devices that speak MQTT feed round-robin databases without
// a direct socket to rrdcached:
//
//	sensors -> MQTT broker -> rrdc bridge -> rrdcached
//
// Topics are built by Topics; see its documentation for the hierarchy.
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS) when the broker is not on localhost
//   - Set credentials through RRDC_MQTT_USERNAME and RRDC_MQTT_PASSWORD
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, mqtt.Topics{Prefix: cfg.Ingest.TopicPrefix})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(client.Topics().AllUpdates(), 1, handler)
package mqtt
