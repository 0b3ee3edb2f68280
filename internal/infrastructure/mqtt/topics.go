package mqtt

import (
	"strings"
)

// DefaultTopicPrefix roots every rrdc topic unless configured otherwise.
const DefaultTopicPrefix = "rrdc"

// Topic segments below the prefix.
const (
	segmentUpdate = "update"
	segmentError  = "error"
	segmentStatus = "status"
)

// Topics builds the bridge topic hierarchy under a prefix:
//
//	<prefix>/update/<file-id>   samples in, one or more per payload line
//	<prefix>/error/<file-id>    daemon rejections out
//	<prefix>/status             online/offline, retained, doubles as LWT
//
// File identifiers may contain slashes; they are carried verbatim after the
// segment, so subscriptions use the multi-level wildcard.
//
//	topics := mqtt.Topics{Prefix: "site/rrd"}
//	topics.Update("net/eth0.rrd") // "site/rrd/update/net/eth0.rrd"
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return strings.TrimSuffix(t.Prefix, "/")
}

// Update returns the topic samples for fileID arrive on.
func (t Topics) Update(fileID string) string {
	return t.prefix() + "/" + segmentUpdate + "/" + fileID
}

// Error returns the topic rejections for fileID are published to.
func (t Topics) Error(fileID string) string {
	return t.prefix() + "/" + segmentError + "/" + fileID
}

// Status returns the retained bridge status topic.
func (t Topics) Status() string {
	return t.prefix() + "/" + segmentStatus
}

// AllUpdates returns a pattern matching every update topic.
//
// Pattern: <prefix>/update/#
func (t Topics) AllUpdates() string {
	return t.prefix() + "/" + segmentUpdate + "/#"
}

// ParseUpdate extracts the file identifier from an update topic. ok is false
// when topic is not below <prefix>/update/ or carries an empty identifier.
func (t Topics) ParseUpdate(topic string) (fileID string, ok bool) {
	fileID, ok = strings.CutPrefix(topic, t.prefix()+"/"+segmentUpdate+"/")
	if !ok || fileID == "" {
		return "", false
	}
	return fileID, true
}
