package repository

import (
	"encoding/json"
	"fmt"
)

// Bus topics.
const (
	TopicKeyVerified   = "keys.verified"
	TopicKeyIssued     = "keys.issued"
	TopicUsageRecorded = "usage.recorded"
)

// PublishJSON encodes v and publishes it on topic.
func PublishJSON(bus MessageBus, topic string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", topic, err)
	}
	return bus.Publish(topic, data)
}
