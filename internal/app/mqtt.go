package app

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/Spec-DY/Drone-Panel/internal/ingest"
	"github.com/Spec-DY/Drone-Panel/internal/mqttbroker"
)

const (
	topicRoot  = "telemetry"
	topicBatch = topicRoot + "/batch"
	ackSuffix  = "/ack"
)

func (a *App) handleMQTTPublish(ctx context.Context, msg mqttbroker.PublishMessage) {
	receipt, ok := a.ingestMQTT(ctx, msg.Topic, msg.Payload)
	if !ok {
		a.logger.Debug("ignoring publish", "topic", msg.Topic, "client", msg.ClientID)
		return
	}

	body, err := json.Marshal(receipt)
	if err != nil {
		a.logger.Error("encode receipt", "topic", msg.Topic, "error", err)
		return
	}
	if err := a.broker.Publish(msg.Topic+ackSuffix, body); err != nil {
		a.logger.Warn("publish receipt failed", "topic", msg.Topic, "error", err)
	}
}

// ingestMQTT routes a publish by topic: telemetry/batch carries an array,
// telemetry/<deviceId> a single sample. Other topics are not telemetry and
// report ok=false.
func (a *App) ingestMQTT(ctx context.Context, topic string, payload []byte) (ingest.Receipt, bool) {
	if topic == topicBatch {
		return a.ingest.AcceptBatch(ctx, payload), true
	}

	device, found := strings.CutPrefix(topic, topicRoot+"/")
	if !found || device == "" || strings.Contains(device, "/") {
		return ingest.Receipt{}, false
	}
	return a.ingest.AcceptOne(ctx, payload, device), true
}
