package notify

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/homesense/energy-insights/internal/queue"
	"github.com/homesense/energy-insights/internal/rollup"
)

// Alert is the notification payload dispatched when a rule fires.
type Alert struct {
	ID         string       `json:"id"`
	RuleID     string       `json:"rule_id"`
	Scope      rollup.Scope `json:"scope"`
	ScopeID    string       `json:"scope_id"`
	Metric     string       `json:"metric"`
	Value      float64      `json:"value"`
	Threshold  float64      `json:"threshold"`
	Operator   string       `json:"operator"`
	BucketTime time.Time    `json:"bucket_time"`
	FiredAt    time.Time    `json:"fired_at"`
}

// EncodeAlert encodes an Alert to JSON
func EncodeAlert(a *Alert) ([]byte, error) {
	return json.Marshal(a)
}

// DecodeAlert decodes JSON to an Alert
func DecodeAlert(data []byte) (*Alert, error) {
	var a Alert
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// Notifier is the outbound channel for fired alerts. Implementations
// do not retry; the caller's cooldown is armed whether or not Send
// succeeds.
type Notifier interface {
	Send(ctx context.Context, alert *Alert) error
}

// KafkaNotifier publishes alerts to the alerts topic, keyed by rule ID
// so one rule's notifications stay ordered on one partition.
type KafkaNotifier struct {
	producer *queue.Producer
}

// NewKafkaNotifier creates a notifier backed by a Kafka producer.
func NewKafkaNotifier(producer *queue.Producer) *KafkaNotifier {
	return &KafkaNotifier{producer: producer}
}

func (n *KafkaNotifier) Send(ctx context.Context, alert *Alert) error {
	data, err := EncodeAlert(alert)
	if err != nil {
		return err
	}
	return n.producer.Publish(ctx, alert.RuleID, data)
}

// LogNotifier writes alerts to the process log. Used when no broker is
// configured (local runs).
type LogNotifier struct {
	logger *log.Logger
}

// NewLogNotifier creates a log-only notifier.
func NewLogNotifier(logger *log.Logger) *LogNotifier {
	if logger == nil {
		logger = log.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(ctx context.Context, alert *Alert) error {
	n.logger.Printf("ALERT %s: rule=%s %s/%s %s=%.2f (threshold %s %.2f) bucket=%s",
		alert.ID, alert.RuleID, alert.Scope, alert.ScopeID,
		alert.Metric, alert.Value, alert.Operator, alert.Threshold,
		alert.BucketTime.Format(time.RFC3339))
	return nil
}
