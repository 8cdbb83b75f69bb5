package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/rawblock/ring-engine/pkg/models"
)

// Detection events for downstream case management.
//
//   rings topic: one message per ring, keyed by run_id so a run's rings land
//                on one partition in RING_### order
//   runs topic:  one run-completed message after the rings

const (
	EventRingDetected = "ring_detected"
	EventRunCompleted = "run_completed"
)

// RingEvent is the payload on the rings topic.
type RingEvent struct {
	Type       string      `json:"type"`
	RunID      string      `json:"run_id"`
	Ring       models.Ring `json:"ring"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// RunEvent is the payload on the runs topic.
type RunEvent struct {
	Type             string               `json:"type"`
	RunID            string               `json:"run_id"`
	Source           string               `json:"source"`
	TransactionCount int                  `json:"transaction_count"`
	Summary          models.ReportSummary `json:"summary"`
	RingsByPattern   map[string]int       `json:"rings_by_pattern"`
	OccurredAt       time.Time            `json:"occurred_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher wraps kafka-go writers, one per topic, created lazily.
type Publisher struct {
	mu         sync.Mutex
	writers    map[string]messageWriter
	brokers    []string
	ringsTopic string
	runsTopic  string
	newWriter  func(topic string) messageWriter
}

// NewPublisher creates a publisher for the given brokers and topics.
func NewPublisher(brokers []string, ringsTopic, runsTopic string) *Publisher {
	p := &Publisher{
		writers:    make(map[string]messageWriter),
		brokers:    brokers,
		ringsTopic: ringsTopic,
		runsTopic:  runsTopic,
	}
	p.newWriter = p.kafkaWriter
	return p
}

// PublishRun emits the ring events then the run-completed event.
func (p *Publisher) PublishRun(ctx context.Context, run *models.AnalysisRun) error {
	ringMsgs, runMsg, err := BuildMessages(run, time.Now().UTC())
	if err != nil {
		return err
	}

	if len(ringMsgs) > 0 {
		if err := p.writer(p.ringsTopic).WriteMessages(ctx, ringMsgs...); err != nil {
			return fmt.Errorf("kafka publish to %s: %w", p.ringsTopic, err)
		}
	}
	if err := p.writer(p.runsTopic).WriteMessages(ctx, runMsg); err != nil {
		return fmt.Errorf("kafka publish to %s: %w", p.runsTopic, err)
	}

	log.Printf("[Events] Published %d ring events for run %s", len(ringMsgs), run.RunID)
	return nil
}

// BuildMessages renders a run into Kafka messages without sending them.
func BuildMessages(run *models.AnalysisRun, now time.Time) ([]kafkago.Message, kafkago.Message, error) {
	if run.Report == nil {
		return nil, kafkago.Message{}, fmt.Errorf("run %s has no report", run.RunID)
	}
	key := []byte(run.RunID)
	headers := []kafkago.Header{{Key: "run_id", Value: key}}

	ringMsgs := make([]kafkago.Message, 0, len(run.Report.FraudRings))
	for _, ring := range run.Report.FraudRings {
		value, err := json.Marshal(RingEvent{
			Type:       EventRingDetected,
			RunID:      run.RunID,
			Ring:       ring,
			OccurredAt: now,
		})
		if err != nil {
			return nil, kafkago.Message{}, fmt.Errorf("encode ring event: %w", err)
		}
		ringMsgs = append(ringMsgs, kafkago.Message{
			Key:     key,
			Value:   value,
			Headers: append(headers, kafkago.Header{Key: "pattern_type", Value: []byte(ring.PatternType)}),
		})
	}

	byPattern := make(map[string]int)
	for pattern, n := range run.Report.RingsByPattern() {
		byPattern[string(pattern)] = n
	}
	value, err := json.Marshal(RunEvent{
		Type:             EventRunCompleted,
		RunID:            run.RunID,
		Source:           run.Source,
		TransactionCount: run.TransactionCount,
		Summary:          run.Report.Summary,
		RingsByPattern:   byPattern,
		OccurredAt:       now,
	})
	if err != nil {
		return nil, kafkago.Message{}, fmt.Errorf("encode run event: %w", err)
	}

	return ringMsgs, kafkago.Message{Key: key, Value: value, Headers: headers}, nil
}

// Close closes all writers.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for topic, w := range p.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing writer for topic %s: %w", topic, err)
		}
	}
	p.writers = make(map[string]messageWriter)
	return firstErr
}

func (p *Publisher) writer(topic string) messageWriter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if w, ok := p.writers[topic]; ok {
		return w
	}
	w := p.newWriter(topic)
	p.writers[topic] = w
	return w
}

func (p *Publisher) kafkaWriter(topic string) messageWriter {
	return &kafkago.Writer{
		Addr:         kafkago.TCP(p.brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafkago.RequireAll,
	}
}
