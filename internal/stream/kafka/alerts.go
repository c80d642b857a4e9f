package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/movilityai/tripplanner/internal/lib/alerts"
)

// Config holds the alert topic consumer settings
type Config struct {
	Brokers []string      `koanf:"brokers" yaml:"brokers"`
	Topic   string        `koanf:"topic" yaml:"topic"`
	GroupID string        `koanf:"group_id" yaml:"group_id"`
	MaxAge  time.Duration `koanf:"max_age" yaml:"max_age"`
}

// MessageReader is the subset of *kafka.Reader the stream uses
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Event actions carried on the topic
const (
	ActionUpsert  = "upsert"
	ActionResolve = "resolve"
)

// AlertEvent is one message on the alert topic
type AlertEvent struct {
	Action string       `json:"action"`
	Alert  alerts.Alert `json:"alert"`
}

// AlertStream keeps a snapshot of alerts published on a topic
type AlertStream struct {
	reader MessageReader
	maxAge time.Duration
	now    func() time.Time

	mu     sync.RWMutex
	alerts map[string]alerts.Alert
}

// NewAlertStream creates a consumer group reader for the alert topic
func NewAlertStream(cfg Config) *AlertStream {
	log.Printf("Creating alert stream consumer: brokers=%v topic=%s group=%s", cfg.Brokers, cfg.Topic, cfg.GroupID)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		StartOffset:    kafka.FirstOffset,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        1 * time.Second,
		ReadBackoffMin: 100 * time.Millisecond,
		ReadBackoffMax: 1 * time.Second,
		Dialer: &kafka.Dialer{
			Timeout:   10 * time.Second,
			DualStack: true,
		},
		ErrorLogger:    kafka.LoggerFunc(log.Printf),
		CommitInterval: time.Second,
	})
	return NewAlertStreamWithReader(reader, cfg.MaxAge)
}

// NewAlertStreamWithReader creates a stream over an existing reader. Alerts
// older than maxAge are left out of snapshots; zero keeps them all.
func NewAlertStreamWithReader(reader MessageReader, maxAge time.Duration) *AlertStream {
	return &AlertStream{
		reader: reader,
		maxAge: maxAge,
		now:    time.Now,
		alerts: make(map[string]alerts.Alert),
	}
}

// Run consumes the topic until ctx is cancelled or the reader fails
func (s *AlertStream) Run(ctx context.Context) error {
	defer s.reader.Close()

	for {
		msg, err := s.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to read alert message: %w", err)
		}

		if err := s.Apply(msg); err != nil {
			log.Printf("AlertStream: skipping message at offset %d: %v", msg.Offset, err)
		}
	}
}

// Apply folds one message into the snapshot. The message key stands in for
// a missing alert id.
func (s *AlertStream) Apply(msg kafka.Message) error {
	var event AlertEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to decode alert event: %w", err)
	}

	id := event.Alert.ID
	if id == "" {
		id = string(msg.Key)
		event.Alert.ID = id
	}
	if id == "" {
		return errors.New("alert event has no id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch event.Action {
	case ActionResolve:
		delete(s.alerts, id)
	case ActionUpsert, "":
		if event.Alert.Timestamp.IsZero() {
			event.Alert.Timestamp = msg.Time
		}
		if event.Alert.Source == "" {
			event.Alert.Source = "kafka:" + msg.Topic
		}
		if !event.Alert.IsActive {
			delete(s.alerts, id)
			return nil
		}
		s.alerts[id] = event.Alert
	default:
		return fmt.Errorf("unknown alert action %q", event.Action)
	}
	return nil
}

// ActiveAlerts returns the current snapshot, newest first
func (s *AlertStream) ActiveAlerts(_ context.Context) ([]alerts.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	out := make([]alerts.Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		if s.maxAge > 0 && now.Sub(a.Timestamp) > s.maxAge {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
