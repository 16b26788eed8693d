// Package events fans assignment lifecycle events out to drivers and downstream systems.
package events

import (
	"context"
	"errors"
	"time"

	"milkrun/internal/logger"
	"milkrun/internal/metrics"
)

// Event types.
const (
	TypeDispatchCommitted = "dispatch.committed"
	// assignment.<status> is emitted for every lifecycle step
	TypeAssignmentPrefix = "assignment."
)

// Event is one notification addressed to a driver.
type Event struct {
	Type         string         `json:"type"`
	DriverID     string         `json:"driverId"`
	AssignmentID string         `json:"assignmentId,omitempty"`
	OrderID      string         `json:"orderId,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
	TS           time.Time      `json:"ts"`
}

// Publisher delivers events. Implementations are best effort.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Subscriber streams a driver's events. Cancel releases the subscription and closes the channel.
type Subscriber interface {
	Subscribe(ctx context.Context, driverID string) (<-chan Event, func(), error)
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

type namedSink struct {
	name string
	pub  Publisher
}

// Multi publishes to every sink, logging and counting failures per sink.
type Multi struct {
	sinks []namedSink
	log   logger.Logger
}

func NewMulti(log logger.Logger) *Multi {
	if log == nil {
		log = logger.Nop{}
	}
	return &Multi{log: log}
}

// Add registers pub under name, which labels its error metric.
func (m *Multi) Add(name string, pub Publisher) *Multi {
	if pub != nil {
		m.sinks = append(m.sinks, namedSink{name: name, pub: pub})
	}
	return m
}

func (m *Multi) Len() int { return len(m.sinks) }

// Publish tries every sink and returns the joined errors.
func (m *Multi) Publish(ctx context.Context, evt Event) error {
	if evt.TS.IsZero() {
		evt.TS = time.Now().UTC()
	}
	var errs []error
	for _, s := range m.sinks {
		if err := s.pub.Publish(ctx, evt); err != nil {
			metrics.EventPublishErrors.WithLabelValues(s.name).Inc()
			m.log.Warnf("publish %s to %s failed: %v", evt.Type, s.name, err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
