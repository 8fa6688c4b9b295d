package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventActionCreated     EventType = "ACTION_CREATED"
	EventActionExecuted    EventType = "ACTION_EXECUTED"
	EventActionFailed      EventType = "ACTION_FAILED"
	EventTickCompleted     EventType = "TICK_COMPLETED"
	EventSignalReceived    EventType = "SIGNAL_RECEIVED"
	EventAutomationToggled EventType = "AUTOMATION_TOGGLED"
	EventConfigUpdated     EventType = "CONFIG_UPDATED"
	EventError             EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber // Subscribers to all events
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Subscribers run in their own goroutines so a slow consumer
	// cannot stall the monitor loop.
	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event)
		}
	}

	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishActionCreated publishes an action created event
func (eb *EventBus) PublishActionCreated(id, actionType, symbol, operation, priority string, amount float64) {
	eb.Publish(Event{
		Type: EventActionCreated,
		Data: map[string]interface{}{
			"action_id": id,
			"type":      actionType,
			"symbol":    symbol,
			"operation": operation,
			"priority":  priority,
			"amount":    amount,
		},
	})
}

// PublishActionExecuted publishes an action executed event
func (eb *EventBus) PublishActionExecuted(id, actionType, symbol string, amount float64) {
	eb.Publish(Event{
		Type: EventActionExecuted,
		Data: map[string]interface{}{
			"action_id": id,
			"type":      actionType,
			"symbol":    symbol,
			"amount":    amount,
		},
	})
}

// PublishActionFailed publishes an action failed event
func (eb *EventBus) PublishActionFailed(id, actionType, symbol, reason string) {
	eb.Publish(Event{
		Type: EventActionFailed,
		Data: map[string]interface{}{
			"action_id": id,
			"type":      actionType,
			"symbol":    symbol,
			"reason":    reason,
		},
	})
}

// PublishTickCompleted publishes a monitor tick completed event
func (eb *EventBus) PublishTickCompleted(generated, executed, failed int, duration time.Duration) {
	eb.Publish(Event{
		Type: EventTickCompleted,
		Data: map[string]interface{}{
			"generated":   generated,
			"executed":    executed,
			"failed":      failed,
			"duration_ms": duration.Milliseconds(),
		},
	})
}

// PublishSignalReceived publishes a trading signal received event
func (eb *EventBus) PublishSignalReceived(symbol, direction string, strength float64) {
	eb.Publish(Event{
		Type: EventSignalReceived,
		Data: map[string]interface{}{
			"symbol":    symbol,
			"direction": direction,
			"strength":  strength,
		},
	})
}

// PublishAutomationToggled publishes an automation enable/disable event
func (eb *EventBus) PublishAutomationToggled(enabled bool) {
	eb.Publish(Event{
		Type: EventAutomationToggled,
		Data: map[string]interface{}{
			"enabled": enabled,
		},
	})
}

// PublishConfigUpdated publishes a configuration change event
func (eb *EventBus) PublishConfigUpdated(fields []string) {
	eb.Publish(Event{
		Type: EventConfigUpdated,
		Data: map[string]interface{}{
			"fields": fields,
		},
	})
}

// PublishError publishes an error event
func (eb *EventBus) PublishError(component, message string) {
	eb.Publish(Event{
		Type: EventError,
		Data: map[string]interface{}{
			"component": component,
			"message":   message,
		},
	})
}
