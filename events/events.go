package events

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTypeNotification   EventType = "notification"
	EventTypeUserRegistered EventType = "user_registered"
	EventTypeEffectResolved EventType = "effect_resolved"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// NotificationEvent is a request to deliver a message to a chat.
type NotificationEvent struct {
	ChatID     string
	Text       string
	MentionIDs []string
	MediaID    string
}

func (e NotificationEvent) Type() EventType {
	return EventTypeNotification
}

// UserRegisteredEvent represents a new user registration
type UserRegisteredEvent struct {
	UserID string
	Name   string
	ClanID string
}

func (e UserRegisteredEvent) Type() EventType {
	return EventTypeUserRegistered
}

// EffectOutcome describes how a scheduled effect ended.
type EffectOutcome string

const (
	OutcomeApplied   EffectOutcome = "applied"
	OutcomeCancelled EffectOutcome = "cancelled"
	OutcomeBlocked   EffectOutcome = "blocked"
	OutcomeReflected EffectOutcome = "reflected"
	OutcomeEvaded    EffectOutcome = "evaded"
	OutcomeImmune    EffectOutcome = "immune"
)

// EffectResolvedEvent represents a scheduled effect reaching its end state
type EffectResolvedEvent struct {
	EffectID    string
	InitiatorID string
	TargetID    string
	ChatID      string
	Outcome     EffectOutcome
}

func (e EffectResolvedEvent) Type() EventType {
	return EventTypeEffectResolved
}

// Handler is a function that handles events
type Handler func(ctx context.Context, event Event)

// Bus manages event subscriptions and dispatching
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)

	log.WithFields(log.Fields{
		"eventType":    eventType,
		"handlerCount": len(b.handlers[eventType]),
	}).Debug("Subscribed handler to event type")
}

// Emit publishes an event to all registered handlers
func (b *Bus) Emit(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.Type()]))
	copy(handlers, b.handlers[event.Type()])
	b.mu.RUnlock()

	// Call handlers asynchronously to avoid blocking
	for _, handler := range handlers {
		go func(h Handler) {
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(log.Fields{
						"eventType": event.Type(),
						"panic":     r,
					}).Error("Event handler panicked")
				}
			}()
			h(ctx, event)
		}(handler)
	}
}

// PendingBus stashes events raised during a state mutation and emits them
// to the underlying bus only after the mutation is persisted.
type PendingBus struct {
	real    *Bus
	pending []Event
}

func NewPendingBus(real *Bus) *PendingBus {
	return &PendingBus{real: real}
}

func (b *PendingBus) Publish(e Event) {
	b.pending = append(b.pending, e)
}

// Flush emits all stashed events, called after a successful save.
func (b *PendingBus) Flush() {
	// Background context: event delivery outlives the operation that
	// raised the events.
	ctx := context.Background()
	for _, ev := range b.pending {
		b.real.Emit(ctx, ev)
	}
	b.pending = nil
}

// Discard drops stashed events, called after a failed save.
func (b *PendingBus) Discard() {
	b.pending = nil
}
