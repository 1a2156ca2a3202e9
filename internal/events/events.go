// Package events carries change notifications from the stores to whoever
// renders them.
package events

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"rollcall/internal/logger"
)

// Message types published by the stores.
const (
	StudentAdded       = "student.added"
	StudentUpdated     = "student.updated"
	StudentRemoved     = "student.removed"
	AttendanceMarked   = "attendance.marked"
	AttendanceCascaded = "attendance.cascaded"
)

// Message is one change notification. Body is a JSON document whose shape
// depends on Type.
type Message struct {
	Type string          `json:"type"`
	Body json.RawMessage `json:"body"`
}

// Bus is the abstraction over different backends.
type Bus interface {
	Publish(ctx context.Context, msg Message) error
	// Subscribe streams every message published after the call returns.
	// The channel is closed once ctx is done.
	Subscribe(ctx context.Context) (<-chan Message, error)
}

// NewMessage encodes payload as the body of a message of the given type.
func NewMessage(typ string, payload any) (Message, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s: %w", typ, err)
	}
	return Message{Type: typ, Body: body}, nil
}

// Emit publishes a change on bus and only logs failures; a lost
// notification never undoes a committed mutation. A nil bus is a no-op.
func Emit(ctx context.Context, bus Bus, typ string, payload any) {
	if bus == nil {
		return
	}
	msg, err := NewMessage(typ, payload)
	if err == nil {
		err = bus.Publish(ctx, msg)
	}
	if err != nil {
		logger.Logger.Warn().Err(err).Str("type", typ).Msg("publish change failed")
	}
}
