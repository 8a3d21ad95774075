package page

import (
	"encoding/json"
	"fmt"
)

// EventType names a host-page event.
type EventType string

const (
	EventFocus    EventType = "focus"
	EventBlur     EventType = "blur"
	EventInput    EventType = "input"
	EventScroll   EventType = "scroll"
	EventResize   EventType = "resize"
	EventAction   EventType = "action"
	EventMutation EventType = "mutation"
	// EventReset is sent by the shim of a freshly loaded document. Every
	// node and control id of the previous document is gone.
	EventReset EventType = "reset"
)

// Event is one host-page event.
type Event struct {
	Type  EventType `json:"type"`
	Field NodeID    `json:"field,omitempty"`
	// ToControl is set on blur when focus moved into one of our controls.
	ToControl bool      `json:"to_control,omitempty"`
	Control   ControlID `json:"control,omitempty"`
	Action    string    `json:"action,omitempty"`
	Records   []Record  `json:"records,omitempty"`
}

// Record is one inserted element of a mutation batch.
type Record struct {
	// TargetOwned is set when the mutated parent sits inside an injected
	// node.
	TargetOwned bool `json:"target_owned,omitempty"`
	// HTML is the outer HTML of the inserted element.
	HTML string `json:"html"`
	// Truncated is set when HTML was cut to fit the binding payload.
	Truncated bool `json:"truncated,omitempty"`
}

// ParseEvent decodes a binding payload.
func ParseEvent(payload string) (Event, error) {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return Event{}, fmt.Errorf("page: parse event: %w", err)
	}
	if ev.Type == "" {
		return Event{}, fmt.Errorf("page: parse event: missing type")
	}
	return ev, nil
}
