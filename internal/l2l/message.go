// SPDX-License-Identifier: MPL-2.0

package l2l

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// responseSuffix is appended to a request's action to name its response.
const responseSuffix = "-response"

var (
	// ErrPeerClosed is returned for operations on a closed peer.
	ErrPeerClosed = errors.New("peer closed")
	// ErrInvalidMessage is the sentinel error wrapped by InvalidMessageError.
	ErrInvalidMessage = errors.New("invalid message")
)

type (
	// Message is one unit on the wire.
	Message struct {
		ID           string          `json:"messageId"`
		Action       string          `json:"action"`
		Target       string          `json:"target,omitempty"`
		Sender       string          `json:"sender,omitempty"`
		InResponseTo string          `json:"inResponseTo,omitempty"`
		Data         json.RawMessage `json:"data,omitempty"`
	}

	// InvalidMessageError is returned when a message lacks a required field.
	InvalidMessageError struct {
		ID     string
		Reason string
	}
)

// NewMessage creates a message with a fresh ID and data encoded as JSON.
func NewMessage(action string, data any) (*Message, error) {
	m := &Message{ID: uuid.NewString(), Action: action}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode %s data: %w", action, err)
		}
		m.Data = raw
	}
	return m, nil
}

// IsResponse reports whether m answers an earlier message.
func (m *Message) IsResponse() bool { return m.InResponseTo != "" }

// Decode unmarshals the data payload into v. An absent payload leaves v
// untouched.
func (m *Message) Decode(v any) error {
	if len(m.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("decode %s data: %w", m.Action, err)
	}
	return nil
}

// Validate checks the fields every message must carry.
func (m *Message) Validate() error {
	switch {
	case m.ID == "":
		return &InvalidMessageError{Reason: "missing messageId"}
	case m.Action == "":
		return &InvalidMessageError{ID: m.ID, Reason: "missing action"}
	default:
		return nil
	}
}

// Error implements the error interface for InvalidMessageError.
func (e *InvalidMessageError) Error() string {
	if e.ID == "" {
		return "invalid message: " + e.Reason
	}
	return fmt.Sprintf("invalid message %s: %s", e.ID, e.Reason)
}

// Unwrap returns ErrInvalidMessage for errors.Is() compatibility.
func (e *InvalidMessageError) Unwrap() error { return ErrInvalidMessage }
