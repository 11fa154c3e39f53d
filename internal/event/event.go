// Package event defines the broker wire contract between the write path and
// push delivery. Treat it as a versioned contract.
package event

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/vietbevis/clothes-shop-chat/internal/model"
)

// Kind tags the message-lifecycle payload carried by an envelope.
type Kind string

const (
	MessageCreated       Kind = "MESSAGE_CREATED"
	MessageUpdated       Kind = "MESSAGE_UPDATED"
	MessageDeleted       Kind = "MESSAGE_DELETED"
	MessageStatusUpdated Kind = "MESSAGE_STATUS_UPDATED"
)

// Envelope wraps one lifecycle payload. EventID is relay-assigned and is the
// consumer-side dedupe key; ConvID is the broker partition (sharding) key.
type Envelope struct {
	EventID int64           `json:"event_id"`
	Kind    Kind            `json:"kind"`
	TS      int64           `json:"ts"` // unix seconds
	ConvID  string          `json:"conv_id"`
	Payload json.RawMessage `json:"payload"`
}

// CreatedPayload and UpdatedPayload carry the fully hydrated message.
type CreatedPayload struct {
	Message model.Message `json:"message"`
}

type UpdatedPayload struct {
	Message model.Message `json:"message"`
}

// DeletedPayload carries ids only: the row is already gone.
type DeletedPayload struct {
	MsgID      int64 `json:"msgId"`
	SenderID   int64 `json:"senderId"`
	ReceiverID int64 `json:"receiverId"`
}

// StatusPayload reports a bulk status change: ReaderID marked Count messages
// from PartnerID as Status.
type StatusPayload struct {
	ReaderID  int64  `json:"readerId"`
	PartnerID int64  `json:"partnerId"`
	Status    string `json:"status"`
	Count     int    `json:"count"`
}

func NewEnvelope(eventID int64, kind Kind, ts int64, convID string, payload any) (*Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{EventID: eventID, Kind: kind, TS: ts, ConvID: convID, Payload: b}, nil
}

// Decode returns the typed payload for the envelope's kind. An unrecognized
// kind is an error the consumer logs and drops, never a fatal condition.
func (e *Envelope) Decode() (any, error) {
	switch e.Kind {
	case MessageCreated:
		var p CreatedPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return nil, err
		}
		return &p, nil
	case MessageUpdated:
		var p UpdatedPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return nil, err
		}
		return &p, nil
	case MessageDeleted:
		var p DeletedPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return nil, err
		}
		return &p, nil
	case MessageStatusUpdated:
		var p StatusPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return nil, err
		}
		return &p, nil
	default:
		return nil, fmt.Errorf("unknown event kind %q", e.Kind)
	}
}

// ConvKey is the unordered-pair partition key; the same pair always lands on
// the same partition, preserving per-conversation order.
func ConvKey(a, b int64) string {
	if a < b {
		return "p2p:" + strconv.FormatInt(a, 10) + ":" + strconv.FormatInt(b, 10)
	}
	return "p2p:" + strconv.FormatInt(b, 10) + ":" + strconv.FormatInt(a, 10)
}

// FallbackConvKey derives a partition key from the relay-assigned event id
// for events without a natural pairing key.
func FallbackConvKey(eventID int64) string {
	return "rnd:" + strconv.FormatInt(eventID, 10)
}
