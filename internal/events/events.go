// Package events defines the domain events written to the transactional
// outbox and relayed to Kafka. The notifier that mails visitors consumes them.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	RegistrationCreated Type = "registration.created"
	PaymentPaid         Type = "payment.paid"
	CheckInRecorded     Type = "checkin.recorded"
)

// Event is one outbox row. AggregateID is the visit code, which is also the
// Kafka record key so events of one registration stay ordered.
type Event struct {
	ID          uuid.UUID
	Type        Type
	AggregateID string
	Payload     json.RawMessage
	CreatedAt   time.Time
	PublishedAt *time.Time
}

func New(eventType Type, code string, payload any, at time.Time) (Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{
		ID:          uuid.New(),
		Type:        eventType,
		AggregateID: code,
		Payload:     body,
		CreatedAt:   at,
	}, nil
}

type RegistrationCreatedPayload struct {
	Code          string    `json:"code"`
	OwnerID       string    `json:"owner_id"`
	GroupSize     int       `json:"group_size"`
	TotalFee      string    `json:"total_fee"`
	PaymentMethod string    `json:"payment_method"`
	PaymentStatus string    `json:"payment_status"`
	CreatedAt     time.Time `json:"created_at"`
}

type PaymentPaidPayload struct {
	Code        string    `json:"code"`
	Source      string    `json:"source"`
	CheckoutRef string    `json:"checkout_ref,omitempty"`
	Amount      string    `json:"amount"`
	PaidAt      time.Time `json:"paid_at"`
}

type CheckInRecordedPayload struct {
	Code      string    `json:"code"`
	StaffID   string    `json:"staff_id"`
	VisitDate string    `json:"visit_date"`
	WalkIn    bool      `json:"walk_in"`
	At        time.Time `json:"at"`
}
