package domain

import (
	"time"

	apperrors "github.com/heraldhq/herald/pkg/errors"
)

// DeliveryStatus is the per-channel transmission lifecycle.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryRead      DeliveryStatus = "read"
	DeliveryFailed    DeliveryStatus = "failed"
	DeliveryBounced   DeliveryStatus = "bounced"
	DeliveryArchived  DeliveryStatus = "archived"
)

// IsValidDeliveryStatus checks whether the given string is a valid delivery status.
func IsValidDeliveryStatus(s string) bool {
	switch DeliveryStatus(s) {
	case DeliveryPending, DeliverySent, DeliveryDelivered, DeliveryRead,
		DeliveryFailed, DeliveryBounced, DeliveryArchived:
		return true
	}
	return false
}

// deliveryTransitions is the explicit transition table for the delivery state
// machine. failed/bounced back to pending is the retry path (manual or
// scheduled); read back to pending is the user-initiated unread reversal.
// Archived has no outgoing transitions.
var deliveryTransitions = map[DeliveryStatus][]DeliveryStatus{
	DeliveryPending:   {DeliverySent, DeliveryDelivered, DeliveryFailed, DeliveryBounced, DeliveryArchived},
	DeliverySent:      {DeliveryDelivered, DeliveryRead, DeliveryArchived},
	DeliveryDelivered: {DeliveryRead, DeliveryArchived},
	DeliveryRead:      {DeliveryPending, DeliveryArchived},
	DeliveryFailed:    {DeliveryPending, DeliveryBounced},
	DeliveryBounced:   {DeliveryPending},
	DeliveryArchived:  {},
}

// CanTransition reports whether the delivery state machine permits moving
// from one status to another.
func CanTransition(from, to DeliveryStatus) bool {
	for _, next := range deliveryTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Delivery is one attempted (and possibly retried) transmission of a
// notification over one channel. The record itself is the audit trail: every
// transition updates LastAttemptAt, DeliveredAt, or ErrorMessage in place.
type Delivery struct {
	ID               string         `json:"id"`
	TenantID         string         `json:"tenant_id"`
	NotificationID   string         `json:"notification_id"`
	Channel          Channel        `json:"channel"`
	RecipientAddress string         `json:"recipient_address"`
	Status           DeliveryStatus `json:"status"`
	Attempts         int            `json:"attempts"`
	MaxAttempts      int            `json:"max_attempts"`
	ErrorMessage     string         `json:"error_message,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	LastAttemptAt    *time.Time     `json:"last_attempt_at,omitempty"`
	DeliveredAt      *time.Time     `json:"delivered_at,omitempty"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// TransitionTo moves the delivery to the given status, enforcing the
// transition table and recording the status-specific history fields.
func (d *Delivery) TransitionTo(status DeliveryStatus, now time.Time) error {
	if !CanTransition(d.Status, status) {
		return apperrors.InvalidTransition(string(d.Status), string(status))
	}
	d.Status = status
	d.UpdatedAt = now
	if status == DeliveryDelivered {
		t := now
		d.DeliveredAt = &t
	}
	return nil
}

// RecordAttempt increments the attempt counter at the moment of dispatch and
// stamps LastAttemptAt. Attempts never exceed MaxAttempts.
func (d *Delivery) RecordAttempt(now time.Time) error {
	if d.Attempts >= d.MaxAttempts {
		return apperrors.InvalidInput("delivery has exhausted its attempts")
	}
	d.Attempts++
	t := now
	d.LastAttemptAt = &t
	d.UpdatedAt = now
	return nil
}

// Retriable reports whether a manual retry is allowed: the delivery must be in
// a terminal failure state with attempts remaining.
func (d *Delivery) Retriable() bool {
	return (d.Status == DeliveryFailed || d.Status == DeliveryBounced) && d.Attempts < d.MaxAttempts
}
