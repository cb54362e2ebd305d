// Package queue defines the audit events published to the message broker and
// the publisher and consumer that move them.
package queue

import "time"

// QueueName is the durable queue every audit event is routed to.
const QueueName = "auth.events"

// EventType names what happened.
type EventType string

const (
	EventUserRegistered EventType = "user.registered"
	EventUserLoggedIn   EventType = "user.logged_in"
	EventTokenRotated   EventType = "token.rotated"
	EventUserLoggedOut  EventType = "user.logged_out"
	EventAbuseBlocked   EventType = "abuse.blocked"
)

// AuthEvent is one audit record.  It carries enough information for
// downstream consumers to log or alert without querying the primary database.
type AuthEvent struct {
	Type       EventType `json:"type"`
	UserID     uint64    `json:"user_id,omitempty"`
	Role       string    `json:"role,omitempty"`
	IP         string    `json:"ip,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
