package types

import (
	"time"

	"github.com/google/uuid"
)

// Event kinds published to the registry event bus.
const (
	EventAccountApproved = "account.approved"
	EventAccountRejected = "account.rejected"
	EventProofSubmitted  = "proof.submitted"
	EventCreditRetired   = "credit.retired"
)

// Event is the envelope for registry lifecycle notifications.
type Event struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	OccurredAt time.Time `json:"occurred_at"`

	// AccountID is set for account lifecycle events.
	AccountID int `json:"account_id,omitempty"`

	// Wallet is the wallet address involved, if any.
	Wallet string `json:"wallet,omitempty"`

	// Role is the granted role for approval events.
	Role Role `json:"role,omitempty"`

	// TxHash is the on-chain transaction hash for events backed by a
	// mined transaction.
	TxHash string `json:"tx_hash,omitempty"`
}

// NewEvent constructs an event envelope with a fresh id and timestamp.
func NewEvent(kind string) Event {
	return Event{
		ID:         uuid.NewString(),
		Kind:       kind,
		OccurredAt: time.Now().UTC(),
	}
}
