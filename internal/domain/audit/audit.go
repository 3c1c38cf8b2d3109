package audit

import (
	"time"

	"github.com/google/uuid"
)

// Action is the kind of state-affecting event being recorded
type Action string

const (
	ActionAuctionCreated Action = "auction_created"
	ActionItemAdded      Action = "item_added"
	ActionAuctionOpened  Action = "auction_opened"
	ActionAuctionClosed  Action = "auction_closed"
	ActionBidSubmitted   Action = "bid_submitted"
)

// TargetType identifies what kind of record an entry refers to
type TargetType string

const (
	TargetAuction TargetType = "auction"
	TargetItem    TargetType = "item"
	TargetBid     TargetType = "bid"
)

// Entry is one append-only audit record. Entries are write-once: never
// mutated, never deleted. The audit write and the business mutation it
// records are a single atomic unit.
type Entry struct {
	ID         int64                  `json:"id"`
	ActorID    *uuid.UUID             `json:"actor_id,omitempty"`
	Action     Action                 `json:"action"`
	TargetType TargetType             `json:"target_type"`
	TargetID   string                 `json:"target_id"`
	Details    map[string]interface{} `json:"details,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// New builds an entry for the given actor and target
func New(actorID *uuid.UUID, action Action, targetType TargetType, targetID string, details map[string]interface{}) *Entry {
	return &Entry{
		ActorID:    actorID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Details:    details,
	}
}
