package auction

import (
	"time"

	"procurex-bidding-engine/internal/domain/shared"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the persisted lifecycle state of an auction. It only ever moves
// forward: scheduled -> live -> closed. A scheduled auction may be closed
// directly (administrative cancel before opening).
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusLive      Status = "live"
	StatusClosed    Status = "closed"
)

// Phase is the logical lifecycle state derived from the bidding window and
// the persisted status. It is what drives status, not the other way around.
type Phase string

const (
	PhaseScheduled Phase = "scheduled"
	PhaseLive      Phase = "live"
	PhaseClosed    Phase = "closed"
)

// Auction represents a reverse auction published by a buyer. Suppliers bid
// per line item; the lowest bid per item wins.
type Auction struct {
	ID           uuid.UUID       `json:"id"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	Currency     string          `json:"currency"`
	CreatedBy    *uuid.UUID      `json:"created_by,omitempty"`
	StartTime    time.Time       `json:"start_time"`
	EndTime      time.Time       `json:"end_time"`
	MinDecrement decimal.Decimal `json:"min_decrement"`
	Status       Status          `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// PhaseAt evaluates the logical phase of the auction at the given instant.
// A manual close always wins over the time window; otherwise the window
// alone decides. Pure function, safe to call anywhere.
func (a *Auction) PhaseAt(now time.Time) Phase {
	if a.Status == StatusClosed {
		return PhaseClosed
	}
	if now.Before(a.StartTime) {
		return PhaseScheduled
	}
	if now.Before(a.EndTime) {
		return PhaseLive
	}
	return PhaseClosed
}

// IsLiveAt returns true if bids are admissible at the given instant
func (a *Auction) IsLiveAt(now time.Time) bool {
	return a.PhaseAt(now) == PhaseLive
}

// IsClosed returns true if the auction has been closed
func (a *Auction) IsClosed() bool {
	return a.Status == StatusClosed
}

// CanTransition reports whether moving to the target status is a legal
// forward step. scheduled -> closed is allowed (cancel before opening).
func (a *Auction) CanTransition(to Status) bool {
	switch a.Status {
	case StatusScheduled:
		return to == StatusLive || to == StatusClosed
	case StatusLive:
		return to == StatusClosed
	default:
		return false
	}
}

// Open marks the auction live. Returns ErrIllegalTransition if the stored
// status does not permit it.
func (a *Auction) Open() error {
	if !a.CanTransition(StatusLive) {
		return shared.ErrIllegalTransition
	}
	a.Status = StatusLive
	a.UpdatedAt = time.Now()
	return nil
}

// Close marks the auction closed. Legal from both scheduled and live.
func (a *Auction) Close() error {
	if a.Status == StatusClosed {
		return shared.ErrAuctionAlreadyClosed
	}
	if !a.CanTransition(StatusClosed) {
		return shared.ErrIllegalTransition
	}
	a.Status = StatusClosed
	a.UpdatedAt = time.Now()
	return nil
}

// HasDecrement returns true if the auction enforces a minimum bid decrement
func (a *Auction) HasDecrement() bool {
	return a.MinDecrement.IsPositive()
}
