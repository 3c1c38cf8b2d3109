package shared

import "errors"

// Domain-specific errors
var (
	// Auction errors
	ErrAuctionNotFound      = errors.New("auction not found")
	ErrAuctionNotLive       = errors.New("auction is not live")
	ErrAuctionAlreadyClosed = errors.New("auction already closed")
	ErrIllegalTransition    = errors.New("illegal auction status transition")
	ErrInvalidTimeWindow    = errors.New("end time must be after start time")
	ErrInvalidStartTime     = errors.New("start time cannot be in the past")
	ErrAuctionStarted       = errors.New("auction already started")

	// Bid errors
	ErrInvalidAmount   = errors.New("bid amount must be greater than 0")
	ErrBidNotImproving = errors.New("bid does not improve on the bidder's current best")
	ErrBelowDecrement  = errors.New("bid must undercut the current lowest in multiples of the auction decrement")
	ErrDuplicateBid    = errors.New("duplicate bid submission")
	ErrNoBidsFound     = errors.New("no bids found")

	// Authorization errors
	ErrForbidden = errors.New("user role does not permit this action")
	ErrNotOwner  = errors.New("user does not own this auction")

	// User errors
	ErrUserNotFound = errors.New("user not found")

	// Item errors
	ErrItemNotFound     = errors.New("item not found")
	ErrItemNotInAuction = errors.New("item does not belong to auction")

	// Concurrency errors
	ErrConflict = errors.New("transaction serialization conflict")

	// Audit errors. An un-audited mutation is a correctness violation, so a
	// failed audit write rolls back the business operation that caused it.
	ErrAuditWriteFailed = errors.New("audit log write failed")

	// Validation errors
	ErrInvalidTimeFormat = errors.New("invalid time format")
	ErrInvalidRequest    = errors.New("invalid request")

	// WebSocket errors
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrUserNotSubscribed  = errors.New("user not subscribed to auction")
)
