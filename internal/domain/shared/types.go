package shared

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ItemResult is the frozen outcome of a single line item after an auction
// closes: the lowest bid ever offered on the item, or no winner at all.
type ItemResult struct {
	ItemID    uuid.UUID        `json:"item_id"`
	ItemName  string           `json:"item_name"`
	WinnerID  *uuid.UUID       `json:"winner_id,omitempty"`
	BidID     *uuid.UUID       `json:"bid_id,omitempty"`
	LowestBid *decimal.Decimal `json:"lowest_bid,omitempty"`
}

// AuctionCloseResult represents the result of closing an auction
type AuctionCloseResult struct {
	AuctionID uuid.UUID    `json:"auction_id"`
	Status    string       `json:"status"`
	Items     []ItemResult `json:"items"`
}

// AuctionSummary is the read-only reporting projection per auction
type AuctionSummary struct {
	AuctionID    uuid.UUID `json:"auction_id"`
	Title        string    `json:"title"`
	Buyer        string    `json:"buyer"`
	Status       string    `json:"status"`
	TotalItems   int       `json:"total_items"`
	TotalBidders int       `json:"total_bidders"`
}

// ItemLowestBid is one row of the lowest-bid-per-item projection
type ItemLowestBid struct {
	ItemID    uuid.UUID        `json:"item_id"`
	LowestBid *decimal.Decimal `json:"lowest_bid,omitempty"`
}
