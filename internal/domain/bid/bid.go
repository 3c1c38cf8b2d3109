package bid

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Bid represents a supplier's offer on a single auction item. Bids are
// immutable once accepted; a supplier's follow-up offers are new rows, never
// overwrites. BidTime is server-assigned and monotonic per item.
type Bid struct {
	ID        uuid.UUID       `json:"id"`
	AuctionID uuid.UUID       `json:"auction_id"`
	ItemID    uuid.UUID       `json:"item_id"`
	BidderID  uuid.UUID       `json:"bidder_id"`
	Amount    decimal.Decimal `json:"amount"`
	BidTime   time.Time       `json:"bid_time"`
}

// IsValid returns true if the bid amount is strictly positive
func (b *Bid) IsValid() bool {
	return b.Amount.IsPositive()
}

// Less orders bids for ranking: ascending amount, then earliest bid time,
// then lowest bidder id. The two tie-breaks make the ordering total and
// deterministic.
func (b *Bid) Less(other *Bid) bool {
	if cmp := b.Amount.Cmp(other.Amount); cmp != 0 {
		return cmp < 0
	}
	if !b.BidTime.Equal(other.BidTime) {
		return b.BidTime.Before(other.BidTime)
	}
	return b.BidderID.String() < other.BidderID.String()
}
