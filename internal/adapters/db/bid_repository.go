package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"procurex-bidding-engine/internal/domain/audit"
	"procurex-bidding-engine/internal/domain/auction"
	"procurex-bidding-engine/internal/domain/bid"
	"procurex-bidding-engine/internal/domain/shared"
	"procurex-bidding-engine/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const bidColumns = "id, auction_id, item_id, bidder_id, amount, bid_time"

// bidNaturalKeyConstraint is the uniqueness constraint on
// (auction_id, item_id, bidder_id, bid_time); hitting it means a duplicate
// resubmission of the same logical bid.
const bidNaturalKeyConstraint = "bids_auction_id_item_id_bidder_id_bid_time_key"

// BidRepository implements the bid repository interface
type BidRepository struct {
	conn      *Connection
	retryCap  int
	retryBase time.Duration
}

// NewBidRepository creates a new bid repository. retryCap and retryBase
// bound the internal retries on serialization conflicts.
func NewBidRepository(conn *Connection, retryCap int, retryBase time.Duration) *BidRepository {
	return &BidRepository{conn: conn, retryCap: retryCap, retryBase: retryBase}
}

func scanBid(scanner interface {
	Scan(dest ...interface{}) error
}) (*bid.Bid, error) {
	var b bid.Bid
	err := scanner.Scan(
		&b.ID,
		&b.AuctionID,
		&b.ItemID,
		&b.BidderID,
		&b.Amount,
		&b.BidTime,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Submit runs the whole bid admission sequence under one serializable
// transaction holding the auction row lock: phase re-check, policy checks
// against the current state, insert with a server-assigned monotonic bid
// time, running-minimum cache update, rank computation, and the audit
// append. Serialization conflicts are retried up to the configured cap,
// then surface as ErrConflict.
func (r *BidRepository) Submit(ctx context.Context, newBid *bid.Bid, policy outbound.BidPolicy) (int, error) {
	var rank int

	err := r.conn.ExecuteSerializableTx(ctx, r.retryCap, r.retryBase, func(tx *sql.Tx) error {
		var err error
		rank, err = r.submitTx(ctx, tx, newBid, policy)
		return err
	})
	if err != nil {
		return 0, err
	}

	return rank, nil
}

func (r *BidRepository) submitTx(ctx context.Context, tx *sql.Tx, newBid *bid.Bid, policy outbound.BidPolicy) (int, error) {
	// Lock the auction row. Close takes the same lock, so a racing close and
	// this submission serialize: whichever commits first wins.
	var status auction.Status
	var startTime, endTime time.Time
	var minDecrement decimal.Decimal
	err := tx.QueryRowContext(ctx,
		`SELECT status, start_time, end_time, min_decrement FROM auctions WHERE id = $1 FOR UPDATE`,
		newBid.AuctionID,
	).Scan(&status, &startTime, &endTime, &minDecrement)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, shared.ErrAuctionNotFound
		}
		return 0, fmt.Errorf("failed to lock auction for bid: %w", err)
	}

	a := auction.Auction{Status: status, StartTime: startTime, EndTime: endTime, MinDecrement: minDecrement}
	if !a.IsLiveAt(time.Now()) {
		return 0, shared.ErrAuctionNotLive
	}

	var itemAuctionID uuid.UUID
	err = tx.QueryRowContext(ctx, `SELECT auction_id FROM auction_items WHERE id = $1`, newBid.ItemID).Scan(&itemAuctionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, shared.ErrItemNotFound
		}
		return 0, fmt.Errorf("failed to check item: %w", err)
	}
	if itemAuctionID != newBid.AuctionID {
		return 0, shared.ErrItemNotInAuction
	}

	if err := r.checkPolicyTx(ctx, tx, newBid, policy, minDecrement); err != nil {
		return 0, err
	}

	// Server-assigned bid time, monotonic per item
	bidTime := time.Now()
	var lastBidTime sql.NullTime
	err = tx.QueryRowContext(ctx, `SELECT MAX(bid_time) FROM bids WHERE item_id = $1`, newBid.ItemID).Scan(&lastBidTime)
	if err != nil {
		return 0, fmt.Errorf("failed to read last bid time: %w", err)
	}
	if lastBidTime.Valid && !bidTime.After(lastBidTime.Time) {
		bidTime = lastBidTime.Time.Add(time.Microsecond)
	}
	newBid.BidTime = bidTime

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO bids (id, auction_id, item_id, bidder_id, amount, bid_time) VALUES ($1, $2, $3, $4, $5, $6)`,
		newBid.ID,
		newBid.AuctionID,
		newBid.ItemID,
		newBid.BidderID,
		newBid.Amount,
		newBid.BidTime,
	); err != nil {
		if IsUniqueViolation(err, bidNaturalKeyConstraint) {
			return 0, shared.ErrDuplicateBid
		}
		return 0, fmt.Errorf("failed to insert bid: %w", err)
	}

	// Maintain the running-minimum cache on the item row
	if _, err := tx.ExecContext(ctx,
		`UPDATE auction_items SET current_lowest = LEAST(COALESCE(current_lowest, $2), $2) WHERE id = $1`,
		newBid.ItemID,
		newBid.Amount,
	); err != nil {
		return 0, fmt.Errorf("failed to update running minimum: %w", err)
	}

	// Rank among all bids on the item, same total order the ranking engine
	// uses: amount asc, bid_time asc, bidder id asc
	var better int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM bids
		WHERE item_id = $1
		  AND (amount < $2
		   OR (amount = $2 AND bid_time < $3)
		   OR (amount = $2 AND bid_time = $3 AND bidder_id < $4))
	`, newBid.ItemID, newBid.Amount, newBid.BidTime, newBid.BidderID).Scan(&better)
	if err != nil {
		return 0, fmt.Errorf("failed to compute rank: %w", err)
	}
	rank := better + 1

	if err := insertAuditTx(ctx, tx, audit.New(&newBid.BidderID, audit.ActionBidSubmitted, audit.TargetBid, newBid.ID.String(), map[string]interface{}{
		"auction_id": newBid.AuctionID.String(),
		"item_id":    newBid.ItemID.String(),
		"amount":     newBid.Amount.String(),
		"rank":       rank,
	})); err != nil {
		return 0, err
	}

	return rank, nil
}

// checkPolicyTx applies the configurable admission rules against the state
// visible inside the transaction.
func (r *BidRepository) checkPolicyTx(ctx context.Context, tx *sql.Tx, newBid *bid.Bid, policy outbound.BidPolicy, minDecrement decimal.Decimal) error {
	if policy.RequireImprovement {
		var ownBest decimal.Decimal
		err := tx.QueryRowContext(ctx,
			`SELECT MIN(amount) FROM bids WHERE item_id = $1 AND bidder_id = $2 HAVING MIN(amount) IS NOT NULL`,
			newBid.ItemID, newBid.BidderID,
		).Scan(&ownBest)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("failed to read bidder's best: %w", err)
		}
		if err == nil && newBid.Amount.GreaterThanOrEqual(ownBest) {
			return shared.ErrBidNotImproving
		}
	}

	if minDecrement.IsPositive() {
		var lowest decimal.Decimal
		err := tx.QueryRowContext(ctx,
			`SELECT MIN(amount) FROM bids WHERE item_id = $1 HAVING MIN(amount) IS NOT NULL`,
			newBid.ItemID,
		).Scan(&lowest)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("failed to read current lowest: %w", err)
		}
		if err == nil {
			if newBid.Amount.GreaterThanOrEqual(lowest) {
				return shared.ErrBelowDecrement
			}
			if !lowest.Sub(newBid.Amount).Mod(minDecrement).IsZero() {
				return shared.ErrBelowDecrement
			}
		}
	}

	return nil
}

// GetByItemID retrieves all bids on an item ordered by rank
func (r *BidRepository) GetByItemID(ctx context.Context, itemID uuid.UUID) ([]*bid.Bid, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM bids
		WHERE item_id = $1
		ORDER BY amount ASC, bid_time ASC, bidder_id ASC
	`, bidColumns)

	return r.queryBids(ctx, query, itemID)
}

// GetByAuctionID retrieves all bids for an auction, grouped by item and
// ordered by rank within each item
func (r *BidRepository) GetByAuctionID(ctx context.Context, auctionID uuid.UUID) ([]*bid.Bid, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM bids
		WHERE auction_id = $1
		ORDER BY item_id, amount ASC, bid_time ASC, bidder_id ASC
	`, bidColumns)

	return r.queryBids(ctx, query, auctionID)
}

// GetLowestBid retrieves the current lowest bid on an item
func (r *BidRepository) GetLowestBid(ctx context.Context, itemID uuid.UUID) (*bid.Bid, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM bids
		WHERE item_id = $1
		ORDER BY amount ASC, bid_time ASC, bidder_id ASC
		LIMIT 1
	`, bidColumns)

	b, err := scanBid(r.conn.GetDB().QueryRowContext(ctx, query, itemID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, shared.ErrNoBidsFound
		}
		return nil, fmt.Errorf("failed to get lowest bid: %w", err)
	}

	return b, nil
}

// GetBidderBest retrieves the bidder's own lowest bid on an item
func (r *BidRepository) GetBidderBest(ctx context.Context, itemID, bidderID uuid.UUID) (*bid.Bid, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM bids
		WHERE item_id = $1 AND bidder_id = $2
		ORDER BY amount ASC, bid_time ASC
		LIMIT 1
	`, bidColumns)

	b, err := scanBid(r.conn.GetDB().QueryRowContext(ctx, query, itemID, bidderID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, shared.ErrNoBidsFound
		}
		return nil, fmt.Errorf("failed to get bidder's best bid: %w", err)
	}

	return b, nil
}

func (r *BidRepository) queryBids(ctx context.Context, query string, args ...interface{}) ([]*bid.Bid, error) {
	rows, err := r.conn.GetDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get bids: %w", err)
	}
	defer rows.Close()

	var bids []*bid.Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		bids = append(bids, b)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bids: %w", err)
	}

	return bids, nil
}
