package db

import (
	"context"
	"database/sql"
	"fmt"

	"procurex-bidding-engine/internal/domain/shared"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SummaryRepository implements the read-only reporting projections over the
// v_auction_summary and v_lowest_bids_per_item views. No mutation capability.
type SummaryRepository struct {
	conn *Connection
}

// NewSummaryRepository creates a new summary repository
func NewSummaryRepository(conn *Connection) *SummaryRepository {
	return &SummaryRepository{conn: conn}
}

// GetAuctionSummary retrieves item count and distinct bidder count for an
// auction
func (r *SummaryRepository) GetAuctionSummary(ctx context.Context, auctionID uuid.UUID) (*shared.AuctionSummary, error) {
	query, args, err := r.conn.Builder().
		Select("auction_id", "title", "buyer", "status", "total_items", "total_bidders").
		From("v_auction_summary").
		Where("auction_id = ?", auctionID).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build summary query: %w", err)
	}

	var summary shared.AuctionSummary
	err = r.conn.GetDB().QueryRowContext(ctx, query, args...).Scan(
		&summary.AuctionID,
		&summary.Title,
		&summary.Buyer,
		&summary.Status,
		&summary.TotalItems,
		&summary.TotalBidders,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, shared.ErrAuctionNotFound
		}
		return nil, fmt.Errorf("failed to get auction summary: %w", err)
	}

	return &summary, nil
}

// GetLowestBids retrieves the lowest bid per item for an auction
func (r *SummaryRepository) GetLowestBids(ctx context.Context, auctionID uuid.UUID) ([]*shared.ItemLowestBid, error) {
	query, args, err := r.conn.Builder().
		Select("v.item_id", "v.lowest_bid").
		From("v_lowest_bids_per_item v").
		Join("auction_items ai ON ai.id = v.item_id").
		Where("ai.auction_id = ?", auctionID).
		OrderBy("ai.created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build lowest-bids query: %w", err)
	}

	rows, err := r.conn.GetDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get lowest bids: %w", err)
	}
	defer rows.Close()

	var results []*shared.ItemLowestBid
	for rows.Next() {
		var row shared.ItemLowestBid
		var lowest decimal.NullDecimal
		if err := rows.Scan(&row.ItemID, &lowest); err != nil {
			return nil, fmt.Errorf("failed to scan lowest bid: %w", err)
		}
		if lowest.Valid {
			row.LowestBid = &lowest.Decimal
		}
		results = append(results, &row)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lowest bids: %w", err)
	}

	return results, nil
}
