package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"procurex-bidding-engine/internal/domain/audit"
	"procurex-bidding-engine/internal/domain/auction"
	"procurex-bidding-engine/internal/domain/shared"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const auctionColumns = "id, title, description, currency, created_by, start_time, end_time, min_decrement, status, created_at, updated_at"

// AuctionRepository implements the auction repository interface
type AuctionRepository struct {
	conn *Connection
}

// NewAuctionRepository creates a new auction repository
func NewAuctionRepository(conn *Connection) *AuctionRepository {
	return &AuctionRepository{conn: conn}
}

func scanAuction(scanner interface {
	Scan(dest ...interface{}) error
}) (*auction.Auction, error) {
	var a auction.Auction
	var createdBy uuid.NullUUID
	err := scanner.Scan(
		&a.ID,
		&a.Title,
		&a.Description,
		&a.Currency,
		&createdBy,
		&a.StartTime,
		&a.EndTime,
		&a.MinDecrement,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if createdBy.Valid {
		a.CreatedBy = &createdBy.UUID
	}
	return &a, nil
}

// Create persists a new auction together with its auction_created audit
// entry in one transaction.
func (r *AuctionRepository) Create(ctx context.Context, a *auction.Auction, actorID uuid.UUID) error {
	return r.conn.ExecuteTx(ctx, nil, func(tx *sql.Tx) error {
		query := `
			INSERT INTO auctions (id, title, description, currency, created_by, start_time, end_time, min_decrement, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`

		_, err := tx.ExecContext(ctx, query,
			a.ID,
			a.Title,
			a.Description,
			a.Currency,
			a.CreatedBy,
			a.StartTime,
			a.EndTime,
			a.MinDecrement,
			a.Status,
			a.CreatedAt,
			a.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create auction: %w", err)
		}

		return insertAuditTx(ctx, tx, audit.New(&actorID, audit.ActionAuctionCreated, audit.TargetAuction, a.ID.String(), map[string]interface{}{
			"title":      a.Title,
			"currency":   a.Currency,
			"start_time": a.StartTime.Format(time.RFC3339),
			"end_time":   a.EndTime.Format(time.RFC3339),
		}))
	})
}

// GetByID retrieves an auction by ID
func (r *AuctionRepository) GetByID(ctx context.Context, id uuid.UUID) (*auction.Auction, error) {
	query := fmt.Sprintf("SELECT %s FROM auctions WHERE id = $1", auctionColumns)

	a, err := scanAuction(r.conn.GetDB().QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, shared.ErrAuctionNotFound
		}
		return nil, fmt.Errorf("failed to get auction: %w", err)
	}

	return a, nil
}

// List retrieves auctions with an optional status filter
func (r *AuctionRepository) List(ctx context.Context, status *auction.Status, page, pageSize int) ([]*auction.Auction, error) {
	builder := r.conn.Builder().
		Select(auctionColumns).
		From("auctions").
		OrderBy("created_at DESC").
		Limit(uint64(pageSize)).
		Offset(uint64((page - 1) * pageSize))

	if status != nil {
		builder = builder.Where("status = ?", *status)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build auction list query: %w", err)
	}

	rows, err := r.conn.GetDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list auctions: %w", err)
	}
	defer rows.Close()

	var auctions []*auction.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan auction: %w", err)
		}
		auctions = append(auctions, a)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating auctions: %w", err)
	}

	return auctions, nil
}

// ListUnclosedDue retrieves auctions that are not closed and whose window
// calls for a transition at the given instant: scheduled auctions past their
// start time and live auctions past their end time.
func (r *AuctionRepository) ListUnclosedDue(ctx context.Context, now time.Time, limit int) ([]*auction.Auction, error) {
	builder := r.conn.Builder().
		Select(auctionColumns).
		From("auctions").
		Where("status <> ?", auction.StatusClosed).
		Where("(status = ? AND start_time <= ?) OR end_time <= ?", auction.StatusScheduled, now, now).
		OrderBy("end_time ASC").
		Limit(uint64(limit))

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build due-auctions query: %w", err)
	}

	rows, err := r.conn.GetDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list due auctions: %w", err)
	}
	defer rows.Close()

	var auctions []*auction.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan auction: %w", err)
		}
		auctions = append(auctions, a)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating auctions: %w", err)
	}

	return auctions, nil
}

// Open transitions scheduled -> live. The status guard in the WHERE clause
// makes the transition monotonic even when a sweep and an explicit action
// race: whoever loses the race sees zero rows affected.
func (r *AuctionRepository) Open(ctx context.Context, id uuid.UUID) error {
	return r.conn.ExecuteTx(ctx, nil, func(tx *sql.Tx) error {
		query := `
			UPDATE auctions
			SET status = $2, updated_at = $3
			WHERE id = $1 AND status = $4
		`

		result, err := tx.ExecContext(ctx, query, id, auction.StatusLive, time.Now(), auction.StatusScheduled)
		if err != nil {
			return fmt.Errorf("failed to open auction: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return shared.ErrIllegalTransition
		}

		return insertAuditTx(ctx, tx, audit.New(nil, audit.ActionAuctionOpened, audit.TargetAuction, id.String(), nil))
	})
}

// Close transitions an auction to closed, freezes the winning bid on every
// item, and writes the auction_closed audit entry with the winner summary.
// The auction row is locked FOR UPDATE first, so any in-flight bid
// submission on the same auction serializes against the close: a bid whose
// transaction committed first is part of the snapshot, a later one is
// rejected with AuctionNotLive.
func (r *AuctionRepository) Close(ctx context.Context, id uuid.UUID, actorID *uuid.UUID) (*shared.AuctionCloseResult, error) {
	var result *shared.AuctionCloseResult

	err := r.conn.ExecuteTx(ctx, nil, func(tx *sql.Tx) error {
		var status auction.Status
		err := tx.QueryRowContext(ctx, `SELECT status FROM auctions WHERE id = $1 FOR UPDATE`, id).Scan(&status)
		if err != nil {
			if err == sql.ErrNoRows {
				return shared.ErrAuctionNotFound
			}
			return fmt.Errorf("failed to lock auction for close: %w", err)
		}

		if status == auction.StatusClosed {
			return shared.ErrAuctionAlreadyClosed
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE auctions SET status = $2, updated_at = $3 WHERE id = $1`,
			id, auction.StatusClosed, time.Now(),
		); err != nil {
			return fmt.Errorf("failed to close auction: %w", err)
		}

		items, err := freezeWinners(ctx, tx, id)
		if err != nil {
			return err
		}

		result = &shared.AuctionCloseResult{
			AuctionID: id,
			Status:    string(auction.StatusClosed),
			Items:     items,
		}

		summary := make([]map[string]interface{}, 0, len(items))
		for _, item := range items {
			entry := map[string]interface{}{
				"item_id":   item.ItemID.String(),
				"item_name": item.ItemName,
			}
			if item.WinnerID != nil {
				entry["winner_id"] = item.WinnerID.String()
				entry["lowest_bid"] = item.LowestBid.String()
			}
			summary = append(summary, entry)
		}

		return insertAuditTx(ctx, tx, audit.New(actorID, audit.ActionAuctionClosed, audit.TargetAuction, id.String(), map[string]interface{}{
			"winners": summary,
		}))
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// freezeWinners determines the lowest bid per item (amount, then earliest
// bid time, then lowest bidder id) and stamps it on the item rows.
func freezeWinners(ctx context.Context, tx *sql.Tx, auctionID uuid.UUID) ([]shared.ItemResult, error) {
	query := `
		SELECT ai.id, ai.name, b.id, b.bidder_id, b.amount
		FROM auction_items ai
		LEFT JOIN LATERAL (
			SELECT id, bidder_id, amount
			FROM bids
			WHERE item_id = ai.id
			ORDER BY amount ASC, bid_time ASC, bidder_id ASC
			LIMIT 1
		) b ON true
		WHERE ai.auction_id = $1
		ORDER BY ai.created_at ASC
	`

	rows, err := tx.QueryContext(ctx, query, auctionID)
	if err != nil {
		return nil, fmt.Errorf("failed to compute winner snapshot: %w", err)
	}
	defer rows.Close()

	var items []shared.ItemResult
	for rows.Next() {
		var item shared.ItemResult
		var bidID, winnerID uuid.NullUUID
		var amount decimal.NullDecimal
		if err := rows.Scan(&item.ItemID, &item.ItemName, &bidID, &winnerID, &amount); err != nil {
			return nil, fmt.Errorf("failed to scan winner row: %w", err)
		}
		if bidID.Valid {
			item.BidID = &bidID.UUID
		}
		if winnerID.Valid {
			item.WinnerID = &winnerID.UUID
		}
		if amount.Valid {
			item.LowestBid = &amount.Decimal
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating winner rows: %w", err)
	}

	for _, item := range items {
		if item.BidID == nil {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE auction_items SET winning_bid_id = $2 WHERE id = $1`,
			item.ItemID, item.BidID,
		); err != nil {
			return nil, fmt.Errorf("failed to freeze winner for item %s: %w", item.ItemID, err)
		}
	}

	return items, nil
}

// Delete removes an auction; items and bids go with it by cascade
func (r *AuctionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.conn.GetDB().ExecContext(ctx, `DELETE FROM auctions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete auction: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return shared.ErrAuctionNotFound
	}

	return nil
}
