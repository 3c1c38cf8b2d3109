package db

import (
	"context"
	"database/sql"
	"fmt"

	"procurex-bidding-engine/internal/domain/audit"
	"procurex-bidding-engine/internal/domain/shared"

	"github.com/google/uuid"
)

const itemColumns = "id, auction_id, name, description, quantity, uom, base_price, winning_bid_id, created_at"

// ItemRepository implements the auction item repository interface
type ItemRepository struct {
	conn *Connection
}

// NewItemRepository creates a new item repository
func NewItemRepository(conn *Connection) *ItemRepository {
	return &ItemRepository{conn: conn}
}

func scanItem(scanner interface {
	Scan(dest ...interface{}) error
}) (*shared.Item, error) {
	var item shared.Item
	var winningBid uuid.NullUUID
	err := scanner.Scan(
		&item.ID,
		&item.AuctionID,
		&item.Name,
		&item.Description,
		&item.Quantity,
		&item.Unit,
		&item.BasePrice,
		&winningBid,
		&item.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if winningBid.Valid {
		item.WinningBid = &winningBid.UUID
	}
	return &item, nil
}

// Create persists a new item together with its item_added audit entry in
// one transaction.
func (r *ItemRepository) Create(ctx context.Context, item *shared.Item, actorID uuid.UUID) error {
	return r.conn.ExecuteTx(ctx, nil, func(tx *sql.Tx) error {
		query := `
			INSERT INTO auction_items (id, auction_id, name, description, quantity, uom, base_price, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`

		_, err := tx.ExecContext(ctx, query,
			item.ID,
			item.AuctionID,
			item.Name,
			item.Description,
			item.Quantity,
			item.Unit,
			item.BasePrice,
			item.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create item: %w", err)
		}

		return insertAuditTx(ctx, tx, audit.New(&actorID, audit.ActionItemAdded, audit.TargetItem, item.ID.String(), map[string]interface{}{
			"auction_id": item.AuctionID.String(),
			"name":       item.Name,
			"base_price": item.BasePrice.String(),
		}))
	})
}

// GetByID retrieves an item by ID
func (r *ItemRepository) GetByID(ctx context.Context, id uuid.UUID) (*shared.Item, error) {
	query := fmt.Sprintf("SELECT %s FROM auction_items WHERE id = $1", itemColumns)

	item, err := scanItem(r.conn.GetDB().QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, shared.ErrItemNotFound
		}
		return nil, fmt.Errorf("failed to get item: %w", err)
	}

	return item, nil
}

// ListByAuctionID retrieves all items of an auction in creation order
func (r *ItemRepository) ListByAuctionID(ctx context.Context, auctionID uuid.UUID) ([]*shared.Item, error) {
	query := fmt.Sprintf("SELECT %s FROM auction_items WHERE auction_id = $1 ORDER BY created_at ASC", itemColumns)

	rows, err := r.conn.GetDB().QueryContext(ctx, query, auctionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []*shared.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating items: %w", err)
	}

	return items, nil
}
