package db

import (
	"procurex-bidding-engine/internal/config"
	"procurex-bidding-engine/internal/ports/outbound"
)

// RepositoryFactory creates and manages all database repositories
type RepositoryFactory struct {
	conn *Connection
	cfg  *config.Config
}

// NewRepositoryFactory creates a new repository factory
func NewRepositoryFactory(conn *Connection, cfg *config.Config) *RepositoryFactory {
	return &RepositoryFactory{conn: conn, cfg: cfg}
}

// GetAuctionRepository returns the auction repository
func (f *RepositoryFactory) GetAuctionRepository() outbound.AuctionRepository {
	return NewAuctionRepository(f.conn)
}

// GetBidRepository returns the bid repository
func (f *RepositoryFactory) GetBidRepository() outbound.BidRepository {
	return NewBidRepository(f.conn, f.cfg.Engine.ConflictRetryCap, f.cfg.Engine.ConflictRetryBase)
}

// GetItemRepository returns the item repository
func (f *RepositoryFactory) GetItemRepository() outbound.ItemRepository {
	return NewItemRepository(f.conn)
}

// GetUserRepository returns the user repository
func (f *RepositoryFactory) GetUserRepository() outbound.UserRepository {
	return NewUserRepository(f.conn)
}

// GetAuditRepository returns the audit trail repository
func (f *RepositoryFactory) GetAuditRepository() outbound.AuditRepository {
	return NewAuditRepository(f.conn)
}

// GetSummaryRepository returns the reporting projections repository
func (f *RepositoryFactory) GetSummaryRepository() outbound.SummaryRepository {
	return NewSummaryRepository(f.conn)
}
