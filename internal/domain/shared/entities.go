package shared

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Role determines what a user may do: buyers create auctions, suppliers bid.
// The two capabilities are mutually exclusive.
type Role string

const (
	RoleBuyer    Role = "buyer"
	RoleSupplier Role = "supplier"
)

// User represents a registered platform user
type User struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	CompanyName string    `json:"company_name"`
	Role        Role      `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
}

// IsBuyer returns true if the user can create and manage auctions
func (u *User) IsBuyer() bool {
	return u.Role == RoleBuyer
}

// IsSupplier returns true if the user can submit bids
func (u *User) IsSupplier() bool {
	return u.Role == RoleSupplier
}

// Item represents a single line item inside an auction. Items are created at
// auction setup time and are immutable once bidding opens.
type Item struct {
	ID          uuid.UUID       `json:"id"`
	AuctionID   uuid.UUID       `json:"auction_id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	Unit        string          `json:"unit"`
	BasePrice   decimal.Decimal `json:"base_price"`
	WinningBid  *uuid.UUID      `json:"winning_bid_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}
