package types

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DefaultBalance is the number of minimarbles a new user starts with
const DefaultBalance int64 = 1000

// TradeStatus is the lifecycle state of a trade. The only transition is open -> settled.
type TradeStatus string

const (
	StatusOpen    TradeStatus = "open"
	StatusSettled TradeStatus = "settled"
)

// Trade kinds, used in summaries and metric labels
const (
	KindBinary     = "binary"
	KindUnderlying = "underlying"
)

type User struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	Balance   int64     `gorm:"not null" json:"balance"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return nil
}

// BinaryTrade is a yes/no wager. Party A wins stake B on YES, party B wins stake A on NO.
// PartyA and PartyB only declare the foreign keys and are never loaded.
type BinaryTrade struct {
	ID          string      `gorm:"primaryKey;type:varchar(36)" json:"id"`
	PartyAID    string      `gorm:"type:varchar(36);not null" json:"party_a_id"`
	PartyA      *User       `gorm:"foreignKey:PartyAID;constraint:OnDelete:RESTRICT" json:"-"`
	PartyBID    string      `gorm:"type:varchar(36);not null" json:"party_b_id"`
	PartyB      *User       `gorm:"foreignKey:PartyBID;constraint:OnDelete:RESTRICT" json:"-"`
	StakeA      int64       `gorm:"not null" json:"stake_a"`
	StakeB      int64       `gorm:"not null" json:"stake_b"`
	Description string      `gorm:"type:text" json:"description"`
	Outcome     *bool       `json:"outcome,omitempty"`
	Status      TradeStatus `gorm:"size:16;not null;default:open" json:"status"`
	SettledAt   *time.Time  `json:"settled_at,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

func (t *BinaryTrade) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	return nil
}

// UnderlyingTrade is a linear position: the long party gains lot_size for every unit the
// settlement price ends above the trade price, the short party loses the same amount.
type UnderlyingTrade struct {
	ID              string           `gorm:"primaryKey;type:varchar(36)" json:"id"`
	LongPartyID     string           `gorm:"type:varchar(36);not null" json:"long_party_id"`
	LongParty       *User            `gorm:"foreignKey:LongPartyID;constraint:OnDelete:RESTRICT" json:"-"`
	ShortPartyID    string           `gorm:"type:varchar(36);not null" json:"short_party_id"`
	ShortParty      *User            `gorm:"foreignKey:ShortPartyID;constraint:OnDelete:RESTRICT" json:"-"`
	LotSize         decimal.Decimal  `gorm:"type:text;not null" json:"lot_size"`
	TradePrice      decimal.Decimal  `gorm:"type:text;not null" json:"trade_price"`
	SettlementPrice *decimal.Decimal `gorm:"type:text" json:"settlement_price,omitempty"`
	Description     string           `gorm:"type:text" json:"description"`
	Status          TradeStatus      `gorm:"size:16;not null;default:open" json:"status"`
	SettledAt       *time.Time       `json:"settled_at,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

func (t *UnderlyingTrade) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	return nil
}
