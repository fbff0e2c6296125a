package settlement

import (
	"errors"
	"fmt"
	"time"

	"github.com/ksred/minimarbles/internal/types"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// Transaction runs fn inside a single database transaction, committing only if fn
// returns nil
func (d *Database) Transaction(fn func(tx *Database) error) error {
	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(&Database{db: tx}); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}

func (d *Database) GetBinaryTrade(tradeID string) (*types.BinaryTrade, error) {
	var trade types.BinaryTrade
	if err := d.db.Where("id = ?", tradeID).First(&trade).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTradeNotFound
		}
		return nil, fmt.Errorf("failed to fetch binary trade: %w", err)
	}
	return &trade, nil
}

func (d *Database) GetUnderlyingTrade(tradeID string) (*types.UnderlyingTrade, error) {
	var trade types.UnderlyingTrade
	if err := d.db.Where("id = ?", tradeID).First(&trade).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTradeNotFound
		}
		return nil, fmt.Errorf("failed to fetch underlying trade: %w", err)
	}
	return &trade, nil
}

// GetParty loads a trade counterparty. A trade pointing at a missing user cannot be settled.
func (d *Database) GetParty(userID string) (*types.User, error) {
	var user types.User
	if err := d.db.Where("id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrPartyMissing, userID)
		}
		return nil, fmt.Errorf("failed to fetch party: %w", err)
	}
	return &user, nil
}

// MarkBinarySettled moves an open binary trade to settled. The update is guarded by
// status = open, so a trade settled concurrently yields ErrAlreadySettled.
func (d *Database) MarkBinarySettled(tradeID string, outcome bool, at time.Time) error {
	result := d.db.Model(&types.BinaryTrade{}).
		Where("id = ? AND status = ?", tradeID, types.StatusOpen).
		Updates(map[string]interface{}{
			"outcome":    outcome,
			"status":     types.StatusSettled,
			"settled_at": at,
			"updated_at": at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAlreadySettled
	}
	return nil
}

// MarkUnderlyingSettled moves an open underlying trade to settled, guarded like MarkBinarySettled
func (d *Database) MarkUnderlyingSettled(tradeID string, settlementPrice decimal.Decimal, at time.Time) error {
	result := d.db.Model(&types.UnderlyingTrade{}).
		Where("id = ? AND status = ?", tradeID, types.StatusOpen).
		Updates(map[string]interface{}{
			"settlement_price": settlementPrice,
			"status":           types.StatusSettled,
			"settled_at":       at,
			"updated_at":       at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAlreadySettled
	}
	return nil
}

// AdjustBalance adds delta to a user's balance in place
func (d *Database) AdjustBalance(userID string, delta int64) error {
	result := d.db.Model(&types.User{}).
		Where("id = ?", userID).
		UpdateColumn("balance", gorm.Expr("balance + ?", delta))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected != 1 {
		return fmt.Errorf("%w: %s", ErrPartyMissing, userID)
	}
	return nil
}
