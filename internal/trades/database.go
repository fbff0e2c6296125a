package trades

import (
	"errors"

	"github.com/ksred/minimarbles/internal/types"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateBinaryTrade(trade *types.BinaryTrade) error {
	return d.db.Create(trade).Error
}

func (d *Database) CreateUnderlyingTrade(trade *types.UnderlyingTrade) error {
	return d.db.Create(trade).Error
}

// GetBinaryTrade returns nil, nil when no trade has the given id
func (d *Database) GetBinaryTrade(tradeID string) (*types.BinaryTrade, error) {
	var trade types.BinaryTrade
	if err := d.db.Where("id = ?", tradeID).First(&trade).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &trade, nil
}

// GetUnderlyingTrade returns nil, nil when no trade has the given id
func (d *Database) GetUnderlyingTrade(tradeID string) (*types.UnderlyingTrade, error) {
	var trade types.UnderlyingTrade
	if err := d.db.Where("id = ?", tradeID).First(&trade).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &trade, nil
}

func (d *Database) ListBinaryTrades() ([]types.BinaryTrade, error) {
	var trades []types.BinaryTrade
	if err := d.db.Order("created_at ASC").Order("id ASC").Find(&trades).Error; err != nil {
		return nil, err
	}
	return trades, nil
}

func (d *Database) ListUnderlyingTrades() ([]types.UnderlyingTrade, error) {
	var trades []types.UnderlyingTrade
	if err := d.db.Order("created_at ASC").Order("id ASC").Find(&trades).Error; err != nil {
		return nil, err
	}
	return trades, nil
}

// UserNames resolves user ids to display names. Unknown ids are absent from the map.
func (d *Database) UserNames(userIDs []string) (map[string]string, error) {
	names := make(map[string]string, len(userIDs))
	if len(userIDs) == 0 {
		return names, nil
	}

	var users []types.User
	if err := d.db.Select("id", "name").Where("id IN ?", userIDs).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		names[u.ID] = u.Name
	}
	return names, nil
}
