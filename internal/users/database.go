package users

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

func (d *Database) CreateUser(user *types.User) error {
	return d.db.Create(user).Error
}

// GetUser returns nil, nil when no user has the given id
func (d *Database) GetUser(userID string) (*types.User, error) {
	var user types.User
	if err := d.db.Where("id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (d *Database) ListUsers() ([]types.User, error) {
	users := []types.User{}
	if err := d.db.Order("created_at ASC").Order("id ASC").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// TotalBalance sums every user's balance
func (d *Database) TotalBalance() (int64, error) {
	var total int64
	if err := d.db.Model(&types.User{}).Select("COALESCE(SUM(balance), 0)").Scan(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}
