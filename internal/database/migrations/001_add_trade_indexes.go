package migrations

import "gorm.io/gorm"

// AddTradeIndexes creates the lookup indexes for both trade tables.
// Must run after the trade tables have been migrated.
func AddTradeIndexes(db *gorm.DB) error {
	indexes := []string{
		// Status filtering, e.g. open trades awaiting settlement
		`CREATE INDEX IF NOT EXISTS idx_binary_trades_status
		 ON binary_trades(status)`,
		`CREATE INDEX IF NOT EXISTS idx_underlying_trades_status
		 ON underlying_trades(status)`,

		// Party lookups
		`CREATE INDEX IF NOT EXISTS idx_binary_trades_party_a
		 ON binary_trades(party_a_id)`,
		`CREATE INDEX IF NOT EXISTS idx_binary_trades_party_b
		 ON binary_trades(party_b_id)`,
		`CREATE INDEX IF NOT EXISTS idx_underlying_trades_long_party
		 ON underlying_trades(long_party_id)`,
		`CREATE INDEX IF NOT EXISTS idx_underlying_trades_short_party
		 ON underlying_trades(short_party_id)`,

		// Listing order
		`CREATE INDEX IF NOT EXISTS idx_binary_trades_created_at
		 ON binary_trades(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_underlying_trades_created_at
		 ON underlying_trades(created_at)`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}

	return nil
}
