package db

import (
	"gorm.io/gorm"
)

// RunMigrations creates the single table and its secondary indexes
func RunMigrations(db *DB) error {
	if err := db.AutoMigrate(&Record{}); err != nil {
		return err
	}

	if err := createIndexes(db.DB); err != nil {
		return err
	}

	return nil
}

func createIndexes(db *gorm.DB) error {
	indexes := []string{
		// Latest hash per item without reading full event bodies
		`CREATE INDEX IF NOT EXISTS idx_items_pk_sk_hash ON items(pk, sk, hash)`,
	}

	for _, indexSQL := range indexes {
		if err := db.Exec(indexSQL).Error; err != nil {
			return err
		}
	}

	return nil
}
