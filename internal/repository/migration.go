package repository

import (
	"fmt"

	"catalog-search/internal/domain/outbox"
	"catalog-search/internal/domain/search"

	"gorm.io/gorm"
)

// OwnedModels lists the tables this service owns. Catalog tables belong to
// the primary store and are never migrated here.
func OwnedModels() []interface{} {
	return []interface{}{
		&outbox.Entry{},
		&search.Log{},
		&search.RecentKeyword{},
		&search.Preference{},
		&search.WeightSetting{},
	}
}

// InitSchema migrates the owned tables.
func InitSchema(db *gorm.DB) error {
	if err := db.AutoMigrate(OwnedModels()...); err != nil {
		return fmt.Errorf("failed to auto-migrate: %w", err)
	}
	return nil
}

// SchemaStatus reports whether each owned table exists.
func SchemaStatus(db *gorm.DB) (map[string]bool, error) {
	out := map[string]bool{}
	for _, m := range OwnedModels() {
		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(m); err != nil {
			return nil, err
		}
		out[stmt.Schema.Table] = db.Migrator().HasTable(m)
	}
	return out, nil
}
