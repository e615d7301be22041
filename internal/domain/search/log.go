package search

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Log is one executed keyword query. Append only.
type Log struct {
	ID               uint64            `gorm:"primaryKey;autoIncrement" json:"id"`
	Keyword          string            `gorm:"type:varchar(200);not null;index" json:"keyword"`
	ResultCount      int               `gorm:"not null" json:"resultCount"`
	ClickedProductID *int64            `json:"clickedProductId,omitempty"`
	UserID           *int64            `gorm:"index" json:"userId,omitempty"`
	Filters          datatypes.JSONMap `gorm:"type:jsonb" json:"filters"`
	Engine           string            `gorm:"type:varchar(16)" json:"engine"`
	CreatedAt        time.Time         `gorm:"not null;index" json:"createdAt"`
}

func (Log) TableName() string {
	return "search_logs"
}

// KeywordCount is an aggregated keyword frequency.
type KeywordCount struct {
	Keyword string `json:"keyword"`
	Count   int64  `json:"count"`
}

// PopularKeyword is a ranked keyword over the trailing window.
type PopularKeyword struct {
	Rank    int    `json:"rank"`
	Keyword string `json:"keyword"`
	Count   int64  `json:"count"`
}

// MaxRecentKeywords is the number of live recent keywords kept per user.
const MaxRecentKeywords = 10

// RecentKeyword is a per user recency entry. Retired rows are soft deleted.
type RecentKeyword struct {
	ID             uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID         int64          `gorm:"not null;uniqueIndex:idx_recent_user_keyword,priority:1" json:"userId"`
	Keyword        string         `gorm:"type:varchar(200);not null;uniqueIndex:idx_recent_user_keyword,priority:2" json:"keyword"`
	LastSearchedAt time.Time      `gorm:"not null;index" json:"lastSearchedAt"`
	CreatedAt      time.Time      `json:"-"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

func (RecentKeyword) TableName() string {
	return "recent_keywords"
}

// Preference holds per user search settings.
type Preference struct {
	UserID              int64     `gorm:"primaryKey;autoIncrement:false" json:"userId"`
	RecentSearchEnabled bool      `gorm:"not null" json:"recentSearchEnabled"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

func (Preference) TableName() string {
	return "search_preferences"
}
