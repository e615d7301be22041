package search

import (
	"math"
	"time"

	"gorm.io/datatypes"
)

// DefaultWeightSettingName is the key of the singleton weight row.
const DefaultWeightSettingName = "default"

// Weight field names understood by the query builder.
const (
	FieldName        = "name"
	FieldDescription = "description"
	FieldPopularity  = "popularity"
)

// Weights maps a field name to its relevance multiplier.
type Weights map[string]float64

// DefaultWeights is used when the singleton row is created.
func DefaultWeights() Weights {
	return Weights{
		FieldName:        3,
		FieldDescription: 1,
		FieldPopularity:  1,
	}
}

// Of returns the weight of field. A configured map replaces the defaults
// wholesale, so fields it leaves out weigh 0. An empty map means nothing is
// configured and the defaults apply.
func (w Weights) Of(field string) float64 {
	if len(w) == 0 {
		return DefaultWeights()[field]
	}
	return w[field]
}

// Sanitized drops negative and non finite values.
func (w Weights) Sanitized() Weights {
	out := Weights{}
	for k, v := range w {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			continue
		}
		out[k] = v
	}
	return out
}

// WeightSetting is the single live weight configuration row.
type WeightSetting struct {
	ID        uint64                      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string                      `gorm:"type:varchar(50);not null;uniqueIndex" json:"name"`
	Weights   datatypes.JSONType[Weights] `gorm:"type:jsonb;not null" json:"weights"`
	CreatedAt time.Time                   `json:"createdAt"`
	UpdatedAt time.Time                   `json:"updatedAt"`
}

func (WeightSetting) TableName() string {
	return "search_weight_settings"
}
