package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Odds цены исходов. Draw заполнена только для трёхисходного рынка.
type Odds struct {
	Home    float64 `json:"home"`
	Draw    float64 `json:"draw,omitempty"`
	Away    float64 `json:"away"`
	HasDraw bool    `json:"has_draw"`
}

// Match нормализованный матч фида.
type Match struct {
	ID          string    `json:"id"`
	HomeTeam    string    `json:"home_team"`
	AwayTeam    string    `json:"away_team"`
	Competition string    `json:"competition"`
	Kickoff     time.Time `json:"kickoff"`
	Odds        Odds      `json:"odds"`
	Notified    bool      `json:"notified"`
	URL         string    `json:"url,omitempty"`
}

// HasTwoWayPrice сообщает, что у матча есть обе цены исходов.
func (m Match) HasTwoWayPrice() bool {
	return m.Odds.Home > 0 && m.Odds.Away > 0
}

// Snapshot последний успешно полученный срез фида.
type Snapshot struct {
	Matches   []Match   `json:"matches"`
	FetchedAt time.Time `json:"fetched_at"`
}

// TargetRule точное совпадение пары округлённых цен.
// Цена хозяев округляется до HomePlaces знаков, гостей до AwayPlaces.
type TargetRule struct {
	Home       decimal.Decimal
	HomePlaces int32
	Away       decimal.Decimal
	AwayPlaces int32
}

// DefaultTargetRules возвращает целевые пары по умолчанию.
func DefaultTargetRules() []TargetRule {
	return []TargetRule{
		{Home: decimal.RequireFromString("4.25"), HomePlaces: 2, Away: decimal.RequireFromString("1.225"), AwayPlaces: 3},
		{Home: decimal.RequireFromString("4.22"), HomePlaces: 2, Away: decimal.RequireFromString("1.225"), AwayPlaces: 3},
	}
}
