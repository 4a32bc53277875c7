package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PlanKind вид тарифа.
type PlanKind string

const (
	// PlanShort недельный тариф.
	PlanShort PlanKind = "week"
	// PlanMedium двухнедельный тариф.
	PlanMedium PlanKind = "two_weeks"
	// PlanLong месячный тариф.
	PlanLong PlanKind = "month"
)

// Plan строка таблицы тарифов.
type Plan struct {
	Kind     PlanKind
	Title    string
	Duration time.Duration
	Price    decimal.Decimal
}

// Plans таблица тарифов, единая для оплаты и админской выдачи.
type Plans map[PlanKind]Plan

// DefaultPlans возвращает тарифы по умолчанию.
func DefaultPlans() Plans {
	day := 24 * time.Hour
	return Plans{
		PlanShort:  {Kind: PlanShort, Title: "1 неделя", Duration: 7 * day, Price: decimal.NewFromInt(650)},
		PlanMedium: {Kind: PlanMedium, Title: "2 недели", Duration: 14 * day, Price: decimal.NewFromInt(1300)},
		PlanLong:   {Kind: PlanLong, Title: "1 месяц", Duration: 31 * day, Price: decimal.NewFromInt(2500)},
	}
}

// Lookup ищет тариф по виду и возвращает ErrInvalidPlan для неизвестного.
func (p Plans) Lookup(kind PlanKind) (Plan, error) {
	plan, ok := p[kind]
	if !ok {
		return Plan{}, fmt.Errorf("%w: %q", ErrInvalidPlan, kind)
	}
	return plan, nil
}

// Title возвращает человекочитаемое название тарифа.
func (p Plans) Title(kind PlanKind) string {
	if plan, ok := p[kind]; ok && plan.Title != "" {
		return plan.Title
	}
	return string(kind)
}
