package models

import "time"

// WeeklyStats агрегат за календарную неделю (понедельник-воскресенье).
type WeeklyStats struct {
	WeekStart           time.Time        `json:"week_start"`
	WeekEnd             time.Time        `json:"week_end"`
	WeekNumber          int              `json:"week_number"`
	Year                int              `json:"year"`
	ActiveSubscriptions int              `json:"active_subscriptions"`
	InactiveUsers       int              `json:"inactive_users"`
	NewSubscriptions    int              `json:"new_subscriptions"`
	MostPopularPlan     *PlanKind        `json:"most_popular_plan,omitempty"`
	PlanCounts          map[PlanKind]int `json:"plan_counts"`
}
