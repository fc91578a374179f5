package models

// DashboardStats aggregates the counters shown on a member's dashboard.
type DashboardStats struct {
	SponsorCount      int `json:"sponsor_count"`
	TeamLeft          int `json:"team_left"`
	TeamRight         int `json:"team_right"`
	PendingPlacements int `json:"pending_placements"`
	OrdersTotal       int `json:"orders_total"`
}
