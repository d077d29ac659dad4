package model

import "time"

// SpotCount is a period-scoped capacity counter row.
type SpotCount struct {
	Period    string `json:"period"`
	Remaining int    `json:"remaining"`
	Total     int    `json:"total"`
}

// DailyPeriod formats t as the daily counter key.
func DailyPeriod(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// MonthlyPeriod formats t as the monthly counter key.
func MonthlyPeriod(t time.Time) string {
	return t.UTC().Format("2006-01")
}
