package util

import (
	"time"

	"quantdinger/internal/domain"
)

// TradingCalendar provides market-hours awareness for a specific market.
// Sessions are weekday 9:30 to 16:00 in the market's local time; exchange
// holidays are not modelled.
type TradingCalendar struct {
	market domain.MarketType
	loc    *time.Location
}

// NewTradingCalendar creates a TradingCalendar for the given market.
func NewTradingCalendar(market domain.MarketType) *TradingCalendar {
	name := "America/New_York"
	if market == domain.MarketHShare {
		name = "Asia/Hong_Kong"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		loc = time.UTC
	}
	return &TradingCalendar{market: market, loc: loc}
}

// IsMarketOpen reports whether the market's regular session is in
// progress at t.
func (tc *TradingCalendar) IsMarketOpen(t time.Time) bool {
	local := t.In(tc.loc)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	open := time.Date(local.Year(), local.Month(), local.Day(), 9, 30, 0, 0, tc.loc)
	close := time.Date(local.Year(), local.Month(), local.Day(), 16, 0, 0, 0, tc.loc)
	return !local.Before(open) && local.Before(close)
}

// NextOpen returns the start of the next regular session strictly after
// the current session would allow trading to resume.
func (tc *TradingCalendar) NextOpen(t time.Time) time.Time {
	local := t.In(tc.loc)
	for {
		open := time.Date(local.Year(), local.Month(), local.Day(), 9, 30, 0, 0, tc.loc)
		wd := local.Weekday()
		if wd != time.Saturday && wd != time.Sunday && local.Before(open) {
			return open
		}
		local = time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, tc.loc).AddDate(0, 0, 1)
	}
}
