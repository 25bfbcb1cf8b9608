package domain

import (
	"errors"
	"testing"
)

func TestStatusTerminal(t *testing.T) {
	terminal := []OrderStatus{StatusFilled, StatusRejected, StatusCancelled, StatusFailed}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s.Terminal() = false, want true", s)
		}
		if s.InFlight() {
			t.Errorf("%s.InFlight() = true, want false", s)
		}
	}

	live := []OrderStatus{StatusQueued, StatusSubmitting, StatusSubmitted, StatusPartiallyFilled}
	for _, s := range live {
		if s.Terminal() {
			t.Errorf("%s.Terminal() = true, want false", s)
		}
		if !s.InFlight() {
			t.Errorf("%s.InFlight() = false, want true", s)
		}
	}
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to OrderStatus
		want     bool
	}{
		{StatusQueued, StatusSubmitting, true},
		{StatusQueued, StatusCancelled, true},
		{StatusQueued, StatusSubmitted, false},
		{StatusSubmitting, StatusSubmitted, true},
		{StatusSubmitting, StatusQueued, true}, // retry after transport error
		{StatusSubmitting, StatusRejected, true},
		{StatusSubmitted, StatusFilled, true},
		{StatusSubmitted, StatusPartiallyFilled, true},
		{StatusSubmitted, StatusCancelled, true},
		{StatusPartiallyFilled, StatusFilled, true},
		{StatusFilled, StatusCancelled, false},
		{StatusRejected, StatusQueued, false},
		{StatusCancelled, StatusSubmitting, false},
		{StatusFailed, StatusQueued, false},
	}

	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestIntentReduces(t *testing.T) {
	if IntentOpen.Reduces() || IntentAdd.Reduces() {
		t.Error("open/add should not reduce")
	}
	if !IntentClose.Reduces() || !IntentReduce.Reduces() {
		t.Error("close/reduce should reduce")
	}
}

func TestValidateSymbol(t *testing.T) {
	cases := []struct {
		symbol string
		market MarketType
		ok     bool
	}{
		{"AAPL", MarketUSStock, true},
		{"A", MarketUSStock, true},
		{"GOOGL", MarketUSStock, true},
		{"TOOLONG", MarketUSStock, false},
		{"700.HK", MarketUSStock, false},
		{"", MarketUSStock, false},
		{"0700.HK", MarketHShare, true},
		{"00700", MarketHShare, true},
		{"700", MarketHShare, true},
		{"AAPL", MarketHShare, false},
		{".HK", MarketHShare, false},
		{"AAPL", MarketType("Crypto"), false},
	}

	for _, c := range cases {
		err := ValidateSymbol(c.symbol, c.market)
		if c.ok && err != nil {
			t.Errorf("ValidateSymbol(%q, %s) = %v, want nil", c.symbol, c.market, err)
		}
		if !c.ok {
			if err == nil {
				t.Errorf("ValidateSymbol(%q, %s) = nil, want error", c.symbol, c.market)
			} else if !errors.Is(err, ErrValidation) {
				t.Errorf("ValidateSymbol(%q, %s) error is not ErrValidation: %v", c.symbol, c.market, err)
			}
		}
	}
}

func TestNormalizeSymbol(t *testing.T) {
	cases := []struct {
		symbol                      string
		market                      MarketType
		wantSym, wantExch, wantCurr string
	}{
		{"AAPL", MarketUSStock, "AAPL", "SMART", "USD"},
		{"aapl", MarketUSStock, "AAPL", "SMART", "USD"},
		{"0700.HK", MarketHShare, "700", "SEHK", "HKD"},
		{"00700", MarketHShare, "700", "SEHK", "HKD"},
		{"700", MarketHShare, "700", "SEHK", "HKD"},
		{"0", MarketHShare, "0", "SEHK", "HKD"},
	}

	for _, c := range cases {
		sym, exch, curr := NormalizeSymbol(c.symbol, c.market)
		if sym != c.wantSym || exch != c.wantExch || curr != c.wantCurr {
			t.Errorf("NormalizeSymbol(%q, %s) = (%s, %s, %s), want (%s, %s, %s)",
				c.symbol, c.market, sym, exch, curr, c.wantSym, c.wantExch, c.wantCurr)
		}
	}
}

func TestDisplaySymbol(t *testing.T) {
	if got := DisplaySymbol("700", "SEHK"); got != "0700.HK" {
		t.Errorf("DisplaySymbol(700, SEHK) = %q, want 0700.HK", got)
	}
	if got := DisplaySymbol("AAPL", "SMART"); got != "AAPL" {
		t.Errorf("DisplaySymbol(AAPL, SMART) = %q, want AAPL", got)
	}
}
