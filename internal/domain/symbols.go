package domain

import (
	"fmt"
	"strings"
)

// ValidateSymbol checks the symbol format for the given market.
// US stocks are 1-5 letter tickers (AAPL, TSLA). Hong Kong shares are
// 1-5 digit codes, optionally zero-padded or suffixed with .HK
// (700, 00700, 0700.HK).
func ValidateSymbol(symbol string, market MarketType) error {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "" {
		return fmt.Errorf("%w: empty symbol", ErrValidation)
	}

	switch market {
	case MarketUSStock:
		if len(s) > 5 || !isAlpha(s) {
			return fmt.Errorf("%w: invalid US symbol %q", ErrValidation, symbol)
		}
		return nil
	case MarketHShare:
		code := strings.TrimSuffix(s, ".HK")
		if code == "" || len(code) > 5 || !isDigits(code) {
			return fmt.Errorf("%w: invalid HK symbol %q", ErrValidation, symbol)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown market type %q", ErrValidation, market)
	}
}

// NormalizeSymbol converts a system symbol to gateway contract parameters:
// the gateway-side symbol, exchange, and currency.
//
// US stocks route SMART in USD. HK shares drop the .HK suffix and leading
// zeros and route SEHK in HKD (0700.HK -> 700).
func NormalizeSymbol(symbol string, market MarketType) (gwSymbol, exchange, currency string) {
	s := strings.ToUpper(strings.TrimSpace(symbol))

	if market == MarketHShare {
		s = strings.TrimSuffix(s, ".HK")
		s = strings.TrimLeft(s, "0")
		if s == "" {
			s = "0"
		}
		return s, "SEHK", "HKD"
	}

	return s, "SMART", "USD"
}

// DisplaySymbol converts a gateway symbol back to the system's display
// format. SEHK codes are padded to 4 digits with a .HK suffix.
func DisplaySymbol(gwSymbol, exchange string) string {
	if exchange == "SEHK" {
		padded := gwSymbol
		for len(padded) < 4 {
			padded = "0" + padded
		}
		return padded + ".HK"
	}
	return gwSymbol
}

func isAlpha(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
