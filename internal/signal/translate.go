// Package signal translates strategy signal kinds into order sides and
// directional intents. Pure functions, no I/O.
package signal

import (
	"fmt"

	"quantdinger/internal/domain"
)

// Translate maps a signal kind to the broker side and directional intent
// used downstream to clamp against the current position. The switch is
// exhaustive over the supported long-only set; any other kind (including
// short-selling signals) fails with ErrUnsupportedSignal.
func Translate(kind domain.SignalKind) (domain.OrderSide, domain.Intent, error) {
	switch kind {
	case domain.SignalOpenLong:
		return domain.OrderSideBuy, domain.IntentOpen, nil
	case domain.SignalAddLong:
		return domain.OrderSideBuy, domain.IntentAdd, nil
	case domain.SignalCloseLong:
		return domain.OrderSideSell, domain.IntentClose, nil
	case domain.SignalReduceLong:
		return domain.OrderSideSell, domain.IntentReduce, nil
	default:
		return "", "", fmt.Errorf("%w: %q", domain.ErrUnsupportedSignal, kind)
	}
}
