package signal

import (
	"errors"
	"testing"

	"quantdinger/internal/domain"
)

func TestTranslate(t *testing.T) {
	cases := []struct {
		kind   domain.SignalKind
		side   domain.OrderSide
		intent domain.Intent
	}{
		{domain.SignalOpenLong, domain.OrderSideBuy, domain.IntentOpen},
		{domain.SignalAddLong, domain.OrderSideBuy, domain.IntentAdd},
		{domain.SignalCloseLong, domain.OrderSideSell, domain.IntentClose},
		{domain.SignalReduceLong, domain.OrderSideSell, domain.IntentReduce},
	}

	for _, c := range cases {
		side, intent, err := Translate(c.kind)
		if err != nil {
			t.Fatalf("Translate(%s) returned error: %v", c.kind, err)
		}
		if side != c.side || intent != c.intent {
			t.Errorf("Translate(%s) = (%s, %s), want (%s, %s)", c.kind, side, intent, c.side, c.intent)
		}
	}
}

func TestTranslateUnsupported(t *testing.T) {
	for _, kind := range []domain.SignalKind{"open_short", "close_short", "hedge", ""} {
		_, _, err := Translate(kind)
		if err == nil {
			t.Fatalf("Translate(%q) = nil error, want ErrUnsupportedSignal", kind)
		}
		if !errors.Is(err, domain.ErrUnsupportedSignal) {
			t.Errorf("Translate(%q) error = %v, want ErrUnsupportedSignal", kind, err)
		}
	}
}
