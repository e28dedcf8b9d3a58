package exchange

import "time"

// fxMaxTickerAge is how stale an FX rate may be before the venue is
// considered down, outside the weekend close window.
const fxMaxTickerAge = 30 * time.Minute

// fxMarketsClosed reports whether t falls inside the weekend FX close
// window: Friday 22:00 UTC through Sunday 22:00 UTC.
func fxMarketsClosed(t time.Time) bool {
	u := t.UTC()
	switch u.Weekday() {
	case time.Friday:
		return u.Hour() >= 22
	case time.Saturday:
		return true
	case time.Sunday:
		return u.Hour() < 22
	default:
		return false
	}
}

// fxRateLive reports whether an FX rate timestamped tsMillis (unix ms) is
// fresh enough at now. During the weekend close window stale rates are
// expected and the check passes.
func fxRateLive(tsMillis int64, now time.Time) bool {
	if fxMarketsClosed(now) {
		return true
	}
	age := now.Sub(time.UnixMilli(tsMillis))
	return age <= fxMaxTickerAge && age >= -clockSkewTolerance
}
