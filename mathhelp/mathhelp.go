package mathhelp

// Percentage returns part as an integer percentage of total, truncated and clamped to 0-100.
// An unknown (< 1) total yields 0.
func Percentage(part, total int) int {
	if total < 1 || part < 1 {
		return 0
	}
	if part >= total {
		return 100
	}
	return part * 100 / total
}

func BetweenInc(f, p, q float64) bool {
	if p <= q {
		return p <= f && f <= q
	}
	return q <= f && f <= p
}

// Overlaps reports whether the ranges [aMin, aMax] and [bMin, bMax] share at least one value
func Overlaps(aMin, aMax, bMin, bMax float64) bool {
	return BetweenInc(aMin, bMin, bMax) || BetweenInc(bMin, aMin, aMax)
}
