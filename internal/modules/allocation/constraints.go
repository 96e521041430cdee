package allocation

import (
	"math"
	"sort"
)

// EnforceMinimum raises every weight below the floor up to it, funding the
// total deficit from positions above the floor proportional to their
// surplus. No donor is pushed below the floor. Returns a new map.
func EnforceMinimum(weights map[string]float64, floor float64) map[string]float64 {
	out := make(map[string]float64, len(weights))
	for symbol, w := range weights {
		out[symbol] = w
	}

	deficit := 0.0
	surplus := 0.0
	for _, w := range out {
		if w < floor {
			deficit += floor - w
		} else {
			surplus += w - floor
		}
	}
	if deficit == 0 || surplus <= 0 {
		if deficit > 0 {
			// Nothing above the floor to fund from; equal-weight is the
			// only allocation that satisfies the floor.
			for symbol := range out {
				out[symbol] = 1.0 / float64(len(out))
			}
		}
		return out
	}

	// Cap the transfer so donors never cross the floor themselves.
	transfer := math.Min(deficit, surplus)
	scale := transfer / surplus
	for symbol, w := range out {
		if w >= floor {
			out[symbol] = w - (w-floor)*scale
		}
	}
	raise := transfer / deficit
	for symbol, w := range weights {
		if w < floor {
			out[symbol] = w + (floor-w)*raise
		}
	}

	return out
}

// EnforceMaximum clips weights above the cap and redistributes the excess
// to positions still below it, proportional to their headroom share. A few
// passes are enough in practice; a remaining overshoot after the last pass
// is clipped and the weights renormalized.
func EnforceMaximum(weights map[string]float64, cap float64) map[string]float64 {
	out := make(map[string]float64, len(weights))
	for symbol, w := range weights {
		out[symbol] = w
	}
	if cap*float64(len(out)) < 1.0 {
		// Infeasible cap; equal weight is the closest admissible point.
		for symbol := range out {
			out[symbol] = 1.0 / float64(len(out))
		}
		return out
	}

	for pass := 0; pass < maxCapPasses; pass++ {
		excess := 0.0
		below := 0.0
		for _, w := range out {
			if w > cap {
				excess += w - cap
			} else {
				below += w
			}
		}
		if excess == 0 {
			return out
		}

		for symbol, w := range out {
			if w > cap {
				out[symbol] = cap
			} else if below > 0 {
				out[symbol] = w + excess*(w/below)
			}
		}
	}

	// Share-proportional redistribution can oscillate near a tight cap.
	// A final pass proportional to headroom (cap - w) cannot overshoot
	// when the cap is feasible, so it settles any remaining excess.
	excess := 0.0
	headroom := 0.0
	for _, w := range out {
		if w > cap {
			excess += w - cap
		} else {
			headroom += cap - w
		}
	}
	if excess > 0 && headroom > 0 {
		for symbol, w := range out {
			if w > cap {
				out[symbol] = cap
			} else {
				out[symbol] = w + excess*(cap-w)/headroom
			}
		}
	}

	return out
}

// Normalize divides by the total and rounds to the weight precision,
// assigning the rounding residual to the largest position so the final
// weights sum to exactly 1.
func Normalize(weights map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(weights))
	total := 0.0
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		return out
	}

	factor := math.Pow(10, WeightPrecision)
	rounded := 0.0
	largest := ""
	largestWeight := math.Inf(-1)

	symbols := make([]string, 0, len(weights))
	for symbol := range weights {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	for _, symbol := range symbols {
		w := math.Round(weights[symbol] / total * factor) / factor
		out[symbol] = w
		rounded += w
		if w > largestWeight {
			largestWeight = w
			largest = symbol
		}
	}

	residual := math.Round((1.0-rounded)*factor) / factor
	if largest != "" && residual != 0 {
		out[largest] = math.Round((out[largest]+residual)*factor) / factor
	}

	return out
}
