package ride

import "time"

// FarePolicy carries the operator-tunable pricing knobs. Values come
// from the config provider on every use so operators can retune
// without a restart.
type FarePolicy struct {
	Base        float64
	PerKM       float64
	PerMin      float64
	Min         float64
	Max         float64
	NightMult   float64
	WeekendMult float64
	SurgeMult   float64
	Currency    string

	// Cancellation policy
	FreeCancelWindow time.Duration
	CancellationFee  float64
}

// ComputeFare returns base + distance*perKM + duration*perMin, with
// night/weekend/surge multipliers applied for the given request time,
// clamped to [Min, Max].
func ComputeFare(p FarePolicy, distanceKM float64, durationMin int, at time.Time) float64 {
	if distanceKM < 0 {
		distanceKM = 0
	}
	if durationMin < 0 {
		durationMin = 0
	}

	fare := p.Base + p.PerKM*distanceKM + p.PerMin*float64(durationMin)

	if isNight(at) && p.NightMult > 0 {
		fare *= p.NightMult
	}
	if isWeekend(at) && p.WeekendMult > 0 {
		fare *= p.WeekendMult
	}
	if p.SurgeMult > 1 {
		fare *= p.SurgeMult
	}

	if p.Min > 0 && fare < p.Min {
		fare = p.Min
	}
	if p.Max > 0 && fare > p.Max {
		fare = p.Max
	}
	return fare
}

// CancellationFee returns the fee owed for a passenger cancellation at
// the given moment. Cancels inside the free window, or before a
// captain was engaged, are free.
func CancellationFee(p FarePolicy, requestedAt, cancelledAt time.Time, captainEngaged bool) float64 {
	if !captainEngaged {
		return 0
	}
	if cancelledAt.Sub(requestedAt) <= p.FreeCancelWindow {
		return 0
	}
	return p.CancellationFee
}

// night is 22:00..06:00 local time.
func isNight(t time.Time) bool {
	h := t.Hour()
	return h >= 22 || h < 6
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
