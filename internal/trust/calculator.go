package trust

import "math"

// Sub-score weights for the composite.
const (
	qualityWeight     = 0.35
	reliabilityWeight = 0.30
	safetyWeight      = 0.25
	payoutWeight      = 0.10
)

// Compute derives the full score record from windowed inputs. It is a
// pure function: same inputs, same score.
func Compute(in Inputs) (quality, reliability, safety, payout float64, composite int, level Level) {
	quality = qualityScore(in.Performance)
	reliability = reliabilityScore(in.Booking, in.Performance.Sessions)
	safety = safetyScore(in.Risk, in.Moderation)
	payout = payoutScore(in.Payout)

	composite = int(math.Round(
		quality*qualityWeight +
			reliability*reliabilityWeight +
			safety*safetyWeight +
			payout*payoutWeight))
	level = LevelFor(composite)
	return
}

func qualityScore(p PerformanceStats) float64 {
	return clamp(p.CompletionRate*30 +
		(p.AvgRating/5)*40 +
		(1-p.RefundRate)*20 +
		math.Min(float64(p.Sessions)/100, 1)*10)
}

func reliabilityScore(b BookingStats, sessions int) float64 {
	return clamp(100 -
		b.CancelRate*40 -
		b.NoShowRate*40 +
		math.Min(float64(sessions)/10, 1)*20)
}

func safetyScore(r RiskStats, m ModerationStats) float64 {
	return clamp(100 -
		r.RiskScore/2 -
		math.Min(float64(r.FraudSignals)*5, 30) -
		math.Min(float64(m.Warnings+3*m.Bans)*10, 20))
}

// payoutScore defaults to a perfect score for users who have never
// been paid out, so new sellers are not penalized.
func payoutScore(p PayoutStats) float64 {
	if p.Attempts == 0 {
		return 100
	}
	return clamp(p.SuccessRate*70 + (1-p.DisputeRate)*30)
}

// LevelFor buckets a composite score.
func LevelFor(score int) Level {
	switch {
	case score >= 85:
		return LevelElite
	case score >= 55:
		return LevelHigh
	case score >= 25:
		return LevelMedium
	default:
		return LevelLow
	}
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
