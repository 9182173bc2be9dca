package round

// DefaultTrustScore is assigned to members with no savings history.
const DefaultTrustScore = 50

// ComputeTrustScore derives a 0-100 reputation from contribution
// history: the on-time completion rate, penalised per missed
// contribution, rewarded per finished round.
func ComputeTrustScore(p Profile) int {
	if p.TotalContributions == 0 && p.CompletedRounds == 0 {
		return DefaultTrustScore
	}
	rate := 0
	if p.TotalContributions > 0 {
		rate = 100 * (p.TotalContributions - p.MissedContributions) / p.TotalContributions
	}
	score := rate - 5*p.MissedContributions + 2*p.CompletedRounds
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
