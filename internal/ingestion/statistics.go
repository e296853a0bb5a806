package ingestion

import "math"

const (
	// regulationMinutes is the possession time the heuristic assumes per match.
	regulationMinutes = 90.0

	// foulPossessionPenalty is the possession, in minutes, a foul costs the team.
	foulPossessionPenalty = 1.5

	percent = 100.0
)

// Calculate derives the statistics snapshot of a complete event log.
//
// It is pure and total: missing fields count as absent, and an empty log yields
// zero goals, zero fouls and 50% possession. Goals and fouls are counted by exact
// event type match.
//
// Ball possession is the heuristic ((90 - fouls*1.5) / 180) * 100 rounded to two
// decimals. The result is not clamped: more than 60 fouls yields a negative value.
func Calculate(team, opponent string, events []Event) Statistics {
	var goals, fouls int

	for i := range events {
		switch {
		case events[i].Type.IsGoal():
			goals++
		case events[i].Type.IsFoul():
			fouls++
		}
	}

	return Statistics{
		Team:                     team,
		Opponent:                 opponent,
		TotalGoals:               goals,
		TotalFouls:               fouls,
		BallPossessionPercentage: ballPossession(fouls),
	}
}

func ballPossession(fouls int) float64 {
	possession := ((regulationMinutes - float64(fouls)*foulPossessionPenalty) / (regulationMinutes * 2)) * percent

	return math.Round(possession*percent) / percent
}
