package engine

import "typerace/internal/wire"

// buildSummary computes the ranking and aggregate stats attached to
// game_finished (spec.md §9 Open Question: averages are computed only
// over players who actually finished, so a dropped/never-finishing
// player can't drag down the race's reported average).
func (e *Engine) buildSummary(view View, reason string) wire.Summary {
	nonSpectators := make([]PlayerView, 0, len(view.Players))
	for _, p := range view.Players {
		if !p.IsSpectator {
			nonSpectators = append(nonSpectators, p)
		}
	}
	ranked := Rank(nonSpectators)

	rankings := make([]wire.RankingEntry, len(ranked))
	var wpmSum, accSum float64
	var finishedCount int
	for i, r := range ranked {
		finished := r.FinishTime != nil
		rankings[i] = wire.RankingEntry{
			ID: r.ID, Name: r.Name, Rank: r.Rank,
			WPM: r.WPM, Accuracy: r.Accuracy, Finished: finished,
		}
		if finished {
			wpmSum += r.WPM
			accSum += r.Accuracy
			finishedCount++
		}
	}

	stats := wire.SummaryStats{}
	if finishedCount > 0 {
		stats.AvgWPM = wpmSum / float64(finishedCount)
		stats.AvgAccuracy = accSum / float64(finishedCount)
	}
	if len(nonSpectators) > 0 {
		stats.FinishRate = float64(finishedCount) / float64(len(nonSpectators))
	}

	totalTime := view.EndTime - view.StartTime
	if view.StartTime == 0 {
		totalTime = 0
	}

	_ = reason // not included in the game_finished summary

	return wire.Summary{
		TotalTime:       totalTime,
		Rankings:        rankings,
		Stats:           stats,
		ReplayAvailable: true,
	}
}
