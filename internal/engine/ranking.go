package engine

import "sort"

// RankedPlayer is a PlayerView with its computed 1-based rank attached.
type RankedPlayer struct {
	PlayerView
	Rank int
}

// Rank is a pure function over the ranking rule in spec.md §4.1: higher
// position first; ties broken by earlier non-null finishTime; a non-null
// finishTime beats a null one; otherwise input order is preserved
// (stable sort). Callers are responsible for restricting the input to
// connected, non-spectator players — Rank itself has no opinion on that.
func Rank(players []PlayerView) []RankedPlayer {
	cp := append([]PlayerView(nil), players...)
	sort.SliceStable(cp, func(i, j int) bool {
		if cp[i].Position != cp[j].Position {
			return cp[i].Position > cp[j].Position
		}
		fi, fj := cp[i].FinishTime, cp[j].FinishTime
		switch {
		case fi != nil && fj != nil:
			return *fi < *fj
		case fi != nil && fj == nil:
			return true
		case fi == nil && fj != nil:
			return false
		default:
			return false
		}
	})

	out := make([]RankedPlayer, len(cp))
	for i, p := range cp {
		out[i] = RankedPlayer{PlayerView: p, Rank: i + 1}
	}
	return out
}
