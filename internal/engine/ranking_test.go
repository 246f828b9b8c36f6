package engine

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ft(ms int64) *int64 { return &ms }

func TestRankOrdersByPositionThenFinishTime(t *testing.T) {
	players := []PlayerView{
		{ID: "a", Position: 50},
		{ID: "b", Position: 100, FinishTime: ft(2000)},
		{ID: "c", Position: 100, FinishTime: ft(1000)},
		{ID: "d", Position: 100},
	}
	ranked := Rank(players)
	require.Len(t, ranked, 4)
	// c finished earliest among the 100% players, b next, d never finished.
	assert.Equal(t, "c", ranked[0].ID)
	assert.Equal(t, 1, ranked[0].Rank)
	assert.Equal(t, "b", ranked[1].ID)
	assert.Equal(t, "d", ranked[2].ID)
	assert.Equal(t, "a", ranked[3].ID)
	assert.Equal(t, 4, ranked[3].Rank)
}

func TestRankIsStableForEqualPlayers(t *testing.T) {
	players := []PlayerView{
		{ID: "x", Position: 30},
		{ID: "y", Position: 30},
		{ID: "z", Position: 30},
	}
	ranked := Rank(players)
	assert.Equal(t, []string{"x", "y", "z"}, []string{ranked[0].ID, ranked[1].ID, ranked[2].ID})
}

// TestRankTotalOrderProperty is a lightweight property check (spec.md §9
// Design Notes: "test it in isolation with property-based generators"):
// across many randomized player sets, ranks must be a contiguous 1..N
// permutation and non-increasing in position.
func TestRankTotalOrderProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 200; trial++ {
		n := rng.Intn(8) + 1
		players := make([]PlayerView, n)
		for i := range players {
			players[i] = PlayerView{
				ID:       string(rune('a' + i)),
				Position: float64(rng.Intn(101)),
			}
			if rng.Intn(2) == 0 {
				ts := int64(rng.Intn(100000))
				players[i].FinishTime = &ts
			}
		}

		ranked := Rank(players)
		require.Len(t, ranked, n)

		seen := make(map[int]bool, n)
		for i, r := range ranked {
			assert.Equal(t, i+1, r.Rank)
			assert.False(t, seen[r.Rank])
			seen[r.Rank] = true
			if i > 0 {
				assert.GreaterOrEqual(t, ranked[i-1].Position, r.Position)
			}
		}
	}
}
