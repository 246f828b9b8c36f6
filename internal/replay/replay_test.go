package replay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"typerace/internal/clock"
)

func TestAdmitSnapshotRules(t *testing.T) {
	s := New(clock.New())
	s.Create("g1", "hello world", []string{"p1"})

	ok := s.AdmitSnapshot("g1", "p1", ProgressSnapshot{TimestampMs: 1000, Position: 0}, 100)
	assert.True(t, ok, "first snapshot always admitted")

	ok = s.AdmitSnapshot("g1", "p1", ProgressSnapshot{TimestampMs: 1050, Position: 1}, 100)
	assert.False(t, ok, "too soon and too small a move")

	ok = s.AdmitSnapshot("g1", "p1", ProgressSnapshot{TimestampMs: 1101, Position: 1}, 100)
	assert.True(t, ok, "interval elapsed")

	ok = s.AdmitSnapshot("g1", "p1", ProgressSnapshot{TimestampMs: 1102, Position: 8}, 100)
	assert.True(t, ok, "position jumped >= 5")
}

func TestFinalizeOnceThenIgnoresFurtherSnapshots(t *testing.T) {
	s := New(clock.New())
	s.Create("g1", "text", []string{"p1"})
	s.Finalize("g1", "p1", FinalStats{WPM: 80, Accuracy: 99, FinishTime: 5000, Rank: 1})
	s.Finalize("g1", "p1", FinalStats{WPM: 1, Accuracy: 1, FinishTime: 1, Rank: 5})

	ok := s.AdmitSnapshot("g1", "p1", ProgressSnapshot{TimestampMs: 6000, Position: 100}, 100)
	assert.False(t, ok)

	r, err := s.Get("g1")
	require.NoError(t, err)
	require.NotNil(t, r.Players["p1"].Final)
	assert.Equal(t, 80.0, r.Players["p1"].Final.WPM)
}

func TestCompactAllRetainsEveryFifth(t *testing.T) {
	s := New(clock.New())
	s.Create("g1", "text", []string{"p1"})
	for i := 0; i < 23; i++ {
		s.AdmitSnapshot("g1", "p1", ProgressSnapshot{TimestampMs: int64(i * 200), Position: float64(i)}, 1)
	}
	r, err := s.Get("g1")
	require.NoError(t, err)
	require.Len(t, r.Players["p1"].Snapshots, 23)

	s.CompactAll()

	r, err = s.Get("g1")
	require.NoError(t, err)
	assert.Len(t, r.Players["p1"].Snapshots, 5) // ceil(23/5)
	assert.Equal(t, 0.0, r.Players["p1"].Snapshots[0].Position)
	assert.Equal(t, 20.0, r.Players["p1"].Snapshots[4].Position)
}

func TestArmRetentionEvicts(t *testing.T) {
	s := New(clock.New())
	s.Create("g1", "text", nil)
	s.ArmRetention("g1", 10)

	require.Eventually(t, func() bool {
		_, err := s.Get("g1")
		return err == ErrNotFound
	}, time.Second, 5*time.Millisecond)
}
