package score

import (
	"testing"

	"github.com/chilledoj/pongroom/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker(t *testing.T) {
	t.Run("should publish the full pair on every mutation", func(t *testing.T) {
		var got []protocol.ScoreUpdated
		tr := NewTracker(func(p protocol.ScoreUpdated) { got = append(got, p) })

		_, err := tr.AddScore(1, 1)
		require.NoError(t, err)
		_, err = tr.AddScore(0, 2)
		require.NoError(t, err)
		tr.Reset()

		assert.Equal(t, []protocol.ScoreUpdated{
			{Score0: 0, Score1: 1},
			{Score0: 2, Score1: 1},
			{Score0: 0, Score1: 0},
		}, got)
	})
	t.Run("should validate slot and delta", func(t *testing.T) {
		calls := 0
		tr := NewTracker(func(protocol.ScoreUpdated) { calls++ })
		_, err := tr.AddScore(2, 1)
		require.ErrorIs(t, err, ErrInvalidSlot)
		_, err = tr.AddScore(-1, 1)
		require.ErrorIs(t, err, ErrInvalidSlot)
		_, err = tr.AddScore(0, -1)
		require.ErrorIs(t, err, ErrNegativeDelta)
		assert.Zero(t, calls)
		assert.Equal(t, [2]int{}, tr.Scores())
	})
	t.Run("should report the winner at the win score", func(t *testing.T) {
		tr := NewTracker(nil)
		for i := 0; i < WinScore-1; i++ {
			won, err := tr.AddScore(1, 1)
			require.NoError(t, err)
			require.False(t, won)
		}
		_, ok := tr.Winner()
		assert.False(t, ok)

		won, err := tr.AddScore(1, 1)
		require.NoError(t, err)
		assert.True(t, won)
		slot, ok := tr.Winner()
		assert.True(t, ok)
		assert.Equal(t, 1, slot)
	})
}
