package roll

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStable(t *testing.T) {
	t.Run("is deterministic for the same seed parts", func(t *testing.T) {
		a := Stable("session-1", "turn-1", "student_agent_3", "attention")
		b := Stable("session-1", "turn-1", "student_agent_3", "attention")
		assert.Equal(t, a, b)
	})

	t.Run("differs across purposes", func(t *testing.T) {
		a := Stable("session-1", "turn-1", "student_agent_3", "attention")
		b := Stable("session-1", "turn-1", "student_agent_3", "behavior")
		assert.NotEqual(t, a, b)
	})

	t.Run("stays in the half-open unit interval", func(t *testing.T) {
		seeds := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
		for _, s := range seeds {
			v := Stable(s)
			assert.GreaterOrEqual(t, v, 0.0)
			assert.Less(t, v, 1.0)
		}
	})

	t.Run("joined parts differ from concatenated parts", func(t *testing.T) {
		assert.NotEqual(t, Stable("ab", "c"), Stable("a", "bc"))
	})
}

func TestPick(t *testing.T) {
	assert.Equal(t, 0, Pick(0, "seed"))
	for i := 0; i < 20; i++ {
		v := Pick(5, "seed", string(rune('a'+i)))
		assert.GreaterOrEqual(t, v, 0)
		assert.Less(t, v, 5)
	}
}

func TestWeighted(t *testing.T) {
	t.Run("zero weights fall back to first index", func(t *testing.T) {
		assert.Equal(t, 0, Weighted([]float64{0, 0, 0}, "seed"))
	})

	t.Run("dominant weight wins", func(t *testing.T) {
		// With one weight carrying ~all the mass, every seed lands on it.
		for i := 0; i < 10; i++ {
			idx := Weighted([]float64{0.0001, 1000, 0.0001}, "seed", string(rune('a'+i)))
			assert.Equal(t, 1, idx)
		}
	})

	t.Run("deterministic", func(t *testing.T) {
		w := []float64{1, 2, 3}
		assert.Equal(t, Weighted(w, "x", "y"), Weighted(w, "x", "y"))
	})
}
