package idgen

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestULIDGenerator_MonotonicWithinMillisecond(t *testing.T) {
	g := NewULIDGenerator()
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return fixed }

	ids := make([]string, 0, 100)
	for i := 0; i < 100; i++ {
		id, err := g.Generate()
		require.NoError(t, err)
		ids = append(ids, id)
	}

	assert.True(t, sort.StringsAreSorted(ids))

	ts, err := Time(ids[0])
	require.NoError(t, err)
	assert.True(t, ts.Equal(fixed))
}

func TestULIDGenerator_Validate(t *testing.T) {
	g := NewULIDGenerator()
	id, err := g.Generate()
	require.NoError(t, err)

	tests := []struct {
		name  string
		id    string
		valid bool
	}{
		{"generated", id, true},
		{"too short", "01ARZ3NDEK", false},
		{"bad alphabet", "01ARZ3NDEKTSV4RRFFQ69G5FAU", false},
		{"uuid", "6f1c1e0a-8f0b-4c56-9a0e-1a2b3c4d5e6f", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, _ := g.Validate(tt.id)
			assert.Equal(t, tt.valid, ok)
		})
	}
}
