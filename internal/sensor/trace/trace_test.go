package trace

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatencyWindow_BoundedGrowth(t *testing.T) {
	window := &LatencyWindow{}
	for i := 0; i < 500; i++ {
		window.AddSample(float64(i))
		require.LessOrEqual(t, window.Count, len(window.Samples))
		require.True(t, window.Index >= 0 && window.Index < len(window.Samples))
	}
	assert.Equal(t, len(window.Samples), window.Count)

	_, _, max := window.GetStats()
	assert.Equal(t, 499.0, max)
}

func TestLatencyWindow_Stats(t *testing.T) {
	tests := []struct {
		name    string
		samples []float64
	}{
		{"uniform", []float64{4, 4, 4, 4}},
		{"increasing", []float64{1, 2, 3, 4, 5}},
		{"spike", []float64{1, 1, 100, 1, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			window := &LatencyWindow{}
			for _, s := range tt.samples {
				window.AddSample(s)
			}
			mean, p95, max := window.GetStats()
			assert.LessOrEqual(t, mean, max)
			assert.LessOrEqual(t, p95, max)
		})
	}

	mean, p95, max := (&LatencyWindow{}).GetStats()
	assert.Zero(t, mean)
	assert.Zero(t, p95)
	assert.Zero(t, max)
}

func TestRecorderSnapshot(t *testing.T) {
	r := NewRecorder()
	clock := time.Unix(0, 0)
	r.now = func() time.Time { return clock }

	end := r.Start("convert")
	clock = clock.Add(4 * time.Millisecond)
	end()

	end = r.Start("convert")
	clock = clock.Add(2 * time.Millisecond)
	end()

	snap := r.Snapshot()
	require.Contains(t, snap, "convert")
	assert.Equal(t, uint64(2), snap["convert"].Calls)
	assert.InDelta(t, 3.0, snap["convert"].MeanMS, 1e-9)
	assert.InDelta(t, 4.0, snap["convert"].MaxMS, 1e-9)
}

func TestNopRecordsNothing(t *testing.T) {
	assert.NotPanics(t, func() { Nop.Start("x")() })
}
