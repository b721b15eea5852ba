package calibrate

import (
	"bytes"
	"errors"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thelolagemann/cartreader/internal/board"
	"github.com/thelolagemann/cartreader/internal/config"
	"github.com/thelolagemann/cartreader/pkg/log"
)

func TestFitRate(t *testing.T) {
	for _, tt := range []struct {
		name    string
		samples []Sample
		rate    int
		r2      float64
	}{
		{
			name: "exact",
			samples: []Sample{
				{1000, 14 * time.Millisecond},
				{2000, 28 * time.Millisecond},
				{4000, 56 * time.Millisecond},
			},
			rate: 14000,
			r2:   1,
		},
		{
			name:    "single",
			samples: []Sample{{1 << 20, 1473 * time.Millisecond}},
			rate:    1405,
			r2:      1,
		},
		{
			name: "noisy",
			samples: []Sample{
				{10000, 99 * time.Millisecond},
				{20000, 201 * time.Millisecond},
				{30000, 300 * time.Millisecond},
			},
			rate: 10007,
			r2:   1,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			f, err := FitRate(tt.samples)
			require.NoError(t, err)
			assert.Equal(t, tt.rate, f.Rate)
			assert.InDelta(t, tt.r2, f.R2, 0.01)
		})
	}

	_, err := FitRate(nil)
	assert.ErrorIs(t, err, ErrNoSamples)
	_, err = FitRate([]Sample{{50, time.Millisecond}})
	assert.ErrorIs(t, err, ErrNoSamples, "under 100 bytes there is no slope")
}

func TestEstimate(t *testing.T) {
	// the dispatcher's GB ROM rate
	f := Fit{Rate: 10255}
	assert.Equal(t, 10752*time.Millisecond, f.Estimate(1<<20))
	assert.Zero(t, f.Estimate(99))
}

func TestSizes(t *testing.T) {
	assert.Equal(t, []int{256, 512, 768, 1024}, Sizes(1024, 4))
	assert.Empty(t, Sizes(1024, 0))
}

func TestMeasure(t *testing.T) {
	var clock time.Duration
	now := func() time.Duration { return clock }
	transfer := func(buf []byte) (int, error) {
		clock += time.Duration(len(buf)) * time.Microsecond
		return len(buf), nil
	}

	samples, err := Measure([]int{100, 200}, transfer, now)
	require.NoError(t, err)
	assert.Equal(t, []Sample{{100, 100 * time.Microsecond}, {200, 200 * time.Microsecond}}, samples)

	boom := errors.New("boom")
	samples, err = Measure([]int{100, 200}, func(buf []byte) (int, error) {
		if len(buf) > 100 {
			return 0, boom
		}
		return len(buf), nil
	}, now)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, samples, 1)
}

func TestMeasureSimulated(t *testing.T) {
	b, err := board.Simulate(config.Default(), "gba-sram256k", log.NewNullLogger())
	require.NoError(t, err)
	b.LoadHeader()

	samples, err := Measure(Sizes(64<<10, 4), b.ReadROM, b.Now)
	require.NoError(t, err)
	require.Len(t, samples, 4)
	for i := 1; i < len(samples); i++ {
		assert.Greater(t, samples[i].Elapsed, samples[i-1].Elapsed)
	}

	f, err := FitRate(samples)
	require.NoError(t, err)
	assert.Positive(t, f.Rate)
	assert.Greater(t, f.R2, 0.9)
}

func TestPlot(t *testing.T) {
	var buf bytes.Buffer
	samples := []Sample{{1000, 14 * time.Millisecond}, {2000, 29 * time.Millisecond}}
	require.NoError(t, Plot(&buf, "GBA ROM", samples, Fit{Rate: 14250}))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Positive(t, img.Bounds().Dx())
}
