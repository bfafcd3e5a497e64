package strategies

import (
	"testing"

	"github.com/rustyeddy/perps/indicators"
	"github.com/stretchr/testify/assert"
)

func risingMAFrame() *indicators.Frame {
	f := flatFrame(30, 1)
	tail(f.SMAShort, 2, 4)
	tail(f.SMAMid, 1.5, 2)
	return f
}

func fallingMAFrame() *indicators.Frame {
	f := flatFrame(30, 1)
	tail(f.SMAShort, 0.5, 0.2)
	tail(f.SMAMid, 0.8, 0.6)
	return f
}

func TestClassify(t *testing.T) {
	t.Parallel()

	strong := func(f *indicators.Frame) *indicators.Frame {
		tail(f.ADX, 30)
		return f
	}
	risingMACD := func(f *indicators.Frame) *indicators.Frame {
		// rate = |3 - 2.5| / 2.5 * 100 = 20
		tail(f.MACD, 1, 2, 3)
		tail(f.MACDSignal, 2.5)
		return f
	}
	weakMACD := func(f *indicators.Frame) *indicators.Frame {
		// rate = |3 - 2.9| / 2.9 * 100 < 10
		tail(f.MACD, 1, 2, 3)
		tail(f.MACDSignal, 2.9)
		return f
	}

	tests := []struct {
		name  string
		frame *indicators.Frame
		want  Regime
	}{
		{"nil frame", nil, Undetermined},
		{"too short", flatFrame(2, 1), Undetermined},
		{"flat", flatFrame(30, 1), SidewaysOrWeak},
		{"rising averages with strong adx", strong(risingMAFrame()), StrongTrendUp},
		{"rising averages", risingMAFrame(), Rising},
		{"falling averages with strong adx", strong(fallingMAFrame()), StrongTrendDown},
		{"falling averages", fallingMAFrame(), Falling},
		{"rising macd alone", risingMACD(flatFrame(30, 1)), Rising},
		{"macd divergence too small", weakMACD(flatFrame(30, 1)), SidewaysOrWeak},
		{"up wins a disagreement", risingMACD(fallingMAFrame()), Rising},
		{"up wins a strong disagreement", strong(risingMACD(fallingMAFrame())), StrongTrendUp},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Classify(tt.frame))
		})
	}
}

func TestClassifyDeterministic(t *testing.T) {
	t.Parallel()

	f := withStrongADX(risingMAFrame())
	first := Classify(f)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Classify(f))
	}
}

func withStrongADX(f *indicators.Frame) *indicators.Frame {
	tail(f.ADX, 40)
	return f
}

func TestMACDSignalRateZeroSignal(t *testing.T) {
	t.Parallel()

	f := flatFrame(5, 1)
	tail(f.MACD, 3)
	assert.Zero(t, macdSignalRate(f))

	tail(f.MACDSignal, -2)
	// |3 - (-2)| / |-2| * 100
	assert.InDelta(t, 250.0, macdSignalRate(f), 1e-9)
}
