package models

import (
	"math"
	"testing"
	"time"
)

func TestPushPriceEvictsOldest(t *testing.T) {
	s := &Stock{}
	for i := 0; i < PriceHistoryCap+10; i++ {
		s.PushPrice(float64(i))
	}
	if len(s.PriceHistory) != PriceHistoryCap {
		t.Fatalf("len = %d, want %d", len(s.PriceHistory), PriceHistoryCap)
	}
	if s.PriceHistory[0] != 10 {
		t.Errorf("oldest entry = %v, want 10", s.PriceHistory[0])
	}
	if s.PriceHistory[len(s.PriceHistory)-1] != float64(PriceHistoryCap+9) {
		t.Errorf("newest entry = %v, want %v", s.PriceHistory[len(s.PriceHistory)-1], PriceHistoryCap+9)
	}
}

func TestDailyMomentumNeedsFiveCloses(t *testing.T) {
	s := &Stock{DailyCloseHistory: []float64{1, 2, 3, 4}}
	if got := s.DailyMomentum(); got != 0 {
		t.Errorf("momentum with 4 closes = %v, want 0", got)
	}
}

func TestDailyMomentumDirection(t *testing.T) {
	up := &Stock{DailyCloseHistory: []float64{1, 2, 3, 4, 5}}
	if got := up.DailyMomentum(); got != 1 {
		t.Errorf("strictly rising momentum = %v, want 1", got)
	}
	down := &Stock{DailyCloseHistory: []float64{5, 4, 3, 2, 1}}
	if got := down.DailyMomentum(); got != -1 {
		t.Errorf("strictly falling momentum = %v, want -1", got)
	}
}

func TestDailyMomentumWeighsRecentDaysMore(t *testing.T) {
	// two down days then two up days: the later moves dominate
	s := &Stock{DailyCloseHistory: []float64{5, 4, 3, 4, 5}}
	if got := s.DailyMomentum(); got <= 0 {
		t.Errorf("momentum = %v, want positive (recent up days weighted higher)", got)
	}
}

func TestSMA(t *testing.T) {
	s := &Stock{PriceHistory: []float64{1, 2, 3, 4, 5, 6}}
	if got := s.SMA(5); got != 4 {
		t.Errorf("SMA(5) = %v, want 4", got)
	}
	if got := s.SMA(10); got != 0 {
		t.Errorf("SMA(10) over 6 points = %v, want 0", got)
	}
}

func TestLastDayCloseFallsBackToPrice(t *testing.T) {
	s := &Stock{CurrentPrice: 42}
	if got := s.LastDayClose(); got != 42 {
		t.Errorf("LastDayClose = %v, want 42", got)
	}
	s.PreviousClose = 40
	if got := s.LastDayClose(); got != 40 {
		t.Errorf("LastDayClose = %v, want 40", got)
	}
}

func TestWaveContributionZeroAtBothEnds(t *testing.T) {
	for _, duration := range []int{5, 12, 24} {
		w := MomentumWave{TargetPeak: 1.3, DurationTicks: duration}
		if got := w.Contribution(); math.Abs(got) > 1e-12 {
			t.Errorf("duration %d: contribution at tick 0 = %v, want 0", duration, got)
		}
		w.CurrentTick = duration
		if got := w.Contribution(); math.Abs(got) > 1e-9 {
			t.Errorf("duration %d: contribution at tick==duration = %v, want 0", duration, got)
		}
	}
}

func TestWavePeaksMidway(t *testing.T) {
	w := MomentumWave{TargetPeak: 2, DurationTicks: 10, CurrentTick: 5}
	if got := w.Contribution(); math.Abs(got-2) > 1e-9 {
		t.Errorf("contribution at midpoint = %v, want 2", got)
	}
}

func TestWaveClear(t *testing.T) {
	w := MomentumWave{TargetPeak: 1, DurationTicks: 8, CurrentTick: 3}
	w.Clear()
	if w.Active() {
		t.Error("wave still active after Clear")
	}
	if got := w.Contribution(); got != 0 {
		t.Errorf("cleared contribution = %v, want 0", got)
	}
}

func TestRound2(t *testing.T) {
	tests := []struct{ in, want float64 }{
		{1.239, 1.24},
		{1.231, 1.23},
		{-1.239, -1.24},
		{10.0 / 3.0, 3.33},
		{0, 0},
	}
	for _, tt := range tests {
		if got := Round2(tt.in); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Round2(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestPushCandleBounded(t *testing.T) {
	s := &Stock{}
	base := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < CandleHistoryCap+5; i++ {
		s.PushCandle(Candle{Timestamp: base.Add(time.Duration(i) * 5 * time.Minute)})
	}
	if len(s.Candles) != CandleHistoryCap {
		t.Fatalf("len = %d, want %d", len(s.Candles), CandleHistoryCap)
	}
	if !s.Candles[0].Timestamp.Equal(base.Add(5 * 5 * time.Minute)) {
		t.Errorf("oldest candle = %v, want the sixth pushed", s.Candles[0].Timestamp)
	}
}
