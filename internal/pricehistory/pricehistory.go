// Package pricehistory keeps a bounded, time-indexed price series per
// symbol, sampled from MarketData at roughly 1 Hz. Strategies read
// snapshots of these series; nothing downstream mutates them.
package pricehistory

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const (
	maxSamples   = 10000
	minSampleGap = time.Second
)

// Sample is one (timestamp, price) point.
type Sample struct {
	Time  time.Time
	Price decimal.Decimal
}

type series struct {
	mu      sync.RWMutex
	samples []Sample
}

// Store holds one bounded series per symbol.
type Store struct {
	mu   sync.RWMutex
	byID map[string]*series
}

// NewStore creates an empty price history store.
func NewStore() *Store {
	return &Store{byID: make(map[string]*series)}
}

func (s *Store) seriesFor(symbol string) *series {
	s.mu.Lock()
	defer s.mu.Unlock()
	sr, ok := s.byID[symbol]
	if !ok {
		sr = &series{}
		s.byID[symbol] = sr
	}
	return sr
}

// Update appends (now, price) for symbol if the last stored sample is at
// least one second older than now. Duplicate timestamps resolve by keeping
// the later value. The series is truncated from the front at maxSamples.
func (s *Store) Update(symbol string, now time.Time, price decimal.Decimal) {
	sr := s.seriesFor(symbol)
	sr.mu.Lock()
	defer sr.mu.Unlock()

	n := len(sr.samples)
	if n > 0 {
		last := sr.samples[n-1]
		if last.Time.Equal(now) {
			sr.samples[n-1] = Sample{Time: now, Price: price}
			return
		}
		if now.Sub(last.Time) < minSampleGap {
			return
		}
	}

	sr.samples = append(sr.samples, Sample{Time: now, Price: price})
	if len(sr.samples) > maxSamples {
		overflow := len(sr.samples) - maxSamples
		sr.samples = sr.samples[overflow:]
	}
}

// Last returns the most recent L samples' prices for symbol, oldest first.
// If fewer than L samples exist, it returns everything available.
func (s *Store) Last(symbol string, l int) []decimal.Decimal {
	sr := s.seriesFor(symbol)
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	n := len(sr.samples)
	if n == 0 {
		return nil
	}
	start := 0
	if n > l {
		start = n - l
	}
	out := make([]decimal.Decimal, 0, n-start)
	for _, sm := range sr.samples[start:] {
		out = append(out, sm.Price)
	}
	return out
}

// LastSamples is like Last but keeps the timestamps, used to align two series.
func (s *Store) LastSamples(symbol string, l int) []Sample {
	sr := s.seriesFor(symbol)
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	n := len(sr.samples)
	if n == 0 {
		return nil
	}
	start := 0
	if n > l {
		start = n - l
	}
	out := make([]Sample, len(sr.samples[start:]))
	copy(out, sr.samples[start:])
	return out
}

// Len returns how many samples are stored for symbol.
func (s *Store) Len(symbol string) int {
	sr := s.seriesFor(symbol)
	sr.mu.RLock()
	defer sr.mu.RUnlock()
	return len(sr.samples)
}

// AlignedPairs intersects symbolA and symbolB's samples on timestamp,
// deduplicating repeats per timestamp by mean, and returns up to the last
// L aligned (priceA, priceB) pairs sorted ascending by time.
func AlignedPairs(a, b []Sample, l int) (pricesA, pricesB []decimal.Decimal) {
	am := dedupeByTime(a)
	bm := dedupeByTime(b)

	common := make([]time.Time, 0, len(am))
	for t := range am {
		if _, ok := bm[t]; ok {
			common = append(common, t)
		}
	}
	sortTimes(common)

	if len(common) > l {
		common = common[len(common)-l:]
	}

	pricesA = make([]decimal.Decimal, 0, len(common))
	pricesB = make([]decimal.Decimal, 0, len(common))
	for _, t := range common {
		pricesA = append(pricesA, am[t])
		pricesB = append(pricesB, bm[t])
	}
	return pricesA, pricesB
}

func dedupeByTime(samples []Sample) map[time.Time]decimal.Decimal {
	sums := make(map[time.Time]decimal.Decimal)
	counts := make(map[time.Time]int)
	for _, sm := range samples {
		sums[sm.Time] = sums[sm.Time].Add(sm.Price)
		counts[sm.Time]++
	}
	out := make(map[time.Time]decimal.Decimal, len(sums))
	for t, sum := range sums {
		out[t] = sum.Div(decimal.NewFromInt(int64(counts[t])))
	}
	return out
}

func sortTimes(ts []time.Time) {
	for i := 1; i < len(ts); i++ {
		for j := i; j > 0 && ts[j].Before(ts[j-1]); j-- {
			ts[j], ts[j-1] = ts[j-1], ts[j]
		}
	}
}
