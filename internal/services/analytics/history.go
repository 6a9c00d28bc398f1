// Package analytics keeps a bounded history of observed prices and
// derives trend figures for the dashboard charts.
package analytics

import (
	"sync"
	"time"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
	"github.com/shopspring/decimal"

	"github.com/zenlend/zenlend/internal/domain"
)

const (
	defaultCapacity = 288
	smaPeriod       = 12
	emaPeriod       = 26
)

// Sample is one retained price observation.
type Sample struct {
	Price      decimal.Decimal `json:"price"`
	ObservedAt time.Time       `json:"observed_at"`
	Stale      bool            `json:"stale"`
}

// Summary is the derived trend picture over the retained history.
type Summary struct {
	Asset       string          `json:"asset"`
	Last        decimal.Decimal `json:"last"`
	SMA         decimal.Decimal `json:"sma"`
	EMA         decimal.Decimal `json:"ema"`
	HasTrend    bool            `json:"has_trend"`
	SampleCount int             `json:"sample_count"`
	StaleCount  int             `json:"stale_count"`
}

// History is a fixed-capacity ring of price samples. Appends come from
// the price feed subscription; reads come from the dashboard.
type History struct {
	mu       sync.RWMutex
	asset    string
	samples  []Sample
	capacity int
}

// NewHistory creates a history retaining up to capacity samples; zero
// selects the default.
func NewHistory(asset string, capacity int) *History {
	if capacity < 1 {
		capacity = defaultCapacity
	}
	return &History{
		asset:    asset,
		samples:  make([]Sample, 0, capacity),
		capacity: capacity,
	}
}

// Append retains one observation, evicting the oldest at capacity.
func (h *History) Append(point domain.PricePoint) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.samples = append(h.samples, Sample{
		Price:      point.Price,
		ObservedAt: point.ObservedAt,
		Stale:      point.Stale,
	})
	if len(h.samples) > h.capacity {
		h.samples = h.samples[1:]
	}
}

// Samples returns a copy of the retained history, oldest first.
func (h *History) Samples() []Sample {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Sample, len(h.samples))
	copy(out, h.samples)
	return out
}

// Summarize computes the trend summary. HasTrend is false until enough
// samples exist for the moving averages.
func (h *History) Summarize() Summary {
	h.mu.RLock()
	samples := make([]Sample, len(h.samples))
	copy(samples, h.samples)
	h.mu.RUnlock()

	summary := Summary{Asset: h.asset, SampleCount: len(samples)}
	if len(samples) == 0 {
		return summary
	}

	closes := make([]float64, 0, len(samples))
	for _, sample := range samples {
		price, _ := sample.Price.Float64()
		closes = append(closes, price)
		if sample.Stale {
			summary.StaleCount++
		}
	}
	summary.Last = samples[len(samples)-1].Price

	if len(closes) < emaPeriod {
		return summary
	}

	sma := lastValue(trend.NewSmaWithPeriod[float64](smaPeriod).Compute(helper.SliceToChan(closes)))
	ema := lastValue(trend.NewEmaWithPeriod[float64](emaPeriod).Compute(helper.SliceToChan(closes)))

	summary.SMA = decimal.NewFromFloat(sma)
	summary.EMA = decimal.NewFromFloat(ema)
	summary.HasTrend = true
	return summary
}

func lastValue(ch <-chan float64) float64 {
	values := helper.ChanToSlice(ch)
	if len(values) == 0 {
		return 0
	}
	return values[len(values)-1]
}
