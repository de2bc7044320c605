// Package analytics derives conversion, revenue, and time-to-conversion
// metrics from sample and order snapshots.
//
// Every function here is a pure read-side view: no side effects, identical
// output for identical input regardless of call order or repetition. The
// caller supplies the snapshot; there is no ambient cache.
package analytics

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/samplefront/samplefront/internal/model"
)

// GroupStats is the per-group rollup for grouped metrics variants.
type GroupStats struct {
	Key                 string  `json:"key"`
	TotalSamples        int     `json:"total_samples"`
	Conversions         int     `json:"conversions"`
	ConversionRate      float64 `json:"conversion_rate"`
	AttributedRevenue   int64   `json:"attributed_revenue"`
	AvgRevenuePerSample float64 `json:"avg_revenue_per_sample"`
	AvgDaysToConversion float64 `json:"avg_days_to_conversion"`
}

// Summary is the ungrouped rollup used by dashboard collaborators.
type Summary struct {
	TotalSamples        int     `json:"total_samples"`
	Conversions         int     `json:"conversions"`
	ConversionRate      float64 `json:"conversion_rate"`
	AttributedRevenue   int64   `json:"attributed_revenue"`
	AvgDaysToConversion float64 `json:"avg_days_to_conversion"`
}

// ConversionRate is conversions / total over the sample set. Always in
// [0, 1]; exactly 0 (never NaN) for an empty set.
func ConversionRate(samples []model.SampleUsage) float64 {
	if len(samples) == 0 {
		return 0
	}
	conversions := 0
	for _, s := range samples {
		if s.ResultedInOrder {
			conversions++
		}
	}
	return float64(conversions) / float64(len(samples))
}

// TotalAttributedRevenue sums the linked order's value for every attributed
// sample whose order is present and completed. A missing or non-completed
// linked order contributes zero.
func TotalAttributedRevenue(samples []model.SampleUsage, orders []model.CustomerOrder) int64 {
	byID := orderIndex(orders)
	var total int64
	for _, s := range samples {
		if o, ok := resolvedOrder(s, byID); ok {
			total += o.TotalValue
		}
	}
	return total
}

// AverageTimeToConversion is the mean whole-day gap between DateGiven and
// the linked order's OrderDate over attributed samples with a resolvable
// completed order. Recomputed from dates, never stored. Zero when no
// attributed samples exist.
func AverageTimeToConversion(samples []model.SampleUsage, orders []model.CustomerOrder) float64 {
	byID := orderIndex(orders)
	var totalDays, n int
	for _, s := range samples {
		if o, ok := resolvedOrder(s, byID); ok {
			totalDays += daysBetween(s.DateGiven, o.OrderDate)
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return float64(totalDays) / float64(n)
}

// Summarize computes the ungrouped rollup in one pass.
func Summarize(samples []model.SampleUsage, orders []model.CustomerOrder) Summary {
	return Summary{
		TotalSamples:        len(samples),
		Conversions:         countConversions(samples),
		ConversionRate:      ConversionRate(samples),
		AttributedRevenue:   TotalAttributedRevenue(samples, orders),
		AvgDaysToConversion: AverageTimeToConversion(samples, orders),
	}
}

// ByProduct applies the conversion and revenue formulas per product.
func ByProduct(samples []model.SampleUsage, orders []model.CustomerOrder) []GroupStats {
	return grouped(samples, orders, func(s model.SampleUsage) string {
		return s.ProductID.String()
	})
}

// BySalesRep applies the conversion and revenue formulas per sales rep.
func BySalesRep(samples []model.SampleUsage, orders []model.CustomerOrder) []GroupStats {
	return grouped(samples, orders, func(s model.SampleUsage) string {
		return s.SalesRepID.String()
	})
}

// ByWeek applies the conversion and revenue formulas per ISO week of
// DateGiven, keyed like "2025-W42".
func ByWeek(samples []model.SampleUsage, orders []model.CustomerOrder) []GroupStats {
	return grouped(samples, orders, func(s model.SampleUsage) string {
		year, week := s.DateGiven.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	})
}

func grouped(samples []model.SampleUsage, orders []model.CustomerOrder, keyFn func(model.SampleUsage) string) []GroupStats {
	byID := orderIndex(orders)

	type acc struct {
		samples     int
		conversions int
		revenue     int64
		days        int
		converted   int // conversions with a resolvable completed order
	}
	groups := make(map[string]*acc)
	var keys []string

	for _, s := range samples {
		key := keyFn(s)
		g, ok := groups[key]
		if !ok {
			g = &acc{}
			groups[key] = g
			keys = append(keys, key)
		}
		g.samples++
		if s.ResultedInOrder {
			g.conversions++
		}
		if o, ok := resolvedOrder(s, byID); ok {
			g.revenue += o.TotalValue
			g.days += daysBetween(s.DateGiven, o.OrderDate)
			g.converted++
		}
	}

	// Deterministic output: groups in first-seen order of the input
	// snapshot, so identical input yields identical output.
	out := make([]GroupStats, 0, len(keys))
	for _, key := range keys {
		g := groups[key]
		stats := GroupStats{
			Key:               key,
			TotalSamples:      g.samples,
			Conversions:       g.conversions,
			AttributedRevenue: g.revenue,
		}
		if g.samples > 0 {
			stats.ConversionRate = float64(g.conversions) / float64(g.samples)
			stats.AvgRevenuePerSample = float64(g.revenue) / float64(g.samples)
		}
		if g.converted > 0 {
			stats.AvgDaysToConversion = float64(g.days) / float64(g.converted)
		}
		out = append(out, stats)
	}
	return out
}

func countConversions(samples []model.SampleUsage) int {
	n := 0
	for _, s := range samples {
		if s.ResultedInOrder {
			n++
		}
	}
	return n
}

// resolvedOrder returns the completed order an attributed sample links to,
// if any.
func resolvedOrder(s model.SampleUsage, byID map[uuid.UUID]model.CustomerOrder) (model.CustomerOrder, bool) {
	if !s.ResultedInOrder || s.OrderID == nil {
		return model.CustomerOrder{}, false
	}
	o, ok := byID[*s.OrderID]
	if !ok || o.Status != model.OrderCompleted {
		return model.CustomerOrder{}, false
	}
	return o, true
}

func orderIndex(orders []model.CustomerOrder) map[uuid.UUID]model.CustomerOrder {
	byID := make(map[uuid.UUID]model.CustomerOrder, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
	}
	return byID
}

const millisPerDay = 24 * 60 * 60 * 1000

func daysBetween(a, b time.Time) int {
	return int(b.Sub(a).Milliseconds() / millisPerDay)
}
