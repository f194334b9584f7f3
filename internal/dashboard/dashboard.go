// Package dashboard computes the aggregate panels shown on the console
// landing page: record counts by status and monthly value totals.
package dashboard

import (
	"context"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/cargolog/console/internal/listing"
	"github.com/cargolog/console/model"
)

// StatusCount is one slice of the status distribution chart.
type StatusCount struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// MonthlyTotal is one bar of the monthly totals chart.
type MonthlyTotal struct {
	Month string  `json:"month"` // YYYY-MM
	Total float64 `json:"total"`
}

// Summary is the dashboard payload for one entity.
type Summary struct {
	Entity       string         `json:"entity"`
	Total        int            `json:"total"`
	ByStatus     []StatusCount  `json:"by_status,omitempty"`
	MonthlyTotal []MonthlyTotal `json:"monthly_totals,omitempty"`
}

// Aggregator builds summaries from entity collections.
type Aggregator struct {
	lister listing.Lister
	logger *zap.Logger
}

// NewAggregator creates an Aggregator backed by the given lister.
func NewAggregator(lister listing.Lister, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{lister: lister, logger: logger}
}

// Summarize fetches an entity's collection and aggregates it. statusField
// and valueField/dateField may be empty to skip the respective panel.
func (a *Aggregator) Summarize(ctx context.Context, rctx *model.RequestContext, def model.EntityDefinition, valueField, dateField string) (Summary, error) {
	rows, err := a.lister.List(ctx, rctx, def.BaseRoute, nil)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{Entity: def.Entity, Total: len(rows)}

	if def.StatusField != "" {
		counts := make(map[string]int)
		for _, row := range rows {
			counts[row.StringField(def.StatusField)]++
		}
		for status, count := range counts {
			summary.ByStatus = append(summary.ByStatus, StatusCount{Status: status, Count: count})
		}
		sort.Slice(summary.ByStatus, func(i, j int) bool {
			return summary.ByStatus[i].Status < summary.ByStatus[j].Status
		})
	}

	if valueField != "" && dateField != "" {
		totals := make(map[string]float64)
		for _, row := range rows {
			month, ok := monthOf(row.StringField(dateField))
			if !ok {
				continue
			}
			totals[month] += numericValue(row[valueField])
		}
		for month, total := range totals {
			summary.MonthlyTotal = append(summary.MonthlyTotal, MonthlyTotal{Month: month, Total: total})
		}
		sort.Slice(summary.MonthlyTotal, func(i, j int) bool {
			return summary.MonthlyTotal[i].Month < summary.MonthlyTotal[j].Month
		})
	}

	return summary, nil
}

var monthLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006-01",
}

func monthOf(s string) (string, bool) {
	if s == "" {
		return "", false
	}
	for _, layout := range monthLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01"), true
		}
	}
	return "", false
}

func numericValue(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case string:
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return f
		}
	}
	return 0
}
