// Package analytics queries the web-analytics service. Column meaning is always
// resolved through header names; column order is not stable across responses.
package analytics

import (
	"context"
	"strconv"
	"strings"

	"github.com/AngelCh415/spend-dashboard/internal/models"
)

type Query struct {
	Dimensions []string
	Metrics    []string
	DateRange  models.DateRange
	Filter     *InListFilter
	Limit      int
	// OrderBy names a metric to sort by, descending.
	OrderBy string
}

type InListFilter struct {
	Field  string
	Values []string
}

type Row struct {
	DimensionValues []string `json:"dimensionValues"`
	MetricValues    []string `json:"metricValues"`
}

type Report struct {
	DimensionHeaders []string `json:"dimensionHeaders"`
	MetricHeaders    []string `json:"metricHeaders"`
	Rows             []Row    `json:"rows"`
	RowCount         int      `json:"rowCount"`
}

// Source executes report queries. Failures are reported as *apperr.Error with
// CodeSourceUnavailable.
type Source interface {
	Query(ctx context.Context, q Query) (*Report, error)
}

type HeaderIndex map[string]int

func NewHeaderIndex(headers []string) HeaderIndex {
	idx := make(HeaderIndex, len(headers))
	for i, h := range headers {
		if _, dup := idx[h]; !dup {
			idx[h] = i
		}
	}
	return idx
}

func (r *Report) MetricIndex() HeaderIndex    { return NewHeaderIndex(r.MetricHeaders) }
func (r *Report) DimensionIndex() HeaderIndex { return NewHeaderIndex(r.DimensionHeaders) }

func (h HeaderIndex) Lookup(vals []string, name string) (string, bool) {
	i, ok := h[name]
	if !ok || i >= len(vals) {
		return "", false
	}
	return vals[i], true
}

// Int y Float: ausente o mal formado cuenta como 0
func (h HeaderIndex) Int(vals []string, name string) int {
	v, ok := h.Lookup(vals, name)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if ferr != nil {
			return 0
		}
		return int(f)
	}
	return int(n)
}

func (h HeaderIndex) Float(vals []string, name string) float64 {
	v, ok := h.Lookup(vals, name)
	if !ok {
		return 0
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0
	}
	return f
}
