package metrics

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/AngelCh415/spend-dashboard/internal/apperr"
	"github.com/AngelCh415/spend-dashboard/internal/models"
)

const maxRangeDays = 366

var dateParamRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Request is a validated dashboard query.
type Request struct {
	Range    models.DateRange
	Channels []string
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func csvSet(s string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, p := range strings.Split(s, ",") {
		p = norm(p)
		if p != "" {
			out[p] = struct{}{}
		}
	}
	return out
}

// ParseRequest validates startDate/endDate/channels. Missing dates fall back to
// the configured default range.
func (s *Service) ParseRequest(v url.Values) (Request, error) {
	startStr := strings.TrimSpace(v.Get("startDate"))
	endStr := strings.TrimSpace(v.Get("endDate"))
	if startStr == "" {
		startStr = s.opts.DefaultStart
	}
	if endStr == "" {
		endStr = s.opts.DefaultEnd
	}
	r, err := ParseDateRange(startStr, endStr)
	if err != nil {
		return Request{}, err
	}
	chans, err := s.selectChannels(v.Get("channels"))
	if err != nil {
		return Request{}, err
	}
	return Request{Range: r, Channels: chans}, nil
}

func ParseDateRange(startStr, endStr string) (models.DateRange, error) {
	if !dateParamRe.MatchString(startStr) || !dateParamRe.MatchString(endStr) {
		return models.DateRange{}, apperr.Validation("Please use YYYY-MM-DD format for startDate and endDate")
	}
	start, err := time.Parse(models.DateLayout, startStr)
	if err != nil {
		return models.DateRange{}, apperr.Validationf("Invalid startDate %q", startStr)
	}
	end, err := time.Parse(models.DateLayout, endStr)
	if err != nil {
		return models.DateRange{}, apperr.Validationf("Invalid endDate %q", endStr)
	}
	if start.After(end) {
		return models.DateRange{}, apperr.Validation("startDate must not be after endDate")
	}
	if end.Sub(start) > maxRangeDays*24*time.Hour {
		return models.DateRange{}, apperr.Validation("Date range cannot exceed 1 year")
	}
	return models.DateRange{Start: start, End: end}, nil
}

// selectChannels narrows the configured allow-list; unknown channels are rejected.
func (s *Service) selectChannels(raw string) ([]string, error) {
	want := csvSet(raw)
	if len(want) == 0 {
		return s.opts.Channels, nil
	}
	var out []string
	for _, c := range s.opts.Channels {
		if _, ok := want[norm(c)]; ok {
			out = append(out, c)
			delete(want, norm(c))
		}
	}
	if len(want) > 0 {
		var unknown []string
		for c := range want {
			unknown = append(unknown, c)
		}
		sort.Strings(unknown)
		return nil, apperr.Validationf("Unsupported channel group(s): %s", strings.Join(unknown, ", "))
	}
	return out, nil
}
