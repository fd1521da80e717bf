// Package catalog expands a date-range configuration into the ordered list of
// hourly pageview dump files it covers.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"wikistat/internal/domain"
	"wikistat/internal/util"
)

// ErrInvalidConfiguration is returned for a malformed date range.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// Range selects the dump files of one month: every combination of Days and
// Hours. Duplicates in Days or Hours are ignored.
type Range struct {
	Year  int
	Month int
	Days  []int
	Hours []int
}

// Generate returns one FileID per (day, hour) pair of r, sorted by day and
// then hour. The result depends only on r.
func Generate(r Range) ([]domain.FileID, error) {
	if r.Year < 2000 || r.Year > 9999 {
		return nil, fmt.Errorf("%w: year %d out of range", ErrInvalidConfiguration, r.Year)
	}
	if r.Month < 1 || r.Month > 12 {
		return nil, fmt.Errorf("%w: month %d out of range 1-12", ErrInvalidConfiguration, r.Month)
	}

	days, err := normalize("day", r.Days, 1, 31)
	if err != nil {
		return nil, err
	}
	hours, err := normalize("hour", r.Hours, 0, 23)
	if err != nil {
		return nil, err
	}

	last := util.DaysInMonth(r.Year, time.Month(r.Month))
	if days[len(days)-1] > last {
		return nil, fmt.Errorf("%w: day %d does not exist in %04d-%02d",
			ErrInvalidConfiguration, days[len(days)-1], r.Year, r.Month)
	}

	ids := make([]domain.FileID, 0, len(days)*len(hours))
	for _, d := range days {
		for _, h := range hours {
			ids = append(ids, domain.NewFileID(r.Year, r.Month, d, h))
		}
	}
	return ids, nil
}

// normalize sorts and deduplicates values after checking them against
// [lo, hi].
func normalize(name string, values []int, lo, hi int) ([]int, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: no %ss given", ErrInvalidConfiguration, name)
	}

	seen := make(map[int]struct{}, len(values))
	out := make([]int, 0, len(values))
	for _, v := range values {
		if v < lo || v > hi {
			return nil, fmt.Errorf("%w: %s %d out of range %d-%d",
				ErrInvalidConfiguration, name, v, lo, hi)
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Ints(out)
	return out, nil
}
