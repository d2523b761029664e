// Package schedule turns configured periods and links into the immutable,
// time-ordered Schedule the watcher runs against.
package schedule

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Options tune Build.
type Options struct {
	// Location for wall-clock times. Nil means day.Location().
	Location *time.Location
	// EarlyStart shifts every period start earlier. Zero means DefaultEarlyStart;
	// negative disables the shift.
	EarlyStart time.Duration
	// Hammer collapses the schedule into one all-day period holding every link.
	Hammer bool
}

var reClock = regexp.MustCompile(`^\s*(\d{1,2}):(\d{2})\s*$`)

// ParseClock parses a 24h "HH:MM" wall-clock time.
func ParseClock(raw string) (hour, minute int, err error) {
	m := reClock.FindStringSubmatch(raw)
	if len(m) != 3 {
		return 0, 0, fmt.Errorf("invalid time %q (want HH:MM)", raw)
	}
	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	if hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", raw)
	}
	if minute > 59 {
		return 0, 0, fmt.Errorf("invalid minutes in %q", raw)
	}
	return hour, minute, nil
}

// At returns the instant of clock time hh:mm on day in loc.
func At(day time.Time, loc *time.Location, hour, minute int) time.Time {
	y, mo, d := day.In(loc).Date()
	return time.Date(y, mo, d, hour, minute, 0, 0, loc)
}

// Build constructs the Schedule for the calendar day containing day.
//
// All configuration problems are reported together.
func Build(day time.Time, periods []PeriodDef, links []LinkDef, opt Options) (*Schedule, error) {
	loc := opt.Location
	if loc == nil {
		loc = day.Location()
	}
	lead := opt.EarlyStart
	if lead == 0 {
		lead = DefaultEarlyStart
	}
	if lead < 0 {
		lead = 0
	}

	var errs []error
	if len(links) == 0 {
		errs = append(errs, errors.New("no links configured"))
	}
	for i, l := range links {
		if strings.TrimSpace(l.Name) == "" {
			errs = append(errs, fmt.Errorf("links[%d]: name is required", i))
		}
		if strings.TrimSpace(l.URL) == "" {
			errs = append(errs, fmt.Errorf("links[%d] (%s): url is required", i, l.Name))
		}
	}

	if opt.Hammer {
		if len(errs) > 0 {
			return nil, errors.Join(errs...)
		}
		return buildHammer(day, loc, links), nil
	}

	if len(periods) == 0 {
		errs = append(errs, errors.New("no periods configured"))
	}

	out := make([]Period, 0, len(periods))
	seen := map[int]int{}
	for i, pd := range periods {
		key := pd.Key
		if key == 0 {
			key = i + 1
		}
		if prev, dup := seen[key]; dup {
			errs = append(errs, fmt.Errorf("periods[%d]: key %d already used by periods[%d]", i, key, prev))
			continue
		}
		seen[key] = i

		sh, sm, err := ParseClock(pd.Start)
		if err != nil {
			errs = append(errs, fmt.Errorf("periods[%d].start_time: %w", i, err))
			continue
		}
		eh, em, err := ParseClock(pd.End)
		if err != nil {
			errs = append(errs, fmt.Errorf("periods[%d].end_time: %w", i, err))
			continue
		}
		start := At(day, loc, sh, sm)
		end := At(day, loc, eh, em)
		if !start.Before(end) {
			errs = append(errs, fmt.Errorf("periods[%d]: start_time %s must be before end_time %s", i, pd.Start, pd.End))
			continue
		}
		out = append(out, Period{Key: key, Start: start.Add(-lead), End: end})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })

	byKey := make(map[int]int, len(out))
	for i, p := range out {
		byKey[p.Key] = i
	}
	grouped := make([][]Link, len(out))
	for i, l := range links {
		idx, ok := byKey[l.Period]
		if !ok {
			if _, declared := seen[l.Period]; !declared {
				errs = append(errs, fmt.Errorf("links[%d] (%s): unknown period %d", i, l.Name, l.Period))
			}
			continue
		}
		grouped[idx] = append(grouped[idx], linkFromDef(l))
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &Schedule{Periods: out, Links: grouped}, nil
}

func buildHammer(day time.Time, loc *time.Location, links []LinkDef) *Schedule {
	start := At(day, loc, 0, 0)
	end := start.AddDate(0, 0, 1)
	ls := make([]Link, 0, len(links))
	for _, l := range links {
		ls = append(ls, linkFromDef(l))
	}
	return &Schedule{
		Periods: []Period{{Key: 0, Start: start, End: end}},
		Links:   [][]Link{ls},
		Hammer:  true,
	}
}

func linkFromDef(l LinkDef) Link {
	return Link{
		Name:      strings.TrimSpace(l.Name),
		Owner:     strings.TrimSpace(l.Owner),
		PeriodKey: l.Period,
		Channel:   strings.TrimSpace(l.Channel),
		URL:       strings.TrimSpace(l.URL),
		Enabled:   l.Enabled,
	}
}
