package schedule

import (
	"fmt"
	"time"
)

// DefaultEarlyStart is how long before the nominal start a period becomes pollable.
const DefaultEarlyStart = 5 * time.Minute

// PeriodDef is a period as written in configuration.
type PeriodDef struct {
	// Key links the period to MonitoredLink.Period. Zero means "1-based position".
	Key   int
	Start string // HH:MM
	End   string // HH:MM
}

// LinkDef is a monitored link as written in configuration.
type LinkDef struct {
	Name    string
	Owner   string
	Period  int
	Channel string
	URL     string
	Enabled bool
}

// Period is an immutable polling window on a concrete day.
// Start already includes the early-start lead.
type Period struct {
	Key   int
	Start time.Time
	End   time.Time
}

func (p Period) String() string {
	return fmt.Sprintf("period %d [%s-%s]", p.Key, p.Start.Format("15:04"), p.End.Format("15:04"))
}

// Link is an immutable monitored link.
type Link struct {
	Name      string
	Owner     string
	PeriodKey int
	Channel   string
	URL       string
	Enabled   bool
}

// Ref addresses one link inside a Schedule.
type Ref struct {
	Period int // index into Schedule.Periods
	Index  int // index into Schedule.Links[Period]
}

func (r Ref) String() string { return fmt.Sprintf("%d/%d", r.Period, r.Index) }

// Schedule is the ordered set of periods and their links for one run.
//
// Periods are sorted by Start. Links[i] holds the links of Periods[i] in
// configuration order. A Schedule is never mutated after Build.
type Schedule struct {
	Periods []Period
	Links   [][]Link
	// Hammer is set when the schedule was collapsed into a single all-day period.
	Hammer bool
}

// Link returns the link addressed by r.
func (s *Schedule) Link(r Ref) Link { return s.Links[r.Period][r.Index] }

// First returns the earliest period.
func (s *Schedule) First() Period { return s.Periods[0] }

// Last returns the latest period by start time.
func (s *Schedule) Last() Period { return s.Periods[len(s.Periods)-1] }

// End returns the latest end time over all periods.
func (s *Schedule) End() time.Time {
	end := s.Periods[0].End
	for _, p := range s.Periods[1:] {
		if p.End.After(end) {
			end = p.End
		}
	}
	return end
}

// Enabled counts enabled links across the schedule.
func (s *Schedule) Enabled() int {
	n := 0
	for _, ls := range s.Links {
		for _, l := range ls {
			if l.Enabled {
				n++
			}
		}
	}
	return n
}
