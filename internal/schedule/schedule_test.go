package schedule

import (
	"strings"
	"testing"
	"time"
)

var monday = time.Date(2021, time.February, 1, 6, 30, 0, 0, time.UTC)

func TestParseClock(t *testing.T) {
	t.Parallel()
	h, m, err := ParseClock("09:05")
	if err != nil {
		t.Fatalf("ParseClock error: %v", err)
	}
	if h != 9 || m != 5 {
		t.Fatalf("unexpected result: %d:%d", h, m)
	}
	if h, m, err := ParseClock(" 7:30 "); err != nil || h != 7 || m != 30 {
		t.Fatalf("ParseClock(7:30) = %d:%d, %v", h, m, err)
	}
	for _, bad := range []string{"24:00", "12:60", "1230", "", "ab:cd", "123:00"} {
		if _, _, err := ParseClock(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestBuildOrdersAndGroups(t *testing.T) {
	t.Parallel()
	periods := []PeriodDef{
		{Start: "10:45", End: "12:00"}, // key 1
		{Start: "08:45", End: "10:00"}, // key 2
	}
	links := []LinkDef{
		{Name: "chem", Period: 1, URL: "https://meet.google.com/a", Enabled: true},
		{Name: "math", Period: 2, URL: "https://meet.google.com/b", Enabled: true},
		{Name: "bio", Period: 1, URL: "https://meet.google.com/c", Enabled: false},
		{Name: "art", Period: 2, URL: "https://zoom.us/j/1", Enabled: true},
	}
	s, err := Build(monday, periods, links, Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(s.Periods) != 2 {
		t.Fatalf("periods = %d, want 2", len(s.Periods))
	}
	if s.Periods[0].Key != 2 || s.Periods[1].Key != 1 {
		t.Fatalf("periods not sorted by start: %v", s.Periods)
	}
	wantStart := time.Date(2021, time.February, 1, 8, 40, 0, 0, time.UTC)
	if !s.Periods[0].Start.Equal(wantStart) {
		t.Fatalf("start = %v, want %v (5m early)", s.Periods[0].Start, wantStart)
	}
	wantEnd := time.Date(2021, time.February, 1, 10, 0, 0, 0, time.UTC)
	if !s.Periods[0].End.Equal(wantEnd) {
		t.Fatalf("end = %v, want %v", s.Periods[0].End, wantEnd)
	}
	names := func(ls []Link) string {
		out := make([]string, 0, len(ls))
		for _, l := range ls {
			out = append(out, l.Name)
		}
		return strings.Join(out, ",")
	}
	if got := names(s.Links[0]); got != "math,art" {
		t.Fatalf("period 0 links = %s", got)
	}
	if got := names(s.Links[1]); got != "chem,bio" {
		t.Fatalf("period 1 links = %s", got)
	}
	if s.Enabled() != 3 {
		t.Fatalf("Enabled = %d, want 3", s.Enabled())
	}
	if !s.End().Equal(time.Date(2021, time.February, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("End = %v", s.End())
	}
}

func TestBuildExplicitKeysAndLocation(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("EST", -5*3600)
	s, err := Build(monday, []PeriodDef{{Key: 7, Start: "09:00", End: "09:45"}},
		[]LinkDef{{Name: "x", Period: 7, URL: "u", Enabled: true}},
		Options{Location: loc, EarlyStart: -1})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	p := s.Periods[0]
	if p.Key != 7 {
		t.Fatalf("key = %d", p.Key)
	}
	if p.Start.Location() != loc || p.Start.Hour() != 9 || p.Start.Minute() != 0 {
		t.Fatalf("start = %v, want 09:00 EST without lead", p.Start)
	}
}

func TestBuildErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		periods []PeriodDef
		links   []LinkDef
		want    []string
	}{
		{name: "empty", want: []string{"no links", "no periods"}},
		{
			name:    "bad times",
			periods: []PeriodDef{{Start: "10:00", End: "09:00"}, {Start: "x", End: "09:00"}},
			links:   []LinkDef{{Name: "a", Period: 1, URL: "u"}},
			want:    []string{"must be before", "periods[1].start_time"},
		},
		{
			name:    "unknown period and missing fields",
			periods: []PeriodDef{{Start: "09:00", End: "10:00"}},
			links:   []LinkDef{{Name: "a", Period: 3, URL: "u"}, {Period: 1}},
			want:    []string{"unknown period 3", "name is required", "url is required"},
		},
		{
			name:    "duplicate key",
			periods: []PeriodDef{{Key: 2, Start: "09:00", End: "10:00"}, {Start: "11:00", End: "12:00"}},
			links:   []LinkDef{{Name: "a", Period: 2, URL: "u"}},
			want:    []string{"key 2 already used"},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Build(monday, tt.periods, tt.links, Options{})
			if err == nil {
				t.Fatal("expected error")
			}
			for _, w := range tt.want {
				if !strings.Contains(err.Error(), w) {
					t.Fatalf("error %q does not mention %q", err, w)
				}
			}
		})
	}
}

func TestBuildHammerCollapsesToOnePeriod(t *testing.T) {
	t.Parallel()
	links := []LinkDef{
		{Name: "a", Period: 1, URL: "u1", Enabled: true},
		{Name: "b", Period: 9, URL: "u2", Enabled: false},
	}
	s, err := Build(monday, nil, links, Options{Hammer: true})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !s.Hammer || len(s.Periods) != 1 || len(s.Links[0]) != 2 {
		t.Fatalf("unexpected hammer schedule: %+v", s)
	}
	p := s.Periods[0]
	if p.Start.Hour() != 0 || p.End.Sub(p.Start) != 24*time.Hour {
		t.Fatalf("hammer period = %v..%v", p.Start, p.End)
	}
}

func TestPlanDay(t *testing.T) {
	t.Parallel()
	regular := []PeriodDef{{Start: "09:00", End: "10:00"}}
	special := []PeriodDef{{Start: "13:00", End: "14:00"}}
	saturday := time.Date(2021, time.February, 6, 8, 0, 0, 0, time.UTC)

	if p := PlanDay(saturday, regular, DayPolicy{}); p.Run || p.Reason != "weekend" {
		t.Fatalf("weekend plan = %+v", p)
	}
	if p := PlanDay(saturday, regular, DayPolicy{RunOnWeekends: true}); !p.Run || len(p.Periods) != 1 || p.Periods[0].Start != "09:00" {
		t.Fatalf("weekend override plan = %+v", p)
	}
	p := PlanDay(monday, regular, DayPolicy{OverrideDays: []string{"2021-02-01"}, OverridePeriods: special})
	if !p.Run || !p.Override || p.Periods[0].Start != "13:00" {
		t.Fatalf("override plan = %+v", p)
	}
	if p := PlanDay(monday, regular, DayPolicy{OverrideDays: []string{"2021-02-02"}}); p.Override {
		t.Fatalf("unexpected override: %+v", p)
	}
	if !ValidDate("2021-02-01") || ValidDate("01/02/2021") {
		t.Fatal("ValidDate mismatch")
	}
}
