package schedule

import (
	"strings"
	"time"
)

// DayPolicy decides whether and with which periods a given day runs.
type DayPolicy struct {
	RunOnWeekends bool
	// OverrideDays are dates (YYYY-MM-DD) that use OverridePeriods instead of the
	// regular periods.
	OverrideDays    []string
	OverridePeriods []PeriodDef
}

// DayPlan is the outcome of PlanDay.
type DayPlan struct {
	Run      bool
	Reason   string
	Periods  []PeriodDef
	Override bool
}

const dateLayout = "2006-01-02"

// PlanDay resolves weekend suppression and override days for the day containing now.
func PlanDay(now time.Time, periods []PeriodDef, p DayPolicy) DayPlan {
	if !p.RunOnWeekends {
		if wd := now.Weekday(); wd == time.Saturday || wd == time.Sunday {
			return DayPlan{Run: false, Reason: "weekend"}
		}
	}
	today := now.Format(dateLayout)
	for _, d := range p.OverrideDays {
		if strings.TrimSpace(d) == today {
			return DayPlan{Run: true, Reason: "override day", Periods: p.OverridePeriods, Override: true}
		}
	}
	return DayPlan{Run: true, Reason: "regular day", Periods: periods}
}

// ValidDate reports whether s is a YYYY-MM-DD date.
func ValidDate(s string) bool {
	_, err := time.Parse(dateLayout, strings.TrimSpace(s))
	return err == nil
}
