package storetest

import (
	"salonsched/internal/domain"
	"salonsched/internal/timeutil"
)

// WeekdaySalon returns a Mon-Fri 09:00-17:00 tenant with the given rules.
func WeekdaySalon(tenantID, timezone string, rules domain.BookingRules) domain.TenantScheduleConfig {
	cfg := domain.TenantScheduleConfig{TenantID: tenantID, Timezone: timezone, Rules: rules}
	for _, d := range timeutil.AllWeekdays {
		if d == timeutil.Saturday || d == timeutil.Sunday {
			cfg.BusinessHours = append(cfg.BusinessHours, domain.BusinessHours{Weekday: d, Closed: true})
			continue
		}
		cfg.BusinessHours = append(cfg.BusinessHours, domain.BusinessHours{Weekday: d, Open: "09:00", Close: "17:00"})
	}
	return cfg
}

// FullTimeStaff returns a staff member working 09:00-17:00 Monday to Friday.
func FullTimeStaff(tenantID, staffID string) domain.StaffSchedule {
	week := make(map[timeutil.Weekday][]domain.WorkInterval)
	for _, d := range []timeutil.Weekday{timeutil.Monday, timeutil.Tuesday, timeutil.Wednesday, timeutil.Thursday, timeutil.Friday} {
		week[d] = []domain.WorkInterval{{Start: "09:00", End: "17:00"}}
	}
	return domain.StaffSchedule{TenantID: tenantID, StaffID: staffID, Week: week}
}
