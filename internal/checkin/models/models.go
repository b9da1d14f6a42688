package models

import (
	"time"

	"entrypass/pkg/domain"
)

// DateLayout is the visit date format, a calendar day in the venue time zone.
const DateLayout = "2006-01-02"

// Entry is one admission. A registration has at most one entry per visit date.
type Entry struct {
	ID             domain.CheckInID
	RegistrationID domain.RegistrationID
	Code           string
	StaffID        domain.UserID
	VisitDate      string
	Device         string
	CreatedAt      time.Time
}

// VisitDate returns the calendar day of t at the venue.
func VisitDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DateLayout)
}
