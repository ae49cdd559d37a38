package model

import "time"

// AvailabilityEntry is one declaration batch. A provider may hold several live
// entries for the same date; their times are unioned when read.
type AvailabilityEntry struct {
	ID            string
	ProviderID    string
	Date          time.Time // UTC midnight
	Times         []string
	InvalidatedAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (e AvailabilityEntry) Live() bool {
	return e.InvalidatedAt == nil
}
