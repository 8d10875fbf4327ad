package domain

import "time"

// NotificationSettings is the per-owner notification profile.
//
// A missing row behaves exactly like the zero value: notifications disabled,
// UTC. TimeZone holds an IANA name ("Asia/Seoul"); empty means UTC.
type NotificationSettings struct {
	OwnerID   string    `json:"owner_id"`
	Enabled   bool      `json:"enabled"`
	TimeZone  string    `json:"time_zone"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Location resolves the owner's timezone. Unknown names return an error so
// the caller can log the fallback; the returned location is then UTC.
func (s NotificationSettings) Location() (*time.Location, error) {
	if s.TimeZone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(s.TimeZone)
	if err != nil {
		return time.UTC, err
	}
	return loc, nil
}

func (s *NotificationSettings) Clone() *NotificationSettings {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}
