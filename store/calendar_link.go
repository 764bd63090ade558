package store

import (
	"context"
)

// CalendarLink stores the OAuth credentials of a user's linked remote calendar.
type CalendarLink struct {
	UserID       int32
	Provider     string
	CalendarID   string
	AccessToken  string
	RefreshToken string
	ExpiryTs     int64
	UpdatedTs    int64
}

// FindCalendarLink is the find condition for calendar links.
type FindCalendarLink struct {
	UserID   *int32
	Provider *string
}

// UpsertCalendarLink creates or replaces the link for (UserID, Provider).
func (s *Store) UpsertCalendarLink(ctx context.Context, upsert *CalendarLink) (*CalendarLink, error) {
	return s.driver.UpsertCalendarLink(ctx, upsert)
}

// ListCalendarLinks lists calendar links with filter.
func (s *Store) ListCalendarLinks(ctx context.Context, find *FindCalendarLink) ([]*CalendarLink, error) {
	return s.driver.ListCalendarLinks(ctx, find)
}

// GetCalendarLink returns the link of a user for provider, or nil if the user has none.
func (s *Store) GetCalendarLink(ctx context.Context, userID int32, provider string) (*CalendarLink, error) {
	list, err := s.driver.ListCalendarLinks(ctx, &FindCalendarLink{UserID: &userID, Provider: &provider})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}
