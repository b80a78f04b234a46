package service

import (
	"context"
	"sort"
)

// SeatAvailability is the seat map of a show.  Occupied seats belong to
// confirmed bookings.  Held seats are requested by recent pending
// bookings; holds are informational and never block a confirmation.
type SeatAvailability struct {
	ShowID     string   `json:"show_id"`
	TotalSeats int      `json:"total_seats"`
	Available  int      `json:"available"`
	Occupied   []string `json:"occupied"`
	Held       []string `json:"held"`
}

// OccupiedSeats reports the seat map of a show.
func (s *Service) OccupiedSeats(ctx context.Context, showID string) (*SeatAvailability, error) {
	if showID == "" {
		return nil, validationErr("show id is required")
	}
	show, err := s.shows.GetByID(ctx, showID)
	if err != nil {
		return nil, storeErr("load show", err)
	}
	occupied, ok := s.cache.Get(ctx, showID)
	if !ok {
		occupied, err = s.shows.OccupiedSeatIDs(ctx, showID)
		if err != nil {
			return nil, storeErr("load occupancy", err)
		}
		if err := s.cache.Set(ctx, showID, occupied); err != nil {
			s.log.WithError(err).Warn("seat cache write failed", "show_id", showID)
		}
	}
	held := []string{}
	if s.holdTTL > 0 {
		held, err = s.shows.HeldSeatIDs(ctx, showID, s.now().Add(-s.holdTTL))
		if err != nil {
			return nil, storeErr("load holds", err)
		}
		held = without(held, occupied)
	}
	if occupied == nil {
		occupied = []string{}
	}
	available := show.TotalSeats - len(occupied)
	if available < 0 {
		available = 0
	}
	return &SeatAvailability{
		ShowID:     showID,
		TotalSeats: show.TotalSeats,
		Available:  available,
		Occupied:   occupied,
		Held:       held,
	}, nil
}

// without returns the elements of list not in drop, sorted.
func without(list, drop []string) []string {
	skip := make(map[string]struct{}, len(drop))
	for _, d := range drop {
		skip[d] = struct{}{}
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		if _, ok := skip[v]; !ok {
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

// intersect returns the elements of want that are also in have.
func intersect(want, have []string) []string {
	set := make(map[string]struct{}, len(have))
	for _, h := range have {
		set[h] = struct{}{}
	}
	var out []string
	for _, w := range want {
		if _, ok := set[w]; ok {
			out = append(out, w)
		}
	}
	return out
}
