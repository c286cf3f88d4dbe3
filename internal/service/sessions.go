package service

import (
	"context"
	"sort"
	"time"

	"github.com/agenttrail/agenttrail/internal/metrics"
	"github.com/agenttrail/agenttrail/internal/query"
)

// noSessionBucket collects events that carry no trajectory identifier.
const noSessionBucket = "no_session"

// Session is one trajectory's worth of events, oldest first.
type Session struct {
	SessionID  string         `json:"session_id"`
	EventCount int            `json:"event_count"`
	StartTime  string         `json:"start_time"`
	EndTime    string         `json:"end_time"`
	Categories map[string]int `json:"categories"`
	Users      []string       `json:"users"`
	Events     []query.Record `json:"events"`
}

// SessionsResult is the grouped sessions view.
type SessionsResult struct {
	Sessions      []Session `json:"sessions"`
	TotalSessions int       `json:"total_sessions"`
}

// Sessions groups the master stream by trajectory. Events within a
// session run oldest first; sessions themselves run newest first by
// start time, with the no-session bucket ordered like any other.
func (s *Service) Sessions(ctx context.Context, dir string) (*SessionsResult, error) {
	key := "sessions|dir=" + dir
	if cached, ok := s.cache.Get(key); ok {
		return cached.(*SessionsResult), nil
	}

	timer := time.Now()
	defer func() {
		metrics.QueryDuration.WithLabelValues("sessions").Observe(time.Since(timer).Seconds())
	}()

	records, err := s.loadRecords(ctx, dir, nil)
	if err != nil {
		return nil, err
	}

	groups := map[string][]query.Record{}
	for _, rec := range records {
		id := rec.String("trajectory_id")
		if id == "" {
			id = noSessionBucket
		}
		groups[id] = append(groups[id], rec)
	}

	sessions := make([]Session, 0, len(groups))
	for id, events := range groups {
		query.SortAscending(events)

		categories := map[string]int{}
		userSet := map[string]struct{}{}
		for _, rec := range events {
			category := rec.String("category")
			if category == "" {
				category = "unknown"
			}
			categories[category]++
			if user := rec.String("user"); user != "" {
				userSet[user] = struct{}{}
			}
		}

		users := make([]string, 0, len(userSet))
		for user := range userSet {
			users = append(users, user)
		}
		sort.Strings(users)

		sessions = append(sessions, Session{
			SessionID:  id,
			EventCount: len(events),
			StartTime:  events[0].Timestamp(),
			EndTime:    events[len(events)-1].Timestamp(),
			Categories: categories,
			Users:      users,
			Events:     events,
		})
	}

	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].StartTime > sessions[j].StartTime
	})

	result := &SessionsResult{Sessions: sessions, TotalSessions: len(sessions)}
	s.cache.Set(key, result)
	return result, nil
}
