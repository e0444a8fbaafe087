package session

import (
	"encoding/json"
	"time"
)

// Session is one idle-timed user context.
type Session struct {
	ID           string         `json:"id"`
	UserID       string         `json:"user_id"`
	StartedAt    time.Time      `json:"started_at"`
	LastActivity time.Time      `json:"last_activity"`
	ExpiresAt    time.Time      `json:"expires_at"`
	Data         map[string]any `json:"data,omitempty"`
}

// Expired reports whether s is past its idle deadline at now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

func (s Session) clone() Session {
	if s.Data != nil {
		data := make(map[string]any, len(s.Data))
		for k, v := range s.Data {
			data[k] = v
		}
		s.Data = data
	}
	return s
}

// Draft is unsaved user work kept across sessions until its retention ends.
type Draft struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	SavedAt   time.Time       `json:"saved_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Activity names a user interaction kind.
type Activity string

const (
	ActivityMouseDown  Activity = "mousedown"
	ActivityKeyDown    Activity = "keydown"
	ActivityScroll     Activity = "scroll"
	ActivityTouchStart Activity = "touchstart"
	ActivityClick      Activity = "click"
)

// DefaultActivities is the tracked set used when none is configured.
func DefaultActivities() []Activity {
	return []Activity{
		ActivityMouseDown,
		ActivityKeyDown,
		ActivityScroll,
		ActivityTouchStart,
		ActivityClick,
	}
}
