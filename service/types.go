package service

import (
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/krau/autotone/adjust"
	"github.com/krau/autotone/label"
)

// Asset is an uploaded image together with how it is currently displayed.
type Asset struct {
	Image   image.Image
	Format  string
	Display adjust.Display
}

// Session carries the state one user builds up between uploading an image
// and asking for the adjustment: the image, the typed recommendation, and
// the applicator guarding it.
type Session struct {
	ID string

	busy atomic.Bool

	mu         sync.Mutex
	asset      *Asset
	applicator *adjust.Applicator
	scores     label.ScoreVector
	updated    time.Time
}

func newSession(id string) *Session {
	return &Session{ID: id, applicator: adjust.NewApplicator(), updated: time.Now()}
}

// Snapshot is a read-only view of a session.
type Snapshot struct {
	SessionID string             `json:"session_id"`
	State     adjust.State       `json:"state"`
	HasImage  bool               `json:"has_image"`
	Label     *label.Label       `json:"label,omitempty"`
	Text      string             `json:"text,omitempty"`
	Filter    string             `json:"filter,omitempty"`
	Scores    map[string]float32 `json:"scores,omitempty"`
	Analyzing bool               `json:"analyzing"`
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		SessionID: s.ID,
		State:     s.applicator.State(),
		HasImage:  s.asset != nil,
		Analyzing: s.busy.Load(),
	}
	if l, ok := s.applicator.Label(); ok {
		snap.Label = &l
		snap.Text = label.Text(l)
		snap.Scores = s.scores.Map()
	}
	if s.asset != nil {
		snap.Filter = s.asset.Display.Filter()
	}
	return snap
}

type Result struct {
	SessionID string             `json:"session_id"`
	Label     label.Label        `json:"label"`
	Text      string             `json:"text"`
	Scores    map[string]float32 `json:"scores"`
}

type Adjustment struct {
	SessionID string      `json:"session_id"`
	Label     label.Label `json:"label"`
	Filter    string      `json:"filter"`
	Spec      adjust.Spec `json:"spec"`
}
