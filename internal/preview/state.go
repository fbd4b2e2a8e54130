package preview

import (
	"sync"
	"time"
)

const (
	ModeLocal   = "local"
	ModeMarkers = "markers"
	ModeAI      = "ai"
)

var (
	BeamAngles  = []float64{15, 30, 45, 60}
	Intensities = []float64{0.6, 1.0, 1.4}
	CropTops    = []float64{0, 20, 35}
)

// UIState is the /night wizard for one user in one chat.
type UIState struct {
	Mode      string
	BeamAngle float64
	Intensity float64
	CropTop   float64
	Style     string
	Clean     bool
	Custom    string

	AwaitingPhoto   bool
	LastPhotoFileID string
	LastCaption     string
	MessageID       int
	Menu            string
	UpdatedAt       time.Time
}

// PromptOptions carries the wizard choices into a prompt. The renderer adds
// placements, aspect ratio and marker state.
func (s UIState) PromptOptions() Options {
	return Options{
		BeamAngle: s.BeamAngle,
		Intensity: s.Intensity,
		Style:     s.Style,
		CropTop:   s.CropTop,
		Custom:    s.Custom,
	}
}

// Apply copies the fields ParseArgs understood into the wizard.
func (s *UIState) Apply(opts Options) {
	if opts.BeamAngle > 0 {
		s.BeamAngle = opts.BeamAngle
	}
	if opts.Intensity > 0 {
		s.Intensity = opts.Intensity
	}
	if opts.Style != "" {
		s.Style = opts.Style
	}
	s.CropTop = opts.CropTop
	s.Clean = !opts.Markers
	if opts.Custom != "" {
		s.Custom = opts.Custom
	}
}

// Cycle moves v to the next entry of steps, wrapping around.
func Cycle(steps []float64, v float64) float64 {
	for i, s := range steps {
		if s == v {
			return steps[(i+1)%len(steps)]
		}
	}
	return steps[0]
}

type Store struct {
	mu sync.Mutex
	m  map[stateKey]*UIState
}

type stateKey struct {
	ChatID int64
	UserID int64
}

func NewStore() *Store {
	return &Store{m: make(map[stateKey]*UIState)}
}

func (s *Store) Get(chatID, userID int64) UIState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return *s.getOrCreateLocked(chatID, userID)
}

func (s *Store) Update(chatID, userID int64, fn func(*UIState)) UIState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.getOrCreateLocked(chatID, userID)
	if fn != nil {
		fn(st)
	}
	st.UpdatedAt = time.Now()
	return *st
}

func (s *Store) Reset(chatID, userID int64) UIState {
	return s.Update(chatID, userID, func(st *UIState) {
		*st = DefaultState()
	})
}

func (s *Store) getOrCreateLocked(chatID, userID int64) *UIState {
	key := stateKey{ChatID: chatID, UserID: userID}
	if st, ok := s.m[key]; ok {
		return st
	}
	st := DefaultState()
	s.m[key] = &st
	return s.m[key]
}

func DefaultState() UIState {
	return UIState{
		Mode:      ModeLocal,
		BeamAngle: 30,
		Intensity: 1.0,
		CropTop:   0,
		Style:     "warm",
		Menu:      "main",
		UpdatedAt: time.Now(),
	}
}
