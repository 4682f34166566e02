// Package room implements the Room directory: persistent locations with a
// normalized alias used for fuzzy voice matching, created manually,
// imported from the home-automation controller, or auto-created on first
// device registration.
package room

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/antzucaro/matchr"
	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Source describes how a room entered the directory.
type Source string

const (
	SourceManual  Source = "manual"
	SourceHA      Source = "home_automation"
	SourceAutoReg Source = "auto_registration"
)

type Room struct {
	ID             string
	Name           string
	Alias          string
	ExternalAreaID string
	Icon           string
	Source         Source
}

var ErrNotFound = errors.New("room not found")

// foldAccents strips combining marks left behind by NFD decomposition,
// implementing the umlaut-folding half of Normalize's round-trip law.
var foldAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lowercases, folds accents, and strips everything but letters
// and digits, so "Wohnzimmer", "wohnzimmer", and "Wöhnz immer" all collapse
// to the same alias.
func Normalize(name string) string {
	folded, _, err := transform.String(foldAccents, name)
	if err != nil {
		folded = name
	}
	var b strings.Builder
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Persister is the write side of a durable room directory, implemented
// by internal/repository.Rooms. Service calls it fire-and-forget on
// every newly created room so a restart can rehydrate via LoadRoom
// without the hot Resolve/Get path ever touching the database.
type Persister interface {
	Save(ctx context.Context, r Room) error
}

// Service is the in-memory room directory. A single mutex guards both
// tables; room mutation volume is low (admin/import/first-registration
// paths only), so the coarse lock costs nothing observable.
type Service struct {
	mu          sync.RWMutex
	byID        map[string]*Room
	byAlias     map[string]string // alias -> id
	autoCreate  bool
	fuzzyMinJW  float64
	persister   Persister
}

func NewService(autoCreate bool) *Service {
	return &Service{
		byID:       make(map[string]*Room),
		byAlias:    make(map[string]string),
		autoCreate: autoCreate,
		fuzzyMinJW: 0.88,
	}
}

// WithPersister attaches a durable store that newly created rooms are
// saved to in the background. Returns the Service for chaining at
// construction time.
func (s *Service) WithPersister(p Persister) *Service {
	s.persister = p
	return s
}

// LoadRoom inserts a room row with an already-assigned id, used at
// startup to rehydrate the in-memory directory from internal/repository
// without minting a fresh id the way Create does.
func (s *Service) LoadRoom(r Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := r
	s.byID[r.ID] = &clone
	s.byAlias[r.Alias] = r.ID
}

// Create inserts a room, auto-generating an id and alias.
func (s *Service) Create(name string, source Source) (Room, error) {
	alias := Normalize(name)
	if alias == "" {
		return Room{}, errors.New("room name normalizes to empty alias")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existingID, ok := s.byAlias[alias]; ok {
		return *s.byID[existingID], nil
	}
	r := &Room{ID: uuid.NewString(), Name: name, Alias: alias, Source: source}
	s.byID[r.ID] = r
	s.byAlias[alias] = r.ID
	s.persistAsync(*r)
	return *r, nil
}

// persistAsync fires a bounded, best-effort save at the configured
// Persister; a save failure never blocks or fails room creation, the
// same tradeoff internal/memory.Service.ExtractAsync makes for fact
// extraction.
func (s *Service) persistAsync(r Room) {
	if s.persister == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.persister.Save(ctx, r)
	}()
}

// Resolve looks a room up by exact name/alias first, then by closest
// Jaro-Winkler match above the configured threshold (the voice-matching
// fallback spec.md's alias field exists for).
func (s *Service) Resolve(nameOrAlias string) (Room, bool) {
	alias := Normalize(nameOrAlias)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id, ok := s.byAlias[alias]; ok {
		return *s.byID[id], true
	}
	var best *Room
	bestScore := s.fuzzyMinJW
	for _, r := range s.byID {
		score := matchr.JaroWinkler(alias, r.Alias, true)
		if score > bestScore {
			bestScore = score
			best = r
		}
	}
	if best != nil {
		return *best, true
	}
	return Room{}, false
}

// EnsureRoom resolves a room by name, auto-creating it when policy
// permits and it does not already exist.
func (s *Service) EnsureRoom(name string, source Source) (Room, error) {
	if r, ok := s.Resolve(name); ok {
		return r, nil
	}
	if !s.autoCreate && source == SourceAutoReg {
		return Room{}, ErrNotFound
	}
	return s.Create(name, source)
}

func (s *Service) Get(id string) (Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byID[id]
	if !ok {
		return Room{}, false
	}
	return *r, true
}
