// Package presence implements the Presence Service (C11): where each
// known user currently is, merging two independent signals — a
// high-confidence mark written whenever the Intent Router successfully
// authenticates a voice turn (internal/wsmux's runTurn calls MarkVoice
// after a speaker-identified utterance), and a lower-confidence mark derived
// from satellite beacon RSSI observations that only counts once enough
// samples agree. Storage is Redis-backed with a TTL when configured,
// falling back to an in-memory map reaped by a GC goroutine — the same
// tradeoff internal/memory.NewStore makes between Postgres and an
// in-memory store.
package presence

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/renfield-project/renfield/internal/tools"
)

// Source distinguishes how a presence record was established, carried
// through so confidence can differ by provenance.
type Source string

const (
	SourceVoiceAuth    Source = "voice_auth"
	SourceBeacon       Source = "beacon"
)

// Record is one user's current location, as written by Mark and read
// back by Locate/AllPresent.
type Record struct {
	UserID     string
	RoomID     string
	RoomName   string
	Confidence float64
	Source     Source
	ObservedAt time.Time
}

// Backend is the storage seam Service delegates to: RedisBackend when
// config.RedisURL is set, InMemoryBackend otherwise.
type Backend interface {
	Put(ctx context.Context, r Record, ttl time.Duration) error
	Get(ctx context.Context, userID string) (Record, bool, error)
	All(ctx context.Context) ([]Record, error)
}

// Service is C11.
type Service struct {
	backend    Backend
	ttl        time.Duration
	minSamples int

	beaconMu      sync.Mutex
	beaconSamples map[string]*beaconAccumulator
}

type beaconAccumulator struct {
	roomID   string
	roomName string
	count    int
	lastSeen time.Time
}

func New(backend Backend, ttl time.Duration, minBeaconSamples int) *Service {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if minBeaconSamples <= 0 {
		minBeaconSamples = 2
	}
	return &Service{
		backend:       backend,
		ttl:           ttl,
		minSamples:    minBeaconSamples,
		beaconSamples: make(map[string]*beaconAccumulator),
	}
}

// Mark records a high-confidence presence observation immediately,
// bypassing the beacon sample-count gate. Used after a successful
// voice-auth turn.
func (s *Service) Mark(ctx context.Context, userID, roomID, roomName string, confidence float64, source Source) error {
	return s.backend.Put(ctx, Record{
		UserID:     userID,
		RoomID:     roomID,
		RoomName:   roomName,
		Confidence: confidence,
		Source:     source,
		ObservedAt: time.Now().UTC(),
	}, s.ttl)
}

// MarkVoice is the voice-auth shorthand the websocket layer uses after a
// speaker-identified turn: 0.9 confidence, voice_auth source.
func (s *Service) MarkVoice(ctx context.Context, userID, roomID, roomName string) error {
	return s.Mark(ctx, userID, roomID, roomName, 0.9, SourceVoiceAuth)
}

// ObserveBeacon accumulates one RSSI-derived sighting of userID in
// roomID. Only once minBeaconSamples consecutive sightings agree on the
// same room does this write a presence record, smoothing out a single
// noisy reading flipping a user's location.
func (s *Service) ObserveBeacon(ctx context.Context, userID, roomID, roomName string) error {
	s.beaconMu.Lock()
	acc, ok := s.beaconSamples[userID]
	if !ok || acc.roomID != roomID {
		acc = &beaconAccumulator{roomID: roomID, roomName: roomName}
		s.beaconSamples[userID] = acc
	}
	acc.count++
	acc.lastSeen = time.Now().UTC()
	ready := acc.count >= s.minSamples
	if ready {
		acc.count = 0
	}
	s.beaconMu.Unlock()

	if !ready {
		return nil
	}
	return s.backend.Put(ctx, Record{
		UserID:     userID,
		RoomID:     roomID,
		RoomName:   roomName,
		Confidence: 0.6,
		Source:     SourceBeacon,
		ObservedAt: time.Now().UTC(),
	}, s.ttl)
}

// Locate satisfies tools.PresenceQuerier. Names resolve loosely: an
// exact user id first, then a case-insensitive match on the first or
// last token of any present user's id, so "where is anna" finds
// "anna.schmidt" without the caller knowing the canonical id.
func (s *Service) Locate(ctx context.Context, username string) (tools.PresenceLocation, bool, error) {
	rec, ok, err := s.backend.Get(ctx, username)
	if err != nil {
		return tools.PresenceLocation{}, false, err
	}
	if !ok {
		rec, ok, err = s.locateLoose(ctx, username)
		if err != nil || !ok {
			return tools.PresenceLocation{}, false, err
		}
	}
	return tools.PresenceLocation{
		UserID:     rec.UserID,
		RoomID:     rec.RoomID,
		RoomName:   rec.RoomName,
		Confidence: rec.Confidence,
	}, true, nil
}

func (s *Service) locateLoose(ctx context.Context, username string) (Record, bool, error) {
	all, err := s.backend.All(ctx)
	if err != nil {
		return Record{}, false, err
	}
	want := strings.ToLower(strings.TrimSpace(username))
	if want == "" {
		return Record{}, false, nil
	}

	// First-name pass, then last-name pass, so "anna" prefers
	// "anna.schmidt" over "peter.anna" when both are present.
	for pass := 0; pass < 2; pass++ {
		for _, rec := range all {
			parts := strings.FieldsFunc(strings.ToLower(rec.UserID), func(r rune) bool {
				return r == '.' || r == '_' || r == ' ' || r == '-'
			})
			if len(parts) == 0 {
				continue
			}
			var candidate string
			if pass == 0 {
				candidate = parts[0]
			} else {
				candidate = parts[len(parts)-1]
			}
			if candidate == want {
				return rec, true, nil
			}
		}
	}
	return Record{}, false, nil
}

// AllPresent satisfies tools.PresenceQuerier.
func (s *Service) AllPresent(ctx context.Context) ([]tools.PresenceLocation, error) {
	recs, err := s.backend.All(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]tools.PresenceLocation, len(recs))
	for i, r := range recs {
		out[i] = tools.PresenceLocation{UserID: r.UserID, RoomID: r.RoomID, RoomName: r.RoomName, Confidence: r.Confidence}
	}
	return out, nil
}
