// Package wsmux implements the WebSocket Multiplexer (C3): the single
// connection surface every device and web client speaks, demultiplexing
// typed frames into the Device Registry (C1), the per-session state
// machine (C2), the Intent Router & Agent Loop (C5), and the Wake-Word
// Config Broadcaster (C8). It is the orchestrator's only network-facing
// component; every other package reaches the wire only through the
// narrow Sink/FrameSink/ConnHandle interfaces those packages declare.
package wsmux

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/renfield-project/renfield/internal/config"
	"github.com/renfield-project/renfield/internal/hacontroller"
	"github.com/renfield-project/renfield/internal/observability"
	"github.com/renfield-project/renfield/internal/output"
	"github.com/renfield-project/renfield/internal/protocol"
	"github.com/renfield-project/renfield/internal/registry"
	"github.com/renfield-project/renfield/internal/room"
	"github.com/renfield-project/renfield/internal/router"
	"github.com/renfield-project/renfield/internal/session"
	"github.com/renfield-project/renfield/internal/stt"
	"github.com/renfield-project/renfield/internal/tts"
	"github.com/renfield-project/renfield/internal/wakeword"
)

// Close codes used on the handshake/connection-admission paths, kept in
// the 4000-4999 private-use range the RFC reserves for applications.
const (
	closeAuthRequired     = 4401
	closeConnLimitReached = 4003
)

// Registry is the subset of *registry.Registry the multiplexer drives.
type Registry interface {
	Register(deviceID string, deviceType registry.DeviceType, roomName string, override registry.Capabilities, deviceName string, isStationary bool, ipAddress string, handle registry.ConnHandle) (string, error)
	StartSession(deviceID, clientSessionID string) (string, error)
	BufferAudio(sessionID string, chunk []byte, sequence uint64) error
	GetAudio(sessionID string) ([]byte, error)
	SetSessionState(ctx context.Context, sessionID string, event string) (session.State, error)
	EndSession(ctx context.Context, sessionID, reason string)
	Unregister(ctx context.Context, deviceID string)
	GetDevice(deviceID string) (registry.Device, bool)
	GetSession(sessionID string) (registry.Session, session.State, bool)
	SetTranscript(sessionID, transcript string) error
	ActiveSession(deviceID string) (string, bool)
}

// VoicePresence is the slice of the Presence Service (C11) the
// multiplexer feeds: a high-confidence mark when a turn's speaker was
// voice-identified, and raw beacon sightings piggybacked on satellite
// heartbeats.
type VoicePresence interface {
	MarkVoice(ctx context.Context, userID, roomID, roomName string) error
	ObserveBeacon(ctx context.Context, userID, roomID, roomName string) error
}

// Server owns every live connection and wires inbound frames to the
// rest of the orchestrator. It implements registry.StateSink itself,
// fanning SendState/SendSessionEnd out to whichever connection currently
// owns that device.
type Server struct {
	cfg       config.Config
	reg       Registry
	rooms     *room.Service
	wakeword  *wakeword.Broadcaster
	outRouter *output.Router
	routerSvc *router.Router
	sttP      stt.Provider
	ttsP      tts.Provider
	ha        hacontroller.Client
	presence  VoicePresence
	logger    *zap.Logger
	metrics   *observability.Metrics

	upgrader websocket.Upgrader

	mu          sync.RWMutex
	connsByDev  map[string]*conn
	connsByIP   map[string]int
	totalByDev  map[string]int
}

func New(cfg config.Config, reg Registry, rooms *room.Service, wake *wakeword.Broadcaster, outRouter *output.Router, routerSvc *router.Router, sttP stt.Provider, ttsP tts.Provider, ha hacontroller.Client, metrics *observability.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:        cfg,
		reg:        reg,
		rooms:      rooms,
		wakeword:   wake,
		outRouter:  outRouter,
		routerSvc:  routerSvc,
		sttP:       sttP,
		ttsP:       ttsP,
		ha:         ha,
		logger:     logger,
		metrics:    metrics,
		connsByDev: make(map[string]*conn),
		connsByIP:  make(map[string]int),
		totalByDev: make(map[string]int),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// WithPresence wires the Presence Service after construction; nil (the
// default) disables presence marking without affecting the voice path.
func (s *Server) WithPresence(p VoicePresence) *Server {
	s.presence = p
	return s
}

// checkOrigin mirrors the teacher's same-origin default: browser clients
// must match Host unless APP_ALLOW_ANY_ORIGIN is set, while non-browser
// clients (which typically omit Origin entirely) are always allowed.
func (s *Server) checkOrigin(r *http.Request) bool {
	if s.cfg.AllowAnyOrigin {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// ServeHTTP is mounted at /ws, /ws/satellite, and /ws/device; every path
// speaks the identical frame set, the client's own register frame is
// what actually distinguishes a satellite from a web panel.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.cfg.AuthEnabled {
		if !authorize(r, s.cfg.AuthSigningKey) {
			s.rejectUpgrade(w, r, closeAuthRequired, "auth required")
			return
		}
	}

	ip := clientIP(r)
	if !s.admitIP(ip) {
		s.rejectUpgrade(w, r, closeConnLimitReached, "too many connections from this address")
		return
	}

	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.releaseIP(ip)
		return
	}

	c := newConn(s, wsConn, ip)
	go c.run()
}

// rejectUpgrade performs the handshake anyway (so the client receives a
// proper close frame with a code it can branch on) then immediately
// closes with the given code, since gorilla/websocket has no hook to
// refuse a handshake with a custom close code before upgrading.
func (s *Server) rejectUpgrade(w http.ResponseWriter, r *http.Request, code int, reason string) {
	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	_ = wsConn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
	_ = wsConn.Close()
}

func (s *Server) admitIP(ip string) bool {
	if s.cfg.MaxConnsPerIP <= 0 {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connsByIP[ip] >= s.cfg.MaxConnsPerIP {
		return false
	}
	s.connsByIP[ip]++
	return true
}

func (s *Server) releaseIP(ip string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connsByIP[ip] <= 1 {
		delete(s.connsByIP, ip)
		return
	}
	s.connsByIP[ip]--
}

// admitDevice enforces MaxConnsPerDevice once a register frame reveals
// the device identity; the IP-level cap alone can't, since many devices
// sit behind one NAT gateway.
func (s *Server) admitDevice(deviceID string) bool {
	if s.cfg.MaxConnsPerDevice <= 0 {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.totalByDev[deviceID] >= s.cfg.MaxConnsPerDevice {
		return false
	}
	s.totalByDev[deviceID]++
	return true
}

func (s *Server) releaseDevice(deviceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.totalByDev[deviceID] <= 1 {
		delete(s.totalByDev, deviceID)
		return
	}
	s.totalByDev[deviceID]--
}

func (s *Server) trackConn(deviceID string, c *conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connsByDev[deviceID] = c
}

func (s *Server) untrackConn(deviceID string, c *conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connsByDev[deviceID] == c {
		delete(s.connsByDev, deviceID)
	}
}

func (s *Server) connFor(deviceID string) (*conn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.connsByDev[deviceID]
	return c, ok
}

// noteSessionStarted and endSession keep the active_sessions gauge and
// session_events_total counter in step with the registry's own session
// bookkeeping, since the registry has no metrics dependency of its own.
func (s *Server) noteSessionStarted() {
	if s.metrics == nil {
		return
	}
	s.metrics.SessionEvents.WithLabelValues("started").Inc()
	s.metrics.ActiveSessions.Inc()
}

func (s *Server) endSession(ctx context.Context, sessionID, reason string) {
	s.reg.EndSession(ctx, sessionID, reason)
	if s.metrics == nil {
		return
	}
	s.metrics.SessionEvents.WithLabelValues(reason).Inc()
	s.metrics.ActiveSessions.Dec()
}

// SendState satisfies registry.StateSink.
func (s *Server) SendState(deviceID string, state session.State) {
	c, ok := s.connFor(deviceID)
	if !ok {
		return
	}
	c.send(protocol.State{Type: protocol.TypeState, State: state.String()})
}

// SendSessionEnd satisfies registry.StateSink.
func (s *Server) SendSessionEnd(deviceID, sessionID, reason string) {
	c, ok := s.connFor(deviceID)
	if !ok {
		return
	}
	c.send(protocol.SessionEnd{Type: protocol.TypeSessionEnd, SessionID: sessionID, Reason: reason})
}

// PlayURL satisfies tools.RenfieldPlayer, delivering a playback
// instruction directly to a Renfield-attached device's open connection.
func (s *Server) PlayURL(deviceID, mediaURL string) error {
	c, ok := s.connFor(deviceID)
	if !ok {
		return errors.New("wsmux: device " + deviceID + " has no open connection")
	}
	c.send(protocol.PlayURL{Type: protocol.TypePlayURL, MediaURL: mediaURL})
	return nil
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host := r.RemoteAddr
	if i := strings.LastIndexByte(host, ':'); i >= 0 {
		return host[:i]
	}
	return host
}

func decodeAudioChunk(b64 string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(b64)
}
