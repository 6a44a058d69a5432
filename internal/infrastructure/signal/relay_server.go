package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dowhatkennydoes/distancedoc-sub000/internal/core/domain"
	"github.com/dowhatkennydoes/distancedoc-sub000/internal/core/ports"
	"github.com/dowhatkennydoes/distancedoc-sub000/internal/infrastructure/monitoring"
	"github.com/dowhatkennydoes/distancedoc-sub000/pkg/validation"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type connKey struct {
	session     domain.SessionID
	participant domain.ParticipantID
}

// RelayServer relays offer/answer/ICE messages between the two
// participants of a session. Delivery is FIFO per sender; messages for a
// participant that has not joined yet are buffered through the session
// registry and flushed on join.
type RelayServer struct {
	sessions  ports.SessionRepository
	collector *monitoring.Collector

	connections map[connKey]*websocket.Conn
	writeLocks  map[connKey]*sync.Mutex
	seq         map[connKey]uint64
	mu          sync.RWMutex

	pingInterval time.Duration
	pongTimeout  time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration

	messageRate  rate.Limit
	messageBurst int

	logger *zap.SugaredLogger
}

// RelayOptions carries server tunables.
type RelayOptions struct {
	PingInterval      time.Duration
	PongTimeout       time.Duration
	MessagesPerSecond float64
	Burst             int
}

// NewRelayServer creates a relay backed by the given session registry.
func NewRelayServer(sessions ports.SessionRepository, collector *monitoring.Collector, opts RelayOptions, logger *zap.SugaredLogger) *RelayServer {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.PongTimeout <= 0 {
		opts.PongTimeout = 60 * time.Second
	}
	if opts.MessagesPerSecond <= 0 {
		opts.MessagesPerSecond = 50
	}
	if opts.Burst <= 0 {
		opts.Burst = 100
	}
	return &RelayServer{
		sessions:     sessions,
		collector:    collector,
		connections:  make(map[connKey]*websocket.Conn),
		writeLocks:   make(map[connKey]*sync.Mutex),
		seq:          make(map[connKey]uint64),
		pingInterval: opts.PingInterval,
		pongTimeout:  opts.PongTimeout,
		readTimeout:  opts.PongTimeout,
		writeTimeout: 10 * time.Second,
		messageRate:  rate.Limit(opts.MessagesPerSecond),
		messageBurst: opts.Burst,
		logger:       logger,
	}
}

// HandleWebSocket upgrades and serves one participant's signaling
// connection. Required query parameters: session_id, participant_id,
// remote_id.
func (s *RelayServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := domain.SessionID(r.URL.Query().Get("session_id"))
	participantID := domain.ParticipantID(r.URL.Query().Get("participant_id"))
	remoteID := domain.ParticipantID(r.URL.Query().Get("remote_id"))

	if err := validation.ValidateSessionID(string(sessionID)); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := validation.ValidateParticipantID(string(participantID)); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := validation.ValidateParticipantID(string(remoteID)); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	key := connKey{sessionID, participantID}
	ctx := r.Context()

	// A reconnecting participant adopts a fresh socket; close the old one.
	s.mu.Lock()
	if old, isReconnect := s.connections[key]; isReconnect && old != nil {
		old.Close()
		s.logger.Infow("closing old connection for reconnecting participant",
			"session_id", sessionID, "participant_id", participantID)
	}
	s.connections[key] = conn
	s.writeLocks[key] = &sync.Mutex{}
	s.mu.Unlock()

	if err := s.sessions.Register(ctx, sessionID, participantID); err != nil {
		s.logger.Warnw("failed to register participant", "participant_id", participantID, "error", err)
	}
	if s.collector != nil {
		s.collector.ParticipantConnected()
	}

	s.logger.Infow("participant connected",
		"session_id", sessionID,
		"participant_id", participantID,
		"initiator", domain.Initiator(participantID, remoteID) == participantID,
	)

	// Flush anything the remote sent before this participant joined.
	s.flushPending(ctx, key)

	conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		return nil
	})

	pingTicker := time.NewTicker(s.pingInterval)
	defer pingTicker.Stop()

	limiter := rate.NewLimiter(s.messageRate, s.messageBurst)

	messageChan := make(chan domain.SignalMessage, 16)
	errorChan := make(chan error, 1)

	go func() {
		for {
			var msg domain.SignalMessage
			if err := conn.ReadJSON(&msg); err != nil {
				errorChan <- err
				return
			}
			conn.SetReadDeadline(time.Now().Add(s.readTimeout))
			messageChan <- msg
		}
	}()

	for {
		select {
		case msg := <-messageChan:
			if !limiter.Allow() {
				s.sendError(key, "rate limit exceeded")
				continue
			}
			if err := s.handleMessage(ctx, key, remoteID, msg); err != nil {
				s.logger.Infow("error handling signal message",
					"session_id", sessionID, "participant_id", participantID, "error", err)
				s.sendError(key, err.Error())
			}

		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Infow("error sending ping", "participant_id", participantID, "error", err)
				s.disconnect(ctx, key)
				return
			}

		case err := <-errorChan:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Infow("error reading signal message", "participant_id", participantID, "error", err)
			}
			s.disconnect(ctx, key)
			return
		}
	}
}

func (s *RelayServer) handleMessage(ctx context.Context, from connKey, remoteID domain.ParticipantID, msg domain.SignalMessage) error {
	switch msg.Kind {
	case domain.SignalOffer, domain.SignalAnswer:
		if err := validation.ValidateSDP(msg.SDP); err != nil {
			return fmt.Errorf("invalid %s: %w", msg.Kind, err)
		}
	case domain.SignalICECandidate:
		if err := validation.ValidateICECandidate(msg.Candidate); err != nil {
			return fmt.Errorf("invalid ice candidate: %w", err)
		}
	default:
		return fmt.Errorf("unknown message type: %s", msg.Kind)
	}

	msg.SessionID = from.session
	msg.From = from.participant
	msg.To = remoteID

	// Per-sender FIFO sequence; receivers use it for diagnostics only.
	s.mu.Lock()
	s.seq[from]++
	msg.Seq = s.seq[from]
	s.mu.Unlock()

	if s.collector != nil {
		s.collector.SignalRelayed(string(msg.Kind))
	}

	target := connKey{from.session, remoteID}
	if err := s.sendToParticipant(target, &msg); err == nil {
		return nil
	}

	// Remote not attached yet; buffer in enqueue order and flush on join.
	if err := s.sessions.EnqueuePending(ctx, &msg); err != nil {
		return fmt.Errorf("failed to buffer message for absent participant: %w", err)
	}
	if s.collector != nil {
		s.collector.SignalBuffered()
	}
	s.logger.Debugw("buffered signal for absent participant",
		"session_id", from.session, "to", remoteID, "type", msg.Kind)
	return nil
}

func (s *RelayServer) flushPending(ctx context.Context, key connKey) {
	pending, err := s.sessions.DrainPending(ctx, key.session, key.participant)
	if err != nil {
		s.logger.Warnw("failed to drain pending signals", "participant_id", key.participant, "error", err)
		return
	}
	for _, msg := range pending {
		if err := s.sendToParticipant(key, msg); err != nil {
			s.logger.Warnw("failed to deliver buffered signal", "participant_id", key.participant, "error", err)
			return
		}
	}
	if len(pending) > 0 {
		s.logger.Infow("flushed buffered signals", "participant_id", key.participant, "count", len(pending))
	}
}

func (s *RelayServer) sendToParticipant(key connKey, msg *domain.SignalMessage) error {
	s.mu.RLock()
	conn, exists := s.connections[key]
	lock := s.writeLocks[key]
	s.mu.RUnlock()

	if !exists {
		return fmt.Errorf("participant %s not connected", key.participant)
	}

	lock.Lock()
	defer lock.Unlock()
	conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	return conn.WriteJSON(msg)
}

func (s *RelayServer) sendError(key connKey, message string) {
	s.mu.RLock()
	conn, exists := s.connections[key]
	lock := s.writeLocks[key]
	s.mu.RUnlock()
	if !exists {
		return
	}
	lock.Lock()
	defer lock.Unlock()
	conn.WriteJSON(map[string]interface{}{"type": "error", "message": message})
}

func (s *RelayServer) disconnect(ctx context.Context, key connKey) {
	// The request context is torn down with the handler; unregister must
	// still reach the registry.
	ctx = context.WithoutCancel(ctx)

	s.mu.Lock()
	delete(s.connections, key)
	delete(s.writeLocks, key)
	delete(s.seq, key)
	s.mu.Unlock()

	if err := s.sessions.Unregister(ctx, key.session, key.participant); err != nil {
		s.logger.Warnw("failed to unregister participant", "participant_id", key.participant, "error", err)
	}
	if s.collector != nil {
		s.collector.ParticipantDisconnected()
	}
	s.logger.Infow("participant disconnected",
		"session_id", key.session, "participant_id", key.participant)
}

// IsParticipantConnected reports whether a participant has a live socket.
func (s *RelayServer) IsParticipantConnected(sessionID domain.SessionID, participant domain.ParticipantID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.connections[connKey{sessionID, participant}]
	return exists
}

// HealthCheck reports relay liveness and the live connection count.
func (s *RelayServer) HealthCheck(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	connectionCount := len(s.connections)
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":      "healthy",
		"timestamp":   time.Now().Unix(),
		"connections": connectionCount,
	})
}
