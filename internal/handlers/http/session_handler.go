package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dowhatkennydoes/distancedoc-sub000/internal/core/domain"
	"github.com/dowhatkennydoes/distancedoc-sub000/internal/core/ports"
	"github.com/dowhatkennydoes/distancedoc-sub000/internal/infrastructure/middleware"
	"github.com/dowhatkennydoes/distancedoc-sub000/pkg/config"
	"github.com/dowhatkennydoes/distancedoc-sub000/pkg/utils"
	"github.com/dowhatkennydoes/distancedoc-sub000/pkg/validation"
)

const tokenTTL = 12 * time.Hour

// SessionHandler serves the session bootstrap API: clients exchange
// participant IDs for a session, signed relay tokens and the traversal
// server list before attaching to the relay websocket.
type SessionHandler struct {
	sessions ports.SessionRepository
	cfg      *config.Config
	logger   *zap.SugaredLogger
}

func NewSessionHandler(sessions ports.SessionRepository, cfg *config.Config, logger *zap.SugaredLogger) *SessionHandler {
	return &SessionHandler{sessions: sessions, cfg: cfg, logger: logger}
}

// RegisterRoutes attaches the bootstrap endpoints to the router group.
func (h *SessionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/sessions", h.CreateSession)
	rg.GET("/sessions/:id/presence", h.Presence)
	rg.GET("/ice-servers", h.ICEServers)
}

type createSessionRequest struct {
	ParticipantID  string `json:"participant_id" binding:"required"`
	RemoteID       string `json:"remote_id" binding:"required"`
	ConsultationID string `json:"consultation_id"`
}

type createSessionResponse struct {
	SessionID      string `json:"session_id"`
	ConsultationID string `json:"consultation_id"`
	Initiator      string `json:"initiator"`
	Token          string `json:"token"`
	RelayURL       string `json:"relay_url"`
}

// CreateSession allocates a session for a participant pair. Both ends
// may call it; the session ID is derived from the pair so they agree.
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validation.ValidateParticipantID(req.ParticipantID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validation.ValidateParticipantID(req.RemoteID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.ParticipantID == req.RemoteID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "participant_id and remote_id must differ"})
		return
	}

	local := domain.ParticipantID(req.ParticipantID)
	remote := domain.ParticipantID(req.RemoteID)

	sessionID := domain.SessionID(utils.DeriveSessionID(string(local), string(remote)))
	consultationID := req.ConsultationID
	if consultationID == "" {
		consultationID = utils.GenerateConsultationID()
	}

	token, err := middleware.IssueToken(h.cfg.Auth.JWTSecret, local, sessionID, tokenTTL)
	if err != nil {
		h.logger.Errorw("failed to issue relay token", "participant_id", local, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}

	h.logger.Infow("session bootstrapped",
		"session_id", sessionID,
		"participant_id", local,
		"initiator", domain.Initiator(local, remote),
	)
	c.JSON(http.StatusOK, createSessionResponse{
		SessionID:      string(sessionID),
		ConsultationID: consultationID,
		Initiator:      string(domain.Initiator(local, remote)),
		Token:          token,
		RelayURL:       h.cfg.Signal.URL,
	})
}

// Presence reports whether a participant is attached to the relay.
func (h *SessionHandler) Presence(c *gin.Context) {
	sessionID := c.Param("id")
	participantID := c.Query("participant_id")
	if err := validation.ValidateSessionID(sessionID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validation.ValidateParticipantID(participantID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	present, err := h.sessions.IsPresent(c.Request.Context(),
		domain.SessionID(sessionID), domain.ParticipantID(participantID))
	if err != nil {
		h.logger.Warnw("presence lookup failed", "session_id", sessionID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "presence lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "participant_id": participantID, "present": present})
}

type iceServerEntry struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// ICEServers returns the statically configured traversal servers.
func (h *SessionHandler) ICEServers(c *gin.Context) {
	servers := make([]iceServerEntry, 0, len(h.cfg.WebRTC.ICEServers))
	for _, s := range h.cfg.WebRTC.ICEServers {
		servers = append(servers, iceServerEntry{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	c.JSON(http.StatusOK, gin.H{"ice_servers": servers})
}
