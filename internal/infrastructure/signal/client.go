package signal

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dowhatkennydoes/distancedoc-sub000/internal/core/domain"
	"github.com/dowhatkennydoes/distancedoc-sub000/internal/core/ports"
)

const dialTimeout = 10 * time.Second

// Dialer opens signaling channels against the relay.
type Dialer struct {
	relayURL string
	token    string
	logger   *zap.SugaredLogger
}

// NewDialer creates a dialer for the given relay websocket URL. token is
// the bearer token issued by the identity provider; empty disables auth.
func NewDialer(relayURL, token string, logger *zap.SugaredLogger) *Dialer {
	return &Dialer{relayURL: relayURL, token: token, logger: logger}
}

var _ ports.SignalingDialer = (*Dialer)(nil)

// Open subscribes to the relay for this session pair. Failure to reach
// the relay is fatal for the call attempt.
func (d *Dialer) Open(ctx context.Context, session *domain.Session) (ports.SignalingChannel, error) {
	u, err := url.Parse(d.relayURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid relay url: %v", domain.ErrSignalingUnavailable, err)
	}
	q := u.Query()
	q.Set("session_id", string(session.ID))
	q.Set("participant_id", string(session.LocalParticipant))
	q.Set("remote_id", string(session.RemoteParticipant))
	u.RawQuery = q.Encode()

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = dialTimeout

	var header map[string][]string
	if d.token != "" {
		header = map[string][]string{"Authorization": {"Bearer " + d.token}}
	}

	conn, _, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSignalingUnavailable, err)
	}

	ch := &Channel{
		conn:    conn,
		session: session,
		logger:  d.logger,
		closed:  make(chan struct{}),
	}
	go ch.readLoop()
	return ch, nil
}

// Channel is one participant's live signaling subscription. Callbacks
// run on the read loop goroutine, in per-sender arrival order. The relay
// flushes messages buffered for an absent participant the moment the
// socket attaches, which can be before the call wiring has registered
// any callbacks; such messages are held and replayed on registration.
type Channel struct {
	conn    *websocket.Conn
	session *domain.Session
	logger  *zap.SugaredLogger

	writeMu sync.Mutex

	cbMu        sync.Mutex
	onOffer     func(sdp string)
	onAnswer    func(sdp string)
	onCandidate func(candidate string)
	held        []domain.SignalMessage

	cleanupOnce sync.Once
	closed      chan struct{}
}

var _ ports.SignalingChannel = (*Channel)(nil)

func (c *Channel) SendOffer(ctx context.Context, sdp string) error {
	return c.send(ctx, domain.SignalMessage{Kind: domain.SignalOffer, SDP: sdp})
}

func (c *Channel) SendAnswer(ctx context.Context, sdp string) error {
	return c.send(ctx, domain.SignalMessage{Kind: domain.SignalAnswer, SDP: sdp})
}

func (c *Channel) SendICECandidate(ctx context.Context, candidate string) error {
	return c.send(ctx, domain.SignalMessage{Kind: domain.SignalICECandidate, Candidate: candidate})
}

func (c *Channel) send(ctx context.Context, msg domain.SignalMessage) error {
	select {
	case <-c.closed:
		return domain.ErrSignalingUnavailable
	default:
	}

	msg.SessionID = c.session.ID
	msg.From = c.session.LocalParticipant
	msg.To = c.session.RemoteParticipant

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetWriteDeadline(deadline)
	} else {
		c.conn.SetWriteDeadline(time.Now().Add(dialTimeout))
	}
	if err := c.conn.WriteJSON(&msg); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSignalingUnavailable, err)
	}
	return nil
}

func (c *Channel) OnRemoteOffer(fn func(sdp string)) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onOffer = fn
	c.replayHeldLocked()
}

func (c *Channel) OnRemoteAnswer(fn func(sdp string)) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onAnswer = fn
	c.replayHeldLocked()
}

func (c *Channel) OnRemoteICECandidate(fn func(candidate string)) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onCandidate = fn
	c.replayHeldLocked()
}

func (c *Channel) readLoop() {
	for {
		var msg domain.SignalMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			select {
			case <-c.closed:
			default:
				c.logger.Debugw("signaling read loop ended", "session_id", c.session.ID, "error", err)
			}
			return
		}
		c.dispatch(&msg)
	}
}

// dispatch runs under cbMu so delivery and callback registration are
// serialized: a message can never slip past a replay in progress.
func (c *Channel) dispatch(msg *domain.SignalMessage) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.deliverLocked(msg)
}

func (c *Channel) deliverLocked(msg *domain.SignalMessage) {
	switch msg.Kind {
	case domain.SignalOffer:
		if c.onOffer == nil {
			c.held = append(c.held, *msg)
			return
		}
		c.onOffer(msg.SDP)
	case domain.SignalAnswer:
		if c.onAnswer == nil {
			c.held = append(c.held, *msg)
			return
		}
		c.onAnswer(msg.SDP)
	case domain.SignalICECandidate:
		if c.onCandidate == nil {
			c.held = append(c.held, *msg)
			return
		}
		c.onCandidate(msg.Candidate)
	default:
		// Relay control messages (errors, acks) are logged, not dispatched.
		c.logger.Debugw("ignoring signal message", "type", msg.Kind)
	}
}

// replayHeldLocked re-delivers held messages in arrival order. Messages
// whose callback is still unregistered are held again.
func (c *Channel) replayHeldLocked() {
	held := c.held
	c.held = nil
	for i := range held {
		c.deliverLocked(&held[i])
	}
}

// Cleanup closes the subscription. Idempotent: safe to call from both
// the normal teardown path and an error path.
func (c *Channel) Cleanup() error {
	c.cleanupOnce.Do(func() {
		close(c.closed)
		c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.conn.Close()
	})
	return nil
}
