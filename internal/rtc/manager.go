// Package rtc drives one peer-to-peer media link per session: offer/answer
// exchange through the signaling mailboxes, streamed candidate handling with
// ordered flush, and the soft-restart / hard-reset recovery ladder.
package rtc

import (
	"context"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/Mayankdaya/CodeClash-sub000/config"
	pkgErr "github.com/Mayankdaya/CodeClash-sub000/internal/errors"
	"github.com/Mayankdaya/CodeClash-sub000/internal/models"
	"github.com/Mayankdaya/CodeClash-sub000/internal/repository"
	"github.com/Mayankdaya/CodeClash-sub000/pkg/logger"
	"github.com/Mayankdaya/CodeClash-sub000/pkg/retry"
)

type eventKind int

const (
	evRemoteRecord eventKind = iota
	evRemoteCandidate
	evLocalCandidate
	evConnState
	evRetry
)

// genAny marks events that stay valid across connection rebuilds (store
// subscriptions, manual retries). Connection callbacks carry the generation
// they were registered under and are dropped after a reset.
const genAny uint64 = 0

type event struct {
	gen       uint64
	kind      eventKind
	rec       *models.SignalingRecord
	cand      models.CandidateDescriptor
	connState webrtc.PeerConnectionState
}

// Manager owns the peer link of one local participant in one session. All
// negotiation state is confined to the Run loop; external callers only read
// State, read the aggregate stream, and request retries or Close.
type Manager struct {
	signals repository.SignalRepository
	media   MediaProvider
	agg     *Aggregator
	cfg     config.RtcConfig
	l       logger.Logger

	sessionID string
	selfID    string
	peerID    string

	factory connFactory

	events    chan event
	done      chan struct{}
	closeOnce sync.Once

	stateMu sync.Mutex
	state   ConnectionState

	// Loop-owned negotiation state.
	gen        uint64
	conn       mediaConn
	buf        candidateBuffer
	lastRemote string
	restarts   *retry.Supervisor
	hardResets int
}

func NewManager(
	signals repository.SignalRepository,
	media MediaProvider,
	cfg config.RtcConfig,
	l logger.Logger,
	sessionID, selfID, peerID string,
) *Manager {
	return &Manager{
		signals:   signals,
		media:     media,
		agg:       NewAggregator(),
		cfg:       cfg,
		l:         l,
		sessionID: sessionID,
		selfID:    selfID,
		peerID:    peerID,
		factory:   pionFactory(cfg),
		events:    make(chan event, 256),
		done:      make(chan struct{}),
		gen:       1,
		state:     StateIdle,
		restarts:  retry.NewSupervisor(retry.Policy{MaxAttempts: cfg.SoftRestartLimit, Delay: cfg.RestartDelay}),
	}
}

// initiator reports whether this side drives the offer. Both peers compute
// the same answer from the two user ids alone.
func (m *Manager) initiator() bool {
	return m.selfID < m.peerID
}

func (m *Manager) State() ConnectionState {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.state
}

func (m *Manager) setState(s ConnectionState) {
	m.stateMu.Lock()
	m.state = s
	m.stateMu.Unlock()
}

// RemoteStream returns the aggregate remote stream, nil before the first
// track arrives.
func (m *Manager) RemoteStream() *Stream {
	return m.agg.Current()
}

// RequestRetry triggers a reconnection attempt on the user's behalf. It
// shares the automatic soft-restart budget, so manual retries cannot bypass
// the hard-reset threshold.
func (m *Manager) RequestRetry() error {
	select {
	case <-m.done:
		return pkgErr.ErrManagerClosed
	default:
	}
	select {
	case m.events <- event{gen: genAny, kind: evRetry}:
		return nil
	case <-m.done:
		return pkgErr.ErrManagerClosed
	}
}

// Close tears the link down: connection destroyed, media released, own
// signaling record deleted. Idempotent.
func (m *Manager) Close() {
	m.closeOnce.Do(func() { close(m.done) })
}

func (m *Manager) post(ev event) {
	select {
	case m.events <- ev:
	case <-m.done:
	}
}

// Run establishes the link and processes negotiation events until the
// context ends, Close is called, or connectivity is lost beyond recovery.
func (m *Manager) Run(ctx context.Context) error {
	records, cancelRecords, err := m.signals.WatchRecord(ctx, m.sessionID, m.peerID)
	if err != nil {
		return err
	}
	defer cancelRecords()

	cands, cancelCands, err := m.signals.WatchCandidates(ctx, m.sessionID, m.peerID)
	if err != nil {
		return err
	}
	defer cancelCands()

	go func() {
		for rec := range records {
			m.post(event{gen: genAny, kind: evRemoteRecord, rec: rec})
		}
	}()
	go func() {
		for cand := range cands {
			m.post(event{gen: genAny, kind: evRemoteCandidate, cand: cand})
		}
	}()

	if err := m.establish(ctx); err != nil {
		m.teardown()
		return err
	}

	for {
		select {
		case <-ctx.Done():
			m.teardown()
			return ctx.Err()
		case <-m.done:
			m.teardown()
			return nil
		case ev := <-m.events:
			if ev.gen != genAny && ev.gen != m.gen {
				continue
			}
			if err := m.handle(ctx, ev); err != nil {
				m.teardown()
				return err
			}
		}
	}
}

// establish builds a fresh connection from Idle: media, callbacks, local
// tracks, and the role-dependent first move.
func (m *Manager) establish(ctx context.Context) error {
	m.setState(StateAcquiringMedia)

	tracks, err := m.media.AcquireTracks(ctx)
	if err != nil {
		// Media is best-effort; signaling must not block on it.
		m.l.Warnf(ctx, "rtc.Manager.establish: local media unavailable: %v", err)
		tracks = nil
	}

	conn, err := m.factory()
	if err != nil {
		return err
	}
	m.conn = conn
	m.buf.reset()
	m.lastRemote = ""

	gen := m.gen
	conn.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		m.post(event{gen: gen, kind: evLocalCandidate, cand: c.ToJSON()})
	})
	conn.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		m.post(event{gen: gen, kind: evConnState, connState: s})
	})
	conn.OnTrack(func(t *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		m.agg.Accept(t)
	})

	for _, track := range tracks {
		if _, err := conn.AddTrack(track); err != nil {
			m.l.Warnf(ctx, "rtc.Manager.establish: add local track: %v", err)
		}
	}

	if m.initiator() {
		if err := m.sendOffer(ctx, false); err != nil {
			return err
		}
		m.setState(StateOfferSent)
		return nil
	}
	m.setState(StateAwaitingRemoteOffer)
	return nil
}

// sendOffer publishes a full overwrite of our record's offer field.
func (m *Manager) sendOffer(ctx context.Context, restart bool) error {
	var opts *webrtc.OfferOptions
	if restart {
		opts = &webrtc.OfferOptions{ICERestart: true}
	}

	offer, err := m.conn.CreateOffer(opts)
	if err != nil {
		return err
	}
	if err := m.conn.SetLocalDescription(offer); err != nil {
		return err
	}
	return m.signals.PublishOffer(ctx, m.sessionID, m.selfID, offer)
}

func (m *Manager) handle(ctx context.Context, ev event) error {
	switch ev.kind {
	case evRemoteRecord:
		return m.onRemoteRecord(ctx, ev.rec)

	case evRemoteCandidate:
		for _, c := range m.buf.submit(ev.cand) {
			if err := m.conn.AddICECandidate(c); err != nil {
				m.l.Warnf(ctx, "rtc.Manager.handle: remote candidate: %v", err)
			}
		}
		return nil

	case evLocalCandidate:
		if err := m.signals.AppendCandidate(ctx, m.sessionID, m.selfID, ev.cand); err != nil {
			// One lost candidate is survivable; the rest of the batch may
			// still connect.
			m.l.Warnf(ctx, "rtc.Manager.handle: publish candidate: %v", err)
		}
		return nil

	case evConnState:
		return m.onConnState(ctx, ev.connState)

	case evRetry:
		return m.softRestart(ctx)
	}
	return nil
}

func (m *Manager) onRemoteRecord(ctx context.Context, rec *models.SignalingRecord) error {
	if rec == nil {
		// Peer deleted its record (teardown or hard reset on its side).
		// A fresh description arrives if it comes back.
		return nil
	}

	if m.initiator() {
		if rec.Answer == nil || rec.Answer.SDP == m.lastRemote {
			return nil
		}
		if err := m.applyRemote(ctx, *rec.Answer); err != nil {
			m.l.Errorf(ctx, "rtc.Manager.onRemoteRecord: apply answer: %v", err)
			return nil
		}
		m.setState(StateNegotiating)
		return nil
	}

	if rec.Offer == nil || rec.Offer.SDP == m.lastRemote {
		return nil
	}
	if err := m.applyRemote(ctx, *rec.Offer); err != nil {
		m.l.Errorf(ctx, "rtc.Manager.onRemoteRecord: apply offer: %v", err)
		return nil
	}

	answer, err := m.conn.CreateAnswer(nil)
	if err != nil {
		m.l.Errorf(ctx, "rtc.Manager.onRemoteRecord: create answer: %v", err)
		return nil
	}
	if err := m.conn.SetLocalDescription(answer); err != nil {
		m.l.Errorf(ctx, "rtc.Manager.onRemoteRecord: set local answer: %v", err)
		return nil
	}
	if err := m.signals.PublishAnswer(ctx, m.sessionID, m.selfID, answer); err != nil {
		return err
	}
	m.setState(StateAnswerSent)
	return nil
}

// applyRemote sets the remote description and flushes any candidates that
// arrived ahead of it, in their original order.
func (m *Manager) applyRemote(ctx context.Context, sdp webrtc.SessionDescription) error {
	if err := m.conn.SetRemoteDescription(sdp); err != nil {
		return err
	}
	m.lastRemote = sdp.SDP

	for _, c := range m.buf.flush() {
		if err := m.conn.AddICECandidate(c); err != nil {
			m.l.Warnf(ctx, "rtc.Manager.applyRemote: buffered candidate: %v", err)
		}
	}
	return nil
}

func (m *Manager) onConnState(ctx context.Context, s webrtc.PeerConnectionState) error {
	switch s {
	case webrtc.PeerConnectionStateConnected:
		m.setState(StateConnected)
		m.restarts.Reset()

	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateDisconnected:
		m.setState(StateReconnecting)
		m.scheduleRetry()
	}
	return nil
}

// scheduleRetry arms a generation-bound timer so a reset that happens while
// the timer is pending invalidates it.
func (m *Manager) scheduleRetry() {
	gen := m.gen
	time.AfterFunc(m.cfg.RestartDelay, func() {
		m.post(event{gen: gen, kind: evRetry})
	})
}

// softRestart performs one ICE-restart attempt, or escalates to a hard
// reset when the budget is spent.
func (m *Manager) softRestart(ctx context.Context) error {
	if m.State() == StateConnected {
		// Recovered while the retry was pending.
		return nil
	}

	if !m.restarts.Allow() {
		return m.hardReset(ctx)
	}
	m.setState(StateReconnecting)

	if m.initiator() {
		m.l.Infof(ctx, "rtc.Manager.softRestart: attempt %d for session %s", m.restarts.Attempts(), m.sessionID)
		if err := m.sendOffer(ctx, true); err != nil {
			m.l.Errorf(ctx, "rtc.Manager.softRestart: %v", err)
		}
	}
	// The responder's attempt is passive: the restart offer arrives on the
	// record watch. Either way, arm the next check so a silent failure
	// still walks the ladder.
	m.scheduleRetry()
	return nil
}

// hardReset destroys the connection and rebuilds from Idle: media stopped,
// own signaling record deleted, fresh restart budget. A second exhaustion
// after the rebuild is terminal.
func (m *Manager) hardReset(ctx context.Context) error {
	if m.hardResets >= 1 {
		m.setState(StateClosed)
		return pkgErr.ErrConnectivityLost
	}
	m.hardResets++
	m.l.Warnf(ctx, "rtc.Manager.hardReset: restart budget exhausted for session %s, rebuilding", m.sessionID)

	m.gen++
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.media.Release()
	m.agg.Reset()

	if err := m.signals.DeleteRecord(ctx, m.sessionID, m.selfID); err != nil {
		m.l.Warnf(ctx, "rtc.Manager.hardReset: delete signaling record: %v", err)
	}

	m.restarts = retry.NewSupervisor(retry.Policy{MaxAttempts: m.cfg.SoftRestartLimit, Delay: m.cfg.RestartDelay})
	m.setState(StateIdle)

	return m.establish(ctx)
}

// teardown releases everything the manager owns. Runs once, at the end of
// the Run loop, under a fresh context so cancellation cannot strand keys.
func (m *Manager) teardown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	m.gen++
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.media.Release()

	if err := m.signals.DeleteRecord(ctx, m.sessionID, m.selfID); err != nil {
		m.l.Warnf(ctx, "rtc.Manager.teardown: delete signaling record: %v", err)
	}
	m.setState(StateClosed)
}
