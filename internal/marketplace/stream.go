package marketplace

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/domain"
)

// StreamSourceID is the source id candidates from the websocket carry.
const StreamSourceID = "market-stream"

// StreamConfig configures websocket stream behavior.
type StreamConfig struct {
	// ReconnectDelay is the initial delay before a reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay caps the exponential backoff.
	MaxReconnectDelay time.Duration
	// PingInterval is the interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is the per-message read deadline.
	ReadTimeout time.Duration
	// WriteTimeout is the per-frame write deadline.
	WriteTimeout time.Duration
}

// DefaultStreamConfig returns default stream configuration.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// Stream consumes the aggregator's websocket event feed and emits
// decoded candidates. The connection self-heals: read errors trigger a
// reconnect with exponential backoff, and the candidate channel stays
// open across reconnects so consumers never notice.
type Stream struct {
	endpoint string
	config   StreamConfig
	logger   zerolog.Logger

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	out  chan domain.Candidate
	done chan struct{}
	wg   sync.WaitGroup
}

// NewStream connects to the endpoint and starts the read and ping
// loops. Candidates arrive on Events until Close is called.
func NewStream(ctx context.Context, endpoint string, config *StreamConfig, logger zerolog.Logger) (*Stream, error) {
	cfg := DefaultStreamConfig()
	if config != nil {
		cfg = *config
	}

	s := &Stream{
		endpoint: endpoint,
		config:   cfg,
		logger:   logger.With().Str("component", "stream").Logger(),
		// Buffer absorbs bursts; the read loop blocks rather than drop.
		out:  make(chan domain.Candidate, 1024),
		done: make(chan struct{}),
	}

	if err := s.connect(ctx); err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go s.readLoop()

	s.wg.Add(1)
	go s.pingLoop()

	return s, nil
}

// Events returns the candidate channel. It closes only after Close.
func (s *Stream) Events() <-chan domain.Candidate { return s.out }

func (s *Stream) connect(ctx context.Context) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	s.conn = conn
	return nil
}

// Close shuts the stream down and closes the candidate channel.
func (s *Stream) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	close(s.done)

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.conn.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()
	close(s.out)
	return nil
}

func (s *Stream) readLoop() {
	defer s.wg.Done()

	reconnectDelay := s.config.ReconnectDelay

	for !s.closed.Load() {
		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()

		// A nil conn means the previous dial failed or the connection
		// was dropped; the redial happens here, so a failed reconnect
		// attempt never strands the stream.
		if conn == nil {
			if !s.reconnect(reconnectDelay) {
				return
			}
			reconnectDelay *= 2
			if reconnectDelay > s.config.MaxReconnectDelay {
				reconnectDelay = s.config.MaxReconnectDelay
			}
			continue
		}

		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if s.closed.Load() {
				return
			}
			s.logger.Warn().Err(err).Dur("retry_in", reconnectDelay).Msg("stream read failed, reconnecting")
			s.dropConn()
			continue
		}

		reconnectDelay = s.config.ReconnectDelay
		s.handleMessage(message)
	}
}

// dropConn closes and clears the connection so the read loop redials.
func (s *Stream) dropConn() {
	s.connMu.Lock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.connMu.Unlock()
}

// reconnect waits out the backoff and dials once. Returns false only
// when the stream is closing; a failed dial leaves conn nil so the
// read loop tries again with a longer delay.
func (s *Stream) reconnect(delay time.Duration) bool {
	if !s.sleep(delay) {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.connect(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("reconnect failed, will retry")
		return !s.closed.Load()
	}
	s.logger.Info().Msg("stream reconnected")
	return true
}

func (s *Stream) handleMessage(message []byte) {
	c, err := ParseCandidate(message, StreamSourceID)
	if err != nil {
		s.logger.Warn().Err(err).Msg("malformed stream event dropped")
		return
	}

	// Block until the consumer catches up; never drop a decoded event.
	select {
	case s.out <- c:
	case <-s.done:
	}
}

func (s *Stream) pingLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.connMu.Lock()
			if s.conn != nil {
				s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
				if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					// Reader sees the dead connection and reconnects.
					s.logger.Debug().Err(err).Msg("ping failed")
				}
			}
			s.connMu.Unlock()
		}
	}
}

func (s *Stream) sleep(d time.Duration) bool {
	select {
	case <-s.done:
		return false
	case <-time.After(d):
		return true
	}
}
