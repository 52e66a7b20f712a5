package edmi

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// SessionState tracks the authentication lifecycle of one serial
// conversation with a meter.
type SessionState int32

const (
	Unauthenticated SessionState = iota
	Authenticating
	Authenticated
	SessionFailed
	SessionClosed
)

func (s SessionState) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case SessionFailed:
		return "failed"
	case SessionClosed:
		return "closed"
	}
	return "unknown"
}

// Credentials authenticate one session. Write-once: they are bound at Login
// and reused for every subsequent frame header.
type Credentials struct {
	Username     string
	Password     string
	SerialNumber uint32
}

// Session owns the transport for its whole lifetime and serializes all
// protocol exchanges over it. The protocol has no request ids, so at most
// one request may be in flight; concurrent calls are rejected with ErrBusy
// instead of being interleaved on the wire.
//
// Failed and Closed are terminal: recovering from either requires a new
// session over a fresh transport.
type Session struct {
	transport Transport
	logger    *zap.Logger
	timeout   time.Duration

	mu           sync.Mutex
	state        atomic.Int32
	creds        Credentials
	lastActivity atomic.Int64
	rx           []byte

	// per-session learned FILE_READ limits, see profile.go
	readLimits map[readLimitKey]int
}

// NewSession wraps an open transport. timeout bounds each response wait.
func NewSession(transport Transport, timeout time.Duration, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Session{
		transport:  transport,
		logger:     logger.With(zap.String("component", "session")),
		timeout:    timeout,
		readLimits: map[readLimitKey]int{},
	}
}

// State returns the current session state.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// LastActivity returns the time of the last successful exchange.
func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

func (s *Session) setState(st SessionState) {
	s.state.Store(int32(st))
}

// Login performs the authentication handshake: wake-up preamble followed by
// the login frame. An explicit rejection surfaces as *AuthError, silence as
// ErrTimeout; both leave the session unusable.
func (s *Session) Login(ctx context.Context, creds Credentials) error {
	if !s.mu.TryLock() {
		return ErrBusy
	}
	defer s.mu.Unlock()

	if st := s.State(); st != Unauthenticated {
		return &StateError{Op: "login", State: st}
	}
	s.setState(Authenticating)
	s.creds = creds

	if err := s.transport.Flush(); err != nil {
		s.setState(SessionFailed)
		return err
	}

	payload := make([]byte, 0, len(creds.Username)+len(creds.Password)+2)
	payload = append(payload, creds.Username...)
	payload = append(payload, ',')
	payload = append(payload, creds.Password...)
	payload = append(payload, 0x00)

	frame := BuildFrame(creds.SerialNumber, CmdLogin, ExtNone, payload)
	packet := append(WakeUpSeq(), frame...)

	plain, err := s.exchange(ctx, packet)
	if err != nil {
		s.setState(SessionFailed)
		return err
	}

	// The login answer is a fixed 16-byte frame with the result at the
	// command echo position.
	if len(plain) != 16 {
		s.setState(SessionFailed)
		return &DecodeError{What: fmt.Sprintf("login answer length %d", len(plain))}
	}
	if plain[respResultOffset] != respACK {
		s.setState(SessionFailed)
		return &AuthError{Code: CodeLoginFailed}
	}

	s.setState(Authenticated)
	s.lastActivity.Store(time.Now().UnixNano())
	s.logger.Debug("login ok", zap.Uint32("serial", creds.SerialNumber))
	return nil
}

// Request writes one command frame and waits for its validated response
// frame (STX..ETX, unstuffed, CRC checked). Requires Authenticated state;
// the transport is not touched otherwise.
func (s *Session) Request(ctx context.Context, cmd Command, ext Extension, payload []byte) ([]byte, error) {
	if !s.mu.TryLock() {
		return nil, ErrBusy
	}
	defer s.mu.Unlock()

	if st := s.State(); st != Authenticated {
		return nil, &StateError{Op: "request", State: st}
	}

	frame := BuildFrame(s.creds.SerialNumber, cmd, ext, payload)
	plain, err := s.exchange(ctx, frame)
	if err != nil {
		var te *TransportError
		if errors.As(err, &te) {
			s.setState(SessionFailed)
		}
		return nil, err
	}
	s.lastActivity.Store(time.Now().UnixNano())
	return plain, nil
}

// Close releases the transport. Terminal.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() == SessionClosed {
		return nil
	}
	s.setState(SessionClosed)
	return s.transport.Close()
}

// exchange is the only place retry policy lives: one automatic reissue of
// the identical packet on a timeout or any frame error, then the error is
// surfaced. Transport failures are never retried.
func (s *Session) exchange(ctx context.Context, packet []byte) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		plain, err := s.roundTrip(ctx, packet)
		if err == nil {
			return plain, nil
		}
		lastErr = err
		if !retryable(err) {
			return nil, err
		}
		s.logger.Debug("transient error, retrying once", zap.Error(err))
	}
	return nil, lastErr
}

func (s *Session) roundTrip(ctx context.Context, packet []byte) ([]byte, error) {
	s.logger.Debug("TX", zap.String("hex", fmt.Sprintf("% x", packet)))
	if err := s.transport.Write(packet); err != nil {
		return nil, err
	}
	return s.readResponse(ctx)
}

// readResponse accumulates transport bytes until the codec extracts a
// complete frame, the timeout elapses or the context is cancelled.
func (s *Session) readResponse(ctx context.Context) ([]byte, error) {
	deadline := time.Now().Add(s.timeout)
	s.rx = s.rx[:0]
	buf := make([]byte, 256)

	for {
		raw, consumed, err := ExtractFrame(s.rx)
		if err == nil {
			s.rx = s.rx[consumed:]
			plain, derr := DecodeFrame(raw)
			if derr != nil {
				return nil, derr
			}
			s.logger.Debug("RX", zap.String("hex", fmt.Sprintf("% x", plain)))
			return plain, nil
		}
		// drop any garbage ahead of the next potential frame start
		s.rx = s.rx[consumed:]

		if cerr := ctx.Err(); cerr != nil {
			return nil, cerr
		}
		if time.Now().After(deadline) {
			return nil, ErrTimeout
		}

		n, rerr := s.transport.Read(buf)
		if n > 0 {
			s.rx = append(s.rx, buf[:n]...)
		}
		if rerr != nil {
			if errors.Is(rerr, ErrTimeout) {
				return nil, ErrTimeout
			}
			return nil, rerr
		}
	}
}
