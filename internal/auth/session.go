package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
)

// initialNonce is the first login nonce. Starting well above zero keeps
// the nonce sequence distinct from request counters on the venue side.
const initialNonce = 3000

// Status is the login state of a websocket session.
type Status int

const (
	// StatusUnauthenticated means no login has been attempted or the
	// last session was invalidated.
	StatusUnauthenticated Status = iota
	// StatusPending means a login request was sent and no result has
	// arrived yet.
	StatusPending
	// StatusAuthenticated means the venue confirmed the login.
	StatusAuthenticated
)

func (s Status) String() string {
	switch s {
	case StatusUnauthenticated:
		return "unauthenticated"
	case StatusPending:
		return "pending"
	case StatusAuthenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// DecodeSecret decodes the base64 private key into raw HMAC secret bytes.
func DecodeSecret(privateKey string) ([]byte, error) {
	secret, err := base64.StdEncoding.DecodeString(privateKey)
	if err != nil {
		return nil, fmt.Errorf("decoding private key: %w", err)
	}
	if len(secret) == 0 {
		return nil, fmt.Errorf("private key decodes to empty secret")
	}
	return secret, nil
}

// Signer signs venue requests with an API key pair.
type Signer struct {
	publicKey string
	secret    []byte
}

// NewSigner creates a signer from the public key and the base64 private
// key.
func NewSigner(publicKey, privateKey string) (*Signer, error) {
	if publicKey == "" {
		return nil, fmt.Errorf("public key is empty")
	}
	secret, err := DecodeSecret(privateKey)
	if err != nil {
		return nil, err
	}
	return &Signer{publicKey: publicKey, secret: secret}, nil
}

// PublicKey returns the public API key.
func (s *Signer) PublicKey() string {
	return s.publicKey
}

// SignNonce produces the base64 login signature over publicKey+nonce.
func (s *Signer) SignNonce(nonce int64) string {
	return s.sign(s.publicKey + strconv.FormatInt(nonce, 10))
}

// SignTimestamp produces the base64 REST signature over
// publicKey+timestampMs.
func (s *Signer) SignTimestamp(timestampMs int64) string {
	return s.sign(s.publicKey + strconv.FormatInt(timestampMs, 10))
}

func (s *Signer) sign(payload string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// LoginRequest is the signed websocket login payload.
type LoginRequest struct {
	PublicKey string
	Nonce     int64
	Signature string
}

// Session tracks websocket login state across attempts and reconnects.
type Session struct {
	logger *slog.Logger
	signer *Signer
	nonce  atomic.Int64

	mu     sync.Mutex
	status Status
}

// NewSession creates a session around the signer.
func NewSession(logger *slog.Logger, signer *Signer) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{logger: logger, signer: signer}
	s.nonce.Store(initialNonce)
	return s
}

// NextLogin builds a signed login request with a fresh nonce and moves the
// session to StatusPending. Each call consumes a nonce, so a rejected
// attempt never reuses one.
func (s *Session) NextLogin() LoginRequest {
	nonce := s.nonce.Add(1) - 1

	s.mu.Lock()
	s.status = StatusPending
	s.mu.Unlock()

	return LoginRequest{
		PublicKey: s.signer.PublicKey(),
		Nonce:     nonce,
		Signature: s.signer.SignNonce(nonce),
	}
}

// HandleResult records the venue's answer to the pending login. A
// rejection is not fatal to the connection; the session just stays
// unauthenticated and public channels keep flowing.
func (s *Session) HandleResult(ok bool, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ok {
		s.status = StatusAuthenticated
		s.logger.Info("websocket login accepted")
		return
	}
	s.status = StatusUnauthenticated
	s.logger.Warn("websocket login rejected", "reason", reason)
}

// Invalidate drops the session back to unauthenticated. Called when the
// connection goes down; authentication never survives a reconnect.
func (s *Session) Invalidate() {
	s.mu.Lock()
	s.status = StatusUnauthenticated
	s.mu.Unlock()
}

// Status returns the current login state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}
