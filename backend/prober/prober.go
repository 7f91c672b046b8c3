// Package prober implements the SLP wire exchange and its per-address
// retry/backoff policy, per spec.md §4.2.
package prober

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"mcslp/backend/address"
	"mcslp/backend/protocol"
)

// Kind tags a probe's terminal outcome.
type Kind int

const (
	// NoResponse: connect failed, reset, or timed out with no usable bytes.
	NoResponse Kind = iota
	// Malformed: bytes received but no JSON object could be parsed.
	Malformed
	// ServerFound: JSON parsed successfully.
	ServerFound
)

// Outcome is the terminal result of one probe attempt chain.
type Outcome struct {
	Kind           Kind
	Status         protocol.RawStatus
	ResponseTimeMs int64
	Attempts       int
}

// Prober opens the TCP connection, performs the handshake and status
// request, and classifies the response, per the CONNECTING -> WRITING
// -> READING -> PARSING -> DONE state machine in §4.2.
type Prober struct {
	Port       int
	Timeout    time.Duration
	MaxRetries int
	Framing    protocol.Framing
	Logger     *logrus.Logger
}

// New builds a Prober with the given port, per-attempt timeout, retry
// budget and handshake framing mode.
func New(port int, timeout time.Duration, maxRetries int, framing protocol.Framing, logger *logrus.Logger) *Prober {
	if logger == nil {
		logger = logrus.New()
	}
	return &Prober{Port: port, Timeout: timeout, MaxRetries: maxRetries, Framing: framing, Logger: logger}
}

// malformedSentinel marks an attempt result that must not be retried —
// retrying a parse failure rarely helps and wastes the retry budget.
type malformedSentinel struct{ outcome Outcome }

func (malformedSentinel) Error() string { return "protocol: malformed, not retrying" }

// ProbeWithRetry runs the attempt chain for addr, retrying NoResponse
// outcomes with a 500*(attempt+1)ms backoff (via backoff/v4's Retry,
// driven by a custom linear BackOff rather than a hand-rolled loop) up
// to MaxRetries attempts. onAttemptFailed is invoked after every
// NoResponse attempt (not after a Malformed one, which ends the chain)
// so the caller (which owns the blacklist) can record it; the
// caller decides blacklist admission once attempts == MaxRetries.
func (p *Prober) ProbeWithRetry(ctx context.Context, addr address.Address, onAttemptFailed func(attempt int)) Outcome {
	attempts := 0
	var last Outcome

	operation := func() error {
		attempts++
		last = p.attempt(ctx, addr)
		if last.Kind == Malformed {
			return backoff.Permanent(malformedSentinel{outcome: last})
		}
		if last.Kind == ServerFound {
			return nil
		}
		if onAttemptFailed != nil {
			onAttemptFailed(attempts)
		}
		return errNoResponseRetry
	}

	bo := &linearBackoff{}
	maxRetries := p.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}
	wrapped := backoff.WithMaxRetries(bo, uint64(maxRetries-1))
	wrapped = backoff.WithContext(wrapped, ctx)

	_ = backoff.Retry(operation, wrapped)
	last.Attempts = attempts
	return last
}

var errNoResponseRetry = &retryableError{"no response"}

type retryableError struct{ msg string }

func (e *retryableError) Error() string { return e.msg }

// linearBackoff implements the spec's 500*(attempt+1)ms retry schedule
// as a backoff.BackOff, rather than a hand-rolled sleep loop.
type linearBackoff struct {
	attempt int
}

func (b *linearBackoff) NextBackOff() time.Duration {
	d := time.Duration(500*(b.attempt+1)) * time.Millisecond
	b.attempt++
	return d
}

func (b *linearBackoff) Reset() { b.attempt = 0 }

// attempt performs exactly one CONNECTING->...->DONE pass.
func (p *Prober) attempt(ctx context.Context, addr address.Address) Outcome {
	start := time.Now()
	raddr := net.JoinHostPort(addr.String(), strconv.Itoa(p.Port))

	dialer := net.Dialer{Timeout: p.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", raddr)
	if err != nil {
		return Outcome{Kind: NoResponse, ResponseTimeMs: time.Since(start).Milliseconds()}
	}
	defer conn.Close()

	deadline := start.Add(p.Timeout)
	_ = conn.SetDeadline(deadline)

	handshake := protocol.BuildHandshake(addr.String(), uint16(p.Port), p.Framing)
	if _, err := conn.Write(handshake); err != nil {
		return Outcome{Kind: NoResponse, ResponseTimeMs: time.Since(start).Milliseconds()}
	}
	if _, err := conn.Write(protocol.BuildStatusRequest()); err != nil {
		return Outcome{Kind: NoResponse, ResponseTimeMs: time.Since(start).Milliseconds()}
	}

	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for {
		n, err := conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			break // peer closed, reset, or deadline exceeded
		}
	}

	elapsed := time.Since(start).Milliseconds()
	status, perr := protocol.ParseResponse(buf)
	switch perr {
	case nil:
		return Outcome{Kind: ServerFound, Status: status, ResponseTimeMs: elapsed}
	case protocol.ErrNoResponse:
		return Outcome{Kind: NoResponse, ResponseTimeMs: elapsed}
	default:
		return Outcome{Kind: Malformed, ResponseTimeMs: elapsed}
	}
}
