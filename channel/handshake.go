package channel

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"net"
	"time"

	kyberlink "github.com/sage-x-project/kyberlink"
	"github.com/sage-x-project/kyberlink/crypto/keys"
	"github.com/sage-x-project/kyberlink/internal/metrics"
)

// Opts carries the optional knobs for Dial, Initiate, Accept and Respond.
// The zero value is usable: crypto/rand randomness, trust anchor read from
// the default authorized_keys path, enforcement on.
type Opts struct {
	// Rand is the randomness source for the AKE and record nonces.
	// Defaults to crypto/rand.Reader.
	Rand io.Reader

	// Trust is the responder-side trust anchor. When nil, the default
	// AuthorizedKeys (reading "authorized_keys" from the working directory)
	// is consulted.
	Trust *AuthorizedKeys

	// InsecureSkipVerify disables the responder's trust-anchor check.
	// Initiators never authorize the peer; they inspect Session.PeerKey.
	InsecureSkipVerify bool
}

func (o Opts) rand() io.Reader {
	if o.Rand != nil {
		return o.Rand
	}
	return rand.Reader
}

func (o Opts) trust() *AuthorizedKeys {
	if o.Trust != nil {
		return o.Trust
	}
	return &AuthorizedKeys{}
}

type role int

const (
	roleInitiator role = iota
	roleResponder
)

func (r role) String() string {
	if r == roleResponder {
		return "responder"
	}
	return "initiator"
}

// Initiate runs the initiator side of the handshake on an already-connected
// stream and returns the established Session. On any failure the connection
// is closed and all transient secrets are wiped before the error returns.
func Initiate(ctx context.Context, conn net.Conn, kp *keys.KyberKeyPair, opts Opts) (*Session, error) {
	return handshake(ctx, conn, kp, opts, roleInitiator)
}

// Respond runs the responder side of the handshake. The peer's public key
// is checked against the trust anchor before any AKE work; an unauthorized
// peer is refused with PermissionDenied and the socket is shut down.
func Respond(ctx context.Context, conn net.Conn, kp *keys.KyberKeyPair, opts Opts) (*Session, error) {
	return handshake(ctx, conn, kp, opts, roleResponder)
}

// handshake is the shared AKE driver. The two roles differ only in who
// writes first and in the responder's authorization step.
func handshake(ctx context.Context, conn net.Conn, kp *keys.KyberKeyPair, opts Opts, r role) (sess *Session, err error) {
	const op = "channel.handshake"
	start := time.Now()

	metrics.HandshakesInitiated.WithLabelValues(r.String()).Inc()
	defer func() {
		if err != nil {
			conn.Close()
			metrics.HandshakesCompleted.WithLabelValues("failure").Inc()
		} else {
			metrics.HandshakesCompleted.WithLabelValues("success").Inc()
			metrics.HandshakeDuration.WithLabelValues(r.String()).Observe(time.Since(start).Seconds())
		}
	}()

	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}

	stop := watchContext(ctx, conn)
	defer stop()

	rng := opts.rand()

	// Phase one: raw public key swap.
	var peerPub []byte
	if r == roleInitiator {
		if err := writeAll(conn, kp.PublicBytes()); err != nil {
			return nil, err
		}
		peerPub, err = readExact(conn, keys.PublicKeySize)
		if err != nil {
			return nil, err
		}
	} else {
		peerPub, err = readExact(conn, keys.PublicKeySize)
		if err != nil {
			return nil, err
		}
		if !opts.InsecureSkipVerify && !opts.trust().Authorized(peerPub) {
			metrics.HandshakesRejected.Inc()
			shutdown(conn)
			return nil, kyberlink.Errorf(op, kyberlink.KindPermissionDenied,
				"peer key %s not authorized", keys.Fingerprint(peerPub))
		}
		if err := writeAll(conn, kp.PublicBytes()); err != nil {
			return nil, err
		}
	}

	// Phase two: authenticated key exchange.
	var secret []byte
	if r == roleInitiator {
		var ini *keys.AKEInitiator
		var initMsg []byte
		ini, initMsg, err = keys.NewAKEInitiator(peerPub, rng)
		if err != nil {
			return nil, err
		}
		if err = writeAll(conn, initMsg); err != nil {
			ini.Zeroize()
			return nil, err
		}
		var response []byte
		response, err = readExact(conn, keys.AKEResponseSize)
		if err != nil {
			ini.Zeroize()
			return nil, err
		}
		secret, err = ini.Confirm(response, kp)
		if err != nil {
			ini.Zeroize()
			return nil, err
		}
	} else {
		var initMsg []byte
		initMsg, err = readExact(conn, keys.AKEInitSize)
		if err != nil {
			return nil, err
		}
		var response []byte
		response, secret, err = keys.AKERespond(initMsg, peerPub, kp, rng)
		if err != nil {
			return nil, err
		}
		if err = writeAll(conn, response); err != nil {
			keys.Zeroize(secret)
			return nil, err
		}
	}

	// newSession wipes secret.
	return newSession(conn, peerPub, secret, rng)
}

// watchContext aborts the connection's pending I/O when ctx is cancelled.
// The returned stop function must be called before the connection outlives
// the handshake.
func watchContext(ctx context.Context, conn net.Conn) (stop func()) {
	if ctx == nil || ctx.Done() == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.SetDeadline(time.Now())
		case <-done:
		}
	}()
	return func() { close(done) }
}

// readExact reads exactly n bytes off the stream.
func readExact(conn net.Conn, n int) ([]byte, error) {
	const op = "channel.read"

	buf := make([]byte, n)
	if _, err := io.ReadFull(conn, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, kyberlink.E(op, kyberlink.KindUnexpectedEOF, err)
		}
		return nil, kyberlink.E(op, kyberlink.KindIO, err)
	}
	return buf, nil
}

func writeAll(conn net.Conn, b []byte) error {
	const op = "channel.write"

	if _, err := conn.Write(b); err != nil {
		return kyberlink.E(op, kyberlink.KindIO, err)
	}
	return nil
}

// shutdown half-closes the write side so the refusal is visible to the peer
// before the deferred Close tears the connection down.
func shutdown(conn net.Conn) {
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.CloseWrite()
	}
}
