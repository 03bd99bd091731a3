package channel

import (
	"context"
	"net"

	kyberlink "github.com/sage-x-project/kyberlink"
	"github.com/sage-x-project/kyberlink/crypto/keys"
)

// Listener accepts responder-side channel sessions.
type Listener struct {
	ln net.Listener
}

// Listen binds an IPv4 TCP listener on addr.
func Listen(addr string) (*Listener, error) {
	const op = "channel.Listen"

	ln, err := net.Listen("tcp4", addr)
	if err != nil {
		return nil, kyberlink.E(op, kyberlink.KindIO, err)
	}
	return &Listener{ln: ln}, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Accept takes the next TCP connection and runs the responder handshake on
// it. An unauthorized or failed peer terminates only that connection; the
// listener stays usable.
func (l *Listener) Accept(ctx context.Context, kp *keys.KyberKeyPair, opts Opts) (*Session, error) {
	const op = "channel.Accept"

	conn, err := l.ln.Accept()
	if err != nil {
		return nil, kyberlink.E(op, kyberlink.KindIO, err)
	}
	return Respond(ctx, conn, kp, opts)
}

// Close shuts the listener down. Established sessions are unaffected.
func (l *Listener) Close() error {
	const op = "channel.Listener.Close"

	if err := l.ln.Close(); err != nil {
		return kyberlink.E(op, kyberlink.KindIO, err)
	}
	return nil
}
