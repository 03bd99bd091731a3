package channel

import (
	"context"
	"net"

	kyberlink "github.com/sage-x-project/kyberlink"
	"github.com/sage-x-project/kyberlink/crypto/keys"
)

// Dial connects to addr over IPv4 TCP and runs the initiator handshake.
// The initiator does not authorize the responder; callers that care about
// the peer's identity inspect Session.PeerKey after the handshake.
func Dial(ctx context.Context, addr string, kp *keys.KyberKeyPair, opts Opts) (*Session, error) {
	const op = "channel.Dial"

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp4", addr)
	if err != nil {
		return nil, kyberlink.E(op, kyberlink.KindIO, err)
	}
	return Initiate(ctx, conn, kp, opts)
}
