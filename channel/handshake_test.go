package channel

import (
	"context"
	"crypto/rand"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	kyberlink "github.com/sage-x-project/kyberlink"
	"github.com/sage-x-project/kyberlink/crypto/keys"
)

func genKeyPair(t *testing.T) *keys.KyberKeyPair {
	t.Helper()
	kp, err := keys.GenerateKyberKeyPair(rand.Reader)
	require.NoError(t, err)
	return kp
}

// trustFile writes an authorized_keys file listing the given public keys.
func trustFile(t *testing.T, pubs ...[]byte) *AuthorizedKeys {
	t.Helper()
	path := filepath.Join(t.TempDir(), "authorized_keys")
	body := ""
	for _, pub := range pubs {
		body += AuthorizedLine(pub, "test peer") + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return &AuthorizedKeys{Path: path}
}

type handshakeResult struct {
	sess *Session
	err  error
}

func TestHandshakeEstablishesChannel(t *testing.T) {
	kpClient := genKeyPair(t)
	kpServer := genKeyPair(t)
	trust := trustFile(t, kpClient.PublicBytes())

	c1, c2 := net.Pipe()

	responder := make(chan handshakeResult, 1)
	go func() {
		sess, err := Respond(context.Background(), c2, kpServer, Opts{Trust: trust})
		responder <- handshakeResult{sess, err}
	}()

	clientSess, err := Initiate(context.Background(), c1, kpClient, Opts{})
	require.NoError(t, err)
	defer clientSess.Close()

	res := <-responder
	require.NoError(t, res.err)
	serverSess := res.sess
	defer serverSess.Close()

	// Each side holds exactly the public key the peer transmitted.
	require.Equal(t, kpServer.PublicBytes(), clientSess.PeerKey())
	require.Equal(t, kpClient.PublicBytes(), serverSess.PeerKey())

	// Both directions carry traffic.
	go func() {
		_ = serverSess.Send([]byte("from server"))
	}()
	got, err := clientSess.Receive()
	require.NoError(t, err)
	require.Equal(t, []byte("from server"), got)

	go func() {
		_ = clientSess.Send([]byte("from client"))
	}()
	got, err = serverSess.Receive()
	require.NoError(t, err)
	require.Equal(t, []byte("from client"), got)
}

func TestHandshakeSessionKeysAreUnique(t *testing.T) {
	kpClient := genKeyPair(t)
	kpServer := genKeyPair(t)

	establish := func() (*Session, *Session) {
		c1, c2 := net.Pipe()
		responder := make(chan handshakeResult, 1)
		go func() {
			sess, err := Respond(context.Background(), c2, kpServer, Opts{InsecureSkipVerify: true})
			responder <- handshakeResult{sess, err}
		}()
		clientSess, err := Initiate(context.Background(), c1, kpClient, Opts{})
		require.NoError(t, err)
		res := <-responder
		require.NoError(t, res.err)
		return clientSess, res.sess
	}

	a1, b1 := establish()
	a2, b2 := establish()
	defer a1.Close()
	defer b1.Close()
	defer a2.Close()
	defer b2.Close()

	require.Equal(t, a1.key, b1.key)
	require.Equal(t, a2.key, b2.key)
	require.NotEqual(t, a1.key, a2.key)
}

func TestHandshakeRejectsUnauthorizedPeer(t *testing.T) {
	kpClient := genKeyPair(t)
	kpServer := genKeyPair(t)
	trust := trustFile(t) // empty: nobody is authorized

	c1, c2 := net.Pipe()

	responder := make(chan handshakeResult, 1)
	go func() {
		sess, err := Respond(context.Background(), c2, kpServer, Opts{Trust: trust})
		responder <- handshakeResult{sess, err}
	}()

	// The initiator gets as far as sending its own key, then finds the
	// stream closed: the responder never writes its public key, let alone
	// any AKE traffic.
	_, err := Initiate(context.Background(), c1, kpClient, Opts{})
	require.Error(t, err)

	res := <-responder
	require.Nil(t, res.sess)
	require.ErrorIs(t, res.err, kyberlink.KindPermissionDenied)
}

// TestHandshakeDetectsSubstitutedKey swaps the responder's long-term public
// key in transit. Both handshakes complete (the AKE authenticates
// implicitly), but the derived keys disagree and the first record fails
// verification.
func TestHandshakeDetectsSubstitutedKey(t *testing.T) {
	kpClient := genKeyPair(t)
	kpServer := genKeyPair(t)
	kpClaimed := genKeyPair(t) // what the initiator is shown instead

	toMitm, fromClient := net.Pipe()
	toServer, fromMitm := net.Pipe()

	// client <-> fromClient | toMitm ... fromMitm | toServer <-> server
	go func() {
		// Client to server: forwarded verbatim.
		go func() { _, _ = io.Copy(fromMitm, toMitm) }()

		// Server to client: substitute the leading public key.
		serverPub := make([]byte, keys.PublicKeySize)
		if _, err := io.ReadFull(fromMitm, serverPub); err != nil {
			return
		}
		if _, err := toMitm.Write(kpClaimed.PublicBytes()); err != nil {
			return
		}
		_, _ = io.Copy(toMitm, fromMitm)
	}()

	responder := make(chan handshakeResult, 1)
	go func() {
		sess, err := Respond(context.Background(), toServer, kpServer, Opts{InsecureSkipVerify: true})
		responder <- handshakeResult{sess, err}
	}()

	clientSess, err := Initiate(context.Background(), fromClient, kpClient, Opts{})
	require.NoError(t, err)
	defer clientSess.Close()

	res := <-responder
	require.NoError(t, res.err)
	defer res.sess.Close()

	require.NotEqual(t, res.sess.key, clientSess.key)

	go func() {
		_ = res.sess.Send([]byte("greetings"))
	}()
	_, err = clientSess.Receive()
	require.ErrorIs(t, err, kyberlink.KindInvalidData)
}

func TestHandshakeCancelledByContext(t *testing.T) {
	kpClient := genKeyPair(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// Nobody ever reads the other end, so the handshake parks on I/O until
	// the context fires.
	c1, _ := net.Pipe()
	start := time.Now()
	_, err := Initiate(ctx, c1, kpClient, Opts{})
	require.Error(t, err)
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestHandshakeShortRead(t *testing.T) {
	kpClient := genKeyPair(t)

	c1, c2 := net.Pipe()
	go func() {
		// Drain the initiator's public key, answer with a stub, close.
		_, _ = io.ReadFull(c2, make([]byte, keys.PublicKeySize))
		_, _ = c2.Write([]byte("short"))
		c2.Close()
	}()

	_, err := Initiate(context.Background(), c1, kpClient, Opts{})
	require.ErrorIs(t, err, kyberlink.KindUnexpectedEOF)
}
