package channel

import (
	"crypto/rand"
	"encoding/binary"
	"io"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	kyberlink "github.com/sage-x-project/kyberlink"
)

// pipeSessions builds two Sessions sharing one AEAD key over an in-memory
// pipe, standing in for an established handshake.
func pipeSessions(t *testing.T) (*Session, *Session) {
	t.Helper()

	c1, c2 := net.Pipe()
	secret := make([]byte, 32)
	_, err := rand.Read(secret)
	require.NoError(t, err)

	peerPub := make([]byte, 8) // identity is irrelevant to the record layer

	a, err := newSession(c1, peerPub, append([]byte(nil), secret...), rand.Reader)
	require.NoError(t, err)
	b, err := newSession(c2, peerPub, append([]byte(nil), secret...), rand.Reader)
	require.NoError(t, err)

	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a, b
}

func TestSendReceiveRoundTrip(t *testing.T) {
	a, b := pipeSessions(t)

	for _, size := range []int{0, 1, 11, 1024, MaxPlaintext} {
		msg := make([]byte, size)
		_, err := rand.Read(msg)
		require.NoError(t, err)
		want := append([]byte(nil), msg...)

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, a.Send(msg))
		}()

		got, err := b.Receive()
		require.NoError(t, err)
		require.Equal(t, want, got)
		wg.Wait()
	}
}

func TestSendWipesPlaintext(t *testing.T) {
	a, b := pipeSessions(t)

	msg := []byte("wipe me after sealing")
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = b.Receive()
	}()

	require.NoError(t, a.Send(msg))
	require.Equal(t, make([]byte, len(msg)), msg)
	<-done
}

func TestSendOverlongPayload(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c2.Close()

	var wrote bool
	conn := &writeProbe{Conn: c1, wrote: &wrote}

	secret := make([]byte, 32)
	s, err := newSession(conn, nil, secret, rand.Reader)
	require.NoError(t, err)

	err = s.Send(make([]byte, MaxPlaintext+1))
	require.ErrorIs(t, err, kyberlink.KindInvalidArgument)
	require.False(t, wrote, "no bytes may reach the socket")
}

type writeProbe struct {
	net.Conn
	wrote *bool
}

func (w *writeProbe) Write(b []byte) (int, error) {
	*w.wrote = true
	return w.Conn.Write(b)
}

func TestTamperedRecordFails(t *testing.T) {
	a, _ := pipeSessions(t)

	rec, err := a.Encrypt([]byte("payload under test, long enough to tamper with"))
	require.NoError(t, err)

	// Flip one byte in the nonce, the ciphertext, and the tag regions.
	for _, idx := range []int{lenPrefixSize, lenPrefixSize + 15, len(rec) - 1} {
		mutated := append([]byte(nil), rec...)
		mutated[idx] = ^mutated[idx]

		_, err := a.Decrypt(mutated)
		require.ErrorIs(t, err, kyberlink.KindInvalidData, "byte %d", idx)
	}

	// Untouched record still opens.
	pt, err := a.Decrypt(rec)
	require.NoError(t, err)
	require.NotEmpty(t, pt)
}

func TestReceiveRejectsBadFrames(t *testing.T) {
	t.Run("oversize length", func(t *testing.T) {
		a, b := pipeSessions(t)
		go func() {
			var prefix [lenPrefixSize]byte
			binary.BigEndian.PutUint32(prefix[:], MaxRecord+1)
			_, _ = rawConn(a).Write(prefix[:])
		}()

		_, err := b.Receive()
		require.ErrorIs(t, err, kyberlink.KindInvalidData)
	})

	t.Run("undersize length", func(t *testing.T) {
		a, b := pipeSessions(t)
		go func() {
			var prefix [lenPrefixSize]byte
			binary.BigEndian.PutUint32(prefix[:], nonceSize-1)
			_, _ = rawConn(a).Write(prefix[:])
		}()

		_, err := b.Receive()
		require.ErrorIs(t, err, kyberlink.KindInvalidData)
	})

	t.Run("truncated record", func(t *testing.T) {
		a, b := pipeSessions(t)
		go func() {
			var prefix [lenPrefixSize]byte
			binary.BigEndian.PutUint32(prefix[:], 100)
			_, _ = rawConn(a).Write(prefix[:])
			_, _ = rawConn(a).Write(make([]byte, 10))
			rawConn(a).Close()
		}()

		_, err := b.Receive()
		require.ErrorIs(t, err, kyberlink.KindUnexpectedEOF)
	})

	t.Run("clean close", func(t *testing.T) {
		a, b := pipeSessions(t)
		rawConn(a).Close()

		_, err := b.Receive()
		require.ErrorIs(t, err, kyberlink.KindIO)
		require.ErrorIs(t, err, io.EOF)
	})
}

func rawConn(s *Session) net.Conn { return s.conn }

func TestCloseIsIdempotentAndWipesKey(t *testing.T) {
	a, _ := pipeSessions(t)

	require.NoError(t, a.Close())
	require.Equal(t, make([]byte, len(a.key)), a.key[:])
	require.NoError(t, a.Close())

	err := a.Send([]byte("after close"))
	require.ErrorIs(t, err, kyberlink.KindInvalidArgument)
}

func TestPeerAccessors(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c2.Close()

	peerPub := []byte{0xde, 0xad, 0xbe, 0xef}
	s, err := newSession(c1, peerPub, make([]byte, 32), rand.Reader)
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, peerPub, s.PeerKey())
	require.Equal(t, "deadbeef", s.PeerKeyHex())
	require.NotEmpty(t, s.ID())

	// PeerKey returns a copy; mutating it does not affect the session.
	s.PeerKey()[0] = 0
	require.Equal(t, peerPub, s.PeerKey())
}
