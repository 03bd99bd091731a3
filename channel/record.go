package channel

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"io"
	"net"

	"github.com/google/uuid"

	kyberlink "github.com/sage-x-project/kyberlink"
	"github.com/sage-x-project/kyberlink/crypto/keys"
	"github.com/sage-x-project/kyberlink/internal/metrics"
)

const (
	// MaxRecord bounds one record on the wire: nonce, ciphertext and tag.
	MaxRecord = 10_000

	nonceSize     = 12
	tagSize       = 16
	lenPrefixSize = 4

	// MaxPlaintext is the largest payload Send accepts.
	MaxPlaintext = MaxRecord - nonceSize - tagSize
)

// Session is an established secure channel. It exclusively owns its
// transport and the derived AES-256-GCM key; the key is held inline and
// wiped by Close. A Session is only constructed by a successful handshake.
//
// A Session is not safe for concurrent use; one task drives it.
type Session struct {
	conn net.Conn
	aead cipher.AEAD
	rng  io.Reader

	id       string
	key      [keys.SharedSecretSize]byte
	peerPub  []byte
	peerHex  string
	peerAddr net.Addr
	closed   bool
}

// newSession binds an open connection, the peer's proven public key and the
// AKE output into a Session. It wipes the caller's secret slice.
func newSession(conn net.Conn, peerPub, secret []byte, rng io.Reader) (*Session, error) {
	const op = "channel.newSession"
	defer keys.Zeroize(secret)

	if len(secret) != keys.SharedSecretSize {
		return nil, kyberlink.Errorf(op, kyberlink.KindInvalidArgument,
			"shared secret is %d bytes, want %d", len(secret), keys.SharedSecretSize)
	}

	if rng == nil {
		rng = rand.Reader
	}
	s := &Session{
		conn:     conn,
		rng:      rng,
		id:       uuid.NewString(),
		peerPub:  append([]byte(nil), peerPub...),
		peerHex:  hex.EncodeToString(peerPub),
		peerAddr: conn.RemoteAddr(),
	}
	copy(s.key[:], secret)

	block, err := aes.NewCipher(s.key[:])
	if err != nil {
		s.zeroize()
		return nil, kyberlink.E(op, kyberlink.KindInvalidData, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		s.zeroize()
		return nil, kyberlink.E(op, kyberlink.KindInvalidData, err)
	}
	s.aead = aead
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// PeerAddr returns the peer's network address.
func (s *Session) PeerAddr() net.Addr { return s.peerAddr }

// PeerKey returns a copy of the raw public key the peer transmitted and
// proved possession of.
func (s *Session) PeerKey() []byte { return append([]byte(nil), s.peerPub...) }

// PeerKeyHex returns the peer public key as lowercase hex.
func (s *Session) PeerKeyHex() string { return s.peerHex }

// Send seals pt under the session key and writes it as one record:
// a 4-byte big-endian length, then nonce plus ciphertext and tag. The
// caller's plaintext buffer is zeroed after sealing.
func (s *Session) Send(pt []byte) error {
	const op = "channel.Send"

	if len(pt) > MaxPlaintext {
		return kyberlink.Errorf(op, kyberlink.KindInvalidArgument,
			"payload is %d bytes, limit %d", len(pt), MaxPlaintext)
	}
	rec, err := s.seal(op, pt)
	if err != nil {
		return err
	}
	if _, err := s.conn.Write(rec); err != nil {
		metrics.RecordErrors.WithLabelValues("write").Inc()
		return kyberlink.E(op, kyberlink.KindIO, err)
	}
	metrics.RecordsSent.Inc()
	metrics.RecordBytesSent.Add(float64(len(rec)))
	return nil
}

// Receive reads one record, verifies it, and returns the plaintext.
func (s *Session) Receive() ([]byte, error) {
	const op = "channel.Receive"

	var prefix [lenPrefixSize]byte
	if _, err := io.ReadFull(s.conn, prefix[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, kyberlink.E(op, kyberlink.KindUnexpectedEOF, err)
		}
		return nil, kyberlink.E(op, kyberlink.KindIO, err)
	}
	n := binary.BigEndian.Uint32(prefix[:])
	if n < nonceSize || n > MaxRecord {
		metrics.RecordErrors.WithLabelValues("frame").Inc()
		return nil, kyberlink.Errorf(op, kyberlink.KindInvalidData,
			"record length %d outside [%d, %d]", n, nonceSize, MaxRecord)
	}

	rec := make([]byte, n)
	if _, err := io.ReadFull(s.conn, rec); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, kyberlink.E(op, kyberlink.KindUnexpectedEOF, err)
		}
		return nil, kyberlink.E(op, kyberlink.KindIO, err)
	}

	pt, err := s.open(op, rec)
	if err != nil {
		metrics.RecordErrors.WithLabelValues("open").Inc()
		return nil, err
	}
	metrics.RecordsReceived.Inc()
	metrics.RecordBytesReceived.Add(float64(len(rec) + lenPrefixSize))
	return pt, nil
}

// Encrypt seals pt without touching the socket, returning the framed
// record. The caller's plaintext buffer is zeroed after sealing.
func (s *Session) Encrypt(pt []byte) ([]byte, error) {
	const op = "channel.Encrypt"

	if len(pt) > MaxPlaintext {
		return nil, kyberlink.Errorf(op, kyberlink.KindInvalidArgument,
			"payload is %d bytes, limit %d", len(pt), MaxPlaintext)
	}
	return s.seal(op, pt)
}

// Decrypt opens a framed record produced by Encrypt or read off the wire.
func (s *Session) Decrypt(rec []byte) ([]byte, error) {
	const op = "channel.Decrypt"

	if len(rec) < lenPrefixSize {
		return nil, kyberlink.Errorf(op, kyberlink.KindInvalidData, "record shorter than length prefix")
	}
	n := binary.BigEndian.Uint32(rec[:lenPrefixSize])
	body := rec[lenPrefixSize:]
	if n < nonceSize || n > MaxRecord || int(n) != len(body) {
		return nil, kyberlink.Errorf(op, kyberlink.KindInvalidData,
			"record length %d does not match body of %d bytes", n, len(body))
	}
	return s.open(op, body)
}

// seal produces length prefix + nonce + ciphertext and wipes pt.
func (s *Session) seal(op string, pt []byte) ([]byte, error) {
	if s.aead == nil {
		return nil, kyberlink.Errorf(op, kyberlink.KindInvalidArgument, "session closed")
	}
	rec := make([]byte, lenPrefixSize+nonceSize, lenPrefixSize+nonceSize+len(pt)+tagSize)
	if _, err := io.ReadFull(s.rng, rec[lenPrefixSize:lenPrefixSize+nonceSize]); err != nil {
		return nil, kyberlink.E(op, kyberlink.KindIO, err)
	}
	rec = s.aead.Seal(rec, rec[lenPrefixSize:lenPrefixSize+nonceSize], pt, nil)
	binary.BigEndian.PutUint32(rec[:lenPrefixSize], uint32(len(rec)-lenPrefixSize))
	keys.Zeroize(pt)
	return rec, nil
}

// open verifies nonce + ciphertext and returns the plaintext.
func (s *Session) open(op string, body []byte) ([]byte, error) {
	if s.aead == nil {
		return nil, kyberlink.Errorf(op, kyberlink.KindInvalidArgument, "session closed")
	}
	nonce, ct := body[:nonceSize], body[nonceSize:]
	pt, err := s.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, kyberlink.E(op, kyberlink.KindInvalidData, err)
	}
	return pt, nil
}

// Close half-closes and then closes the transport and wipes the session
// key. It is idempotent.
func (s *Session) Close() error {
	const op = "channel.Close"

	if s.closed {
		return nil
	}
	s.closed = true
	s.zeroize()

	if tc, ok := s.conn.(*net.TCPConn); ok {
		_ = tc.CloseWrite()
	}
	if err := s.conn.Close(); err != nil {
		return kyberlink.E(op, kyberlink.KindIO, err)
	}
	return nil
}

func (s *Session) zeroize() {
	keys.Zeroize(s.key[:])
	s.aead = nil
}
