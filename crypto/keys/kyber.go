package keys

import (
	"crypto/subtle"
	"encoding/hex"
	"io"

	kyber "gitlab.com/yawning/kyber.git"
	"golang.org/x/crypto/sha3"

	kyberlink "github.com/sage-x-project/kyberlink"
)

// paramSet is the single Kyber parameter set the library speaks. Both ends
// of a channel must agree on it; the wire protocol has no negotiation.
var paramSet = kyber.Kyber768

// Sizes of the fixed-width fields exchanged during the handshake, in bytes.
var (
	PublicKeySize   = paramSet.PublicKeySize()
	PrivateKeySize  = paramSet.PrivateKeySize()
	CipherTextSize  = paramSet.CipherTextSize()
	AKEInitSize     = paramSet.AKEInitiatorMessageSize()
	AKEResponseSize = paramSet.AKEResponderMessageSize()
)

// SharedSecretSize is the size of the AKE output, which is used directly as
// the AES-256-GCM session key.
const SharedSecretSize = kyber.SymSize

// KyberKeyPair holds a long-term Kyber key pair. The private half is kept
// only as raw bytes plus the parsed form the KEM needs; Zeroize wipes the
// raw bytes.
type KyberKeyPair struct {
	public  *kyber.PublicKey
	private *kyber.PrivateKey

	pubRaw  []byte
	privRaw []byte
	id      string
}

// GenerateKyberKeyPair generates a fresh key pair from rng.
func GenerateKyberKeyPair(rng io.Reader) (*KyberKeyPair, error) {
	const op = "keys.Generate"

	pub, priv, err := paramSet.GenerateKeyPair(rng)
	if err != nil {
		return nil, kyberlink.E(op, kyberlink.KindIO, err)
	}
	return newKyberKeyPair(pub, priv), nil
}

// KyberKeyPairFromBytes reconstructs a key pair from raw public and private
// key bytes and verifies that the two halves match by a KEM
// encapsulate/decapsulate round trip. The caller's priv slice is wiped
// before return, on success and on failure.
func KyberKeyPairFromBytes(pub, priv []byte, rng io.Reader) (*KyberKeyPair, error) {
	const op = "keys.FromBytes"
	defer Zeroize(priv)

	if len(pub) != PublicKeySize {
		return nil, kyberlink.Errorf(op, kyberlink.KindInvalidArgument,
			"public key is %d bytes, want %d", len(pub), PublicKeySize)
	}
	if len(priv) != PrivateKeySize {
		return nil, kyberlink.Errorf(op, kyberlink.KindInvalidArgument,
			"private key is %d bytes, want %d", len(priv), PrivateKeySize)
	}

	pk, err := paramSet.PublicKeyFromBytes(pub)
	if err != nil {
		return nil, kyberlink.E(op, kyberlink.KindInvalidData, err)
	}
	sk, err := paramSet.PrivateKeyFromBytes(priv)
	if err != nil {
		return nil, kyberlink.E(op, kyberlink.KindInvalidData, err)
	}

	ct, want, err := pk.KEMEncrypt(rng)
	if err != nil {
		return nil, kyberlink.E(op, kyberlink.KindIO, err)
	}
	got := sk.KEMDecrypt(ct)
	match := subtle.ConstantTimeCompare(want, got) == 1
	Zeroize(want)
	Zeroize(got)
	if !match {
		return nil, kyberlink.Errorf(op, kyberlink.KindInvalidData,
			"private key does not match public key")
	}
	return newKyberKeyPair(pk, sk), nil
}

func newKyberKeyPair(pub *kyber.PublicKey, priv *kyber.PrivateKey) *KyberKeyPair {
	pubRaw := pub.Bytes()
	sum := sha3.Sum256(pubRaw)
	return &KyberKeyPair{
		public:  pub,
		private: priv,
		pubRaw:  pubRaw,
		privRaw: priv.Bytes(),
		id:      hex.EncodeToString(sum[:8]),
	}
}

// PublicBytes returns the raw public key bytes as sent on the wire.
func (kp *KyberKeyPair) PublicBytes() []byte { return kp.pubRaw }

// PrivateBytes returns the raw private key bytes. Callers exporting them
// are responsible for wiping their copies.
func (kp *KyberKeyPair) PrivateBytes() []byte { return kp.privRaw }

// ID returns a short identifier derived from the public key hash.
func (kp *KyberKeyPair) ID() string { return kp.id }

// Fingerprint returns the full lowercase-hex SHA3-256 digest of the public
// key, the form the authorized-keys file stores.
func (kp *KyberKeyPair) Fingerprint() string { return Fingerprint(kp.pubRaw) }

// Zeroize wipes the raw private key bytes and drops the parsed private key.
// The pair is unusable afterwards.
func (kp *KyberKeyPair) Zeroize() {
	Zeroize(kp.privRaw)
	kp.private = nil
}

// Fingerprint returns hex(sha3-256(pub)).
func Fingerprint(pub []byte) string {
	sum := sha3.Sum256(pub)
	return hex.EncodeToString(sum[:])
}

// Zeroize overwrites b with zero bytes.
func Zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// AKEInitiator is the initiator half of one authenticated key exchange.
// An instance must be used for exactly one handshake.
type AKEInitiator struct {
	state *kyber.AKEInitiatorState
}

// NewAKEInitiator starts an AKE against the peer's long-term public key and
// returns the instance together with the init message to send.
func NewAKEInitiator(peerPub []byte, rng io.Reader) (ini *AKEInitiator, initMsg []byte, err error) {
	const op = "keys.AKEInit"
	defer func() {
		if r := recover(); r != nil {
			ini, initMsg = nil, nil
			err = kyberlink.Errorf(op, kyberlink.KindInvalidData, "%v", r)
		}
	}()

	if len(peerPub) != PublicKeySize {
		return nil, nil, kyberlink.Errorf(op, kyberlink.KindInvalidArgument,
			"peer public key is %d bytes, want %d", len(peerPub), PublicKeySize)
	}
	pk, perr := paramSet.PublicKeyFromBytes(peerPub)
	if perr != nil {
		return nil, nil, kyberlink.E(op, kyberlink.KindInvalidData, perr)
	}
	st, perr := pk.NewAKEInitiatorState(rng)
	if perr != nil {
		return nil, nil, kyberlink.E(op, kyberlink.KindIO, perr)
	}
	return &AKEInitiator{state: st}, st.Message, nil
}

// Confirm consumes the responder message and derives the shared secret,
// binding in the initiator's long-term private key. The secret authenticates
// implicitly: a responder that did not hold the matching private key yields
// a mismatched secret, surfacing at the first record exchange.
func (a *AKEInitiator) Confirm(response []byte, own *KyberKeyPair) (secret []byte, err error) {
	const op = "keys.AKEConfirm"
	defer func() {
		if r := recover(); r != nil {
			secret = nil
			err = kyberlink.Errorf(op, kyberlink.KindInvalidData, "%v", r)
		}
	}()

	if len(response) != AKEResponseSize {
		return nil, kyberlink.Errorf(op, kyberlink.KindInvalidData,
			"responder message is %d bytes, want %d", len(response), AKEResponseSize)
	}
	if own == nil || own.private == nil {
		return nil, kyberlink.Errorf(op, kyberlink.KindInvalidArgument, "private key unavailable")
	}
	return a.state.Shared(response, own.private), nil
}

// Zeroize drops the transient AKE state. Call it when a handshake is
// abandoned before Confirm.
func (a *AKEInitiator) Zeroize() {
	if a.state != nil {
		Zeroize(a.state.Message)
		a.state = nil
	}
}

// AKERespond consumes an initiator message and produces the responder
// message plus the shared secret, proving possession of own's private key
// and binding in the initiator's long-term public key.
func AKERespond(initMsg, peerPub []byte, own *KyberKeyPair, rng io.Reader) (response, secret []byte, err error) {
	const op = "keys.AKERespond"
	defer func() {
		if r := recover(); r != nil {
			response, secret = nil, nil
			err = kyberlink.Errorf(op, kyberlink.KindInvalidData, "%v", r)
		}
	}()

	if len(initMsg) != AKEInitSize {
		return nil, nil, kyberlink.Errorf(op, kyberlink.KindInvalidData,
			"initiator message is %d bytes, want %d", len(initMsg), AKEInitSize)
	}
	if len(peerPub) != PublicKeySize {
		return nil, nil, kyberlink.Errorf(op, kyberlink.KindInvalidArgument,
			"peer public key is %d bytes, want %d", len(peerPub), PublicKeySize)
	}
	if own == nil || own.private == nil {
		return nil, nil, kyberlink.Errorf(op, kyberlink.KindInvalidArgument, "private key unavailable")
	}
	pk, perr := paramSet.PublicKeyFromBytes(peerPub)
	if perr != nil {
		return nil, nil, kyberlink.E(op, kyberlink.KindInvalidData, perr)
	}
	response, secret = own.private.AKEResponderShared(rng, initMsg, pk)
	return response, secret, nil
}
