package formats

import (
	"encoding/hex"
	"io"
	"os"
	"runtime"
	"strings"

	kyberlink "github.com/sage-x-project/kyberlink"
	"github.com/sage-x-project/kyberlink/crypto/keys"
)

// Default key file locations, relative to the working directory.
const (
	DefaultPrivateKeyFile = "privatekey.srt"
	DefaultPublicKeyFile  = "publickey.pub"
)

// KeyKind selects which half of a key pair a file holds.
type KeyKind int

const (
	KeyKindPublic KeyKind = iota
	KeyKindPrivate
)

func (k KeyKind) label() string {
	if k == KeyKindPrivate {
		return "PRIVATE"
	}
	return "PUBLIC"
}

func header(kind KeyKind, start bool) string {
	if start {
		return "-----BEGIN KYBER " + kind.label() + " KEY-----"
	}
	return "-----END KYBER " + kind.label() + " KEY-----"
}

func lineEnding() string {
	if runtime.GOOS == "windows" {
		return "\r\n"
	}
	return "\n"
}

// EncodeKey renders raw key bytes as the three-line key file body:
// header, lowercase hex, footer, separated by the platform line ending.
func EncodeKey(kind KeyKind, raw []byte) string {
	var b strings.Builder
	b.WriteString(header(kind, true))
	b.WriteString(lineEnding())
	b.WriteString(hex.EncodeToString(raw))
	b.WriteString(lineEnding())
	b.WriteString(header(kind, false))
	return b.String()
}

// ParseKey extracts the raw key bytes from a key file body. The body must
// split into exactly three lines; the first and last must be the expected
// header and footer for kind. Either line ending is accepted on read.
func ParseKey(kind KeyKind, text string) ([]byte, error) {
	const op = "formats.ParseKey"

	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	parts := strings.Split(strings.TrimRight(normalized, "\n"), "\n")
	if len(parts) != 3 {
		return nil, kyberlink.Errorf(op, kyberlink.KindInvalidInput,
			"key file has %d lines, want 3", len(parts))
	}
	if strings.TrimSpace(parts[0]) != header(kind, true) {
		return nil, kyberlink.Errorf(op, kyberlink.KindInvalidData, "bad key header")
	}
	if strings.TrimSpace(parts[2]) != header(kind, false) {
		return nil, kyberlink.Errorf(op, kyberlink.KindInvalidData, "bad key footer")
	}
	raw, err := hex.DecodeString(strings.TrimSpace(parts[1]))
	if err != nil {
		return nil, kyberlink.E(op, kyberlink.KindInvalidData, err)
	}
	return raw, nil
}

// WriteKeyPair writes the pair to privPath and pubPath. The private file is
// created owner read/write only; the public file is world readable.
func WriteKeyPair(kp *keys.KyberKeyPair, privPath, pubPath string) error {
	const op = "formats.WriteKeyPair"

	if err := writeFile(privPath, EncodeKey(KeyKindPrivate, kp.PrivateBytes()), 0o600); err != nil {
		return kyberlink.E(op, kyberlink.KindIO, err)
	}
	if err := writeFile(pubPath, EncodeKey(KeyKindPublic, kp.PublicBytes()), 0o644); err != nil {
		return kyberlink.E(op, kyberlink.KindIO, err)
	}
	return nil
}

func writeFile(path, body string, mode os.FileMode) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(f, body); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadKeyPair loads both key files, parses them, and reconstructs the pair,
// verifying that the halves match via a KEM round trip.
func ReadKeyPair(privPath, pubPath string, rng io.Reader) (*keys.KyberKeyPair, error) {
	const op = "formats.ReadKeyPair"

	pubText, err := os.ReadFile(pubPath)
	if err != nil {
		return nil, kyberlink.E(op, kyberlink.KindIO, err)
	}
	privText, err := os.ReadFile(privPath)
	if err != nil {
		return nil, kyberlink.E(op, kyberlink.KindIO, err)
	}

	pub, err := ParseKey(KeyKindPublic, string(pubText))
	if err != nil {
		return nil, err
	}
	priv, err := ParseKey(KeyKindPrivate, string(privText))
	if err != nil {
		return nil, err
	}
	return keys.KyberKeyPairFromBytes(pub, priv, rng)
}
