package channel

import (
	"os"
	"strings"

	kyberlink "github.com/sage-x-project/kyberlink"
	"github.com/sage-x-project/kyberlink/crypto/keys"
)

// AuthorizedKeysFile is the default trust-anchor path, relative to the
// working directory.
const AuthorizedKeysFile = "authorized_keys"

// AuthorizedKeys decides whether a presented peer public key is allowed to
// proceed. Each line of the file starts with the lowercase-hex SHA3-256
// digest of an accepted public key, optionally followed by
// whitespace-separated metadata. The file is read fresh on every check so
// external edits take effect immediately.
type AuthorizedKeys struct {
	// Path of the trust-anchor file. Empty means AuthorizedKeysFile.
	Path string
}

func (a *AuthorizedKeys) path() string {
	if a.Path != "" {
		return a.Path
	}
	return AuthorizedKeysFile
}

// Authorized reports whether pub is listed. A missing, unreadable or empty
// file authorizes nobody. Digest comparison is byte-exact; no case
// normalization is applied.
func (a *AuthorizedKeys) Authorized(pub []byte) bool {
	data, err := os.ReadFile(a.path())
	if err != nil {
		return false
	}
	body := strings.TrimSpace(string(data))
	if body == "" {
		return false
	}

	digest := keys.Fingerprint(pub)
	for _, line := range strings.Split(body, "\n") {
		fields := strings.Fields(line)
		if len(fields) > 0 && fields[0] == digest {
			return true
		}
	}
	return false
}

// AuthorizedLine renders the line that authorizes pub, with an optional
// trailing comment.
func AuthorizedLine(pub []byte, comment string) string {
	line := keys.Fingerprint(pub)
	if comment != "" {
		line += " " + comment
	}
	return line
}

// Append adds an authorization line for pub to the file, creating it when
// absent.
func (a *AuthorizedKeys) Append(pub []byte, comment string) error {
	const op = "channel.AuthorizedKeys.Append"

	f, err := os.OpenFile(a.path(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return kyberlink.E(op, kyberlink.KindIO, err)
	}
	if _, err := f.WriteString(AuthorizedLine(pub, comment) + "\n"); err != nil {
		f.Close()
		return kyberlink.E(op, kyberlink.KindIO, err)
	}
	if err := f.Close(); err != nil {
		return kyberlink.E(op, kyberlink.KindIO, err)
	}
	return nil
}
