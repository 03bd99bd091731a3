// Package kyberlink provides a post-quantum authenticated secure channel
// over TCP. Two endpoints holding long-term Kyber key pairs run a Kyber
// authenticated key exchange and then speak a framed AES-256-GCM record
// protocol under the derived per-session key.
//
// The channel package carries the protocol core (handshake engine, record
// layer, trust anchor); crypto/keys binds the Kyber primitives and
// crypto/formats reads and writes the key files.
package kyberlink
