package main

import (
	"crypto/rand"
	"fmt"

	"github.com/sage-x-project/kyberlink/channel"
	"github.com/sage-x-project/kyberlink/config"
	"github.com/sage-x-project/kyberlink/crypto/formats"
	"github.com/sage-x-project/kyberlink/crypto/keys"
)

// runCreate generates a fresh key pair and writes both key files.
func runCreate(cfg *config.Config) error {
	kp, err := keys.GenerateKyberKeyPair(rand.Reader)
	if err != nil {
		return err
	}
	defer kp.Zeroize()

	if err := formats.WriteKeyPair(kp, cfg.Keys.PrivateFile, cfg.Keys.PublicFile); err != nil {
		return err
	}

	fmt.Printf("Key pair written:\n")
	fmt.Printf("  Private key: %s\n", cfg.Keys.PrivateFile)
	fmt.Printf("  Public key:  %s\n", cfg.Keys.PublicFile)
	fmt.Printf("  Fingerprint: %s\n", kp.Fingerprint())
	fmt.Printf("\nAuthorize this key on a server by adding the line:\n  %s\n",
		channel.AuthorizedLine(kp.PublicBytes(), ""))
	return nil
}
