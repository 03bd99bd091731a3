package main

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/sage-x-project/kyberlink/channel"
	"github.com/sage-x-project/kyberlink/config"
	"github.com/sage-x-project/kyberlink/crypto/formats"
	"github.com/sage-x-project/kyberlink/internal/logger"
)

// runConnect dials the configured server, prints the peer address and the
// decrypted greeting. The --input flag is parsed but reserved.
func runConnect(ctx context.Context, cfg *config.Config) error {
	kp, err := formats.ReadKeyPair(cfg.Keys.PrivateFile, cfg.Keys.PublicFile, rand.Reader)
	if err != nil {
		return err
	}
	defer kp.Zeroize()

	sess, err := channel.Dial(ctx, cfg.Listen, kp, channel.Opts{})
	if err != nil {
		return err
	}
	defer sess.Close()

	logger.Info("connected",
		logger.String("session", sess.ID()),
		logger.String("peer", sess.PeerAddr().String()))
	fmt.Printf("Peer is: %s\n", sess.PeerAddr())

	text, err := sess.Receive()
	if err != nil {
		return err
	}
	if len(text) == 0 {
		return fmt.Errorf("empty response from peer")
	}
	fmt.Printf("Result: %s\n", text)
	return nil
}
