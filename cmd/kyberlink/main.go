package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/sage-x-project/kyberlink/config"
	"github.com/sage-x-project/kyberlink/internal/logger"
)

var (
	createFlag bool
	serverFlag bool
	inputFile  string
	configFile string
	listenAddr string
)

var rootCmd = &cobra.Command{
	Use:   "kyberlink",
	Short: "Post-quantum authenticated secure channels over TCP",
	Long: `kyberlink establishes mutually authenticated TCP sessions between two
endpoints holding long-term Kyber key pairs. Session traffic is encrypted
under a per-session AES-256-GCM key derived by a Kyber authenticated key
exchange; the server gates peers on an authorized-keys file.

Modes:
  --create   generate a key pair and write it to the key files
  --server   accept connections, greet each authorized peer, and close
  (default)  connect to the server and print its greeting`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().BoolVarP(&createFlag, "create", "c", false, "Generate new keys")
	rootCmd.Flags().BoolVarP(&serverFlag, "server", "s", false, "Listen for connections")
	rootCmd.Flags().StringVarP(&inputFile, "input", "i", "", "File to send (reserved)")
	rootCmd.Flags().StringVar(&configFile, "config", "", "Configuration file (YAML or JSON)")
	rootCmd.Flags().StringVar(&listenAddr, "addr", "", "Override the configured address")
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

func run(cmd *cobra.Command, args []string) error {
	// A .env in the working directory may carry the ${VAR} values the
	// config file references. The log level comes from logging.level.
	_ = godotenv.Load()

	cfg := config.Default()
	if configFile != "" {
		loaded, err := config.LoadFromFile(configFile)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if listenAddr != "" {
		cfg.Listen = listenAddr
	}
	logger.SetDefaultLogger(logger.NewLogger(os.Stderr, logger.ParseLevel(cfg.Logging.Level)))

	switch {
	case createFlag:
		return runCreate(cfg)
	case serverFlag:
		return runServe(cmd.Context(), cfg)
	default:
		return runConnect(cmd.Context(), cfg)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
