// Command vrfd runs the off-chain VRF oracle worker: it watches an
// identity's queue accounts, computes VRF proofs for newly queued
// requests, and submits fulfillment transactions.
package main

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mr-tron/base58"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ephemeral-labs/vrf-oracle/accounts"
	"github.com/ephemeral-labs/vrf-oracle/api"
	"github.com/ephemeral-labs/vrf-oracle/node"
	"github.com/ephemeral-labs/vrf-oracle/oracle/pull"
	"github.com/ephemeral-labs/vrf-oracle/oracle/push"
	"github.com/ephemeral-labs/vrf-oracle/workerstore"
)

var rootCmd = &cobra.Command{
	Use:   "vrfd",
	Short: "VRF oracle worker - fulfills queued randomness requests",
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the worker",
	RunE:  runStart,
}

func init() {
	flags := startCmd.Flags()
	flags.String("identity-keypair", "", "path to a JSON file holding the oracle's 64-byte ed25519 signing keypair")
	flags.String("program-id", "", "base58-encoded VRF oracle program id")
	flags.String("rpc-url", "http://127.0.0.1:8899", "Solana JSON-RPC endpoint")
	flags.String("ws-url", "", "Solana websocket endpoint for account subscriptions (optional; pull-polling always runs)")
	flags.String("grpc-endpoint", "", "gRPC streaming endpoint; accepted but not used (the worker has no gRPC client)")
	flags.String("grpc-api-key", "", "API key for --grpc-endpoint; accepted but not used")
	flags.String("http-port", "8090", "port to serve /healthz, /stats and /queues on")
	flags.Bool("skip-preflight", false, "accepted but not used: transactions are always sent with the RPC node's default preflight")
	flags.String("purge-incentive", "oracle", "oracle, caller, or nobody; validated at startup but not sent with the worker's PurgeExpiredRequests transactions")
	flags.String("store-path", "./vrfd-store", "path to the BadgerDB crash-recovery store")
	flags.StringSlice("queue", nil, "queue to service, as base58addr:index (repeatable)")
	flags.Duration("reconcile-every", 30*time.Second, "pull-reconciliation poll interval")
	flags.Duration("blockhash-every", 60*time.Second, "blockhash cache refresh interval")

	viper.BindPFlags(flags)
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("no .env file found, using flags and environment defaults")
	}
	viper.AutomaticEnv()
	viper.SetEnvPrefix("VRFD")

	keypairPath := viper.GetString("identity-keypair")
	signingKeypair, err := loadSigningKeypair(keypairPath)
	if err != nil {
		return fmt.Errorf("loading identity keypair: %w", err)
	}
	identity := accounts.Pubkey(signingKeypair.Public().(ed25519.PublicKey))

	programID, err := decodePubkey(viper.GetString("program-id"))
	if err != nil {
		return fmt.Errorf("invalid --program-id: %w", err)
	}

	identityPDA, _, err := accounts.IdentityAddress(programID)
	if err != nil {
		return fmt.Errorf("deriving identity PDA: %w", err)
	}
	oracleDataAddr, _, err := accounts.OracleDataAddress(programID, identity)
	if err != nil {
		return fmt.Errorf("deriving oracle data address: %w", err)
	}

	queues, err := parseQueues(viper.GetStringSlice("queue"))
	if err != nil {
		return fmt.Errorf("invalid --queue: %w", err)
	}
	if len(queues) == 0 {
		return fmt.Errorf("at least one --queue base58addr:index is required")
	}

	switch viper.GetString("purge-incentive") {
	case "oracle", "caller", "nobody":
	default:
		return fmt.Errorf("--purge-incentive must be one of oracle, caller, nobody")
	}

	store, err := workerstore.NewBadgerStore(viper.GetString("store-path"))
	if err != nil {
		return fmt.Errorf("opening worker store: %w", err)
	}
	defer store.Close()

	rpc := node.NewHTTPRPCClient(viper.GetString("rpc-url"))
	blockhashes := node.NewBlockhashCache(rpc, viper.GetDuration("blockhash-every"))
	latency := pull.NewLatencyTracker(256)

	var pushSource node.QueueUpdateSource
	if wsURL := viper.GetString("ws-url"); wsURL != "" {
		sub := push.NewSubscriber(wsURL)
		for _, q := range queues {
			sub.Watch([32]byte(q.Addr))
		}
		pushSource = sub
	}

	cfg := node.Config{
		ProgramID:      programID,
		Identity:       identity,
		IdentityPDA:    identityPDA,
		OracleDataAddr: oracleDataAddr,
		SigningKeypair: signingKeypair,
		VRFSigningSeed: []byte(signingKeypair),
		Queues:         queues,
		ReconcileEvery: viper.GetDuration("reconcile-every"),
		BlockhashEvery: viper.GetDuration("blockhash-every"),
	}

	collector := api.NewCollector()

	worker, err := node.NewWorker(cfg, rpc, blockhashes, latency, pushSource, store, collector)
	if err != nil {
		return fmt.Errorf("constructing worker: %w", err)
	}

	httpServer := api.NewServer(collector, latency, rpc, queues, viper.GetString("http-port"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := httpServer.Start(ctx); err != nil {
			log.Error().Err(err).Msg("api server exited with error")
		}
	}()

	log.Info().
		Str("identity", identity.String()).
		Str("program_id", programID.String()).
		Int("queues", len(queues)).
		Msg("vrfd worker starting")

	worker.Run(ctx)

	log.Info().Msg("vrfd worker stopped")
	return nil
}

func loadSigningKeypair(path string) (ed25519.PrivateKey, error) {
	if path == "" {
		return nil, fmt.Errorf("--identity-keypair is required")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var bytesOut []byte
	if err := json.Unmarshal(raw, &bytesOut); err != nil {
		return nil, fmt.Errorf("expected a JSON array of bytes: %w", err)
	}
	if len(bytesOut) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("expected a %d-byte ed25519 keypair, got %d bytes", ed25519.PrivateKeySize, len(bytesOut))
	}
	return ed25519.PrivateKey(bytesOut), nil
}

func decodePubkey(s string) (accounts.Pubkey, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return accounts.Pubkey{}, err
	}
	if len(raw) != 32 {
		return accounts.Pubkey{}, fmt.Errorf("expected 32 bytes, got %d", len(raw))
	}
	var pk accounts.Pubkey
	copy(pk[:], raw)
	return pk, nil
}

func parseQueues(raw []string) ([]node.QueueConfig, error) {
	queues := make([]node.QueueConfig, 0, len(raw))
	for _, entry := range raw {
		parts := strings.SplitN(entry, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("expected base58addr:index, got %q", entry)
		}
		addr, err := decodePubkey(parts[0])
		if err != nil {
			return nil, err
		}
		idx, err := strconv.ParseUint(parts[1], 10, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid queue index %q: %w", parts[1], err)
		}
		queues = append(queues, node.QueueConfig{Addr: addr, Index: uint8(idx)})
	}
	return queues, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("vrfd exited with error")
	}
}
