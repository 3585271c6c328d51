package main

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"github.com/pendergraft/deploycheck/internal/config"
	"github.com/pendergraft/deploycheck/internal/observability/metrics"
	"github.com/pendergraft/deploycheck/internal/sandbox"
	"github.com/pendergraft/deploycheck/internal/server"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "deploycheck-sandbox",
		Short:   "Local JSON-RPC node for deployment checks",
		Version: version,
	}

	// Default behavior (no subcommand) is to serve
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runServe()
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newAccountsCmd())

	return rootCmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the sandbox node",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func newAccountsCmd() *cobra.Command {
	var showKeys bool

	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "List the node's development accounts",
		Long: `List the accounts a node started with the current SANDBOX_SEED and
SANDBOX_ACCOUNTS will unlock. Keys are derived from the seed, so the list is
the same on every start.

EXAMPLES:
  deploycheck-sandbox accounts

  # Export keys for local signing
  export TEST_PRIVATE_KEYS=$(deploycheck-sandbox accounts --keys --quiet)
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			quiet, _ := cmd.Flags().GetBool("quiet")
			return runAccounts(cmd.OutOrStdout(), showKeys, quiet)
		},
	}

	cmd.Flags().BoolVar(&showKeys, "keys", false, "include private keys")
	cmd.Flags().BoolP("quiet", "q", false, "print only a comma separated key list (with --keys)")

	return cmd
}

func runAccounts(w io.Writer, showKeys, quiet bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	keys := sandbox.DeriveKeys(cfg.Sandbox.Seed, cfg.Sandbox.Accounts)

	if quiet && showKeys {
		for i, k := range keys {
			if i > 0 {
				fmt.Fprint(w, ",")
			}
			fmt.Fprint(w, encodeKey(k))
		}
		fmt.Fprintln(w)
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if showKeys {
		fmt.Fprintln(tw, "#\tADDRESS\tPRIVATE KEY")
	} else {
		fmt.Fprintln(tw, "#\tADDRESS")
	}
	for i, k := range keys {
		addr := crypto.PubkeyToAddress(k.PublicKey)
		if showKeys {
			fmt.Fprintf(tw, "%d\t%s\t%s\n", i, addr.Hex(), encodeKey(k))
		} else {
			fmt.Fprintf(tw, "%d\t%s\n", i, addr.Hex())
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if showKeys {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "These keys are public test keys. Never send real funds to them.")
	}
	return nil
}

func encodeKey(k *ecdsa.PrivateKey) string {
	return hexutil.Encode(crypto.FromECDSA(k))
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg)
	logger.Info("starting deploycheck-sandbox", "version", version)

	// Metrics are on for the node unless METRICS_ENABLED says otherwise.
	metrics.Init(cfg.Metrics.Enabled || os.Getenv("METRICS_ENABLED") == "", "deploycheck-sandbox")

	backend := sandbox.New(
		sandbox.WithAccounts(cfg.Sandbox.Accounts),
		sandbox.WithChainID(cfg.Sandbox.ChainID),
		sandbox.WithSeed(cfg.Sandbox.Seed),
		sandbox.WithFactory(common.HexToAddress(cfg.Harness.Factory)),
		sandbox.WithMiningDelay(cfg.Sandbox.MiningDelay),
		sandbox.WithStartupDelay(cfg.Sandbox.StartupDelay),
		sandbox.WithLogger(logger),
	)

	srv, err := server.New(cfg, backend, logger)
	if err != nil {
		return err
	}
	defer srv.Close()

	fmt.Fprintln(os.Stderr, "Development accounts:")
	if err := runAccounts(os.Stderr, true, false); err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      srv.Handler(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("sandbox listening",
			"addr", httpServer.Addr,
			"chain_id", backend.ChainID(),
			"factory", backend.Factory().Hex(),
			"accounts", len(backend.Accounts()),
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	logger.Info("sandbox stopped")
	return nil
}

func setupLogger(cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}

	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
