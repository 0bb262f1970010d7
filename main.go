package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tournevent/shipping/internal/server"
	"github.com/tournevent/shipping/pkg/shipper"
	"go.uber.org/zap"
)

var version = "0.0.1"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "shipping",
	Short:   "Storefront shipping bridge - shipping quotes from a Nuvemshop cart",
	Version: version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

var quoteCmd = &cobra.Command{
	Use:   "quote [request.json]",
	Short: "Run one shipping quote and print the result envelope",
	Long:  "Reads a quote request ({\"zipcode\": ..., \"variants\": [...]}) from the given file or stdin.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runQuote,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(quoteCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	// Load configuration
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Initialize telemetry
	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	tracerShutdown, err := initTracer(ctx, cfg)
	if err != nil {
		logger.Warn("Failed to initialize tracer", zap.Error(err))
	} else {
		defer tracerShutdown(context.Background())
	}

	token, err := cfg.ResolveSecret(ctx, nil)
	if err != nil {
		return err
	}
	if token == "" {
		logger.Warn("No caller token configured; every /shipping request will be rejected")
	}

	metrics := initMetrics()
	storefront := initShipper(cfg, logger, metrics)

	logger.Info("Starting storefront shipping bridge",
		zap.Int("port", cfg.Port),
		zap.String("version", cfg.Version),
		zap.String("storefront", cfg.StorefrontBaseURL),
		zap.Bool("mock", cfg.StorefrontUseMock),
	)

	// Start HTTP server
	srv := server.New(server.Config{Port: cfg.Port, Token: token}, storefront, logger, metrics)
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func runQuote(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	in := cmd.InOrStdin()
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	data, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("reading request: %w", err)
	}
	var req shipper.QuoteRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("decoding request: %w", err)
	}
	if err := req.Validate(); err != nil {
		return err
	}

	storefront := initShipper(cfg, logger, nil)
	result, err := storefront.GetQuote(ctx, &req)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
