package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"talion/internal/config"
	"talion/internal/httpapi"
	"talion/internal/manager"
	"talion/pkg/types"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 15 * time.Second

type globalOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "talion:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalOptions{}
	root := &cobra.Command{
		Use:           "talion",
		Short:         "Serve a causal language model over HTTP",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "Config file (.yaml, .yml, .json or .toml)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level: debug|info|warn|error (default from config)")
	root.PersistentFlags().StringVar(&g.logFormat, "log-format", "", "Log format: json|console (default from config)")

	// Running the root without a subcommand serves.
	root.RunE = serveRunE(root, g)
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server (default)",
		Args:  cobra.NoArgs,
	}
	serve.RunE = serveRunE(serve, g)

	root.AddCommand(serve, newGenerateCmd(g), &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})
	return root
}

// loadConfig layers defaults, the config file, TALION_* variables and
// explicitly set flags, in that order.
func loadConfig(cmd *cobra.Command, g *globalOptions, o *overrides) (config.Config, error) {
	cfg := config.Default()
	if g.configPath != "" {
		var err error
		if cfg, err = config.Load(g.configPath); err != nil {
			return cfg, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, fmt.Errorf("environment: %w", err)
	}
	o.apply(cmd, &cfg)
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	if g.logFormat != "" {
		cfg.LogFormat = g.logFormat
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg config.Config) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	var l zerolog.Logger
	if cfg.LogFormat == "console" {
		l = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		l = zerolog.New(os.Stderr)
	}
	return l.Level(lvl).With().Timestamp().Logger()
}

func serveRunE(cmd *cobra.Command, g *globalOptions) func(*cobra.Command, []string) error {
	o := newOverrides()
	bindModelFlags(cmd, o)
	bindServeFlags(cmd, o)
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, g, o)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, newLogger(cfg))
	}
}

// serve runs the HTTP server until ctx ends, then drains in-flight work.
func serve(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	httpapi.SetLogger(log)
	httpapi.SetRequestLogLevel(cfg.LogLevel)
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetDefaultMaxLength(cfg.DefaultMaxLength)
	httpapi.SetCORSOptions(cfg.CORSEnabled, cfg.CORSOrigins, cfg.CORSMethods, cfg.CORSHeaders)
	httpapi.SetSwagger(cfg.Swagger)
	httpapi.SetBaseContext(ctx)

	mgr := manager.New(manager.ConfigFrom(cfg, log))
	if cfg.LoadMode == config.LoadEager {
		log.Info().Str("model", cfg.Model).Str("backend", cfg.Backend).Msg("loading model")
		if err := mgr.Load(ctx); err != nil {
			_ = mgr.Close(context.Background())
			return err
		}
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewMux(mgr),
		ReadHeaderTimeout: 10 * time.Second,
	}
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		log.Info().Str("addr", cfg.Addr).Str("model", cfg.Model).Str("load_mode", cfg.LoadMode).Msg("talion listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		<-egCtx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(sctx)
		if cerr := mgr.Close(sctx); err == nil {
			err = cerr
		}
		log.Info().Err(err).Msg("shutdown complete")
		return err
	})
	return eg.Wait()
}

type generateOptions struct {
	prompt      string
	maxLength   int
	temperature float64
	topP        float64
	topK        int
	seed        int64
	asJSON      bool
}

func newGenerateCmd(g *globalOptions) *cobra.Command {
	o := newOverrides()
	opts := &generateOptions{}
	cmd := &cobra.Command{
		Use:     "generate",
		Short:   "Generate text once without starting the server",
		Example: "  talion generate --prompt \"Explain force majeure.\" --max-length 50",
		Args:    cobra.NoArgs,
	}
	bindModelFlags(cmd, o)
	cmd.Flags().StringVar(&opts.prompt, "prompt", "", "Prompt text")
	cmd.Flags().IntVar(&opts.maxLength, "max-length", 0, "Total length bound in tokens (default from config)")
	cmd.Flags().Float64Var(&opts.temperature, "temperature", 0, "Sampling temperature, 0 for greedy")
	cmd.Flags().Float64Var(&opts.topP, "top-p", 0, "Nucleus sampling probability")
	cmd.Flags().IntVar(&opts.topK, "top-k", 0, "Top-K sampling")
	cmd.Flags().Int64Var(&opts.seed, "seed", 0, "Random seed")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print the HTTP response body instead of plain text")
	_ = cmd.MarkFlagRequired("prompt")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, g, o)
		if err != nil {
			return err
		}
		log := newLogger(cfg)
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		mgr := manager.New(manager.ConfigFrom(cfg, log))
		defer mgr.Close(context.Background())
		req := types.GenerateRequest{
			Prompt:      opts.prompt,
			MaxLength:   opts.maxLength,
			Temperature: opts.temperature,
			TopP:        opts.topP,
			TopK:        opts.topK,
			Seed:        opts.seed,
		}
		if !cmd.Flags().Changed("max-length") {
			req.MaxLength = cfg.DefaultMaxLength
		}
		res, err := mgr.Generate(ctx, req)
		if err != nil {
			return err
		}
		log.Debug().Str("generation_id", res.ID).Int("prompt_tokens", res.PromptTokens).
			Int("completion_tokens", res.CompletionTokens).Str("finish_reason", res.FinishReason).
			Dur("dur", res.Duration).Msg("generate done")
		out := cmd.OutOrStdout()
		if opts.asJSON {
			return json.NewEncoder(out).Encode(types.GenerateResponse{GeneratedText: res.Text})
		}
		_, err = fmt.Fprintln(out, res.Text)
		return err
	}
	return cmd
}
