package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/danmuck/obdctl/internal/config"
	"github.com/danmuck/obdctl/internal/logging"
	"github.com/danmuck/obdctl/internal/obd"
	"github.com/danmuck/obdctl/internal/observability"
	"github.com/danmuck/obdctl/internal/protocol"
	"github.com/danmuck/obdctl/internal/transport"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var version = "dev"

const defaultEnvFile = ".env"

type app struct {
	configPath string
	envFile    string
	cfg        config.Config
	logger     zerolog.Logger
}

func main() {
	a := &app{}
	root := &cobra.Command{
		Use:           "obdctl",
		Short:         "Send commands to an ELM327 OBD-II adapter",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file (.toml, .yaml)")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", defaultEnvFile, "dotenv file loaded before env overrides")

	root.AddCommand(
		newRunCmd(a),
		newInitCmd(a),
		newShellCmd(a),
		newConfigCmd(a),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "obdctl: %v\n", err)
		os.Exit(1)
	}
}

// load resolves .env, config file, env overrides and logging, in that order.
func (a *app) load() error {
	if a.envFile != "" {
		if err := godotenv.Load(a.envFile); err != nil {
			if !errors.Is(err, fs.ErrNotExist) || a.envFile != defaultEnvFile {
				return fmt.Errorf("load env file: %w", err)
			}
		}
	}

	cfg := config.Default()
	if a.configPath != "" {
		loaded, err := config.Load(a.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	config.ApplyEnvOverrides(&cfg)
	if err := config.Validate(cfg); err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = newLogger(cfg.Log)
	log.Logger = a.logger
	return nil
}

func newLogger(lc config.Log) zerolog.Logger {
	cfg := logging.DefaultConfig(logging.ProfileRuntime)
	if lvl, ok := logging.ParseLevel(lc.Level); ok {
		cfg.Level = lvl
	}
	cfg.File = lc.File
	cfg.NoColor = lc.NoColor
	logging.ApplyEnvOverrides(&cfg)
	return logging.New(cfg).With().Str("app", "obdctl").Logger()
}

// session is one open adapter connection.
type session struct {
	queue   *obd.Queue
	stream  io.Closer
	metrics *http.Server
	logger  zerolog.Logger
}

func (a *app) open(ctx context.Context) (*session, error) {
	cleaner, err := protocol.NewCleaner(a.cfg.Run.NoisePattern)
	if err != nil {
		return nil, err
	}
	stream, err := transport.Open(ctx, a.cfg.Adapter)
	if err != nil {
		return nil, err
	}
	conn := obd.NewConn(stream, stream,
		obd.WithLogger(a.logger),
		obd.WithCleaner(cleaner),
		obd.WithObserver(observability.RunObserver{}),
	)
	a.logger.Info().
		Str("kind", string(a.cfg.Adapter.Kind)).
		Str("address", a.cfg.Adapter.Address).
		Str("conn_id", conn.ID()).
		Msg("adapter connected")

	s := &session{queue: obd.NewQueue(conn), stream: stream, logger: a.logger}
	if a.cfg.MetricsAddr != "" {
		s.metrics = serveMetrics(a.cfg.MetricsAddr, a.logger)
	}
	return s, nil
}

func (s *session) Close() error {
	if s.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.metrics.Shutdown(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("metrics shutdown")
		}
	}
	return s.stream.Close()
}

func serveMetrics(addr string, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info().Str("addr", addr).Msg("metrics listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	return srv
}

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or scaffold configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			printConfig(cmd.OutOrStdout(), a.cfg)
			return nil
		},
	})

	var kind string
	var force bool
	initCmd := &cobra.Command{
		Use:   "init <path>",
		Short: "Write a config template",
		Args:  cobra.ExactArgs(1),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteTemplate(args[0], kind, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s config template to %s\n", kind, args[0])
			return nil
		},
	}
	initCmd.Flags().StringVar(&kind, "kind", "tcp", "adapter kind: tcp|serial")
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cmd.AddCommand(initCmd)
	return cmd
}

func printConfig(w io.Writer, cfg config.Config) {
	fmt.Fprintf(w, "adapter.kind         %s\n", cfg.Adapter.Kind)
	fmt.Fprintf(w, "adapter.address      %s\n", cfg.Adapter.Address)
	if cfg.Adapter.Kind == config.KindSerial {
		fmt.Fprintf(w, "adapter.baud_rate    %d\n", cfg.Adapter.BaudRate)
	} else {
		fmt.Fprintf(w, "adapter.dial_timeout %s\n", cfg.Adapter.DialTimeout)
	}
	fmt.Fprintf(w, "run.use_cache        %t\n", cfg.Run.UseCache)
	fmt.Fprintf(w, "run.delay            %s\n", cfg.Run.Delay)
	fmt.Fprintf(w, "run.noise_pattern    %s\n", cfg.Run.NoisePattern)
	fmt.Fprintf(w, "run.init             %s\n", strings.Join(cfg.Run.Init, " "))
	fmt.Fprintf(w, "log.level            %s\n", cfg.Log.Level)
	if cfg.Log.File != "" {
		fmt.Fprintf(w, "log.file             %s\n", cfg.Log.File)
	}
	if cfg.MetricsAddr != "" {
		fmt.Fprintf(w, "metrics_addr         %s\n", cfg.MetricsAddr)
	}
}
