// Package main is the entry point for newtoken. It reads the device, issuer,
// subject, and signing secret from the environment, mints a short-lived
// HS256 token granting access to that device, and prints it on stdout.
//
// Diagnostics go to stderr as structured JSON. Exit status is 0 on success,
// 2 for configuration and usage errors, and 1 for everything else.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dskow/newtoken/internal/config"
	"github.com/dskow/newtoken/internal/failure"
	"github.com/dskow/newtoken/internal/logging"
	"github.com/dskow/newtoken/internal/metrics"
	"github.com/dskow/newtoken/internal/token"
)

// environment is everything a run reads from or writes to the process.
type environment struct {
	lookup config.LookupFunc
	stdout io.Writer
	stderr io.Writer
	now    func() time.Time
}

type runner struct {
	env        environment
	configPath string
	logger     *slog.Logger
	closer     io.Closer
}

func main() {
	os.Exit(run(os.Args[1:], environment{
		lookup: os.LookupEnv,
		stdout: os.Stdout,
		stderr: os.Stderr,
		now:    time.Now,
	}))
}

// run executes one invocation and returns the process exit status.
func run(args []string, env environment) int {
	r := &runner{env: env, logger: logging.Bootstrap(env.stderr)}
	defer r.close()

	// cobra falls back to os.Args when given nil.
	if args == nil {
		args = []string{}
	}
	cmd := newRootCmd(r)
	cmd.SetArgs(args)

	err := cmd.Execute()
	code, status := failure.Classify(err)
	if err != nil {
		r.logger.Error("newtoken failed", "error", err, "error_code", string(code))
	}
	return status
}

func newRootCmd(r *runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "newtoken",
		Short: "Mint a device access token",
		Long: `Mint a short-lived token that lets a client connect to one device.

The token is an HS256-signed JWT carrying iss, sub, exp (now + 30m), and a
single "connect:device:<DEVICE_ID>" grant. It is printed on stdout.

Environment:
  DEVICE_ID     device the token grants access to
  JWT_ISSUER    iss claim
  JWT_SUBJECT   sub claim
  JWT_SECRET    shared HMAC secret

Example:

$ export AUTH_TOKEN="$(newtoken)"
`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return &failure.UsageError{Err: fmt.Errorf("unexpected argument %q", args[0])}
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.mint()
		},
	}

	cmd.Flags().StringVar(&r.configPath, "config", "", "optional YAML configuration file; environment variables override it")
	cmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &failure.UsageError{Err: err}
	})
	// stdout carries only the token; help and usage go to stderr.
	cmd.SetOut(r.env.stderr)
	cmd.SetErr(r.env.stderr)
	return cmd
}

func (r *runner) mint() error {
	start := r.env.now()

	cfg, err := config.Load(r.configPath, r.env.lookup)
	if err != nil {
		return err
	}

	logger, closer, err := logging.New(cfg.Logging, r.env.stderr)
	if err != nil {
		return &config.ConfigurationError{Err: fmt.Errorf("setting up logging: %w", err)}
	}
	r.logger, r.closer = logger, closer

	for _, w := range cfg.Warnings {
		logger.Warn("config warning", "message", w)
	}

	logger.Debug("configuration loaded",
		"config_file", r.configPath,
		"device_id", cfg.DeviceID,
		"log_output", cfg.Logging.Output,
		"metrics_enabled", cfg.Metrics.Enabled(),
	)

	rec := metrics.New()
	defer r.writeMetrics(cfg.Metrics, rec, start)

	req := token.Request{
		Issuer:   cfg.JWT.Issuer,
		Subject:  cfg.JWT.Subject,
		DeviceID: cfg.DeviceID,
	}
	minter := token.New([]byte(cfg.JWT.Secret), token.WithClock(r.env.now))

	signed, claims, err := minter.Mint(req)
	if err != nil {
		rec.Failed(metrics.ReasonSigning)
		return err
	}

	if _, err := fmt.Fprintln(r.env.stdout, signed); err != nil {
		rec.Failed(metrics.ReasonOutput)
		return fmt.Errorf("writing token: %w", err)
	}

	rec.Minted(r.env.now(), claims.ExpiresAt.Time)
	logger.Info("token minted",
		"device_id", cfg.DeviceID,
		"issuer", claims.Issuer,
		"subject", claims.Subject,
		"grant", claims.Grants[0],
		"expires_at", claims.ExpiresAt.Time.UTC().Format(time.RFC3339),
	)
	return nil
}

// writeMetrics exports the run's metrics when a textfile is configured. A
// failure here is logged but does not fail the run.
func (r *runner) writeMetrics(cfg config.MetricsConfig, rec *metrics.Recorder, start time.Time) {
	if !cfg.Enabled() {
		return
	}
	rec.ObserveRun(r.env.now().Sub(start))
	if err := rec.WriteTextfile(cfg.Textfile); err != nil {
		r.logger.Warn("failed to write metrics textfile", "path", cfg.Textfile, "error", err)
	}
}

func (r *runner) close() {
	if r.closer != nil {
		r.closer.Close() //nolint:errcheck
	}
}
