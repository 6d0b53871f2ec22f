package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"gitlab.com/d21d3q/godsmr/internal/config"
)

type flagValues struct {
	configPath  string
	port        string
	input       string
	baud        int
	parity      string
	dataBits    int
	encrypted   bool
	keyHex      string
	noCRC       bool
	bufferSize  int
	idleTimeout time.Duration
	readTimeout time.Duration
	metricsAddr string
	logLevel    string
}

func newRootCmd() *cobra.Command {
	var fv flagValues
	defaults := config.Default()
	cmd := &cobra.Command{
		Use:   "godsmr-read",
		Short: "Read DSMR P1 telegrams from a smart meter",
		Long: "godsmr-read reassembles DSMR P1 telegrams from a serial port or a capture file,\n" +
			"verifies the CRC or decrypts AES-128-GCM frames, and prints each telegram as JSON.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, fv)
			if err != nil {
				return err
			}
			err = run(cmd.Context(), cfg, cmd.OutOrStdout())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	flags := cmd.PersistentFlags()
	flags.StringVar(&fv.configPath, "config", "", "TOML configuration file")
	flags.StringVar(&fv.port, "port", "", "serial device of the P1 port, e.g. /dev/ttyUSB0")
	flags.StringVar(&fv.input, "input", "", "read a captured stream from a file instead of a port (- for stdin)")
	flags.IntVar(&fv.baud, "baud", defaults.Baud, "baud rate")
	flags.StringVar(&fv.parity, "parity", defaults.Parity, "parity: none, even or odd")
	flags.IntVar(&fv.dataBits, "data-bits", defaults.DataBits, "data bits: 7 or 8")
	flags.BoolVar(&fv.encrypted, "encrypted", false, "expect AES-128-GCM encrypted frames")
	flags.StringVar(&fv.keyHex, "key", "", "hex-encoded 16-byte AES key (32 hex chars)")
	flags.BoolVar(&fv.noCRC, "no-crc", false, "do not require a CRC trailer on plaintext telegrams")
	flags.IntVar(&fv.bufferSize, "buffer-size", defaults.BufferSize, "maximum telegram size in bytes")
	flags.DurationVar(&fv.idleTimeout, "idle-timeout", defaults.IdleTimeout, "drop a partial telegram after this much silence (0 disables)")
	flags.DurationVar(&fv.readTimeout, "read-timeout", defaults.ReadTimeout, "serial read timeout")
	flags.StringVar(&fv.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9100")
	flags.StringVar(&fv.logLevel, "log-level", defaults.LogLevel, "log level")
	return cmd
}

// resolveConfig loads the config file, if any, and applies the flags the user
// set explicitly on top of it.
func resolveConfig(cmd *cobra.Command, fv flagValues) (config.Config, error) {
	cfg := config.Default()
	if fv.configPath != "" {
		loaded, err := config.Load(fv.configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	changed := cmd.Flags().Changed
	if changed("port") {
		cfg.Port = fv.port
	}
	if changed("input") {
		cfg.Input = fv.input
	}
	if changed("baud") {
		cfg.Baud = fv.baud
	}
	if changed("parity") {
		cfg.Parity = fv.parity
	}
	if changed("data-bits") {
		cfg.DataBits = fv.dataBits
	}
	if changed("encrypted") {
		cfg.Encrypted = fv.encrypted
	}
	if changed("key") {
		cfg.KeyHex = strings.TrimSpace(fv.keyHex)
	}
	if changed("no-crc") {
		cfg.CheckCRC = !fv.noCRC
	}
	if changed("buffer-size") {
		cfg.BufferSize = fv.bufferSize
	}
	if changed("idle-timeout") {
		cfg.IdleTimeout = fv.idleTimeout
	}
	if changed("read-timeout") {
		cfg.ReadTimeout = fv.readTimeout
	}
	if changed("metrics-addr") {
		cfg.MetricsAddr = fv.metricsAddr
	}
	if changed("log-level") {
		cfg.LogLevel = fv.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		// A second signal kills the process if shutdown stalls.
		<-ctx.Done()
		stop()
	}()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		logrus.Fatal(err)
	}
}
