package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"gitlab.com/d21d3q/godsmr/internal/config"
	"gitlab.com/d21d3q/godsmr/internal/metrics"
	"gitlab.com/d21d3q/godsmr/internal/serialport"
	"gitlab.com/d21d3q/godsmr/pkg/godsmr"
)

const (
	variantPlaintext = "plaintext"
	variantEncrypted = "encrypted"
)

// closeGrace bounds how long a cancelled run waits for a pending read to
// return after the source was closed.
const closeGrace = time.Second

func run(ctx context.Context, cfg config.Config, out io.Writer) error {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)

	src, err := openSource(cfg)
	if err != nil {
		return err
	}
	return readTelegrams(ctx, cfg, src, out)
}

// readTelegrams prints every telegram read from src until src is exhausted
// or ctx is done. src is closed on return.
func readTelegrams(ctx context.Context, cfg config.Config, src io.ReadCloser, out io.Writer) error {
	closeSrc := sync.OnceFunc(func() { src.Close() })
	defer closeSrc()

	acc, describe, err := newAccumulator(cfg)
	if err != nil {
		return err
	}
	variant := variantPlaintext
	if cfg.Encrypted {
		variant = variantEncrypted
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg, variant)
	if cfg.MetricsAddr != "" {
		go serveMetrics(ctx, cfg.MetricsAddr, reg)
	}

	log := logrus.WithField("variant", variant)
	log.WithFields(logrus.Fields{"port": cfg.Port, "input": cfg.Input}).Info("reading telegrams")

	reader := godsmr.NewReader(src, acc, godsmr.ReaderOptions{
		IdleTimeout: cfg.IdleTimeout,
		Logger:      log,
		Observer:    m,
	})
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")

	done := make(chan error, 1)
	go func() {
		done <- reader.Run(ctx, func(telegram []byte) error {
			summary := describe(telegram)
			summary["variant"] = variant
			return enc.Encode(summary)
		})
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}
	// Closing unblocks pipes and ports; a blocking terminal read may
	// never return.
	closeSrc()
	select {
	case err := <-done:
		return err
	case <-time.After(closeGrace):
		log.Warn("pending read did not return after close, abandoning it")
		return ctx.Err()
	}
}

// newAccumulator builds the accumulator for cfg and a function describing
// each telegram it emits.
func newAccumulator(cfg config.Config) (godsmr.Accumulator, func([]byte) map[string]any, error) {
	if !cfg.Encrypted {
		acc, err := godsmr.NewPacketAccumulator(cfg.BufferSize, cfg.CheckCRC)
		if err != nil {
			return nil, nil, err
		}
		return acc, func(telegram []byte) map[string]any {
			return map[string]any{
				"length":   len(telegram),
				"telegram": string(telegram),
			}
		}, nil
	}
	acc, err := godsmr.NewEncryptedPacketAccumulator(cfg.BufferSize)
	if err != nil {
		return nil, nil, err
	}
	if err := acc.SetKey(cfg.KeyHex); err != nil {
		return nil, nil, fmt.Errorf("set key: %w", err)
	}
	return acc, func(telegram []byte) map[string]any {
		h := acc.Header()
		return map[string]any{
			"length":             len(telegram),
			"telegram":           string(telegram),
			"system_title":       h.SystemTitleString(),
			"invocation_counter": h.InvocationCounter,
		}
	}, nil
}

func openSource(cfg config.Config) (io.ReadCloser, error) {
	switch {
	case cfg.Input == "-":
		return os.Stdin, nil
	case cfg.Input != "":
		f, err := os.Open(cfg.Input)
		if err != nil {
			return nil, err
		}
		return f, nil
	default:
		return serialport.Open(cfg.Serial())
	}
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	logrus.WithField("addr", addr).Info("serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logrus.WithError(err).Error("metrics server failed")
	}
}
