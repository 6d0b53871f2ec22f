package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gitlab.com/d21d3q/godsmr/internal/config"
	"gitlab.com/d21d3q/godsmr/internal/testutil"
)

type summary struct {
	Variant           string `json:"variant"`
	Length            int    `json:"length"`
	Telegram          string `json:"telegram"`
	SystemTitle       string `json:"system_title"`
	InvocationCounter uint32 `json:"invocation_counter"`
}

func writeCapture(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.bin")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func execute(t *testing.T, args ...string) ([]summary, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	err := cmd.ExecuteContext(context.Background())

	var got []summary
	dec := json.NewDecoder(&out)
	for {
		var s summary
		derr := dec.Decode(&s)
		if errors.Is(derr, io.EOF) {
			break
		}
		require.NoError(t, derr)
		got = append(got, s)
	}
	return got, err
}

func TestReadPlaintextCapture(t *testing.T) {
	raw := testutil.LoadBytes(t, "dsmr/kaifa_telegram.txt")
	stream := append([]byte("noise"), raw...)
	stream = append(stream, raw...)
	path := writeCapture(t, stream)

	got, err := execute(t, "--input", path, "--log-level", "error")
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, s := range got {
		require.Equal(t, variantPlaintext, s.Variant)
		require.True(t, strings.HasPrefix(s.Telegram, "/KFM5KAIFA-METER\r\n"))
		require.True(t, strings.HasSuffix(s.Telegram, "!"))
		require.Equal(t, len(s.Telegram), s.Length)
		require.Empty(t, s.SystemTitle)
	}
}

func TestReadEncryptedCapture(t *testing.T) {
	packet := testutil.LoadHex(t, "dsmr/encrypted_packet.hex")
	path := writeCapture(t, append(packet, packet...))

	got, err := execute(t,
		"--input", path,
		"--encrypted",
		"--key", " AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA ",
		"--log-level", "error",
	)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, s := range got {
		require.Equal(t, variantEncrypted, s.Variant)
		require.Equal(t, "SYSTEMID", s.SystemTitle)
		require.Equal(t, uint32(0x10000001), s.InvocationCounter)
		require.Equal(t, len(packet)-18-12, s.Length)
		require.True(t, strings.HasPrefix(s.Telegram, "/EST5\\253710000_A\r\n"))
	}
}

func TestReadWrongKeyPrintsNothing(t *testing.T) {
	packet := testutil.LoadHex(t, "dsmr/encrypted_packet.hex")
	path := writeCapture(t, packet)

	got, err := execute(t,
		"--input", path,
		"--encrypted",
		"--key", "BBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB",
		"--log-level", "panic",
	)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestResolveConfigErrors(t *testing.T) {
	_, err := execute(t, "--log-level", "error")
	require.ErrorContains(t, err, "either port or input")

	_, err = execute(t, "--input", "x", "--encrypted", "--key", "AA")
	require.Error(t, err)

	_, err = execute(t, "--config", filepath.Join(t.TempDir(), "missing.toml"))
	require.ErrorContains(t, err, "load config")
}

func TestResolveConfigFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "godsmr.toml")
	require.NoError(t, os.WriteFile(path, []byte("input = \"file.bin\"\nbuffer_size = 100\ncheck_crc = true\n"), 0o600))

	cmd := newRootCmd()
	var fv flagValues
	fv.configPath = path
	require.NoError(t, cmd.ParseFlags([]string{"--no-crc", "--buffer-size", "200"}))
	fv.noCRC = true
	fv.bufferSize = 200

	cfg, err := resolveConfig(cmd, fv)
	require.NoError(t, err)
	require.Equal(t, "file.bin", cfg.Input)
	require.Equal(t, 200, cfg.BufferSize)
	require.False(t, cfg.CheckCRC)
}

func pipeConfig() config.Config {
	cfg := config.Default()
	cfg.Input = "-"
	cfg.CheckCRC = false
	cfg.LogLevel = "error"
	return cfg
}

func TestReadTelegramsStopsOnCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var out bytes.Buffer
	errc := make(chan error, 1)
	go func() { errc <- readTelegrams(ctx, pipeConfig(), pr, &out) }()

	_, err := pw.Write([]byte("/some data!/partial"))
	require.NoError(t, err)
	cancel()

	select {
	case err := <-errc:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("readTelegrams kept reading after cancellation")
	}
	require.Contains(t, out.String(), `"telegram": "/some data!"`)
	require.NotContains(t, out.String(), "partial")
}

// stuckSource ignores Close, like a blocking terminal read.
type stuckSource struct {
	reading chan struct{}
	release chan struct{}
}

func (s stuckSource) Read([]byte) (int, error) {
	close(s.reading)
	<-s.release
	return 0, io.EOF
}

func (s stuckSource) Close() error { return nil }

func TestReadTelegramsAbandonsStuckRead(t *testing.T) {
	src := stuckSource{reading: make(chan struct{}), release: make(chan struct{})}
	defer close(src.release)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- readTelegrams(ctx, pipeConfig(), src, io.Discard) }()
	<-src.reading
	cancel()

	select {
	case err := <-errc:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(closeGrace + 4*time.Second):
		t.Fatal("readTelegrams waited on a read that never returns")
	}
}
