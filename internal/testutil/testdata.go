package testutil

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// LoadHex decodes a hex fixture from testdata relative to the repo root.
// Whitespace and line breaks in the file are ignored.
func LoadHex(t *testing.T, rel string) []byte {
	t.Helper()
	clean := strings.Join(strings.Fields(string(readTestdata(t, rel))), "")
	data, err := hex.DecodeString(clean)
	if err != nil {
		t.Fatalf("decode %s: %v", rel, err)
	}
	return data
}

// LoadBytes returns a testdata file verbatim.
func LoadBytes(t *testing.T, rel string) []byte {
	t.Helper()
	return readTestdata(t, rel)
}

func readTestdata(t *testing.T, rel string) []byte {
	t.Helper()
	candidates := []string{
		filepath.Join("testdata", rel),
		filepath.Join("..", "testdata", rel),
		filepath.Join("..", "..", "testdata", rel),
	}
	for _, path := range candidates {
		if data, err := os.ReadFile(path); err == nil {
			return data
		}
	}
	t.Fatalf("unable to locate testdata file %s", rel)
	return nil
}
