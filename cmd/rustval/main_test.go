package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dbgvis/rustval/internal/fixture"
	"github.com/dbgvis/rustval/typedesc"
)

func parse(t *testing.T, args ...string) *Config {
	t.Helper()
	cfg, err := ParseFlags("rustval", args, io.Discard)
	require.NoError(t, err)
	return cfg
}

func sampleListing(word uint64) string {
	var sb strings.Builder
	for _, v := range fixture.MustBuild(word).Variables {
		sb.WriteString(v.Name + " = " + v.Want + "\n")
	}
	return sb.String()
}

func TestRunGolden(t *testing.T) {
	dir := t.TempDir()
	golden := filepath.Join(dir, "sample.golden")
	require.NoError(t, os.WriteFile(golden, []byte(sampleListing(8)), 0o600))

	var out bytes.Buffer
	err := run(context.Background(), parse(t, "-sample", "8", "-golden", golden), &out, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.Empty(t, out.String())

	// The 4-byte sample renders identically.
	out.Reset()
	err = run(context.Background(), parse(t, "-sample", "4", "-golden", golden), &out, zaptest.NewLogger(t))
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(golden, []byte("str1 = \"other\"\n"), 0o600))
	out.Reset()
	err = run(context.Background(), parse(t, "-sample", "8", "-golden", golden), &out, zaptest.NewLogger(t))
	require.ErrorIs(t, err, errGoldenMismatch)
	require.Contains(t, out.String(), "--- want")
	require.Contains(t, out.String(), `-str1 = "other"`)
}

func TestRunSelectsVariable(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), parse(t, "-sample", "8", "-var", "vector_ints", "-counts"), &out, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.Contains(t, out.String(), "vector_ints")
	require.Contains(t, out.String(), "[1, 2, 3] (len 3, cap 3)")

	err = run(context.Background(), parse(t, "-sample", "8", "-var", "missing"), &out, zaptest.NewLogger(t))
	require.Error(t, err)
}

func TestRunTree(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), parse(t, "-sample", "8", "-var", "tuple", "-tree"), &out, zaptest.NewLogger(t))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	require.True(t, strings.HasPrefix(lines[0], "tuple: "))
	require.True(t, strings.HasPrefix(lines[1], "  0: "))
}

func TestRunSaveAndLoadSnapshot(t *testing.T) {
	store := filepath.Join(t.TempDir(), "db")
	var out bytes.Buffer
	err := run(context.Background(), parse(t, "-sample", "4", "-storage", store, "-save", "run1", "-var", "rc"), &out, zaptest.NewLogger(t))
	require.NoError(t, err)

	golden := filepath.Join(t.TempDir(), "run1.golden")
	require.NoError(t, os.WriteFile(golden, []byte(sampleListing(4)), 0o600))
	out.Reset()
	err = run(context.Background(), parse(t, "-storage", store, "-snapshot", "run1", "-golden", golden), &out, zaptest.NewLogger(t))
	require.NoError(t, err, out.String())
}

func TestRunImage(t *testing.T) {
	b := typedesc.NewBuilder(8)
	i32 := b.Primitive(typedesc.I32)
	catalog, err := b.Catalog()
	require.NoError(t, err)
	encoded, err := typedesc.Marshal(catalog)
	require.NoError(t, err)

	dir := t.TempDir()
	catalogPath := filepath.Join(dir, "types.msgpack")
	imagePath := filepath.Join(dir, "core.bin")
	require.NoError(t, os.WriteFile(catalogPath, encoded, 0o600))
	require.NoError(t, os.WriteFile(imagePath, []byte{0, 0, 0, 0, 0x2a, 0, 0, 0}, 0o600))

	var out bytes.Buffer
	cfg := parse(t, "-image", imagePath, "-catalog", catalogPath, "-base", "0x1000",
		"-type", string(i32), "-addr", "0x1004", "-types")
	require.NoError(t, run(context.Background(), cfg, &out, zaptest.NewLogger(t)))
	require.Contains(t, out.String(), "= 42i32")

	out.Reset()
	cfg = parse(t, "-image", imagePath, "-catalog", catalogPath, "-base", "0x1000",
		"-type", string(i32), "-addr", "0x2000")
	require.NoError(t, run(context.Background(), cfg, &out, zaptest.NewLogger(t)))
	require.Contains(t, out.String(), "<error:")
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := run(ctx, parse(t, "-sample", "8"), io.Discard, zaptest.NewLogger(t))
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunExplain(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), parse(t, "-sample", "8", "-explain"), &out, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.Contains(t, out.String(), "String")
	require.Contains(t, out.String(), "NicheEnum")
	require.Contains(t, out.String(), "SharedPointer")
	require.NotContains(t, out.String(), "Opaque")
}
