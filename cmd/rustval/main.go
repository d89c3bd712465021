// Command rustval decodes and prints values of a stopped Rust program from a
// stored snapshot, a raw memory image or the built-in sample program.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/dbgvis/rustval"
	"github.com/dbgvis/rustval/layout"
	"github.com/dbgvis/rustval/render"
	"github.com/dbgvis/rustval/snapshot"
	"github.com/dbgvis/rustval/typedesc"
)

var (
	nameStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#87CEEB"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	opaqueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))
)

var errGoldenMismatch = errors.New("listing differs from golden file")

func main() {
	config, err := ParseFlags(os.Args[0], os.Args[1:], os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := zap.NewNop()
	if config.Verbose {
		if logger, err = zap.NewDevelopment(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		rustval.SetLogger(logger)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, config, os.Stdout, logger); err != nil {
		logger.Error("rustval failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, "rustval:", err)
		os.Exit(1)
	}
}

// run opens the configured source and prints the selected values.
func run(ctx context.Context, config *Config, out io.Writer, logger *zap.Logger) error {
	opts := []rustval.Option{
		rustval.WithMaxDepth(config.MaxDepth),
		rustval.WithMaxSequenceLen(config.MaxSequenceLen),
		rustval.WithLogger(logger),
	}
	insp, closeSource, err := open(config, logger, opts)
	if err != nil {
		return err
	}
	defer closeSource()
	defer insp.Close()

	if config.Explain {
		return explain(out, insp.Catalog())
	}

	entries, err := selectValues(ctx, config, insp)
	if err != nil {
		return err
	}
	renderOpts := render.Options{ShowCounts: config.ShowCounts, ShowTypes: config.ShowTypes}

	if config.GoldenFile != "" {
		want, err := os.ReadFile(config.GoldenFile)
		if err != nil {
			return fmt.Errorf("read golden file: %w", err)
		}
		diff, err := render.Diff(string(want), render.Listing(entries, renderOpts))
		if err != nil {
			return err
		} else if diff != "" {
			_, _ = io.WriteString(out, diff)
			return errGoldenMismatch
		}
		logger.Info("listing matches golden file", zap.String("file", config.GoldenFile), zap.Int("values", len(entries)))
		return nil
	}

	for _, e := range entries {
		if config.Tree {
			if err := render.Tree(e.Name, e.Value).Write(out); err != nil {
				return err
			}
			continue
		}
		style := valueStyle
		if e.Value == nil || len(e.Value.Opaques()) > 0 {
			style = opaqueStyle
		}
		text := render.StringWithOptions(e.Value, renderOpts)
		if _, err := fmt.Fprintf(out, "%s = %s\n", nameStyle.Render(e.Name), style.Render(text)); err != nil {
			return err
		}
	}
	return nil
}

// open builds an Inspector over the configured source. The returned func
// releases the source once the Inspector is closed.
func open(config *Config, logger *zap.Logger, opts []rustval.Option) (*rustval.Inspector, func(), error) {
	if config.ImagePath != "" {
		data, err := os.ReadFile(config.CatalogPath)
		if err != nil {
			return nil, nil, fmt.Errorf("read catalog: %w", err)
		}
		catalog, err := typedesc.Unmarshal(data)
		if err != nil {
			return nil, nil, err
		}
		img, err := rustval.OpenImage(config.ImagePath, config.ImageBase)
		if err != nil {
			return nil, nil, err
		}
		insp, err := rustval.New(catalog, img, opts...)
		if err != nil {
			_ = img.Close()
			return nil, nil, err
		}
		return insp, func() { _ = img.Close() }, nil
	}

	var store snapshot.Storage
	if config.StorageDir != "" {
		var err error
		if store, err = snapshot.NewBadgerStorage(config.StorageDir, config.CacheMB); err != nil {
			return nil, nil, err
		}
	}
	closeStore := func() {
		if store != nil {
			store.Close()
		}
	}

	var s *snapshot.Snapshot
	var err error
	if config.SnapshotKey != "" {
		s, err = snapshot.Load(store, config.SnapshotKey)
	} else {
		s, err = snapshot.Sample(config.SampleWord)
	}
	if err == nil && config.SaveKey != "" {
		if err = snapshot.Save(store, config.SaveKey, s); err == nil {
			logger.Info("snapshot saved", zap.String("key", config.SaveKey), zap.Int("regions", len(s.Regions)))
		}
	}
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	insp, err := s.Inspector(opts...)
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	return insp, closeStore, nil
}

func selectValues(ctx context.Context, config *Config, insp *rustval.Inspector) ([]render.Entry, error) {
	switch {
	case config.Type != "":
		id := typedesc.TypeID(config.Type)
		return []render.Entry{{Name: fmt.Sprintf("%s@%#x", id, config.Addr), Value: insp.Decode(id, config.Addr)}}, nil
	case config.Variable != "":
		r := insp.DecodeVariable(config.Variable)
		if err := r.Err(); err != nil {
			return nil, fmt.Errorf("%s: %w", config.Variable, err)
		}
		return []render.Entry{{Name: r.Name, Value: r.Value()}}, nil
	}

	vars := insp.Variables()
	reqs := make([]rustval.Request, len(vars))
	for i, v := range vars {
		reqs[i] = rustval.Request(v)
	}
	results, err := insp.DecodeAll(ctx, reqs)
	if err != nil {
		return nil, err
	}
	entries := make([]render.Entry, len(results))
	for i, r := range results {
		entries[i] = render.Entry{Name: r.Name, Value: r.Value()}
	}
	return entries, nil
}

// explain prints the decoding strategy of every catalog type, marking the
// ones that will decode as opaque with the reason.
func explain(out io.Writer, catalog *typedesc.Catalog) error {
	strategies := layout.Explain(catalog)
	for _, id := range catalog.IDs() {
		line := fmt.Sprintf("%s: %v", nameStyle.Render(string(id)), strategies[id])
		if strategies[id] == layout.StrategyOpaque {
			desc, _ := catalog.Resolve(id)
			line += " " + opaqueStyle.Render(fmt.Sprintf("(%v)", layout.Diagnose(desc)))
		}
		if _, err := fmt.Fprintln(out, line); err != nil {
			return err
		}
	}
	return nil
}
