package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"

	"github.com/dbgvis/rustval"
)

// Config holds the command line options.
type Config struct {
	// Sources, exactly one of which is used.
	SampleWord  uint64 // built-in sample program
	SnapshotKey string // snapshot stored in StorageDir
	ImagePath   string // raw memory image mapped at ImageBase
	ImageBase   uint64
	CatalogPath string // msgpack catalog for ImagePath

	StorageDir string
	SaveKey    string
	CacheMB    int

	// Selection; with neither set every registered variable is decoded.
	Variable string
	Type     string
	Addr     uint64

	MaxDepth       int
	MaxSequenceLen uint64
	ShowCounts     bool
	ShowTypes      bool
	Tree           bool
	Explain        bool
	GoldenFile     string
	Verbose        bool
}

func parseAddr(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return v, nil
}

// ParseFlags builds a Config from command line arguments.
func ParseFlags(name string, args []string, output io.Writer) (*Config, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(output)
	config := &Config{}

	sample := fs.Uint("sample", 0, "Inspect the built-in sample program for a 4 or 8 byte word size")
	fs.StringVar(&config.SnapshotKey, "snapshot", "", "Key of a stored snapshot to inspect (requires -storage)")
	fs.StringVar(&config.ImagePath, "image", "", "Raw memory image file to inspect (requires -catalog)")
	base := fs.String("base", "0", "Target address the image file is mapped at")
	fs.StringVar(&config.CatalogPath, "catalog", "", "Type catalog file for -image")
	fs.StringVar(&config.StorageDir, "storage", "", "Directory of the snapshot store")
	fs.StringVar(&config.SaveKey, "save", "", "Store the inspected sample under this key (requires -storage)")
	fs.IntVar(&config.CacheMB, "cachemb", 64, "Snapshot store memory budget in MB")
	fs.StringVar(&config.Variable, "var", "", "Decode only the named variable")
	fs.StringVar(&config.Type, "type", "", "Type id of the value to decode at -addr")
	addr := fs.String("addr", "", "Address of the value to decode, decimal or 0x hex")
	fs.IntVar(&config.MaxDepth, "depth", rustval.DefaultMaxDepth, "Maximum nesting depth")
	fs.Uint64Var(&config.MaxSequenceLen, "maxlen", rustval.DefaultMaxSequenceLen, "Maximum elements decoded per sequence")
	fs.BoolVar(&config.ShowCounts, "counts", false, "Show lengths, capacities and reference counts")
	fs.BoolVar(&config.ShowTypes, "types", false, "Suffix scalars with their type")
	fs.BoolVar(&config.Tree, "tree", false, "Print values as indented trees")
	fs.BoolVar(&config.Explain, "explain", false, "Print the decoding strategy of every catalog type instead of values")
	fs.StringVar(&config.GoldenFile, "golden", "", "Compare the listing against this file and print a diff")
	fs.BoolVar(&config.Verbose, "v", false, "Log decode diagnostics")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	var err error
	if config.ImageBase, err = parseAddr(*base); err != nil {
		return nil, err
	}
	if config.Addr, err = parseAddr(*addr); err != nil {
		return nil, err
	}
	config.SampleWord = uint64(*sample)

	var sources int
	for _, set := range []bool{config.SampleWord != 0, config.SnapshotKey != "", config.ImagePath != ""} {
		if set {
			sources++
		}
	}
	switch {
	case sources != 1:
		return nil, errors.New("usage: -sample 8 | -storage dir -snapshot key | -image file -catalog file -type id -addr 0x...")
	case config.SampleWord != 0 && config.SampleWord != 4 && config.SampleWord != 8:
		return nil, fmt.Errorf("-sample must be 4 or 8, got %d", config.SampleWord)
	case (config.SnapshotKey != "" || config.SaveKey != "") && config.StorageDir == "":
		return nil, errors.New("-snapshot and -save require -storage")
	case config.ImagePath != "" && config.CatalogPath == "":
		return nil, errors.New("-image requires -catalog")
	case config.ImagePath != "" && config.Type == "":
		return nil, errors.New("-image requires -type and -addr")
	case config.Type != "" && *addr == "":
		return nil, errors.New("-type requires -addr")
	case config.Type != "" && config.Variable != "":
		return nil, errors.New("-var and -type are mutually exclusive")
	case config.MaxDepth <= 0:
		return nil, fmt.Errorf("-depth must be positive, got %d", config.MaxDepth)
	}
	return config, nil
}
