// Package snapshot freezes a target image (type catalog, memory regions and
// named variables) so it can be inspected later, away from the live target.
package snapshot

import (
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/dbgvis/rustval"
	"github.com/dbgvis/rustval/internal/fixture"
	"github.com/dbgvis/rustval/memory"
	"github.com/dbgvis/rustval/typedesc"
)

const formatVersion = 1

// ErrNotFound is returned by Load for a key with no stored snapshot.
var ErrNotFound = errors.New("snapshot: not found")

// Variable is a named value in the frozen image.
type Variable struct {
	Name string          `msgpack:"n"`
	Type typedesc.TypeID `msgpack:"t"`
	Addr uint64          `msgpack:"a"`
}

// Snapshot is a frozen target image.
type Snapshot struct {
	WordSize  uint64
	Catalog   *typedesc.Catalog
	Regions   []memory.Region
	Variables []Variable
}

type encSnapshot struct {
	Version   int             `msgpack:"v"`
	WordSize  uint64          `msgpack:"w"`
	Catalog   []byte          `msgpack:"c"`
	Regions   []memory.Region `msgpack:"r"`
	Variables []Variable      `msgpack:"vars"`
}

// Capture freezes catalog, the regions of mem and vars.
func Capture(wordSize uint64, catalog *typedesc.Catalog, mem *memory.Regions, vars ...rustval.Variable) *Snapshot {
	s := &Snapshot{WordSize: wordSize, Catalog: catalog, Regions: mem.Snapshot()}
	for _, v := range vars {
		s.Variables = append(s.Variables, Variable(v))
	}
	return s
}

// Sample returns the built-in sample program image for a 4- or 8-byte
// target. It is useful for demonstrations and smoke tests.
func Sample(wordSize uint64) (*Snapshot, error) {
	p, err := fixture.Build(wordSize)
	if err != nil {
		return nil, err
	}
	vars := make([]rustval.Variable, len(p.Variables))
	for i, v := range p.Variables {
		vars[i] = rustval.Variable{Name: v.Name, Type: v.Type, Addr: v.Addr}
	}
	return Capture(p.WordSize, p.Catalog, p.Memory, vars...), nil
}

// Marshal encodes the snapshot with msgpack.
func (s *Snapshot) Marshal() ([]byte, error) {
	catalog, err := typedesc.Marshal(s.Catalog)
	if err != nil {
		return nil, err
	}
	data, err := msgpack.Marshal(encSnapshot{
		Version:   formatVersion,
		WordSize:  s.WordSize,
		Catalog:   catalog,
		Regions:   s.Regions,
		Variables: s.Variables,
	})
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a snapshot produced by Marshal.
func Unmarshal(data []byte) (*Snapshot, error) {
	var enc encSnapshot
	if err := msgpack.Unmarshal(data, &enc); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if enc.Version != formatVersion {
		return nil, fmt.Errorf("decode snapshot: unsupported version %d", enc.Version)
	}
	catalog, err := typedesc.Unmarshal(enc.Catalog)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		WordSize:  enc.WordSize,
		Catalog:   catalog,
		Regions:   enc.Regions,
		Variables: enc.Variables,
	}, nil
}

// Save stores the snapshot under key.
func Save(store Storage, key string, s *Snapshot) error {
	data, err := s.Marshal()
	if err != nil {
		return err
	}
	return store.SaveState(key, data)
}

// Load reads the snapshot stored under key.
func Load(store Storage, key string) (*Snapshot, error) {
	data, ok, err := store.LoadState(key)
	if err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	return Unmarshal(data)
}

// Memory rebuilds a readable image from the frozen regions.
func (s *Snapshot) Memory() (*memory.Regions, error) {
	return memory.NewRegions(s.Regions...)
}

// Inspector opens an Inspector over the snapshot with its variables
// registered. Options given by the caller are applied last.
func (s *Snapshot) Inspector(opts ...rustval.Option) (*rustval.Inspector, error) {
	mem, err := s.Memory()
	if err != nil {
		return nil, err
	}
	vars := make([]rustval.Variable, len(s.Variables))
	for i, v := range s.Variables {
		vars[i] = rustval.Variable(v)
	}
	return rustval.New(s.Catalog, mem, append([]rustval.Option{rustval.WithVariables(vars...)}, opts...)...)
}
