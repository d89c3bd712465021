package memory

import (
	"slices"
	"sync"
)

// Request is one recorded ReadMemory call.
type Request struct {
	Addr uint64
	Size uint64
}

// Recorder wraps a Reader, records every request and can inject failures
// for chosen addresses.
type Recorder struct {
	r Reader

	mu       sync.Mutex
	requests []Request
	faults   map[uint64]Reason
}

// NewRecorder wraps r.
func NewRecorder(r Reader) *Recorder {
	return &Recorder{r: r, faults: make(map[uint64]Reason)}
}

// FailAt makes any read whose range contains addr fail with reason.
func (rec *Recorder) FailAt(addr uint64, reason Reason) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.faults[addr] = reason
}

// Requests returns the reads issued so far.
func (rec *Recorder) Requests() []Request {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return slices.Clone(rec.requests)
}

// BytesRequested sums the sizes of all recorded reads.
func (rec *Recorder) BytesRequested() uint64 {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	var n uint64
	for _, r := range rec.requests {
		n += r.Size
	}
	return n
}

// Reset forgets recorded requests but keeps injected faults.
func (rec *Recorder) Reset() {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.requests = nil
}

// ReadMemory implements Reader.
func (rec *Recorder) ReadMemory(addr, size uint64) ([]byte, error) {
	rec.mu.Lock()
	rec.requests = append(rec.requests, Request{Addr: addr, Size: size})
	for fa, reason := range rec.faults {
		if fa >= addr && fa < addr+max(size, 1) {
			rec.mu.Unlock()
			return nil, &ReadError{Addr: addr, Size: size, Reason: reason}
		}
	}
	rec.mu.Unlock()
	return rec.r.ReadMemory(addr, size)
}
