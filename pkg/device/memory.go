// Package device manages accelerator-resident buffers for volumes and
// projection sets.
//
// Buffers are addressed through opaque handles into an arena owned by a
// Manager; kernels obtain the backing storage through Data. The reference
// accelerator is the host CPU, so "device" memory is ordinary Go memory held
// by the arena, but the ownership rules are the same as for a discrete device:
// a handle belongs to the Manager that created it, released handles are dead,
// and no two live handles share storage.
//
// Example:
//
//	mgr := device.NewManager(device.WithCapacity(1 << 30))
//	buf, err := mgr.Allocate(device.Shape{nz, ny, nx})
//	if err != nil {
//	    return err
//	}
//	defer mgr.Release(buf)
//	if err := mgr.Upload(host, buf); err != nil {
//	    return err
//	}
package device

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"tomoproj/pkg/errs"
	"tomoproj/pkg/logging"
)

// elemSize is the size in bytes of one buffer element (float64).
const elemSize = 8

// Shape is the logical 3-D shape of a buffer, slowest axis first:
// (nz, ny, nx) for volumes and (views, rows, cols) for projection sets.
type Shape [3]int

// Len returns the element count.
func (s Shape) Len() int {
	return s[0] * s[1] * s[2]
}

// addressable reports whether the byte size of a valid shape fits in an int.
func (s Shape) addressable() bool {
	return s[0] <= math.MaxInt/elemSize/s[1]/s[2]
}

// Valid reports whether every dimension is positive.
func (s Shape) Valid() bool {
	return s[0] > 0 && s[1] > 0 && s[2] > 0
}

// String formats the shape as AxBxC.
func (s Shape) String() string {
	return fmt.Sprintf("%dx%dx%d", s[0], s[1], s[2])
}

// Buffer is an opaque handle to device memory tagged with its logical shape.
// The zero value is not a valid handle.
type Buffer struct {
	id    uint64
	shape Shape
}

// ID returns the arena slot of the buffer.
func (b Buffer) ID() uint64 { return b.id }

// Shape returns the logical shape.
func (b Buffer) Shape() Shape { return b.shape }

// Len returns the element count.
func (b Buffer) Len() int { return b.shape.Len() }

// IsZero reports whether b is the zero handle.
func (b Buffer) IsZero() bool { return b.id == 0 }

// String identifies the buffer in log output.
func (b Buffer) String() string {
	return fmt.Sprintf("buf#%d[%s]", b.id, b.shape)
}

type allocation struct {
	data  []float64
	shape Shape
}

func (a *allocation) bytes() int64 {
	return int64(cap(a.data)) * elemSize
}

// Stats reports arena occupancy in bytes.
type Stats struct {
	Capacity int64 // budget
	InUse    int64 // held by live buffers
	Pooled   int64 // held by released buffers kept for reuse
	Peak     int64 // high-water mark of InUse
	Live     int   // number of live buffers
}

// Manager owns an arena of device buffers. All methods are safe for
// concurrent use; the contents of a buffer are not locked (see Data).
type Manager struct {
	mu       sync.Mutex
	capacity int64
	pooling  bool
	nextID   uint64
	live     map[uint64]*allocation
	free     []*allocation // released blocks, ascending capacity
	inUse    int64
	pooled   int64
	peak     int64
}

// Option configures a Manager.
type Option func(*Manager)

// WithCapacity sets the memory budget in bytes. Values <= 0 keep the default,
// which is the physical memory of the machine.
func WithCapacity(bytes int64) Option {
	return func(m *Manager) {
		if bytes > 0 {
			m.capacity = bytes
		}
	}
}

// WithPooling enables or disables reuse of released buffers. Pooling is on by
// default.
func WithPooling(on bool) Option {
	return func(m *Manager) {
		m.pooling = on
	}
}

// NewManager creates an empty arena.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		capacity: int64(SystemMemory()),
		pooling:  true,
		live:     make(map[uint64]*allocation),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Allocate reserves a zero-filled buffer of the given shape.
//
// A released block of sufficient size is reused when pooling is on. When the
// budget would be exceeded the pool is dropped first; if the live buffers
// alone still leave no room, Allocate fails with errs.ErrOutOfMemory and does
// not retry.
func (m *Manager) Allocate(shape Shape) (Buffer, error) {
	const op = "device.Allocate"
	if !shape.Valid() {
		return Buffer{}, errs.Configuration(op, "shape %s must be positive in every dimension", shape)
	}
	if !shape.addressable() {
		return Buffer{}, errs.New(op, errs.ErrOutOfMemory, "shape %s exceeds the addressable size", shape)
	}
	n := shape.Len()
	need := int64(n) * elemSize

	m.mu.Lock()
	defer m.mu.Unlock()

	alloc := m.takeFree(n)
	if alloc == nil {
		if m.inUse+m.pooled+need > m.capacity && m.pooled > 0 {
			logging.Logger().Warn("device pool trimmed under memory pressure",
				"pooled", m.pooled, "need", need, "capacity", m.capacity)
			m.trimLocked()
		}
		if m.inUse+need > m.capacity {
			return Buffer{}, errs.New(op, errs.ErrOutOfMemory,
				"need %d bytes for %s, %d of %d in use", need, shape, m.inUse, m.capacity)
		}
		alloc = &allocation{data: make([]float64, n)}
	}
	alloc.shape = shape

	m.nextID++
	id := m.nextID
	m.live[id] = alloc
	m.inUse += alloc.bytes()
	if m.inUse > m.peak {
		m.peak = m.inUse
	}

	logging.Logger().Debug("device buffer allocated", "id", id, "shape", shape.String(), "bytes", alloc.bytes())
	return Buffer{id: id, shape: shape}, nil
}

// takeFree removes and returns the smallest pooled block that holds n
// elements without wasting more than half of it, or nil.
func (m *Manager) takeFree(n int) *allocation {
	if !m.pooling {
		return nil
	}
	i := sort.Search(len(m.free), func(i int) bool { return cap(m.free[i].data) >= n })
	if i == len(m.free) || cap(m.free[i].data) > 2*n {
		return nil
	}
	alloc := m.free[i]
	m.free = append(m.free[:i], m.free[i+1:]...)
	m.pooled -= alloc.bytes()

	alloc.data = alloc.data[:n]
	clear(alloc.data)
	return alloc
}

// Release returns a buffer to the manager. The handle is dead afterwards;
// releasing it again fails with errs.ErrInvalidHandle.
func (m *Manager) Release(b Buffer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	alloc, err := m.lookupLocked("device.Release", b)
	if err != nil {
		return err
	}
	delete(m.live, b.id)
	m.inUse -= alloc.bytes()

	if m.pooling {
		i := sort.Search(len(m.free), func(i int) bool { return cap(m.free[i].data) >= cap(alloc.data) })
		m.free = append(m.free, nil)
		copy(m.free[i+1:], m.free[i:])
		m.free[i] = alloc
		m.pooled += alloc.bytes()
	}

	logging.Logger().Debug("device buffer released", "id", b.id, "pooled", m.pooling)
	return nil
}

// Upload copies host data into b. The element counts must match exactly.
func (m *Manager) Upload(host []float64, b Buffer) error {
	data, err := m.Data(b)
	if err != nil {
		return err
	}
	if len(host) != len(data) {
		return errs.New("device.Upload", errs.ErrSizeMismatch,
			"host has %d elements, %s holds %d", len(host), b, len(data))
	}
	copy(data, host)
	return nil
}

// Download copies b into host. The element counts must match exactly.
func (m *Manager) Download(b Buffer, host []float64) error {
	data, err := m.Data(b)
	if err != nil {
		return err
	}
	if len(host) != len(data) {
		return errs.New("device.Download", errs.ErrSizeMismatch,
			"host has %d elements, %s holds %d", len(host), b, len(data))
	}
	copy(host, data)
	return nil
}

// Data returns the storage behind b for use by kernels. The slice stays valid
// until b is released. Access to the contents is not synchronised: a buffer
// being accumulated into must not be read concurrently.
func (m *Manager) Data(b Buffer) ([]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	alloc, err := m.lookupLocked("device.Data", b)
	if err != nil {
		return nil, err
	}
	return alloc.data, nil
}

// Zero fills b with zeros.
func (m *Manager) Zero(b Buffer) error {
	data, err := m.Data(b)
	if err != nil {
		return err
	}
	clear(data)
	return nil
}

// Trim drops every pooled block.
func (m *Manager) Trim() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trimLocked()
}

func (m *Manager) trimLocked() {
	m.free = nil
	m.pooled = 0
}

// Stats returns a snapshot of arena occupancy.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Capacity: m.capacity,
		InUse:    m.inUse,
		Pooled:   m.pooled,
		Peak:     m.peak,
		Live:     len(m.live),
	}
}

func (m *Manager) lookupLocked(op string, b Buffer) (*allocation, error) {
	alloc, ok := m.live[b.id]
	if !ok {
		return nil, errs.New(op, errs.ErrInvalidHandle, "%s is not a live buffer", b)
	}
	if alloc.shape != b.shape {
		return nil, errs.New(op, errs.ErrInvalidHandle, "%s does not match slot shape %s", b, alloc.shape)
	}
	return alloc, nil
}
