// Package storage keeps the bus address in non-volatile memory.
package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNoRecord is returned when no valid address record exists
	ErrNoRecord = errors.New("no address record")
	// ErrOutOfRange is returned for accesses outside the flash or a full log
	ErrOutOfRange = errors.New("out of range")
	// ErrWriteRequiresErase is returned when a write would set erased bits
	ErrWriteRequiresErase = errors.New("flash write requires erase")
)

// Flash provides raw access to non-volatile memory: addresses and erase
// blocks only. Erased bytes read as 0xFF and writes can only clear bits.
type Flash interface {
	SizeBytes() uint32
	EraseBlockBytes() uint32
	ReadAt(p []byte, off uint32) (int, error)
	WriteAt(p []byte, off uint32) (int, error)
	Erase(off, size uint32) error
}

// MemFlash is a Flash held in memory, for tests and simulation
type MemFlash struct {
	data  []byte
	block uint32
}

// NewMemFlash returns an erased flash of size bytes with the given erase block size
func NewMemFlash(size, block uint32) *MemFlash {
	m := &MemFlash{data: make([]byte, size), block: block}
	for i := range m.data {
		m.data[i] = 0xFF
	}
	return m
}

func (m *MemFlash) SizeBytes() uint32       { return uint32(len(m.data)) }
func (m *MemFlash) EraseBlockBytes() uint32 { return m.block }

func (m *MemFlash) ReadAt(p []byte, off uint32) (int, error) {
	if off >= uint32(len(m.data)) {
		return 0, fmt.Errorf("flash read at %d: %w", off, ErrOutOfRange)
	}
	return copy(p, m.data[off:]), nil
}

func (m *MemFlash) WriteAt(p []byte, off uint32) (int, error) {
	if off >= uint32(len(m.data)) || int(off)+len(p) > len(m.data) {
		return 0, fmt.Errorf("flash write at %d: %w", off, ErrOutOfRange)
	}
	for i, b := range p {
		if m.data[int(off)+i]&b != b {
			return 0, ErrWriteRequiresErase
		}
	}
	return copy(m.data[off:], p), nil
}

func (m *MemFlash) Erase(off, size uint32) error {
	if size == 0 {
		return nil
	}
	if off%m.block != 0 || size%m.block != 0 || off+size > uint32(len(m.data)) {
		return fmt.Errorf("flash erase off=%d size=%d: %w", off, size, ErrOutOfRange)
	}
	for i := off; i < off+size; i++ {
		m.data[i] = 0xFF
	}
	return nil
}
