//go:build tinygo && (rp2040 || rp2350)

package storage

import (
	"fmt"
	"machine"
)

// MachineFlash exposes the data area TinyGo reserves after the program
// image through machine.Flash.
type MachineFlash struct{}

func (MachineFlash) SizeBytes() uint32 {
	sz := machine.Flash.Size()
	if sz <= 0 {
		return 0
	}
	if sz > int64(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(sz)
}

func (MachineFlash) EraseBlockBytes() uint32 {
	bs := machine.Flash.EraseBlockSize()
	if bs <= 0 {
		return 0
	}
	return uint32(bs)
}

func (MachineFlash) ReadAt(p []byte, off uint32) (int, error) {
	n, err := machine.Flash.ReadAt(p, int64(off))
	if err != nil {
		return n, fmt.Errorf("flash read at %d: %w", off, err)
	}
	return n, nil
}

func (MachineFlash) WriteAt(p []byte, off uint32) (int, error) {
	n, err := machine.Flash.WriteAt(p, int64(off))
	if err != nil {
		return n, fmt.Errorf("flash write at %d: %w", off, err)
	}
	return n, nil
}

func (f MachineFlash) Erase(off, size uint32) error {
	if size == 0 {
		return nil
	}
	bs := f.EraseBlockBytes()
	if bs == 0 || off%bs != 0 || size%bs != 0 {
		return fmt.Errorf("flash erase off=%d size=%d: %w", off, size, ErrOutOfRange)
	}
	return machine.Flash.EraseBlocks(int64(off/bs), int64(size/bs))
}
