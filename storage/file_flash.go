//go:build !tinygo

package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

const (
	fileFlashDefaultSize = 64 * 1024
	fileFlashEraseBlock  = 4096
)

// FileFlash is a Flash backed by a file, used by the simulator so the
// address survives restarts.
type FileFlash struct {
	mu     sync.Mutex
	f      *os.File
	size   uint32
	erased [fileFlashEraseBlock]byte
}

// OpenFileFlash opens or creates an image at path. New images are erased.
func OpenFileFlash(path string) (*FileFlash, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open flash image: %w", err)
	}

	ff := &FileFlash{f: f, size: fileFlashDefaultSize}
	for i := range ff.erased {
		ff.erased[i] = 0xFF
	}

	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat flash image: %w", err)
	}
	if st.Size() > 0 {
		if st.Size() > int64(^uint32(0)) {
			_ = f.Close()
			return nil, fmt.Errorf("flash image %s: %w", path, ErrOutOfRange)
		}
		ff.size = uint32(st.Size())
		return ff, nil
	}
	for off := uint32(0); off < ff.size; off += fileFlashEraseBlock {
		if _, err := f.WriteAt(ff.erased[:], int64(off)); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("format flash image: %w", err)
		}
	}
	return ff, nil
}

// Close releases the image file
func (f *FileFlash) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.f.Close()
}

func (f *FileFlash) SizeBytes() uint32       { return f.size }
func (f *FileFlash) EraseBlockBytes() uint32 { return fileFlashEraseBlock }

func (f *FileFlash) ReadAt(p []byte, off uint32) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if off >= f.size {
		return 0, fmt.Errorf("flash read at %d: %w", off, ErrOutOfRange)
	}
	if maxN := int(f.size - off); len(p) > maxN {
		p = p[:maxN]
	}
	n, err := f.f.ReadAt(p, int64(off))
	if errors.Is(err, io.EOF) {
		err = nil
	}
	return n, err
}

func (f *FileFlash) WriteAt(p []byte, off uint32) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if off >= f.size || uint64(off)+uint64(len(p)) > uint64(f.size) {
		return 0, fmt.Errorf("flash write at %d: %w", off, ErrOutOfRange)
	}

	cur := make([]byte, len(p))
	if _, err := f.f.ReadAt(cur, int64(off)); err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("flash read before write at %d: %w", off, err)
	}
	for i := range p {
		if cur[i]&p[i] != p[i] {
			return 0, ErrWriteRequiresErase
		}
	}
	return f.f.WriteAt(p, int64(off))
}

func (f *FileFlash) Erase(off, size uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if size == 0 {
		return nil
	}
	if off%fileFlashEraseBlock != 0 || size%fileFlashEraseBlock != 0 || off+size > f.size {
		return fmt.Errorf("flash erase off=%d size=%d: %w", off, size, ErrOutOfRange)
	}
	for ; size > 0; size -= fileFlashEraseBlock {
		if _, err := f.f.WriteAt(f.erased[:], int64(off)); err != nil {
			return fmt.Errorf("flash erase block at %d: %w", off, err)
		}
		off += fileFlashEraseBlock
	}
	return nil
}
