package storage

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestMemFlashEraseBeforeWrite(t *testing.T) {
	f := NewMemFlash(8192, 4096)

	if _, err := f.WriteAt([]byte{0x0F}, 10); err != nil {
		t.Fatalf("Write to erased flash failed: %v", err)
	}
	if _, err := f.WriteAt([]byte{0xF0}, 10); !errors.Is(err, ErrWriteRequiresErase) {
		t.Errorf("Expected ErrWriteRequiresErase, got %v", err)
	}
	if err := f.Erase(0, 4096); err != nil {
		t.Fatalf("Erase failed: %v", err)
	}
	if _, err := f.WriteAt([]byte{0xF0}, 10); err != nil {
		t.Errorf("Write after erase failed: %v", err)
	}
	if err := f.Erase(100, 4096); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Unaligned erase: expected ErrOutOfRange, got %v", err)
	}
	if _, err := f.ReadAt(make([]byte, 1), 8192); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Read past end: expected ErrOutOfRange, got %v", err)
	}
}

func TestRecordStoreRoundTrip(t *testing.T) {
	f := NewMemFlash(8192, 4096)
	s := NewRecordStore(f, 4096)

	if _, err := s.Load(); !errors.Is(err, ErrNoRecord) {
		t.Fatalf("Expected ErrNoRecord on blank flash, got %v", err)
	}
	for _, addr := range []uint8{0, 42, 127, 5} {
		if err := s.Save(addr); err != nil {
			t.Fatalf("Save(%d) failed: %v", addr, err)
		}
		got, ok := s.LoadAddress()
		if !ok || got != addr {
			t.Errorf("Expected %d, got %d ok=%v", addr, got, ok)
		}
	}
	if err := s.Save(128); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Save(128): expected ErrOutOfRange, got %v", err)
	}
}

func TestRecordStoreDetectsCorruption(t *testing.T) {
	f := NewMemFlash(4096, 4096)
	s := NewRecordStore(f, 0)
	if err := s.Save(33); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// clearing bits needs no erase
	if _, err := f.WriteAt([]byte{0x01}, 2); err != nil {
		t.Fatalf("Corrupting write failed: %v", err)
	}
	if _, err := s.Load(); !errors.Is(err, ErrNoRecord) {
		t.Errorf("Expected ErrNoRecord for a bad crc, got %v", err)
	}
}

func TestAppendStoreLastWins(t *testing.T) {
	f := NewMemFlash(4096, 4096)
	s := NewAppendStore(f, 100, 4)

	if _, ok := s.LoadAddress(); ok {
		t.Fatal("Blank log should hold no address")
	}
	for _, addr := range []uint8{7, 0, 99} {
		if err := s.SaveAddress(addr); err != nil {
			t.Fatalf("Save(%d) failed: %v", addr, err)
		}
		if got, err := s.Load(); err != nil || got != addr {
			t.Errorf("Expected %d, got %d err=%v", addr, got, err)
		}
	}
	if s.Remaining() != 1 {
		t.Errorf("Expected 1 slot left, got %d", s.Remaining())
	}
	if err := s.Save(3); err != nil {
		t.Fatalf("Last slot save failed: %v", err)
	}
	if err := s.Save(4); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Expected a full log, got %v", err)
	}
	if got, _ := s.Load(); got != 3 {
		t.Errorf("Full log should keep 3, got %d", got)
	}
}

func TestFileFlashPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flash.bin")

	f, err := OpenFileFlash(path)
	if err != nil {
		t.Fatalf("OpenFileFlash failed: %v", err)
	}
	if err := NewRecordStore(f, 0).Save(21); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := f.WriteAt([]byte{0xFF}, 2); !errors.Is(err, ErrWriteRequiresErase) {
		t.Errorf("Expected ErrWriteRequiresErase, got %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	f, err = OpenFileFlash(path)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer f.Close()
	got, ok := NewRecordStore(f, 0).LoadAddress()
	if !ok || got != 21 {
		t.Errorf("Expected 21 after reopen, got %d ok=%v", got, ok)
	}
}
