package storage

import (
	"fmt"

	"pulsegen/protocol"
)

const (
	recordMagic0 = 'P'
	recordMagic1 = 'G'
	recordSize   = 6 // magic, address, spare, crc16 little endian
)

// RecordStore keeps the address in a CRC protected record at the start of
// an erase block. Every save erases the block.
type RecordStore struct {
	flash  Flash
	offset uint32
}

// NewRecordStore uses the erase block at offset
func NewRecordStore(flash Flash, offset uint32) *RecordStore {
	return &RecordStore{flash: flash, offset: offset}
}

// Load returns the stored address
func (s *RecordStore) Load() (uint8, error) {
	var rec [recordSize]byte
	if _, err := s.flash.ReadAt(rec[:], s.offset); err != nil {
		return 0, fmt.Errorf("read address record: %w", err)
	}
	if rec[0] != recordMagic0 || rec[1] != recordMagic1 {
		return 0, ErrNoRecord
	}
	crc := uint16(rec[4]) | uint16(rec[5])<<8
	if protocol.CRC16(rec[:4]) != crc || rec[2] > protocol.MaxAddress {
		return 0, ErrNoRecord
	}
	return rec[2], nil
}

// Save erases the record block and writes addr
func (s *RecordStore) Save(addr uint8) error {
	if addr > protocol.MaxAddress {
		return fmt.Errorf("address %d: %w", addr, ErrOutOfRange)
	}
	block := s.flash.EraseBlockBytes()
	if block == 0 {
		block = recordSize
	}
	start := s.offset - s.offset%block
	if err := s.flash.Erase(start, block); err != nil {
		return fmt.Errorf("erase address record: %w", err)
	}
	rec := [recordSize]byte{recordMagic0, recordMagic1, addr, 0}
	crc := protocol.CRC16(rec[:4])
	rec[4] = byte(crc)
	rec[5] = byte(crc >> 8)
	if _, err := s.flash.WriteAt(rec[:], s.offset); err != nil {
		return fmt.Errorf("write address record: %w", err)
	}
	return nil
}

// LoadAddress implements core.AddressStore
func (s *RecordStore) LoadAddress() (uint8, bool) {
	addr, err := s.Load()
	return addr, err == nil
}

// SaveAddress implements core.AddressStore
func (s *RecordStore) SaveAddress(addr uint8) error {
	return s.Save(addr)
}

// AppendStore keeps the address in a write-once area. Every save claims the
// next erased byte; the last written byte is the current address. The area
// is never erased.
type AppendStore struct {
	flash  Flash
	offset uint32
	size   uint32
}

// NewAppendStore uses size bytes at offset
func NewAppendStore(flash Flash, offset, size uint32) *AppendStore {
	return &AppendStore{flash: flash, offset: offset, size: size}
}

// scan returns the index of the first erased byte and the byte before it
func (s *AppendStore) scan() (uint32, byte, error) {
	var buf [32]byte
	var last byte = 0xFF
	for i := uint32(0); i < s.size; i += uint32(len(buf)) {
		n := s.size - i
		if n > uint32(len(buf)) {
			n = uint32(len(buf))
		}
		if _, err := s.flash.ReadAt(buf[:n], s.offset+i); err != nil {
			return 0, 0, fmt.Errorf("read address log: %w", err)
		}
		for j := uint32(0); j < n; j++ {
			if buf[j] == 0xFF {
				return i + j, last, nil
			}
			last = buf[j]
		}
	}
	return s.size, last, nil
}

// Load returns the most recently written address
func (s *AppendStore) Load() (uint8, error) {
	_, last, err := s.scan()
	if err != nil {
		return 0, err
	}
	if last > protocol.MaxAddress {
		return 0, ErrNoRecord
	}
	return last, nil
}

// Save appends addr. It fails with ErrOutOfRange once the area is used up.
func (s *AppendStore) Save(addr uint8) error {
	if addr > protocol.MaxAddress {
		return fmt.Errorf("address %d: %w", addr, ErrOutOfRange)
	}
	next, _, err := s.scan()
	if err != nil {
		return err
	}
	if next >= s.size {
		return fmt.Errorf("address log full: %w", ErrOutOfRange)
	}
	if _, err := s.flash.WriteAt([]byte{addr}, s.offset+next); err != nil {
		return fmt.Errorf("append address: %w", err)
	}
	return nil
}

// Remaining returns how many more saves fit
func (s *AppendStore) Remaining() uint32 {
	next, _, err := s.scan()
	if err != nil {
		return 0
	}
	return s.size - next
}

// LoadAddress implements core.AddressStore
func (s *AppendStore) LoadAddress() (uint8, bool) {
	addr, err := s.Load()
	return addr, err == nil
}

// SaveAddress implements core.AddressStore
func (s *AppendStore) SaveAddress(addr uint8) error {
	return s.Save(addr)
}
