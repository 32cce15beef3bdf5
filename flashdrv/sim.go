//go:build !tinygo

// Package flashdrv provides the FlashDriver/FlashMemory backends the
// updater package drives. This file is the host-testable backend: a
// flat in-memory byte slice standing in for the device's flash array,
// used by unit tests and by cmd/busupdater-sim.
package flashdrv

import "openenterprise/bus-updater/updater"

// Sim is an in-memory flash simulator. Erase fills a sector with 0xFF,
// matching real NOR flash erase behavior, so a test can tell an erased
// region from one that was merely never written.
type Sim struct {
	mem        []byte
	sectorSize uint32
	pageSize   uint32
	uid        [16]byte
}

// NewSim allocates a simulator with the given flash size and erase
// geometry, and a fixed synthetic unique ID.
func NewSim(size, sectorSize, pageSize uint32, uid [16]byte) *Sim {
	s := &Sim{mem: make([]byte, size), sectorSize: sectorSize, pageSize: pageSize}
	copy(s.uid[:], uid[:])
	return s
}

func (s *Sim) EraseSector(sector uint32) updater.ErrorKind {
	start := sector * s.sectorSize
	end := start + s.sectorSize
	if end > uint32(len(s.mem)) {
		return updater.AddressNotAllowed
	}
	for i := start; i < end; i++ {
		s.mem[i] = 0xFF
	}
	return updater.SUCCESS
}

func (s *Sim) ErasePage(page uint32) updater.ErrorKind {
	start := page * s.pageSize
	end := start + s.pageSize
	if end > uint32(len(s.mem)) {
		return updater.AddressNotAllowed
	}
	for i := start; i < end; i++ {
		s.mem[i] = 0xFF
	}
	return updater.SUCCESS
}

func (s *Sim) Program(dst uint32, src []byte) updater.ErrorKind {
	if dst+uint32(len(src)) > uint32(len(s.mem)) {
		return updater.AddressNotAllowed
	}
	copy(s.mem[dst:], src)
	return updater.SUCCESS
}

func (s *Sim) ReadUniqueID(buf []byte) updater.ErrorKind {
	copy(buf, s.uid[:])
	return updater.SUCCESS
}

func (s *Sim) ReadAt(addr, n uint32) []byte {
	return s.mem[addr : addr+n]
}
