// Package config exposes the build-time flash geometry of the target
// device: where the updater's own image lives, where the boot descriptor
// blocks live, and the staging buffer's capacity.
//
// Defaults are compiled in; a board variant overrides one or more values
// by placing a non-empty line in the corresponding .text file, following
// the same embed-and-override layering the rest of this project's family
// uses for its network configuration.
package config

import (
	_ "embed"
	"strconv"
	"strings"
)

// Layout holds the device-specific constants the updater engine needs
// throughout: the updater's reserved flash range, the boot descriptor
// block geometry, and the staging buffer capacity.
type Layout struct {
	// RAMCap is the staging buffer capacity in bytes.
	RAMCap uint32

	// UpdaterStart/UpdaterEnd bound the updater's own flash image. No
	// sector or byte range overlapping this window may be erased or
	// (wholly) programmed — see updater.Policy.
	UpdaterStart uint32
	UpdaterEnd   uint32

	// SectorSize is the erase granularity of the flash controller.
	SectorSize uint32

	// PageSize is the program/erase granularity for a single boot
	// descriptor block, smaller than SectorSize on a typical NOR part.
	PageSize uint32

	// FirstSector is the flash address boot descriptor blocks are laid
	// out backwards from: slot i lives at
	// FirstSector - (1+i)*BootBlockSize.
	FirstSector uint32

	// BootBlockSize is the size in bytes of one boot descriptor block.
	BootBlockSize uint32

	// BootSlotCount is the number of descriptor slots available.
	BootSlotCount int

	// DescriptorStartCeiling/DescriptorEndCeiling bound a valid
	// application image's start and end addresses.
	DescriptorStartCeiling uint32
	DescriptorEndCeiling   uint32

	// AppVersionPointerCeiling guards APP_VERSION_REQUEST against a
	// descriptor whose appVersionAddress field was never initialized.
	AppVersionPointerCeiling uint32
}

const (
	defaultRAMCap                   = 4096
	defaultUpdaterStart              = 0x1000
	defaultUpdaterEnd                = 0x3FFF
	defaultSectorSize                = 4096
	defaultPageSize                  = 256
	defaultFirstSector               = 0x10000
	defaultBootBlockSize             = 256
	defaultBootSlotCount             = 2
	defaultDescriptorStartCeiling    = 0x5000
	defaultDescriptorEndCeiling      = 0x100000
	defaultAppVersionPointerCeiling  = 0x50000
)

//go:embed updater_start.text
var updaterStartOverride string

//go:embed updater_end.text
var updaterEndOverride string

//go:embed first_sector.text
var firstSectorOverride string

//go:embed boot_slot_count.text
var bootSlotCountOverride string

// Default returns the device layout, with any non-empty override file
// values applied on top of the compiled-in defaults.
func Default() Layout {
	l := Layout{
		RAMCap:                   defaultRAMCap,
		UpdaterStart:             defaultUpdaterStart,
		UpdaterEnd:               defaultUpdaterEnd,
		SectorSize:               defaultSectorSize,
		PageSize:                 defaultPageSize,
		FirstSector:              defaultFirstSector,
		BootBlockSize:            defaultBootBlockSize,
		BootSlotCount:            defaultBootSlotCount,
		DescriptorStartCeiling:   defaultDescriptorStartCeiling,
		DescriptorEndCeiling:     defaultDescriptorEndCeiling,
		AppVersionPointerCeiling: defaultAppVersionPointerCeiling,
	}

	if v, ok := parseUint32(updaterStartOverride); ok {
		l.UpdaterStart = v
	}
	if v, ok := parseUint32(updaterEndOverride); ok {
		l.UpdaterEnd = v
	}
	if v, ok := parseUint32(firstSectorOverride); ok {
		l.FirstSector = v
	}
	if v, ok := parseInt(bootSlotCountOverride); ok {
		l.BootSlotCount = v
	}
	return l
}

// BootSlotAddress returns the flash address of descriptor slot i.
func (l Layout) BootSlotAddress(slot int) uint32 {
	return l.FirstSector - uint32(1+slot)*l.BootBlockSize
}

// BootSlotPage returns the flash page number holding descriptor slot
// i, for the ErasePage call that must precede reprogramming it.
func (l Layout) BootSlotPage(slot int) uint32 {
	return l.BootSlotAddress(slot) / l.PageSize
}

func parseUint32(s string) (uint32, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}

func parseInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}
