package updater

// DescriptorSize is the fixed size in bytes of one boot descriptor
// block.
const DescriptorSize = 256

// Descriptor is the 256-byte boot descriptor record: the address
// range of an application image, its CRC, and a pointer to its
// version metadata.
type Descriptor struct {
	StartAddress     uint32
	EndAddress       uint32
	CRC              uint32
	AppVersionAddress uint32
}

// ParseDescriptor interprets a 256-byte candidate block as a
// Descriptor. The block is staged RAM, later cast directly onto flash
// as a native struct by the original source, so its four u32 fields
// are little-endian machine words, not big-endian wire fields.
func ParseDescriptor(block []byte) Descriptor {
	return Descriptor{
		StartAddress:      leUint32(block[0:4]),
		EndAddress:        leUint32(block[4:8]),
		CRC:               leUint32(block[8:12]),
		AppVersionAddress: leUint32(block[12:16]),
	}
}

// Validate reports whether d describes a startable application,
// checking address bounds, the CRC over the claimed image range, and
// the application's vector table. mem provides read access to the
// flash bytes the descriptor claims to cover.
func (d Descriptor) Validate(mem FlashMemory, layout DescriptorLimits) bool {
	if d.StartAddress > layout.StartCeiling {
		return false
	}
	if d.EndAddress > layout.EndCeiling {
		return false
	}
	if d.StartAddress == d.EndAddress {
		return false
	}

	appBytes := mem.ReadAt(d.StartAddress, d.EndAddress-d.StartAddress)
	if crcUpdate(CRCSeed, appBytes) != d.CRC {
		return false
	}

	return checkVectorTable(mem, d.StartAddress)
}

// checkVectorTable implements the ARM Cortex-M convention that the
// first eight 32-bit words at an image's entry point — the interrupt
// vector table — sum to zero modulo 2^32. The reset vector's checksum
// word is chosen at link time to make this true for a genuine,
// correctly linked application image.
func checkVectorTable(mem FlashMemory, start uint32) bool {
	words := mem.ReadAt(start, 32)
	var sum uint32
	for i := 0; i < 8; i++ {
		sum += leUint32(words[i*4 : i*4+4])
	}
	return sum == 0
}

// DescriptorLimits bounds what counts as a plausible application image
// for this device.
type DescriptorLimits struct {
	StartCeiling uint32
	EndCeiling   uint32
}

// AppVersion returns the 12 bytes at d.AppVersionAddress, or ok=false
// if that pointer exceeds versionCeiling — a guard against an
// uninitialized descriptor field.
func (d Descriptor) AppVersion(mem FlashMemory, versionCeiling uint32) (version []byte, ok bool) {
	if d.AppVersionAddress > versionCeiling {
		return nil, false
	}
	return mem.ReadAt(d.AppVersionAddress, 12), true
}
