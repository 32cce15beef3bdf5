package updater

// Policy answers "may this region be erased/programmed?" given the
// updater's own reserved flash range. It is pure and holds
// no state beyond the reservation itself, so it is safe to share and
// trivial to construct with different boundaries in a test.
type Policy struct {
	UpdaterStart uint32
	UpdaterEnd   uint32
	SectorSize   uint32
}

// sector converts a byte address to its containing sector number,
// rounding up — ADDRESS2SECTOR(a) in the original source.
func (p Policy) sector(addr uint32) uint32 {
	return (addr + p.SectorSize - 1) / p.SectorSize
}

// updaterSectorRange is the closed interval of sectors the updater's
// own image occupies.
func (p Policy) updaterSectorRange() (first, last uint32) {
	return p.sector(p.UpdaterStart), p.sector(p.UpdaterEnd)
}

// SectorErasable reports whether sector s may be erased. Sector 0 is
// always reserved to the bootloader; any sector the updater's own
// image occupies is reserved to itself.
func (p Policy) SectorErasable(s uint32) bool {
	if s == 0 {
		return false
	}
	first, last := p.updaterSectorRange()
	return !(s >= first && s <= last)
}

// RangeProgrammable reports whether the byte range [a, a+n) may be
// programmed. It refuses only when the range is wholly contained
// within the updater's reservation — a range that merely overlaps or
// straddles the boundary is permitted.
//
// This one-sided guard is intentionally asymmetric: it may exist to let
// a factory-provisioning tool lay a fresh vector table across the
// updater boundary, or it may be a latent bug in the original design.
// Either way it is preserved as-is rather than "fixed".
func (p Policy) RangeProgrammable(a, n uint32) bool {
	end := a + n
	return !(a >= p.UpdaterStart && end <= p.UpdaterEnd)
}
