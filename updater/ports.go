package updater

// FlashDriver is the external flash-programming entry point this
// engine drives but never implements itself: erase a
// sector, erase a page, program a page, and read the chip's unique ID.
// All out-of-scope device-specific status codes are returned as
// ErrorKind and propagated to the bus client unchanged.
type FlashDriver interface {
	EraseSector(sector uint32) ErrorKind
	ErasePage(page uint32) ErrorKind
	Program(dst uint32, src []byte) ErrorKind
	ReadUniqueID(buf []byte) ErrorKind
}

// FlashMemory is read access to the flash address space. On the real
// hardware this is nothing more than a memory-mapped (XIP) pointer
// dereference — the original source reads application bytes and
// vector-table words directly through `unsigned int *`. Go has no safe
// equivalent to that, so the Engine reads flash only through this
// narrow interface, which the FlashDriver implementation backs with
// whatever addressing scheme the real part uses.
type FlashMemory interface {
	ReadAt(addr, n uint32) []byte
}

// ProgramPin is the GPIO input that reports whether an operator has
// physical access to the device.
type ProgramPin interface {
	Asserted() bool
}
