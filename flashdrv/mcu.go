//go:build tinygo

package flashdrv

/*
#include <stdint.h>
#include <stddef.h>

// ROM function lookup infrastructure, adapted from the OTA package's
// partition driver for this device's direct flash erase/program calls.
#define ROM_TABLE_CODE(c1, c2) ((c1) | ((c2) << 8))

#define ROM_FUNC_CONNECT_INTERNAL_FLASH ROM_TABLE_CODE('I', 'F')
#define ROM_FUNC_FLASH_EXIT_XIP         ROM_TABLE_CODE('E', 'X')
#define ROM_FUNC_FLASH_RANGE_ERASE      ROM_TABLE_CODE('R', 'E')
#define ROM_FUNC_FLASH_RANGE_PROGRAM    ROM_TABLE_CODE('R', 'P')
#define ROM_FUNC_FLASH_FLUSH_CACHE      ROM_TABLE_CODE('F', 'C')
#define ROM_FUNC_FLASH_UNIQUE_ID        ROM_TABLE_CODE('G', 'U')

#define BOOTROM_FUNC_TABLE_OFFSET   0x14
#define BOOTROM_WELL_KNOWN_PTR_SIZE 2
#define BOOTROM_TABLE_LOOKUP_OFFSET (BOOTROM_FUNC_TABLE_OFFSET + BOOTROM_WELL_KNOWN_PTR_SIZE)
#define RT_FLAG_FUNC_ARM_SEC 0x0004

typedef void *(*rom_table_lookup_fn)(uint32_t code, uint32_t mask);
typedef void (*flash_connect_internal_fn)(void);
typedef void (*flash_exit_xip_fn)(void);
typedef void (*flash_range_erase_fn)(uint32_t addr, size_t count, uint32_t block_size, uint8_t block_cmd);
typedef void (*flash_range_program_fn)(uint32_t addr, const uint8_t *data, size_t count);
typedef void (*flash_flush_cache_fn)(void);
typedef void (*flash_unique_id_fn)(uint8_t *id_out, size_t id_len);

static void *rom_func_lookup_inline(uint32_t code) {
    rom_table_lookup_fn rom_table_lookup =
        (rom_table_lookup_fn)(uintptr_t)*(uint16_t*)(BOOTROM_TABLE_LOOKUP_OFFSET);
    return rom_table_lookup(code, RT_FLAG_FUNC_ARM_SEC);
}

#define FLASH_SECTOR_ERASE_CMD 0x20

static int mcu_flash_erase(uint32_t offset, uint32_t count) {
    flash_connect_internal_fn connect = (flash_connect_internal_fn)rom_func_lookup_inline(ROM_FUNC_CONNECT_INTERNAL_FLASH);
    flash_exit_xip_fn exit_xip = (flash_exit_xip_fn)rom_func_lookup_inline(ROM_FUNC_FLASH_EXIT_XIP);
    flash_range_erase_fn erase = (flash_range_erase_fn)rom_func_lookup_inline(ROM_FUNC_FLASH_RANGE_ERASE);
    flash_flush_cache_fn flush = (flash_flush_cache_fn)rom_func_lookup_inline(ROM_FUNC_FLASH_FLUSH_CACHE);
    if (!connect || !exit_xip || !erase || !flush) return -1;

    uint32_t status;
    __asm__ volatile ("mrs %0, primask" : "=r" (status));
    __asm__ volatile ("cpsid i");
    connect();
    exit_xip();
    erase(offset, count, count, FLASH_SECTOR_ERASE_CMD);
    flush();
    __asm__ volatile ("msr primask, %0" : : "r" (status));
    return 0;
}

static int mcu_flash_program(uint32_t offset, const uint8_t *data, uint32_t len) {
    flash_connect_internal_fn connect = (flash_connect_internal_fn)rom_func_lookup_inline(ROM_FUNC_CONNECT_INTERNAL_FLASH);
    flash_exit_xip_fn exit_xip = (flash_exit_xip_fn)rom_func_lookup_inline(ROM_FUNC_FLASH_EXIT_XIP);
    flash_range_program_fn program = (flash_range_program_fn)rom_func_lookup_inline(ROM_FUNC_FLASH_RANGE_PROGRAM);
    flash_flush_cache_fn flush = (flash_flush_cache_fn)rom_func_lookup_inline(ROM_FUNC_FLASH_FLUSH_CACHE);
    if (!connect || !exit_xip || !program || !flush) return -1;

    uint32_t status;
    __asm__ volatile ("mrs %0, primask" : "=r" (status));
    __asm__ volatile ("cpsid i");
    connect();
    exit_xip();
    program(offset, data, len);
    flush();
    __asm__ volatile ("msr primask, %0" : : "r" (status));
    return 0;
}

static int mcu_flash_unique_id(uint8_t *out, size_t len) {
    flash_unique_id_fn get_id = (flash_unique_id_fn)rom_func_lookup_inline(ROM_FUNC_FLASH_UNIQUE_ID);
    if (!get_id) return -1;
    get_id(out, len);
    return 0;
}
*/
import "C"

import (
	"unsafe"

	"openenterprise/bus-updater/updater"
)

// MCU drives the target's own internal flash directly through ROM
// calls, bypassing TinyGo's machine.Flash the same way the OTA
// partition driver does, since machine.Flash assumes its own offset
// convention rather than the raw addressing this protocol speaks.
type MCU struct {
	sectorSize uint32
	pageSize   uint32
}

// NewMCU constructs a driver for the given erase/program granularity.
func NewMCU(sectorSize, pageSize uint32) *MCU {
	return &MCU{sectorSize: sectorSize, pageSize: pageSize}
}

func (m *MCU) EraseSector(sector uint32) updater.ErrorKind {
	if C.mcu_flash_erase(C.uint32_t(sector*m.sectorSize), C.uint32_t(m.sectorSize)) != 0 {
		return updater.ErrorKind(0x200) // pass-through driver failure, not in the named table
	}
	return updater.SUCCESS
}

func (m *MCU) ErasePage(page uint32) updater.ErrorKind {
	if C.mcu_flash_erase(C.uint32_t(page*m.pageSize), C.uint32_t(m.pageSize)) != 0 {
		return updater.ErrorKind(0x201)
	}
	return updater.SUCCESS
}

func (m *MCU) Program(dst uint32, src []byte) updater.ErrorKind {
	if len(src) == 0 {
		return updater.SUCCESS
	}
	if C.mcu_flash_program(C.uint32_t(dst), (*C.uint8_t)(&src[0]), C.uint32_t(len(src))) != 0 {
		return updater.ErrorKind(0x202)
	}
	return updater.SUCCESS
}

func (m *MCU) ReadUniqueID(buf []byte) updater.ErrorKind {
	if len(buf) == 0 {
		return updater.SUCCESS
	}
	if C.mcu_flash_unique_id((*C.uint8_t)(&buf[0]), C.size_t(len(buf))) != 0 {
		return updater.ErrorKind(0x203)
	}
	return updater.SUCCESS
}

// ReadAt models the memory-mapped (XIP) flash window: on this part,
// flash is readable as ordinary memory at a fixed base offset once
// exit_xip has returned, so ReadAt is a direct, unchecked slice over
// that window rather than a ROM call.
func (m *MCU) ReadAt(addr, n uint32) []byte {
	const xipBase = 0x10000000
	ptr := (*[1 << 28]byte)(unsafe.Pointer(uintptr(xipBase + addr)))
	return ptr[:n:n]
}
