package updater

import (
	"io"
	"log/slog"
	"testing"

	"openenterprise/bus-updater/config"
)

// fakeFlash is a flat in-memory FlashDriver + FlashMemory for exercising
// the Engine without real hardware.
type fakeFlash struct {
	mem []byte
	uid [16]byte

	erasedPages    []uint32
	programmedAddr []uint32
}

func newFakeFlash() *fakeFlash {
	f := &fakeFlash{mem: make([]byte, 0x200000)}
	copy(f.uid[:], []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 0xAA, 0xBB, 0xCC, 0xDD})
	return f
}

func (f *fakeFlash) EraseSector(sector uint32) ErrorKind { return SUCCESS }

func (f *fakeFlash) ErasePage(page uint32) ErrorKind {
	f.erasedPages = append(f.erasedPages, page)
	return SUCCESS
}

func (f *fakeFlash) Program(dst uint32, src []byte) ErrorKind {
	f.programmedAddr = append(f.programmedAddr, dst)
	copy(f.mem[dst:], src)
	return SUCCESS
}

func (f *fakeFlash) ReadUniqueID(buf []byte) ErrorKind {
	copy(buf, f.uid[:])
	return SUCCESS
}

func (f *fakeFlash) ReadAt(addr, n uint32) []byte {
	return f.mem[addr : addr+n]
}

type fakePin struct{ asserted bool }

func (p *fakePin) Asserted() bool { return p.asserted }

func testEngine() (*Engine, *fakeFlash, *fakePin) {
	cfg := config.Default()
	flash := newFakeFlash()
	pin := &fakePin{}
	e := NewEngine(cfg, flash, flash, pin, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return e, flash, pin
}

func send(t *testing.T, e *Engine, cmd []byte) (bool, []byte) {
	t.Helper()
	return e.Dispatch(cmd)
}

func unlockFrame(uid [16]byte) []byte {
	f := frame(0, OpUnlockDevice)
	f = append(f, uid[:12]...)
	return f
}

// TestEraseSectorRequiresUnlock: a mutating command issued while
// locked is NACKed and the device state does not change.
func TestEraseSectorRequiresUnlock(t *testing.T) {
	e, _, _ := testEngine()
	ack, _ := send(t, e, frame(0, OpEraseSector, 5))
	if ack {
		t.Fatal("expected NACK while locked")
	}
	if e.LastError() != DeviceLocked {
		t.Fatalf("LastError() = %v, want DeviceLocked", e.LastError())
	}
}

// TestUnlockThenEraseThenSendThenProgram exercises the full happy-path
// sequence of unlock, erase, stage data, and commit via PROGRAM with a
// matching running CRC.
func TestUnlockThenEraseThenSendThenProgram(t *testing.T) {
	e, flash, _ := testEngine()

	ack, _ := send(t, e, unlockFrame(flash.uid))
	if !ack {
		t.Fatalf("unlock failed: %v", e.LastError())
	}

	ack, _ = send(t, e, frame(0, OpEraseSector, 5))
	if !ack {
		t.Fatalf("erase failed: %v", e.LastError())
	}

	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	ack, _ = send(t, e, frame(4, OpSendData, payload...))
	if !ack {
		t.Fatalf("send data failed: %v", e.LastError())
	}

	wantCRC := crcUpdate(CRCSeed, payload)
	cmd := make([]byte, 0, 12)
	cmd = append(cmd, 0, 0, 0, 4) // count
	cmd = append(cmd, 0, 0, 0x50, 0) // address 0x5000, outside updater & sector 0
	be := make([]byte, 4)
	putBEUint32(be, wantCRC)
	cmd = append(cmd, be...)
	ack, _ = send(t, e, frame(0, OpProgram, cmd...))
	if !ack {
		t.Fatalf("program failed: %v", e.LastError())
	}
	if string(flash.mem[0x5000:0x5004]) != string(payload) {
		t.Fatalf("flash content = %v, want %v", flash.mem[0x5000:0x5004], payload)
	}
}

// TestProgramRejectsMismatchedCRC verifies PROGRAM refuses to commit
// staged data whose running CRC doesn't match the command's CRC.
func TestProgramRejectsMismatchedCRC(t *testing.T) {
	e, flash, _ := testEngine()
	send(t, e, unlockFrame(flash.uid))
	send(t, e, frame(4, OpSendData, 1, 2, 3, 4))

	cmd := []byte{0, 0, 0, 4, 0, 0, 0x50, 0, 0, 0, 0, 0} // wrong CRC: all zero
	ack, _ := send(t, e, frame(0, OpProgram, cmd...))
	if ack {
		t.Fatal("expected NACK for mismatched CRC")
	}
	if e.LastError() != CRCError {
		t.Fatalf("LastError() = %v, want CRCError", e.LastError())
	}
}

// TestEraseSectorZeroAlwaysRefused verifies sector 0 stays reserved to
// the bootloader even when unlocked.
func TestEraseSectorZeroAlwaysRefused(t *testing.T) {
	e, flash, _ := testEngine()
	send(t, e, unlockFrame(flash.uid))

	ack, _ := send(t, e, frame(0, OpEraseSector, 0))
	if ack {
		t.Fatal("expected NACK erasing sector 0")
	}
	if e.LastError() != SectorNotAllowed {
		t.Fatalf("LastError() = %v, want SectorNotAllowed", e.LastError())
	}
}

// TestGetLastErrorReadsAndClears verifies GET_LAST_ERROR always ACKs
// and clears the register it reports.
func TestGetLastErrorReadsAndClears(t *testing.T) {
	e, _, _ := testEngine()
	send(t, e, frame(0, OpEraseSector, 0)) // locked -> DeviceLocked

	ack, reply := send(t, e, frame(0, OpGetLastError))
	if !ack {
		t.Fatal("GET_LAST_ERROR should always ACK")
	}
	if leUint32(reply[replyHeaderSize:]) != uint32(DeviceLocked) {
		t.Fatalf("reply = %#x, want DeviceLocked", leUint32(reply[replyHeaderSize:]))
	}
	if e.LastError() != SUCCESS {
		t.Fatalf("LastError() after read = %v, want SUCCESS (cleared)", e.LastError())
	}
}

// TestRequestUIDRequiresProgramPin verifies REQUEST_UID is refused
// until the program-enable pin is asserted.
func TestRequestUIDRequiresProgramPin(t *testing.T) {
	e, flash, pin := testEngine()

	ack, _ := send(t, e, frame(0, OpRequestUID))
	if ack {
		t.Fatal("expected NACK for REQUEST_UID without the program pin asserted")
	}

	pin.asserted = true
	ack, reply := send(t, e, frame(0, OpRequestUID))
	if !ack {
		t.Fatal("expected ACK once the program pin is asserted")
	}
	if string(reply[replyHeaderSize:]) != string(flash.uid[:]) {
		t.Fatalf("UID reply = %v, want %v", reply[replyHeaderSize:], flash.uid)
	}
}

// TestUnknownOpcodeIsNacked verifies an unrecognized opcode is NACKed
// with UnknownCommand rather than panicking or silently succeeding.
func TestUnknownOpcodeIsNacked(t *testing.T) {
	e, _, _ := testEngine()
	ack, _ := send(t, e, frame(0, Opcode(250)))
	if ack {
		t.Fatal("expected NACK for an unrecognized opcode")
	}
	if e.LastError() != UnknownCommand {
		t.Fatalf("LastError() = %v, want UnknownCommand", e.LastError())
	}
}

func TestReqDataAlwaysNotImplemented(t *testing.T) {
	e, flash, _ := testEngine()
	send(t, e, unlockFrame(flash.uid))

	ack, _ := send(t, e, frame(0, OpReqData))
	if ack {
		t.Fatal("REQ_DATA must never ACK")
	}
	if e.LastError() != NotImplemented {
		t.Fatalf("LastError() = %v, want NotImplemented", e.LastError())
	}
}

// TestReqDataRequiresUnlock verifies REQ_DATA is gated by the lock
// like every other mutating command: while locked it reports
// DeviceLocked, not NotImplemented.
func TestReqDataRequiresUnlock(t *testing.T) {
	e, _, _ := testEngine()

	ack, _ := send(t, e, frame(0, OpReqData))
	if ack {
		t.Fatal("REQ_DATA must never ACK")
	}
	if e.LastError() != DeviceLocked {
		t.Fatalf("LastError() = %v, want DeviceLocked", e.LastError())
	}
}

// TestUpdateBootDescThenAppVersionRequest exercises Components C, D
// and E together: stage a valid 256-byte descriptor block describing a
// well-formed application, commit it to boot slot 0 via
// UPDATE_BOOT_DESC, then read its version back via APP_VERSION_REQUEST.
func TestUpdateBootDescThenAppVersionRequest(t *testing.T) {
	e, flash, _ := testEngine()
	cfg := config.Default()
	send(t, e, unlockFrame(flash.uid))

	appStart, appEnd := uint32(0x4000), uint32(0x4100)
	for i := uint32(0); i < 8; i++ {
		putLEUint32(flash.mem[appStart+i*4:], 0) // zero vector table sums to zero
	}
	appCRC := crcUpdate(CRCSeed, flash.mem[appStart:appEnd])

	versionAddr := uint32(0x4200)
	copy(flash.mem[versionAddr:], []byte("v1.2.3-build9"))

	block := make([]byte, DescriptorSize)
	putLEUint32(block[0:4], appStart)
	putLEUint32(block[4:8], appEnd)
	putLEUint32(block[8:12], appCRC)
	putLEUint32(block[12:16], versionAddr)

	send(t, e, frame(0, OpEraseSector, 5))
	const chunkSize = 15 // SEND_DATA's count nibble caps a chunk at 15 bytes
	for off := 0; off < len(block); off += chunkSize {
		end := off + chunkSize
		if end > len(block) {
			end = len(block)
		}
		chunk := block[off:end]
		ack, _ := send(t, e, frame(byte(len(chunk)), OpSendData, chunk...))
		if !ack {
			t.Fatalf("SEND_DATA chunk at %d failed: %v", off, e.LastError())
		}
	}

	blockCRC := crcUpdate(CRCSeed, block)
	cmd := make([]byte, 5)
	putBEUint32(cmd[0:4], blockCRC)
	cmd[4] = 0 // slot 0
	ack, _ := send(t, e, frame(0, OpUpdateBootDesc, cmd...))
	if !ack {
		t.Fatalf("UPDATE_BOOT_DESC failed: %v", e.LastError())
	}

	slotAddr := cfg.BootSlotAddress(0)
	if string(flash.mem[slotAddr:slotAddr+DescriptorSize]) != string(block) {
		t.Fatal("boot descriptor was not written to the expected slot address")
	}
	if len(flash.erasedPages) != 1 || flash.erasedPages[0] != cfg.BootSlotPage(0) {
		t.Fatalf("ErasePage calls = %v, want exactly [%d]", flash.erasedPages, cfg.BootSlotPage(0))
	}
	if len(flash.programmedAddr) != 1 || flash.programmedAddr[0] != slotAddr {
		t.Fatalf("Program calls = %v, want exactly [%d]", flash.programmedAddr, slotAddr)
	}

	ack, reply := send(t, e, frame(0, OpAppVersionReq, 0))
	if !ack {
		t.Fatalf("APP_VERSION_REQUEST failed: %v", e.LastError())
	}
	wantVersion := "v1.2.3-build9"[:12]
	if string(reply[replyHeaderSize:]) != wantVersion {
		t.Fatalf("version reply = %q, want %q", reply[replyHeaderSize:], wantVersion)
	}
}

func TestSetEmulationSkipsFlashWrite(t *testing.T) {
	e, flash, _ := testEngine()
	send(t, e, unlockFrame(flash.uid))
	send(t, e, frame(0, OpSetEmulation, emulateErase))

	before := make([]byte, len(flash.mem))
	copy(before, flash.mem)

	ack, _ := send(t, e, frame(0, OpEraseSector, 5))
	if !ack {
		t.Fatalf("erase under emulation should still ACK: %v", e.LastError())
	}
	// fakeFlash.EraseSector doesn't mutate mem either way, but the
	// staging cursor and running CRC must still reset exactly as a real
	// erase would.
	if e.staging.Cursor() != 0 {
		t.Fatal("emulated erase should still reset the staging cursor")
	}
}
