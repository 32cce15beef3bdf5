package updater

import (
	"log/slog"

	"openenterprise/bus-updater/config"
)

// emulateMask selects the emulation bits of the SET_EMULATION mask,
// mirroring the original source's RUN_OR_EMULATE macro: while any bit
// of the low nibble is set, every flash-mutating opcode runs every
// validation step as normal but skips the actual call into FlashDriver
// and reports success. It exists so a bus master can rehearse an update
// against a device without risking its flash.
const emulateMask byte = 0x0F

// emulateErase is the lowest bit of emulateMask; like any other
// low-nibble bit, setting it alone switches emulation on for every
// flash operation.
const emulateErase byte = 1 << 0

// Engine is the bus-update protocol dispatcher.
// It owns every other component and is the only thing a transport
// layer talks to: feed it one raw frame, get back whether to ACK
// or NACK and, for the three reply opcodes, a telegram to send back.
type Engine struct {
	cfg     config.Layout
	policy  Policy
	staging *Staging
	lock    Lock

	flash FlashDriver
	mem   FlashMemory
	pin   ProgramPin

	log *slog.Logger

	lastError ErrorKind
	crc       uint32
	emulation byte
}

// NewEngine builds an Engine from a flash geometry and the three
// external collaborators the bus protocol itself leaves out of scope.
func NewEngine(cfg config.Layout, flash FlashDriver, mem FlashMemory, pin ProgramPin, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		cfg: cfg,
		policy: Policy{
			UpdaterStart: cfg.UpdaterStart,
			UpdaterEnd:   cfg.UpdaterEnd,
			SectorSize:   cfg.SectorSize,
		},
		staging: NewStaging(cfg.RAMCap),
		flash:   flash,
		mem:     mem,
		pin:     pin,
		log:     log,
		crc:     CRCSeed,
	}
}

// LastError reports the most recently recorded error, for callers that
// want to inspect it without issuing a GET_LAST_ERROR round trip.
func (e *Engine) LastError() ErrorKind {
	return e.lastError
}

// StagingProgress reports how many bytes are currently staged toward a
// commit and the staging buffer's total capacity, for a caller that
// wants to report update-session progress out of band.
func (e *Engine) StagingProgress() (staged, total uint32) {
	return uint32(e.staging.Cursor()), e.cfg.RAMCap
}

func (e *Engine) descriptorLimits() DescriptorLimits {
	return DescriptorLimits{StartCeiling: e.cfg.DescriptorStartCeiling, EndCeiling: e.cfg.DescriptorEndCeiling}
}

// Dispatch decodes and executes one inbound frame. ack reports whether
// the bus master should see an ACK; reply is non-nil
// only for the three opcodes that carry a payload back (GET_LAST_ERROR,
// REQUEST_UID, APP_VERSION_REQUEST).
func (e *Engine) Dispatch(frame []byte) (ack bool, reply []byte) {
	cmd, err := Decode(frame)
	if err != nil {
		e.lastError = UnknownCommand
		e.log.Warn("malformed frame", "error", err)
		return false, nil
	}

	switch c := cmd.(type) {
	case EraseSectorCmd:
		e.lastError = e.doEraseSector(c)
		return e.lastError.Ack(), nil

	case SendDataCmd:
		e.lastError = e.doSendData(c)
		return e.lastError.Ack(), nil

	case ProgramCmd:
		e.lastError = e.doProgram(c)
		return e.lastError.Ack(), nil

	case UpdateBootDescCmd:
		e.lastError = e.doUpdateBootDesc(c)
		return e.lastError.Ack(), nil

	case ReqDataCmd:
		if code := e.lock.RequireUnlocked(); code != SUCCESS {
			e.lastError = code
			return false, nil
		}
		// Dead in the original source: gated like every other mutating
		// command, but the handler body never does anything once
		// unlocked.
		e.lastError = NotImplemented
		return false, nil

	case GetLastErrorCmd:
		prior := e.lastError
		e.lastError = SUCCESS
		return true, LastErrorReply(prior)

	case UnlockCmd:
		var uid [16]byte
		e.flash.ReadUniqueID(uid[:])
		e.lastError = e.lock.Unlock(e.pin.Asserted(), c.UID, uid)
		e.log.Info("unlock attempt", "state", e.lock.State(), "result", e.lastError)
		return e.lastError.Ack(), nil

	case RequestUIDCmd:
		if !e.pin.Asserted() {
			e.lastError = DeviceLocked
			return false, nil
		}
		uid := make([]byte, 16)
		if code := e.flash.ReadUniqueID(uid); code != SUCCESS {
			e.lastError = code
			return false, nil
		}
		e.lastError = SUCCESS
		return true, UIDReply(uid)

	case AppVersionReqCmd:
		version, code := e.doAppVersion(c)
		e.lastError = code
		if code != SUCCESS {
			return false, nil
		}
		return true, AppVersionReply(version)

	case SetEmulationCmd:
		e.emulation = c.Mask
		e.lastError = SUCCESS
		return true, nil

	default:
		e.lastError = UnknownCommand
		return false, nil
	}
}

func (e *Engine) doEraseSector(c EraseSectorCmd) ErrorKind {
	if code := e.lock.RequireUnlocked(); code != SUCCESS {
		return code
	}
	sector := uint32(c.Sector)
	if !e.policy.SectorErasable(sector) {
		return SectorNotAllowed
	}
	if e.emulation&emulateMask == 0 {
		if code := e.flash.EraseSector(sector); code != SUCCESS {
			return code
		}
	}
	e.staging.Reset()
	e.crc = CRCSeed
	return SUCCESS
}

func (e *Engine) doSendData(c SendDataCmd) ErrorKind {
	if code := e.lock.RequireUnlocked(); code != SUCCESS {
		return code
	}
	if err := e.staging.Append(c.Data); err != nil {
		return err.(ErrorKind)
	}
	e.crc = crcUpdate(e.crc, c.Data)
	return SUCCESS
}

func (e *Engine) doProgram(c ProgramCmd) ErrorKind {
	if code := e.lock.RequireUnlocked(); code != SUCCESS {
		return code
	}
	if !e.policy.RangeProgrammable(c.Address, c.Count) {
		return AddressNotAllowed
	}
	if e.crc != c.CRC {
		return CRCError
	}
	if e.emulation&emulateMask == 0 {
		if code := e.flash.Program(c.Address, e.staging.Slice(c.Count)); code != SUCCESS {
			return code
		}
	}
	e.staging.Reset()
	e.crc = CRCSeed
	return SUCCESS
}

func (e *Engine) doUpdateBootDesc(c UpdateBootDescCmd) ErrorKind {
	if code := e.lock.RequireUnlocked(); code != SUCCESS {
		return code
	}
	if e.crc != c.CRC {
		return CRCError
	}
	block := e.staging.Slice(DescriptorSize)
	desc := ParseDescriptor(block)
	if !desc.Validate(e.mem, e.descriptorLimits()) {
		return AppNotStartable
	}
	if e.emulation&emulateMask == 0 {
		dst := e.cfg.BootSlotAddress(int(c.Slot))
		if code := e.flash.ErasePage(e.cfg.BootSlotPage(int(c.Slot))); code != SUCCESS {
			return code
		}
		if code := e.flash.Program(dst, block); code != SUCCESS {
			return code
		}
	}
	e.staging.Reset()
	e.crc = CRCSeed
	return SUCCESS
}

func (e *Engine) doAppVersion(c AppVersionReqCmd) ([]byte, ErrorKind) {
	addr := e.cfg.BootSlotAddress(int(c.Slot))
	block := e.mem.ReadAt(addr, DescriptorSize)
	desc := ParseDescriptor(block)
	if !desc.Validate(e.mem, e.descriptorLimits()) {
		return nil, AppNotStartable
	}
	version, ok := desc.AppVersion(e.mem, e.cfg.AppVersionPointerCeiling)
	if !ok {
		return nil, AppNotStartable
	}
	return version, SUCCESS
}
