package updater

import "fmt"

// Opcode is the wire-level command byte at frame[2]. Values
// are wire-visible and must not change.
type Opcode byte

const (
	OpEraseSector     Opcode = 0
	OpSendData        Opcode = 1
	OpProgram         Opcode = 2
	OpUpdateBootDesc  Opcode = 3
	OpReqData         Opcode = 10
	OpGetLastError    Opcode = 20
	OpSendLastError   Opcode = 21 // reply opcode, outbound only
	OpUnlockDevice    Opcode = 30
	OpRequestUID      Opcode = 31
	OpResponseUID     Opcode = 32 // reply opcode, outbound only
	OpAppVersionReq   Opcode = 33
	OpAppVersionResp  Opcode = 34 // reply opcode, outbound only
	OpSetEmulation    Opcode = 100
)

// Command is the decoded form of one inbound frame: a tagged union over
// the bus's opcode table, decoded once up front so handlers work with
// typed fields instead of re-parsing raw bytes.
type Command interface {
	Opcode() Opcode
}

// EraseSectorCmd is opcode 0: erase flash sector Sector.
type EraseSectorCmd struct{ Sector byte }

func (EraseSectorCmd) Opcode() Opcode { return OpEraseSector }

// SendDataCmd is opcode 1: append Data to the staging buffer.
type SendDataCmd struct{ Data []byte }

func (SendDataCmd) Opcode() Opcode { return OpSendData }

// ProgramCmd is opcode 2: commit Count staged bytes to flash at Address,
// provided they checksum to CRC.
type ProgramCmd struct {
	Count   uint32
	Address uint32
	CRC     uint32
}

func (ProgramCmd) Opcode() Opcode { return OpProgram }

// UpdateBootDescCmd is opcode 3: commit the 256 staged bytes as the boot
// descriptor for Slot, provided they checksum to CRC.
type UpdateBootDescCmd struct {
	CRC  uint32
	Slot byte
}

func (UpdateBootDescCmd) Opcode() Opcode { return OpUpdateBootDesc }

// ReqDataCmd is opcode 10: reserved, always NOT_IMPLEMENTED.
type ReqDataCmd struct{}

func (ReqDataCmd) Opcode() Opcode { return OpReqData }

// GetLastErrorCmd is opcode 20: reply with and clear the last error.
type GetLastErrorCmd struct{}

func (GetLastErrorCmd) Opcode() Opcode { return OpGetLastError }

// UnlockCmd is opcode 30: unlock via program pin or UID prefix match.
type UnlockCmd struct{ UID [12]byte }

func (UnlockCmd) Opcode() Opcode { return OpUnlockDevice }

// RequestUIDCmd is opcode 31: reply with the chip unique ID.
type RequestUIDCmd struct{}

func (RequestUIDCmd) Opcode() Opcode { return OpRequestUID }

// AppVersionReqCmd is opcode 33: reply with the version bytes of the
// application described by descriptor slot Slot.
type AppVersionReqCmd struct{ Slot byte }

func (AppVersionReqCmd) Opcode() Opcode { return OpAppVersionReq }

// SetEmulationCmd is opcode 100: set the debug-emulation mask.
type SetEmulationCmd struct{ Mask byte }

func (SetEmulationCmd) Opcode() Opcode { return OpSetEmulation }

// UnknownCmd is any opcode not in the table above.
type UnknownCmd struct{ Raw Opcode }

func (UnknownCmd) Opcode() Opcode { return 0xFF }

// ErrMalformedFrame is returned by Decode when a frame is too short to
// hold the fields its opcode requires. The original C implementation
// has no such guard — the data field is a fixed-size telegram buffer,
// so a short command simply reads whatever garbage followed it in RAM.
// Decode cannot reproduce that undefined behavior safely, so it reports
// the frame as malformed instead of reading out of bounds.
type ErrMalformedFrame struct {
	Op  Opcode
	Len int
}

func (e *ErrMalformedFrame) Error() string {
	return fmt.Sprintf("updater: frame for opcode %d too short (%d bytes)", e.Op, e.Len)
}

// Decode parses an inbound frame into a Command. Byte 0's low nibble
// is the SEND_DATA count, byte 2 is the opcode, and bytes 3… are the
// command's payload.
func Decode(frame []byte) (Command, error) {
	if len(frame) < 3 {
		return nil, &ErrMalformedFrame{Len: len(frame)}
	}

	count := frame[0] & 0x0F
	op := Opcode(frame[2])
	payload := frame[3:]

	switch op {
	case OpEraseSector:
		if len(payload) < 1 {
			return nil, &ErrMalformedFrame{Op: op, Len: len(frame)}
		}
		return EraseSectorCmd{Sector: payload[0]}, nil

	case OpSendData:
		if len(payload) < int(count) {
			return nil, &ErrMalformedFrame{Op: op, Len: len(frame)}
		}
		return SendDataCmd{Data: payload[:count]}, nil

	case OpProgram:
		if len(payload) < 12 {
			return nil, &ErrMalformedFrame{Op: op, Len: len(frame)}
		}
		return ProgramCmd{
			Count:   beUint32(payload[0:4]),
			Address: beUint32(payload[4:8]),
			CRC:     beUint32(payload[8:12]),
		}, nil

	case OpUpdateBootDesc:
		if len(payload) < 5 {
			return nil, &ErrMalformedFrame{Op: op, Len: len(frame)}
		}
		return UpdateBootDescCmd{
			CRC:  beUint32(payload[0:4]),
			Slot: payload[4],
		}, nil

	case OpReqData:
		return ReqDataCmd{}, nil

	case OpGetLastError:
		return GetLastErrorCmd{}, nil

	case OpUnlockDevice:
		if len(payload) < 12 {
			return nil, &ErrMalformedFrame{Op: op, Len: len(frame)}
		}
		var cmd UnlockCmd
		copy(cmd.UID[:], payload[:12])
		return cmd, nil

	case OpRequestUID:
		return RequestUIDCmd{}, nil

	case OpAppVersionReq:
		if len(payload) < 1 {
			return nil, &ErrMalformedFrame{Op: op, Len: len(frame)}
		}
		return AppVersionReqCmd{Slot: payload[0]}, nil

	case OpSetEmulation:
		if len(payload) < 1 {
			return nil, &ErrMalformedFrame{Op: op, Len: len(frame)}
		}
		return SetEmulationCmd{Mask: payload[0]}, nil

	default:
		return UnknownCmd{Raw: op}, nil
	}
}
