package updater

// replyHeaderSize is the number of fixed header bytes preceding a
// reply opcode and its payload.
const replyHeaderSize = 5

// BuildReply assembles an outbound telegram for a GET_LAST_ERROR,
// REQUEST_UID, or APP_VERSION_REQUEST reply. The header layout is
// fixed and does not vary with which of the three reply opcodes is
// being sent; only op and payload change:
//
//	byte 0: 0x63 + len(payload)
//	byte 1: 0x42
//	byte 2: 0x40 | len(payload)
//	byte 3: 0x00
//	byte 4: op
//	byte 5…: payload
func BuildReply(op Opcode, payload []byte) []byte {
	n := byte(len(payload))
	frame := make([]byte, replyHeaderSize+len(payload))
	frame[0] = 0x63 + n
	frame[1] = 0x42
	frame[2] = 0x40 | n
	frame[3] = 0x00
	frame[4] = byte(op)
	copy(frame[replyHeaderSize:], payload)
	return frame
}

// LastErrorReply builds the GET_LAST_ERROR reply: the error register as
// 4 bytes little-endian, as it sits in device memory.
func LastErrorReply(err ErrorKind) []byte {
	payload := make([]byte, 4)
	putLEUint32(payload, uint32(err))
	return BuildReply(OpSendLastError, payload)
}

// UIDReply builds the REQUEST_UID reply, echoing the chip's raw unique
// ID bytes unchanged.
func UIDReply(uid []byte) []byte {
	return BuildReply(OpResponseUID, uid)
}

// AppVersionReply builds the APP_VERSION_REQUEST reply, echoing the 12
// version bytes read from the application's descriptor.
func AppVersionReply(version []byte) []byte {
	return BuildReply(OpAppVersionResp, version)
}
