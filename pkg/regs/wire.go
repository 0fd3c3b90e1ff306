package regs

import "encoding/binary"

// HostCmdAddr is the pseudo-address of the host command channel.
const HostCmdAddr uint16 = 0xFFFE

// HostCmdATUTune starts an antenna tuner cycle.
const HostCmdATUTune uint16 = 0x8004

// WriteLen and BulkLen are the sizes of single and bulk write payloads.
const (
	WriteLen   = 2 + 4
	BulkLen    = 2 + 4*Count
	HostCmdLen = 2 + 2
)

// EncodeAddr returns the big-endian address prefix used by every
// transaction.
func EncodeAddr(addr uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, addr)
	return b
}

// EncodeWrite builds a single register write: address idx*4 then the
// little-endian value.
func EncodeWrite(idx Index, v uint32) []byte {
	b := make([]byte, WriteLen)
	binary.BigEndian.PutUint16(b[0:2], idx.Addr())
	binary.LittleEndian.PutUint32(b[2:6], v)
	return b
}

// EncodeBulk builds the whole-table write starting at address zero.
func EncodeBulk(table *[Count]uint32) []byte {
	b := make([]byte, BulkLen)
	for i, v := range table {
		binary.LittleEndian.PutUint32(b[2+i*4:], v)
	}
	return b
}

// EncodeHostCmd builds a host command transaction.
func EncodeHostCmd(cmd uint16) []byte {
	b := make([]byte, HostCmdLen)
	binary.BigEndian.PutUint16(b[0:2], HostCmdAddr)
	binary.BigEndian.PutUint16(b[2:4], cmd)
	return b
}

// EncodeSigned16 sign-extends an offset such as RIT or XIT into a
// register word.
func EncodeSigned16(v int16) uint32 {
	return uint32(int32(v))
}

// EncodeFilter packs a low/high passband pair as high<<16 + low.
func EncodeFilter(low, high int16) uint32 {
	return uint32(uint16(high))<<16 | uint32(uint16(low))
}

// EncodeTenths scales a fractional setting such as transmit power or key
// ratio to tenths. The device firmware truncates in single precision, so
// 4.96 becomes 49.
func EncodeTenths(v float64) uint32 {
	if v <= 0 {
		return 0
	}
	return uint32(float32(v) * 10)
}
