package flow

import "github.com/snksoft/crc"

// crcTable is CRC-32/MPEG-2: polynomial 0x04C11DB7, init 0xFFFFFFFF, no
// reflection, no final xor
var crcTable = crc.NewHash(&crc.Parameters{
	Width:      32,
	Polynomial: 0x04C11DB7,
	ReflectIn:  false,
	ReflectOut: false,
	Init:       0xFFFFFFFF,
	FinalXor:   0,
})

// Checksum computes the frame checksum
func Checksum(data []byte) uint32 {
	return uint32(crcTable.CalculateCRC(data))
}
