// Package crc16 computes the checksum carried in the trailer of plaintext
// DSMR telegrams.
package crc16

import "github.com/sigurn/crc16"

// DSMR uses CRC-16/ARC: reflected polynomial 0xA001, init 0, no final XOR.
var table = crc16.MakeTable(crc16.CRC16_ARC)

// Checksum returns the CRC16 of data.
func Checksum(data []byte) uint16 {
	return crc16.Checksum(data, table)
}
