// Package crc implements CRC-16/MCRF4XX (X.25 polynomial, reflected, init 0xffff, no final xor)
// used to protect MAVLink frames.
package crc

const X25Init uint16 = 0xffff

// X25Accumulate is the bytewise reference algorithm.
func X25Accumulate(crc uint16, b byte) uint16 {
	tmp := b ^ byte(crc&0xff)
	tmp ^= tmp << 4
	return (crc >> 8) ^ (uint16(tmp) << 8) ^ (uint16(tmp) << 3) ^ (uint16(tmp) >> 4)
}

var x25Table = func() (t [256]uint16) {
	for i := 0; i < 256; i++ {
		t[i] = X25Accumulate(0, byte(i))
	}
	return
}()

func X25Next(crc uint16, b byte) uint16 {
	return (crc >> 8) ^ x25Table[byte(crc)^b]
}

func X25Update(crc uint16, data []byte) uint16 {
	for _, b := range data {
		crc = (crc >> 8) ^ x25Table[byte(crc)^b]
	}
	return crc
}

func X25(data []byte) uint16 { return X25Update(X25Init, data) }
