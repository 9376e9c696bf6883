package viperwolf

/*-------------------------------------------------------------
 *
 * Purpose:	Frame check sequence, CRC-16 as used by HDLC and AX.25.
 *
 *		Polynomial x^16 + x^12 + x^5 + 1, bit reversed (0x8408),
 *		initial value 0xffff, result inverted.  Sent low byte first.
 *
 *--------------------------------------------------------------*/

var fcsTable = func() [256]uint16 {
	var t [256]uint16
	for i := range 256 {
		var crc = uint16(i)
		for range 8 {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ 0x8408
			} else {
				crc >>= 1
			}
		}
		t[i] = crc
	}

	return t
}()

// FCS computes the check sequence for data.
func FCS(data []byte) uint16 {
	var crc uint16 = 0xffff
	for _, b := range data {
		crc = (crc >> 8) ^ fcsTable[(crc^uint16(b))&0xff]
	}

	return crc ^ 0xffff
}

// CheckFCS looks at the last two bytes of a received frame.
// Returns the frame without them and whether they were correct.
func CheckFCS(frame []byte) ([]byte, bool) {
	if len(frame) < 3 {
		return frame, false
	}

	var n = len(frame) - 2
	var actual = uint16(frame[n]) | uint16(frame[n+1])<<8

	return frame[:n], actual == FCS(frame[:n])
}
