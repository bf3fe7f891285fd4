package meter

// BlockCheckCharacter computes the IEC 62056-21 block check character: an
// 8-bit XOR across every byte of buf. An empty buffer yields 0x00, and XOR
// distributes over concatenation, so BlockCheckCharacter(a) ^
// BlockCheckCharacter(b) == BlockCheckCharacter(append(a, b...)).
func BlockCheckCharacter(buf []byte) byte {
	var bcc byte
	for _, b := range buf {
		bcc ^= b
	}
	return bcc
}
