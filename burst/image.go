package burst

const (
	// DefaultLoadAddress is where program images are uploaded to.
	DefaultLoadAddress uint16 = 0x0700

	// MaxImageSize is the exclusive upper bound of a program image.
	MaxImageSize = 0x100

	// BlockSize is the size of a burst block.
	BlockSize = 0x100
)

// image1571 runs on the 1571 at 0x0700 and hands every byte between the
// serial bus and the CIA shift register at 0x400c. It is shared with the
// 1570.
//
//	0700  SEI
//	0701  LDA $400E   ; shift register to input
//	      AND #$BF
//	      STA $400E
//	      LDA $400D   ; clear pending interrupts
//	070C  LDA $400D   ; wait for a received byte
//	      AND #$08
//	      BEQ $070C
//	      LDX $400C
//	      LDA $400E   ; shift register to output
//	      ORA #$40
//	      STA $400E
//	      STX $400C   ; send it back
//	0721  LDA $400D   ; wait until it is out
//	      AND #$08
//	      BEQ $0721
//	      JMP $0701
var image1571 = []byte{
	0x78,
	0xad, 0x0e, 0x40,
	0x29, 0xbf,
	0x8d, 0x0e, 0x40,
	0xad, 0x0d, 0x40,
	0xad, 0x0d, 0x40,
	0x29, 0x08,
	0xf0, 0xf9,
	0xae, 0x0c, 0x40,
	0xad, 0x0e, 0x40,
	0x09, 0x40,
	0x8d, 0x0e, 0x40,
	0x8e, 0x0c, 0x40,
	0xad, 0x0d, 0x40,
	0x29, 0x08,
	0xf0, 0xf9,
	0x4c, 0x01, 0x07,
}

// builtinImages maps every model that has a program to its image.
func builtinImages() map[DeviceType][]byte {
	return map[DeviceType][]byte{
		Device1570: image1571,
		Device1571: image1571,
	}
}

// Image returns a copy of the built-in program for t.
func Image(t DeviceType) ([]byte, bool) {
	img, ok := builtinImages()[t]
	if !ok {
		return nil, false
	}

	return append([]byte(nil), img...), true
}
