package target

import (
	"github.com/pkg/errors"
)

func alignDown(addr uint64) uint64 {
	return addr &^ (WordSize - 1)
}

// byteShift is the bit offset of addr inside its containing little endian word.
func byteShift(addr uint64) uint {
	return uint(addr-alignDown(addr)) * 8
}

// patchByte replaces the byte at bit offset shift of word with b and returns
// the new word and the byte it displaced.
func patchByte(word uint64, shift uint, b byte) (uint64, byte) {
	old := byte(word >> shift)
	word &^= uint64(0xff) << shift
	word |= uint64(b) << shift
	return word, old
}

// ReadByteAt reads the single byte at addr.
func ReadByteAt(mem Memory, addr uint64) (byte, error) {
	word, err := mem.ReadWord(alignDown(addr))
	if err != nil {
		return 0, err
	}
	return byte(word >> byteShift(addr)), nil
}

// WriteByteAt writes b at addr by rewriting the containing word, and returns
// the byte that was there before.
func WriteByteAt(mem Memory, addr uint64, b byte) (byte, error) {
	aligned := alignDown(addr)
	word, err := mem.ReadWord(aligned)
	if err != nil {
		return 0, err
	}
	word, old := patchByte(word, byteShift(addr), b)
	if err := mem.WriteWord(aligned, word); err != nil {
		return 0, err
	}
	return old, nil
}

// ReadMemory fills buf with the tracee memory starting at addr.
func ReadMemory(mem Memory, addr uint64, buf []byte) error {
	end := addr + uint64(len(buf))
	for w := alignDown(addr); w < end; w += WordSize {
		word, err := mem.ReadWord(w)
		if err != nil {
			return errors.Wrapf(err, "read memory %#x", w)
		}
		for i := uint64(0); i < WordSize; i++ {
			a := w + i
			if a < addr || a >= end {
				continue
			}
			buf[a-addr] = byte(word >> (i * 8))
		}
	}
	return nil
}
