package edmi

import (
	"encoding/binary"
)

// crc16CCITT computes CRC-16/XMODEM (poly 0x1021, init 0) over data. This is
// the checksum the meter appends big-endian before byte stuffing.
func crc16CCITT(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// WakeUpSeq is sent before the login frame to get the meter's attention.
func WakeUpSeq() []byte {
	return []byte("/?!\r\n")
}

func needsEscape(b byte) bool {
	switch b {
	case stx, etx, dle, xon, xoff:
		return true
	}
	return false
}

// stuff escapes every control byte after the leading STX.
func stuff(plain []byte) []byte {
	out := make([]byte, 0, len(plain))
	out = append(out, plain[0])
	for _, b := range plain[1:] {
		if needsEscape(b) {
			out = append(out, dle, b+idenCorrector)
		} else {
			out = append(out, b)
		}
	}
	return out
}

// UnstuffFrame reverses the byte stuffing of a raw STX..ETX frame. A DLE
// with no following byte means the frame was cut short on the wire.
func UnstuffFrame(raw []byte) ([]byte, error) {
	out := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		b := raw[i]
		if b != dle {
			out = append(out, b)
			continue
		}
		i++
		if i >= len(raw) {
			return nil, &FrameError{Kind: FrameTruncated}
		}
		out = append(out, raw[i]-idenCorrector)
	}
	return out, nil
}

// BuildFrame assembles a complete stuffed E-frame:
//
//	STX 'E' serial clientSerial cmd [ext] payload CRC ETX
//
// The CRC covers STX through the payload and is computed before stuffing.
func BuildFrame(serial uint32, cmd Command, ext Extension, payload []byte) []byte {
	plain := make([]byte, 0, respResultOffset+2+len(payload)+2)
	plain = append(plain, stx, eFrameIden)
	plain = binary.BigEndian.AppendUint32(plain, serial)
	plain = append(plain, clientSerial[:]...)
	plain = append(plain, byte(cmd))
	if ext != ExtNone {
		plain = append(plain, byte(ext))
	}
	plain = append(plain, payload...)

	crc := crc16CCITT(plain)
	plain = binary.BigEndian.AppendUint16(plain, crc)

	frame := stuff(plain)
	return append(frame, etx)
}

// ExtractFrame scans buf for one raw frame (STX through the first unescaped
// ETX). It returns the frame, the number of bytes consumed from buf
// (including any leading garbage), and an error. ErrIncompleteFrame means no
// terminator has arrived yet and the caller must accumulate more bytes; it is
// distinct from a hard parse failure.
func ExtractFrame(buf []byte) (frame []byte, consumed int, err error) {
	start := -1
	for i, b := range buf {
		if b == stx {
			start = i
			break
		}
	}
	if start < 0 {
		// nothing but garbage so far, drop it all
		return nil, len(buf), ErrIncompleteFrame
	}
	for i := start + 1; i < len(buf); i++ {
		if buf[i] == etx && buf[i-1] != dle {
			return buf[start : i+1], i + 1, nil
		}
	}
	return nil, start, ErrIncompleteFrame
}

// ValidateFrame checks delimiters, minimum length and CRC of an unstuffed
// frame. On success the frame is usable as a response payload:
// header echo at the front, data ending 3 bytes before the end.
func ValidateFrame(plain []byte) error {
	if len(plain) < 4 {
		return &FrameError{Kind: FrameTruncated}
	}
	if plain[0] != stx || plain[len(plain)-1] != etx {
		return &FrameError{Kind: FrameBadDelimiter}
	}
	want := binary.BigEndian.Uint16(plain[len(plain)-3 : len(plain)-1])
	if crc16CCITT(plain[:len(plain)-3]) != want {
		return &FrameError{Kind: FrameBadChecksum}
	}
	return nil
}

// DecodeFrame unstuffs and validates a raw frame in one step.
func DecodeFrame(raw []byte) ([]byte, error) {
	plain, err := UnstuffFrame(raw)
	if err != nil {
		return nil, err
	}
	if err := ValidateFrame(plain); err != nil {
		return nil, err
	}
	return plain, nil
}
