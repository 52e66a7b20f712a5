package edmi

import (
	"context"
	"encoding/binary"
	"fmt"
)

// RegisterResult is one slot of a batch read. Exactly one of Value and Err
// is set.
type RegisterResult struct {
	Name  string
	Value *RegisterValue
	Err   error
}

// ReadRegisters resolves and reads each named register in order, one request
// per register. An unresolved name or a per-register meter error fills its
// slot without aborting the rest of the batch, so callers always get partial
// results to display. Cancellation is honored between reads; the results
// gathered so far are returned.
func (s *Session) ReadRegisters(ctx context.Context, names []string) []RegisterResult {
	results := make([]RegisterResult, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return results
		}

		desc, err := ResolveRegister(name)
		if err != nil {
			results = append(results, RegisterResult{Name: name, Err: err})
			continue
		}

		items, err := s.readRegisterGroup(ctx, []RegisterDescriptor{desc})
		if err != nil {
			results = append(results, RegisterResult{Name: name, Err: err})
			continue
		}
		item := items[0]
		if item.err != nil {
			results = append(results, RegisterResult{Name: name, Err: item.err})
			continue
		}
		v := item.val
		results = append(results, RegisterResult{Name: name, Value: &v})
	}
	return results
}

// readItem is the outcome of one register inside a grouped read.
type readItem struct {
	desc RegisterDescriptor
	val  RegisterValue
	err  error
}

// readRegisterGroup issues a single extended read for a set of registers and
// decodes each value in place. Group-level failures (session, frame, shape)
// surface as the second return; per-register meter errors land in the items.
func (s *Session) readRegisterGroup(ctx context.Context, descs []RegisterDescriptor) ([]readItem, error) {
	payload := make([]byte, 0, 4+4*len(descs))
	payload = binary.BigEndian.AppendUint32(payload, multiReadMarker)
	for _, d := range descs {
		payload = binary.BigEndian.AppendUint32(payload, d.Address)
	}

	plain, err := s.Request(ctx, CmdReadRegisterExt, ExtNone, payload)
	if err != nil {
		return nil, err
	}
	return parseReadRegistersAnswer(plain, descs)
}

// parseReadRegistersAnswer walks the response of an extended register read:
// command echo, marker, then per register an error byte followed by the
// value bytes (omitted when the register errored).
func parseReadRegistersAnswer(plain []byte, descs []RegisterDescriptor) ([]readItem, error) {
	if len(plain) < respResultOffset+2+frameTrailerLen {
		return nil, &DecodeError{What: "register read answer too short"}
	}
	if plain[respResultOffset] == respCAN {
		return nil, &MeterError{Code: ErrorCode(plain[respResultOffset+1])}
	}
	if Command(plain[respResultOffset]) != CmdReadRegisterExt {
		return nil, &DecodeError{What: "register read command echo mismatch"}
	}
	if len(plain) < respResultOffset+5+frameTrailerLen {
		return nil, &DecodeError{What: "register read answer truncated"}
	}
	if binary.BigEndian.Uint32(plain[respResultOffset+1:respResultOffset+5]) != multiReadMarker {
		return nil, &DecodeError{What: "register read marker mismatch"}
	}

	dataEnd := len(plain) - frameTrailerLen
	idx := respResultOffset + 5

	items := make([]readItem, 0, len(descs))
	for _, desc := range descs {
		if idx >= dataEnd {
			return nil, &DecodeError{What: fmt.Sprintf("register %s: answer exhausted", desc.ID)}
		}
		code := ErrorCode(plain[idx])
		idx++
		if code != CodeNone {
			// the meter omits value bytes for errored registers
			items = append(items, readItem{desc: desc, err: &MeterError{Code: code}})
			continue
		}

		var chunk []byte
		switch desc.Type {
		case TypeString, TypeStringLong, TypeEFAString:
			// NUL-terminated, bounded by the register's value length
			s, next, err := scanCString(plain, idx, dataEnd, desc.ValueLen)
			if err != nil {
				return nil, err
			}
			chunk = s
			idx = next
		default:
			w := desc.Type.WireLen()
			if w < 0 {
				w = desc.ValueLen
			}
			if idx+w > dataEnd {
				return nil, &DecodeError{What: fmt.Sprintf("register %s: value crosses frame end", desc.ID)}
			}
			chunk = plain[idx : idx+w]
			idx += w
		}

		val, err := DecodeValue(desc, chunk)
		items = append(items, readItem{desc: desc, val: val, err: err})
	}
	return items, nil
}

// scanCString reads a NUL-terminated string at idx, bounded by maxLen and
// the data end. Returns the bytes without the terminator and the next index.
func scanCString(plain []byte, idx, dataEnd, maxLen int) ([]byte, int, error) {
	if idx >= dataEnd {
		return nil, idx, &DecodeError{What: "string value at frame end"}
	}
	limit := idx + maxLen
	if limit > dataEnd {
		limit = dataEnd
	}
	for i := idx; i < limit; i++ {
		if plain[i] == 0x00 {
			return plain[idx:i], i + 1, nil
		}
	}
	if limit < idx+maxLen {
		return nil, idx, &DecodeError{What: "unterminated string value"}
	}
	return plain[idx:limit], limit, nil
}
