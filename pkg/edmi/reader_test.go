package edmi

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

// registerServer answers extended register reads from a fixed address map.
// Addresses missing from values earn a data-not-ready error byte.
func registerServer(values map[uint32][]byte) func(wire []byte) [][]byte {
	return func(wire []byte) [][]byte {
		plain, err := decodeWrittenFrame(wire)
		if err != nil {
			return nil
		}
		if Command(plain[respResultOffset]) == CmdLogin {
			return [][]byte{loginOKFrame()}
		}

		body := binary.BigEndian.AppendUint32(nil, multiReadMarker)
		dataEnd := len(plain) - frameTrailerLen
		for idx := respResultOffset + 5; idx+4 <= dataEnd; idx += 4 {
			addr := binary.BigEndian.Uint32(plain[idx:])
			v, ok := values[addr]
			if !ok {
				body = append(body, byte(CodeDataNotReady))
				continue
			}
			body = append(body, byte(CodeNone))
			body = append(body, v...)
		}
		return [][]byte{respFrame(CmdReadRegisterExt, ExtNone, body)}
	}
}

func TestReadRegistersBatch(t *testing.T) {

	assert := assert.New(t)

	ft := newFakeTransport()
	ft.respond = registerServer(map[uint32][]byte{
		0xE000: {0x43, 0x66, 0x00, 0x00}, // 230.0f
		0xE010: {0x40, 0xA0, 0x00, 0x00}, // 5.0f
	})
	s := newTestSession(ft)
	assert.NoError(s.Login(context.Background(), testCreds()))

	results := s.ReadRegisters(context.Background(), []string{
		"PHASE_A_VOLTAGE",
		"NO_SUCH_REGISTER",
		"PHASE_A_CURRENT",
	})
	assert.Len(results, 3)

	assert.Equal("PHASE_A_VOLTAGE", results[0].Name)
	assert.NoError(results[0].Err)
	assert.InDelta(230.0, results[0].Value.Value.(float64), 1e-6)

	// a bad name fills its slot without aborting the batch
	var ue *UnknownRegisterError
	assert.ErrorAs(results[1].Err, &ue)
	assert.Nil(results[1].Value)

	assert.NoError(results[2].Err)
	assert.InDelta(5.0, results[2].Value.Value.(float64), 1e-6)
}

func TestReadRegistersMeterError(t *testing.T) {

	assert := assert.New(t)

	ft := newFakeTransport()
	ft.respond = registerServer(map[uint32][]byte{
		0xE000: {0x43, 0x66, 0x00, 0x00},
		// PHASE_B_VOLTAGE absent: the meter reports data not ready
	})
	s := newTestSession(ft)
	assert.NoError(s.Login(context.Background(), testCreds()))

	results := s.ReadRegisters(context.Background(), []string{"PHASE_B_VOLTAGE", "PHASE_A_VOLTAGE"})
	assert.Len(results, 2)

	var me *MeterError
	assert.ErrorAs(results[0].Err, &me)
	assert.Equal(CodeDataNotReady, me.Code)

	assert.NoError(results[1].Err)
}

func TestReadRegistersCancelled(t *testing.T) {

	assert := assert.New(t)

	ft := newFakeTransport()
	s := newTestSession(ft)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := s.ReadRegisters(ctx, []string{"PHASE_A_VOLTAGE", "PHASE_B_VOLTAGE"})
	assert.Empty(results)
	assert.Empty(ft.writes)
}

func TestReadRegistersRejectedAnswer(t *testing.T) {

	assert := assert.New(t)

	ft := newFakeTransport()
	ft.respond = func(wire []byte) [][]byte {
		plain, err := decodeWrittenFrame(wire)
		if err != nil {
			return nil
		}
		if Command(plain[respResultOffset]) == CmdLogin {
			return [][]byte{loginOKFrame()}
		}
		return [][]byte{canFrame(CodeNotLoggedIn)}
	}
	s := newTestSession(ft)
	assert.NoError(s.Login(context.Background(), testCreds()))

	results := s.ReadRegisters(context.Background(), []string{"PHASE_A_VOLTAGE"})
	assert.Len(results, 1)
	var me *MeterError
	assert.ErrorAs(results[0].Err, &me)
	assert.Equal(CodeNotLoggedIn, me.Code)
}

func TestParseReadRegistersAnswerStringValue(t *testing.T) {

	assert := assert.New(t)

	desc, err := ResolveRegister("METER_SERIAL_NUMBER")
	assert.NoError(err)

	body := binary.BigEndian.AppendUint32(nil, multiReadMarker)
	body = append(body, byte(CodeNone))
	body = append(body, []byte("A1234567\x00\x00")...) // fixed 10-byte field

	plain, err := DecodeFrame(respFrame(CmdReadRegisterExt, ExtNone, body))
	assert.NoError(err)

	items, err := parseReadRegistersAnswer(plain, []RegisterDescriptor{desc})
	assert.NoError(err)
	assert.Len(items, 1)
	assert.NoError(items[0].err)
	assert.Equal("A1234567", items[0].val.Value.(string))
}
