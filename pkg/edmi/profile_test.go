package edmi

import (
	"context"
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeMeter scripts a meter holding one load survey with synthetic records:
// channel 0 reads 1000+index, a status channel reads 0x0001. It answers
// login, register group reads for the survey metadata, and the file access
// commands.
type fakeMeter struct {
	survey   Survey
	interval time.Duration
	base     time.Time // timestamp of record 0
	nRecords int
	channels []ChannelInfo

	perRead    int // cap on records per answer, 0 = no cap
	truncateAt int // pretend data ends at this record, 0 = full
	reads      int // FILE_READ answers served
}

func newFakeMeter(surveyID string) *fakeMeter {
	sv, _ := ResolveSurvey(surveyID)
	return &fakeMeter{
		survey:   sv,
		interval: 15 * time.Minute,
		base:     time.Date(2024, time.March, 1, 0, 0, 0, 0, time.Local),
		nRecords: 96,
		channels: []ChannelInfo{
			{Name: "kWh Import", Type: TypeFloat, Unit: UnitNone, Scaling: 1},
			{Name: "Status", Type: TypeHexShort, Unit: UnitNone, Scaling: 0},
		},
	}
}

func (m *fakeMeter) recordSize() int16 {
	var size int16
	for _, ch := range m.channels {
		size += int16(ch.Type.WireLen())
	}
	return size
}

func (m *fakeMeter) channelValue(idx int) float32 {
	return float32(1000 + idx)
}

func (m *fakeMeter) respond(wire []byte) [][]byte {
	plain, err := decodeWrittenFrame(wire)
	if err != nil {
		return nil
	}
	switch Command(plain[respResultOffset]) {
	case CmdLogin:
		return [][]byte{loginOKFrame()}
	case CmdReadRegisterExt:
		return [][]byte{m.answerRegisters(plain)}
	case CmdFileAccess:
		return [][]byte{m.answerFileAccess(plain)}
	}
	return nil
}

func (m *fakeMeter) answerRegisters(plain []byte) []byte {
	body := binary.BigEndian.AppendUint32(nil, multiReadMarker)
	dataEnd := len(plain) - frameTrailerLen
	for idx := respResultOffset + 5; idx+4 <= dataEnd; idx += 4 {
		addr := binary.BigEndian.Uint32(plain[idx:])
		body = append(body, byte(CodeNone))
		body = m.appendRegisterValue(body, addr)
	}
	return respFrame(CmdReadRegisterExt, ExtNone, body)
}

func (m *fakeMeter) appendRegisterValue(body []byte, addr uint32) []byte {
	low := addr & 0xFFFF
	switch {
	case low == fileIntervalReg:
		return binary.BigEndian.AppendUint32(body, uint32(m.interval/time.Second))
	case low == fileChannelsReg:
		return append(body, byte(len(m.channels)-1))
	}
	page := low >> 8
	ch := int(low & 0xFF)
	if ch >= len(m.channels) {
		return append(body, 0)
	}
	info := m.channels[ch]
	switch page {
	case chTypePage:
		return append(body, byte(info.Type))
	case chUnitPage:
		return append(body, byte(info.Unit))
	case chScaleCodePage:
		return append(body, info.ScalingCode)
	case chScalePage:
		return binary.BigEndian.AppendUint32(body, math.Float32bits(float32(info.Scaling)))
	case chNamePage:
		return append(append(body, info.Name...), 0x00)
	}
	return append(body, 0)
}

func (m *fakeMeter) answerFileAccess(plain []byte) []byte {
	ext := Extension(plain[respResultOffset+1])
	payload := plain[respResultOffset+2 : len(plain)-frameTrailerLen]
	regEcho := binary.BigEndian.Uint32(payload)

	switch ext {
	case ExtFileInfo:
		body := binary.BigEndian.AppendUint32(nil, regEcho)
		body = binary.BigEndian.AppendUint32(body, 0) // start record
		body = binary.BigEndian.AppendUint32(body, uint32(m.nRecords))
		body = binary.BigEndian.AppendUint16(body, uint16(m.recordSize()))
		body = append(body, byte('D'))
		body = append(append(body, "Load Survey"...), 0x00)
		return respFrame(CmdFileAccess, ExtFileInfo, body)

	case ExtFileSearch:
		ts := datetimeFromWire(payload[8:14])
		idx := int(ts.Sub(m.base) / m.interval)
		if idx < 0 {
			idx = 0
		}
		if idx > m.nRecords-1 {
			idx = m.nRecords - 1
		}
		body := binary.BigEndian.AppendUint32(nil, regEcho)
		body = binary.BigEndian.AppendUint32(body, uint32(int32(idx)))
		body = appendWireDateTime(body, m.base.Add(time.Duration(idx)*m.interval))
		body = append(body, 0)
		return respFrame(CmdFileAccess, ExtFileSearch, body)

	case ExtFileRead:
		m.reads++
		start := int(int32(binary.BigEndian.Uint32(payload[4:])))
		count := int(int16(binary.BigEndian.Uint16(payload[8:])))

		end := m.nRecords
		if m.truncateAt > 0 && m.truncateAt < end {
			end = m.truncateAt
		}
		n := count
		if m.perRead > 0 && n > m.perRead {
			n = m.perRead
		}
		if start+n > end {
			n = end - start
		}
		if n < 0 {
			n = 0
		}

		body := binary.BigEndian.AppendUint32(nil, regEcho)
		body = binary.BigEndian.AppendUint32(body, uint32(int32(start)))
		body = binary.BigEndian.AppendUint16(body, uint16(int16(n)))
		body = binary.BigEndian.AppendUint16(body, 0)
		body = binary.BigEndian.AppendUint16(body, uint16(m.recordSize()))
		for i := 0; i < n; i++ {
			for _, ch := range m.channels {
				switch ch.Type {
				case TypeFloat:
					body = binary.BigEndian.AppendUint32(body, math.Float32bits(m.channelValue(start+i)))
				case TypeHexShort:
					body = binary.BigEndian.AppendUint16(body, 0x0001)
				}
			}
		}
		return respFrame(CmdFileAccess, ExtFileRead, body)
	}
	return canFrame(CodeUnimplementedOp)
}

func profileSession(t *testing.T, m *fakeMeter) (*Session, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport()
	ft.respond = m.respond
	s := newTestSession(ft)
	if err := s.Login(context.Background(), testCreds()); err != nil {
		t.Fatalf("login: %v", err)
	}
	return s, ft
}

func TestReadProfileWindow(t *testing.T) {

	assert := assert.New(t)

	m := newFakeMeter("LS01")
	s, _ := profileSession(t, m)

	from := m.base.Add(1 * time.Hour)
	to := m.base.Add(2 * time.Hour)

	var lastRead, lastTotal int
	data, err := s.ReadProfile(context.Background(), "LS01", from, to, func(read, total int) {
		lastRead, lastTotal = read, total
	})
	assert.NoError(err)

	assert.Equal("Load Survey", data.Spec.Name)
	assert.Equal(15*time.Minute, data.Spec.Interval)
	assert.Len(data.Spec.Channels, 2)
	assert.Equal("kWh Import", data.Spec.Channels[0].Name)

	// [from, to): the record stamped exactly at to stays out
	assert.Len(data.Records, 4)
	for i, rec := range data.Records {
		assert.Equal(from.Add(time.Duration(i)*15*time.Minute), rec.Timestamp)
		assert.InDelta(float64(1000+4+i), rec.Values[0], 1e-6)
		assert.Equal(uint16(0x0001), rec.Status)
	}

	assert.Equal(4, lastRead)
	assert.Equal(5, lastTotal, "search bounds are inclusive before the boundary cut")
}

func TestReadProfileEmptyWindow(t *testing.T) {

	assert := assert.New(t)

	m := newFakeMeter("LS01")
	s, ft := profileSession(t, m)
	writesAfterLogin := len(ft.writes)

	at := m.base.Add(time.Hour)
	data, err := s.ReadProfile(context.Background(), "LS01", at, at, nil)
	assert.NoError(err)
	assert.Empty(data.Records)
	assert.Len(ft.writes, writesAfterLogin, "an empty window costs no traffic")
}

func TestReadProfileInvalidWindow(t *testing.T) {

	assert := assert.New(t)

	m := newFakeMeter("LS01")
	s, ft := profileSession(t, m)
	writesAfterLogin := len(ft.writes)

	_, err := s.ReadProfile(context.Background(), "LS01", m.base.Add(time.Hour), m.base, nil)
	assert.ErrorIs(err, ErrInvalidWindow)
	assert.Len(ft.writes, writesAfterLogin)
}

func TestReadProfileUnknownSurvey(t *testing.T) {

	assert := assert.New(t)

	m := newFakeMeter("LS01")
	s, _ := profileSession(t, m)

	_, err := s.ReadProfile(context.Background(), "LS99", m.base, m.base.Add(time.Hour), nil)
	var ue *UnknownSurveyError
	assert.ErrorAs(err, &ue)
	assert.Len(ue.Available, len(Surveys()))
}

func TestReadProfilePagination(t *testing.T) {

	assert := assert.New(t)

	m := newFakeMeter("LS01")
	m.perRead = 3
	s, _ := profileSession(t, m)

	from := m.base
	to := m.base.Add(10 * 15 * time.Minute)

	data, err := s.ReadProfile(context.Background(), "LS01", from, to, nil)
	assert.NoError(err)
	assert.Len(data.Records, 10)
	// 11 wanted: a short first answer teaches the limit, then 3+3+3+2
	assert.Equal(4, m.reads)

	for i, rec := range data.Records {
		assert.Equal(int32(i), rec.Index)
		assert.InDelta(float64(1000+i), rec.Values[0], 1e-6)
	}
}

func TestReadProfileEndOfData(t *testing.T) {

	assert := assert.New(t)

	m := newFakeMeter("LS01")
	m.truncateAt = 5
	s, _ := profileSession(t, m)

	from := m.base
	to := m.base.Add(10 * 15 * time.Minute)

	// the meter stops producing records before the search-estimated total:
	// the explicit end of data wins, with no error
	data, err := s.ReadProfile(context.Background(), "LS01", from, to, nil)
	assert.NoError(err)
	assert.Len(data.Records, 5)
}

func TestReadProfileLS03Scaling(t *testing.T) {

	assert := assert.New(t)

	m := newFakeMeter("LS03")
	s, _ := profileSession(t, m)

	data, err := s.ReadProfile(context.Background(), "LS03", m.base, m.base.Add(15*time.Minute), nil)
	assert.NoError(err)
	assert.Len(data.Records, 1)
	assert.InDelta(1000*0.001344, data.Records[0].Values[0], 1e-9)
}

func TestReadProfileProgressPanicRecovered(t *testing.T) {

	assert := assert.New(t)

	m := newFakeMeter("LS01")
	s, _ := profileSession(t, m)

	data, err := s.ReadProfile(context.Background(), "LS01", m.base, m.base.Add(time.Hour), func(read, total int) {
		panic("listener bug")
	})
	assert.NoError(err, "a broken progress listener never disturbs the read")
	assert.Len(data.Records, 4)
}
