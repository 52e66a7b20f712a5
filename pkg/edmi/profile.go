package edmi

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrInvalidWindow reports a profile window whose from lies after to.
// Raised before any I/O happens.
var ErrInvalidWindow = errors.New("edmi: profile window: from after to")

// Survey identifies one load-profile file of the meter.
type Survey struct {
	ID   string
	Code uint16
}

// surveyCatalog lists the load survey files of the meter family.
var surveyCatalog = []Survey{
	{"LS01", 0x0305},
	{"LS02", 0x0325},
	{"LS03", 0x0345},
	{"LS04", 0x0365},
	{"LS05", 0x0385},
	{"LS06", 0x0395},
	{"LS07", 0x03A5},
	{"LS08", 0x03B5},
	{"LS09", 0x03C5},
	{"LS10", 0x03D5},
}

// Surveys returns the survey catalog in display order.
func Surveys() []Survey {
	out := make([]Survey, len(surveyCatalog))
	copy(out, surveyCatalog)
	return out
}

// ResolveSurvey maps a survey name to its descriptor, case-insensitively.
func ResolveSurvey(name string) (Survey, error) {
	for _, sv := range surveyCatalog {
		if strings.EqualFold(sv.ID, strings.TrimSpace(name)) {
			return sv, nil
		}
	}
	available := make([]string, len(surveyCatalog))
	for i, sv := range surveyCatalog {
		available[i] = sv.ID
	}
	return Survey{}, &UnknownSurveyError{Name: name, Available: available}
}

// ChannelInfo describes one channel of a survey: value type, unit and the
// scaling factor applied to raw channel values.
type ChannelInfo struct {
	Name        string
	Type        DataType
	Unit        UnitCode
	ScalingCode byte
	Scaling     float64
}

// ProfileSpec is the negotiated shape of one profile retrieval.
type ProfileSpec struct {
	Survey       Survey
	Name         string
	Interval     time.Duration
	Channels     []ChannelInfo
	StartRecord  int32
	TotalRecords int
	RecordSize   int16
}

// ProfileRecord is one interval sample: a timestamp, one numeric value per
// channel (scaled to engineering units) and the status flag word when the
// survey carries a status channel.
type ProfileRecord struct {
	Index     int32
	Timestamp time.Time
	Values    []float64
	Status    uint16
}

// ProfileData is the outcome of a profile read. Records may be partial when
// the read was cancelled or aborted mid-way.
type ProfileData struct {
	Spec    ProfileSpec
	Records []ProfileRecord
}

// ProgressFunc receives (records read so far, total expected). Total is 0
// when unknown. The callback must not assume it runs on any particular
// goroutine; panics from it are swallowed and never disturb the protocol.
type ProgressFunc func(read, total int)

func safeProgress(cb ProgressFunc, read, total int) {
	if cb == nil {
		return
	}
	defer func() { _ = recover() }()
	cb(read, total)
}

// file-access register pages within a survey's address space
const (
	fileAccessReg   = 0xF008
	fileIntervalReg = 0xF014
	fileChannelsReg = 0xF012
	chTypePage      = 0xE2
	chUnitPage      = 0xE3
	chNamePage      = 0xE4
	chScaleCodePage = 0xE6
	chScalePage     = 0xE8
)

// LS03 raw channel values carry an extra fixed pulse weight on top of the
// advertised scaling factor.
const ls03ExtraScale = 0.001344

func surveyRegister(sv Survey, page uint32) uint32 {
	return uint32(sv.Code)<<16 | page
}

type readLimitKey struct {
	survey     uint16
	recordSize int16
	channels   int
}

type fileInfo struct {
	Interval      time.Duration
	ChannelsCount int
	StartRecord   int32
	RecordsCount  int32
	RecordSize    int16
	Type          byte
	Name          string
}

type searchResult struct {
	StartRecord int32
	Timestamp   time.Time
	DirOrResult byte
}

// ReadProfile retrieves the interval records of a survey within
// [from, to): a record stamped exactly at to is excluded, so contiguous
// window scans never double-count. The returned data holds whatever records
// were produced even when err is non-nil. onProgress may be nil.
func (s *Session) ReadProfile(ctx context.Context, surveyName string, from, to time.Time, onProgress ProgressFunc) (*ProfileData, error) {
	sv, err := ResolveSurvey(surveyName)
	if err != nil {
		return nil, err
	}
	if from.After(to) {
		return nil, ErrInvalidWindow
	}

	data := &ProfileData{Spec: ProfileSpec{Survey: sv}}
	if from.Equal(to) {
		// empty window, nothing to ask the meter for
		return data, nil
	}

	log := s.logger.With(zap.String("survey", sv.ID))

	info, err := s.readFileInfo(ctx, sv)
	if err != nil {
		return data, err
	}
	log.Debug("file info",
		zap.Int32("start_record", info.StartRecord),
		zap.Int32("records", info.RecordsCount),
		zap.Int16("record_size", info.RecordSize),
		zap.Duration("interval", info.Interval),
		zap.Int("channels", info.ChannelsCount))

	channels := make([]ChannelInfo, 0, info.ChannelsCount)
	for ch := 0; ch < info.ChannelsCount; ch++ {
		ci, err := s.readChannelInfo(ctx, sv, ch)
		if err != nil {
			return data, err
		}
		channels = append(channels, ci)
	}

	data.Spec = ProfileSpec{
		Survey:      sv,
		Name:        info.Name,
		Interval:    info.Interval,
		Channels:    channels,
		StartRecord: info.StartRecord,
		RecordSize:  info.RecordSize,
	}

	fromHit, err := s.searchFile(ctx, sv, info.StartRecord, from)
	if err != nil {
		return data, err
	}
	toHit, err := s.searchFile(ctx, sv, info.StartRecord, to)
	if err != nil {
		return data, err
	}

	total := int(toHit.StartRecord - fromHit.StartRecord + 1)
	if total < 1 {
		total = 1
	}
	data.Spec.StartRecord = fromHit.StartRecord
	data.Spec.TotalRecords = total

	base := fromHit.Timestamp
	if base.IsZero() {
		base = from
	}

	err = s.readBlocks(ctx, data, info, fromHit.StartRecord, total, base, to, onProgress, log)
	return data, err
}

// readBlocks paginates FILE_READ requests until the window boundary or the
// meter's end of data. A short reply teaches the per-read limit for the rest
// of the session; the explicit end-of-data (empty reply) always wins over
// the record count estimated from the search.
func (s *Session) readBlocks(ctx context.Context, data *ProfileData, info fileInfo, startRecord int32, total int, base, to time.Time, onProgress ProgressFunc, log *zap.Logger) error {
	sv := data.Spec.Survey
	key := readLimitKey{survey: sv.Code, recordSize: info.RecordSize, channels: len(data.Spec.Channels)}
	limit := perReadLimit(sv, info.Interval)
	if cached, ok := s.readLimits[key]; ok && cached < limit {
		limit = cached
	}

	remaining := total
	nextStart := startRecord
	read := 0

	for remaining > 0 {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}

		chunk := remaining
		if chunk > limit {
			chunk = limit
		}

		block, err := s.readFileBlock(ctx, sv, nextStart, chunk, info.RecordSize, data.Spec.Channels)
		if err != nil {
			return err
		}
		if len(block) == 0 {
			log.Debug("end of data", zap.Int32("at_record", nextStart))
			break
		}
		if len(block) < chunk {
			limit = len(block)
			s.readLimits[key] = limit
			log.Debug("learned per-read limit", zap.Int("limit", limit))
		}

		boundary := false
		for i, rec := range block {
			idx := nextStart + int32(i)
			ts := base.Add(time.Duration(idx-startRecord) * info.Interval)
			if !ts.Before(to) {
				boundary = true
				break
			}
			rec.Index = idx
			rec.Timestamp = ts
			data.Records = append(data.Records, rec)
			read++
		}

		safeProgress(onProgress, read, total)
		if boundary {
			break
		}

		remaining -= len(block)
		nextStart += int32(len(block))
	}
	return nil
}

// perReadLimit is the record count requested per FILE_READ. Fixed by
// convention for the surveys with known record shapes, otherwise one day of
// records at the survey's interval.
func perReadLimit(sv Survey, interval time.Duration) int {
	switch sv.ID {
	case "LS01":
		return 59
	case "LS03":
		return 288
	}
	if interval > 0 {
		return int(math.Ceil(86400 / interval.Seconds()))
	}
	return 48
}

// readFileInfo gathers the survey's shape: interval and channel count from
// registers, record bounds and name from a FILE_INFO access.
func (s *Session) readFileInfo(ctx context.Context, sv Survey) (fileInfo, error) {
	var info fileInfo

	infoRegs := []RegisterDescriptor{
		reg("PROFILE_INTERVAL", "Profile Interval", surveyRegister(sv, fileIntervalReg), TypeLong, UnitSeconds, 4),
		reg("PROFILE_CHANNELS", "Profile Channels Count", surveyRegister(sv, fileChannelsReg), TypeByte, UnitNone, 1),
	}
	items, err := s.readRegisterGroup(ctx, infoRegs)
	if err != nil {
		return info, err
	}
	for _, item := range items {
		if item.err != nil {
			return info, item.err
		}
	}
	secs, _ := items[0].val.Value.(int64)
	info.Interval = time.Duration(secs) * time.Second
	chCount, _ := items[1].val.Value.(uint64)
	// the register holds the index of the last channel
	info.ChannelsCount = int(chCount) + 1

	payload := binary.BigEndian.AppendUint32(nil, surveyRegister(sv, fileAccessReg))
	plain, err := s.Request(ctx, CmdFileAccess, ExtFileInfo, payload)
	if err != nil {
		return info, err
	}

	p, err := newAnswerParser(plain, CmdFileAccess, ExtFileInfo)
	if err != nil {
		return info, err
	}
	_ = p.u32() // register echo
	info.StartRecord = p.i32()
	info.RecordsCount = p.i32()
	info.RecordSize = p.i16()
	info.Type = p.u8()
	info.Name = p.cstring(MaxValueLength)
	if p.err != nil {
		return info, p.err
	}
	return info, nil
}

// readChannelInfo reads the metadata registers of one survey channel.
func (s *Session) readChannelInfo(ctx context.Context, sv Survey, ch int) (ChannelInfo, error) {
	page := func(p uint32) uint32 {
		return surveyRegister(sv, p<<8|uint32(ch)&0xFF)
	}
	regs := []RegisterDescriptor{
		reg("CHANNEL_TYPE", fmt.Sprintf("Channel %d Type", ch), page(chTypePage), TypeByte, UnitNone, 1),
		reg("CHANNEL_UNIT", fmt.Sprintf("Channel %d Unit", ch), page(chUnitPage), TypeByte, UnitNone, 1),
		reg("CHANNEL_SCALING_CODE", fmt.Sprintf("Channel %d Scaling Code", ch), page(chScaleCodePage), TypeByte, UnitNone, 1),
		reg("CHANNEL_SCALING_FACTOR", fmt.Sprintf("Channel %d Scaling Factor", ch), page(chScalePage), TypeFloat, UnitNone, 4),
		reg("CHANNEL_NAME", fmt.Sprintf("Channel %d Name", ch), page(chNamePage), TypeString, UnitNone, MaxValueLength),
	}
	items, err := s.readRegisterGroup(ctx, regs)
	if err != nil {
		return ChannelInfo{}, err
	}
	for _, item := range items {
		if item.err != nil {
			return ChannelInfo{}, item.err
		}
	}

	typeVal, _ := items[0].val.Value.(uint64)
	unitVal, _ := items[1].val.Value.(uint64)
	codeVal, _ := items[2].val.Value.(uint64)
	scaling, _ := items[3].val.Value.(float64)
	name, _ := items[4].val.Value.(string)

	return ChannelInfo{
		Name:        name,
		Type:        DataType(typeVal),
		Unit:        UnitCode(unitVal),
		ScalingCode: byte(codeVal),
		Scaling:     scaling,
	}, nil
}

// searchFile locates the record closest to ts, scanning backward from the
// file's start record.
func (s *Session) searchFile(ctx context.Context, sv Survey, startRecord int32, ts time.Time) (searchResult, error) {
	var res searchResult

	payload := make([]byte, 0, 15)
	payload = binary.BigEndian.AppendUint32(payload, surveyRegister(sv, fileAccessReg))
	payload = binary.BigEndian.AppendUint32(payload, uint32(startRecord))
	payload = appendWireDateTime(payload, ts)
	payload = append(payload, 0) // search backward from start record

	plain, err := s.Request(ctx, CmdFileAccess, ExtFileSearch, payload)
	if err != nil {
		return res, err
	}

	p, err := newAnswerParser(plain, CmdFileAccess, ExtFileSearch)
	if err != nil {
		return res, err
	}
	_ = p.u32() // register echo
	res.StartRecord = p.i32()
	res.Timestamp = p.dateTime()
	res.DirOrResult = p.u8()
	if p.err != nil {
		return res, p.err
	}
	return res, nil
}

// readFileBlock issues one FILE_READ and decodes the returned records. The
// record timestamps and indexes are filled in by the caller.
func (s *Session) readFileBlock(ctx context.Context, sv Survey, startRecord int32, count int, recordSize int16, channels []ChannelInfo) ([]ProfileRecord, error) {
	payload := make([]byte, 0, 14)
	payload = binary.BigEndian.AppendUint32(payload, surveyRegister(sv, fileAccessReg))
	payload = binary.BigEndian.AppendUint32(payload, uint32(startRecord))
	payload = binary.BigEndian.AppendUint16(payload, uint16(int16(count)))
	payload = binary.BigEndian.AppendUint16(payload, 0) // record offset
	payload = binary.BigEndian.AppendUint16(payload, uint16(recordSize))

	plain, err := s.Request(ctx, CmdFileAccess, ExtFileRead, payload)
	if err != nil {
		return nil, err
	}

	p, err := newAnswerParser(plain, CmdFileAccess, ExtFileRead)
	if err != nil {
		return nil, err
	}
	_ = p.u32() // register echo
	_ = p.i32() // start record echo
	returned := int(p.i16())
	_ = p.i16() // record offset
	respRecordSize := p.i16()
	if p.err != nil {
		return nil, p.err
	}
	if returned <= 0 {
		return nil, nil
	}

	extraScale := 1.0
	if sv.ID == "LS03" {
		extraScale = ls03ExtraScale
	}

	records := make([]ProfileRecord, 0, returned)
	for r := 0; r < returned; r++ {
		recStart := p.idx
		rec := ProfileRecord{Values: make([]float64, 0, len(channels))}
		for _, ch := range channels {
			v, status, err := p.channelValue(ch.Type)
			if err != nil {
				return records, err
			}
			if ch.Type == TypeHexShort {
				rec.Status = status
			}
			if ch.Scaling != 0 {
				v *= ch.Scaling * extraScale
			}
			rec.Values = append(rec.Values, v)
		}
		// records are padded to the declared size
		if respRecordSize > 0 {
			p.skipTo(recStart + int(respRecordSize))
		}
		if p.err != nil {
			return records, p.err
		}
		records = append(records, rec)
	}
	return records, nil
}

// appendWireDateTime writes the external D M Y H M S form, two-digit year.
func appendWireDateTime(b []byte, t time.Time) []byte {
	return append(b,
		byte(t.Day()), byte(t.Month()), byte(t.Year()%100),
		byte(t.Hour()), byte(t.Minute()), byte(t.Second()))
}

// answerParser walks a validated response frame after the header echo,
// accumulating the first error it hits so call sites stay linear.
type answerParser struct {
	plain   []byte
	idx     int
	dataEnd int
	err     error
}

// newAnswerParser checks the command and extension echo of a file-access
// style answer. A CAN result carries the meter's error code byte.
func newAnswerParser(plain []byte, cmd Command, ext Extension) (*answerParser, error) {
	if len(plain) < respResultOffset+2+frameTrailerLen {
		return nil, &DecodeError{What: "answer too short"}
	}
	if plain[respResultOffset] == respCAN {
		return nil, &MeterError{Code: ErrorCode(plain[respResultOffset+1])}
	}
	if Command(plain[respResultOffset]) != cmd {
		return nil, &DecodeError{What: "command echo mismatch"}
	}
	if Extension(plain[respResultOffset+1]) != ext {
		return nil, &DecodeError{What: "extension echo mismatch"}
	}
	return &answerParser{
		plain:   plain,
		idx:     respResultOffset + 2,
		dataEnd: len(plain) - frameTrailerLen,
	}, nil
}

func (p *answerParser) need(n int) bool {
	if p.err != nil {
		return false
	}
	if p.idx+n > p.dataEnd {
		p.err = &DecodeError{What: "answer field crosses frame end"}
		return false
	}
	return true
}

func (p *answerParser) u8() byte {
	if !p.need(1) {
		return 0
	}
	v := p.plain[p.idx]
	p.idx++
	return v
}

func (p *answerParser) i16() int16 {
	if !p.need(2) {
		return 0
	}
	v := int16(binary.BigEndian.Uint16(p.plain[p.idx:]))
	p.idx += 2
	return v
}

func (p *answerParser) u16() uint16 {
	if !p.need(2) {
		return 0
	}
	v := binary.BigEndian.Uint16(p.plain[p.idx:])
	p.idx += 2
	return v
}

func (p *answerParser) i32() int32 {
	if !p.need(4) {
		return 0
	}
	v := int32(binary.BigEndian.Uint32(p.plain[p.idx:]))
	p.idx += 4
	return v
}

func (p *answerParser) u32() uint32 {
	if !p.need(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(p.plain[p.idx:])
	p.idx += 4
	return v
}

func (p *answerParser) f32() float64 {
	if !p.need(4) {
		return 0
	}
	v := math.Float32frombits(binary.BigEndian.Uint32(p.plain[p.idx:]))
	p.idx += 4
	return float64(v)
}

func (p *answerParser) f64() float64 {
	if !p.need(8) {
		return 0
	}
	v := math.Float64frombits(binary.BigEndian.Uint64(p.plain[p.idx:]))
	p.idx += 8
	return v
}

func (p *answerParser) i64() int64 {
	if !p.need(8) {
		return 0
	}
	v := int64(binary.BigEndian.Uint64(p.plain[p.idx:]))
	p.idx += 8
	return v
}

// dateTime reads the external D M Y H M S form; an all-zero date yields the
// zero time.
func (p *answerParser) dateTime() time.Time {
	if !p.need(6) {
		return time.Time{}
	}
	b := p.plain[p.idx:]
	p.idx += 6
	if b[0] == 0 && b[1] == 0 && b[2] == 0 {
		return time.Time{}
	}
	return datetimeFromWire(b[:6])
}

func (p *answerParser) cstring(maxLen int) string {
	if p.err != nil {
		return ""
	}
	b, next, err := scanCString(p.plain, p.idx, p.dataEnd, maxLen)
	if err != nil {
		p.err = err
		return ""
	}
	p.idx = next
	return string(b)
}

func (p *answerParser) skipTo(idx int) {
	if p.err != nil {
		return
	}
	if idx > p.dataEnd {
		p.err = &DecodeError{What: "record padding crosses frame end"}
		return
	}
	if idx > p.idx {
		p.idx = idx
	}
}

// channelValue decodes one channel sample as a float64. Status words are
// returned separately so the caller can surface them as flags.
func (p *answerParser) channelValue(t DataType) (float64, uint16, error) {
	switch t {
	case TypeByte, TypeBoolean:
		return float64(p.u8()), 0, p.err
	case TypeShort:
		return float64(p.i16()), 0, p.err
	case TypeHexShort:
		v := p.u16()
		return float64(v), v, p.err
	case TypeLong:
		return float64(p.i32()), 0, p.err
	case TypeHexLong, TypeRegisterHex:
		return float64(p.u32()), 0, p.err
	case TypeLongLong:
		return float64(p.i64()), 0, p.err
	case TypeFloat, TypePowerFactor:
		return p.f32(), 0, p.err
	case TypeFloatEnergy:
		return float64(p.u32()), 0, p.err
	case TypeDouble:
		return p.f64(), 0, p.err
	case TypeDoubleEnergy:
		return float64(p.i64()), 0, p.err
	default:
		return 0, 0, &DecodeError{What: fmt.Sprintf("unsupported channel type %c", t)}
	}
}
