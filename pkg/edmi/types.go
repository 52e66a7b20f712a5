package edmi

// Control bytes of the EDMI serial protocol. Any of these appearing inside a
// frame body is escaped as DLE followed by the byte plus the corrector.
const (
	stx           = 0x02
	etx           = 0x03
	dle           = 0x10
	xon           = 0x11
	xoff          = 0x13
	idenCorrector = 0x40
)

const eFrameIden = 'E'

// clientSerial identifies this client in every E-frame header.
var clientSerial = [6]byte{0x01, 0x2B, 0x16, 0x68, 0xFF, 0xFF}

// multiReadMarker precedes the address list of an extended register read.
const multiReadMarker uint32 = 0x0000FFF1

// MaxValueLength bounds variable-length register values on the wire.
const MaxValueLength = 25

// Command is the E-frame command byte.
type Command byte

const (
	CmdAttention        Command = 0x1B
	CmdInfo             Command = 'I'
	CmdReadRegister     Command = 'R'
	CmdWriteRegister    Command = 'W'
	CmdReadRegisterExt  Command = 'M'
	CmdWriteRegisterExt Command = 'N'
	CmdInfoExt          Command = 'O'
	CmdReadMultipleExt  Command = 'A'
	CmdWriteMultipleExt Command = 'B'
	CmdLogin            Command = 'L'
	CmdLogout           Command = 'X'
	CmdFileAccess       Command = 'F'
)

// Extension qualifies a CmdFileAccess frame.
type Extension byte

const (
	ExtNone       Extension = 'N'
	ExtFileRead   Extension = 'R'
	ExtFileWrite  Extension = 'W'
	ExtFileInfo   Extension = 'I'
	ExtFileSearch Extension = 'S'
)

const (
	respACK = 0x06
	respCAN = 0x18
)

// Response frames echo the request header; the command (or ACK/CAN) sits at a
// fixed offset, and the last three bytes are CRC hi, CRC lo, ETX.
const (
	respResultOffset = 12
	frameTrailerLen  = 3
)

// DataType is the EDMI register type letter.
type DataType byte

const (
	TypeString       DataType = 'A' // NUL-terminated ASCII
	TypeBoolean      DataType = 'B'
	TypeByte         DataType = 'C'
	TypeDouble       DataType = 'D' // IEEE 754 binary64
	TypeEFAString    DataType = 'E'
	TypeFloat        DataType = 'F' // IEEE 754 binary32
	TypeStringLong   DataType = 'G'
	TypeHexShort     DataType = 'H' // 16-bit flag word
	TypeShort        DataType = 'I'
	TypeLong         DataType = 'L'
	TypeNone         DataType = 'N'
	TypeFloatEnergy  DataType = 'O'
	TypePowerFactor  DataType = 'P'
	TypeTime         DataType = 'Q' // H M S external form
	TypeDate         DataType = 'R' // D M Y external form
	TypeSpecial      DataType = 'S'
	TypeDateTime     DataType = 'T' // D M Y H M S external form
	TypeDoubleEnergy DataType = 'U'
	TypeLongLong     DataType = 'V'
	TypeHexLong      DataType = 'X'
	TypeRegisterHex  DataType = 'Z'
	TypeSerialNumber DataType = 'M'
	TypeErrorString  DataType = 'K'
)

// WireLen is the fixed external width of the type, or -1 when the width is
// variable (NUL-terminated strings) and bounded by the register's ValueLen.
func (t DataType) WireLen() int {
	switch t {
	case TypeByte, TypeBoolean:
		return 1
	case TypeShort, TypeHexShort:
		return 2
	case TypeTime, TypeDate:
		return 3
	case TypeLong, TypeHexLong, TypeRegisterHex, TypeFloat, TypeFloatEnergy, TypePowerFactor:
		return 4
	case TypeDateTime:
		return 6
	case TypeLongLong, TypeDouble, TypeDoubleEnergy:
		return 8
	case TypeErrorString:
		return 16
	default:
		return -1
	}
}

// UnitCode is the EDMI engineering unit letter.
type UnitCode byte

const (
	UnitAmps          UnitCode = 'A'
	UnitLitersPerHour UnitCode = 'B'
	UnitDegrees       UnitCode = 'D'
	UnitM3PerHour     UnitCode = 'G'
	UnitHertz         UnitCode = 'H'
	UnitJoulesPerHour UnitCode = 'I'
	UnitJoules        UnitCode = 'J'
	UnitLiters        UnitCode = 'L'
	UnitMinutes       UnitCode = 'M'
	UnitNone          UnitCode = 'N'
	UnitM3            UnitCode = 'O'
	UnitPercent       UnitCode = 'P'
	UnitPowerFactor   UnitCode = 'Q'
	UnitVars          UnitCode = 'R'
	UnitVA            UnitCode = 'S'
	UnitSeconds       UnitCode = 'T'
	UnitUnknown       UnitCode = 'U'
	UnitVolts         UnitCode = 'V'
	UnitWatts         UnitCode = 'W'
	UnitWattHours     UnitCode = 'X'
	UnitVarHours      UnitCode = 'Y'
	UnitVAHours       UnitCode = 'Z'
)

var unitLabels = map[UnitCode]string{
	UnitAmps:          "A",
	UnitLitersPerHour: "l/h",
	UnitDegrees:       "deg",
	UnitM3PerHour:     "m3/h",
	UnitHertz:         "Hz",
	UnitJoulesPerHour: "J/h",
	UnitJoules:        "J",
	UnitLiters:        "l",
	UnitMinutes:       "min",
	UnitM3:            "m3",
	UnitPercent:       "%",
	UnitVars:          "var",
	UnitVA:            "VA",
	UnitSeconds:       "s",
	UnitVolts:         "V",
	UnitWatts:         "W",
	UnitWattHours:     "Wh",
	UnitVarHours:      "varh",
	UnitVAHours:       "VAh",
}

// Label returns a printable unit suffix, empty for unitless values.
func (u UnitCode) Label() string {
	return unitLabels[u]
}

// ErrorCode is the per-register and per-command error byte returned by the
// meter.
type ErrorCode byte

const (
	CodeNone               ErrorCode = 0x00
	CodeCannotWrite        ErrorCode = 0x01
	CodeUnimplementedOp    ErrorCode = 0x02
	CodeRegisterNotFound   ErrorCode = 0x03
	CodeAccessDenied       ErrorCode = 0x04
	CodeWrongLength        ErrorCode = 0x05
	CodeBadTypeCode        ErrorCode = 0x06
	CodeDataNotReady       ErrorCode = 0x07
	CodeOutOfRange         ErrorCode = 0x08
	CodeNotLoggedIn        ErrorCode = 0x09
	CodeRequestCRC         ErrorCode = 0x0A
	CodeResponseCRC        ErrorCode = 0x0B
	CodeCommandMismatch    ErrorCode = 0x0C
	CodeRegisterMismatch   ErrorCode = 0x0D
	CodeLoginFailed        ErrorCode = 0x0E
	CodeLogoutFailed       ErrorCode = 0x0F
	CodeAttentionFailed    ErrorCode = 0x10
	CodeRespWrongLength    ErrorCode = 0x11
	CodeUnimplementedType  ErrorCode = 0x12
)

var errorCodeNames = map[ErrorCode]string{
	CodeNone:              "none",
	CodeCannotWrite:       "cannot write",
	CodeUnimplementedOp:   "unimplemented operation",
	CodeRegisterNotFound:  "register not found",
	CodeAccessDenied:      "access denied",
	CodeWrongLength:       "request wrong length",
	CodeBadTypeCode:       "bad type code",
	CodeDataNotReady:      "data not ready yet",
	CodeOutOfRange:        "out of range",
	CodeNotLoggedIn:       "not logged in",
	CodeRequestCRC:        "request crc error",
	CodeResponseCRC:       "response crc error",
	CodeCommandMismatch:   "request/response command mismatch",
	CodeRegisterMismatch:  "request/response register mismatch",
	CodeLoginFailed:       "login failed",
	CodeLogoutFailed:      "logout failed",
	CodeAttentionFailed:   "get meter attention failed",
	CodeRespWrongLength:   "response wrong length",
	CodeUnimplementedType: "unimplemented data type",
}

func (c ErrorCode) String() string {
	if name, ok := errorCodeNames[c]; ok {
		return name
	}
	return "unknown error code"
}
