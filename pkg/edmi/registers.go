package edmi

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// RegisterDescriptor describes one addressable meter value. Descriptors are
// immutable; the catalog is fixed at process start.
type RegisterDescriptor struct {
	ID       string // canonical id, stable symbolic key
	Name     string // friendly display name
	Address  uint32
	Type     DataType
	Unit     UnitCode
	ValueLen int // wire width; upper bound for variable-length types
}

// RegisterValue is the decoded result of reading one register.
type RegisterValue struct {
	Descriptor RegisterDescriptor
	Value      any    // float64, int64, uint64, string, time.Time or bool
	Display    string // scaled, unit-annotated form for rendering
}

func reg(id, name string, addr uint32, t DataType, unit UnitCode, valueLen int) RegisterDescriptor {
	return RegisterDescriptor{ID: id, Name: name, Address: addr, Type: t, Unit: unit, ValueLen: valueLen}
}

// registerCatalog lists every register this driver knows how to read,
// in display order.
var registerCatalog = []RegisterDescriptor{
	// Multipliers / Divisors
	reg("CURRENT_MULTIPLIER", "Current Multiplier", 0xF700, TypeFloat, UnitNone, 4),
	reg("VOLTAGE_MULTIPLIER", "Voltage Multiplier", 0xF701, TypeFloat, UnitNone, 4),
	reg("CURRENT_DIVISOR", "Current Divisor", 0xF702, TypeFloat, UnitNone, 4),
	reg("VOLTAGE_DIVISOR", "Voltage Divisor", 0xF703, TypeFloat, UnitNone, 4),

	// Voltages
	reg("PHASE_A_VOLTAGE", "Phase A Voltage", 0xE000, TypeFloat, UnitVolts, 4),
	reg("PHASE_B_VOLTAGE", "Phase B Voltage", 0xE001, TypeFloat, UnitVolts, 4),
	reg("PHASE_C_VOLTAGE", "Phase C Voltage", 0xE002, TypeFloat, UnitVolts, 4),

	// Currents
	reg("PHASE_A_CURRENT", "Phase A Current", 0xE010, TypeFloat, UnitAmps, 4),
	reg("PHASE_B_CURRENT", "Phase B Current", 0xE011, TypeFloat, UnitAmps, 4),
	reg("PHASE_C_CURRENT", "Phase C Current", 0xE012, TypeFloat, UnitAmps, 4),

	// Angles
	reg("PHASE_A_ANGLE", "Phase A Angle", 0xE020, TypeFloat, UnitDegrees, 4),
	reg("PHASE_B_ANGLE", "Phase B Angle", 0xE021, TypeFloat, UnitDegrees, 4),
	reg("PHASE_C_ANGLE", "Phase C Angle", 0xE022, TypeFloat, UnitDegrees, 4),
	reg("VTA_VTB_ANGLE", "VTa VTb Angle", 0xE023, TypeFloat, UnitDegrees, 4),
	reg("VTA_VTC_ANGLE", "VTa VTc Angle", 0xE024, TypeFloat, UnitDegrees, 4),

	// Watts
	reg("PHASE_A_WATTS", "Phase A Watts", 0xE030, TypeFloat, UnitWatts, 4),
	reg("PHASE_B_WATTS", "Phase B Watts", 0xE031, TypeFloat, UnitWatts, 4),
	reg("PHASE_C_WATTS", "Phase C Watts", 0xE032, TypeFloat, UnitWatts, 4),

	// Vars
	reg("PHASE_A_VARS", "Phase A Vars", 0xE040, TypeFloat, UnitVars, 4),
	reg("PHASE_B_VARS", "Phase B Vars", 0xE041, TypeFloat, UnitVars, 4),
	reg("PHASE_C_VARS", "Phase C Vars", 0xE042, TypeFloat, UnitVars, 4),

	// VA
	reg("PHASE_A_VA", "Phase A VA", 0xE050, TypeFloat, UnitVA, 4),
	reg("PHASE_B_VA", "Phase B VA", 0xE051, TypeFloat, UnitVA, 4),
	reg("PHASE_C_VA", "Phase C VA", 0xE052, TypeFloat, UnitVA, 4),

	// Power / Frequency
	reg("POWER_FACTOR", "Power Factor", 0xE026, TypeFloat, UnitPowerFactor, 4),
	reg("FREQUENCY", "Frequency", 0xE060, TypeFloat, UnitHertz, 4),

	// Energy import
	reg("RATE_1_IMPORT_KWH", "Rate 1 Import kWh", 0x0060, TypeDouble, UnitWattHours, 8),
	reg("RATE_2_IMPORT_KWH", "Rate 2 Import kWh", 0x0061, TypeDouble, UnitWattHours, 8),
	reg("RATE_3_IMPORT_KWH", "Rate 3 Import kWh", 0x0062, TypeDouble, UnitWattHours, 8),
	reg("TOTAL_IMPORT_KWH", "Total Import kWh", 0x0069, TypeDouble, UnitWattHours, 8),
	reg("TOTAL_IMPORT_KVAR", "Total Import kVar", 0x0269, TypeDouble, UnitVarHours, 8),

	// Energy export
	reg("RATE_1_EXPORT_KWH", "Rate 1 Export kWh", 0x0160, TypeDouble, UnitWattHours, 8),
	reg("RATE_2_EXPORT_KWH", "Rate 2 Export kWh", 0x0161, TypeDouble, UnitWattHours, 8),
	reg("RATE_3_EXPORT_KWH", "Rate 3 Export kWh", 0x0162, TypeDouble, UnitWattHours, 8),
	reg("TOTAL_EXPORT_KWH", "Total Export kWh", 0x0169, TypeDouble, UnitWattHours, 8),
	reg("TOTAL_EXPORT_KVAR", "Total Export kVar", 0x0369, TypeDouble, UnitVarHours, 8),

	// THD
	reg("THD_VOLTAGE_A", "THD Voltage A", 0x9300, TypeFloat, UnitPercent, 4),
	reg("THD_VOLTAGE_B", "THD Voltage B", 0x9400, TypeFloat, UnitPercent, 4),
	reg("THD_VOLTAGE_C", "THD Voltage C", 0x9500, TypeFloat, UnitPercent, 4),
	reg("THD_CURRENT_A", "THD Current A", 0x9000, TypeFloat, UnitPercent, 4),
	reg("THD_CURRENT_B", "THD Current B", 0x9100, TypeFloat, UnitPercent, 4),
	reg("THD_CURRENT_C", "THD Current C", 0x9200, TypeFloat, UnitPercent, 4),

	// Totals
	reg("P_TOTAL", "P Total", 0xE033, TypeFloat, UnitWatts, 4),
	reg("Q_TOTAL", "Q Total", 0xE043, TypeFloat, UnitVars, 4),
	reg("S_TOTAL", "S Total", 0xE053, TypeFloat, UnitVA, 4),

	// Ratios
	reg("CT_RATIO_PRIMARY", "CT Ratio Primary", 0xF700, TypeFloat, UnitNone, 4),
	reg("CT_RATIO_SECONDARY", "CT Ratio Secondary", 0xF702, TypeFloat, UnitNone, 4),
	reg("VT_RATIO_PRIMARY", "VT Ratio Primary", 0xF701, TypeFloat, UnitNone, 4),
	reg("VT_RATIO_SECONDARY", "VT Ratio Secondary", 0xF703, TypeFloat, UnitNone, 4),

	// Demand
	reg("MAX_DEMAND_KWH_IMPORT", "Max Demand kWh Import", 0x1069, TypeDouble, UnitWattHours, 8),
	reg("MAX_DEMAND_KWH_EXPORT", "Max Demand kWh Export", 0x1169, TypeDouble, UnitWattHours, 8),

	// Meter information / diagnostics
	reg("METER_SERIAL_NUMBER", "Meter Serial Number", 0xF002, TypeSerialNumber, UnitNone, 10),
	reg("ERROR_CODE", "Error Code", 0xF016, TypeErrorString, UnitNone, 16),
	reg("CURRENT_DATE", "Current Date", 0xF010, TypeDate, UnitNone, 3),
	reg("CURRENT_TIME", "Current Time", 0xF011, TypeTime, UnitNone, 3),
	reg("DATE_TIME", "Date Time", 0xF03D, TypeDateTime, UnitNone, 6),
}

var (
	registersByID   = map[string]RegisterDescriptor{}
	registersByName = map[string]RegisterDescriptor{}
	catalogNames    []string
)

func init() {
	for _, d := range registerCatalog {
		registersByID[d.ID] = d
		registersByName[strings.ToLower(d.Name)] = d
		catalogNames = append(catalogNames, fmt.Sprintf("%s (%s)", d.ID, d.Name))
	}
	sort.Strings(catalogNames)
}

// Catalog returns every known register descriptor in display order.
func Catalog() []RegisterDescriptor {
	out := make([]RegisterDescriptor, len(registerCatalog))
	copy(out, registerCatalog)
	return out
}

// ResolveRegister maps a user-supplied name to a descriptor: exact match on
// the canonical id first, then case-insensitive match on the friendly name.
func ResolveRegister(name string) (RegisterDescriptor, error) {
	if d, ok := registersByID[name]; ok {
		return d, nil
	}
	if d, ok := registersByName[strings.ToLower(strings.TrimSpace(name))]; ok {
		return d, nil
	}
	suggestions := make([]string, len(catalogNames))
	copy(suggestions, catalogNames)
	return RegisterDescriptor{}, &UnknownRegisterError{Name: name, Suggestions: suggestions}
}

// DecodeValue interprets raw response bytes per the descriptor's data type.
// Fixed-width types must match their declared width exactly; a mismatch is a
// protocol contract violation, not a user error.
func DecodeValue(desc RegisterDescriptor, raw []byte) (RegisterValue, error) {
	if w := desc.Type.WireLen(); w >= 0 && len(raw) != w {
		return RegisterValue{}, &DecodeError{
			What: fmt.Sprintf("register %s: got %d bytes, type %c needs %d", desc.ID, len(raw), desc.Type, w),
		}
	}

	rv := RegisterValue{Descriptor: desc}
	unit := desc.Unit.Label()

	switch desc.Type {
	case TypeFloat, TypePowerFactor:
		v := float64(math.Float32frombits(binary.BigEndian.Uint32(raw)))
		rv.Value = v
		rv.Display = formatNumber(v, unit)
	case TypeDouble:
		v := math.Float64frombits(binary.BigEndian.Uint64(raw))
		rv.Value = v
		rv.Display = formatNumber(v, unit)
	case TypeFloatEnergy:
		v := float64(binary.BigEndian.Uint32(raw))
		rv.Value = v
		rv.Display = formatNumber(v, unit)
	case TypeDoubleEnergy:
		v := float64(binary.BigEndian.Uint64(raw))
		rv.Value = v
		rv.Display = formatNumber(v, unit)
	case TypeShort:
		v := int64(int16(binary.BigEndian.Uint16(raw)))
		rv.Value = v
		rv.Display = formatInt(v, unit)
	case TypeLong:
		v := int64(int32(binary.BigEndian.Uint32(raw)))
		rv.Value = v
		rv.Display = formatInt(v, unit)
	case TypeLongLong:
		v := int64(binary.BigEndian.Uint64(raw))
		rv.Value = v
		rv.Display = formatInt(v, unit)
	case TypeHexShort:
		v := uint64(binary.BigEndian.Uint16(raw))
		rv.Value = v
		rv.Display = fmt.Sprintf("0x%04X", v)
	case TypeHexLong, TypeRegisterHex:
		v := uint64(binary.BigEndian.Uint32(raw))
		rv.Value = v
		rv.Display = fmt.Sprintf("0x%08X", v)
	case TypeByte:
		v := uint64(raw[0])
		rv.Value = v
		rv.Display = formatInt(int64(v), unit)
	case TypeBoolean:
		v := raw[0] != 0
		rv.Value = v
		rv.Display = fmt.Sprintf("%v", v)
	case TypeDate:
		t := dateFromWire(raw[0], raw[1], raw[2])
		rv.Value = t
		rv.Display = t.Format("2006-01-02")
	case TypeTime:
		t := time.Date(0, 1, 1, int(raw[0]), int(raw[1]), int(raw[2]), 0, time.Local)
		rv.Value = t
		rv.Display = t.Format("15:04:05")
	case TypeDateTime:
		t := datetimeFromWire(raw)
		rv.Value = t
		rv.Display = t.Format("2006-01-02 15:04:05")
	case TypeSerialNumber:
		s := trimPadding(raw)
		rv.Value = s
		rv.Display = s
	case TypeString, TypeStringLong, TypeEFAString, TypeErrorString:
		s := trimPadding(raw)
		rv.Value = s
		rv.Display = s
	default:
		return RegisterValue{}, &DecodeError{
			What: fmt.Sprintf("register %s: unimplemented data type %c", desc.ID, desc.Type),
		}
	}
	return rv, nil
}

// dateFromWire converts the external D M Y form. Two-digit years count from
// 2000.
func dateFromWire(day, month, year byte) time.Time {
	y := int(year)
	if y < 100 {
		y += 2000
	}
	return time.Date(y, time.Month(month), int(day), 0, 0, 0, 0, time.Local)
}

func datetimeFromWire(raw []byte) time.Time {
	d := dateFromWire(raw[0], raw[1], raw[2])
	return time.Date(d.Year(), d.Month(), d.Day(), int(raw[3]), int(raw[4]), int(raw[5]), 0, time.Local)
}

func trimPadding(raw []byte) string {
	s := string(raw)
	if i := strings.IndexByte(s, 0x00); i >= 0 {
		s = s[:i]
	}
	return strings.TrimRight(s, " \x00")
}

func formatNumber(v float64, unit string) string {
	if unit == "" {
		return fmt.Sprintf("%.3f", v)
	}
	return fmt.Sprintf("%.3f %s", v, unit)
}

func formatInt(v int64, unit string) string {
	if unit == "" {
		return fmt.Sprintf("%d", v)
	}
	return fmt.Sprintf("%d %s", v, unit)
}
