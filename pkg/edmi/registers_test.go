package edmi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResolveRegisterByIDAndName(t *testing.T) {

	assert := assert.New(t)

	byID, err := ResolveRegister("PHASE_A_VOLTAGE")
	assert.NoError(err)

	byName, err := ResolveRegister("phase a voltage")
	assert.NoError(err)
	assert.Equal(byID, byName, "id and friendly name resolve to the same register")
	assert.Equal(uint32(0xE000), byID.Address)
	assert.Equal(TypeFloat, byID.Type)
}

func TestResolveRegisterUnknown(t *testing.T) {

	assert := assert.New(t)

	_, err := ResolveRegister("BOGUS_REGISTER")
	var ue *UnknownRegisterError
	assert.ErrorAs(err, &ue)
	assert.Equal("BOGUS_REGISTER", ue.Name)
	assert.Equal(len(Catalog()), len(ue.Suggestions), "suggestions carry the whole catalog")
}

func TestDecodeValueFloat(t *testing.T) {

	assert := assert.New(t)

	desc, _ := ResolveRegister("PHASE_A_VOLTAGE")
	rv, err := DecodeValue(desc, []byte{0x43, 0x66, 0x00, 0x00}) // 230.0f
	assert.NoError(err)
	assert.InDelta(230.0, rv.Value.(float64), 1e-6)
	assert.Contains(rv.Display, "V")
}

func TestDecodeValueWrongWidth(t *testing.T) {

	assert := assert.New(t)

	desc, _ := ResolveRegister("PHASE_A_VOLTAGE")
	_, err := DecodeValue(desc, []byte{0x43, 0x66})
	var de *DecodeError
	assert.ErrorAs(err, &de)
}

func TestDecodeValueDateAndTime(t *testing.T) {

	assert := assert.New(t)

	date, _ := ResolveRegister("CURRENT_DATE")
	rv, err := DecodeValue(date, []byte{15, 6, 24})
	assert.NoError(err)
	assert.Equal(time.Date(2024, time.June, 15, 0, 0, 0, 0, time.Local), rv.Value.(time.Time))

	dt, _ := ResolveRegister("DATE_TIME")
	rv, err = DecodeValue(dt, []byte{15, 6, 24, 13, 45, 30})
	assert.NoError(err)
	assert.Equal(time.Date(2024, time.June, 15, 13, 45, 30, 0, time.Local), rv.Value.(time.Time))
}

func TestDecodeValueStringsTrimPadding(t *testing.T) {

	assert := assert.New(t)

	serial, _ := ResolveRegister("METER_SERIAL_NUMBER")
	raw := []byte("A1234567  ")
	raw = raw[:serial.ValueLen]
	rv, err := DecodeValue(serial, raw)
	assert.NoError(err)
	assert.Equal("A1234567", rv.Value.(string))
}

func TestCatalogIsSortedAndComplete(t *testing.T) {

	assert := assert.New(t)

	cat := Catalog()
	assert.NotEmpty(cat)
	for _, d := range cat {
		assert.NotEmpty(d.ID)
		assert.NotZero(d.Address, "register %s has no address", d.ID)

		r, err := ResolveRegister(d.ID)
		assert.NoError(err)
		assert.Equal(d, r)
	}
}
