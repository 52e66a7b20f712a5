package console

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"edmiread/pkg/edmi"
)

func TestPrintRegisterResultsPartial(t *testing.T) {

	assert := assert.New(t)

	desc, err := edmi.ResolveRegister("PHASE_A_VOLTAGE")
	assert.NoError(err)

	results := []edmi.RegisterResult{
		{Name: "PHASE_A_VOLTAGE", Value: &edmi.RegisterValue{Descriptor: desc, Display: "230.00 V"}},
		{Name: "BOGUS", Err: errors.New("edmi: unknown register \"BOGUS\" (known: A, B)")},
	}

	var buf bytes.Buffer
	assert.NoError(PrintRegisterResults(&buf, results))

	out := buf.String()
	assert.Contains(out, "230.00 V")
	assert.Contains(out, "ERROR: edmi: unknown register \"BOGUS\"")
	assert.NotContains(out, "known:", "catalog dump stays out of the table")
}

func TestPrintSurveys(t *testing.T) {

	assert := assert.New(t)

	var buf bytes.Buffer
	assert.NoError(PrintSurveys(&buf, edmi.Surveys()))

	assert.Contains(buf.String(), "LS01")
	assert.Contains(buf.String(), "0x0305")
}

func TestPrintProfile(t *testing.T) {

	assert := assert.New(t)

	sv, err := edmi.ResolveSurvey("LS01")
	assert.NoError(err)

	data := &edmi.ProfileData{
		Spec: edmi.ProfileSpec{
			Survey:   sv,
			Name:     "Load Survey",
			Interval: 15 * time.Minute,
			Channels: []edmi.ChannelInfo{{Name: "kWh Import", Type: edmi.TypeFloat}},
		},
		Records: []edmi.ProfileRecord{
			{
				Timestamp: time.Date(2024, 3, 1, 0, 15, 0, 0, time.Local),
				Values:    []float64{1.25},
				Status:    0x0001,
			},
		},
	}

	var buf bytes.Buffer
	assert.NoError(PrintProfile(&buf, data))

	out := buf.String()
	assert.Contains(out, "kWh Import")
	assert.Contains(out, "2024-03-01 00:15:00")
	assert.Contains(out, "1.25")
	assert.Contains(out, "0x0001")
}

func TestProgressLine(t *testing.T) {

	assert := assert.New(t)

	var buf bytes.Buffer
	p := NewProgress(&buf)
	p.Update(3, 10)
	p.Update(10, 10)
	p.Done()

	assert.True(strings.HasSuffix(buf.String(), "10/10\n"))
	assert.Contains(buf.String(), "\rReading records... 3/10")
}
