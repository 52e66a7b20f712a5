package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseLocalTime(t *testing.T) {

	assert := assert.New(t)

	got, err := ParseLocalTime("2024-03-01 13:45:30")
	assert.NoError(err)
	assert.Equal(time.Date(2024, 3, 1, 13, 45, 30, 0, time.Local), got)

	got, err = ParseLocalTime("2024-03-01T13:45")
	assert.NoError(err)
	assert.Equal(time.Date(2024, 3, 1, 13, 45, 0, 0, time.Local), got)

	got, err = ParseLocalTime(" 2024-03-01 ")
	assert.NoError(err)
	assert.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.Local), got)

	_, err = ParseLocalTime("yesterday")
	assert.Error(err)
}
