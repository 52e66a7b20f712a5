package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckParity(t *testing.T) {

	assert := assert.New(t)

	p, err := CheckParity("n")
	assert.NoError(err)
	assert.Equal("N", p)

	_, err = CheckParity("x")
	assert.Error(err)
}

func TestCheckSerialPort(t *testing.T) {

	assert := assert.New(t)

	p, err := CheckSerialPort(" /dev/ttyUSB0 ")
	assert.NoError(err)
	assert.Equal("/dev/ttyUSB0", p)

	_, err = CheckSerialPort("   ")
	assert.Error(err)
}

func TestCheckBaudRate(t *testing.T) {

	assert := assert.New(t)

	assert.NoError(CheckBaudRate(9600))
	assert.Error(CheckBaudRate(12345))
}
