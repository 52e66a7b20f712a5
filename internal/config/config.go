package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel zapcore.Level
	Serial   SerialConfig `mapstructure:"serial"`
	Meter    MeterConfig  `mapstructure:"meter"`
}

type SerialConfig struct {
	Port          string
	BaudRate      uint   `mapstructure:"baud_rate"`
	DataBits      uint   `mapstructure:"data_bits"`
	StopBits      uint   `mapstructure:"stop_bits"`
	Parity        string
	TimeoutMillis uint32 `mapstructure:"timeout_millis"`
}

type MeterConfig struct {
	Username     string
	Password     string
	SerialNumber uint32 `mapstructure:"serial_number"`
}

var baudRates = []uint{300, 600, 1200, 2400, 4800, 9600, 19200, 38400, 57600, 115200}

func CheckSerialPort(port string) (string, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		return "", errors.New("serial port is required (e.g. /dev/ttyUSB0 or COM3)")
	}
	return port, nil
}

func CheckBaudRate(rate uint) error {
	for _, r := range baudRates {
		if r == rate {
			return nil
		}
	}
	return fmt.Errorf("unsupported baud rate %d", rate)
}

func CheckParity(parity string) (string, error) {
	upper := strings.ToUpper(strings.TrimSpace(parity))
	parityRegexp := regexp.MustCompile("^[NEO]$")
	matches := parityRegexp.FindAllStringSubmatch(upper, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid parity. must be one of N, E, O")
	}
	return upper, nil
}

func CheckDataBits(bits uint) error {
	if bits != 7 && bits != 8 {
		return fmt.Errorf("invalid data bits %d. must be 7 or 8", bits)
	}
	return nil
}

func CheckStopBits(bits uint) error {
	if bits != 1 && bits != 2 {
		return fmt.Errorf("invalid stop bits %d. must be 1 or 2", bits)
	}
	return nil
}
