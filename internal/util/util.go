package util

import (
	"edmiread/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Serial: config.SerialConfig{
			Port:          "/dev/ttyUSB0",
			BaudRate:      9600,
			DataBits:      8,
			StopBits:      1,
			Parity:        "N",
			TimeoutMillis: 3000,
		},
		Meter: config.MeterConfig{
			Username:     "EDMI",
			Password:     "IMDEIMDE",
			SerialNumber: 1,
		},
	}
}
