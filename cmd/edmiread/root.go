package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"edmiread/internal/config"
	"edmiread/pkg/edmi"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func initConfig() (*config.Config, error) {

	setConfigDefaults()

	viper.SetEnvPrefix("edmiread")
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace", "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.WarnLevel
	}

	port, err := config.CheckSerialPort(cfg.Serial.Port)
	if err != nil {
		return nil, err
	}
	cfg.Serial.Port = port

	if err := config.CheckBaudRate(cfg.Serial.BaudRate); err != nil {
		return nil, err
	}
	if err := config.CheckDataBits(cfg.Serial.DataBits); err != nil {
		return nil, err
	}
	if err := config.CheckStopBits(cfg.Serial.StopBits); err != nil {
		return nil, err
	}

	parity, err := config.CheckParity(cfg.Serial.Parity)
	if err != nil {
		return nil, err
	}
	cfg.Serial.Parity = parity

	return &cfg, nil
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("serial.port", "")
	viper.SetDefault("serial.baud_rate", 9600)
	viper.SetDefault("serial.data_bits", 8)
	viper.SetDefault("serial.stop_bits", 1)
	viper.SetDefault("serial.parity", "N")
	viper.SetDefault("serial.timeout_millis", 3000)
	viper.SetDefault("meter.username", "EDMI")
	viper.SetDefault("meter.password", "IMDEIMDE")
	viper.SetDefault("meter.serial_number", 1)
}

func buildLogger(cfg *config.Config) *zap.Logger {
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	return zap.Must(zapCfg.Build())
}

// openSession dials the serial port and authenticates. The caller owns the
// returned session and must Close it.
func openSession(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*edmi.Session, error) {

	timeout := time.Duration(cfg.Serial.TimeoutMillis) * time.Millisecond

	transport, err := edmi.OpenSerial(edmi.SerialConfig{
		Address:     cfg.Serial.Port,
		BaudRate:    int(cfg.Serial.BaudRate),
		DataBits:    int(cfg.Serial.DataBits),
		StopBits:    int(cfg.Serial.StopBits),
		Parity:      cfg.Serial.Parity,
		ReadTimeout: timeout,
	})
	if err != nil {
		return nil, err
	}

	session := edmi.NewSession(transport, timeout, logger)
	err = session.Login(ctx, edmi.Credentials{
		Username:     cfg.Meter.Username,
		Password:     cfg.Meter.Password,
		SerialNumber: cfg.Meter.SerialNumber,
	})
	if err != nil {
		session.Close()
		return nil, err
	}
	return session, nil
}
