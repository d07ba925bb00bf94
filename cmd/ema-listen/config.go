package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/koscakluka/ema-listen/core/audio"
	"github.com/spf13/viper"
)

type config struct {
	APIKey       string
	BaseURL      string
	KeepAlive    time.Duration
	CloseTimeout time.Duration

	Encoding audio.EncodingInfo
	Frame    time.Duration
	Realtime bool

	Model    string
	Keyterms []string

	DatabaseURL string
	TUI         bool
}

// configKey maps a flag name to its viper key, which is also the name of the
// environment variable once upper-cased.
func configKey(flag string) string {
	return strings.ReplaceAll(flag, "-", "_")
}

func loadConfig() (config, error) {
	format, err := audio.ParseEncodingFormat(viper.GetString("encoding"))
	if err != nil {
		return config{}, err
	}

	cfg := config{
		APIKey:       viper.GetString("deepgram_api_key"),
		BaseURL:      viper.GetString("base_url"),
		KeepAlive:    viper.GetDuration("keep_alive"),
		CloseTimeout: viper.GetDuration("close_timeout"),
		Encoding:     audio.EncodingInfo{SampleRate: viper.GetInt("sample_rate"), Format: format},
		Frame:        viper.GetDuration("frame"),
		Realtime:     viper.GetBool("realtime"),
		Model:        viper.GetString("model"),
		Keyterms:     viper.GetStringSlice("keyterm"),
		DatabaseURL:  viper.GetString("database_url"),
		TUI:          viper.GetBool("tui"),
	}

	if cfg.Encoding.FrameSize(cfg.Frame) <= 0 {
		return config{}, fmt.Errorf("frame of %s holds no audio at %d Hz", cfg.Frame, cfg.Encoding.SampleRate)
	}
	if cfg.KeepAlive < 0 || cfg.CloseTimeout < 0 {
		return config{}, fmt.Errorf("keep-alive and close timeout must not be negative")
	}
	return cfg, nil
}
