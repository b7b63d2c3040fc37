package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/harrylevesque/invitedeliver/internal/utils"
)

// Duration reads "150ms"-style values from config.json and the environment.
type Duration time.Duration

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds settings for the helper page server and the CLI.
// TODO(config-hot-reload): Re-read config.json on SIGHUP for LogLevel and FrameInterval.
type Config struct {
	Addr          string   `json:"addr" env:"INVITE_ADDR"`
	CertDir       string   `json:"certDir" env:"INVITE_CERT_DIR"`
	ACMEHosts     []string `json:"acmeHosts" env:"INVITE_ACME_HOSTS" envSeparator:","`
	ACMECache     string   `json:"acmeCache" env:"INVITE_ACME_CACHE"`
	LogFile       string   `json:"logFile" env:"INVITE_LOG_FILE"`
	LogLevel      string   `json:"logLevel" env:"INVITE_LOG_LEVEL"`
	FrameInterval Duration `json:"frameInterval" env:"INVITE_FRAME_INTERVAL"`
	MaxPhotoBytes int64    `json:"maxPhotoBytes" env:"INVITE_MAX_PHOTO_BYTES"`
	Navigator     string   `json:"navigator" env:"INVITE_NAVIGATOR"`
	ChromeURL     string   `json:"chromeURL" env:"INVITE_CHROME_URL"`
	CameraCommand string   `json:"cameraCommand" env:"INVITE_CAMERA_CMD"`
}

func DefaultConfig() Config {
	return Config{
		Addr:          ":8080",
		CertDir:       utils.GetCertDir(),
		ACMECache:     "acme-cache",
		LogLevel:      "info",
		FrameInterval: Duration(150 * time.Millisecond),
		MaxPhotoBytes: 12 << 20,
		Navigator:     "system",
	}
}

// ReadConfig applies, in order: defaults, the JSON file at path (a missing
// file is fine), then INVITE_* environment variables.
func ReadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		f, err := os.Open(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("open config: %w", err)
		default:
			defer f.Close()
			// Fields absent from the file keep their defaults.
			if err := json.NewDecoder(f).Decode(&cfg); err != nil {
				return Config{}, fmt.Errorf("decode %s: %w", path, err)
			}
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects unusable values and clamps the rest.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return errors.New("config: addr is required")
	}
	if c.FrameInterval < 0 {
		c.FrameInterval = 0
	}
	if c.FrameInterval > Duration(5*time.Second) {
		c.FrameInterval = Duration(5 * time.Second)
	}
	if c.MaxPhotoBytes <= 0 {
		c.MaxPhotoBytes = 12 << 20
	}
	switch strings.ToLower(c.Navigator) {
	case "", "system", "chromedp", "chrome", "print":
	default:
		return fmt.Errorf("config: unknown navigator %q", c.Navigator)
	}
	hosts := c.ACMEHosts[:0]
	for _, h := range c.ACMEHosts {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	c.ACMEHosts = hosts
	return nil
}
