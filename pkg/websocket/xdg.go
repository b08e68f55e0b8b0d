package websocket

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/tzrikka/xdg"
)

const (
	configDirName  = "wsengine"
	configFileName = "config"
)

// LoadDefaultsFromXDG returns a [Config] whose defaults are overridden by
// the user's configuration file under the XDG config home directory
// ("~/.config/wsengine/config" on most systems). The file is created empty
// if it doesn't exist yet, so users can discover where to put overrides.
//
// The format is one "key = value" pair per line; blank lines and lines
// starting with "#" are skipped. Recognized keys mirror the Config fields:
// user_agent, max_message_size, max_header_size, open_handshake_timeout_ms,
// close_handshake_timeout_ms, pong_timeout_ms, drop_on_protocol_error,
// silent_close, allow_extensions, allow_hixie76. Unrecognized keys are an
// error, to catch typos early.
func LoadDefaultsFromXDG() (Config, error) {
	path, err := xdg.CreateFile(xdg.ConfigHome, configDirName, configFileName)
	if err != nil {
		return Config{}, fmt.Errorf("failed to create config file: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer f.Close()

	cfg := DefaultConfig()
	scanner := bufio.NewScanner(f)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return Config{}, fmt.Errorf("%s:%d: expected \"key = value\", got %q", path, lineno, line)
		}
		if err := applyConfigKey(&cfg, strings.TrimSpace(key), strings.TrimSpace(value)); err != nil {
			return Config{}, fmt.Errorf("%s:%d: %w", path, lineno, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return cfg, nil
}

func applyConfigKey(cfg *Config, key, value string) error {
	intField := func(dst *int) error {
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("key %q needs a non-negative integer, got %q", key, value)
		}
		*dst = n
		return nil
	}
	boolField := func(dst *bool) error {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("key %q needs a boolean, got %q", key, value)
		}
		*dst = b
		return nil
	}

	switch key {
	case "user_agent":
		cfg.UserAgent = value
		return nil
	case "max_message_size":
		return intField(&cfg.MaxMessageSize)
	case "max_header_size":
		return intField(&cfg.MaxHeaderSize)
	case "open_handshake_timeout_ms":
		return intField(&cfg.OpenHandshakeTimeoutMS)
	case "close_handshake_timeout_ms":
		return intField(&cfg.CloseHandshakeTimeoutMS)
	case "pong_timeout_ms":
		return intField(&cfg.PongTimeoutMS)
	case "drop_on_protocol_error":
		return boolField(&cfg.DropOnProtocolError)
	case "silent_close":
		return boolField(&cfg.SilentClose)
	case "allow_extensions":
		return boolField(&cfg.AllowExtensions)
	case "allow_hixie76":
		return boolField(&cfg.AllowHixie76)
	default:
		return fmt.Errorf("unrecognized config key %q", key)
	}
}
