package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "tcp", "wifi":
		return tcpTemplate, nil
	case "serial", "usb":
		return serialTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const tcpTemplate = `metrics_addr = ""

[adapter]
kind = "tcp"
address = "192.168.0.10:35000"
dial_timeout = "5s"

[run]
use_cache = false
delay = "0s"
noise_pattern = 'SEARCHING(\.\.\.)?'
init = ["ATZ", "ATE0", "ATL0", "ATSP0"]

[log]
level = "info"
file = ""
no_color = false
`

const serialTemplate = `metrics_addr = ""

[adapter]
kind = "serial"
address = "/dev/ttyUSB0"
baud_rate = 38400

[run]
use_cache = false
delay = "100ms"
noise_pattern = 'SEARCHING(\.\.\.)?'
init = ["ATZ", "ATE0", "ATL0", "ATSP0"]

[log]
level = "info"
file = ""
no_color = false
`
