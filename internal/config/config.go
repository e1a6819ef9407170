// Package config reads camlat settings from the environment and suite files.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/teslashibe/go-camlat/pkg/gdocs"
	"github.com/teslashibe/go-camlat/pkg/influx"
)

// Defaults used when neither flags nor environment set a value.
const (
	DefaultBackend  = "mock"
	DefaultLogLevel = "info"
	DefaultWebAddr  = ":8080"
)

// Settings are the environment-derived defaults for a run. Command-line
// flags override them.
type Settings struct {
	Backend  string
	Device   string
	LogLevel string
	Influx   influx.Config
	Google   gdocs.Config
	DocID    string
}

// FromEnv reads settings from the environment:
//
//	CAMLAT_BACKEND, CAMLAT_DEVICE, CAMLAT_LOG_LEVEL, CAMLAT_GDOC_ID
//	ROBOT_IP (device fallback for the webrtc backend)
//	INFLUX_HOST, INFLUX_TOKEN, INFLUX_DATABASE
//	GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET
func FromEnv() Settings {
	s := Settings{
		Backend:  Getenv("CAMLAT_BACKEND", DefaultBackend),
		Device:   os.Getenv("CAMLAT_DEVICE"),
		LogLevel: Getenv("CAMLAT_LOG_LEVEL", DefaultLogLevel),
		Influx:   influx.DefaultConfig(),
		Google: gdocs.Config{
			ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
			ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		},
		DocID: os.Getenv("CAMLAT_GDOC_ID"),
	}

	if host := os.Getenv("INFLUX_HOST"); host != "" {
		s.Influx.Host = host
		s.Influx.Enabled = true
	}
	s.Influx.Token = os.Getenv("INFLUX_TOKEN")
	s.Influx.Database = Getenv("INFLUX_DATABASE", s.Influx.Database)

	if s.Device == "" && s.Backend == "webrtc" {
		s.Device = RobotIP("")
	}
	return s
}

// Getenv returns the variable or def when it is unset or blank.
func Getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// RobotIP returns the robot IP from ROBOT_IP env var.
// Falls back to the provided default if not set.
func RobotIP(defaultIP string) string {
	return Getenv("ROBOT_IP", defaultIP)
}

// DeviceFor resolves the device for a backend: an explicit device wins,
// then ROBOT_IP for webrtc.
func DeviceFor(backend, device string) (string, error) {
	if device != "" {
		return device, nil
	}
	switch backend {
	case "webrtc":
		if ip := RobotIP(""); ip != "" {
			return ip, nil
		}
		return "", fmt.Errorf("backend %s needs -device or ROBOT_IP", backend)
	case "uvc":
		return "0", nil
	}
	return "", nil
}
