// Package alerts - Client for the sensor rig's WebSocket alert feed.
package alerts

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	// AlertIntrusion is the alert text the relay attaches to intrusion lines.
	AlertIntrusion = "INTRUSION DETECTED"
	// TypeLEDStatus marks LED state broadcasts.
	TypeLEDStatus = "led_status"
	// CommandLEDOff asks the relay to switch the alarm LED off.
	CommandLEDOff = "LED_OFF"

	SensorPIR       = "PIR Sensor"
	SensorVibration = "Vibration Sensor"
	SensorBoth      = "Both Sensors"
	SensorUnknown   = "Unknown"
)

// timestampLayouts are tried in order when parsing Message.Timestamp.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Reading is a single sensor value. The relay forwards raw serial fields, so
// the wire value may be a string, a number or a bool.
type Reading string

// UnmarshalJSON accepts string, number, bool and null values.
func (r *Reading) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return errors.Wrap(err, "decoding sensor reading")
	}

	switch t := v.(type) {
	case nil:
		*r = ""
	case string:
		*r = Reading(strings.TrimSpace(t))
	case float64:
		*r = Reading(strconv.FormatFloat(t, 'f', -1, 64))
	case bool:
		if t {
			*r = "1"
		} else {
			*r = "0"
		}
	default:
		return errors.Errorf("unsupported sensor reading %s", string(b))
	}
	return nil
}

// Active reports whether the reading signals a trigger.
func (r Reading) Active() bool {
	switch strings.ToLower(string(r)) {
	case "", "0", "false", "low", "off", "no":
		return false
	case "1", "true", "high", "on", "yes", "detected":
		return true
	}
	if f, err := strconv.ParseFloat(string(r), 64); err == nil {
		return f != 0
	}
	return false
}

// Message is one JSON payload from the feed: either a sensor line or an LED
// status broadcast.
type Message struct {
	Timestamp string  `json:"timestamp,omitempty"`
	Raw       string  `json:"raw,omitempty"`
	Alert     string  `json:"alert,omitempty"`
	PIR       Reading `json:"pir,omitempty"`
	Vibration Reading `json:"vibration,omitempty"`
	Type      string  `json:"type,omitempty"`
	Status    string  `json:"status,omitempty"`
}

// IsIntrusion reports whether the message carries an intrusion alert.
func (m Message) IsIntrusion() bool {
	return strings.Contains(strings.ToUpper(m.Alert), "INTRUSION")
}

// IsLEDStatus reports whether the message is an LED state broadcast.
func (m Message) IsLEDStatus() bool {
	return m.Type == TypeLEDStatus
}

// Sensor names the sensor(s) that triggered the message.
func (m Message) Sensor() string {
	pir, vib := m.PIR.Active(), m.Vibration.Active()
	switch {
	case pir && vib:
		return SensorBoth
	case pir:
		return SensorPIR
	case vib:
		return SensorVibration
	default:
		return SensorUnknown
	}
}

// Time parses the message timestamp. The second return is false when the
// timestamp is missing or unparseable.
func (m Message) Time() (time.Time, bool) {
	if m.Timestamp == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, m.Timestamp, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseSerialLine builds a message from a raw rig line such as
// "INTRUSION,PIR:1,VIBRATION:0". Lines that are not intrusions only carry Raw.
func ParseSerialLine(line string, now time.Time) Message {
	line = strings.TrimSpace(line)
	msg := Message{
		Timestamp: now.Format("2006-01-02T15:04:05"),
		Raw:       line,
	}

	parts := strings.Split(line, ",")
	if !strings.EqualFold(strings.TrimSpace(parts[0]), "INTRUSION") {
		return msg
	}
	msg.Alert = AlertIntrusion

	for _, p := range parts[1:] {
		k, v, ok := strings.Cut(p, ":")
		if !ok {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(k)) {
		case "pir":
			msg.PIR = Reading(strings.TrimSpace(v))
		case "vibration":
			msg.Vibration = Reading(strings.TrimSpace(v))
		}
	}
	return msg
}

// Command is a control message written back to the relay.
type Command struct {
	Command string `json:"command"`
}
