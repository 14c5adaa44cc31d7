package mqtt

import (
	"encoding/json"
	"testing"
)

func TestSanitizeID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercase passthrough", "bedroom", "bedroom"},
		{"spaces to underscores", "Living Room", "living_room"},
		{"slashes and dots", "attic/north.wing", "attic_north_wing"},
		{"mixed case", "OutDoor", "outdoor"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeID(tt.input); got != tt.expected {
				t.Errorf("SanitizeID(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestStateTopic(t *testing.T) {
	if got := StateTopic("Living Room"); got != "sensor/living_room/state" {
		t.Errorf("StateTopic = %q, want sensor/living_room/state", got)
	}
}

func TestDiscoveryTopic(t *testing.T) {
	cfg := TemperatureSensor("Living Room")
	want := "homeassistant/sensor/thermod/living_room_temperature/config"
	if got := cfg.DiscoveryTopic(); got != want {
		t.Errorf("DiscoveryTopic = %q, want %q", got, want)
	}
}

func TestDiscoveryPayload(t *testing.T) {
	cfg := HumiditySensor("Bedroom")
	raw, err := cfg.DiscoveryPayload("thermod")
	if err != nil {
		t.Fatalf("DiscoveryPayload failed: %v", err)
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}

	checks := map[string]string{
		"name":                "Bedroom Humidity",
		"unique_id":           "thermod_bedroom_humidity",
		"state_topic":         "thermod/sensor/bedroom/state",
		"value_template":      "{{ value_json.humidity }}",
		"unit_of_measurement": "%",
		"device_class":        "humidity",
		"state_class":         "measurement",
		"availability_topic":  "thermod/availability",
	}
	for key, want := range checks {
		got, ok := payload[key].(string)
		if !ok {
			t.Errorf("payload missing field %q", key)
			continue
		}
		if got != want {
			t.Errorf("payload[%q] = %q, want %q", key, got, want)
		}
	}

	if _, ok := payload["device"].(map[string]interface{}); !ok {
		t.Error("payload missing device info block")
	}
}
