package mqtt

import "encoding/json"

// discoveryDomain is the node segment under the Home Assistant
// discovery prefix.
const discoveryDomain = "thermod"

// AvailabilityTopic is where the daemon announces online/offline,
// relative to the topic prefix.
const AvailabilityTopic = "availability"

// SensorConfig describes one Home Assistant sensor derived from a
// reading location.
type SensorConfig struct {
	Location    string // human-readable, e.g. "Living Room"
	Kind        string // "temperature" or "humidity"
	Unit        string // "°C" or "%"
	DeviceClass string
}

// TemperatureSensor builds the discovery config for a location's
// temperature channel.
func TemperatureSensor(location string) SensorConfig {
	return SensorConfig{
		Location:    location,
		Kind:        "temperature",
		Unit:        "°C",
		DeviceClass: "temperature",
	}
}

// HumiditySensor builds the discovery config for a location's humidity
// channel.
func HumiditySensor(location string) SensorConfig {
	return SensorConfig{
		Location:    location,
		Kind:        "humidity",
		Unit:        "%",
		DeviceClass: "humidity",
	}
}

// ObjectID returns the sanitized sensor identifier used in topics and
// unique IDs.
func (c SensorConfig) ObjectID() string {
	return SanitizeID(c.Location) + "_" + c.Kind
}

// DiscoveryTopic returns the retained discovery topic:
// homeassistant/sensor/thermod/{object_id}/config.
func (c SensorConfig) DiscoveryTopic() string {
	return "homeassistant/sensor/" + discoveryDomain + "/" + c.ObjectID() + "/config"
}

// StateTopic returns the reading state topic relative to the prefix.
func StateTopic(location string) string {
	return "sensor/" + SanitizeID(location) + "/state"
}

// DiscoveryPayload renders the Home Assistant discovery config. The
// state topic carries the whole reading as JSON, so each channel picks
// its field with a value template.
func (c SensorConfig) DiscoveryPayload(prefix string) ([]byte, error) {
	cfg := map[string]interface{}{
		"name":                  c.Location + " " + titleKind(c.Kind),
		"unique_id":             discoveryDomain + "_" + c.ObjectID(),
		"state_topic":           prefix + "/" + StateTopic(c.Location),
		"value_template":        "{{ value_json." + c.Kind + " }}",
		"unit_of_measurement":   c.Unit,
		"device_class":          c.DeviceClass,
		"state_class":           "measurement",
		"availability_topic":    prefix + "/" + AvailabilityTopic,
		"payload_available":     "online",
		"payload_not_available": "offline",
		"device": map[string]interface{}{
			"identifiers":  []string{discoveryDomain},
			"name":         "Thermod",
			"model":        "Temperature Collector",
			"manufacturer": "Thermod",
		},
	}
	return json.Marshal(cfg)
}

func titleKind(kind string) string {
	switch kind {
	case "temperature":
		return "Temperature"
	case "humidity":
		return "Humidity"
	default:
		return kind
	}
}

// SanitizeID creates a safe ID for MQTT topics.
func SanitizeID(name string) string {
	b := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'A' && c <= 'Z':
			b[i] = c + ('a' - 'A')
		case c == ' ' || c == '/' || c == '.':
			b[i] = '_'
		default:
			b[i] = c
		}
	}
	return string(b)
}
