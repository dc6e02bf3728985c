package mqtt

import "fmt"

// TopicPrefix is the root of every neolink topic.
const TopicPrefix = "neolink"

// Topic categories below neolink/<camera>/.
const (
	categoryStatus  = "status"
	categoryQuery   = "query"
	categoryControl = "control"
)

// TopicSet is the full set of neolink topics for one camera.
//
// It is derived from the camera name alone and never mutated:
//
//	topics := mqtt.TopicsFor("Garage")
//	topics.SirenControl // "neolink/Garage/control/siren"
type TopicSet struct {
	// =========================================================================
	// Status (neolink -> neolinkd)
	// =========================================================================

	// ConnectionStatus carries "connected" or "disconnected".
	ConnectionStatus string
	// BatteryStatus carries a JSON number or null.
	BatteryStatus string
	// MotionStatus carries "on" or "off".
	MotionStatus       string
	DisconnectedStatus string
	// PreviewStatus carries a base64 image, optionally as a data URI.
	PreviewStatus   string
	PTZPresetStatus string

	// =========================================================================
	// Query (neolinkd -> neolink, empty payload)
	// =========================================================================

	BatteryQuery   string
	PreviewQuery   string
	PTZPresetQuery string

	// =========================================================================
	// Control (neolinkd -> neolink)
	// =========================================================================

	// PTZControl takes "<direction> <speed>", never retained.
	PTZControl             string
	PresetControl          string
	SirenControl           string
	FloodlightControl      string
	FloodlightTasksControl string
	PIRControl             string
	RebootControl          string
	LEDControl             string
	IRControl              string
}

// TopicsFor returns the TopicSet for cameraName. The name must be non-empty;
// validating it is the caller's job.
func TopicsFor(cameraName string) TopicSet {
	base := fmt.Sprintf("%s/%s", TopicPrefix, cameraName)
	status := func(role string) string { return fmt.Sprintf("%s/%s/%s", base, categoryStatus, role) }
	query := func(role string) string { return fmt.Sprintf("%s/%s/%s", base, categoryQuery, role) }
	control := func(role string) string { return fmt.Sprintf("%s/%s/%s", base, categoryControl, role) }

	return TopicSet{
		ConnectionStatus:   fmt.Sprintf("%s/%s", base, categoryStatus),
		BatteryStatus:      status("battery_level"),
		MotionStatus:       status("motion"),
		DisconnectedStatus: status("disconnected"),
		PreviewStatus:      status("preview"),
		PTZPresetStatus:    status("ptz/preset"),

		BatteryQuery:   query("battery"),
		PreviewQuery:   query("preview"),
		PTZPresetQuery: query("ptz/preset"),

		PTZControl:             control("ptz"),
		PresetControl:          control("preset"),
		SirenControl:           control("siren"),
		FloodlightControl:      control("floodlight"),
		FloodlightTasksControl: control("floodlight_tasks"),
		PIRControl:             control("pir"),
		RebootControl:          control("reboot"),
		LEDControl:             control("led"),
		IRControl:              control("ir"),
	}
}

// NamedTopic pairs a role name with its topic.
type NamedTopic struct {
	Role  string
	Topic string
}

// All lists every topic in the set with its role, status topics first.
func (t TopicSet) All() []NamedTopic {
	return []NamedTopic{
		{"connection_status", t.ConnectionStatus},
		{"battery_status", t.BatteryStatus},
		{"motion_status", t.MotionStatus},
		{"disconnected_status", t.DisconnectedStatus},
		{"preview_status", t.PreviewStatus},
		{"ptz_preset_status", t.PTZPresetStatus},
		{"battery_query", t.BatteryQuery},
		{"preview_query", t.PreviewQuery},
		{"ptz_preset_query", t.PTZPresetQuery},
		{"ptz_control", t.PTZControl},
		{"preset_control", t.PresetControl},
		{"siren_control", t.SirenControl},
		{"floodlight_control", t.FloodlightControl},
		{"floodlight_tasks_control", t.FloodlightTasksControl},
		{"pir_control", t.PIRControl},
		{"reboot_control", t.RebootControl},
		{"led_control", t.LEDControl},
		{"ir_control", t.IRControl},
	}
}
