package mqtt

import (
	"strings"
	"testing"
)

func TestTopicsFor(t *testing.T) {
	topics := TopicsFor("Garage")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"ConnectionStatus", topics.ConnectionStatus, "neolink/Garage/status"},
		{"BatteryStatus", topics.BatteryStatus, "neolink/Garage/status/battery_level"},
		{"MotionStatus", topics.MotionStatus, "neolink/Garage/status/motion"},
		{"DisconnectedStatus", topics.DisconnectedStatus, "neolink/Garage/status/disconnected"},
		{"PreviewStatus", topics.PreviewStatus, "neolink/Garage/status/preview"},
		{"PTZPresetStatus", topics.PTZPresetStatus, "neolink/Garage/status/ptz/preset"},
		{"BatteryQuery", topics.BatteryQuery, "neolink/Garage/query/battery"},
		{"PreviewQuery", topics.PreviewQuery, "neolink/Garage/query/preview"},
		{"PTZPresetQuery", topics.PTZPresetQuery, "neolink/Garage/query/ptz/preset"},
		{"PTZControl", topics.PTZControl, "neolink/Garage/control/ptz"},
		{"PresetControl", topics.PresetControl, "neolink/Garage/control/preset"},
		{"SirenControl", topics.SirenControl, "neolink/Garage/control/siren"},
		{"FloodlightControl", topics.FloodlightControl, "neolink/Garage/control/floodlight"},
		{"FloodlightTasksControl", topics.FloodlightTasksControl, "neolink/Garage/control/floodlight_tasks"},
		{"PIRControl", topics.PIRControl, "neolink/Garage/control/pir"},
		{"RebootControl", topics.RebootControl, "neolink/Garage/control/reboot"},
		{"LEDControl", topics.LEDControl, "neolink/Garage/control/led"},
		{"IRControl", topics.IRControl, "neolink/Garage/control/ir"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestTopicsFor_Deterministic(t *testing.T) {
	if TopicsFor("FrontDoor") != TopicsFor("FrontDoor") {
		t.Error("TopicsFor() returned different sets for the same name")
	}
}

func TestTopicsFor_InjectiveAcrossCameras(t *testing.T) {
	names := []string{"Garage", "garage", "FrontDoor", "Front", "Door", "Garage2", "a b"}

	seen := make(map[string]string)
	for _, name := range names {
		for _, nt := range TopicsFor(name).All() {
			if other, dup := seen[nt.Topic]; dup {
				t.Errorf("topic %q produced by both %q and %q", nt.Topic, other, name)
			}
			seen[nt.Topic] = name
		}
	}
}

func TestTopicSet_AllUnique(t *testing.T) {
	all := TopicsFor("Garage").All()
	if len(all) != 18 {
		t.Fatalf("len(All()) = %d, want 18", len(all))
	}

	seen := make(map[string]bool, len(all))
	for _, nt := range all {
		if seen[nt.Topic] {
			t.Errorf("duplicate topic %q", nt.Topic)
		}
		seen[nt.Topic] = true
		if !strings.HasPrefix(nt.Topic, "neolink/Garage/") && nt.Topic != "neolink/Garage/status" {
			t.Errorf("topic %q outside camera namespace", nt.Topic)
		}
	}
}
