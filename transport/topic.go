package transport

import "strings"

const DefaultTopicPrefix = "c2"

// Topics builds c2link topic names.
// {prefix}/drones/{id}/telemetry|commands|command_ack
// {prefix}/missions/{id}/plan|status
type Topics struct{ Prefix string }

func NewTopics(prefix string) Topics {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{Prefix: strings.TrimSuffix(prefix, "/")}
}

func (t Topics) drone(id, kind string) string   { return t.Prefix + "/drones/" + id + "/" + kind }
func (t Topics) mission(id, kind string) string { return t.Prefix + "/missions/" + id + "/" + kind }

func (t Topics) Telemetry(vehicleID string) string     { return t.drone(vehicleID, "telemetry") }
func (t Topics) Commands(vehicleID string) string      { return t.drone(vehicleID, "commands") }
func (t Topics) CommandAck(vehicleID string) string    { return t.drone(vehicleID, "command_ack") }
func (t Topics) MissionPlan(missionID string) string   { return t.mission(missionID, "plan") }
func (t Topics) MissionStatus(missionID string) string { return t.mission(missionID, "status") }

// TelemetryAll is wildcard filter for telemetry of every vehicle.
func (t Topics) TelemetryAll() string { return t.drone("+", "telemetry") }

// VehicleID extracts vehicle id from drone topic, ok=false for foreign topic.
func (t Topics) VehicleID(topic string) (string, bool) {
	rest := strings.TrimPrefix(topic, t.Prefix+"/drones/")
	if rest == topic {
		return "", false
	}
	i := strings.IndexByte(rest, '/')
	if i <= 0 || strings.IndexByte(rest[i+1:], '/') >= 0 {
		return "", false
	}
	return rest[:i], true
}
