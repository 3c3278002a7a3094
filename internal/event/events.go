package event

// Event names published by the watchdog services. The SSE hub forwards
// all of them to dashboard clients.
const (
	EventSnapshotRecorded = "snapshot.recorded"
	EventTrafficAlert     = "traffic.alert"
	EventTrafficExceeded  = "traffic.exceeded"
	EventRebuildCompleted = "rebuild.completed"
	EventDNSSynced        = "dns.synced"
)

// All returns every domain event name. Subscribers that mirror the
// whole stream, like the SSE hub, register against this list.
func All() []string {
	return []string{
		EventSnapshotRecorded,
		EventTrafficAlert,
		EventTrafficExceeded,
		EventRebuildCompleted,
		EventDNSSynced,
	}
}

// SnapshotRecordedPayload announces a new hourly bucket in the series.
type SnapshotRecordedPayload struct {
	Hour    string `json:"hour"`
	Servers int    `json:"servers"`
}

// TrafficAlertPayload announces a server crossing a notify level.
type TrafficAlertPayload struct {
	ServerID string  `json:"server_id"`
	Name     string  `json:"name"`
	Level    int     `json:"level"`
	Percent  float64 `json:"percent"`
}

// TrafficExceededPayload announces a server passing its traffic limit
// and the action taken for it.
type TrafficExceededPayload struct {
	ServerID string  `json:"server_id"`
	Name     string  `json:"name"`
	Percent  float64 `json:"percent"`
	Action   string  `json:"action"`
}

// RebuildCompletedPayload announces a finished rebuild, successful or
// not.
type RebuildCompletedPayload struct {
	OldID      string `json:"old_id"`
	NewID      string `json:"new_id,omitempty"`
	Name       string `json:"name"`
	NewIP      string `json:"new_ip,omitempty"`
	SnapshotID int64  `json:"snapshot_id,omitempty"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

// DNSSyncedPayload summarizes a record sync pass.
type DNSSyncedPayload struct {
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}
