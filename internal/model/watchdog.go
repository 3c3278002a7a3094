package model

import "gopkg.in/yaml.v3"

// ExceedAction is what the monitor does when a server crosses 100% of
// the traffic limit.
type ExceedAction string

const (
	ExceedActionRebuild       ExceedAction = "rebuild"
	ExceedActionDeleteRebuild ExceedAction = "delete_rebuild"
	ExceedActionDelete        ExceedAction = "delete"
)

// TaskAction names a scheduler task.
type TaskAction string

const (
	TaskDeleteAll           TaskAction = "delete_all"
	TaskCreateFromSnapshots TaskAction = "create_from_snapshots"
)

// WatchdogConfig is the operator-edited config.yaml. Every section is
// optional; a zero value disables the corresponding feature.
type WatchdogConfig struct {
	Hetzner    HetznerConfig    `yaml:"hetzner" json:"hetzner"`
	Traffic    TrafficConfig    `yaml:"traffic" json:"traffic"`
	Telegram   TelegramConfig   `yaml:"telegram" json:"telegram"`
	Cloudflare CloudflareConfig `yaml:"cloudflare" json:"cloudflare"`
	Rebuild    RebuildConfig    `yaml:"rebuild" json:"rebuild"`
	Scheduler  SchedulerConfig  `yaml:"scheduler" json:"scheduler"`
	Whitelist  WhitelistConfig  `yaml:"whitelist" json:"whitelist"`
}

type HetznerConfig struct {
	APIToken string `yaml:"api_token" json:"api_token"`
}

type TrafficConfig struct {
	LimitGB       float64      `yaml:"limit_gb" json:"limit_gb"`
	CheckInterval *int         `yaml:"check_interval" json:"check_interval,omitempty"`
	ExceedAction  ExceedAction `yaml:"exceed_action" json:"exceed_action,omitempty"`
}

// IntervalSeconds is the monitor pass period: check_interval minutes
// (default 5) floored at 30 seconds.
func (t TrafficConfig) IntervalSeconds() int {
	minutes := 5
	if t.CheckInterval != nil {
		minutes = *t.CheckInterval
	}
	if s := minutes * 60; s > 30 {
		return s
	}
	return 30
}

type TelegramConfig struct {
	Enabled         bool        `yaml:"enabled" json:"enabled"`
	BotToken        string      `yaml:"bot_token" json:"bot_token"`
	ChatID          FlexString  `yaml:"chat_id" json:"chat_id"`
	NotifyLevels    AlertLevels `yaml:"notify_levels" json:"notify_levels,omitempty"`
	DailyReportTime string      `yaml:"daily_report_time" json:"daily_report_time,omitempty"`
}

// Ready reports whether the bot is enabled and has credentials.
func (t TelegramConfig) Ready() bool {
	return t.Enabled && t.BotToken != "" && t.ChatID != ""
}

type CloudflareConfig struct {
	APIToken    string                  `yaml:"api_token" json:"api_token"`
	ZoneID      string                  `yaml:"zone_id" json:"zone_id"`
	SyncOnStart bool                    `yaml:"sync_on_start" json:"sync_on_start"`
	RecordMap   map[string]RecordTarget `yaml:"record_map" json:"record_map,omitempty"`
}

// TargetFor looks up the record_map entry for a server, by id first and
// name second, and fills zone/token from the section defaults. The
// second return is false when no complete target exists.
func (c CloudflareConfig) TargetFor(serverID, serverName string) (RecordTarget, bool) {
	target, ok := c.RecordMap[serverID]
	if !ok && serverName != "" {
		target, ok = c.RecordMap[serverName]
	}
	if !ok {
		return RecordTarget{}, false
	}
	return target.withDefaults(c.ZoneID, c.APIToken)
}

// RecordTarget is one record_map entry: either a bare record name or a
// mapping carrying per-record zone/token overrides.
type RecordTarget struct {
	Record   string `yaml:"record" json:"record"`
	ZoneID   string `yaml:"zone_id,omitempty" json:"zone_id,omitempty"`
	APIToken string `yaml:"api_token,omitempty" json:"api_token,omitempty"`
}

func (r *RecordTarget) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*r = RecordTarget{Record: node.Value}
		return nil
	}
	type plain struct {
		Record   string `yaml:"record"`
		Name     string `yaml:"name"`
		ZoneID   string `yaml:"zone_id"`
		APIToken string `yaml:"api_token"`
	}
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	record := p.Record
	if record == "" {
		record = p.Name
	}
	*r = RecordTarget{Record: record, ZoneID: p.ZoneID, APIToken: p.APIToken}
	return nil
}

// MarshalYAML writes bare entries back as scalars so a hand-written map
// keeps its shape across config rewrites.
func (r RecordTarget) MarshalYAML() (any, error) {
	if r.ZoneID == "" && r.APIToken == "" {
		return r.Record, nil
	}
	type plain RecordTarget
	return plain(r), nil
}

func (r RecordTarget) withDefaults(zoneID, apiToken string) (RecordTarget, bool) {
	if r.ZoneID == "" {
		r.ZoneID = zoneID
	}
	if r.APIToken == "" {
		r.APIToken = apiToken
	}
	ok := r.Record != "" && r.ZoneID != "" && r.APIToken != ""
	return r, ok
}

type RebuildConfig struct {
	SnapshotIDMap    map[string]FlexInt64 `yaml:"snapshot_id_map" json:"snapshot_id_map,omitempty"`
	FallbackTemplate FallbackTemplate     `yaml:"fallback_template" json:"fallback_template"`
}

// FallbackTemplate supplies server shape for scheduled recreation, where
// no live server exists to copy type and location from.
type FallbackTemplate struct {
	ServerType string     `yaml:"server_type" json:"server_type,omitempty"`
	Location   string     `yaml:"location" json:"location,omitempty"`
	SSHKeys    StringList `yaml:"ssh_keys" json:"ssh_keys,omitempty"`
}

type SchedulerConfig struct {
	Enabled bool            `yaml:"enabled" json:"enabled"`
	Tasks   []ScheduledTask `yaml:"tasks" json:"tasks,omitempty"`

	// Legacy single-action keys, honored only when tasks is empty.
	DeleteTime FlexTimes `yaml:"delete_time" json:"delete_time,omitempty"`
	CreateTime FlexTimes `yaml:"create_time" json:"create_time,omitempty"`
}

type ScheduledTask struct {
	Action TaskAction `yaml:"action" json:"action"`
	Times  FlexTimes  `yaml:"times" json:"times,omitempty"`
}

// NormalizedTasks returns the configured task list, synthesizing one
// from the legacy delete_time/create_time keys when tasks is absent.
func (s SchedulerConfig) NormalizedTasks() []ScheduledTask {
	if len(s.Tasks) > 0 {
		return s.Tasks
	}
	var tasks []ScheduledTask
	if len(s.DeleteTime) > 0 {
		tasks = append(tasks, ScheduledTask{Action: TaskDeleteAll, Times: s.DeleteTime})
	}
	if len(s.CreateTime) > 0 {
		tasks = append(tasks, ScheduledTask{Action: TaskCreateFromSnapshots, Times: s.CreateTime})
	}
	return tasks
}

type WhitelistConfig struct {
	ServerIDs   StringList `yaml:"server_ids" json:"server_ids,omitempty"`
	ServerNames []string   `yaml:"server_names" json:"server_names,omitempty"`
}

// Protects reports whether a server is exempt from bulk deletion.
func (w WhitelistConfig) Protects(serverID, serverName string) bool {
	for _, id := range w.ServerIDs {
		if id == serverID {
			return true
		}
	}
	for _, name := range w.ServerNames {
		if name != "" && name == serverName {
			return true
		}
	}
	return false
}

// RemapServerID moves the snapshot_id_map and record_map entries of a
// rebuilt server from its old id to the new one. It reports whether the
// config changed and needs persisting.
func (c *WatchdogConfig) RemapServerID(oldID, newID string) bool {
	changed := false
	if snap, ok := c.Rebuild.SnapshotIDMap[oldID]; ok {
		c.Rebuild.SnapshotIDMap[newID] = snap
		delete(c.Rebuild.SnapshotIDMap, oldID)
		changed = true
	}
	if rec, ok := c.Cloudflare.RecordMap[oldID]; ok {
		c.Cloudflare.RecordMap[newID] = rec
		delete(c.Cloudflare.RecordMap, oldID)
		changed = true
	}
	return changed
}
