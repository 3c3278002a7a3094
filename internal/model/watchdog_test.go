package model

import (
	"testing"

	"gopkg.in/yaml.v3"
)

const sampleConfig = `
hetzner:
  api_token: htz-token
traffic:
  limit_gb: 1024
  check_interval: 2
  exceed_action: delete_rebuild
telegram:
  enabled: true
  bot_token: bot-token
  chat_id: 123456789
  notify_levels: [95, 80, 80, -5, oops]
  daily_report_time: "09:30"
cloudflare:
  api_token: cf-token
  zone_id: zone-1
  sync_on_start: true
  record_map:
    "101": one.example.com
    "102":
      name: two.example.com
      zone_id: zone-2
rebuild:
  snapshot_id_map:
    "101": "555001"
    "102": 555002
  fallback_template:
    server_type: cx22
    location: fsn1
    ssh_keys: [7, my-key]
scheduler:
  enabled: true
  tasks:
    - action: delete_all
      times: "01:00"
    - action: create_from_snapshots
      times: ["07:00", "19:00"]
whitelist:
  server_ids: [300]
  server_names: [keeper]
`

func TestWatchdogConfigDecode(t *testing.T) {
	var cfg WatchdogConfig
	if err := yaml.Unmarshal([]byte(sampleConfig), &cfg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if cfg.Hetzner.APIToken != "htz-token" {
		t.Fatalf("unexpected hetzner token: %q", cfg.Hetzner.APIToken)
	}
	if cfg.Traffic.LimitGB != 1024 {
		t.Fatalf("unexpected limit_gb: %v", cfg.Traffic.LimitGB)
	}
	if got := cfg.Traffic.IntervalSeconds(); got != 120 {
		t.Fatalf("interval seconds = %d, want 120", got)
	}
	if cfg.Traffic.ExceedAction != ExceedActionDeleteRebuild {
		t.Fatalf("unexpected exceed action: %q", cfg.Traffic.ExceedAction)
	}

	if cfg.Telegram.ChatID.String() != "123456789" {
		t.Fatalf("chat id should coerce to string, got %q", cfg.Telegram.ChatID)
	}
	if got := cfg.Telegram.NotifyLevels.Levels(); len(got) != 2 || got[0] != 80 || got[1] != 95 {
		t.Fatalf("levels should dedup, drop junk and sort, got %v", got)
	}
	if !cfg.Telegram.Ready() {
		t.Fatalf("telegram should be ready")
	}

	if got := cfg.Cloudflare.RecordMap["101"]; got.Record != "one.example.com" || got.ZoneID != "" {
		t.Fatalf("scalar record entry should decode bare, got %+v", got)
	}
	if got := cfg.Cloudflare.RecordMap["102"]; got.Record != "two.example.com" || got.ZoneID != "zone-2" {
		t.Fatalf("mapping record entry should honor the name alias, got %+v", got)
	}

	if got := cfg.Rebuild.SnapshotIDMap["101"]; got != 555001 {
		t.Fatalf("quoted snapshot id should decode, got %d", got)
	}
	if got := cfg.Rebuild.SnapshotIDMap["102"]; got != 555002 {
		t.Fatalf("bare snapshot id should decode, got %d", got)
	}
	if got := cfg.Rebuild.FallbackTemplate.SSHKeys; len(got) != 2 || got[0] != "7" || got[1] != "my-key" {
		t.Fatalf("ssh keys should coerce to strings, got %v", got)
	}

	if !cfg.Whitelist.Protects("300", "other") {
		t.Fatalf("id 300 should be whitelisted")
	}
	if !cfg.Whitelist.Protects("999", "keeper") {
		t.Fatalf("name keeper should be whitelisted")
	}
	if cfg.Whitelist.Protects("999", "victim") {
		t.Fatalf("unlisted server should not be whitelisted")
	}
}

func TestIntervalSecondsDefaults(t *testing.T) {
	if got := (TrafficConfig{}).IntervalSeconds(); got != 300 {
		t.Fatalf("absent interval = %d, want 300", got)
	}
	zero := 0
	if got := (TrafficConfig{CheckInterval: &zero}).IntervalSeconds(); got != 30 {
		t.Fatalf("zero interval = %d, want floor 30", got)
	}
}

func TestAlertLevelsDefault(t *testing.T) {
	cases := []string{"", "levels: 90", "levels: {a: 1}", "levels: []", "levels: [0, -3, x]"}
	for _, src := range cases {
		var doc struct {
			Levels AlertLevels `yaml:"levels"`
		}
		if err := yaml.Unmarshal([]byte(src), &doc); err != nil {
			t.Fatalf("unmarshal %q: %v", src, err)
		}
		got := doc.Levels.Levels()
		want := []int{80, 90, 95, 100}
		if len(got) != len(want) {
			t.Fatalf("%q: levels = %v, want default %v", src, got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("%q: levels = %v, want default %v", src, got, want)
			}
		}
	}
}

func TestRecordTargetResolution(t *testing.T) {
	cfg := CloudflareConfig{
		APIToken: "top-token",
		ZoneID:   "top-zone",
		RecordMap: map[string]RecordTarget{
			"101":  {Record: "bare.example.com"},
			"two":  {Record: "two.example.com", ZoneID: "zone-2", APIToken: "tok-2"},
			"void": {},
		},
	}

	target, ok := cfg.TargetFor("101", "")
	if !ok || target.Record != "bare.example.com" || target.ZoneID != "top-zone" || target.APIToken != "top-token" {
		t.Fatalf("bare entry should inherit defaults, got %+v ok=%v", target, ok)
	}

	target, ok = cfg.TargetFor("999", "two")
	if !ok || target.ZoneID != "zone-2" || target.APIToken != "tok-2" {
		t.Fatalf("name lookup should keep overrides, got %+v ok=%v", target, ok)
	}

	if _, ok := cfg.TargetFor("void", ""); ok {
		t.Fatalf("entry without record must not resolve")
	}
	if _, ok := cfg.TargetFor("absent", "absent"); ok {
		t.Fatalf("missing entry must not resolve")
	}
}

func TestRecordTargetMarshalShape(t *testing.T) {
	out, err := yaml.Marshal(map[string]RecordTarget{
		"a": {Record: "a.example.com"},
		"b": {Record: "b.example.com", ZoneID: "z"},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back map[string]RecordTarget
	if err := yaml.Unmarshal(out, &back); err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if back["a"].Record != "a.example.com" || back["a"].ZoneID != "" {
		t.Fatalf("bare entry should survive as scalar, got %+v", back["a"])
	}
	if back["b"].ZoneID != "z" {
		t.Fatalf("override entry should survive as mapping, got %+v", back["b"])
	}
}

func TestNormalizedTasksLegacyKeys(t *testing.T) {
	var cfg SchedulerConfig
	if err := yaml.Unmarshal([]byte("enabled: true\ndelete_time: \"01:00\"\ncreate_time: [\"07:00\", \"19:00\"]\n"), &cfg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	tasks := cfg.NormalizedTasks()
	if len(tasks) != 2 {
		t.Fatalf("expected 2 synthesized tasks, got %d", len(tasks))
	}
	if tasks[0].Action != TaskDeleteAll || len(tasks[0].Times) != 1 || tasks[0].Times[0] != "01:00" {
		t.Fatalf("unexpected delete task: %+v", tasks[0])
	}
	if tasks[1].Action != TaskCreateFromSnapshots || len(tasks[1].Times) != 2 {
		t.Fatalf("unexpected create task: %+v", tasks[1])
	}

	explicit := SchedulerConfig{
		Tasks:      []ScheduledTask{{Action: TaskDeleteAll, Times: FlexTimes{"02:00"}}},
		DeleteTime: FlexTimes{"01:00"},
	}
	tasks = explicit.NormalizedTasks()
	if len(tasks) != 1 || tasks[0].Times[0] != "02:00" {
		t.Fatalf("explicit tasks must win over legacy keys, got %+v", tasks)
	}
}

func TestRemapServerID(t *testing.T) {
	cfg := WatchdogConfig{
		Rebuild: RebuildConfig{
			SnapshotIDMap: map[string]FlexInt64{"101": 555001},
		},
		Cloudflare: CloudflareConfig{
			RecordMap: map[string]RecordTarget{"101": {Record: "one.example.com"}},
		},
	}

	if !cfg.RemapServerID("101", "202") {
		t.Fatalf("remap should report a change")
	}
	if _, stale := cfg.Rebuild.SnapshotIDMap["101"]; stale {
		t.Fatalf("old snapshot mapping should be gone")
	}
	if cfg.Rebuild.SnapshotIDMap["202"] != 555001 {
		t.Fatalf("snapshot mapping should follow the new id")
	}
	if cfg.Cloudflare.RecordMap["202"].Record != "one.example.com" {
		t.Fatalf("record mapping should follow the new id")
	}

	if cfg.RemapServerID("missing", "303") {
		t.Fatalf("remap of unknown id should report no change")
	}
}
