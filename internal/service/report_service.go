package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xiaowoniu928/hetzner-web/internal/repository"
	"github.com/xiaowoniu928/hetzner-web/internal/traffic"
	"github.com/xiaowoniu928/hetzner-web/pkg/hetzner"
)

var (
	ErrInvalidDate      = errors.New("invalid date format")
	ErrInvalidHourLabel = errors.New("invalid hour label")
)

// ServerRow is one live server in the dashboard overview.
type ServerRow struct {
	ID            int64    `json:"id"`
	Name          string   `json:"name"`
	Status        string   `json:"status"`
	IP            *string  `json:"ip"`
	ServerType    string   `json:"server_type"`
	Location      string   `json:"location"`
	OutboundTB    string   `json:"outbound_tb"`
	InboundTB     string   `json:"inbound_tb"`
	OutboundBytes *float64 `json:"outbound_bytes"`
	InboundBytes  *float64 `json:"inbound_bytes"`
}

// TrafficLimits echoes the configured allowance so the dashboard can
// draw usage bars without re-deriving units.
type TrafficLimits struct {
	LimitGB      *float64 `json:"limit_gb"`
	LimitTB      *string  `json:"limit_tb"`
	CostPerTBEUR int      `json:"cost_per_tb_eur"`
}

// ServersOverview is the GET /api/servers document.
type ServersOverview struct {
	Servers   []ServerRow            `json:"servers"`
	UpdatedAt string                 `json:"updated_at"`
	Tracking  traffic.TrackingTotals `json:"tracking"`
	Traffic   TrafficLimits          `json:"traffic"`
	Rebuilds  map[string]string      `json:"rebuilds"`
}

// TodayUsage is one server's metrics-integrated traffic since local
// midnight.
type TodayUsage struct {
	OutBytes float64
	InBytes  float64
}

// ReportService assembles the dashboard views and the rendered
// Telegram report texts from the stored series, the live fleet and the
// operator config.
type ReportService struct {
	cloud        CloudAPI
	stateRepo    repository.StateRepository
	configRepo   repository.WatchdogConfigRepository
	settingsRepo repository.SettingsRepository
	collector    *CollectorService
	logger       *zap.Logger

	nowFunc func() time.Time
}

func NewReportService(
	cloud CloudAPI,
	stateRepo repository.StateRepository,
	configRepo repository.WatchdogConfigRepository,
	settingsRepo repository.SettingsRepository,
	collector *CollectorService,
	logger *zap.Logger,
) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ReportService{
		cloud:        cloud,
		stateRepo:    stateRepo,
		configRepo:   configRepo,
		settingsRepo: settingsRepo,
		collector:    collector,
		logger:       logger,
		nowFunc:      time.Now,
	}
}

// ServersOverview builds the live fleet table plus the series-derived
// tracking totals and last-rebuild map. Tracking totals run over the
// name-merged series so a rebuilt server keeps one row; rebuild
// detection runs over the raw series because resets are per id.
func (s *ReportService) ServersOverview(ctx context.Context) (*ServersOverview, error) {
	cfg, err := s.configRepo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load watchdog config: %w", err)
	}

	servers, err := s.cloud.GetServers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list servers: %w", err)
	}

	rows := make([]ServerRow, 0, len(servers))
	for _, server := range servers {
		outgoing, ingoing := server.OutgoingTraffic, server.IngoingTraffic
		if detail, err := s.cloud.GetServer(ctx, server.ID); err == nil && detail != nil {
			outgoing, ingoing = detail.OutgoingTraffic, detail.IngoingTraffic
		}

		row := ServerRow{
			ID:            server.ID,
			Name:          server.Name,
			Status:        server.Status,
			ServerType:    server.ServerType.Name,
			Location:      server.Datacenter.Location.Name,
			OutboundTB:    tbOrZero(outgoing),
			InboundTB:     tbOrZero(ingoing),
			OutboundBytes: outgoing,
			InboundBytes:  ingoing,
		}
		if ip := server.IPv4(); ip != "" {
			row.IP = &ip
		}
		rows = append(rows, row)
	}

	state, err := s.stateRepo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load report state: %w", err)
	}
	settings, err := s.settingsRepo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load dashboard settings: %w", err)
	}

	merged := traffic.MergeSeriesByName(state.Hourly)
	overview := &ServersOverview{
		Servers:   rows,
		UpdatedAt: s.nowFunc().Format("2006-01-02 15:04:05"),
		Tracking:  traffic.ComputeTrackingTotals(merged, settings.TrackingStart),
		Traffic:   TrafficLimits{CostPerTBEUR: 1},
		Rebuilds:  traffic.DetectLastRebuilds(state.Hourly),
	}
	if cfg.Traffic.LimitGB > 0 {
		limitGB := cfg.Traffic.LimitGB
		limitTB := traffic.TBString(limitTBFromGB(limitGB))
		overview.Traffic.LimitGB = &limitGB
		overview.Traffic.LimitTB = &limitTB
	}
	return overview, nil
}

// HourlyView renders per-name hour deltas: one calendar date when
// `date` is set, otherwise the last 24 transitions.
func (s *ReportService) HourlyView(ctx context.Context, date string) (traffic.HourlyReport, error) {
	if date != "" {
		if _, err := time.Parse("2006-01-02", date); err != nil {
			return traffic.HourlyReport{}, ErrInvalidDate
		}
	}

	state, err := s.stateRepo.Load(ctx)
	if err != nil {
		return traffic.HourlyReport{}, fmt.Errorf("load report state: %w", err)
	}
	if date != "" {
		return traffic.BuildHourlyReportForDate(state.Hourly, date), nil
	}
	return traffic.BuildHourlyReport(state.Hourly, 24), nil
}

// DailyView renders the 35-day per-date rollup.
func (s *ReportService) DailyView(ctx context.Context) (traffic.DailyReport, error) {
	state, err := s.stateRepo.Load(ctx)
	if err != nil {
		return traffic.DailyReport{}, fmt.Errorf("load report state: %w", err)
	}
	return traffic.BuildDailyReport(state.Hourly), nil
}

// CycleView renders per-id billing-cycle series restricted to the
// currently existing fleet, labeled with provider names.
func (s *ReportService) CycleView(ctx context.Context) (traffic.CycleData, error) {
	state, err := s.stateRepo.Load(ctx)
	if err != nil {
		return traffic.CycleData{}, fmt.Errorf("load report state: %w", err)
	}

	servers, err := s.cloud.GetServers(ctx)
	if err != nil {
		return traffic.CycleData{}, fmt.Errorf("list servers: %w", err)
	}

	include := make(map[string]struct{}, len(servers))
	names := make(map[string]string, len(servers))
	for _, server := range servers {
		id := strconv.FormatInt(server.ID, 10)
		include[id] = struct{}{}
		if server.Name != "" {
			names[id] = server.Name
		} else {
			names[id] = id
		}
	}

	return traffic.ComputeCycleData(state.Hourly, traffic.CycleOptions{
		IncludeIDs:    include,
		NameOverrides: names,
	}), nil
}

// Tracking returns the cumulative totals since the operator-chosen
// start, computed over the name-merged series.
func (s *ReportService) Tracking(ctx context.Context) (traffic.TrackingTotals, error) {
	state, err := s.stateRepo.Load(ctx)
	if err != nil {
		return traffic.TrackingTotals{}, fmt.Errorf("load report state: %w", err)
	}
	settings, err := s.settingsRepo.Load(ctx)
	if err != nil {
		return traffic.TrackingTotals{}, fmt.Errorf("load dashboard settings: %w", err)
	}
	return traffic.ComputeTrackingTotals(traffic.MergeSeriesByName(state.Hourly), settings.TrackingStart), nil
}

// SetTrackingStart updates the tracking window start. Empty clears the
// override back to the series start; anything else must be a valid
// hour label.
func (s *ReportService) SetTrackingStart(ctx context.Context, start string) error {
	start = strings.TrimSpace(start)
	if start != "" && !traffic.ValidHourLabel(start) {
		return ErrInvalidHourLabel
	}

	settings, err := s.settingsRepo.Load(ctx)
	if err != nil {
		return fmt.Errorf("load dashboard settings: %w", err)
	}
	settings.TrackingStart = start
	if err := s.settingsRepo.Save(ctx, settings); err != nil {
		return fmt.Errorf("save dashboard settings: %w", err)
	}
	return nil
}

// TodayTraffic integrates the provider's traffic time series from local
// midnight to now for one server.
func (s *ReportService) TodayTraffic(ctx context.Context, serverID int64) (TodayUsage, error) {
	now := s.nowFunc()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	m, err := s.cloud.GetServerMetrics(ctx, serverID,
		midnight.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return TodayUsage{}, fmt.Errorf("server metrics: %w", err)
	}

	usage := TodayUsage{}
	if series, ok := m.TimeSeries[hetzner.SeriesTrafficOut]; ok {
		usage.OutBytes = hetzner.Integrate(series.Values)
	}
	if series, ok := m.TimeSeries[hetzner.SeriesTrafficIn]; ok {
		usage.InBytes = hetzner.Integrate(series.Values)
	}
	return usage, nil
}

// ManualReportText records the current hour (idempotent), renders the
// interval report against the stored baseline, then rewrites the
// baseline so the next run measures from here.
func (s *ReportService) ManualReportText(ctx context.Context) (string, error) {
	now := s.nowFunc()
	if _, err := s.collector.RecordHourly(ctx); err != nil {
		s.logger.Warn("snapshot during manual report failed", zap.Error(err))
	}

	state, err := s.stateRepo.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("load report state: %w", err)
	}
	cfg, err := s.configRepo.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("load watchdog config: %w", err)
	}
	current, err := s.collector.CollectSnapshot(ctx)
	if err != nil {
		return "", err
	}

	var limitTB *decimal.Decimal
	if cfg.Traffic.LimitGB > 0 {
		v := limitTBFromGB(cfg.Traffic.LimitGB)
		limitTB = &v
	}

	var b strings.Builder
	b.WriteString("🕒 *Manual traffic report*")
	if state.LastTime != "" {
		fmt.Fprintf(&b, "\n\nWindow: %s ~ %s", state.LastTime, now.Format("2006-01-02 15:04"))
	} else {
		b.WriteString("\n\nWindow: first run (cumulative outbound only)")
	}

	for _, id := range sortedSnapshotIDs(current) {
		reading := current[id]
		totalTB := tbOrZero(reading.OutboundBytes)
		inboundTB := tbOrZero(reading.InboundBytes)

		usageText := "N/A"
		if limitTB != nil && reading.OutboundBytes != nil {
			pct, _ := traffic.BytesToTB(*reading.OutboundBytes).
				Div(*limitTB).Mul(decimal.NewFromInt(100)).Float64()
			usageText = fmt.Sprintf("%.2f%%", pct)
		}

		deltaText := "N/A"
		if last, ok := state.Servers[id]; ok &&
			reading.OutboundBytes != nil && last.OutboundBytes != nil {
			if diff := *reading.OutboundBytes - *last.OutboundBytes; diff >= 0 {
				deltaText = traffic.TBString(traffic.BytesToTB(diff)) + " TB"
			}
		}

		limitText := "N/A"
		if limitTB != nil {
			limitText = traffic.TBString(*limitTB)
		}

		fmt.Fprintf(&b, "\n\n🖥 *%s* (`%s`)\n", reading.Name, id)
		fmt.Fprintf(&b, "💾 Cumulative outbound: *%s TB* / %s TB\n", totalTB, limitText)
		fmt.Fprintf(&b, "📈 Usage: *%s*\n", usageText)
		fmt.Fprintf(&b, "📊 Interval delta: *%s*\n", deltaText)
		fmt.Fprintf(&b, "📥 Inbound: %s TB", inboundTB)
	}

	b.WriteString("\n\n")
	b.WriteString(hourlyBreakdownText(state.Hourly, 24))

	state.LastTime = now.Format("2006-01-02 15:04")
	state.Servers = current
	if err := s.stateRepo.Save(ctx, state); err != nil {
		return "", fmt.Errorf("save report state: %w", err)
	}
	return b.String(), nil
}

// LastReportTime returns the manual-report baseline instant, empty when
// no report has run yet.
func (s *ReportService) LastReportTime(ctx context.Context) (string, error) {
	state, err := s.stateRepo.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("load report state: %w", err)
	}
	return state.LastTime, nil
}

// ResetReportBaseline wipes the accounting document entirely, series
// included, so reporting starts from scratch.
func (s *ReportService) ResetReportBaseline(ctx context.Context) error {
	state, err := s.stateRepo.Load(ctx)
	if err != nil {
		return fmt.Errorf("load report state: %w", err)
	}
	state.Hourly = traffic.Series{}
	state.LastTime = ""
	state.Servers = traffic.Snapshot{}
	return s.stateRepo.Save(ctx, state)
}

// DailyReportText renders the scheduled daily summary: per server
// cumulative counters plus today's metrics-integrated in/out. Servers
// whose counters cannot be read get an explicit failure row instead of
// zeros.
func (s *ReportService) DailyReportText(ctx context.Context) (string, error) {
	cfg, err := s.configRepo.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("load watchdog config: %w", err)
	}

	var limitBytes float64
	if cfg.Traffic.LimitGB > 0 {
		limitBytes, _ = decimal.NewFromFloat(cfg.Traffic.LimitGB).
			Mul(decimal.NewFromInt(1024).Pow(decimal.NewFromInt(3))).Float64()
	}

	servers, err := s.cloud.GetServers(ctx)
	if err != nil {
		return "", fmt.Errorf("list servers: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📅 **Daily traffic report (%s)**", s.nowFunc().Format("2006-01-02"))
	for _, server := range servers {
		name := server.Name
		outgoing, ingoing := server.OutgoingTraffic, server.IngoingTraffic
		if detail, err := s.cloud.GetServer(ctx, server.ID); err == nil && detail != nil {
			if detail.Name != "" {
				name = detail.Name
			}
			outgoing, ingoing = detail.OutgoingTraffic, detail.IngoingTraffic
		}
		if name == "" {
			name = strconv.FormatInt(server.ID, 10)
		}

		if outgoing == nil || ingoing == nil {
			fmt.Fprintf(&b, "\n━━━━━━━━━━\n🖥️ `%s`\n❌ fetch failed", name)
			continue
		}

		percentText := ""
		if limitBytes > 0 {
			percentText = fmt.Sprintf(" (%.2f%%)", *outgoing/limitBytes*100)
		}

		todayUp, todayDown := "0.000", "0.000"
		if usage, err := s.TodayTraffic(ctx, server.ID); err == nil {
			todayUp = traffic.TBString(traffic.BytesToTB(usage.OutBytes))
			todayDown = traffic.TBString(traffic.BytesToTB(usage.InBytes))
		} else {
			s.logger.Warn("today metrics fetch failed",
				zap.Int64("server_id", server.ID),
				zap.Error(err))
		}

		fmt.Fprintf(&b, "\n━━━━━━━━━━\n🖥️ `%s`\n", name)
		fmt.Fprintf(&b, "📤 Total outbound: `%s TB`%s\n", tbOrZero(outgoing), percentText)
		fmt.Fprintf(&b, "📥 Total inbound: `%s TB`\n", tbOrZero(ingoing))
		fmt.Fprintf(&b, "📈 **Today**: ⬆️ `%s TB` | ⬇️ `%s TB`", todayUp, todayDown)
	}
	return b.String(), nil
}

// hourlyBreakdownText renders the last `hours` outbound deltas per
// server id as compact text for Telegram. The monotonic rule applies,
// so an unreadable or reset transition shows N/A.
func hourlyBreakdownText(series traffic.Series, hours int) string {
	if len(series) == 0 {
		return "Hourly breakdown: no data yet"
	}
	keys := series.SortedHours()
	if len(keys) > hours+1 {
		keys = keys[len(keys)-(hours+1):]
	}
	if len(keys) < 2 {
		return "Hourly breakdown: not enough data"
	}

	type row struct {
		name  string
		lines []string
	}
	rows := make(map[string]*row)
	var order []string

	for i := 1; i < len(keys); i++ {
		prev, curr := series[keys[i-1]], series[keys[i]]
		label := keys[i][len(keys[i])-5:]
		for _, id := range sortedSnapshotIDs(curr) {
			reading := curr[id]
			r, ok := rows[id]
			if !ok {
				name := reading.Name
				if name == "" {
					name = id
				}
				r = &row{name: name}
				rows[id] = r
				order = append(order, id)
			}

			value := "N/A"
			prevReading := prev[id]
			if prevReading.OutboundBytes != nil && reading.OutboundBytes != nil &&
				*reading.OutboundBytes >= *prevReading.OutboundBytes {
				value = traffic.TBString(traffic.BytesToTB(*reading.OutboundBytes-*prevReading.OutboundBytes)) + " TB"
			}
			r.lines = append(r.lines, fmt.Sprintf("%s: %s", label, value))
		}
	}

	parts := []string{"🕘 *Hourly outbound (last 24h)*"}
	for _, id := range order {
		r := rows[id]
		parts = append(parts, "🖥 *"+r.name+"*\n"+strings.Join(r.lines, "\n"))
	}
	return strings.Join(parts, "\n\n")
}

// sortedSnapshotIDs orders ids numerically so report output is stable
// across runs.
func sortedSnapshotIDs(snap traffic.Snapshot) []string {
	ids := make([]string, 0, len(snap))
	for id := range snap {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, errA := strconv.ParseInt(ids[i], 10, 64)
		b, errB := strconv.ParseInt(ids[j], 10, 64)
		if errA == nil && errB == nil {
			return a < b
		}
		return ids[i] < ids[j]
	})
	return ids
}

// tbOrZero formats a byte counter as TB, printing 0.000 for unknown.
func tbOrZero(bytes *float64) string {
	if bytes == nil {
		return "0.000"
	}
	return traffic.TBString(traffic.BytesToTB(*bytes))
}

// limitTBFromGB converts the configured GB limit to quantized TB.
func limitTBFromGB(limitGB float64) decimal.Decimal {
	return traffic.QuantizeTB(decimal.NewFromFloat(limitGB).Div(decimal.NewFromInt(1024)))
}
