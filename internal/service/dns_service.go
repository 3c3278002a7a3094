package service

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/xiaowoniu928/hetzner-web/internal/event"
	"github.com/xiaowoniu928/hetzner-web/internal/metrics"
	"github.com/xiaowoniu928/hetzner-web/internal/model"
	"github.com/xiaowoniu928/hetzner-web/internal/repository"
)

const dnsVerifyTimeout = 5 * time.Second

// DNSCheckRow is one server's resolution check result. Exactly one of
// the three variants is populated: a full comparison, a `missing`
// status (no record mapped or no public IP), or a lookup error.
type DNSCheckRow struct {
	ID       int64  `json:"id"`
	Status   string `json:"status,omitempty"`
	Record   string `json:"record,omitempty"`
	Resolved string `json:"resolved,omitempty"`
	Expected string `json:"expected,omitempty"`
	OK       *bool  `json:"ok,omitempty"`
	Error    string `json:"error,omitempty"`

	// Name is for rendered (bot) output only, never the JSON shape.
	Name string `json:"-"`
}

// DNSUpdateResult reports one A-record update, mirrored into the
// rebuild API response.
type DNSUpdateResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// VerifyResult is one resolver probe against an expected address.
type VerifyResult struct {
	OK       bool
	Resolved string
	Err      error
}

// DNSService resolves record_map entries, compares live DNS against
// server addresses and repoints records after IP changes.
type DNSService struct {
	cloud      CloudAPI
	configRepo repository.WatchdogConfigRepository
	records    RecordUpdater
	bus        *event.Bus
	logger     *zap.Logger

	// lookupIP is swapped in tests to avoid real resolver traffic.
	lookupIP func(ctx context.Context, network, host string) ([]net.IP, error)
}

func NewDNSService(
	cloud CloudAPI,
	configRepo repository.WatchdogConfigRepository,
	records RecordUpdater,
	bus *event.Bus,
	logger *zap.Logger,
) *DNSService {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DNSService{
		cloud:      cloud,
		configRepo: configRepo,
		records:    records,
		bus:        bus,
		logger:     logger,
		lookupIP:   net.DefaultResolver.LookupIP,
	}
}

// VerifyRecord resolves a record's A entries and compares them with the
// expected address. Resolved carries the matching address when one
// exists, else the first answer.
func (s *DNSService) VerifyRecord(ctx context.Context, record, expectedIP string) VerifyResult {
	ctx, cancel := context.WithTimeout(ctx, dnsVerifyTimeout)
	defer cancel()

	addrs, err := s.lookupIP(ctx, "ip4", record)
	if err != nil {
		return VerifyResult{Err: err}
	}
	if len(addrs) == 0 {
		return VerifyResult{Err: fmt.Errorf("no A records for %s", record)}
	}

	result := VerifyResult{Resolved: addrs[0].String()}
	for _, addr := range addrs {
		if addr.String() == expectedIP {
			result.OK = true
			result.Resolved = expectedIP
			break
		}
	}
	return result
}

// CheckServers compares every mapped server's record with its public
// IPv4, optionally restricted to one server id. Servers without a
// mapped record name or without an address report `missing`.
func (s *DNSService) CheckServers(ctx context.Context, serverID *int64) ([]DNSCheckRow, error) {
	cfg, err := s.configRepo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load watchdog config: %w", err)
	}

	servers, err := s.cloud.GetServers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list servers: %w", err)
	}

	rows := make([]DNSCheckRow, 0, len(servers))
	for _, server := range servers {
		if serverID != nil && server.ID != *serverID {
			continue
		}

		record := recordNameFor(cfg.Cloudflare, strconv.FormatInt(server.ID, 10), server.Name)
		ip := server.IPv4()
		if record == "" || ip == "" {
			rows = append(rows, DNSCheckRow{ID: server.ID, Status: "missing", Name: server.Name})
			continue
		}

		verify := s.VerifyRecord(ctx, record, ip)
		if verify.Err != nil {
			rows = append(rows, DNSCheckRow{ID: server.ID, Record: record, Error: verify.Err.Error(), Name: server.Name})
			continue
		}
		ok := verify.OK
		rows = append(rows, DNSCheckRow{
			ID:       server.ID,
			Record:   record,
			Resolved: verify.Resolved,
			Expected: ip,
			OK:       &ok,
			Name:     server.Name,
		})
	}
	return rows, nil
}

// UpdateRecord repoints one resolved record target at ip.
func (s *DNSService) UpdateRecord(ctx context.Context, target model.RecordTarget, ip string) *DNSUpdateResult {
	if err := s.records.UpdateARecord(ctx, target.APIToken, target.ZoneID, target.Record, ip); err != nil {
		s.logger.Warn("dns record update failed",
			zap.String("record", target.Record),
			zap.Error(err))
		return &DNSUpdateResult{Error: err.Error()}
	}
	return &DNSUpdateResult{Success: true}
}

// UpdateRecordForServer repoints the server's mapped A record at ip.
// Returns nil when no complete record target exists for the server.
func (s *DNSService) UpdateRecordForServer(
	ctx context.Context,
	cfg *model.WatchdogConfig,
	serverID, serverName, ip string,
) *DNSUpdateResult {
	target, ok := cfg.Cloudflare.TargetFor(serverID, serverName)
	if !ok || ip == "" {
		return nil
	}
	return s.UpdateRecord(ctx, target, ip)
}

// SyncAll points every mapped record at its server's current address.
// A no-op unless cloudflare.sync_on_start is set. Failed updates count
// as skipped in the returned totals, matching what the bot reports.
func (s *DNSService) SyncAll(ctx context.Context) (updated, skipped int, err error) {
	cfg, err := s.configRepo.Load(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("load watchdog config: %w", err)
	}
	if !cfg.Cloudflare.SyncOnStart || len(cfg.Cloudflare.RecordMap) == 0 {
		return 0, 0, nil
	}

	servers, err := s.cloud.GetServers(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("list servers: %w", err)
	}

	failed := 0
	for _, server := range servers {
		id := strconv.FormatInt(server.ID, 10)
		target, ok := cfg.Cloudflare.TargetFor(id, server.Name)
		if !ok {
			skipped++
			continue
		}

		ip := server.IPv4()
		if ip == "" {
			if detail, err := s.cloud.GetServer(ctx, server.ID); err == nil && detail != nil {
				ip = detail.IPv4()
			}
		}
		if ip == "" {
			skipped++
			continue
		}

		if err := s.records.UpdateARecord(ctx, target.APIToken, target.ZoneID, target.Record, ip); err != nil {
			s.logger.Warn("dns sync update failed",
				zap.String("record", target.Record),
				zap.String("server_id", id),
				zap.Error(err))
			failed++
			skipped++
			continue
		}
		updated++
	}

	metrics.AddDNSUpdates(updated, skipped-failed, failed)
	if s.bus != nil {
		s.bus.Publish(event.EventDNSSynced, event.DNSSyncedPayload{Updated: updated, Skipped: skipped})
	}
	s.logger.Info("dns records synced", zap.Int("updated", updated), zap.Int("skipped", skipped))
	return updated, skipped, nil
}

// recordNameFor returns the bare record name mapped to a server, by id
// first and name second. Unlike TargetFor this does not require
// zone/token, because resolution checks never talk to the API.
func recordNameFor(cf model.CloudflareConfig, serverID, serverName string) string {
	if target, ok := cf.RecordMap[serverID]; ok {
		return target.Record
	}
	if serverName != "" {
		if target, ok := cf.RecordMap[serverName]; ok {
			return target.Record
		}
	}
	return ""
}
