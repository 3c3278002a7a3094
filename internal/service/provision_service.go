package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xiaowoniu928/hetzner-web/internal/model"
	"github.com/xiaowoniu928/hetzner-web/internal/repository"
	"github.com/xiaowoniu928/hetzner-web/pkg/hetzner"
)

var (
	ErrNoSnapshotMapping  = errors.New("no snapshot mapped for that id")
	ErrIncompleteTemplate = errors.New("fallback template needs server_type and location")
)

const deletePacingDelay = time.Second

// CreatedServer is one server recreated from the snapshot map.
type CreatedServer struct {
	OldID string
	NewID string
	Name  string
	IP    string
}

// ProvisionService handles bulk fleet operations driven by the
// operator config: scheduled delete-all (whitelist aware) and
// recreation from the snapshot_id_map using the fallback template.
type ProvisionService struct {
	cloud      CloudAPI
	configRepo repository.WatchdogConfigRepository
	dns        *DNSService
	logger     *zap.Logger

	pacing time.Duration
}

func NewProvisionService(
	cloud CloudAPI,
	configRepo repository.WatchdogConfigRepository,
	dns *DNSService,
	logger *zap.Logger,
) *ProvisionService {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ProvisionService{
		cloud:      cloud,
		configRepo: configRepo,
		dns:        dns,
		logger:     logger,
		pacing:     deletePacingDelay,
	}
}

// DeleteAll removes every server except those protected by the
// whitelist, pacing requests so the provider API is not hammered.
func (s *ProvisionService) DeleteAll(ctx context.Context) (deleted, skipped int, err error) {
	cfg, err := s.configRepo.Load(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("load watchdog config: %w", err)
	}

	servers, err := s.cloud.GetServers(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("list servers: %w", err)
	}

	for _, server := range servers {
		id := strconv.FormatInt(server.ID, 10)
		if cfg.Whitelist.Protects(id, server.Name) {
			skipped++
			continue
		}

		if err := s.cloud.DeleteServer(ctx, server.ID); err != nil {
			s.logger.Warn("scheduled delete failed",
				zap.String("server_id", id),
				zap.String("server_name", server.Name),
				zap.Error(err))
			skipped++
		} else {
			deleted++
			s.logger.Info("server deleted by schedule",
				zap.String("server_id", id),
				zap.String("server_name", server.Name))
		}
		if err := sleepCtx(ctx, s.pacing); err != nil {
			return deleted, skipped, err
		}
	}
	return deleted, skipped, nil
}

// CreateFromSnapshots recreates one server per snapshot_id_map entry
// using the fallback template, then remaps config entries and repoints
// DNS. Entries that fail are skipped; the rest proceed. The config is
// persisted once at the end when any remap happened.
func (s *ProvisionService) CreateFromSnapshots(ctx context.Context) ([]CreatedServer, error) {
	cfg, err := s.configRepo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load watchdog config: %w", err)
	}
	if len(cfg.Rebuild.SnapshotIDMap) == 0 {
		return nil, nil
	}

	var created []CreatedServer
	changed := false
	for _, oldID := range sortedMapKeys(cfg.Rebuild.SnapshotIDMap) {
		snapshotID := int64(cfg.Rebuild.SnapshotIDMap[oldID])
		server, err := s.createOne(ctx, cfg, oldID, snapshotID)
		if err != nil {
			s.logger.Warn("snapshot recreation failed",
				zap.String("old_id", oldID),
				zap.Int64("snapshot_id", snapshotID),
				zap.Error(err))
			continue
		}
		created = append(created, *server)
		changed = true
	}

	if changed {
		if err := s.configRepo.Save(ctx, cfg); err != nil {
			return created, fmt.Errorf("persist remapped config: %w", err)
		}
	}
	return created, nil
}

// CreateFromSnapshot recreates the single server mapped under oldID and
// persists the resulting config remap immediately.
func (s *ProvisionService) CreateFromSnapshot(ctx context.Context, oldID string) (*CreatedServer, error) {
	cfg, err := s.configRepo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load watchdog config: %w", err)
	}

	snapshotID, ok := cfg.Rebuild.SnapshotIDMap[oldID]
	if !ok || snapshotID == 0 {
		return nil, ErrNoSnapshotMapping
	}

	server, err := s.createOne(ctx, cfg, oldID, int64(snapshotID))
	if err != nil {
		return nil, err
	}
	if err := s.configRepo.Save(ctx, cfg); err != nil {
		return server, fmt.Errorf("persist remapped config: %w", err)
	}
	return server, nil
}

// createOne builds one server from its mapped snapshot. The name comes
// from the mapped DNS record's first label, falling back to
// `auto-<old id>`. Mutates cfg (id remap) but does not persist it.
func (s *ProvisionService) createOne(
	ctx context.Context,
	cfg *model.WatchdogConfig,
	oldID string,
	snapshotID int64,
) (*CreatedServer, error) {
	template := cfg.Rebuild.FallbackTemplate
	if template.ServerType == "" || template.Location == "" {
		return nil, ErrIncompleteTemplate
	}

	// Resolve the record before remapping moves it to the new id.
	recordName := recordNameFor(cfg.Cloudflare, oldID, "")
	target, mapped := cfg.Cloudflare.TargetFor(oldID, "")

	name := "auto-" + oldID
	if recordName != "" {
		name = strings.SplitN(recordName, ".", 2)[0]
	}

	server, err := s.cloud.CreateServer(ctx, hetzner.CreateServerRequest{
		Name:       name,
		ServerType: template.ServerType,
		Image:      snapshotID,
		Location:   template.Location,
		SSHKeys:    template.SSHKeys,
	})
	if err != nil {
		return nil, fmt.Errorf("create server: %w", err)
	}

	newID := strconv.FormatInt(server.ID, 10)
	cfg.RemapServerID(oldID, newID)

	ip := server.IPv4()
	if mapped && ip != "" {
		if result := s.dns.UpdateRecord(ctx, target, ip); !result.Success {
			s.logger.Warn("dns repoint after recreation failed",
				zap.String("record", target.Record),
				zap.String("new_id", newID))
		}
	}

	s.logger.Info("server recreated from snapshot",
		zap.String("old_id", oldID),
		zap.String("new_id", newID),
		zap.String("server_name", name),
		zap.Int64("snapshot_id", snapshotID))
	return &CreatedServer{OldID: oldID, NewID: newID, Name: name, IP: ip}, nil
}

func sortedMapKeys(m map[string]model.FlexInt64) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
