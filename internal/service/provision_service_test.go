package service

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"go.uber.org/zap"

	"github.com/xiaowoniu928/hetzner-web/internal/model"
	"github.com/xiaowoniu928/hetzner-web/pkg/hetzner"
)

func provisionConfig() *model.WatchdogConfig {
	return &model.WatchdogConfig{
		Cloudflare: model.CloudflareConfig{
			APIToken: "cf-token",
			ZoneID:   "zone-1",
			RecordMap: map[string]model.RecordTarget{
				"100": {Record: "alpha.example.com"},
			},
		},
		Rebuild: model.RebuildConfig{
			SnapshotIDMap: map[string]model.FlexInt64{"100": 11, "200": 22},
			FallbackTemplate: model.FallbackTemplate{
				ServerType: "cpx21",
				Location:   "fsn1",
				SSHKeys:    model.StringList{"ops-key"},
			},
		},
	}
}

func TestDeleteAll_HonorsWhitelist(t *testing.T) {
	t.Parallel()

	var deleted []int64
	cloud := &fakeCloud{
		getServersFn: func(ctx context.Context) ([]hetzner.Server, error) {
			return []hetzner.Server{
				testServer(1, "alpha", "1.1.1.1", nil),
				testServer(2, "bravo", "2.2.2.2", nil),
				testServer(3, "charlie", "3.3.3.3", nil),
			}, nil
		},
		deleteServerFn: func(ctx context.Context, serverID int64) error {
			deleted = append(deleted, serverID)
			return nil
		},
	}
	configRepo := &memConfigRepo{cfg: &model.WatchdogConfig{
		Whitelist: model.WhitelistConfig{
			ServerIDs:   model.StringList{"1"},
			ServerNames: []string{"charlie"},
		},
	}}

	svc := NewProvisionService(cloud, configRepo, nil, zap.NewNop())
	svc.pacing = 0

	gotDeleted, gotSkipped, err := svc.DeleteAll(context.Background())
	if err != nil {
		t.Fatalf("DeleteAll returned error: %v", err)
	}
	if gotDeleted != 1 || gotSkipped != 2 {
		t.Fatalf("expected deleted=1 skipped=2, got deleted=%d skipped=%d", gotDeleted, gotSkipped)
	}
	if len(deleted) != 1 || deleted[0] != 2 {
		t.Fatalf("only the unprotected server may be deleted, got %v", deleted)
	}
}

func TestDeleteAll_DeleteFailureCountsAsSkipped(t *testing.T) {
	t.Parallel()

	cloud := &fakeCloud{
		getServersFn: func(ctx context.Context) ([]hetzner.Server, error) {
			return []hetzner.Server{testServer(2, "bravo", "2.2.2.2", nil)}, nil
		},
		deleteServerFn: func(ctx context.Context, serverID int64) error {
			return errors.New("locked by provider")
		},
	}
	svc := NewProvisionService(cloud, &memConfigRepo{cfg: &model.WatchdogConfig{}}, nil, zap.NewNop())
	svc.pacing = 0

	deleted, skipped, err := svc.DeleteAll(context.Background())
	if err != nil {
		t.Fatalf("DeleteAll returned error: %v", err)
	}
	if deleted != 0 || skipped != 1 {
		t.Fatalf("expected deleted=0 skipped=1, got deleted=%d skipped=%d", deleted, skipped)
	}
}

func TestCreateFromSnapshots_RecreatesRemapsAndRepoints(t *testing.T) {
	t.Parallel()

	var createReqs []hetzner.CreateServerRequest
	nextID := int64(500)
	cloud := &fakeCloud{
		createServerFn: func(ctx context.Context, req hetzner.CreateServerRequest) (*hetzner.Server, error) {
			createReqs = append(createReqs, req)
			created := testServer(nextID, req.Name, "10.0.0."+strconv.FormatInt(nextID-499, 10), nil)
			nextID++
			return &created, nil
		},
	}
	configRepo := &memConfigRepo{cfg: provisionConfig()}
	records := &fakeRecords{}
	dns := NewDNSService(cloud, configRepo, records, nil, zap.NewNop())

	svc := NewProvisionService(cloud, configRepo, dns, zap.NewNop())

	created, err := svc.CreateFromSnapshots(context.Background())
	if err != nil {
		t.Fatalf("CreateFromSnapshots returned error: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("expected two servers, got %d", len(created))
	}

	// Map iteration is sorted, so "100" comes first.
	if created[0].OldID != "100" || created[0].NewID != "500" || created[0].Name != "alpha" {
		t.Fatalf("unexpected first creation: %+v", created[0])
	}
	if created[1].OldID != "200" || created[1].NewID != "501" || created[1].Name != "auto-200" {
		t.Fatalf("unexpected second creation: %+v", created[1])
	}

	if len(createReqs) != 2 {
		t.Fatalf("expected two create requests, got %d", len(createReqs))
	}
	first := createReqs[0]
	if first.ServerType != "cpx21" || first.Location != "fsn1" || first.Image != 11 ||
		len(first.SSHKeys) != 1 || first.SSHKeys[0] != "ops-key" {
		t.Fatalf("create request does not follow the template: %+v", first)
	}
	if createReqs[1].Image != 22 {
		t.Fatalf("second request must use the second snapshot, got %d", createReqs[1].Image)
	}

	cfg := configRepo.cfg
	if cfg.Rebuild.SnapshotIDMap["500"] != 11 || cfg.Rebuild.SnapshotIDMap["501"] != 22 {
		t.Fatalf("snapshot map not remapped: %v", cfg.Rebuild.SnapshotIDMap)
	}
	if _, stale := cfg.Rebuild.SnapshotIDMap["100"]; stale {
		t.Fatal("old snapshot key must be gone")
	}
	if cfg.Cloudflare.RecordMap["500"].Record != "alpha.example.com" {
		t.Fatalf("record map not remapped: %v", cfg.Cloudflare.RecordMap)
	}
	if configRepo.saves != 1 {
		t.Fatalf("bulk recreation persists the config once, got %d saves", configRepo.saves)
	}

	updates := records.updates()
	if len(updates) != 1 || updates[0].record != "alpha.example.com" || updates[0].ip != "10.0.0.1" {
		t.Fatalf("expected one DNS repoint for the mapped server, got %+v", updates)
	}
}

func TestCreateFromSnapshots_IncompleteTemplateSkipsAll(t *testing.T) {
	t.Parallel()

	cfg := provisionConfig()
	cfg.Rebuild.FallbackTemplate = model.FallbackTemplate{}
	configRepo := &memConfigRepo{cfg: cfg}

	svc := NewProvisionService(&fakeCloud{}, configRepo, nil, zap.NewNop())

	created, err := svc.CreateFromSnapshots(context.Background())
	if err != nil {
		t.Fatalf("CreateFromSnapshots returned error: %v", err)
	}
	if len(created) != 0 {
		t.Fatalf("incomplete template must create nothing, got %+v", created)
	}
	if configRepo.saves != 0 {
		t.Fatal("nothing changed, nothing to persist")
	}
}

func TestCreateFromSnapshots_EmptyMapIsNoop(t *testing.T) {
	t.Parallel()

	svc := NewProvisionService(&fakeCloud{}, &memConfigRepo{cfg: &model.WatchdogConfig{}}, nil, zap.NewNop())
	created, err := svc.CreateFromSnapshots(context.Background())
	if err != nil || created != nil {
		t.Fatalf("expected a silent no-op, got created=%v err=%v", created, err)
	}
}

func TestCreateFromSnapshot_RequiresMapping(t *testing.T) {
	t.Parallel()

	svc := NewProvisionService(&fakeCloud{}, &memConfigRepo{cfg: provisionConfig()}, nil, zap.NewNop())
	if _, err := svc.CreateFromSnapshot(context.Background(), "999"); !errors.Is(err, ErrNoSnapshotMapping) {
		t.Fatalf("expected ErrNoSnapshotMapping, got %v", err)
	}
}

func TestCreateFromSnapshot_PersistsImmediately(t *testing.T) {
	t.Parallel()

	cloud := &fakeCloud{
		createServerFn: func(ctx context.Context, req hetzner.CreateServerRequest) (*hetzner.Server, error) {
			created := testServer(600, req.Name, "10.0.0.9", nil)
			return &created, nil
		},
	}
	configRepo := &memConfigRepo{cfg: provisionConfig()}
	records := &fakeRecords{}
	dns := NewDNSService(cloud, configRepo, records, nil, zap.NewNop())

	svc := NewProvisionService(cloud, configRepo, dns, zap.NewNop())

	created, err := svc.CreateFromSnapshot(context.Background(), "100")
	if err != nil {
		t.Fatalf("CreateFromSnapshot returned error: %v", err)
	}
	if created.NewID != "600" || created.Name != "alpha" || created.IP != "10.0.0.9" {
		t.Fatalf("unexpected creation: %+v", created)
	}
	if configRepo.saves != 1 {
		t.Fatalf("single recreation persists immediately, got %d saves", configRepo.saves)
	}
	if configRepo.cfg.Rebuild.SnapshotIDMap["600"] != 11 {
		t.Fatalf("snapshot map not remapped: %v", configRepo.cfg.Rebuild.SnapshotIDMap)
	}
}
