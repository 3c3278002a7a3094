package service

import (
	"context"

	"github.com/xiaowoniu928/hetzner-web/pkg/cloudflare"
	"github.com/xiaowoniu928/hetzner-web/pkg/hetzner"
)

// CloudAPI is the slice of the Hetzner client the services consume.
// Tests substitute fakes; production wiring passes *hetzner.Client.
type CloudAPI interface {
	GetServers(ctx context.Context) ([]hetzner.Server, error)
	GetServer(ctx context.Context, serverID int64) (*hetzner.Server, error)
	GetServerMetrics(ctx context.Context, serverID int64, start, end string) (*hetzner.Metrics, error)
	DeleteServer(ctx context.Context, serverID int64) error
	PowerOnServer(ctx context.Context, serverID int64) error
	PowerOffServer(ctx context.Context, serverID int64) error
	RebootServer(ctx context.Context, serverID int64) error
	GetSnapshots(ctx context.Context) ([]hetzner.Image, error)
	CreateSnapshot(ctx context.Context, serverID int64, description string) (*hetzner.Image, error)
	CreateServer(ctx context.Context, req hetzner.CreateServerRequest) (*hetzner.Server, error)
}

var _ CloudAPI = (*hetzner.Client)(nil)

// RecordUpdater points DNS A records at new addresses. Zone and token
// travel per call because record_map entries may override both.
type RecordUpdater interface {
	UpdateARecord(ctx context.Context, apiToken, zoneID, recordName, ip string) error
}

var _ RecordUpdater = (*cloudflare.Client)(nil)

// Notifier delivers operator notifications. Send errors matter to some
// callers (alert levels are only marked after a successful send), so
// delivery is synchronous.
type Notifier interface {
	Ready(ctx context.Context) bool
	SendTemplate(ctx context.Context, name NotificationTemplate, vars map[string]string) error
	SendText(ctx context.Context, text string) error
}
