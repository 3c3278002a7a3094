package service

import (
	"context"
	"errors"
	"sync"

	"github.com/xiaowoniu928/hetzner-web/internal/model"
	"github.com/xiaowoniu928/hetzner-web/pkg/hetzner"
)

// Shared in-memory fakes for the service tests. Cloud calls without a
// stubbed function fail loudly so a test cannot silently depend on an
// endpoint it never scripted.

var errUnstubbed = errors.New("unstubbed fake call")

type fakeCloud struct {
	getServersFn     func(ctx context.Context) ([]hetzner.Server, error)
	getServerFn      func(ctx context.Context, serverID int64) (*hetzner.Server, error)
	getMetricsFn     func(ctx context.Context, serverID int64, start, end string) (*hetzner.Metrics, error)
	deleteServerFn   func(ctx context.Context, serverID int64) error
	powerOnFn        func(ctx context.Context, serverID int64) error
	powerOffFn       func(ctx context.Context, serverID int64) error
	rebootFn         func(ctx context.Context, serverID int64) error
	getSnapshotsFn   func(ctx context.Context) ([]hetzner.Image, error)
	createSnapshotFn func(ctx context.Context, serverID int64, description string) (*hetzner.Image, error)
	createServerFn   func(ctx context.Context, req hetzner.CreateServerRequest) (*hetzner.Server, error)
}

var _ CloudAPI = (*fakeCloud)(nil)

func (f *fakeCloud) GetServers(ctx context.Context) ([]hetzner.Server, error) {
	if f.getServersFn == nil {
		return nil, errUnstubbed
	}
	return f.getServersFn(ctx)
}

func (f *fakeCloud) GetServer(ctx context.Context, serverID int64) (*hetzner.Server, error) {
	if f.getServerFn == nil {
		return nil, errUnstubbed
	}
	return f.getServerFn(ctx, serverID)
}

func (f *fakeCloud) GetServerMetrics(ctx context.Context, serverID int64, start, end string) (*hetzner.Metrics, error) {
	if f.getMetricsFn == nil {
		return nil, errUnstubbed
	}
	return f.getMetricsFn(ctx, serverID, start, end)
}

func (f *fakeCloud) DeleteServer(ctx context.Context, serverID int64) error {
	if f.deleteServerFn == nil {
		return errUnstubbed
	}
	return f.deleteServerFn(ctx, serverID)
}

func (f *fakeCloud) PowerOnServer(ctx context.Context, serverID int64) error {
	if f.powerOnFn == nil {
		return errUnstubbed
	}
	return f.powerOnFn(ctx, serverID)
}

func (f *fakeCloud) PowerOffServer(ctx context.Context, serverID int64) error {
	if f.powerOffFn == nil {
		return errUnstubbed
	}
	return f.powerOffFn(ctx, serverID)
}

func (f *fakeCloud) RebootServer(ctx context.Context, serverID int64) error {
	if f.rebootFn == nil {
		return errUnstubbed
	}
	return f.rebootFn(ctx, serverID)
}

func (f *fakeCloud) GetSnapshots(ctx context.Context) ([]hetzner.Image, error) {
	if f.getSnapshotsFn == nil {
		return nil, errUnstubbed
	}
	return f.getSnapshotsFn(ctx)
}

func (f *fakeCloud) CreateSnapshot(ctx context.Context, serverID int64, description string) (*hetzner.Image, error) {
	if f.createSnapshotFn == nil {
		return nil, errUnstubbed
	}
	return f.createSnapshotFn(ctx, serverID, description)
}

func (f *fakeCloud) CreateServer(ctx context.Context, req hetzner.CreateServerRequest) (*hetzner.Server, error) {
	if f.createServerFn == nil {
		return nil, errUnstubbed
	}
	return f.createServerFn(ctx, req)
}

type memStateRepo struct {
	mu      sync.Mutex
	state   *model.ReportState
	saves   int
	loadErr error
	saveErr error
}

func (m *memStateRepo) Load(ctx context.Context) (*model.ReportState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.state == nil {
		m.state = &model.ReportState{}
	}
	m.state.Normalize()
	return m.state, nil
}

func (m *memStateRepo) Save(ctx context.Context, state *model.ReportState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.state = state
	m.saves++
	return nil
}

type memConfigRepo struct {
	mu      sync.Mutex
	cfg     *model.WatchdogConfig
	saves   int
	loadErr error
	saveErr error
}

func (m *memConfigRepo) Load(ctx context.Context) (*model.WatchdogConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.cfg == nil {
		return nil, errors.New("no config seeded")
	}
	return m.cfg, nil
}

func (m *memConfigRepo) Save(ctx context.Context, cfg *model.WatchdogConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.cfg = cfg
	m.saves++
	return nil
}

type memSettingsRepo struct {
	mu       sync.Mutex
	settings *model.DashboardSettings
	saves    int
}

func (m *memSettingsRepo) Load(ctx context.Context) (*model.DashboardSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings == nil {
		m.settings = &model.DashboardSettings{}
	}
	return m.settings, nil
}

func (m *memSettingsRepo) Save(ctx context.Context, settings *model.DashboardSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = settings
	m.saves++
	return nil
}

type sentTemplate struct {
	name NotificationTemplate
	vars map[string]string
}

type fakeNotifier struct {
	mu        sync.Mutex
	ready     bool
	sendErr   error
	templates []sentTemplate
	texts     []string
}

var _ Notifier = (*fakeNotifier)(nil)

func (f *fakeNotifier) Ready(ctx context.Context) bool { return f.ready }

func (f *fakeNotifier) SendTemplate(ctx context.Context, name NotificationTemplate, vars map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	copied := make(map[string]string, len(vars))
	for k, v := range vars {
		copied[k] = v
	}
	f.templates = append(f.templates, sentTemplate{name: name, vars: copied})
	return nil
}

func (f *fakeNotifier) SendText(ctx context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeNotifier) sentTemplates() []sentTemplate {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentTemplate, len(f.templates))
	copy(out, f.templates)
	return out
}

func (f *fakeNotifier) sentTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.texts))
	copy(out, f.texts)
	return out
}

type rebuildCall struct {
	serverID int64
	name     string
	source   string
}

type fakeRebuilder struct {
	mu     sync.Mutex
	calls  []rebuildCall
	result *RebuildResult
	err    error
}

var _ Rebuilder = (*fakeRebuilder)(nil)

func (f *fakeRebuilder) Rebuild(ctx context.Context, serverID int64, serverName, source string) (*RebuildResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, rebuildCall{serverID: serverID, name: serverName, source: source})
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &RebuildResult{Success: true}, nil
}

func (f *fakeRebuilder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeRebuilder) calledWith() []rebuildCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]rebuildCall, len(f.calls))
	copy(out, f.calls)
	return out
}

type recordUpdate struct {
	apiToken string
	zoneID   string
	record   string
	ip       string
}

type fakeRecords struct {
	mu    sync.Mutex
	calls []recordUpdate
	err   error
}

var _ RecordUpdater = (*fakeRecords)(nil)

func (f *fakeRecords) UpdateARecord(ctx context.Context, apiToken, zoneID, recordName, ip string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recordUpdate{apiToken: apiToken, zoneID: zoneID, record: recordName, ip: ip})
	return f.err
}

func (f *fakeRecords) updates() []recordUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recordUpdate, len(f.calls))
	copy(out, f.calls)
	return out
}

func floatPtr(v float64) *float64 { return &v }

func testServer(id int64, name, ip string, outBytes *float64) hetzner.Server {
	server := hetzner.Server{
		ID:              id,
		Name:            name,
		Status:          "running",
		ServerType:      hetzner.ServerType{Name: "cpx21"},
		Datacenter:      hetzner.Datacenter{Location: hetzner.Location{Name: "fsn1"}},
		OutgoingTraffic: outBytes,
	}
	if ip != "" {
		server.PublicNet = hetzner.PublicNet{IPv4: &hetzner.IPAddress{IP: ip}}
	}
	return server
}
