package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"text/template"

	"go.uber.org/zap"

	"github.com/xiaowoniu928/hetzner-web/internal/repository"
	"github.com/xiaowoniu928/hetzner-web/pkg/telegram"
	tplfs "github.com/xiaowoniu928/hetzner-web/templates"
)

type NotificationTemplate string

const (
	NotificationTrafficAlert   NotificationTemplate = "traffic_alert"
	NotificationLimitExceeded  NotificationTemplate = "limit_exceeded"
	NotificationRebuildStarted NotificationTemplate = "rebuild_started"
	NotificationRebuildSuccess NotificationTemplate = "rebuild_success"
	NotificationRebuildFailed  NotificationTemplate = "rebuild_failed"
)

var notificationTemplateFiles = map[NotificationTemplate]string{
	NotificationTrafficAlert:   "notifications/traffic_alert.tmpl",
	NotificationLimitExceeded:  "notifications/limit_exceeded.tmpl",
	NotificationRebuildStarted: "notifications/rebuild_started.tmpl",
	NotificationRebuildSuccess: "notifications/rebuild_success.tmpl",
	NotificationRebuildFailed:  "notifications/rebuild_failed.tmpl",
}

var ErrTelegramNotConfigured = errors.New("telegram is not configured")

// NotificationService renders embedded templates and delivers them to
// the configured Telegram chat. Bot token and chat id are re-read from
// the watchdog config on every send so operator edits apply without a
// restart.
type NotificationService struct {
	configRepo repository.WatchdogConfigRepository
	logger     *zap.Logger

	templateMu sync.RWMutex
	templates  map[NotificationTemplate]*template.Template

	clientMu  sync.Mutex
	client    *telegram.BotClient
	clientKey string

	// apiBase overrides the Telegram endpoint in tests.
	apiBase string
}

func NewNotificationService(
	configRepo repository.WatchdogConfigRepository,
	logger *zap.Logger,
) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &NotificationService{
		configRepo: configRepo,
		logger:     logger,
		templates:  make(map[NotificationTemplate]*template.Template),
	}
}

// Ready reports whether notifications can be delivered: telegram
// enabled with both token and chat id present.
func (s *NotificationService) Ready(ctx context.Context) bool {
	cfg, err := s.configRepo.Load(ctx)
	if err != nil {
		return false
	}
	return cfg.Telegram.Ready()
}

func (s *NotificationService) SendTemplate(
	ctx context.Context,
	templateName NotificationTemplate,
	vars map[string]string,
) error {
	text, err := s.renderTemplate(templateName, vars)
	if err != nil {
		return err
	}
	return s.SendText(ctx, text)
}

func (s *NotificationService) SendText(ctx context.Context, text string) error {
	cfg, err := s.configRepo.Load(ctx)
	if err != nil {
		return fmt.Errorf("load watchdog config: %w", err)
	}
	if !cfg.Telegram.Ready() {
		return ErrTelegramNotConfigured
	}

	client := s.resolveBotClient(strings.TrimSpace(cfg.Telegram.BotToken))
	return client.SendMarkdown(ctx, cfg.Telegram.ChatID.String(), text)
}

func (s *NotificationService) resolveBotClient(token string) *telegram.BotClient {
	s.clientMu.Lock()
	defer s.clientMu.Unlock()
	if s.client != nil && s.clientKey == token {
		return s.client
	}

	if s.apiBase != "" {
		s.client = telegram.NewBotClientWithBase(s.apiBase, token, nil)
	} else {
		s.client = telegram.NewBotClient(token, nil)
	}
	s.clientKey = token
	return s.client
}

func (s *NotificationService) renderTemplate(
	templateName NotificationTemplate,
	vars map[string]string,
) (string, error) {
	tpl, err := s.loadTemplate(templateName)
	if err != nil {
		return "", err
	}

	buf := bytes.NewBuffer(nil)
	if err := tpl.Execute(buf, vars); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (s *NotificationService) loadTemplate(name NotificationTemplate) (*template.Template, error) {
	s.templateMu.RLock()
	if tpl, ok := s.templates[name]; ok {
		s.templateMu.RUnlock()
		return tpl, nil
	}
	s.templateMu.RUnlock()

	file, ok := notificationTemplateFiles[name]
	if !ok {
		return nil, fmt.Errorf("notification template not found: %s", name)
	}

	raw, err := tplfs.NotificationTemplateFS.ReadFile(file)
	if err != nil {
		return nil, err
	}

	tpl, err := template.New(file).Parse(string(raw))
	if err != nil {
		return nil, err
	}

	s.templateMu.Lock()
	s.templates[name] = tpl
	s.templateMu.Unlock()
	return tpl, nil
}
