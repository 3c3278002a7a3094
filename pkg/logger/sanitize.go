package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Keys whose values never reach the log output. The watchdog config
// carries provider tokens and bot credentials, and loops routinely log
// config slices, so masking happens at the field level.
var sensitiveTokens = []string{
	"password",
	"token",
	"apikey",
	"api_key",
	"bot_token",
	"secret",
	"authorization",
}

// SanitizeFields masks secret-bearing fields, recursing into map and
// slice values so nested config dumps stay safe too.
func SanitizeFields(fields []zap.Field) []zap.Field {
	if len(fields) == 0 {
		return fields
	}
	sanitized := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		if IsSensitiveKey(field.Key) {
			sanitized = append(sanitized, zap.String(field.Key, "***"))
			continue
		}
		enc := zapcore.NewMapObjectEncoder()
		field.AddTo(enc)
		value, ok := enc.Fields[field.Key]
		if !ok {
			sanitized = append(sanitized, field)
			continue
		}
		sanitized = append(sanitized, zap.Any(field.Key, sanitizeValue(field.Key, value)))
	}
	return sanitized
}

func sanitizeValue(key string, value any) any {
	if IsSensitiveKey(key) {
		return "***"
	}
	switch typed := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for k, v := range typed {
			out[k] = sanitizeValue(k, v)
		}
		return out
	case []any:
		out := make([]any, 0, len(typed))
		for _, item := range typed {
			out = append(out, sanitizeValue(key, item))
		}
		return out
	default:
		return typed
	}
}

// IsSensitiveKey reports whether a field key names a credential.
// Separator characters are ignored so api-key and APIKey both match.
func IsSensitiveKey(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	if normalized == "" {
		return false
	}
	normalized = strings.NewReplacer("-", "", "_", "").Replace(normalized)
	for _, token := range sensitiveTokens {
		check := strings.NewReplacer("-", "", "_", "").Replace(token)
		if strings.Contains(normalized, check) {
			return true
		}
	}
	return false
}
