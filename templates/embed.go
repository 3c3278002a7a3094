package templates

import "embed"

//go:embed notifications/*.tmpl
var NotificationTemplateFS embed.FS

//go:embed static
var StaticFS embed.FS
