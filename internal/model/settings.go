package model

// DashboardSettings is the web_config.json document: dashboard
// credentials plus the tracking window start.
//
// PasswordHash (bcrypt) wins when present; the plaintext Password field
// is kept for hand-provisioned files.
type DashboardSettings struct {
	Username      string `json:"username"`
	Password      string `json:"password,omitempty"`
	PasswordHash  string `json:"password_hash,omitempty"`
	TrackingStart string `json:"tracking_start,omitempty"`
}
