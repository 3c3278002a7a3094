package hetzner

// Wire shapes for the slice of the Hetzner Cloud API the watchdog
// touches. Traffic counters are nullable: a freshly created server
// reports null until the first accounting run.

type Server struct {
	ID              int64      `json:"id"`
	Name            string     `json:"name"`
	Status          string     `json:"status"`
	Created         string     `json:"created"`
	PublicNet       PublicNet  `json:"public_net"`
	ServerType      ServerType `json:"server_type"`
	Datacenter      Datacenter `json:"datacenter"`
	OutgoingTraffic *float64   `json:"outgoing_traffic"`
	IngoingTraffic  *float64   `json:"ingoing_traffic"`
	IncludedTraffic *float64   `json:"included_traffic"`
}

// IPv4 returns the server's public IPv4 address, empty when none is
// assigned.
func (s Server) IPv4() string {
	if s.PublicNet.IPv4 == nil {
		return ""
	}
	return s.PublicNet.IPv4.IP
}

type PublicNet struct {
	IPv4 *IPAddress `json:"ipv4"`
}

type IPAddress struct {
	IP string `json:"ip"`
}

type ServerType struct {
	Name string `json:"name"`
}

type Datacenter struct {
	Location Location `json:"location"`
}

type Location struct {
	Name string `json:"name"`
}

type Image struct {
	ID          int64             `json:"id"`
	Type        string            `json:"type"`
	Status      string            `json:"status"`
	Description string            `json:"description"`
	Created     string            `json:"created"`
	CreatedFrom *ImageCreatedFrom `json:"created_from"`
}

type ImageCreatedFrom struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type CreateServerRequest struct {
	Name             string   `json:"name"`
	ServerType       string   `json:"server_type"`
	Image            int64    `json:"image"`
	Location         string   `json:"location"`
	StartAfterCreate bool     `json:"start_after_create,omitempty"`
	SSHKeys          []string `json:"ssh_keys,omitempty"`
}

type serversResponse struct {
	Servers []Server `json:"servers"`
}

type serverResponse struct {
	Server *Server `json:"server"`
}

type imagesResponse struct {
	Images []Image `json:"images"`
}

type imageResponse struct {
	Image *Image `json:"image"`
}

type metricsResponse struct {
	Metrics Metrics `json:"metrics"`
}
