package neolink

import (
	"net"
	"net/url"
)

// Stream is one RTSP stream neolink serves for a camera.
type Stream struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// StreamEndpoint is the neolink RTSP server address and credentials.
type StreamEndpoint struct {
	Host     string
	Port     string
	Username string
	Password string
}

// StreamURLs returns the main, sub and extern streams for cameraName.
// Credentials are embedded in the URL when a username is set.
func StreamURLs(ep StreamEndpoint, cameraName string) []Stream {
	variants := []struct{ id, name string }{
		{"main", "Main Stream"},
		{"sub", "Sub Stream"},
		{"extern", "Extern Stream"},
	}

	streams := make([]Stream, 0, len(variants))
	for _, v := range variants {
		u := url.URL{
			Scheme: "rtsp",
			Host:   net.JoinHostPort(ep.Host, ep.Port),
			Path:   "/" + cameraName + "/" + v.id,
		}
		if ep.Username != "" {
			u.User = url.UserPassword(ep.Username, ep.Password)
		}
		streams = append(streams, Stream{ID: v.id, Name: v.name, URL: u.String()})
	}
	return streams
}
