// Package urltools classifies the URLs inputs are opened from.
package urltools

import (
	"net/url"
)

// FilePath returns the local path if urlString refers to a regular file
// (a plain path or a file:// URL).
func FilePath(urlString string) (string, bool) {
	u, err := url.Parse(urlString)
	if err != nil {
		return "", false
	}
	switch u.Scheme {
	case "":
		return urlString, true
	case "file":
		if u.Path == "" {
			return u.Opaque, u.Opaque != ""
		}
		return u.Path, true
	default:
		return "", false
	}
}

// IsLive returns true if the URL is a network stream.
func IsLive(urlString string) bool {
	u, err := url.Parse(urlString)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "rtmp", "rtmps", "srt", "udp", "tcp", "http", "https", "rtsp", "rtp":
		return true
	default:
		return false
	}
}
