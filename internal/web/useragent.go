package web

import "github.com/leonardcser/pse-offline/internal/buildinfo"

// UserAgent identifies requests the proxy makes on its own behalf (precache, background
// sync). Forwarded page requests keep the browser's user agent.
func UserAgent() string {
	return "pse-offline/" + buildinfo.Version + " (+https://github.com/leonardcser/pse-offline)"
}
