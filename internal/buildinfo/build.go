// Build information, overridable at link time:
//
//	go build -ldflags "-X github.com/leonardcser/pse-offline/internal/buildinfo.Commit=$(git rev-parse HEAD)"
package buildinfo

import "time"

var (
	Version   = "v0.3.0"
	Commit    string
	BuildTime string
	StartTime time.Time
)

func init() {
	StartTime = time.Now()

	// If build info is not set, make that clear.
	if Commit == "" {
		Commit = "unknown"
	}
	if BuildTime == "" {
		BuildTime = "unknown"
	}
}
