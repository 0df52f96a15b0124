/*
Package version provides build information for mailtriage.

Values are set via ldflags during build:

	go build -ldflags "-X github.com/derek809/mailtriage/internal/version.Version=v0.3.0 \
	  -X github.com/derek809/mailtriage/internal/version.Commit=$(git rev-parse --short HEAD) \
	  -X github.com/derek809/mailtriage/internal/version.Date=$(date -u +%F)"

Without ldflags the binary reports a "dev" build.
*/
package version

// Version information (set via ldflags during build)
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Info is the build information in structured form.
type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// Get returns the current build information.
func Get() Info {
	return Info{Version: Version, Commit: Commit, Date: Date}
}

// String formats the build information for display.
func (i Info) String() string {
	if i.Version == "dev" {
		return i.Version + " (development build)"
	}
	return i.Version + " (commit: " + i.Commit + ", built: " + i.Date + ")"
}
