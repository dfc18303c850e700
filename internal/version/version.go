package version

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// Info is the build identity reported by /api/version.
type Info struct {
	Version   string `json:"version"`
	GitSHA    string `json:"git_sha"`
	BuildTime string `json:"build_time"`
}

// Get returns the build identity.
func Get() Info {
	return Info{Version: Version, GitSHA: GitSHA, BuildTime: BuildTime}
}

// String formats the build identity for startup logs.
func (i Info) String() string {
	return i.Version + " (" + i.GitSHA + ", built " + i.BuildTime + ")"
}
