// Package provision contains the shared pieces of the BLE provisioning
// daemon: configuration handling and the event loop that serializes all
// GATT and provisioning state changes.
package provision

var (
	// Version is the daemon version, embedded at build time.
	Version = ""
	// GitRevision is the git revision, embedded at build time.
	GitRevision = ""
)

// GetVersion returns the version embedded at build time.
func GetVersion() string {
	if Version == "" {
		return "custom"
	}
	return Version
}

// GetRevision returns the git revision embedded at build time.
func GetRevision() string {
	if GitRevision == "" {
		return "unknown"
	}
	return GitRevision
}
