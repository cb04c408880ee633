// ABOUTME: Version information for the soundcard module
// ABOUTME: Reported by the CLI and used as the default application name
package version

const (
	// Version of the module
	Version = "0.3.0"
	// Product is the name reported to sound servers
	Product = "soundcard-go"
	// Manufacturer shown in version output
	Manufacturer = "Resonate Protocol"
)
