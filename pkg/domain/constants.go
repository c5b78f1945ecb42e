package domain

// Defaults shared by adapters and configuration.
const (
	// DefaultBranch is used when a build request does not name a branch.
	DefaultBranch = "main"

	// DefaultRuntimePort is the ADS port of the first PLC runtime.
	DefaultRuntimePort = 851

	// DefaultRouterPort is the TCP port of the ADS router on a target.
	DefaultRouterPort = 48898
)
