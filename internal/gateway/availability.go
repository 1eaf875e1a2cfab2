package gateway

// Availability is the generation engine's readiness as shown to the user.
type Availability int

const (
	AvailabilityUnavailable   Availability = iota // host unreachable, or model missing and not pullable
	AvailabilityChecking                          // probe in flight
	AvailabilityReady                             // model present
	AvailabilityNeedsDownload                     // host can pull the model
	AvailabilityDownloading                       // pull in progress
	AvailabilityCheckingError                     // probe failed unexpectedly
)

var availabilityNames = map[Availability]string{
	AvailabilityUnavailable:   "unavailable",
	AvailabilityChecking:      "checking",
	AvailabilityReady:         "available",
	AvailabilityNeedsDownload: "downloadable",
	AvailabilityDownloading:   "downloading",
	AvailabilityCheckingError: "error",
}

func (a Availability) String() string {
	if s, ok := availabilityNames[a]; ok {
		return s
	}
	return "unknown"
}

// MarshalText encodes the availability by name.
func (a Availability) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// Label is the status line shown next to the engine controls.
func (a Availability) Label() string {
	switch a {
	case AvailabilityReady:
		return "AI engine ready"
	case AvailabilityDownloading:
		return "Downloading resources"
	case AvailabilityNeedsDownload:
		return "Preparing AI engine…"
	case AvailabilityChecking:
		return "Checking AI engine…"
	case AvailabilityCheckingError:
		return "We couldn't initialise the AI engine. Refresh to try again."
	default:
		return "AI engine unavailable on this host."
	}
}

// Usable reports whether a session can be started, possibly after a download.
func (a Availability) Usable() bool {
	return a == AvailabilityReady || a == AvailabilityNeedsDownload || a == AvailabilityDownloading
}
