package relay

// StatusDomain selects which status-description table applies. Shot and
// Asset codes overlap with different meanings (e.g. "rev", "prop"), so the
// tables must stay separate.
type StatusDomain int

const (
	StatusDomainShot StatusDomain = iota
	StatusDomainAsset
)

var shotStatusLabels = map[string]string{
	"wtg":    "Waiting to Start",
	"rdy":    "Ready to Start",
	"ip":     "In Progress",
	"qc":     "Quality Control",
	"hld":    "On Hold",
	"omt":    "Omit",
	"pla":    "Plate",
	"extrev": "Pending External Review",
	"prop":   "Proposed Final",
	"rfd":    "Ready for Delivery",
	"fin":    "Final",
	"rev":    "Pending Review",
	"rc":     "Requires Changes",
}

var assetStatusLabels = map[string]string{
	"wtg":  "Waiting to Start",
	"rdy":  "Ready to Start",
	"ip":   "In Progress",
	"hld":  "On Hold",
	"omt":  "Omit",
	"ia":   "Internally Approved",
	"rev":  "Pending Review",
	"nupt": "New update",
	"rc":   "Requires Changes",
	"lib":  "Library",
	"prop": "Proposed Final",
	"qc":   "Quality Control",
	"fin":  "Final",
}

// StatusLabel maps a short status code to its human label for the given
// domain. Unknown codes pass through verbatim; the lookup never errors.
func StatusLabel(domain StatusDomain, code string) string {
	var table map[string]string
	switch domain {
	case StatusDomainAsset:
		table = assetStatusLabels
	default:
		table = shotStatusLabels
	}
	if label, ok := table[code]; ok {
		return label
	}
	return code
}
