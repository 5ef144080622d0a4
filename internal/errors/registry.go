package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
	DocURL   string
}

const docBase = "https://vango.dev/docs/roomctl/errors/"

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Configuration Errors (R100-R129)
	// ============================================

	"R100": {
		Category: CategoryConfig,
		Message:  "Invalid config file",
		Detail:   "The roomctl configuration file could not be read or parsed.",
		DocURL:   docBase + "R100",
	},
	"R101": {
		Category: CategoryConfig,
		Message:  "Missing required configuration",
		Detail:   "A required configuration value is not set.",
		DocURL:   docBase + "R101",
	},
	"R102": {
		Category: CategoryConfig,
		Message:  "Invalid room service URL",
		Detail:   "The room service URL must be an absolute ws:// or wss:// URL.",
		DocURL:   docBase + "R102",
	},
	"R103": {
		Category: CategoryConfig,
		Message:  "Invalid duration",
		Detail:   "Durations use Go syntax such as 500ms, 5s or 1m.",
		DocURL:   docBase + "R103",
	},
	"R104": {
		Category: CategoryConfig,
		Message:  "Invalid log level",
		Detail:   "The log level must be one of debug, info, warn or error.",
		DocURL:   docBase + "R104",
	},
	"R120": {
		Category: CategoryConfig,
		Message:  "Config file not found",
		Detail:   "No roomctl.json or roomctl.yaml was found.",
		DocURL:   docBase + "R120",
	},

	// ============================================
	// Connection Errors (R200-R229)
	// ============================================

	"R200": {
		Category: CategoryConnect,
		Message:  "Room join failed",
		Detail:   "The room service could not be reached or rejected the handshake.",
		DocURL:   docBase + "R200",
	},
	"R201": {
		Category: CategoryConnect,
		Message:  "Room access denied",
		Detail:   "The room service refused to let this account into the room.",
		DocURL:   docBase + "R201",
	},
	"R202": {
		Category: CategoryConnect,
		Message:  "Connect refused",
		Detail:   "The room accepted the join but refused the resource connect.",
		DocURL:   docBase + "R202",
	},
	"R203": {
		Category: CategoryConnect,
		Message:  "Call failed",
		Detail:   "The room service answered a call with an error.",
		DocURL:   docBase + "R203",
	},
	"R204": {
		Category: CategoryConnect,
		Message:  "Permission denied",
		Detail:   "The operation requires the session to own the room.",
		DocURL:   docBase + "R204",
	},

	// ============================================
	// State Errors (R300-R319)
	// ============================================

	"R300": {
		Category: CategoryState,
		Message:  "State write rejected",
		Detail:   "The room rejected the write because the state changed since it was last seen.",
		DocURL:   docBase + "R300",
	},
	"R301": {
		Category: CategoryState,
		Message:  "Invalid state value",
		Detail:   "The value must be a single JSON document.",
		DocURL:   docBase + "R301",
	},
	"R302": {
		Category: CategoryState,
		Message:  "Invalid state path",
		Detail:   "The path does not fit the shape of the room state.",
		DocURL:   docBase + "R302",
	},

	// ============================================
	// Archive Errors (R400-R419)
	// ============================================

	"R400": {
		Category: CategoryArchive,
		Message:  "Snapshot not found",
		Detail:   "No snapshot is stored under the given key.",
		DocURL:   docBase + "R400",
	},
	"R401": {
		Category: CategoryArchive,
		Message:  "Snapshot corrupt",
		Detail:   "The stored snapshot does not match its digest or cannot be decoded.",
		DocURL:   docBase + "R401",
	},
	"R402": {
		Category: CategoryArchive,
		Message:  "Archive unavailable",
		Detail:   "The snapshot bucket could not be reached.",
		DocURL:   docBase + "R402",
	},

	// ============================================
	// CLI Errors (R900-R919)
	// ============================================

	"R900": {
		Category: CategoryCLI,
		Message:  "Invalid arguments",
		Detail:   "The command was called with arguments it does not accept.",
		DocURL:   docBase + "R900",
	},
	"R901": {
		Category: CategoryCLI,
		Message:  "Config file already exists",
		Detail:   "Refusing to overwrite an existing configuration file.",
		DocURL:   docBase + "R901",
	},
}

// GetAllCodes returns all registered error codes.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}

// Register adds a new error template to the registry.
func Register(code string, template ErrorTemplate) {
	registry[code] = template
}
