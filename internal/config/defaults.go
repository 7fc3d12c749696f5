package config

var defaultOptions = []Option{
	{Key: "host.url", Type: TypeString, Default: "ws://127.0.0.1:8765/panel", Env: "WGPANEL_HOST_URL", Help: "WebSocket URL of the host process"},
	{Key: "host.origin", Type: TypeString, Default: "null", Env: "WGPANEL_HOST_ORIGIN", Help: "Origin the panel presents to the host and the surface"},
	{Key: "transport.stdio", Type: TypeBool, Default: "false", Env: "WGPANEL_STDIO", Help: "Also exchange JSON lines on stdin/stdout (disables the terminal view)"},

	{Key: "surface.script", Type: TypeString, Env: "WGPANEL_SURFACE_SCRIPT", Help: "Map script loaded into the surface (built-in stub when empty)"},
	{Key: "surface.origin", Type: TypeString, Default: "https://azgaar.github.io", Help: "Origin of the embedded surface"},
	{Key: "surface.ready-handle", Type: TypeString, Default: "applyParameters", Help: "Global the surface defines once ready"},
	{Key: "surface.allowed-origins", Type: TypeList, Default: "*", Help: "Sender origins the injected listener accepts (* admits opaque origins)"},
	{Key: "surface.document-access", Type: TypeBool, Default: "false", Help: "Treat the surface as same-origin (direct document access)"},

	{Key: "integrator.max-retries", Type: TypeInt, Default: "5", Help: "Retries after the first injection attempt"},
	{Key: "integrator.base-delay", Type: TypeDuration, Default: "500ms", Help: "Backoff delay before the first retry"},
	{Key: "integrator.max-delay", Type: TypeDuration, Default: "8s", Help: "Backoff delay ceiling"},
	{Key: "integrator.poll-interval", Type: TypeDuration, Default: "200ms", Help: "Surface readiness polling interval"},
	{Key: "integrator.poll-timeout", Type: TypeDuration, Default: "10s", Help: "Longest wait for surface readiness per attempt"},
	{Key: "integrator.ack-timeout", Type: TypeDuration, Default: "2s", Help: "Longest wait for the listener acknowledgment"},
	{Key: "integrator.diagnostics", Type: TypeBool, Default: "true", Help: "Probe the surface origin for reachability"},

	{Key: "debounce.quiet-period", Type: TypeDuration, Default: "100ms", Help: "Quiet period before parameter edits are sent"},
	{Key: "wizard.total-steps", Type: TypeInt, Default: "0", Help: "Fixed number of wizard steps (0 follows the catalog)"},
	{Key: "catalog.file", Type: TypeString, Env: "WGPANEL_CATALOG", Help: "Step catalog used until the host sends one (YAML or JSON)"},

	{Key: "log.file", Type: TypeString, Env: "WGPANEL_LOG_FILE", Help: "JSON log file"},
	{Key: "log.level", Type: TypeString, Default: "info", Env: "WGPANEL_LOG_LEVEL", Help: "debug, info, warn or error"},
	{Key: "log.max-size-mb", Type: TypeInt, Default: "10", Help: "Log file size that triggers rotation"},
	{Key: "log.max-files", Type: TypeInt, Default: "5", Help: "Rotated log files kept"},
	{Key: "log.buffer-size", Type: TypeInt, Default: "1000", Help: "Log entries kept in memory for the view"},

	{Section: "probe", Key: "timeout", Type: TypeDuration, Default: "5s", Help: "Timeout for each connectivity probe"},
	{Section: "catalog", Key: "format", Type: TypeString, Default: "text", Help: "Output format: text, json or yaml"},
}
