package tracing

// Span attribute keys.
const (
	AttrSpecID      = "spec.id"
	AttrSpecSection = "spec.section"
	AttrPluginCount = "spec.plugin_count"
	AttrRouteCount  = "spec.route_count"

	AttrHTTPMethod = "http.method"
	AttrHTTPRoute  = "http.route"
	AttrHTTPStatus = "http.status_code"

	AttrErrorMessage = "error.message"
)

// Span names.
const (
	SpanHTTPPrefix   = "http."
	SpanLoaderInit   = "loader.init"
	SpanStoreSection = "store.section"
)
