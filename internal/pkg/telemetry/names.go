package telemetry

// Span names for detection tracing.
const (
	SpanDetectionCycle = "detection.cycle"
	SpanDirectoryQuery = "detection.directory_query"
	SpanPositionFetch  = "location.position_fetch"
)

// Span attribute keys.
const (
	AttrDeviceID   = "storedetect.device_id"
	AttrStoreID    = "storedetect.store_id"
	AttrConfidence = "storedetect.confidence"
	AttrMethod     = "storedetect.method"
	AttrCandidates = "storedetect.candidates"
	AttrDegraded   = "storedetect.degraded"
)
