package types

// SyncError is the stable, tool-owned error shape surfaced to callers and the
// HTTP trigger. Code values are defined in internal/utils.
type SyncError struct {
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"httpStatus,omitempty"`
	Retryable  bool                   `json:"retryable,omitempty"`
	Context    map[string]interface{} `json:"context,omitempty"`
}

// RequestType labels the kind of remote operation for logging.
type RequestType string

const (
	RequestTypeList        RequestType = "list"
	RequestTypeChanges     RequestType = "changes"
	RequestTypeDownload    RequestType = "download"
	RequestTypePermissions RequestType = "permissions"
)

// RequestContext carries per-request tracing information through the source
// adapter and retry layer.
type RequestContext struct {
	Profile         string      `json:"profile"`
	RootID          string      `json:"rootId,omitempty"`
	InvolvedItemIDs []string    `json:"involvedItemIds,omitempty"`
	RequestType     RequestType `json:"requestType"`
	TraceID         string      `json:"traceId"`
}

// OutputFormat selects how CLI results are rendered.
type OutputFormat string

const (
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatTable OutputFormat = "table"
)
