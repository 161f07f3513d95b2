package types

// Error codes returned by the console API. The numeric suffix mirrors the
// HTTP status the handler answers with.
const (
	CodeBadRequest        = "REQUEST_400"
	CodeUnauthorized      = "AUTH_401"
	CodeForbidden         = "AUTH_403"
	CodeLocked            = "AUTH_423"
	CodeConnectionFailed  = "CONNECTION_502"
	CodeTransportFailed   = "TRANSPORT_502"
	CodeChannelMissing    = "CHANNEL_500"
	CodeEncodingRange     = "ENCODING_500"
	CodeAlreadyConfigured = "PLACEMENT_409"
	CodePlacementInvalid  = "PLACEMENT_400"
	CodePressureRange     = "PRESSURE_422"
	CodePressureSlot      = "PRESSURE_400"
	CodeLayoutNotFound    = "LAYOUT_404"
	CodeNoBatterySample   = "BATTERY_404"
	CodeLayoutInvalid     = "LAYOUT_422"
	CodeInternal          = "INTERNAL_500"
)

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// NewErrorResponse builds a consistent API error payload.
// details can be string, map, struct, etc.
func NewErrorResponse(code, message string, details any) ErrorResponse {
	return ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}
