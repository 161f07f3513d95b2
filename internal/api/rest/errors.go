package rest

import (
	"errors"
	"net/http"

	"github.com/KevinKickass/HaptiKnitConsole/internal/console"
	"github.com/KevinKickass/HaptiKnitConsole/internal/encoder"
	"github.com/KevinKickass/HaptiKnitConsole/internal/layout"
	"github.com/KevinKickass/HaptiKnitConsole/internal/monitor"
	"github.com/KevinKickass/HaptiKnitConsole/internal/placement"
	"github.com/KevinKickass/HaptiKnitConsole/internal/pressure"
	"github.com/KevinKickass/HaptiKnitConsole/internal/transport"
	"github.com/KevinKickass/HaptiKnitConsole/internal/types"
	"github.com/gin-gonic/gin"
)

// errorStatus maps domain errors onto an HTTP status and API error code.
// Order matters: the more specific sentinels come first.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, placement.ErrAlreadyConfigured):
		return http.StatusConflict, types.CodeAlreadyConfigured
	case errors.Is(err, placement.ErrInvalidCount),
		errors.Is(err, placement.ErrOutOfBounds),
		errors.Is(err, placement.ErrCellOccupied),
		errors.Is(err, placement.ErrInvalidDrag),
		errors.Is(err, console.ErrUnknownDrag),
		errors.Is(err, console.ErrUnknownActuator):
		return http.StatusBadRequest, types.CodePlacementInvalid
	case errors.Is(err, pressure.ErrOutOfRange),
		errors.Is(err, pressure.ErrNegative):
		return http.StatusUnprocessableEntity, types.CodePressureRange
	case errors.Is(err, pressure.ErrSlotIndex):
		return http.StatusBadRequest, types.CodePressureSlot
	case errors.Is(err, encoder.ErrEncodingRange):
		return http.StatusInternalServerError, types.CodeEncodingRange
	case errors.Is(err, transport.ErrChannelNotFound):
		return http.StatusInternalServerError, types.CodeChannelMissing
	case errors.Is(err, transport.ErrNotConnected):
		return http.StatusConflict, types.CodeTransportFailed
	case errors.Is(err, transport.ErrConnectInProgress):
		return http.StatusConflict, types.CodeConnectionFailed
	case errors.Is(err, transport.ErrConnection):
		return http.StatusBadGateway, types.CodeConnectionFailed
	case errors.Is(err, transport.ErrTransport):
		return http.StatusBadGateway, types.CodeTransportFailed
	case errors.Is(err, layout.ErrNotFound):
		return http.StatusNotFound, types.CodeLayoutNotFound
	case errors.Is(err, layout.ErrInvalid):
		return http.StatusUnprocessableEntity, types.CodeLayoutInvalid
	case errors.Is(err, monitor.ErrNoSample):
		return http.StatusNotFound, types.CodeNoBatterySample
	default:
		return http.StatusInternalServerError, types.CodeInternal
	}
}

func respondError(c *gin.Context, message string, err error) {
	status, code := errorStatus(err)
	c.JSON(status, types.NewErrorResponse(code, message, err.Error()))
}

func badRequest(c *gin.Context, message string, err error) {
	c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.CodeBadRequest, message, err.Error()))
}

// userMessage returns the operator-facing text for errors the console shows
// verbatim, fallback otherwise.
func userMessage(err error, fallback string) string {
	for _, known := range []error{pressure.ErrOutOfRange, pressure.ErrNegative, placement.ErrAlreadyConfigured} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return fallback
}
