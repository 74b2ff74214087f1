package crud

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/platform/collection"
)

// HTTPError maps collection and service errors onto echo HTTP errors. The
// sentinel prefix is trimmed so clients see the field message.
func HTTPError(err error) error {
	if err == nil {
		return nil
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}

	switch {
	case errors.Is(err, collection.ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, trim(err, collection.ErrInvalid))
	case errors.Is(err, collection.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, trim(err, collection.ErrNotFound))
	case errors.Is(err, collection.ErrDuplicate):
		return echo.NewHTTPError(http.StatusConflict, trim(err, collection.ErrDuplicate))
	case errors.Is(err, collection.ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, trim(err, collection.ErrConflict))
	case errors.Is(err, collection.ErrStore):
		return echo.NewHTTPError(http.StatusInternalServerError, "store unavailable").SetInternal(err)
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
	}
}

func trim(err, sentinel error) string {
	msg := err.Error()
	if i := strings.Index(msg, sentinel.Error()+": "); i >= 0 {
		return msg[i+len(sentinel.Error())+2:]
	}
	return msg
}
