package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/libreria-tm/backend/internal/service"
)

// Response is the envelope of a successful reply.
type Response struct {
	Code string `json:"code"`
	Data any    `json:"data"`
}

// ErrorResponse is the envelope of a failed reply.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

const detailsKey = "show_error_details"

func ok(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, Response{Code: "OK", Data: data})
}

func created(c echo.Context, data any) error {
	return c.JSON(http.StatusCreated, Response{Code: "OK", Data: data})
}

// fail writes an error envelope. details is dropped unless the server runs
// outside production mode.
func fail(c echo.Context, status int, code, message string, details any) error {
	resp := ErrorResponse{Code: code, Message: message}
	if show, _ := c.Get(detailsKey).(bool); show && details != nil {
		if err, isErr := details.(error); isErr {
			details = err.Error()
		}
		resp.Details = details
	}
	return c.JSON(status, resp)
}

func parseIDParam(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

// serviceError maps service failures onto HTTP statuses and error codes.
func serviceError(c echo.Context, err error) error {
	var (
		validation   *service.ValidationError
		notFound     *service.NotFoundError
		insufficient *service.InsufficientStockError
		conflict     *service.ConflictError
		reused       *service.KeyReuseError
		inUse        *service.InUseError
		persistence  *service.PersistenceError
		stockUpdate  *service.StockUpdateError
	)
	switch {
	case errors.As(err, &validation):
		return fail(c, http.StatusBadRequest, "VALIDATION_ERROR", validation.Error(), nil)
	case errors.As(err, &notFound):
		return fail(c, http.StatusNotFound, "NOT_FOUND", notFound.Error(), nil)
	case errors.As(err, &insufficient):
		return fail(c, http.StatusBadRequest, "INSUFFICIENT_STOCK", insufficient.Error(), map[string]any{
			"product_id":   insufficient.ProductID,
			"product_name": insufficient.ProductName,
			"available":    insufficient.Available,
			"requested":    insufficient.Requested,
		})
	case errors.As(err, &conflict):
		return fail(c, http.StatusConflict, "IDEMPOTENCY_CONFLICT", conflict.Error(), nil)
	case errors.As(err, &reused):
		return fail(c, http.StatusUnprocessableEntity, "IDEMPOTENCY_KEY_REUSED", reused.Error(), nil)
	case errors.As(err, &inUse):
		return fail(c, http.StatusConflict, "IN_USE", inUse.Error(), nil)
	case errors.As(err, &stockUpdate):
		zap.L().Error("stock update failed", zap.Error(err))
		return fail(c, http.StatusInternalServerError, "STOCK_UPDATE_ERROR", "The stock could not be updated", err)
	case errors.As(err, &persistence):
		zap.L().Error("persistence failure", zap.String("step", persistence.Step), zap.Error(err))
		return fail(c, http.StatusInternalServerError, "PERSISTENCE_ERROR", "The sale could not be stored", err)
	default:
		zap.L().Error("request failed", zap.String("path", c.Path()), zap.Error(err))
		return fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error", err)
	}
}

// errorHandler renders echo's own errors (unknown route, bad method, panics
// caught by Recover) in the same envelope.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code := "INTERNAL_ERROR"
		switch he.Code {
		case http.StatusNotFound:
			code = "NOT_FOUND"
		case http.StatusUnauthorized:
			code = "UNAUTHORIZED"
		case http.StatusForbidden:
			code = "FORBIDDEN"
		case http.StatusBadRequest, http.StatusMethodNotAllowed, http.StatusUnsupportedMediaType, http.StatusRequestEntityTooLarge:
			code = "INVALID_REQUEST"
		}
		msg := http.StatusText(he.Code)
		if s, isStr := he.Message.(string); isStr {
			msg = s
		}
		_ = fail(c, he.Code, code, msg, he.Internal)
		return
	}
	_ = serviceError(c, err)
}
