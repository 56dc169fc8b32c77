package handler

import (
	"errors"
	"net/http"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/stockroom/internal/core/domain"
	"github.com/rl1809/stockroom/internal/core/service"
)

type ErrorResponse struct {
	Error      string `json:"error"`
	Code       string `json:"code"`
	RequestID  string `json:"request_id,omitempty"`
	FailedStep string `json:"failed_step,omitempty"`
	Debited    bool   `json:"debited,omitempty"`
}

func httpStatusOf(err error) int {
	switch domain.KindOf(err) {
	case domain.ErrInvalidArgument:
		return http.StatusBadRequest
	case domain.ErrNotFound:
		return http.StatusNotFound
	case domain.ErrCapacityExceeded, domain.ErrStateConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// grpcError converts an engine error into a gRPC status error.
func grpcError(err error) error {
	if err == nil {
		return nil
	}
	var c codes.Code
	switch domain.KindOf(err) {
	case domain.ErrInvalidArgument:
		c = codes.InvalidArgument
	case domain.ErrNotFound:
		c = codes.NotFound
	case domain.ErrCapacityExceeded:
		c = codes.ResourceExhausted
	case domain.ErrStateConflict:
		c = codes.FailedPrecondition
		if errors.Is(err, service.ErrDuplicateRequest) {
			c = codes.AlreadyExists
		}
	default:
		return status.Error(codes.Internal, "internal error")
	}
	return status.Error(c, err.Error())
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	h.writeErrorResponse(w, r, err, ErrorResponse{})
}

func (h *HTTPHandler) writeErrorResponse(w http.ResponseWriter, r *http.Request, err error, resp ErrorResponse) {
	code := httpStatusOf(err)
	resp.Code = domain.CodeOf(err)
	resp.RequestID = requestIDFrom(r.Context())
	resp.Error = err.Error()
	if code == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("request_id", resp.RequestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		resp.Error = "internal error"
	}
	writeJSON(w, code, resp)
}
