package api

import (
	"errors"
	"net/http"

	"github.com/fidde/kodama/pkg/models"
)

// Stable error codes returned in ErrorResponse.Code.
const (
	CodeBadRequest         uint16 = 10000
	CodeInvalidProjectName uint16 = 10001
	CodeInvalidServiceName uint16 = 10002
	CodeProjectNotFound    uint16 = 10003
	CodeServiceNotFound    uint16 = 10004
	CodeInvalidTimestamp   uint16 = 10005
	CodeRecordNotFound     uint16 = 10006
	CodeAlreadyExists      uint16 = 10007
	CodeInternal           uint16 = 10099
)

// classify maps a storage error to a status, code and message. Internal
// errors never reach the response text.
func classify(err error) (int, uint16, string) {
	var nf *models.NotFoundError
	switch {
	case errors.As(err, &nf):
		switch nf.Kind {
		case models.KindProject:
			return http.StatusNotFound, CodeProjectNotFound, nf.Error()
		case models.KindService:
			return http.StatusNotFound, CodeServiceNotFound, nf.Error()
		default:
			return http.StatusNotFound, CodeRecordNotFound, nf.Error()
		}
	case errors.Is(err, models.ErrAlreadyExists):
		return http.StatusConflict, CodeAlreadyExists, "already exists"
	case errors.Is(err, models.ErrInvalidName):
		return http.StatusBadRequest, CodeBadRequest, err.Error()
	case errors.Is(err, models.ErrInvalidTimestamp):
		return http.StatusBadRequest, CodeInvalidTimestamp, "invalid timestamp"
	default:
		return http.StatusInternalServerError, CodeInternal, "internal error"
	}
}
