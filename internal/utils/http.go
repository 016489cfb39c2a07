package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aristath/backtester/internal/domain"
	"github.com/vmihailenco/msgpack/v5"
)

// ContentTypeMsgpack is negotiated through the Accept header
const ContentTypeMsgpack = "application/msgpack"

// ErrEncodeResponse is returned by WriteResponse when nothing has been written yet
var ErrEncodeResponse = errors.New("failed to encode response")

// ErrorStatus maps domain errors onto HTTP status codes
func ErrorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrDivisionByZero), errors.Is(err, domain.ErrUndefinedResult):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrSeriesNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// WantsMsgpack reports whether the client asked for a MessagePack body
func WantsMsgpack(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mediaType := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		if strings.EqualFold(mediaType, ContentTypeMsgpack) || strings.EqualFold(mediaType, "application/x-msgpack") {
			return true
		}
	}
	return false
}

// WriteResponse encodes data as MessagePack when requested, JSON otherwise.
// The status is only written once the body has been encoded.
func WriteResponse(w http.ResponseWriter, r *http.Request, status int, data interface{}) error {
	contentType := "application/json"
	var body []byte
	var err error
	if WantsMsgpack(r) {
		contentType = ContentTypeMsgpack
		body, err = msgpack.Marshal(data)
	} else {
		body, err = json.Marshal(data)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEncodeResponse, err)
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_, err = w.Write(body)
	return err
}
