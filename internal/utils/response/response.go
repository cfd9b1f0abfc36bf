package response

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/reviewhub/media-service/internal/types"
)

type Response struct {
	Status  string      `json:"status"`
	Code    string      `json:"code,omitempty"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	return json.NewEncoder(w).Encode(data)
}

func GeneralError(err error) Response {
	return Response{
		Status: StatusError,
		Error:  err.Error(),
	}
}

func ValidationError(errs validator.ValidationErrors) Response {
	var errorMessages string
	for _, err := range errs {
		errorMessages += err.Field() + ": " + err.Tag() + "; "
	}

	return Response{
		Status: StatusError,
		Error:  errorMessages,
	}
}

func RequestOK(message string, data interface{}) Response {
	return Response{
		Status:  StatusSuccess,
		Message: message,
		Data:    data,
	}
}

// WriteError answers with the status and stable code of a pipeline error, or
// a generic 500 for anything untyped.
func WriteError(w http.ResponseWriter, err error) error {
	if ie := types.AsIngestError(err); ie != nil {
		return WriteJSON(w, ie.Status, Response{
			Status: StatusError,
			Code:   ie.Code,
			Error:  ie.Message,
		})
	}
	return WriteJSON(w, http.StatusInternalServerError, GeneralError(err))
}
