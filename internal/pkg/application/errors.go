package application

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/domain"
)

var errSessionNotFound = errors.New("session not found")

type HttpErrResponse struct {
	Err            error  `json:"-"`
	HTTPStatusCode int    `json:"-"`
	ErrorText      string `json:"error"`
	Kind           string `json:"kind,omitempty"`
	Detail         string `json:"detail,omitempty"`
}

func (e *HttpErrResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

func httpErrInvalidRequest(err error) render.Renderer {
	return &HttpErrResponse{
		Err:            err,
		HTTPStatusCode: http.StatusBadRequest,
		ErrorText:      "Invalid Request",
		Detail:         err.Error(),
	}
}

//httpErr maps a component error to its response
func httpErr(err error) render.Renderer {
	var validationErr *domain.ValidationError
	var capabilityErr *domain.CapabilityError

	switch {
	case errors.As(err, &validationErr):
		return &HttpErrResponse{
			Err:            err,
			HTTPStatusCode: http.StatusBadRequest,
			ErrorText:      "Validation Failed",
			Kind:           validationErr.Kind.Error(),
			Detail:         validationErr.Message,
		}
	case errors.As(err, &capabilityErr):
		return &HttpErrResponse{
			Err:            err,
			HTTPStatusCode: http.StatusFailedDependency,
			ErrorText:      "Capability Unavailable",
			Kind:           capabilityErr.Kind.Error(),
			Detail:         capabilityErr.Reason,
		}
	case errors.Is(err, domain.ErrNoSiteSelected), errors.Is(err, domain.ErrEditorClosed), errors.Is(err, domain.ErrEditorOpen):
		return &HttpErrResponse{
			Err:            err,
			HTTPStatusCode: http.StatusConflict,
			ErrorText:      "Conflict",
			Detail:         err.Error(),
		}
	case errors.Is(err, domain.ErrSensorNotFound), errors.Is(err, domain.ErrUnknownSite), errors.Is(err, errSessionNotFound):
		return &HttpErrResponse{
			Err:            err,
			HTTPStatusCode: http.StatusNotFound,
			ErrorText:      "Not Found",
			Detail:         err.Error(),
		}
	default:
		return &HttpErrResponse{
			Err:            err,
			HTTPStatusCode: http.StatusInternalServerError,
			ErrorText:      "Internal Server Error",
		}
	}
}
