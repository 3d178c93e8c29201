package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/meklund/restitch/pkg/datatypes/responses"
	"github.com/meklund/restitch/pkg/sse"
	"github.com/meklund/restitch/pkg/utils"
)

type ResponseHandler struct {
	CurrentMethod string
	Response      *http.Response
}

var providerErrorParser = map[string]func(*http.Response) error{
	ProviderMethodCreateModelResponse: parseError[*responses.Error],
	ProviderMethodGetModelResponse:    parseError[*responses.Error],
}

func (r *ResponseHandler) ScanValues(values ...any) error {
	for _, dst := range values {
		if header, isHeader := dst.(*http.Header); isHeader {
			*header = r.Response.Header
		}
	}
	if r.Response.StatusCode/100 != 2 {
		return providerErrorParser[r.CurrentMethod](r.Response)
	}
	responseHeader := r.Response.Header
	switch r.CurrentMethod {
	case ProviderMethodCreateModelResponse:
		if !utils.IsContentType(responseHeader, "text/event-stream") {
			return fmt.Errorf("unexpected Content-Type: %s", responseHeader.Get("Content-Type"))
		}
		stream := values[0].(*sse.FrameStream)
		*stream = sse.Frames(r.Response.Body)
	default:
		defer r.Response.Body.Close()
		switch {
		case utils.IsContentType(responseHeader, "application/json"):
			jsonBody, err := io.ReadAll(r.Response.Body)
			if err != nil {
				return err
			}
			for _, dst := range values {
				if err = json.Unmarshal(jsonBody, dst); err != nil {
					return err
				}
			}
		default:
			return fmt.Errorf("unexpected Content-Type: %s", responseHeader.Get("Content-Type"))
		}
	}
	return nil
}

func (r *ResponseHandler) FromResponse(
	CurrentMethod string,
	response *http.Response,
) error {
	r.CurrentMethod = CurrentMethod
	r.Response = response
	return nil
}

func (ResponseHandler) Err() error  { return nil }
func (ResponseHandler) Break() bool { return true }

type Error interface {
	error

	Type() string
	Message() string
	Source() string

	StatusCode() int
	SetStatusCode(int)
}

func ParseError(err error) (e Error, is bool) {
	return e, errors.As(err, &e)
}

func parseError[E Error](r *http.Response) error {
	defer r.Body.Close()
	var e E
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	if utils.IsContentType(r.Header, "application/json") {
		if err = json.Unmarshal(body, &e); err != nil {
			return err
		}
		e.SetStatusCode(r.StatusCode)
		return e
	} else {
		return errors.New(string(body))
	}
}
