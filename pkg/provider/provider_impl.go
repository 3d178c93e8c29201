// Code generated by defc, DO NOT EDIT.

package provider

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/textproto"
	"strings"
	"text/template"

	"github.com/meklund/restitch/pkg/datatypes/responses"
	"github.com/meklund/restitch/pkg/sse"
	"github.com/meklund/restitch/pkg/utils"
	__rt "github.com/x5iu/defc/runtime"
)

const (
	ProviderMethodCreateModelResponse = "CreateModelResponse"
	ProviderMethodGetModelResponse    = "GetModelResponse"
)

func NewProvider() Provider {
	return &implProvider{}
}

type implProvider struct{}

var (
	addrProviderTmplCreateModelResponse   = template.Must(template.New("AddressCreateModelResponse").Funcs(template.FuncMap{"get_config": getConfig, "json_encode": utils.JSONEncode}).Parse("{{ get_config .ctx \"base_url\" }}/v1/responses"))
	headerProviderTmplCreateModelResponse = template.Must(template.New("HeaderCreateModelResponse").Funcs(template.FuncMap{"get_config": getConfig, "json_encode": utils.JSONEncode}).Parse("Content-Type: application/json\r\nAuthorization: Bearer {{ get_config .ctx \"api_key\" }}\r\n\r\n{{ json_encode .req }}"))
	addrProviderTmplGetModelResponse      = template.Must(template.New("AddressGetModelResponse").Funcs(template.FuncMap{"get_config": getConfig, "json_encode": utils.JSONEncode}).Parse("{{ get_config .ctx \"base_url\" }}/v1/responses/{{ .responseID }}"))
	headerProviderTmplGetModelResponse    = template.Must(template.New("HeaderGetModelResponse").Funcs(template.FuncMap{"get_config": getConfig, "json_encode": utils.JSONEncode}).Parse("Authorization: Bearer {{ get_config .ctx \"api_key\" }}\r\n\r\n"))
)

func (*implProvider) responseHandler() *ResponseHandler {
	return new(ResponseHandler)
}

func (__imp *implProvider) CreateModelResponse(ctx context.Context, req *responses.CreateModelResponseRequest, opts ...RequestOption) (sse.FrameStream, http.Header, error) {
	__maxRetry := 2

	__retryCount := 0
__RETRY:
	var (
		v0CreateModelResponse  sse.FrameStream
		v1CreateModelResponse  http.Header
		errCreateModelResponse error
	)

	v0CreateModelResponse, v1CreateModelResponse, errCreateModelResponse = __imp.__CreateModelResponse(ctx, req, opts...)
	if errCreateModelResponse != nil {
		if __retryCount < __maxRetry {
			if __getResponse, ok := errCreateModelResponse.(__rt.FutureResponseError); ok {
				__getResponse.Response().Body.Close()
			}
			__retryCount++
			goto __RETRY
		}
	}
	return v0CreateModelResponse, v1CreateModelResponse, errCreateModelResponse
}

func (__imp *implProvider) __CreateModelResponse(ctx context.Context, req *responses.CreateModelResponseRequest, opts ...RequestOption) (sse.FrameStream, http.Header, error) {

	addrCreateModelResponse := __rt.GetBuffer()
	defer __rt.PutBuffer(addrCreateModelResponse)
	defer addrCreateModelResponse.Reset()

	headerCreateModelResponse := __rt.GetBuffer()
	defer __rt.PutBuffer(headerCreateModelResponse)
	defer headerCreateModelResponse.Reset()

	var (
		v0CreateModelResponse = __rt.New[sse.FrameStream]()
		v1CreateModelResponse = __rt.New[http.Header]()
	)

	var (
		errCreateModelResponse          error
		httpResponseCreateModelResponse *http.Response
		responseCreateModelResponse     __rt.FutureResponse = __imp.responseHandler()
	)

	if errCreateModelResponse = addrProviderTmplCreateModelResponse.Execute(addrCreateModelResponse, map[string]any{
		"ctx":  ctx,
		"req":  req,
		"opts": opts,
	}); errCreateModelResponse != nil {
		return v0CreateModelResponse, v1CreateModelResponse, fmt.Errorf("error building 'CreateModelResponse' url: %w", errCreateModelResponse)
	}

	if errCreateModelResponse = headerProviderTmplCreateModelResponse.Execute(headerCreateModelResponse, map[string]any{
		"ctx":  ctx,
		"req":  req,
		"opts": opts,
	}); errCreateModelResponse != nil {
		return v0CreateModelResponse, v1CreateModelResponse, fmt.Errorf("error building 'CreateModelResponse' header: %w", errCreateModelResponse)
	}
	bufReaderCreateModelResponse := bufio.NewReader(headerCreateModelResponse)
	mimeHeaderCreateModelResponse, errCreateModelResponse := textproto.NewReader(bufReaderCreateModelResponse).ReadMIMEHeader()
	if errCreateModelResponse != nil {
		return v0CreateModelResponse, v1CreateModelResponse, fmt.Errorf("error reading 'CreateModelResponse' header: %w", errCreateModelResponse)
	}

	urlCreateModelResponse := addrCreateModelResponse.String()
	requestBodyCreateModelResponse, errCreateModelResponse := io.ReadAll(bufReaderCreateModelResponse)
	if errCreateModelResponse != nil {
		return v0CreateModelResponse, v1CreateModelResponse, fmt.Errorf("error reading 'CreateModelResponse' request body: %w", errCreateModelResponse)
	}
	requestCreateModelResponse, errCreateModelResponse := http.NewRequestWithContext(ctx, "POST", urlCreateModelResponse, bytes.NewReader(requestBodyCreateModelResponse))
	if errCreateModelResponse != nil {
		return v0CreateModelResponse, v1CreateModelResponse, fmt.Errorf("error building 'CreateModelResponse' request: %w", errCreateModelResponse)
	}

	for kCreateModelResponse, vvCreateModelResponse := range mimeHeaderCreateModelResponse {
		for _, vCreateModelResponse := range vvCreateModelResponse {
			requestCreateModelResponse.Header.Add(kCreateModelResponse, vCreateModelResponse)
		}
	}

	requestCreateModelResponse.Header.Add("Accept-Encoding", "gzip")

	for _, opt := range opts {
		if opt != nil {
			opt(requestCreateModelResponse)
		}
	}

	httpResponseCreateModelResponse, errCreateModelResponse = http.DefaultClient.Do(requestCreateModelResponse)

	if errCreateModelResponse != nil {
		return v0CreateModelResponse, v1CreateModelResponse, fmt.Errorf("error sending 'CreateModelResponse' request: %w", errCreateModelResponse)
	}

	func() {
		for _, contentEncoding := range httpResponseCreateModelResponse.Header.Values("Content-Encoding") {
			if commaIndex := strings.IndexByte(contentEncoding, ','); commaIndex >= 0 {
				contentEncoding = contentEncoding[:commaIndex]
			}
			if strings.TrimSpace(contentEncoding) == "gzip" {
				httpResponseCreateModelResponse.Body = &__rt.GzipReadCloser{R: httpResponseCreateModelResponse.Body}
				return
			}
		}
	}()

	if errCreateModelResponse = responseCreateModelResponse.FromResponse("CreateModelResponse", httpResponseCreateModelResponse); errCreateModelResponse != nil {
		return v0CreateModelResponse, v1CreateModelResponse, fmt.Errorf("error converting 'CreateModelResponse' response: %w", errCreateModelResponse)
	}

	addrCreateModelResponse.Reset()
	headerCreateModelResponse.Reset()

	if errCreateModelResponse = responseCreateModelResponse.Err(); errCreateModelResponse != nil {
		return v0CreateModelResponse, v1CreateModelResponse, fmt.Errorf("error returned from 'CreateModelResponse' response: %w", errCreateModelResponse)
	}

	if errCreateModelResponse = responseCreateModelResponse.ScanValues(&v0CreateModelResponse, &v1CreateModelResponse); errCreateModelResponse != nil {
		return v0CreateModelResponse, v1CreateModelResponse, fmt.Errorf("error scanning value from 'CreateModelResponse' response: %w", errCreateModelResponse)
	}

	return v0CreateModelResponse, v1CreateModelResponse, nil
}

func (__imp *implProvider) GetModelResponse(ctx context.Context, responseID string, opts ...RequestOption) (*responses.Response, error) {
	__maxRetry := 1

	__retryCount := 0
__RETRY:
	var (
		v0GetModelResponse  *responses.Response
		errGetModelResponse error
	)

	v0GetModelResponse, errGetModelResponse = __imp.__GetModelResponse(ctx, responseID, opts...)
	if errGetModelResponse != nil {
		if __retryCount < __maxRetry {
			if __getResponse, ok := errGetModelResponse.(__rt.FutureResponseError); ok {
				__getResponse.Response().Body.Close()
			}
			__retryCount++
			goto __RETRY
		}
	}
	return v0GetModelResponse, errGetModelResponse
}

func (__imp *implProvider) __GetModelResponse(ctx context.Context, responseID string, opts ...RequestOption) (*responses.Response, error) {

	addrGetModelResponse := __rt.GetBuffer()
	defer __rt.PutBuffer(addrGetModelResponse)
	defer addrGetModelResponse.Reset()

	headerGetModelResponse := __rt.GetBuffer()
	defer __rt.PutBuffer(headerGetModelResponse)
	defer headerGetModelResponse.Reset()

	var (
		v0GetModelResponse = new(responses.Response)
	)

	var (
		errGetModelResponse          error
		httpResponseGetModelResponse *http.Response
		responseGetModelResponse     __rt.FutureResponse = __imp.responseHandler()
	)

	if errGetModelResponse = addrProviderTmplGetModelResponse.Execute(addrGetModelResponse, map[string]any{
		"ctx":        ctx,
		"responseID": responseID,
		"opts":       opts,
	}); errGetModelResponse != nil {
		return v0GetModelResponse, fmt.Errorf("error building 'GetModelResponse' url: %w", errGetModelResponse)
	}

	if errGetModelResponse = headerProviderTmplGetModelResponse.Execute(headerGetModelResponse, map[string]any{
		"ctx":        ctx,
		"responseID": responseID,
		"opts":       opts,
	}); errGetModelResponse != nil {
		return v0GetModelResponse, fmt.Errorf("error building 'GetModelResponse' header: %w", errGetModelResponse)
	}
	bufReaderGetModelResponse := bufio.NewReader(headerGetModelResponse)
	mimeHeaderGetModelResponse, errGetModelResponse := textproto.NewReader(bufReaderGetModelResponse).ReadMIMEHeader()
	if errGetModelResponse != nil {
		return v0GetModelResponse, fmt.Errorf("error reading 'GetModelResponse' header: %w", errGetModelResponse)
	}

	urlGetModelResponse := addrGetModelResponse.String()
	requestGetModelResponse, errGetModelResponse := http.NewRequestWithContext(ctx, "GET", urlGetModelResponse, http.NoBody)
	if errGetModelResponse != nil {
		return v0GetModelResponse, fmt.Errorf("error building 'GetModelResponse' request: %w", errGetModelResponse)
	}

	for kGetModelResponse, vvGetModelResponse := range mimeHeaderGetModelResponse {
		for _, vGetModelResponse := range vvGetModelResponse {
			requestGetModelResponse.Header.Add(kGetModelResponse, vGetModelResponse)
		}
	}

	requestGetModelResponse.Header.Add("Accept-Encoding", "gzip")

	for _, opt := range opts {
		if opt != nil {
			opt(requestGetModelResponse)
		}
	}

	httpResponseGetModelResponse, errGetModelResponse = http.DefaultClient.Do(requestGetModelResponse)

	if errGetModelResponse != nil {
		return v0GetModelResponse, fmt.Errorf("error sending 'GetModelResponse' request: %w", errGetModelResponse)
	}

	func() {
		for _, contentEncoding := range httpResponseGetModelResponse.Header.Values("Content-Encoding") {
			if commaIndex := strings.IndexByte(contentEncoding, ','); commaIndex >= 0 {
				contentEncoding = contentEncoding[:commaIndex]
			}
			if strings.TrimSpace(contentEncoding) == "gzip" {
				httpResponseGetModelResponse.Body = &__rt.GzipReadCloser{R: httpResponseGetModelResponse.Body}
				return
			}
		}
	}()

	if errGetModelResponse = responseGetModelResponse.FromResponse("GetModelResponse", httpResponseGetModelResponse); errGetModelResponse != nil {
		return v0GetModelResponse, fmt.Errorf("error converting 'GetModelResponse' response: %w", errGetModelResponse)
	}

	addrGetModelResponse.Reset()
	headerGetModelResponse.Reset()

	if errGetModelResponse = responseGetModelResponse.Err(); errGetModelResponse != nil {
		return v0GetModelResponse, fmt.Errorf("error returned from 'GetModelResponse' response: %w", errGetModelResponse)
	}

	if errGetModelResponse = responseGetModelResponse.ScanValues(v0GetModelResponse); errGetModelResponse != nil {
		return v0GetModelResponse, fmt.Errorf("error scanning value from 'GetModelResponse' response: %w", errGetModelResponse)
	}

	return v0GetModelResponse, nil
}
