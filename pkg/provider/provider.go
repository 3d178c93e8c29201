package provider

import (
	"context"
	"net/http"

	"github.com/meklund/restitch/pkg/datatypes/responses"
	"github.com/meklund/restitch/pkg/sse"
)

//go:generate go tool github.com/x5iu/defc generate --output provider_impl.go --features api/ignore-status,api/get-body,api/retry,api/gzip --func json_encode=utils.JSONEncode --func get_config=getConfig
type Provider interface {
	responseHandler() *ResponseHandler

	// CreateModelResponse POST retry=2 options(opts) {{ get_config .ctx "base_url" }}/v1/responses
	// Content-Type: application/json
	// Authorization: Bearer {{ get_config .ctx "api_key" }}
	//
	// {{ json_encode .req }}
	CreateModelResponse(
		ctx context.Context,
		req *responses.CreateModelResponseRequest,
		opts ...RequestOption,
	) (sse.FrameStream, http.Header, error)

	// GetModelResponse GET retry=1 options(opts) {{ get_config .ctx "base_url" }}/v1/responses/{{ .responseID }}
	// Authorization: Bearer {{ get_config .ctx "api_key" }}
	GetModelResponse(
		ctx context.Context,
		responseID string,
		opts ...RequestOption,
	) (*responses.Response, error)
}
