// Package record captures per-request stream reconstruction records for
// offline inspection: what was asked, what came back, and every anomaly the
// engine observed along the way.
package record

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/meklund/restitch/pkg/datatypes/responses"
)

type Sink interface {
	io.Closer
	Record(record *StreamRecord) error
}

func NopSink() Sink {
	return nopSink{}
}

type nopSink struct{}

func (nopSink) Close() error                      { return nil }
func (nopSink) Record(record *StreamRecord) error { return nil }

// StreamRecord is one reconstructed stream's worth of bookkeeping. Observers
// fill the counters, the serve handler fills the rest.
type StreamRecord struct {
	RequestTime    time.Time                             `json:"request_time"`
	FinishTime     time.Time                             `json:"finish_time"`
	Version        string                                `json:"version"`
	RequestID      string                                `json:"request_id"`
	StatusCode     int                                   `json:"status_code"`
	Profile        string                                `json:"profile,omitempty"`
	Model          string                                `json:"model,omitempty"`
	Snapshots      int                                   `json:"snapshots"`
	SkippedFrames  int                                   `json:"skipped_frames"`
	Violations     []*Violation                          `json:"violations,omitempty"`
	Error          *Error                                `json:"error,omitempty"`
	Request        *responses.CreateModelResponseRequest `json:"request,omitempty"`
	Response       *responses.Response                   `json:"response,omitempty"`
	RequestHeader  Header                                `json:"request_header,omitempty"`
	ResponseHeader Header                                `json:"response_header,omitempty"`
}

// Violation mirrors an out-of-order sequence number observation.
type Violation struct {
	Last int64 `json:"last"`
	Got  int64 `json:"got"`
}

type Error struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
	Source  string `json:"source,omitempty"`
}

type Header http.Header

func (h Header) MarshalJSON() ([]byte, error) {
	x := make(map[string]any, len(h))
	for k, vv := range h {
		switch len(vv) {
		case 0:
			continue
		case 1:
			x[k] = vv[0]
		default:
			x[k] = vv
		}
	}
	return json.Marshal(x)
}
