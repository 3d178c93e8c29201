package record

import (
	"github.com/meklund/restitch/pkg/datatypes/responses"
	"github.com/meklund/restitch/pkg/engine"
	"github.com/meklund/restitch/pkg/sse"
)

// Collector is an engine.Observer that accumulates anomalies into a
// StreamRecord. It is driven synchronously by a single engine and is not safe
// for concurrent use.
type Collector struct {
	record *StreamRecord
	final  *responses.Response
}

var _ engine.Observer = (*Collector)(nil)

func NewCollector(record *StreamRecord) *Collector {
	return &Collector{record: record}
}

// Final returns the authoritative completed response, if the stream got there.
func (c *Collector) Final() *responses.Response {
	return c.final
}

func (c *Collector) OnFrameError(frame sse.Frame, err error) {
	c.record.SkippedFrames++
	if c.record.Error == nil {
		c.record.Error = &Error{Message: err.Error(), Type: "decode_error", Source: "engine"}
	}
}

func (c *Collector) OnSequenceViolation(violation *engine.SequenceViolation) {
	c.record.Violations = append(c.record.Violations, &Violation{
		Last: violation.Last,
		Got:  violation.Got,
	})
}

func (c *Collector) OnResponseCompleted(response *responses.Response) {
	c.final = response
	c.record.Response = response
}
