package engine

import (
	"fmt"

	"github.com/meklund/restitch/pkg/datatypes/responses"
	"github.com/meklund/restitch/pkg/sse"
)

// SequenceViolation reports a frame whose sequence number is not strictly
// greater than the last accepted one. The engine adopts the offending number
// as the new baseline and keeps going; the violation only reaches observers.
type SequenceViolation struct {
	Last int64
	Got  int64
}

func (v *SequenceViolation) Error() string {
	return fmt.Sprintf("sequence violation: got %d after %d", v.Got, v.Last)
}

// Observer receives read-only notifications about stream anomalies and
// completion. Implementations must not block; they have no influence on
// parsing.
type Observer interface {
	// OnFrameError is called when a frame's payload cannot be decoded. The
	// frame is skipped and the stream continues.
	OnFrameError(frame sse.Frame, err error)
	// OnSequenceViolation is called when a frame arrives out of order. The
	// frame is still processed.
	OnSequenceViolation(violation *SequenceViolation)
	// OnResponseCompleted is called once, with the authoritative final
	// response carried by the response.completed event.
	OnResponseCompleted(response *responses.Response)
}

// NopObserver returns an Observer that discards every notification.
func NopObserver() Observer {
	return nopObserver{}
}

type nopObserver struct{}

func (nopObserver) OnFrameError(sse.Frame, error)           {}
func (nopObserver) OnSequenceViolation(*SequenceViolation)  {}
func (nopObserver) OnResponseCompleted(*responses.Response) {}
