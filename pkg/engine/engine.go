// Package engine reconstructs a chunked Responses-API event stream into a
// sequence of structured response snapshots. One Engine services exactly one
// logical stream: it owns the per-item state table and the sequence baseline,
// and must not be fed concurrently.
package engine

import (
	"fmt"
	"io"
	"iter"
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/meklund/restitch/pkg/datatypes/responses"
	"github.com/meklund/restitch/pkg/sse"
)

// Outcome is the per-frame result. Exactly one of Snapshot, Skipped or Fatal
// is meaningful: a snapshot for every decoded frame, a skip reason for frames
// the decoder rejected, a fatal error when the producer declared the stream
// failed. Violation is set alongside Snapshot when the frame was accepted out
// of order.
type Outcome struct {
	Snapshot  *responses.Response
	Skipped   error
	Fatal     error
	Violation *SequenceViolation
}

type Option func(*Engine)

// WithObserver registers the hook receiving decode errors, sequence
// violations and the completion notification.
func WithObserver(observer Observer) Option {
	return func(e *Engine) {
		if observer != nil {
			e.observer = observer
		}
	}
}

// New constructs an engine for a single stream. Restart means constructing a
// fresh engine; there is no rewind.
func New(options ...Option) *Engine {
	e := &Engine{
		reader:   new(sse.Reader),
		observer: NopObserver(),
		states:   make(map[string]*itemState),
	}
	for _, applyOption := range options {
		applyOption(e)
	}
	return e
}

type Engine struct {
	reader   *sse.Reader
	observer Observer

	states map[string]*itemState
	order  []*itemState

	seenSeq bool
	lastSeq int64

	id        string
	object    string
	model     string
	createdAt int64
	status    responses.ResponseStatus
	usage     *responses.Usage
	final     *responses.Response
}

// itemState tracks one output item across added -> streaming -> done. Owned
// exclusively by the engine; consumers only ever see snapshots.
type itemState struct {
	id          string
	outputIndex int
	kind        responses.ItemType
	role        string
	status      string
	name        string
	callID      string
	arguments   string
	done        bool
	accumulated strings.Builder
	lastPart    *responses.ContentPart
}

// Feed consumes one transport chunk and lazily yields one outcome per frame
// the chunk completed. Incomplete trailing data stays buffered for the next
// call.
func (e *Engine) Feed(chunk []byte) iter.Seq[*Outcome] {
	frames := e.reader.Feed(chunk)
	return func(yield func(*Outcome) bool) {
		for _, frame := range frames {
			if !yield(e.processFrame(frame)) {
				return
			}
		}
	}
}

// Close flushes an unterminated trailing frame, if any. Tolerated rather than
// rejected: producers routinely drop the connection right after the last
// payload.
func (e *Engine) Close() *Outcome {
	if frame, ok := e.reader.Close(); ok {
		return e.processFrame(frame)
	}
	return nil
}

// Final returns the authoritative response carried by response.completed, or
// nil while the stream is still in flight.
func (e *Engine) Final() *responses.Response {
	return e.final
}

// Run drives a whole frame sequence through the engine, emitting one snapshot
// per well-formed frame. Skipped frames are reported to the observer and
// omitted; transport failures and producer-declared errors terminate the
// sequence through the error slot.
func (e *Engine) Run(frames sse.FrameStream) responses.ResponseStream {
	return func(yield func(*responses.Response, error) bool) {
		for frame, err := range frames {
			if err != nil {
				yield(nil, err)
				return
			}
			outcome := e.processFrame(frame)
			if outcome.Fatal != nil {
				yield(nil, outcome.Fatal)
				return
			}
			if outcome.Skipped != nil {
				continue
			}
			if !yield(outcome.Snapshot, nil) {
				return
			}
		}
	}
}

// Reconstruct wires a raw byte source straight into a snapshot stream,
// closing body when the sequence ends.
func Reconstruct(body io.ReadCloser, options ...Option) responses.ResponseStream {
	return New(options...).Run(sse.Frames(body))
}

func (e *Engine) processFrame(frame sse.Frame) *Outcome {
	event, err := responses.DecodeEvent([]byte(frame.Data))
	if err != nil {
		e.observer.OnFrameError(frame, err)
		return &Outcome{Skipped: err}
	}
	outcome := &Outcome{}
	outcome.Violation = e.guardSequence(event.SequenceNumber())
	switch ev := event.(type) {
	case *responses.EventResponse:
		e.applyResponse(ev)
	case *responses.EventOutputItem:
		e.applyOutputItem(ev)
	case *responses.EventContentPart:
		e.applyContentPart(ev)
	case *responses.EventDelta:
		e.applyDelta(ev)
	case *responses.EventOutputTextDone:
		e.applyLifecycle(ev.ItemID, ev.OutputIndex, ev.ContentIndex)
	case *responses.EventFunctionCallArgumentsDone:
		e.applyArgumentsDone(ev)
	case *responses.EventStreamError:
		e.status = responses.ResponseStatusFailed
		outcome.Fatal = fmt.Errorf("stream error event: %s", ev.Message)
		return outcome
	case *responses.EventUnknown:
		// Forward compatibility: unknown kinds stay silent. With an item
		// reference they contribute a status part, otherwise they change
		// nothing beyond the sequence baseline.
		if ev.ItemID != "" {
			e.applyLifecycle(ev.ItemID, ev.OutputIndex, 0)
		}
	}
	outcome.Snapshot = e.snapshot()
	return outcome
}

// guardSequence enforces strictly increasing sequence numbers. A violation is
// reported, the offending number becomes the new baseline, and processing
// continues: the service is authoritative and a hiccup should not kill a
// long-running stream.
func (e *Engine) guardSequence(seq int64) *SequenceViolation {
	defer func() {
		e.seenSeq = true
		e.lastSeq = seq
	}()
	if e.seenSeq && seq <= e.lastSeq {
		violation := &SequenceViolation{Last: e.lastSeq, Got: seq}
		e.observer.OnSequenceViolation(violation)
		return violation
	}
	return nil
}

func (e *Engine) applyResponse(ev *responses.EventResponse) {
	if resp := ev.Response; resp != nil {
		if resp.ID != "" {
			e.id = resp.ID
		}
		if resp.Object != "" {
			e.object = resp.Object
		}
		if resp.Model != "" {
			e.model = resp.Model
		}
		if resp.CreatedAt != 0 {
			e.createdAt = resp.CreatedAt
		}
		if resp.Status != "" {
			e.status = resp.Status
		}
		if resp.Usage != nil {
			e.usage = resp.Usage
		}
		if ev.Type == responses.EventTypeResponseCompleted {
			e.final = resp
			e.fillArguments(resp)
			e.observer.OnResponseCompleted(resp)
		}
	}
}

func (e *Engine) applyOutputItem(ev *responses.EventOutputItem) {
	item := ev.Item
	if item == nil {
		return
	}
	st := e.state(item.ID, ev.OutputIndex)
	if item.Type != "" {
		st.kind = item.Type
	}
	if item.Role != "" {
		st.role = item.Role
	}
	if item.Status != "" {
		st.status = item.Status
	}
	if item.Name != "" {
		st.name = item.Name
	}
	if item.CallID != "" {
		st.callID = item.CallID
	}
	if item.Arguments != "" {
		st.arguments = item.Arguments
	}
	if ev.Type == responses.EventTypeOutputItemDone {
		st.done = true
		if st.kind == responses.ItemTypeFunctionCall && st.arguments == "" {
			// completion synthesis: the wire item came without arguments,
			// reassemble them from the accumulated deltas
			st.arguments = st.accumulated.String()
		}
	}
	st.lastPart = &responses.ContentPart{
		Type: classifyItemKind(st.kind),
		Text: "",
	}
}

// classifyItemKind maps a lifecycle event's item type to the emitted content
// kind. Lifecycle events never carry displayable text; reasoning items are
// surfaced as reasoning, function calls and unknown kinds as status so
// structural noise can never be mistaken for generated content.
func classifyItemKind(kind responses.ItemType) responses.ContentType {
	switch kind {
	case responses.ItemTypeReasoning:
		return responses.ContentTypeReasoning
	case responses.ItemTypeFunctionCall, "":
		return responses.ContentTypeStatus
	default:
		return responses.ContentType(kind)
	}
}

func (e *Engine) applyContentPart(ev *responses.EventContentPart) {
	st := e.state(ev.ItemID, ev.OutputIndex)
	if ev.Type == responses.EventTypeContentPartDone {
		st.done = true
	}
	st.lastPart = &responses.ContentPart{
		Type:  responses.ContentTypeStatus,
		Text:  "",
		Index: ev.ContentIndex,
	}
}

// applyLifecycle handles the residual bookkeeping family (*.done text events,
// unknown item-scoped kinds): a status part, nothing displayable.
func (e *Engine) applyLifecycle(itemID string, outputIndex, contentIndex int) {
	st := e.state(itemID, outputIndex)
	st.lastPart = &responses.ContentPart{
		Type:  responses.ContentTypeStatus,
		Text:  "",
		Index: contentIndex,
	}
}

func (e *Engine) applyDelta(ev *responses.EventDelta) {
	st := e.state(ev.ItemID, ev.OutputIndex)
	if st.done {
		// duplicate completion race, absorb silently
		return
	}
	if st.kind == "" && ev.Type == responses.EventTypeFunctionCallArgumentsDelta {
		st.kind = responses.ItemTypeFunctionCall
	}
	st.accumulated.WriteString(ev.Delta)
	// Argument deltas classify as text too, so consumers can accumulate call
	// arguments the same way they accumulate prose; the owning item keeps its
	// structural function_call kind.
	st.lastPart = &responses.ContentPart{
		Type:  responses.ContentTypeText,
		Text:  ev.Delta,
		Index: ev.ContentIndex,
	}
}

func (e *Engine) applyArgumentsDone(ev *responses.EventFunctionCallArgumentsDone) {
	st := e.state(ev.ItemID, ev.OutputIndex)
	if ev.Arguments != "" {
		st.arguments = ev.Arguments
	}
	st.lastPart = &responses.ContentPart{
		Type: responses.ContentTypeStatus,
		Text: "",
	}
}

// state fetches or creates the tracking entry for an item. Items are keyed by
// item_id with output_index as the fallback, so a delta arriving before its
// output_item.added still lands somewhere; when the added event later brings
// the real id for that index, the placeholder is adopted rather than
// duplicated.
func (e *Engine) state(itemID string, outputIndex int) *itemState {
	key := itemID
	if key == "" {
		key = indexKey(outputIndex)
	}
	if st, ok := e.states[key]; ok {
		return st
	}
	if itemID != "" {
		if st, ok := e.states[indexKey(outputIndex)]; ok && st.id == "" {
			st.id = itemID
			delete(e.states, indexKey(outputIndex))
			e.states[key] = st
			return st
		}
	}
	st := &itemState{id: itemID, outputIndex: outputIndex}
	e.states[key] = st
	e.order = append(e.order, st)
	return st
}

func indexKey(outputIndex int) string {
	return fmt.Sprintf("idx:%d", outputIndex)
}

// fillArguments backfills reassembled function-call arguments into a final
// response whose producer left them empty. The explicit arguments from a done
// event win over the delta concatenation.
func (e *Engine) fillArguments(resp *responses.Response) {
	for _, item := range resp.Output {
		if item.Type != responses.ItemTypeFunctionCall || item.Arguments != "" {
			continue
		}
		for _, st := range e.order {
			if st.id != item.ID {
				continue
			}
			if st.arguments != "" {
				item.Arguments = st.arguments
			} else {
				item.Arguments = st.accumulated.String()
			}
			break
		}
	}
}

// snapshot builds a fresh immutable response value reflecting cumulative
// state: carried-forward identity and usage, plus every item observed so far
// ordered by output_index, each with its latest-known single content part.
func (e *Engine) snapshot() *responses.Response {
	ordered := slices.Clone(e.order)
	slices.SortStableFunc(ordered, func(a, b *itemState) int {
		return a.outputIndex - b.outputIndex
	})
	resp := &responses.Response{
		ID:        e.id,
		Object:    e.object,
		Model:     e.model,
		CreatedAt: e.createdAt,
		Status:    e.status,
		Output: lo.Map(ordered, func(st *itemState, _ int) *responses.OutputItem {
			item := &responses.OutputItem{
				ID:     st.id,
				Type:   st.kind,
				Role:   st.role,
				Status: st.status,
			}
			if st.done && st.kind == responses.ItemTypeFunctionCall {
				item.Name = st.name
				item.CallID = st.callID
				item.Arguments = st.arguments
			}
			if st.lastPart != nil {
				part := *st.lastPart
				item.Content = []*responses.ContentPart{&part}
			}
			return item
		}),
	}
	if e.usage != nil {
		usage := *e.usage
		resp.Usage = &usage
	}
	return resp
}
