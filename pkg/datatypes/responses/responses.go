// Package responses models the OpenAI Responses API streaming wire format:
// the type-tagged event payloads carried by SSE frames, and the snapshot
// shape the reconstruction engine emits for each processed frame.
package responses

import (
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrMissingType reports a payload that parses as JSON but lacks the type
// discriminator every event is dispatched on.
var ErrMissingType = errors.New("event payload missing \"type\" field")

// DecodeError wraps a payload that could not be decoded into an event. The
// engine skips the offending frame and keeps the stream alive, so the error
// carries the payload for observer hooks to log.
type DecodeError struct {
	Data string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode event: %s", e.Err.Error())
}

func (e *DecodeError) Unwrap() error { return e.Err }

type EventType string

const (
	EventTypeResponseCreated            EventType = "response.created"
	EventTypeResponseInProgress         EventType = "response.in_progress"
	EventTypeResponseCompleted          EventType = "response.completed"
	EventTypeResponseFailed             EventType = "response.failed"
	EventTypeResponseIncomplete         EventType = "response.incomplete"
	EventTypeOutputItemAdded            EventType = "response.output_item.added"
	EventTypeOutputItemDone             EventType = "response.output_item.done"
	EventTypeContentPartAdded           EventType = "response.content_part.added"
	EventTypeContentPartDone            EventType = "response.content_part.done"
	EventTypeOutputTextDelta            EventType = "response.output_text.delta"
	EventTypeOutputTextDone             EventType = "response.output_text.done"
	EventTypeFunctionCallArgumentsDelta EventType = "response.function_call_arguments.delta"
	EventTypeFunctionCallArgumentsDone  EventType = "response.function_call_arguments.done"
	EventTypeError                      EventType = "error"
)

// IsDelta reports whether t belongs to the *.delta event family. Dispatch is
// by suffix so delta kinds this package has never heard of still stream their
// fragments through.
func (t EventType) IsDelta() bool {
	return strings.HasSuffix(string(t), ".delta")
}

// Event is the decoded payload of one frame, tagged by its wire type. The
// payload type field is authoritative over the frame's event: line.
type Event interface {
	EventType() EventType
	SequenceNumber() int64
}

var (
	_ Event = (*EventResponse)(nil)
	_ Event = (*EventOutputItem)(nil)
	_ Event = (*EventContentPart)(nil)
	_ Event = (*EventDelta)(nil)
	_ Event = (*EventOutputTextDone)(nil)
	_ Event = (*EventFunctionCallArgumentsDone)(nil)
	_ Event = (*EventStreamError)(nil)
	_ Event = (*EventUnknown)(nil)
)

type (
	// EventResponse covers the response lifecycle family (created,
	// in_progress, completed, failed, incomplete); only the top-level
	// response object travels with it.
	EventResponse struct {
		Type     EventType `json:"type"`
		Sequence int64     `json:"sequence_number"`
		Response *Response `json:"response"`
	}
	// EventOutputItem covers output_item.added and output_item.done.
	EventOutputItem struct {
		Type        EventType `json:"type"`
		Sequence    int64     `json:"sequence_number"`
		OutputIndex int       `json:"output_index"`
		Item        *Item     `json:"item"`
	}
	// EventContentPart covers content_part.added and content_part.done.
	EventContentPart struct {
		Type         EventType       `json:"type"`
		Sequence     int64           `json:"sequence_number"`
		ItemID       string          `json:"item_id"`
		OutputIndex  int             `json:"output_index"`
		ContentIndex int             `json:"content_index"`
		Part         json.RawMessage `json:"part,omitempty"`
	}
	// EventDelta covers the whole *.delta family; Delta holds exactly the
	// incremental fragment carried by this single frame.
	EventDelta struct {
		Type         EventType `json:"type"`
		Sequence     int64     `json:"sequence_number"`
		ItemID       string    `json:"item_id"`
		OutputIndex  int       `json:"output_index"`
		ContentIndex int       `json:"content_index"`
		Delta        string    `json:"delta"`
	}
	EventOutputTextDone struct {
		Type         EventType `json:"type"`
		Sequence     int64     `json:"sequence_number"`
		ItemID       string    `json:"item_id"`
		OutputIndex  int       `json:"output_index"`
		ContentIndex int       `json:"content_index"`
		Text         string    `json:"text"`
	}
	EventFunctionCallArgumentsDone struct {
		Type        EventType `json:"type"`
		Sequence    int64     `json:"sequence_number"`
		ItemID      string    `json:"item_id"`
		OutputIndex int       `json:"output_index"`
		Arguments   string    `json:"arguments"`
	}
	// EventStreamError is the producer-side error event; the engine turns it
	// into a stream failure.
	EventStreamError struct {
		Type     EventType `json:"type"`
		Sequence int64     `json:"sequence_number"`
		Code     string    `json:"code,omitempty"`
		Message  string    `json:"message"`
	}
	// EventUnknown carries any forward-compatible event kind this package
	// does not model. The raw payload is preserved for observers.
	EventUnknown struct {
		Type        EventType       `json:"type"`
		Sequence    int64           `json:"sequence_number"`
		ItemID      string          `json:"item_id,omitempty"`
		OutputIndex int             `json:"output_index,omitempty"`
		Raw         json.RawMessage `json:"-"`
	}
)

func (e *EventResponse) EventType() EventType                  { return e.Type }
func (e *EventOutputItem) EventType() EventType                { return e.Type }
func (e *EventContentPart) EventType() EventType               { return e.Type }
func (e *EventDelta) EventType() EventType                     { return e.Type }
func (e *EventOutputTextDone) EventType() EventType            { return e.Type }
func (e *EventFunctionCallArgumentsDone) EventType() EventType { return e.Type }
func (e *EventStreamError) EventType() EventType               { return e.Type }
func (e *EventUnknown) EventType() EventType                   { return e.Type }

func (e *EventResponse) SequenceNumber() int64                  { return e.Sequence }
func (e *EventOutputItem) SequenceNumber() int64                { return e.Sequence }
func (e *EventContentPart) SequenceNumber() int64               { return e.Sequence }
func (e *EventDelta) SequenceNumber() int64                     { return e.Sequence }
func (e *EventOutputTextDone) SequenceNumber() int64            { return e.Sequence }
func (e *EventFunctionCallArgumentsDone) SequenceNumber() int64 { return e.Sequence }
func (e *EventStreamError) SequenceNumber() int64               { return e.Sequence }
func (e *EventUnknown) SequenceNumber() int64                   { return e.Sequence }

var eventBuilder = map[EventType]func([]byte) (Event, error){
	EventTypeResponseCreated:           unmarshalEvent[*EventResponse],
	EventTypeResponseInProgress:        unmarshalEvent[*EventResponse],
	EventTypeResponseCompleted:         unmarshalEvent[*EventResponse],
	EventTypeResponseFailed:            unmarshalEvent[*EventResponse],
	EventTypeResponseIncomplete:        unmarshalEvent[*EventResponse],
	EventTypeOutputItemAdded:           unmarshalEvent[*EventOutputItem],
	EventTypeOutputItemDone:            unmarshalEvent[*EventOutputItem],
	EventTypeContentPartAdded:          unmarshalEvent[*EventContentPart],
	EventTypeContentPartDone:           unmarshalEvent[*EventContentPart],
	EventTypeOutputTextDone:            unmarshalEvent[*EventOutputTextDone],
	EventTypeFunctionCallArgumentsDone: unmarshalEvent[*EventFunctionCallArgumentsDone],
	EventTypeError:                     unmarshalEvent[*EventStreamError],
}

func unmarshalEvent[E Event](data []byte) (Event, error) {
	var event E
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, &DecodeError{Data: string(data), Err: err}
	}
	return event, nil
}

// DecodeEvent parses a frame's data payload into a typed event. The payload
// must be valid JSON carrying a type field; anything else yields a
// DecodeError. Unrecognized types decode into EventUnknown so new event kinds
// flow through as structural no-ops instead of breaking the stream.
func DecodeEvent(data []byte) (Event, error) {
	if !gjson.ValidBytes(data) {
		return nil, &DecodeError{Data: string(data), Err: errors.New("payload is not valid JSON")}
	}
	discriminator := gjson.GetBytes(data, "type")
	if !discriminator.Exists() || discriminator.Type != gjson.String {
		return nil, &DecodeError{Data: string(data), Err: ErrMissingType}
	}
	eventType := EventType(discriminator.String())
	if build, ok := eventBuilder[eventType]; ok {
		return build(data)
	}
	if eventType.IsDelta() && gjson.GetBytes(data, "delta").Type == gjson.String {
		return unmarshalEvent[*EventDelta](data)
	}
	unknown := &EventUnknown{
		Type:        eventType,
		Sequence:    gjson.GetBytes(data, "sequence_number").Int(),
		ItemID:      gjson.GetBytes(data, "item_id").String(),
		OutputIndex: int(gjson.GetBytes(data, "output_index").Int()),
		Raw:         json.RawMessage(data),
	}
	return unknown, nil
}

// ResponseStream is the engine's output: one immutable snapshot per processed
// frame, with transport failures in the error slot.
type ResponseStream = iter.Seq2[*Response, error]

type ResponseStatus string

const (
	ResponseStatusInProgress ResponseStatus = "in_progress"
	ResponseStatusCompleted  ResponseStatus = "completed"
	ResponseStatusFailed     ResponseStatus = "failed"
	ResponseStatusIncomplete ResponseStatus = "incomplete"
)

// Response is the snapshot emitted once per frame: cumulative identity and
// usage, plus the per-frame view of each output item. Snapshots are values,
// never mutated after emission.
type Response struct {
	ID        string         `json:"id,omitempty"`
	Object    string         `json:"object,omitempty"`
	Model     string         `json:"model,omitempty"`
	CreatedAt int64          `json:"created_at,omitempty"`
	Status    ResponseStatus `json:"status,omitempty"`
	Output    []*OutputItem  `json:"output"`
	Usage     *Usage         `json:"usage,omitempty"`
}

// FinalText concatenates the text of message items, for consumers that only
// want the completed body out of a response.completed payload. Both the
// engine's "text" parts and the wire's "output_text" parts count.
func (r *Response) FinalText() string {
	var sb strings.Builder
	for _, item := range r.Output {
		for _, part := range item.Content {
			if part.Type == ContentTypeText || part.Type == ContentTypeOutputText {
				sb.WriteString(part.Text)
			}
		}
	}
	return sb.String()
}

type ItemType string

const (
	ItemTypeMessage      ItemType = "message"
	ItemTypeReasoning    ItemType = "reasoning"
	ItemTypeFunctionCall ItemType = "function_call"
)

// Item is the wire shape of one output item as carried by output_item.added
// and output_item.done events.
type Item struct {
	ID        string          `json:"id"`
	Type      ItemType        `json:"type"`
	Role      string          `json:"role,omitempty"`
	Status    string          `json:"status,omitempty"`
	Name      string          `json:"name,omitempty"`
	CallID    string          `json:"call_id,omitempty"`
	Arguments string          `json:"arguments,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
}

// OutputItem is one logically distinct output unit inside a snapshot, ordered
// by its output_index on the wire.
type OutputItem struct {
	ID      string         `json:"id,omitempty"`
	Type    ItemType       `json:"type,omitempty"`
	Role    string         `json:"role,omitempty"`
	Status  string         `json:"status,omitempty"`
	Content []*ContentPart `json:"content"`

	// function_call items only, filled once the item reaches done
	Name      string `json:"name,omitempty"`
	CallID    string `json:"call_id,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type ContentType string

const (
	ContentTypeText         ContentType = "text"
	ContentTypeStatus       ContentType = "status"
	ContentTypeReasoning    ContentType = "reasoning"
	ContentTypeFunctionCall ContentType = "function_call"
	ContentTypeOutputText   ContentType = "output_text"
)

// ContentPart is one classified content element of an output item. Status and
// lifecycle parts always carry empty text; only delta-born parts hold the
// incremental fragment of the frame that produced them.
type ContentPart struct {
	Type  ContentType `json:"type"`
	Text  string      `json:"text"`
	Index int         `json:"index"`
}

type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`
}
