package engine

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/meklund/restitch/pkg/datatypes/responses"
	"github.com/meklund/restitch/pkg/sse"
)

func wireFrame(event, data string) string {
	return fmt.Sprintf("event: %s\ndata: %s\n\n", event, data)
}

// collect drains every outcome produced by feeding the whole wire string as
// one chunk, close included.
func collect(t *testing.T, e *Engine, wire string) []*Outcome {
	t.Helper()
	var outcomes []*Outcome
	for outcome := range e.Feed([]byte(wire)) {
		outcomes = append(outcomes, outcome)
	}
	if outcome := e.Close(); outcome != nil {
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

type recordingObserver struct {
	frameErrors []error
	violations  []*SequenceViolation
	completed   *responses.Response
}

func (o *recordingObserver) OnFrameError(_ sse.Frame, err error) {
	o.frameErrors = append(o.frameErrors, err)
}

func (o *recordingObserver) OnSequenceViolation(v *SequenceViolation) {
	o.violations = append(o.violations, v)
}

func (o *recordingObserver) OnResponseCompleted(r *responses.Response) {
	o.completed = r
}

func TestEngine_HelloWorldStream(t *testing.T) {
	wire := wireFrame("response.created",
		`{"type":"response.created","sequence_number":0,"response":{"id":"resp_1","object":"response","model":"gpt-4.1","created_at":1700000000,"status":"in_progress"}}`) +
		wireFrame("response.output_item.added",
			`{"type":"response.output_item.added","sequence_number":1,"output_index":0,"item":{"id":"msg_1","type":"message","role":"assistant"}}`) +
		wireFrame("response.content_part.added",
			`{"type":"response.content_part.added","sequence_number":2,"item_id":"msg_1","output_index":0,"content_index":0,"part":{"type":"output_text","text":""}}`) +
		wireFrame("response.output_text.delta",
			`{"type":"response.output_text.delta","sequence_number":3,"item_id":"msg_1","output_index":0,"content_index":0,"delta":"Hello "}`) +
		wireFrame("response.output_text.delta",
			`{"type":"response.output_text.delta","sequence_number":4,"item_id":"msg_1","output_index":0,"content_index":0,"delta":"world"}`) +
		wireFrame("response.output_item.done",
			`{"type":"response.output_item.done","sequence_number":5,"output_index":0,"item":{"id":"msg_1","type":"message","role":"assistant","status":"completed"}}`) +
		wireFrame("response.completed",
			`{"type":"response.completed","sequence_number":6,"response":{"id":"resp_1","status":"completed","usage":{"input_tokens":8,"output_tokens":2,"total_tokens":10}}}`)

	observer := new(recordingObserver)
	e := New(WithObserver(observer))
	outcomes := collect(t, e, wire)
	if len(outcomes) != 7 {
		t.Fatalf("expected 7 outcomes, got %d", len(outcomes))
	}
	for i, outcome := range outcomes {
		if outcome.Skipped != nil || outcome.Fatal != nil || outcome.Violation != nil {
			t.Fatalf("outcome %d should be a clean snapshot: %#v", i, outcome)
		}
		if outcome.Snapshot == nil {
			t.Fatalf("outcome %d missing snapshot", i)
		}
	}

	// created: identity carried, no items yet
	first := outcomes[0].Snapshot
	if first.ID != "resp_1" || first.Model != "gpt-4.1" || first.CreatedAt != 1700000000 {
		t.Fatalf("unexpected first snapshot: %#v", first)
	}
	if first.Status != responses.ResponseStatusInProgress {
		t.Fatalf("unexpected first status: %s", first.Status)
	}
	if len(first.Output) != 0 {
		t.Fatalf("expected no items in first snapshot, got %d", len(first.Output))
	}

	// output_item.added: one item, status part, no text
	added := outcomes[1].Snapshot
	if len(added.Output) != 1 || added.Output[0].ID != "msg_1" {
		t.Fatalf("unexpected added snapshot: %#v", added.Output)
	}
	if part := added.Output[0].Content[0]; part.Type != responses.ContentType(responses.ItemTypeMessage) || part.Text != "" {
		t.Fatalf("lifecycle part must mirror the item kind with no text: %#v", part)
	}

	// content_part.added: status part
	partAdded := outcomes[2].Snapshot
	if part := partAdded.Output[0].Content[0]; part.Type != responses.ContentTypeStatus || part.Text != "" {
		t.Fatalf("content_part.added must yield an empty status part: %#v", part)
	}

	// deltas carry exactly the fragment of their frame
	if part := outcomes[3].Snapshot.Output[0].Content[0]; part.Type != responses.ContentTypeText || part.Text != "Hello " {
		t.Fatalf("unexpected first delta part: %#v", part)
	}
	if part := outcomes[4].Snapshot.Output[0].Content[0]; part.Text != "world" {
		t.Fatalf("unexpected second delta part: %#v", part)
	}

	// completed: engine exposes the authoritative final response
	last := outcomes[6].Snapshot
	if last.Status != responses.ResponseStatusCompleted {
		t.Fatalf("unexpected final status: %s", last.Status)
	}
	if last.Usage == nil || last.Usage.TotalTokens != 10 {
		t.Fatalf("unexpected final usage: %#v", last.Usage)
	}
	if e.Final() == nil || observer.completed == nil {
		t.Fatalf("completion must surface the final response")
	}
	if len(observer.violations) != 0 || len(observer.frameErrors) != 0 {
		t.Fatalf("clean stream must report no anomalies")
	}
}

func TestEngine_FunctionCallArgumentReassembly(t *testing.T) {
	fragments := []string{`{"loc`, `ation`, `":"Pa`, `ris",`, `"unit":`, `"c"}`}
	var wire strings.Builder
	wire.WriteString(wireFrame("response.created",
		`{"type":"response.created","sequence_number":0,"response":{"id":"resp_fc","status":"in_progress"}}`))
	wire.WriteString(wireFrame("response.output_item.added",
		`{"type":"response.output_item.added","sequence_number":1,"output_index":0,"item":{"id":"fc_1","type":"function_call","name":"get_weather","call_id":"call_1"}}`))
	for i, fragment := range fragments {
		data := fmt.Sprintf(`{"type":"response.function_call_arguments.delta","sequence_number":%d,"item_id":"fc_1","output_index":0,"delta":%q}`, i+2, fragment)
		wire.WriteString(wireFrame("response.function_call_arguments.delta", data))
	}
	wire.WriteString(wireFrame("response.output_item.done",
		`{"type":"response.output_item.done","sequence_number":8,"output_index":0,"item":{"id":"fc_1","type":"function_call","status":"completed"}}`))
	wire.WriteString(wireFrame("response.completed",
		`{"type":"response.completed","sequence_number":9,"response":{"id":"resp_fc","status":"completed","output":[{"id":"fc_1","type":"function_call","call_id":"call_1"}]}}`))

	e := New()
	outcomes := collect(t, e, wire.String())
	if len(outcomes) < 7 {
		t.Fatalf("expected at least 7 snapshots, got %d", len(outcomes))
	}

	// every argument delta classifies as text carrying exactly its fragment,
	// while the item itself stays a function_call
	for i, fragment := range fragments {
		snapshot := outcomes[i+2].Snapshot
		item := snapshot.Output[0]
		if item.Type != responses.ItemTypeFunctionCall {
			t.Fatalf("delta %d: item kind must stay function_call, got %s", i, item.Type)
		}
		part := item.Content[0]
		if part.Type != responses.ContentTypeText || part.Text != fragment {
			t.Fatalf("delta %d: unexpected part %#v", i, part)
		}
	}

	// output_item.done without wire arguments triggers reassembly from the
	// accumulated fragments
	doneSnapshot := outcomes[len(outcomes)-2].Snapshot
	item := doneSnapshot.Output[0]
	if item.Arguments != `{"location":"Paris","unit":"c"}` {
		t.Fatalf("unexpected reassembled arguments: %q", item.Arguments)
	}
	if item.Name != "get_weather" || item.CallID != "call_1" {
		t.Fatalf("unexpected done item: %#v", item)
	}

	// the final response's empty arguments get backfilled too
	final := e.Final()
	if final == nil {
		t.Fatalf("expected final response")
	}
	if final.Output[0].Arguments != `{"location":"Paris","unit":"c"}` {
		t.Fatalf("final arguments not backfilled: %q", final.Output[0].Arguments)
	}
}

func TestEngine_ArgumentsBackfilledWithoutDoneEvent(t *testing.T) {
	// minimal producer: no output_item lifecycle at all, just argument deltas
	// between created and completed
	fragments := []string{`{"a`, `":`, `1`, `,"b"`, `:2`, `}`}
	var wire strings.Builder
	wire.WriteString(wireFrame("response.created",
		`{"type":"response.created","sequence_number":0,"response":{"id":"r","status":"in_progress"}}`))
	for i, fragment := range fragments {
		data := fmt.Sprintf(`{"type":"response.function_call_arguments.delta","sequence_number":%d,"item_id":"fc_min","output_index":0,"delta":%q}`, i+1, fragment)
		wire.WriteString(wireFrame("response.function_call_arguments.delta", data))
	}
	wire.WriteString(wireFrame("response.completed",
		`{"type":"response.completed","sequence_number":7,"response":{"id":"r","status":"completed","output":[{"id":"fc_min","type":"function_call"}]}}`))

	e := New()
	outcomes := collect(t, e, wire.String())
	if len(outcomes) < 7 {
		t.Fatalf("expected at least 7 snapshots, got %d", len(outcomes))
	}
	final := e.Final()
	if final == nil {
		t.Fatalf("expected final response")
	}
	if got := final.Output[0].Arguments; got != `{"a":1,"b":2}` {
		t.Fatalf("final arguments must equal the delta concatenation, got %q", got)
	}
}

func TestEngine_SequenceViolationNonFatal(t *testing.T) {
	wire := wireFrame("response.created",
		`{"type":"response.created","sequence_number":5,"response":{"id":"r","status":"in_progress"}}`) +
		wireFrame("response.output_text.delta",
			`{"type":"response.output_text.delta","sequence_number":3,"item_id":"m","delta":"a"}`) +
		wireFrame("response.output_text.delta",
			`{"type":"response.output_text.delta","sequence_number":4,"item_id":"m","delta":"b"}`)

	observer := new(recordingObserver)
	e := New(WithObserver(observer))
	outcomes := collect(t, e, wire)
	if len(outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(outcomes))
	}
	if outcomes[1].Violation == nil {
		t.Fatalf("expected violation on regressing sequence")
	}
	if outcomes[1].Violation.Last != 5 || outcomes[1].Violation.Got != 3 {
		t.Fatalf("unexpected violation: %#v", outcomes[1].Violation)
	}
	if outcomes[1].Snapshot == nil {
		t.Fatalf("violating frame must still produce a snapshot")
	}
	// 4 > 3: the offending number became the new baseline
	if outcomes[2].Violation != nil {
		t.Fatalf("baseline must adopt the violating number: %#v", outcomes[2].Violation)
	}
	if len(observer.violations) != 1 {
		t.Fatalf("expected 1 observed violation, got %d", len(observer.violations))
	}
}

func TestEngine_DuplicateSequenceIsViolation(t *testing.T) {
	wire := wireFrame("response.output_text.delta",
		`{"type":"response.output_text.delta","sequence_number":2,"item_id":"m","delta":"a"}`) +
		wireFrame("response.output_text.delta",
			`{"type":"response.output_text.delta","sequence_number":2,"item_id":"m","delta":"b"}`)
	e := New()
	outcomes := collect(t, e, wire)
	if outcomes[0].Violation != nil {
		t.Fatalf("first frame can never violate")
	}
	if outcomes[1].Violation == nil {
		t.Fatalf("equal sequence number must violate strict ordering")
	}
}

func TestEngine_MalformedFrameSkipped(t *testing.T) {
	wire := wireFrame("response.output_text.delta",
		`{"type":"response.output_text.delta","sequence_number":1,"item_id":"m","delta":"keep "}`) +
		wireFrame("response.output_text.delta", `{"type":"response.output_text.delta","seque`) +
		wireFrame("garbage", `not json at all`) +
		wireFrame("response.output_text.delta",
			`{"type":"response.output_text.delta","sequence_number":2,"item_id":"m","delta":"going"}`)

	observer := new(recordingObserver)
	e := New(WithObserver(observer))
	outcomes := collect(t, e, wire)
	if len(outcomes) != 4 {
		t.Fatalf("expected 4 outcomes, got %d", len(outcomes))
	}
	if outcomes[1].Skipped == nil || outcomes[2].Skipped == nil {
		t.Fatalf("malformed frames must be skipped")
	}
	if outcomes[1].Snapshot != nil {
		t.Fatalf("skipped frames must not emit snapshots")
	}
	if len(observer.frameErrors) != 2 {
		t.Fatalf("expected 2 reported frame errors, got %d", len(observer.frameErrors))
	}
	// skipped frames never advance the sequence baseline
	if outcomes[3].Violation != nil {
		t.Fatalf("skip must not disturb sequence tracking: %#v", outcomes[3].Violation)
	}
	if part := outcomes[3].Snapshot.Output[0].Content[0]; part.Text != "going" {
		t.Fatalf("stream must keep flowing after skips: %#v", part)
	}
}

func TestEngine_ErrorEventFatal(t *testing.T) {
	wire := wireFrame("response.created",
		`{"type":"response.created","sequence_number":0,"response":{"id":"r","status":"in_progress"}}`) +
		wireFrame("error",
			`{"type":"error","sequence_number":1,"code":"server_error","message":"upstream exploded"}`)
	e := New()
	outcomes := collect(t, e, wire)
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	if outcomes[1].Fatal == nil {
		t.Fatalf("error event must be fatal")
	}
	if !strings.Contains(outcomes[1].Fatal.Error(), "upstream exploded") {
		t.Fatalf("fatal error must carry the producer message: %v", outcomes[1].Fatal)
	}
}

func TestEngine_DoneAbsorbsLateDeltas(t *testing.T) {
	wire := wireFrame("response.output_item.added",
		`{"type":"response.output_item.added","sequence_number":0,"output_index":0,"item":{"id":"m","type":"message"}}`) +
		wireFrame("response.output_text.delta",
			`{"type":"response.output_text.delta","sequence_number":1,"item_id":"m","delta":"final"}`) +
		wireFrame("response.output_item.done",
			`{"type":"response.output_item.done","sequence_number":2,"output_index":0,"item":{"id":"m","type":"message","status":"completed"}}`) +
		wireFrame("response.output_text.delta",
			`{"type":"response.output_text.delta","sequence_number":3,"item_id":"m","delta":"straggler"}`)

	e := New()
	outcomes := collect(t, e, wire)
	last := outcomes[3].Snapshot
	part := last.Output[0].Content[0]
	if part.Text == "straggler" {
		t.Fatalf("a done item must absorb late deltas, got %#v", part)
	}
	if part.Type != responses.ContentType(responses.ItemTypeMessage) {
		t.Fatalf("absorbed delta must leave the done lifecycle part in place: %#v", part)
	}
}

func TestEngine_DeltaBeforeAddedAdoptsPlaceholder(t *testing.T) {
	wire := wireFrame("response.output_text.delta",
		`{"type":"response.output_text.delta","sequence_number":0,"item_id":"","output_index":0,"delta":"early"}`) +
		wireFrame("response.output_item.added",
			`{"type":"response.output_item.added","sequence_number":1,"output_index":0,"item":{"id":"msg_late","type":"message"}}`) +
		wireFrame("response.output_text.delta",
			`{"type":"response.output_text.delta","sequence_number":2,"item_id":"msg_late","output_index":0,"delta":" bird"}`)

	e := New()
	outcomes := collect(t, e, wire)
	// placeholder keyed by output_index, later adopted by the real id: one
	// item throughout, never two
	for i, outcome := range outcomes {
		if len(outcome.Snapshot.Output) != 1 {
			t.Fatalf("snapshot %d: expected 1 item, got %d", i, len(outcome.Snapshot.Output))
		}
	}
	if id := outcomes[2].Snapshot.Output[0].ID; id != "msg_late" {
		t.Fatalf("placeholder must adopt the real item id, got %q", id)
	}
	if part := outcomes[2].Snapshot.Output[0].Content[0]; part.Text != " bird" {
		t.Fatalf("adopted item must keep streaming: %#v", part)
	}
}

func TestEngine_UnknownEvents(t *testing.T) {
	wire := wireFrame("response.created",
		`{"type":"response.created","sequence_number":0,"response":{"id":"r","status":"in_progress"}}`) +
		wireFrame("response.audio.done",
			`{"type":"response.audio.done","sequence_number":1,"item_id":"a_1","output_index":0}`) +
		wireFrame("response.queue.heartbeat",
			`{"type":"response.queue.heartbeat","sequence_number":2}`)

	e := New()
	outcomes := collect(t, e, wire)
	if len(outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(outcomes))
	}
	// item-scoped unknown: status part on the referenced item
	withItem := outcomes[1].Snapshot
	if len(withItem.Output) != 1 {
		t.Fatalf("item-scoped unknown must register its item: %#v", withItem.Output)
	}
	if part := withItem.Output[0].Content[0]; part.Type != responses.ContentTypeStatus || part.Text != "" {
		t.Fatalf("unknown event must yield an empty status part: %#v", part)
	}
	// itemless unknown: structural no-op, still snapshots
	bare := outcomes[2].Snapshot
	if len(bare.Output) != 1 {
		t.Fatalf("itemless unknown must not invent items: %#v", bare.Output)
	}
}

func TestEngine_SnapshotOrderingByOutputIndex(t *testing.T) {
	wire := wireFrame("response.output_item.added",
		`{"type":"response.output_item.added","sequence_number":0,"output_index":1,"item":{"id":"second","type":"message"}}`) +
		wireFrame("response.output_item.added",
			`{"type":"response.output_item.added","sequence_number":1,"output_index":0,"item":{"id":"first","type":"reasoning"}}`)
	e := New()
	outcomes := collect(t, e, wire)
	last := outcomes[1].Snapshot
	if len(last.Output) != 2 {
		t.Fatalf("expected 2 items, got %d", len(last.Output))
	}
	if last.Output[0].ID != "first" || last.Output[1].ID != "second" {
		t.Fatalf("items must order by output_index: %#v", last.Output)
	}
	// reasoning lifecycle classifies as reasoning, not status
	if part := last.Output[0].Content[0]; part.Type != responses.ContentTypeReasoning {
		t.Fatalf("reasoning item must classify as reasoning: %#v", part)
	}
}

func TestEngine_SnapshotsAreIndependent(t *testing.T) {
	wire := wireFrame("response.created",
		`{"type":"response.created","sequence_number":0,"response":{"id":"r","status":"in_progress","usage":{"input_tokens":1,"output_tokens":0,"total_tokens":1}}}`) +
		wireFrame("response.output_text.delta",
			`{"type":"response.output_text.delta","sequence_number":1,"item_id":"m","delta":"x"}`)
	e := New()
	outcomes := collect(t, e, wire)
	first := outcomes[0].Snapshot
	second := outcomes[1].Snapshot
	// mutating an emitted snapshot must not leak into later ones
	first.Usage.TotalTokens = 999
	first.ID = "mangled"
	if second.Usage.TotalTokens != 1 || second.ID != "r" {
		t.Fatalf("snapshots must not share mutable state: %#v", second)
	}
}

func TestEngine_TrailingFrameOnClose(t *testing.T) {
	e := New()
	for range e.Feed([]byte("event: response.output_text.delta\ndata: {\"type\":\"response.output_text.delta\",\"sequence_number\":0,\"item_id\":\"m\",\"delta\":\"tail\"}")) {
		t.Fatalf("unterminated frame must wait for close")
	}
	outcome := e.Close()
	if outcome == nil || outcome.Snapshot == nil {
		t.Fatalf("close must flush the trailing frame")
	}
	if part := outcome.Snapshot.Output[0].Content[0]; part.Text != "tail" {
		t.Fatalf("unexpected trailing snapshot: %#v", part)
	}
	if e.Close() != nil {
		t.Fatalf("second close must be a no-op")
	}
}

func TestReconstruct_EndToEnd(t *testing.T) {
	wire := wireFrame("response.created",
		`{"type":"response.created","sequence_number":0,"response":{"id":"resp_e2e","model":"gpt-4.1","status":"in_progress"}}`) +
		wireFrame("response.output_item.added",
			`{"type":"response.output_item.added","sequence_number":1,"output_index":0,"item":{"id":"m","type":"message","role":"assistant"}}`) +
		wireFrame("response.output_text.delta",
			`{"type":"response.output_text.delta","sequence_number":2,"item_id":"m","delta":"Hi"}`) +
		wireFrame("response.completed",
			`{"type":"response.completed","sequence_number":3,"response":{"id":"resp_e2e","status":"completed"}}`)

	var snapshots []*responses.Response
	for snapshot, err := range Reconstruct(io.NopCloser(strings.NewReader(wire))) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		snapshots = append(snapshots, snapshot)
	}
	if len(snapshots) != 4 {
		t.Fatalf("expected 4 snapshots, got %d", len(snapshots))
	}
	if snapshots[3].Status != responses.ResponseStatusCompleted {
		t.Fatalf("unexpected final status: %s", snapshots[3].Status)
	}
	// identity carried through every snapshot after created
	for i, snapshot := range snapshots {
		if snapshot.ID != "resp_e2e" {
			t.Fatalf("snapshot %d lost identity: %#v", i, snapshot)
		}
	}
}

func TestRun_FatalStopsStream(t *testing.T) {
	wire := wireFrame("response.output_text.delta",
		`{"type":"response.output_text.delta","sequence_number":0,"item_id":"m","delta":"a"}`) +
		wireFrame("error", `{"type":"error","sequence_number":1,"message":"dead"}`) +
		wireFrame("response.output_text.delta",
			`{"type":"response.output_text.delta","sequence_number":2,"item_id":"m","delta":"never"}`)

	var snapshots int
	var gotErr error
	for snapshot, err := range Reconstruct(io.NopCloser(strings.NewReader(wire))) {
		if err != nil {
			gotErr = err
			continue
		}
		_ = snapshot
		snapshots++
	}
	if snapshots != 1 {
		t.Fatalf("expected 1 snapshot before the fatal event, got %d", snapshots)
	}
	if gotErr == nil || !strings.Contains(gotErr.Error(), "dead") {
		t.Fatalf("expected fatal error, got %v", gotErr)
	}
}
