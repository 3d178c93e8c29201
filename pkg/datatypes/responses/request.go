package responses

import (
	"encoding/json"
	"errors"

	"github.com/meklund/restitch/pkg/utils"
)

// CreateModelResponseRequest follows the OpenAI Responses API request format.
// reference: https://platform.openai.com/docs/api-reference/responses/create
// Streaming is forced: the whole point of the proxy is to reconstruct the
// event stream, so non-streaming upstream calls go through GetModelResponse.
type CreateModelResponseRequest struct {
	Model              string            `json:"model"`
	Input              InputParam        `json:"input,omitempty"`
	Instructions       string            `json:"instructions,omitempty"`
	MaxOutputTokens    *int              `json:"max_output_tokens,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
	ParallelToolCalls  *bool             `json:"parallel_tool_calls,omitempty"`
	PreviousResponseID string            `json:"previous_response_id,omitempty"`
	Store              *bool             `json:"store,omitempty"`
	Stream             utils.True        `json:"stream"`
	Temperature        *float64          `json:"temperature,omitempty"`
	ToolChoice         json.RawMessage   `json:"tool_choice,omitempty"`
	Tools              []*ToolParam      `json:"tools,omitempty"`
	TopP               *float64          `json:"top_p,omitempty"`
	User               string            `json:"user,omitempty"`
}

// TextInput wraps a plain prompt into the canonical input form.
func TextInput(text string) InputParam {
	return InputParam{
		{
			Type:    ItemTypeMessage,
			Role:    "user",
			Content: json.RawMessage(utils.JSONEncodeString(text)),
		},
	}
}

type InputParam []*InputItemParam

// UnmarshalJSON accepts both the shorthand string form and the item array
// form the Responses API allows for input.
func (input *InputParam) UnmarshalJSON(data []byte) error {
	for _, b := range data {
		switch b {
		case ' ', '\r', '\n', '\t':
		case 'n':
			return nil
		case '"':
			var text string
			if err := json.Unmarshal(data, &text); err != nil {
				return err
			}
			*input = TextInput(text)
			return nil
		case '[':
			type rawInput []*InputItemParam
			var items rawInput
			if err := json.Unmarshal(data, &items); err != nil {
				return err
			}
			*input = InputParam(items)
			return nil
		default:
			return errors.New("input should be a string or an array")
		}
	}
	return errors.New("empty input")
}

type InputItemParam struct {
	Type    ItemType        `json:"type,omitempty"`
	Role    string          `json:"role,omitempty"`
	Content json.RawMessage `json:"content,omitempty"`

	// function_call_output round-trips
	CallID string `json:"call_id,omitempty"`
	Output string `json:"output,omitempty"`
}

type ToolParam struct {
	Type        string          `json:"type"`
	Name        string          `json:"name,omitempty"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Strict      *bool           `json:"strict,omitempty"`
}
