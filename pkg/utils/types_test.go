package utils

import (
	"encoding/json"
	"testing"
)

func TestTrue_MarshalJSON(t *testing.T) {
	var v True = false
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(b) != "true" {
		t.Fatalf("expected true, got %s", string(b))
	}
}

func TestTrue_MarshalInsideStruct(t *testing.T) {
	payload := struct {
		Stream True `json:"stream"`
	}{}
	b, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(b) != "{\"stream\":true}" {
		t.Fatalf("unexpected json: %s", string(b))
	}
}
