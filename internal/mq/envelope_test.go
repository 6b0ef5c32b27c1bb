package mq

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shaiso/Ingest/internal/domain"
)

func TestEncode_ProcessPayload(t *testing.T) {
	body, err := Encode(domain.ProcessPayload("job-42.json", "http://cb/ok", "http://cb/fail?id=1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]string
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("body should be a JSON object: %v", err)
	}
	if decoded["method"] != "process" || decoded["file_name"] != "job-42.json" {
		t.Errorf("unexpected body: %s", body)
	}
}

func TestEncode_RejectsNonScalar(t *testing.T) {
	tests := []map[string]any{
		{"method": "process", "files": []string{"a"}},
		{"method": "process", "nested": map[string]any{"a": 1}},
		{"method": "process", "blob": []byte("raw")},
		{"method": "process", "flag": true},
		{"method": nil},
	}

	for _, payload := range tests {
		if _, err := Encode(payload); !errors.Is(err, ErrUnsupportedValue) {
			t.Errorf("Encode(%v): expected ErrUnsupportedValue, got %v", payload, err)
		}
	}
}

func TestDecode_Ping(t *testing.T) {
	task, err := Decode([]byte(`{"method":"ping"}`), "msg-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task.ID != "msg-1" {
		t.Errorf("expected transport id msg-1, got %s", task.ID)
	}
	if task.Method() != domain.MethodPing {
		t.Errorf("expected ping, got %q", task.Method())
	}
}

func TestDecode_KeepsNumbers(t *testing.T) {
	task, err := Decode([]byte(`{"method":"process","attempt":12345678901234567890}`), "msg-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := task.String("attempt"); got != "12345678901234567890" {
		t.Errorf("number should survive decoding, got %q", got)
	}
}

func TestDecode_RoundTrip(t *testing.T) {
	payload := domain.ProcessPayload("job-42.json", "http://cb/ok", "http://cb/fail")
	body, err := Encode(payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	task, err := Decode(body, "msg-3")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if task.FileName() != "job-42.json" || task.SuccessURL() != "http://cb/ok" || task.FailureURL() != "http://cb/fail" {
		t.Errorf("unexpected task: %+v", task.Payload())
	}
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `cloudpickle\x80\x04`},
		{"array", `["ping"]`},
		{"string", `"ping"`},
		{"null", `null`},
		{"nested", `{"method":{"name":"ping"}}`},
		{"bool", `{"method":"ping","ok":true}`},
		{"trailing", `{"method":"ping"}{"method":"ping"}`},
		{"empty", ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.body), "bad")
			if !errors.Is(err, ErrMalformedTask) {
				t.Fatalf("expected ErrMalformedTask, got %v", err)
			}

			var malformed *MalformedTaskError
			if !errors.As(err, &malformed) || malformed.MessageID != "bad" {
				t.Errorf("expected MalformedTaskError with message id, got %v", err)
			}
		})
	}
}
