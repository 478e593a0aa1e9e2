package chat

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestDecodeMessageAcceptsNumericAndStringIDs(t *testing.T) {
	tests := []struct {
		name   string
		record string
		wantID ID
	}{
		{"number", `{"id":42,"chat_id":7,"role":"user","state":"finished","content":"hi"}`, "42"},
		{"string", `{"id":"m1","chat_id":"c1","role":"user","state":"finished","content":"hi"}`, "m1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := DecodeMessage([]byte(tt.record))
			if err != nil {
				t.Fatalf("DecodeMessage() error: %v", err)
			}
			if m.ID != tt.wantID {
				t.Errorf("expected id=%s, got %s", tt.wantID, m.ID)
			}
		})
	}
}

func TestDecodeMessageMapsCompletedToFinished(t *testing.T) {
	m, err := DecodeMessage([]byte(`{"id":1,"chat_id":1,"role":"assistant","state":"completed","content":"4","sources":[{"file_id":3,"file_name":"a.pdf","page":2}]}`))
	if err != nil {
		t.Fatalf("DecodeMessage() error: %v", err)
	}
	if m.State != StateFinished {
		t.Errorf("expected state=finished, got %s", m.State)
	}
	if len(m.Sources) != 1 || m.Sources[0].DocumentID != "3" || *m.Sources[0].Page != 2 {
		t.Errorf("unexpected sources: %+v", m.Sources)
	}
}

func TestDecodeMessageDropsSourcesUnlessFinished(t *testing.T) {
	m, err := DecodeMessage([]byte(`{"id":"m4","chat_id":"c1","role":"assistant","state":"processing","content":"...","sources":[{"file_id":1}]}`))
	if err != nil {
		t.Fatalf("DecodeMessage() error: %v", err)
	}
	if m.Sources != nil {
		t.Errorf("expected no sources on processing message, got %+v", m.Sources)
	}
}

func TestDecodeMessageParsesNaiveTimestamps(t *testing.T) {
	m, err := DecodeMessage([]byte(`{"id":"m1","chat_id":"c1","role":"user","state":"created","content":"x","created_at":"2024-05-01T10:20:30.123456"}`))
	if err != nil {
		t.Fatalf("DecodeMessage() error: %v", err)
	}
	want := time.Date(2024, 5, 1, 10, 20, 30, 123456000, time.UTC)
	if !m.CreatedAt.Equal(want) {
		t.Errorf("expected created_at=%v, got %v", want, m.CreatedAt)
	}
}

func TestDecodeMessageRejectsMalformedRecords(t *testing.T) {
	records := []string{
		`not json`,
		`{"chat_id":"c1","role":"user","state":"finished"}`,
		`{"id":"m1","role":"robot","state":"finished"}`,
		`{"id":"m1","role":"user","state":"pending"}`,
		`{"id":"m1","role":"user","state":"finished","created_at":"yesterday"}`,
	}

	for _, r := range records {
		if _, err := DecodeMessage([]byte(r)); !errors.Is(err, ErrMalformedMessage) {
			t.Errorf("DecodeMessage(%q) expected ErrMalformedMessage, got %v", r, err)
		}
	}
}

func TestIDMarshalsNumericIDsAsNumbers(t *testing.T) {
	data, err := json.Marshal(CreateMessageRequest{ConversationID: "12", Content: "hi"})
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	if string(data) != `{"chat_id":12,"content":"hi"}` {
		t.Errorf("unexpected body: %s", data)
	}

	data, _ = json.Marshal(CreateMessageRequest{ConversationID: "abc", Content: "hi"})
	if string(data) != `{"chat_id":"abc","content":"hi"}` {
		t.Errorf("unexpected body: %s", data)
	}
}

func TestStateTerminal(t *testing.T) {
	for _, s := range []State{StateFinished, StateTimeout, StateCanceled, StateError} {
		if !s.Terminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}
	for _, s := range []State{StateCreated, StateProcessing} {
		if s.Terminal() {
			t.Errorf("expected %s to be non-terminal", s)
		}
	}
}

func TestIsLocal(t *testing.T) {
	if !(Message{ID: LocalIDPrefix + "x"}).IsLocal() {
		t.Error("expected local id to be reported as local")
	}
	if (Message{ID: "m1"}).IsLocal() {
		t.Error("expected server id to be reported as non-local")
	}
}
