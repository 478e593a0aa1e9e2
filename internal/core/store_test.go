package core

import (
	"testing"

	"github.com/xonecas/parley/internal/chat"
)

func msg(id string, role chat.Role, state chat.State, content string) chat.Message {
	return chat.Message{ID: chat.ID(id), ConversationID: "c1", Role: role, State: state, Content: content}
}

func ids(msgs []chat.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID.String()
	}
	return out
}

func assertIDs(t *testing.T, got []chat.Message, want ...string) {
	t.Helper()
	g := ids(got)
	if len(g) != len(want) {
		t.Fatalf("ids = %v, want %v", g, want)
	}
	for i := range want {
		if g[i] != want[i] {
			t.Fatalf("ids = %v, want %v", g, want)
		}
	}
}

func TestMessageStoreUpsertIdempotent(t *testing.T) {
	s := NewMessageStore()
	s.ReplaceAll([]chat.Message{msg("m1", chat.RoleUser, chat.StateFinished, "hi")})

	m := msg("m2", chat.RoleAssistant, chat.StateFinished, "hello!")
	if !s.Upsert(m) {
		t.Error("first Upsert should append")
	}
	once := s.Snapshot()
	if s.Upsert(m) {
		t.Error("second Upsert should not append")
	}
	twice := s.Snapshot()

	assertIDs(t, twice, ids(once)...)
	if twice[1].Content != once[1].Content || twice[1].State != once[1].State {
		t.Errorf("record changed: %+v vs %+v", twice[1], once[1])
	}
}

func TestMessageStoreOrderPreservedOnUpdate(t *testing.T) {
	s := NewMessageStore()
	s.Append([]chat.Message{
		msg("m1", chat.RoleUser, chat.StateFinished, "q"),
		msg("m2", chat.RoleAssistant, chat.StateProcessing, "..."),
		msg("m3", chat.RoleUser, chat.StateFinished, "q2"),
	})

	s.Upsert(msg("m2", chat.RoleAssistant, chat.StateFinished, "answer"))

	snap := s.Snapshot()
	assertIDs(t, snap, "m1", "m2", "m3")
	if snap[1].Content != "answer" || snap[1].State != chat.StateFinished {
		t.Errorf("m2 not replaced: %+v", snap[1])
	}
}

func TestMessageStoreNoDuplicateIDs(t *testing.T) {
	s := NewMessageStore()
	ops := []chat.Message{
		msg("a", chat.RoleUser, chat.StateCreated, "1"),
		msg("b", chat.RoleAssistant, chat.StateProcessing, "2"),
		msg("a", chat.RoleUser, chat.StateFinished, "1"),
		msg("b", chat.RoleAssistant, chat.StateFinished, "2"),
		msg("c", chat.RoleUser, chat.StateFinished, "3"),
		msg("a", chat.RoleUser, chat.StateFinished, "1"),
	}
	for _, m := range ops {
		s.Upsert(m)
	}
	s.Append(ops)
	s.ReplaceAll(append(ops, ops...))

	seen := make(map[chat.ID]int)
	for _, m := range s.Snapshot() {
		seen[m.ID]++
	}
	for id, n := range seen {
		if n > 1 {
			t.Errorf("id %s appears %d times", id, n)
		}
	}
	assertIDs(t, s.Snapshot(), "a", "b", "c")
}

func TestMessageStoreReplaceAll(t *testing.T) {
	s := NewMessageStore()
	s.Upsert(msg("old", chat.RoleUser, chat.StateFinished, "x"))
	s.ReplaceAll([]chat.Message{msg("n1", chat.RoleUser, chat.StateFinished, "y")})

	assertIDs(t, s.Snapshot(), "n1")
	if _, ok := s.Get("old"); ok {
		t.Error("old record survived ReplaceAll")
	}
}

func TestMessageStoreSourcesOnlyWhenFinished(t *testing.T) {
	s := NewMessageStore()
	m := msg("m1", chat.RoleAssistant, chat.StateProcessing, "...")
	m.Sources = []chat.Source{{DocumentID: "d1"}}
	s.Upsert(m)

	got, _ := s.Get("m1")
	if len(got.Sources) != 0 {
		t.Errorf("processing message kept sources: %+v", got.Sources)
	}

	m.State = chat.StateFinished
	s.Upsert(m)
	got, _ = s.Get("m1")
	if len(got.Sources) != 1 {
		t.Errorf("finished message lost sources: %+v", got.Sources)
	}
}

func TestMessageStoreSnapshotIsCopy(t *testing.T) {
	s := NewMessageStore()
	s.Upsert(msg("m1", chat.RoleUser, chat.StateFinished, "hi"))

	snap := s.Snapshot()
	snap[0].Content = "mutated"

	got, _ := s.Get("m1")
	if got.Content != "hi" {
		t.Error("Snapshot shares storage with the store")
	}
}

func TestMessageStoreResolve(t *testing.T) {
	tests := []struct {
		name      string
		existing  []chat.Message
		confirmed []chat.Message
		want      []string
	}{
		{
			name:      "first record takes the local slot",
			existing:  []chat.Message{msg("m1", chat.RoleUser, chat.StateFinished, "q")},
			confirmed: []chat.Message{msg("m3", chat.RoleUser, chat.StateFinished, "2+2?"), msg("m4", chat.RoleAssistant, chat.StateProcessing, "...")},
			want:      []string{"m1", "m3", "m4"},
		},
		{
			name: "record already pushed",
			existing: []chat.Message{
				msg("m1", chat.RoleUser, chat.StateFinished, "q"),
				msg("m3", chat.RoleUser, chat.StateProcessing, "2+2?"),
			},
			confirmed: []chat.Message{msg("m3", chat.RoleUser, chat.StateProcessing, "2+2?")},
			want:      []string{"m1", "m3"},
		},
		{
			name:     "no records",
			existing: []chat.Message{msg("m1", chat.RoleUser, chat.StateFinished, "q")},
			want:     []string{"m1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewMessageStore()
			local := chat.ID(chat.LocalIDPrefix + "x")
			// The optimistic entry goes in before anything pushed during the request.
			s.Append(tt.existing[:1])
			s.Upsert(chat.Message{ID: local, Role: chat.RoleUser, State: chat.StateCreated, Content: "2+2?"})
			s.Append(tt.existing[1:])

			s.Resolve(local, tt.confirmed)
			assertIDs(t, s.Snapshot(), tt.want...)
		})
	}
}

func TestMessageStoreRemoveOnlyLocal(t *testing.T) {
	s := NewMessageStore()
	local := chat.ID(chat.LocalIDPrefix + "x")
	s.Upsert(msg("m1", chat.RoleUser, chat.StateFinished, "q"))
	s.Upsert(chat.Message{ID: local, Role: chat.RoleUser, State: chat.StateCreated, Content: "q2"})
	s.Upsert(msg("m2", chat.RoleAssistant, chat.StateFinished, "a"))

	if s.Remove("m1") {
		t.Error("Remove dropped a server record")
	}
	if !s.Remove(local) {
		t.Error("Remove did not drop the optimistic entry")
	}
	assertIDs(t, s.Snapshot(), "m1", "m2")

	// Index must follow the shift.
	s.Upsert(msg("m2", chat.RoleAssistant, chat.StateFinished, "b"))
	assertIDs(t, s.Snapshot(), "m1", "m2")
}

func TestMessageStoreTailFlags(t *testing.T) {
	s := NewMessageStore()
	if s.AssistantResponding() || s.TailProcessing() {
		t.Error("empty store reports processing")
	}

	s.Upsert(msg("m1", chat.RoleUser, chat.StateProcessing, "q"))
	if !s.TailProcessing() || s.AssistantResponding() {
		t.Error("user processing tail misreported")
	}

	s.Upsert(msg("m2", chat.RoleAssistant, chat.StateProcessing, "..."))
	if !s.AssistantResponding() {
		t.Error("assistant processing tail not reported")
	}
}
