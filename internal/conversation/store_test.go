package conversation

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"PickleChat/internal/events"
	"PickleChat/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "conversations"

func fixedClock() func() time.Time {
	t0 := time.UnixMilli(1700000000000)
	return func() time.Time { return t0 }
}

func newTestStore(t *testing.T, kv storage.KV) (*Store, *events.Recorder) {
	t.Helper()
	rec := &events.Recorder{}
	s, err := NewStore(kv, testKey, rec, WithClock(fixedClock()))
	require.NoError(t, err)
	return s, rec
}

func TestNewStoreEmpty(t *testing.T) {
	s, _ := newTestStore(t, storage.NewMemory())

	_, ok := s.Current()
	assert.False(t, ok)
	assert.Empty(t, s.List())
	assert.Equal(t, "", s.CurrentID())
}

func TestNewStoreLoadsExistingCollection(t *testing.T) {
	kv := storage.NewMemory()
	raw := `[{"id":"2","title":"Second","messages":[{"role":"User","content":"hi"}]},{"id":"1","title":"New Chat","messages":[]}]`
	require.NoError(t, kv.Put(testKey, []byte(raw)))

	s, rec := newTestStore(t, kv)
	assert.Equal(t, "2", s.CurrentID())

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, Summary{ID: "2", Title: "Second", Preview: "You: hi...", Current: true}, list[0])
	assert.Equal(t, "New conversation", list[1].Preview)

	s.Announce()
	assert.Equal(t, []events.Kind{events.ConversationsChanged, events.ConversationLoaded}, rec.Kinds())
}

func TestNewStoreRejectsCorruptData(t *testing.T) {
	kv := storage.NewMemory()
	require.NoError(t, kv.Put(testKey, []byte("{not json")))

	_, err := NewStore(kv, testKey, nil)
	assert.Error(t, err)
}

func TestCreatePrependsAndSelects(t *testing.T) {
	kv := storage.NewMemory()
	s, _ := newTestStore(t, kv)

	first, err := s.Create()
	require.NoError(t, err)
	second, err := s.Create()
	require.NoError(t, err)

	assert.Equal(t, "1700000000000", first.ID)
	assert.Equal(t, "1700000000001", second.ID, "ids stay unique within the same millisecond")
	assert.Equal(t, DefaultTitle, second.Title)
	assert.Equal(t, second.ID, s.CurrentID())

	all := s.All()
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID)
	assert.Equal(t, first.ID, all[1].ID)
	assert.Equal(t, 2, kv.Writes())
}

func TestEveryMutationRewritesWholeCollection(t *testing.T) {
	kv := storage.NewMemory()
	s, rec := newTestStore(t, kv)

	c, err := s.Create()
	require.NoError(t, err)
	require.NoError(t, s.Append(c.ID, Message{Role: RoleUser, Content: "hi"}))
	require.NoError(t, s.SetTitle(c.ID, "Greetings"))

	data, err := kv.Get(testKey)
	require.NoError(t, err)
	var stored []Conversation
	require.NoError(t, json.Unmarshal(data, &stored))
	require.Len(t, stored, 1)
	assert.Equal(t, "Greetings", stored[0].Title)
	require.Len(t, stored[0].Messages, 1)
	assert.Equal(t, RoleUser, stored[0].Messages[0].Role)
	assert.Contains(t, string(data), `"role":"User"`)

	assert.Equal(t, 3, kv.Writes())
	assert.Equal(t, 3, rec.Count(events.ConversationsChanged))
}

func TestAppendIsAppendOnly(t *testing.T) {
	s, _ := newTestStore(t, storage.NewMemory())
	c, err := s.Create()
	require.NoError(t, err)

	require.NoError(t, s.Append(c.ID, Message{Role: RoleUser, Content: "one"}))
	snapshot, err := s.Get(c.ID)
	require.NoError(t, err)
	snapshot.Messages[0].Content = "tampered"

	require.NoError(t, s.Append(c.ID, Message{Role: RoleBot, Content: "two"}))

	got, err := s.Get(c.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "one", got.Messages[0].Content)
	assert.Equal(t, "two", got.Messages[1].Content)
	assert.False(t, got.Messages[0].Timestamp.IsZero())
}

func TestAppendUnknownConversation(t *testing.T) {
	s, _ := newTestStore(t, storage.NewMemory())
	err := s.Append("nope", Message{Role: RoleUser, Content: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.SetTitle("nope", "x"), ErrNotFound)
}

func TestLoad(t *testing.T) {
	s, rec := newTestStore(t, storage.NewMemory())
	a, _ := s.Create()
	b, _ := s.Create()
	require.Equal(t, b.ID, s.CurrentID())

	got, err := s.Load(a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, a.ID, s.CurrentID())
	assert.Equal(t, events.ConversationLoaded, rec.Events()[len(rec.Events())-1].Kind)

	_, err = s.Load("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, a.ID, s.CurrentID())
}

func TestDeleteCurrentSelectsFirstRemaining(t *testing.T) {
	s, _ := newTestStore(t, storage.NewMemory())
	a, _ := s.Create()
	b, _ := s.Create()
	c, _ := s.Create()

	_, err := s.Load(b.ID)
	require.NoError(t, err)

	require.NoError(t, s.Delete(b.ID))
	assert.Equal(t, c.ID, s.CurrentID())

	require.NoError(t, s.Delete(c.ID))
	assert.Equal(t, a.ID, s.CurrentID())

	require.NoError(t, s.Delete(a.ID))
	assert.Equal(t, "", s.CurrentID())
	_, ok := s.Current()
	assert.False(t, ok)
}

func TestDeleteOtherKeepsCurrent(t *testing.T) {
	s, _ := newTestStore(t, storage.NewMemory())
	a, _ := s.Create()
	b, _ := s.Create()

	require.NoError(t, s.Delete(a.ID))
	assert.Equal(t, b.ID, s.CurrentID())
	assert.ErrorIs(t, s.Delete(a.ID), ErrNotFound)
}

func TestDeleteAll(t *testing.T) {
	kv := storage.NewMemory()
	s, rec := newTestStore(t, kv)
	s.Create()
	s.Create()

	require.NoError(t, s.DeleteAll())
	assert.Empty(t, s.List())
	assert.Equal(t, "", s.CurrentID())
	assert.Equal(t, events.Welcome, rec.Events()[len(rec.Events())-1].Kind)

	data, err := kv.Get(testKey)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestStorageFailureKeepsMemoryState(t *testing.T) {
	kv := storage.NewMemory()
	s, _ := newTestStore(t, kv)
	c, err := s.Create()
	require.NoError(t, err)

	kv.FailWrites(errors.New("quota exceeded"))
	err = s.Append(c.ID, Message{Role: RoleUser, Content: "hi"})
	assert.Error(t, err)

	got, err := s.Get(c.ID)
	require.NoError(t, err)
	assert.Len(t, got.Messages, 1)
}

func TestPreview(t *testing.T) {
	long := strings.Repeat("a", 60)
	tests := []struct {
		name string
		conv Conversation
		want string
	}{
		{"empty", Conversation{}, "New conversation"},
		{"user last", Conversation{Messages: []Message{{Role: RoleUser, Content: "hello"}}}, "You: hello..."},
		{"bot last", Conversation{Messages: []Message{{Role: RoleBot, Content: "hey"}}}, "Pickle: hey..."},
		{"system last", Conversation{Messages: []Message{{Role: RoleSystem, Content: "x"}}}, "You: x..."},
		{"truncated", Conversation{Messages: []Message{{Role: RoleBot, Content: long}}}, "Pickle: " + long[:50] + "..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.conv.Preview())
		})
	}
}

func TestCountRole(t *testing.T) {
	c := Conversation{Messages: []Message{
		{Role: RoleUser}, {Role: RoleBot}, {Role: RoleUser}, {Role: RoleSystem},
	}}
	assert.Equal(t, 2, c.CountRole(RoleUser))
	assert.Equal(t, 1, c.CountRole(RoleBot))
}
