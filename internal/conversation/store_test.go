package conversation

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakePanel struct {
	closed int
}

func (p *fakePanel) Close() { p.closed++ }

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("turn-%d", n)
	}
}

func TestStartCreatesSingleAssistantTurn(t *testing.T) {
	store := NewStore(nil)
	store.Start("perspicacious", "having keen insight...", Context{}, nil)

	conv := store.Snapshot()
	require.NotNil(t, conv)
	require.Len(t, conv.Turns, 1)
	assert.Equal(t, RoleAssistant, conv.Turns[0].Role)
	assert.Equal(t, "having keen insight...", conv.Turns[0].Content)
	assert.NotEmpty(t, conv.Turns[0].ID)
	assert.Equal(t, ScopeHighlight, conv.Scope)
	assert.Equal(t, "perspicacious", conv.AnchorText)
}

func TestStartReplacesPreviousConversation(t *testing.T) {
	store := NewStore(nil)
	store.Start("first", "one", Context{Chapter: "chapter text"}, nil)
	store.Append(RoleUser, "question")
	require.True(t, store.SetScope(ScopeChapter))

	store.Start("second", "two", Context{}, nil)

	conv := store.Snapshot()
	require.Len(t, conv.Turns, 1)
	assert.Equal(t, "two", conv.Turns[0].Content)
	assert.Equal(t, "second", conv.AnchorText)
	assert.Equal(t, ScopeHighlight, conv.Scope)
}

func TestStartSeedsImportedTurnsVerbatim(t *testing.T) {
	stamp := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	imported := []Turn{
		{ID: "a", Role: RoleAssistant, Content: "definition", CreatedAt: stamp},
		{ID: "b", Role: RoleUser, Content: "why?", CreatedAt: stamp.Add(time.Second)},
		{ID: "c", Role: RoleAssistant, Content: "because", CreatedAt: stamp.Add(2 * time.Second)},
	}
	store := NewStore(nil)
	store.Start("anchor", "ignored", Context{}, imported)

	conv := store.Snapshot()
	assert.Equal(t, imported, conv.Turns)

	imported[0].Content = "mutated"
	assert.Equal(t, "definition", store.Snapshot().Turns[0].Content, "store must not alias caller slice")
}

func TestAppendKeepsCallOrderAndMonotonicTimestamps(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	// The clock steps backwards on the third call.
	offsets := []time.Duration{0, time.Second, 2 * time.Second, time.Second, 5 * time.Second, 6 * time.Second}
	calls := 0
	clock := func() time.Time {
		d := offsets[calls%len(offsets)]
		calls++
		return base.Add(d)
	}
	store := NewStore(nil, WithClock(clock), WithIDGenerator(sequentialIDs()))
	store.Start("anchor", "first", Context{}, nil)

	contents := []string{"q1", "a1", "q2", "a2", "q3"}
	for i, content := range contents {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		_, ok := store.Append(role, content)
		require.True(t, ok)
	}

	conv := store.Snapshot()
	require.Len(t, conv.Turns, len(contents)+1)
	for i, content := range contents {
		assert.Equal(t, content, conv.Turns[i+1].Content)
	}
	for i := 1; i < len(conv.Turns); i++ {
		assert.False(t, conv.Turns[i].CreatedAt.Before(conv.Turns[i-1].CreatedAt),
			"turn %d timestamp went backwards", i)
	}
	assert.Equal(t, "turn-1", conv.Turns[0].ID)
	assert.Equal(t, "turn-6", conv.Turns[5].ID)
}

func TestAppendWithoutConversationIsNoop(t *testing.T) {
	store := NewStore(nil)
	_, ok := store.Append(RoleUser, "hi")
	assert.False(t, ok)
	assert.False(t, store.Active())
	assert.Nil(t, store.Snapshot())
}

func TestSetScopeRequiresContext(t *testing.T) {
	store := NewStore(nil)
	assert.False(t, store.SetScope(ScopeChapter), "no conversation")

	store.Start("anchor", "reply", Context{Chapter: "chapter body"}, nil)
	assert.True(t, store.SetScope(ScopeChapter))
	assert.False(t, store.SetScope(ScopeBook), "book context missing")
	assert.Equal(t, ScopeChapter, store.Scope())
	assert.True(t, store.SetScope(ScopeHighlight))
	assert.Equal(t, ScopeHighlight, store.Scope())
}

func TestClearClosesPanelRegardlessOfState(t *testing.T) {
	panel := &fakePanel{}
	store := NewStore(panel)

	store.Clear()
	assert.Equal(t, 1, panel.closed)
	assert.False(t, store.Active())

	store.Start("anchor", "reply", Context{}, nil)
	store.Clear()
	assert.Equal(t, 2, panel.closed)
	assert.False(t, store.Active())
	assert.Nil(t, store.Snapshot())
}

func TestAppendReplyDropsStaleGenerations(t *testing.T) {
	store := NewStore(nil)
	store.Start("anchor", "reply", Context{}, nil)
	gen := store.Generation()
	store.Append(RoleUser, "question")

	store.Start("other", "reply", Context{}, nil)
	_, ok := store.AppendReply(gen, "late answer")
	assert.False(t, ok)
	assert.Len(t, store.Snapshot().Turns, 1)

	_, ok = store.AppendReply(store.Generation(), "fresh answer")
	assert.True(t, ok)
	assert.Len(t, store.Snapshot().Turns, 2)

	gen = store.Generation()
	store.Clear()
	_, ok = store.AppendReply(gen, "after clear")
	assert.False(t, ok)
}

func TestSnapshotIsIndependentCopy(t *testing.T) {
	store := NewStore(nil)
	store.Start("anchor", "reply", Context{}, nil)
	snap := store.Snapshot()
	snap.Turns[0].Content = "edited"
	snap.Turns = append(snap.Turns, Turn{Content: "extra"})

	fresh := store.Snapshot()
	assert.Equal(t, "reply", fresh.Turns[0].Content)
	assert.Len(t, fresh.Turns, 1)
}

func TestParseScope(t *testing.T) {
	cases := []struct {
		in      string
		want    Scope
		wantErr bool
	}{
		{"", ScopeHighlight, false},
		{"highlight", ScopeHighlight, false},
		{" Chapter ", ScopeChapter, false},
		{"BOOK", ScopeBook, false},
		{"page", "", true},
	}
	for _, tc := range cases {
		got, err := ParseScope(tc.in)
		if tc.wantErr {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}
