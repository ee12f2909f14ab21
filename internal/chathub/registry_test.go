package chathub_test

import (
	"checkin/backend/internal/chathub"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connIDs(clients []chathub.Client) []string {
	ids := make([]string, len(clients))
	for i, c := range clients {
		ids[i] = c.GetConnID()
	}
	return ids
}

func TestRoomRegistry_AddJoinsDefaultRoom(t *testing.T) {
	r := chathub.NewRoomRegistry("general")
	a := newMockClient("a")

	assert.Equal(t, "general", r.Add(a))
	room, ok := r.CurrentRoom("a")
	require.True(t, ok)
	assert.Equal(t, "general", room)
	assert.Equal(t, []string{"a"}, connIDs(r.MembersOf("general")))

	// Adding again keeps the connection where it is.
	r.Join("a", "random")
	assert.Equal(t, "random", r.Add(a))
	assert.Equal(t, 1, r.Len())
}

func TestRoomRegistry_JoinIsIdempotent(t *testing.T) {
	r := chathub.NewRoomRegistry("general")
	r.Add(newMockClient("a"))

	for i := 0; i < 3; i++ {
		_, ok := r.Join("a", "random")
		require.True(t, ok)
	}

	assert.Equal(t, []string{"a"}, connIDs(r.MembersOf("random")))
	assert.Empty(t, r.MembersOf("general"))
}

func TestRoomRegistry_RoomIsolation(t *testing.T) {
	r := chathub.NewRoomRegistry("general")
	r.Add(newMockClient("a"))
	r.Add(newMockClient("b"))
	r.Add(newMockClient("c"))

	prev, ok := r.Join("c", "other-room")
	require.True(t, ok)
	assert.Equal(t, "general", prev)

	assert.ElementsMatch(t, []string{"a", "b"}, connIDs(r.MembersOf("general")))
	assert.Equal(t, []string{"c"}, connIDs(r.MembersOf("other-room")))
	assert.Empty(t, r.MembersOf("nowhere"))
}

func TestRoomRegistry_JoinEmptyRoomMeansDefault(t *testing.T) {
	r := chathub.NewRoomRegistry("general")
	r.Add(newMockClient("a"))
	r.Join("a", "random")

	prev, ok := r.Join("a", "")
	require.True(t, ok)
	assert.Equal(t, "random", prev)

	room, _ := r.CurrentRoom("a")
	assert.Equal(t, "general", room)
}

func TestRoomRegistry_JoinUnknownConnection(t *testing.T) {
	r := chathub.NewRoomRegistry("general")
	_, ok := r.Join("ghost", "random")
	assert.False(t, ok)
	assert.Empty(t, r.MembersOf("random"))
}

func TestRoomRegistry_Leave(t *testing.T) {
	r := chathub.NewRoomRegistry("general")
	a := newMockClient("a")
	r.Add(a)
	r.Join("a", "random")

	c, room, ok := r.Leave("a")
	require.True(t, ok)
	assert.Same(t, a, c)
	assert.Equal(t, "random", room)
	assert.Empty(t, r.MembersOf("random"))
	assert.Equal(t, 0, r.Len())

	_, _, ok = r.Leave("a")
	assert.False(t, ok)
}

func TestRoomRegistry_MembersOfIsSnapshot(t *testing.T) {
	r := chathub.NewRoomRegistry("general")
	r.Add(newMockClient("a"))

	snapshot := r.MembersOf("general")
	r.Add(newMockClient("b"))
	r.Leave("a")

	assert.Equal(t, []string{"a"}, connIDs(snapshot))
	assert.Equal(t, []string{"b"}, connIDs(r.MembersOf("general")))
}
