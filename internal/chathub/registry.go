package chathub

// RoomRegistry tracks which room each connection is in. A connection is in
// exactly one room at a time.
//
// The registry has no locks: it is owned by the ManagerService event loop
// and must only be touched from there.
type RoomRegistry struct {
	defaultRoom string
	clients     map[string]Client
	rooms       map[string]string            // connID -> room
	members     map[string]map[string]Client // room -> connID -> client
}

func NewRoomRegistry(defaultRoom string) *RoomRegistry {
	return &RoomRegistry{
		defaultRoom: defaultRoom,
		clients:     make(map[string]Client),
		rooms:       make(map[string]string),
		members:     make(map[string]map[string]Client),
	}
}

func (r *RoomRegistry) DefaultRoom() string { return r.defaultRoom }

// Add registers a connection in the default room and returns that room.
// Adding a connection that is already present leaves it where it is.
func (r *RoomRegistry) Add(c Client) string {
	id := c.GetConnID()
	if room, ok := r.rooms[id]; ok {
		return room
	}
	r.clients[id] = c
	r.put(id, r.defaultRoom)
	return r.defaultRoom
}

// Join moves connID into room, leaving its previous room. An empty room
// means the default room. Joining the current room is a no-op. It returns the
// previous room, and false if the connection is unknown.
func (r *RoomRegistry) Join(connID, room string) (string, bool) {
	if room == "" {
		room = r.defaultRoom
	}
	prev, ok := r.rooms[connID]
	if !ok {
		return "", false
	}
	if prev == room {
		return prev, true
	}
	r.remove(connID, prev)
	r.put(connID, room)
	return prev, true
}

// Leave removes connID from the registry entirely and returns the client and
// the room it was in.
func (r *RoomRegistry) Leave(connID string) (Client, string, bool) {
	c, ok := r.clients[connID]
	if !ok {
		return nil, "", false
	}
	room := r.rooms[connID]
	r.remove(connID, room)
	delete(r.rooms, connID)
	delete(r.clients, connID)
	return c, room, true
}

// MembersOf returns a snapshot of the clients currently in room. Later joins
// and leaves do not affect the returned slice.
func (r *RoomRegistry) MembersOf(room string) []Client {
	set := r.members[room]
	out := make([]Client, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

func (r *RoomRegistry) CurrentRoom(connID string) (string, bool) {
	room, ok := r.rooms[connID]
	return room, ok
}

func (r *RoomRegistry) Client(connID string) (Client, bool) {
	c, ok := r.clients[connID]
	return c, ok
}

// All returns every registered client.
func (r *RoomRegistry) All() []Client {
	out := make([]Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

func (r *RoomRegistry) Len() int { return len(r.clients) }

func (r *RoomRegistry) put(connID, room string) {
	set, ok := r.members[room]
	if !ok {
		set = make(map[string]Client)
		r.members[room] = set
	}
	set[connID] = r.clients[connID]
	r.rooms[connID] = room
}

func (r *RoomRegistry) remove(connID, room string) {
	set := r.members[room]
	delete(set, connID)
	// Rooms are never deleted, only their empty membership sets.
	if len(set) == 0 {
		delete(r.members, room)
	}
}
