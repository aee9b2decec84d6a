package runtime

import (
	"context"
	"log/slog"
	"sync"

	"team-chat/contract"
	"team-chat/domain"
	"team-chat/domain/event"

	"github.com/samber/lo"
)

// room serializes fan-out with membership changes of the same room.
type room struct {
	mu      sync.Mutex
	members map[string]struct{} // connection ids
}

// Registry maps rooms to the connections subscribed to them.
// Lock order is always Registry.mu then room.mu.
type Registry struct {
	log         *slog.Logger
	mu          sync.RWMutex
	sessions    map[string]contract.EventSink           // map connection -> Sink
	memberships map[string]map[domain.RoomID]struct{} // map connection -> joined rooms
	rooms       map[domain.RoomID]*room
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		log:         log,
		sessions:    make(map[string]contract.EventSink),
		memberships: make(map[string]map[domain.RoomID]struct{}),
		rooms:       make(map[domain.RoomID]*room),
	}
}

// Attach registers the outbound sink of a connection.
// A connection may join rooms before or after being attached,
// it only receives events once a sink is known.
func (r *Registry) Attach(connectionID string, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[connectionID] = sink
}

// Join adds the connection to the room, creating the room on the fly.
// Joining twice is a no-op.
func (r *Registry) Join(connectionID string, roomID domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		rm = &room{members: make(map[string]struct{})}
		r.rooms[roomID] = rm
	}
	rm.mu.Lock()
	rm.members[connectionID] = struct{}{}
	rm.mu.Unlock()

	if _, ok := r.memberships[connectionID]; !ok {
		r.memberships[connectionID] = make(map[domain.RoomID]struct{})
	}
	r.memberships[connectionID][roomID] = struct{}{}
}

// Leave removes the connection from one room. Unknown rooms and
// non-members are ignored.
func (r *Registry) Leave(connectionID string, roomID domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.leave(connectionID, roomID)
	if rooms, ok := r.memberships[connectionID]; ok {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(r.memberships, connectionID)
		}
	}
}

// LeaveAll removes the connection from every room it joined and forgets its sink.
// Safe to call for a connection that joined nothing.
func (r *Registry) LeaveAll(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for roomID := range r.memberships[connectionID] {
		r.leave(connectionID, roomID)
	}
	delete(r.memberships, connectionID)
	delete(r.sessions, connectionID)
}

// leave must be called with r.mu held for writing.
// Empty rooms are removed so the map stays bounded by active teams.
func (r *Registry) leave(connectionID string, roomID domain.RoomID) {
	rm, ok := r.rooms[roomID]
	if !ok {
		return
	}
	rm.mu.Lock()
	delete(rm.members, connectionID)
	empty := len(rm.members) == 0
	rm.mu.Unlock()
	if empty {
		delete(r.rooms, roomID)
	}
}

// Subscribers returns a snapshot of the connections subscribed to the room.
// Unknown rooms yield an empty slice.
func (r *Registry) Subscribers(roomID domain.RoomID) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return []string{}
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return lo.Keys(rm.members)
}

// Broadcast builds an event and delivers it to every subscriber of the room.
//
// build runs while the room is locked, so events of one room are stamped and
// fanned out in a single total order, and a concurrent Join either lands before
// the snapshot (the joiner receives the event) or after the fan-out
// (the joiner finds it in history).
// Sinks never block, a full sink loses the event for that connection only.
// It returns the built event with the number of successful and failed deliveries.
func (r *Registry) Broadcast(ctx context.Context, roomID domain.RoomID, build func() event.DomainEvent) (event.DomainEvent, int, int) {
	r.mu.RLock()
	rm, ok := r.rooms[roomID]
	if !ok {
		// Hold the registry lock so nobody creates the room meanwhile.
		defer r.mu.RUnlock()
		return build(), 0, 0
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()

	targets := make(map[string]contract.EventSink, len(rm.members))
	for connectionID := range rm.members {
		if sink, exists := r.sessions[connectionID]; exists {
			targets[connectionID] = sink
		}
	}
	r.mu.RUnlock()

	evt := build()
	delivered, failed := 0, 0
	for connectionID, sink := range targets {
		if err := sink.Consume(ctx, evt); err != nil {
			r.log.Warn("Event not delivered", "connection_id", connectionID, "room", roomID, "error", err)
			failed++
			continue
		}
		delivered++
	}
	return evt, delivered, failed
}

// Deliver sends an event to a single connection, bypassing rooms.
func (r *Registry) Deliver(ctx context.Context, connectionID string, e event.DomainEvent) error {
	r.mu.RLock()
	sink, ok := r.sessions[connectionID]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	return sink.Consume(ctx, e)
}

// RoomsOf lists the rooms a connection is currently subscribed to.
func (r *Registry) RoomsOf(connectionID string) []domain.RoomID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.memberships[connectionID])
}

// Size reports the number of non-empty rooms and attached connections.
func (r *Registry) Size() (rooms int, connections int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms), len(r.sessions)
}
