//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"team-chat/domain"
	"team-chat/domain/event"
)

// ISupervisor keeps long running workers alive.
type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker runs until ctx is done. Returning nil means finished for good,
// an error or a panic asks the supervisor for a restart.
type Worker interface {
	Run(ctx context.Context) error
}

// NameOf returns the type name of a worker, used as its name in logs.
func NameOf(w Worker) string {
	if w == nil {
		return "nil"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink must not block: connection sinks drop when full.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// IRegistry tracks which connection listens to which room.
type IRegistry interface {
	Attach(connectionID string, sink EventSink)
	Join(connectionID string, roomID domain.RoomID)
	Leave(connectionID string, roomID domain.RoomID)
	LeaveAll(connectionID string)
	Subscribers(roomID domain.RoomID) []string
	// Broadcast stamps the event built by build and delivers it to the room,
	// returning the event with its delivered and failed counts.
	Broadcast(ctx context.Context, roomID domain.RoomID, build func() event.DomainEvent) (event.DomainEvent, int, int)
	Deliver(ctx context.Context, connectionID string, e event.DomainEvent) error
}
