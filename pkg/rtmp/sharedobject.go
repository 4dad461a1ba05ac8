package rtmp

import (
	"github.com/aminofox/rtmplink/pkg/errors"
)

// Observer receives notifications when a shared object's replicated state
// changes. Implementations run synchronously on the session's dispatch
// loop and must not block it.
type Observer interface {
	// OnChange is invoked after an attribute is set or updated
	OnChange(key string)

	// OnDelete is invoked after an attribute is removed
	OnDelete(key string)

	// OnMessage is invoked for broadcast message events
	OnMessage(values []interface{})
}

// NopObserver ignores all notifications
type NopObserver struct{}

// OnChange implements Observer
func (NopObserver) OnChange(string) {}

// OnDelete implements Observer
func (NopObserver) OnDelete(string) {}

// OnMessage implements Observer
func (NopObserver) OnMessage([]interface{}) {}

// SharedObject tracks the client-side state of one named remote shared
// object. Its Data map is mutated only by server-pushed events.
type SharedObject struct {
	// Name is the immutable object name
	Name string

	// Data is the replicated attribute map
	Data map[string]interface{}

	// UseSuccess records that the server acknowledged the use event
	UseSuccess bool

	observer Observer
}

// NewSharedObject creates an unbound shared object with empty data. A nil
// observer is replaced with NopObserver.
func NewSharedObject(name string, observer Observer) *SharedObject {
	if observer == nil {
		observer = NopObserver{}
	}
	return &SharedObject{
		Name:     name,
		Data:     make(map[string]interface{}),
		observer: observer,
	}
}

// Use sends the use event that subscribes this object to server updates.
func (so *SharedObject) Use(w *Writer) error {
	so.UseSuccess = false

	msg := &SharedObjectMessage{
		Name:    so.Name,
		Version: 0,
		Events:  []SOEvent{&SOUse{}},
	}
	if err := w.WriteMessage(msg); err != nil {
		return err
	}
	return w.Flush()
}

// HandleMessage offers an incoming message to this object. It returns true
// when the message was a shared object message addressed to this object's
// name, false otherwise.
func (so *SharedObject) HandleMessage(msg Message) (bool, error) {
	soMsg, ok := msg.(*SharedObjectMessage)
	if !ok || soMsg.Name != so.Name {
		return false, nil
	}

	events := soMsg.Events
	if !so.UseSuccess {
		// The server acknowledges a use event with use success followed
		// by clear; both are consumed by the transition.
		if len(events) < 2 {
			return true, errors.New(errors.ErrCodeSharedObjectState,
				"shared object not in use and message carries no acknowledgement")
		}
		if _, ok := events[0].(*SOUseSuccess); !ok {
			return true, errors.New(errors.ErrCodeSharedObjectState,
				"first event on unbound shared object is not use success")
		}
		if _, ok := events[1].(*SOClear); !ok {
			return true, errors.New(errors.ErrCodeSharedObjectState,
				"use success not followed by clear")
		}
		events = events[2:]
		so.UseSuccess = true
	}

	if err := so.applyEvents(events); err != nil {
		return true, err
	}
	return true, nil
}

// applyEvents applies server events in wire order.
func (so *SharedObject) applyEvents(events []SOEvent) error {
	for _, event := range events {
		switch e := event.(type) {
		case *SOChange:
			for _, key := range e.Keys {
				so.Data[key] = e.Changes[key]
				so.observer.OnChange(key)
			}

		case *SODelete:
			if _, ok := so.Data[e.Key]; !ok {
				return errors.Newf(errors.ErrCodeSharedObjectKey,
					"delete for unknown attribute %q on shared object %q", e.Key, so.Name)
			}
			delete(so.Data, e.Key)
			so.observer.OnDelete(e.Key)

		case *SOMessage:
			so.observer.OnMessage(e.Values)

		default:
			return errors.Newf(errors.ErrCodeSharedObjectState,
				"unexpected event %T on shared object %q", event, so.Name)
		}
	}
	return nil
}
