package dfplayer

import (
	"container/list"
	"sync"
)

// Listener is called with an event from the Link loop.
// It must not call Player commands or queries: they wait for the loop,
// which is blocked until the listener returns, so the call deadlocks.
// Start a goroutine for such work.
type Listener func(Event)

// Subscription is a registered listener.
type Subscription struct {
	registry *listenerRegistry
	kind     EventKind
	elm      *list.Element
	listener Listener
}

// listenerRegistry keeps listeners per event kind in registration order.
// Dispatch works on a snapshot, so listeners added or removed while an
// event is being dispatched take effect from the next event.
type listenerRegistry struct {
	lock  sync.RWMutex
	lists [numEventKinds]list.List
}

func (r *listenerRegistry) add(kind EventKind, l Listener) *Subscription {
	sub := &Subscription{registry: r, kind: kind, listener: l}
	r.lock.Lock()
	sub.elm = r.lists[kind].PushBack(sub)
	r.lock.Unlock()
	return sub
}

func (r *listenerRegistry) dispatch(ev Event) {
	kind := ev.Kind()
	r.lock.RLock()
	lst := &r.lists[kind]
	listeners := make([]Listener, 0, lst.Len())
	for elm := lst.Front(); elm != nil; elm = elm.Next() {
		listeners = append(listeners, elm.Value.(*Subscription).listener)
	}
	r.lock.RUnlock()
	for _, l := range listeners {
		l(ev)
	}
}

// Close unregisters the listener.
func (s *Subscription) Close() error {
	r := s.registry
	r.lock.Lock()
	if s.elm != nil {
		r.lists[s.kind].Remove(s.elm)
		s.elm = nil
	}
	r.lock.Unlock()
	return nil
}
