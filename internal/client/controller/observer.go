package controller

import (
	"github.com/dmitrijs2005/atlasmessenger/internal/client/layer"
	"github.com/dmitrijs2005/atlasmessenger/internal/client/models"
)

// Observers subscribe with Subscribe and implement any subset of the
// interfaces below. Missing capabilities are skipped. All methods are called
// on the controller's Dispatcher.

// StateObserver is told about every state transition.
type StateObserver interface {
	StateChanged(from, to models.State)
}

// ConnectionObserver receives the connection lifecycle events of the
// messaging client: connecting, connected, disconnected and connection lost.
type ConnectionObserver interface {
	ConnectionChanged(ev layer.Event)
}

// ErrorObserver receives errors that have no completion callback to go to:
// messaging client errors and failures during background re-authentication
// or session restore.
type ErrorObserver interface {
	ControllerError(err error)
}

// NotificationObserver receives the conversation and message a recognized
// remote notification referred to.
type NotificationObserver interface {
	NotificationReceived(res *layer.NotificationResult)
}

type subscription struct {
	id       int
	observer any
}

// Subscribe registers o and returns a function removing it again. Observers
// are notified in subscription order.
func (c *LayerController) Subscribe(o any) (unsubscribe func()) {
	c.obsMu.Lock()
	c.nextObserverID++
	id := c.nextObserverID
	c.observers = append(c.observers, subscription{id: id, observer: o})
	c.obsMu.Unlock()

	return func() {
		c.obsMu.Lock()
		defer c.obsMu.Unlock()
		for i, s := range c.observers {
			if s.id == id {
				c.observers = append(c.observers[:i:i], c.observers[i+1:]...)
				return
			}
		}
	}
}

func (c *LayerController) snapshot() []any {
	c.obsMu.RLock()
	defer c.obsMu.RUnlock()

	out := make([]any, len(c.observers))
	for i, s := range c.observers {
		out[i] = s.observer
	}
	return out
}

func (c *LayerController) notifyState(from, to models.State) {
	obs := c.snapshot()
	c.dispatcher.Dispatch(func() {
		for _, o := range obs {
			if so, ok := o.(StateObserver); ok {
				so.StateChanged(from, to)
			}
		}
	})
}

func (c *LayerController) notifyConnection(ev layer.Event) {
	obs := c.snapshot()
	c.dispatcher.Dispatch(func() {
		for _, o := range obs {
			if co, ok := o.(ConnectionObserver); ok {
				co.ConnectionChanged(ev)
			}
		}
	})
}

func (c *LayerController) notifyError(err error) {
	obs := c.snapshot()
	c.dispatcher.Dispatch(func() {
		for _, o := range obs {
			if eo, ok := o.(ErrorObserver); ok {
				eo.ControllerError(err)
			}
		}
	})
}

func (c *LayerController) notifyNotification(res *layer.NotificationResult) {
	obs := c.snapshot()
	c.dispatcher.Dispatch(func() {
		for _, o := range obs {
			if no, ok := o.(NotificationObserver); ok {
				no.NotificationReceived(res)
			}
		}
	})
}
