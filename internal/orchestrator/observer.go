package orchestrator

import "github.com/mpataki/cadence/internal/models"

// Observer receives run events after the state change has been committed.
// Observe is called without engine locks held, possibly from several
// goroutines at once.
type Observer interface {
	Observe(ev models.Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev models.Event)

func (f ObserverFunc) Observe(ev models.Event) { f(ev) }
