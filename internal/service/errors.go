package service

import "fmt"

// FetchError wraps an upstream data-source failure. The cycle aborts and no
// history or suppression state is touched.
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string { return fmt.Sprintf("fetch snapshots: %v", e.Err) }
func (e *FetchError) Unwrap() error { return e.Err }

// PersistenceError wraps a history or alert-log write failure for one symbol.
// The affected symbol is excluded from classification so alerts never fire
// off state that only exists in memory; the rest of the batch proceeds.
type PersistenceError struct {
	Symbol string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Symbol, e.Err)
}
func (e *PersistenceError) Unwrap() error { return e.Err }

// DeliveryError wraps a notifier failure. Alert records stay persisted with
// delivered=false; nothing is retried within the cycle.
type DeliveryError struct {
	Err error
}

func (e *DeliveryError) Error() string { return fmt.Sprintf("deliver alerts: %v", e.Err) }
func (e *DeliveryError) Unwrap() error { return e.Err }
