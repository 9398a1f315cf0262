package uow

import (
	"errors"
	"fmt"
)

// multiErr collects cleanup failures behind the error that caused the rollback.
type multiErr struct {
	primary error
	cleanup []error
}

func (m *multiErr) addCleanup(err error) {
	if err != nil {
		m.cleanup = append(m.cleanup, err)
	}
}

func (m *multiErr) error() error {
	if m.primary == nil {
		return errors.Join(m.cleanup...)
	}
	if len(m.cleanup) == 0 {
		return m.primary
	}
	return errors.Join(append([]error{m.primary}, m.cleanup...)...)
}

// Uow releases partially acquired connection resources when setup fails.
type Uow struct {
	cleanups []func() error
}

func UnitOfWork() *Uow {
	return &Uow{}
}

func (r *Uow) Add(name string, fn func() error) {
	r.cleanups = append(r.cleanups, func() error {
		if err := fn(); err != nil {
			return fmt.Errorf("cleanup %s: %w", name, err)
		}
		return nil
	})
}

// Rollback runs cleanups in LIFO order and returns primary joined with any cleanup errors.
func (r *Uow) Rollback(primary error) error {
	me := &multiErr{primary: primary}
	for i := len(r.cleanups) - 1; i >= 0; i-- {
		me.addCleanup(r.cleanups[i]())
	}
	r.cleanups = nil
	return me.error()
}

// Commit forgets registered cleanups; the resources now belong to the caller.
func (r *Uow) Commit() {
	r.cleanups = nil
}
