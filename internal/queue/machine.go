package queue

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
)

// Transition is reported for every ticker relocation.
type Transition struct {
	Ticker string
	From   Document
	To     Document
}

// Observer receives transitions after they have been applied.
type Observer func(Transition)

// StateMachine drives tickers through todo -> doing -> maintain|bad_contract
// for a single worker.
type StateMachine struct {
	client   *Client
	log      *slog.Logger
	observer Observer
}

// Option configures a StateMachine.
type Option func(*StateMachine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *StateMachine) { m.log = l }
}

// WithObserver registers a callback for applied transitions.
func WithObserver(o Observer) Option {
	return func(m *StateMachine) { m.observer = o }
}

// NewStateMachine creates a state machine over client.
func NewStateMachine(client *Client, opts ...Option) *StateMachine {
	m := &StateMachine{
		client: client,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With("component", "queue", "slot", client.Field(Doing))
	return m
}

// Claim returns the ticker this worker should process next. A ticker
// already in the worker's doing slot is resumed (resumed == true); otherwise
// the first todo ticker is added to the slot and then removed from todo.
// ErrEmpty is returned when there is nothing to do.
func (m *StateMachine) Claim(ctx context.Context) (ticker string, resumed bool, err error) {
	slot, err := m.client.List(ctx, Doing)
	if err != nil {
		return "", false, fmt.Errorf("reading doing slot: %w", err)
	}
	if len(slot) > 0 {
		m.log.Info("resuming claimed ticker", "ticker", slot[0])
		return slot[0], true, nil
	}

	todo, err := m.client.List(ctx, Todo)
	if err != nil {
		return "", false, fmt.Errorf("reading todo: %w", err)
	}
	if len(todo) == 0 {
		return "", false, ErrEmpty
	}

	ticker = todo[0]
	if err := m.client.Move(ctx, ticker, Todo, Doing); err != nil {
		return "", false, err
	}
	m.emit(Transition{Ticker: ticker, From: Todo, To: Doing})
	m.log.Info("claimed ticker", "ticker", ticker, "remaining", len(todo)-1)
	return ticker, false, nil
}

// Complete moves ticker from the worker slot to maintain.
func (m *StateMachine) Complete(ctx context.Context, ticker string) error {
	return m.finish(ctx, ticker, Maintain)
}

// Reject moves ticker from the worker slot to bad_contract.
func (m *StateMachine) Reject(ctx context.Context, ticker string) error {
	return m.finish(ctx, ticker, BadContract)
}

func (m *StateMachine) finish(ctx context.Context, ticker string, to Document) error {
	if err := m.client.Move(ctx, ticker, Doing, to); err != nil {
		return err
	}
	m.emit(Transition{Ticker: ticker, From: Doing, To: to})
	m.log.Info("ticker finished", "ticker", ticker, "queue", to)
	return nil
}

// Requeue sends ticker from the worker slot back to the end of todo.
func (m *StateMachine) Requeue(ctx context.Context, ticker string) error {
	if err := m.client.Move(ctx, ticker, Doing, Todo); err != nil {
		return err
	}
	m.emit(Transition{Ticker: ticker, From: Doing, To: Todo})
	m.log.Warn("ticker requeued", "ticker", ticker)
	return nil
}

// Pending reports whether the worker slot or todo still holds tickers.
func (m *StateMachine) Pending(ctx context.Context) (bool, error) {
	for _, doc := range []Document{Doing, Todo} {
		tickers, err := m.client.List(ctx, doc)
		if err != nil {
			return false, err
		}
		if len(tickers) > 0 {
			return true, nil
		}
	}
	return false, nil
}

// Reconcile repairs half-applied moves left by a crash. A ticker in the
// worker slot that is still in todo is removed from todo (the claim had
// completed its add). A slot ticker already present in maintain or
// bad_contract is removed from the slot (the finish had completed its add).
// It returns the tickers it repaired.
func (m *StateMachine) Reconcile(ctx context.Context) ([]string, error) {
	slot, err := m.client.List(ctx, Doing)
	if err != nil {
		return nil, fmt.Errorf("reading doing slot: %w", err)
	}
	if len(slot) == 0 {
		return nil, nil
	}

	var repaired []string
	for _, doc := range []Document{Todo, Maintain, BadContract} {
		members, err := m.client.List(ctx, doc)
		if err != nil {
			return repaired, fmt.Errorf("reading %s: %w", doc, err)
		}
		for _, ticker := range slot {
			if !slices.Contains(members, ticker) {
				continue
			}
			from := doc
			if doc != Todo {
				from = Doing
			}
			if err := m.client.Remove(ctx, from, ticker); err != nil {
				return repaired, err
			}
			m.log.Warn("reconciled duplicated ticker", "ticker", ticker, "present_in", doc, "removed_from", from)
			repaired = append(repaired, ticker)
		}
	}
	return repaired, nil
}

func (m *StateMachine) emit(t Transition) {
	if m.observer != nil {
		m.observer(t)
	}
}
