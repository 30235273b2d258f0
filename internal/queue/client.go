package queue

import (
	"context"
	"fmt"
)

// Worker identifies one collector's slot in the doing document.
type Worker struct {
	User       string
	Account    string
	Resolution string // e.g. "tick"
}

// Client is a typed view of the queue documents for one worker. Outside
// doing, every document keeps one field per resolution; inside doing the
// field is the worker's own slot.
type Client struct {
	store  Store
	worker Worker
}

// NewClient binds store to worker.
func NewClient(store Store, worker Worker) *Client {
	return &Client{store: store, worker: worker}
}

// Field returns the field path this worker uses inside doc.
func (c *Client) Field(doc Document) string {
	if doc == Doing {
		return FieldPath(c.worker.User, c.worker.Account, c.worker.Resolution)
	}
	return c.worker.Resolution
}

// List returns the tickers in this worker's field of doc.
func (c *Client) List(ctx context.Context, doc Document) ([]string, error) {
	fields, err := c.store.Read(ctx, doc)
	if err != nil {
		return nil, err
	}
	return fields[c.Field(doc)], nil
}

// Snapshot returns every field of doc.
func (c *Client) Snapshot(ctx context.Context, doc Document) (map[string][]string, error) {
	return c.store.Read(ctx, doc)
}

// Add appends tickers to this worker's field of doc.
func (c *Client) Add(ctx context.Context, doc Document, tickers ...string) error {
	return c.store.ArrayUnion(ctx, doc, c.Field(doc), tickers...)
}

// Remove deletes tickers from this worker's field of doc.
func (c *Client) Remove(ctx context.Context, doc Document, tickers ...string) error {
	return c.store.ArrayRemove(ctx, doc, c.Field(doc), tickers...)
}

// Move relocates ticker from one document to another: add to the target,
// then remove from the source. A crash in between leaves the ticker in both
// documents; repeating the move is harmless.
func (c *Client) Move(ctx context.Context, ticker string, from, to Document) error {
	if err := c.Add(ctx, to, ticker); err != nil {
		return fmt.Errorf("move %s %s->%s: %w", ticker, from, to, err)
	}
	if err := c.Remove(ctx, from, ticker); err != nil {
		return fmt.Errorf("move %s %s->%s: %w", ticker, from, to, err)
	}
	return nil
}
