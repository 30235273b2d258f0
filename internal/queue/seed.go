package queue

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// LoadTickersFile reads tickers from the CSV file at path.
func LoadTickersFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening CSV %s: %w", path, err)
	}
	defer f.Close()
	tickers, err := LoadTickers(f)
	if err != nil {
		return nil, fmt.Errorf("reading CSV %s: %w", path, err)
	}
	return tickers, nil
}

// LoadTickers reads a CSV with a header row. Tickers come from the "symbol"
// or "ticker" column, or the first column when neither exists. They are
// upper-cased and de-duplicated in file order.
func LoadTickers(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	col := 0
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "symbol", "ticker":
			col = i
		}
	}

	seen := make(map[string]struct{})
	var tickers []string
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return tickers, nil
		}
		if err != nil {
			return nil, err
		}
		if col >= len(row) {
			continue
		}
		t := strings.ToUpper(strings.TrimSpace(row[col]))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		tickers = append(tickers, t)
	}
}

// Seed appends to todo every ticker not already present in todo, maintain,
// bad_contract or any worker's doing slot, and returns the tickers added.
func Seed(ctx context.Context, c *Client, tickers []string) ([]string, error) {
	known := make(map[string]struct{})
	for _, doc := range Documents {
		fields, err := c.Snapshot(ctx, doc)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", doc, err)
		}
		for field, members := range fields {
			if doc != Doing && field != c.Field(doc) {
				continue
			}
			for _, m := range members {
				known[m] = struct{}{}
			}
		}
	}

	var added []string
	for _, t := range tickers {
		if _, ok := known[t]; ok {
			continue
		}
		known[t] = struct{}{}
		added = append(added, t)
	}
	if len(added) == 0 {
		return nil, nil
	}
	if err := c.Add(ctx, Todo, added...); err != nil {
		return nil, err
	}
	return added, nil
}
