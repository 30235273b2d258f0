package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"ticklake/internal/config"
	"ticklake/internal/queue"
	"ticklake/internal/util"
	"ticklake/pkg/ticklake"
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: queue-admin <command> [args]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  seed <file.csv>              Add tickers from a CSV to todo\n")
	fmt.Fprintf(os.Stderr, "  list [document]              Show queue documents, all fields\n")
	fmt.Fprintf(os.Stderr, "  reconcile                    Repair this worker's half-applied moves\n")
	fmt.Fprintf(os.Stderr, "  move <ticker> <from> <to>    Move a ticker between documents\n")
	fmt.Fprintf(os.Stderr, "  status <collector-url>       Show a running collector's health and queues\n")
	fmt.Fprintf(os.Stderr, "\nDocuments: todo, doing, maintain, bad_contract\n")
}

func main() {
	flag.Usage = usage
	flag.Parse()
	args := flag.Args()
	if len(args) < 1 {
		usage()
		os.Exit(1)
	}

	// status talks to a collector over HTTP and needs no local config.
	if args[0] == "status" {
		if err := status(args); err != nil {
			log.Fatalf("status: %v", err)
		}
		return
	}

	cfgPath := "config/ticklake.yaml"
	if p := os.Getenv("TICKLAKE_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	util.SetDefault(util.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := queue.Open(ctx, cfg.Queue)
	if err != nil {
		log.Fatalf("opening queue: %v", err)
	}
	defer store.Close()

	client := queue.NewClient(store, queue.Worker{
		User:       cfg.Instance.User,
		Account:    cfg.Instance.Account,
		Resolution: cfg.Instance.Resolution,
	})

	if err := run(ctx, client, args); err != nil {
		store.Close()
		log.Fatalf("%s: %v", args[0], err)
	}
}

func run(ctx context.Context, client *queue.Client, args []string) error {
	switch args[0] {
	case "seed":
		if len(args) != 2 {
			return fmt.Errorf("usage: seed <file.csv>")
		}
		tickers, err := queue.LoadTickersFile(args[1])
		if err != nil {
			return err
		}
		added, err := queue.Seed(ctx, client, tickers)
		if err != nil {
			return err
		}
		fmt.Printf("read %d tickers, added %d to %s\n", len(tickers), len(added), queue.Todo)

	case "list":
		docs := queue.Documents
		if len(args) > 1 {
			doc, err := queue.ParseDocument(args[1])
			if err != nil {
				return err
			}
			docs = []queue.Document{doc}
		}
		for _, doc := range docs {
			fields, err := client.Snapshot(ctx, doc)
			if err != nil {
				return err
			}
			names := make([]string, 0, len(fields))
			for f := range fields {
				names = append(names, f)
			}
			sort.Strings(names)
			fmt.Printf("%s:\n", doc)
			for _, f := range names {
				fmt.Printf("  %s (%d): %s\n", f, len(fields[f]), strings.Join(fields[f], " "))
			}
		}

	case "reconcile":
		machine := queue.NewStateMachine(client)
		repaired, err := machine.Reconcile(ctx)
		if err != nil {
			return err
		}
		pending, err := machine.Pending(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("repaired %d tickers %v in slot %s (work pending: %t)\n",
			len(repaired), repaired, client.Field(queue.Doing), pending)

	case "move":
		if len(args) != 4 {
			return fmt.Errorf("usage: move <ticker> <from> <to>")
		}
		from, err := queue.ParseDocument(args[2])
		if err != nil {
			return err
		}
		to, err := queue.ParseDocument(args[3])
		if err != nil {
			return err
		}
		ticker := strings.ToUpper(args[1])
		if err := client.Move(ctx, ticker, from, to); err != nil {
			return err
		}
		fmt.Printf("moved %s %s -> %s\n", ticker, from, to)

	default:
		usage()
		return fmt.Errorf("unknown command")
	}
	return nil
}

func status(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: status <collector-url>")
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c := ticklake.NewClient(args[1])
	healthy, err := c.Healthy(ctx)
	if err != nil {
		return err
	}
	st, err := c.Queues(ctx)
	if err != nil {
		return err
	}
	state := "serving"
	if !healthy {
		state = "paused"
	}
	fmt.Printf("worker %s: %s\n", st.Worker, state)
	for _, doc := range queue.Documents {
		tickers := st.Queues[string(doc)]
		fmt.Printf("  %s (%d): %s\n", doc, len(tickers), strings.Join(tickers, " "))
	}
	return nil
}
