package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/Polqt/collabroom/auth"
	"github.com/Polqt/collabroom/crdt"
	"github.com/Polqt/collabroom/presence"
	"github.com/Polqt/collabroom/room"
)

// rootNodeID is the fixed id room.New gives the storage root, so the
// demo CLI never needs to discover it from a snapshot first.
const rootNodeID = "root"

func run(ctx context.Context, cfg *config) error {
	if cfg.room == "" {
		return fmt.Errorf("roomclient: --room is required")
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.logLevel)}))

	fetcher, err := buildFetcher(cfg)
	if err != nil {
		return err
	}

	r := room.New(room.Options{
		RoomID:  cfg.room,
		Server:  cfg.server,
		Version: cfg.version,
		Auth:    fetcher,
		Logger:  logger,
	})
	defer r.Shutdown()

	r.SubscribeConnection(func(s room.ConnState) {
		if s.Err != nil {
			fmt.Printf("[connection] %s: %v\n", s.Kind, s.Err)
			return
		}
		fmt.Printf("[connection] %s\n", s.Kind)
	})
	r.SubscribeOthers(func(others presence.Others) {
		fmt.Printf("[others] %d connected\n", others.Count())
	})
	r.SubscribeStorageStatus(func(loaded bool) {
		fmt.Printf("[storage] loaded=%v\n", loaded)
	})
	r.SubscribeEvent(func(ev room.EventPayload) {
		fmt.Printf("[event] actor=%d %s\n", ev.Actor, string(ev.Event))
	})

	r.Connect()
	fmt.Println("connected; type 'help' for commands, 'quit' to exit")
	repl(r)
	return nil
}

func buildFetcher(cfg *config) (auth.Fetcher, error) {
	if cfg.authURL == "" {
		return nil, fmt.Errorf("roomclient: --auth-url is required")
	}
	if cfg.publicKey != "" {
		return &auth.PublicAuth{URL: cfg.authURL, PublicAPIKey: cfg.publicKey}, nil
	}
	return &auth.PrivateAuth{URL: cfg.authURL}, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// repl reads one command per line until quit/EOF. It's deliberately
// tiny — enough to drive presence, storage, and undo/redo by hand while
// watching the subscriptions print state changes above.
func repl(r *room.Room) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "help":
			printHelp()
		case "quit", "exit":
			return
		case "presence":
			runPresenceCmd(r, fields[1:])
		case "set":
			runSetCmd(r, fields[1:])
		case "del":
			runDelCmd(r, fields[1:])
		case "undo":
			r.Undo()
		case "redo":
			r.Redo()
		case "others":
			printOthers(r)
		case "storage":
			printStorage(r)
		default:
			fmt.Printf("unknown command %q; type 'help'\n", fields[0])
		}
	}
}

func printHelp() {
	fmt.Println(`commands:
  presence <key> <json-value>   merge one key into local presence
  set <key> <json-value>        merge one key into root storage
  del <key>                     delete one key from root storage
  undo / redo                   step the undo/redo stacks
  others                        print the currently visible others
  storage                       print the current root storage
  quit`)
}

func runPresenceCmd(r *room.Room, args []string) {
	if len(args) < 2 {
		fmt.Println("usage: presence <key> <json-value>")
		return
	}
	val, err := parseJSONArg(strings.Join(args[1:], " "))
	if err != nil {
		fmt.Println(err)
		return
	}
	r.UpdatePresence(presence.Data{args[0]: val}, true)
}

func runSetCmd(r *room.Room, args []string) {
	if len(args) < 2 {
		fmt.Println("usage: set <key> <json-value>")
		return
	}
	val, err := parseJSONArg(strings.Join(args[1:], " "))
	if err != nil {
		fmt.Println(err)
		return
	}
	r.UpdateStorage([]crdt.Op{&crdt.UpdateObject{NodeID: rootNodeID, Data: crdt.Data{args[0]: val}}})
}

func runDelCmd(r *room.Room, args []string) {
	if len(args) < 1 {
		fmt.Println("usage: del <key>")
		return
	}
	r.UpdateStorage([]crdt.Op{&crdt.DeleteObjectKey{NodeID: rootNodeID, Key: args[0]}})
}

func parseJSONArg(s string) (json.RawMessage, error) {
	var probe any
	if err := json.Unmarshal([]byte(s), &probe); err != nil {
		return nil, fmt.Errorf("roomclient: %q is not valid JSON: %w", s, err)
	}
	return json.RawMessage(s), nil
}

func printOthers(r *room.Room) {
	others := r.GetOthers()
	others.ForEach(func(u presence.User) {
		fmt.Printf("  actor=%d presence=%s\n", u.ConnectionID, toJSON(u.Presence))
	})
}

func printStorage(r *room.Room) {
	snap := r.GetStorageSnapshot()
	root, ok := snap[rootNodeID]
	if !ok {
		fmt.Println("  (root not loaded yet)")
		return
	}
	fmt.Printf("  %s\n", toJSON(root.Data))
}

func toJSON(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return "<unprintable>"
	}
	return string(raw)
}
