// Command nostrctl is a minimal command-line client over the pool
// and relay packages: subscribe to filters, publish events, and run
// negentropy sync against a single relay.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/asmogo/nostrpool/config"
	"github.com/asmogo/nostrpool/negentropy"
	"github.com/asmogo/nostrpool/nostr"
	"github.com/asmogo/nostrpool/pool"
	"github.com/asmogo/nostrpool/relay"
)

func main() {
	rootCmd := &cobra.Command{Use: "nostrctl"}

	var kinds []int
	var authors []string
	var limit int
	subCmd := &cobra.Command{Use: "sub", Short: "subscribe to filters across configured relays", Run: func(cmd *cobra.Command, _ []string) {
		runSub(cmd.Context(), kinds, authors, limit)
	}}
	subCmd.Flags().IntSliceVar(&kinds, "kind", nil, "event kind to filter on, repeatable")
	subCmd.Flags().StringSliceVar(&authors, "author", nil, "author pubkey hex to filter on, repeatable")
	subCmd.Flags().IntVar(&limit, "limit", 0, "max events to request")

	var content string
	var pubKind int
	pubCmd := &cobra.Command{Use: "pub", Short: "publish a text note", Run: func(cmd *cobra.Command, _ []string) {
		runPub(cmd.Context(), content, pubKind)
	}}
	pubCmd.Flags().StringVar(&content, "content", "", "event content")
	pubCmd.Flags().IntVar(&pubKind, "kind", int(nostr.KindTextNote), "event kind")

	var syncRelay string
	var direction string
	syncCmd := &cobra.Command{Use: "sync", Short: "run negentropy reconciliation against one relay", Run: func(cmd *cobra.Command, _ []string) {
		runSync(cmd.Context(), syncRelay, direction)
	}}
	syncCmd.Flags().StringVar(&syncRelay, "relay", "", "relay URL to reconcile against")
	syncCmd.Flags().StringVar(&direction, "direction", "down", "down, up, or both")

	rootCmd.AddCommand(subCmd, pubCmd, syncCmd)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("nostrctl failed", "err", err)
		os.Exit(1)
	}
}

func loadConfig() *config.Config {
	cfg, err := config.LoadConfig[config.Config]()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	if len(cfg.NostrRelays) == 0 {
		slog.Info("no relays configured, using defaults")
		cfg.NostrRelays = config.DefaultRelays
	}
	return cfg
}

func relayOptionsFrom(cfg *config.Config) []relay.Option {
	var opts []relay.Option
	if cfg.ProxyURL != "" {
		if u, err := url.Parse(cfg.ProxyURL); err == nil {
			opts = append(opts, relay.WithProxy(u))
		} else {
			slog.Warn("invalid proxy url, ignoring", "url", cfg.ProxyURL, "err", err)
		}
	}
	return opts
}

func runSub(ctx context.Context, kindInts []int, authorHex []string, limit int) {
	cfg := loadConfig()
	p := pool.New(ctx, pool.WithRelayOptions(relayOptionsFrom(cfg)...))
	defer p.Close("sub command exiting")

	filter := nostr.Filter{}
	for _, k := range kindInts {
		filter.Kinds = append(filter.Kinds, nostr.Kind(k))
	}
	for _, a := range authorHex {
		pk, err := nostr.ParsePublicKey(a)
		if err != nil {
			slog.Error("invalid author pubkey", "author", a, "err", err)
			os.Exit(1)
		}
		filter.Authors = append(filter.Authors, pk)
	}
	if limit > 0 {
		filter.Limit = &limit
	}

	events, err := p.SubscribeMany(ctx, cfg.NostrRelays, []nostr.Filter{filter})
	if err != nil {
		slog.Error("subscribe failed", "err", err)
		os.Exit(1)
	}
	for re := range events {
		b, _ := json.Marshal(re.Event)
		fmt.Printf("[%s] %s\n", re.Relay, b)
	}
}

func runPub(ctx context.Context, content string, kind int) {
	cfg := loadConfig()
	if cfg.NostrPrivateKey == "" {
		slog.Error("NOSTR_PRIVATE_KEY is required to publish")
		os.Exit(1)
	}
	signer, err := nostr.NewPrivateKeySigner(cfg.NostrPrivateKey)
	if err != nil {
		slog.Error("invalid private key", "err", err)
		os.Exit(1)
	}

	evt := nostr.Event{Kind: nostr.Kind(kind), Content: content}
	if err := evt.Sign(signer); err != nil {
		slog.Error("sign failed", "err", err)
		os.Exit(1)
	}

	p := pool.New(ctx)
	defer p.Close("pub command exiting")

	timeout := time.Duration(cfg.SendTimeoutSec) * time.Second
	sendCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results, err := p.Publish(sendCtx, cfg.NostrRelays, evt)
	for _, r := range results {
		status := "ok"
		if r.Err != nil {
			status = r.Err.Error()
		}
		fmt.Printf("%s: %s\n", r.Relay, status)
	}
	if err != nil {
		slog.Error("publish failed everywhere", "err", err)
		os.Exit(1)
	}
}

func runSync(ctx context.Context, relayURL, direction string) {
	if relayURL == "" {
		slog.Error("--relay is required")
		os.Exit(1)
	}
	cfg := loadConfig()

	client := relay.New(ctx, relayURL, relayOptionsFrom(cfg)...)
	if err := client.Connect(ctx); err != nil {
		slog.Error("connect failed", "relay", relayURL, "err", err)
		os.Exit(1)
	}
	defer client.Close()

	dir := negentropy.Down
	switch strings.ToLower(direction) {
	case "up":
		dir = negentropy.Up
	case "both":
		dir = negentropy.Both
	}

	session := negentropy.NewSession(client, &memoryStorage{})
	result, err := session.Run(ctx, negentropy.NewOptions(nostr.Filter{}).WithDirection(dir))
	if err != nil {
		slog.Error("sync failed", "err", err)
		os.Exit(1)
	}
	fmt.Printf("pulled=%d pushed=%d\n", result.Pulled, result.Pushed)
}

// memoryStorage is a placeholder negentropy.Storage for the CLI: it
// has nothing locally stored, so a "down" sync pulls everything the
// relay has for the given filter. A real application supplies its own
// Storage backed by a persistent index.
type memoryStorage struct {
	events []nostr.Event
}

func (m *memoryStorage) Items(nostr.Filter) ([]negentropy.Item, error) {
	items := make([]negentropy.Item, len(m.events))
	for i, e := range m.events {
		items[i] = negentropy.Item{ID: e.ID, Timestamp: e.CreatedAt}
	}
	return items, nil
}

func (m *memoryStorage) Fetch(ids []nostr.EventID) ([]nostr.Event, error) {
	byID := make(map[nostr.EventID]nostr.Event, len(m.events))
	for _, e := range m.events {
		byID[e.ID] = e
	}
	out := make([]nostr.Event, 0, len(ids))
	for _, id := range ids {
		if e, ok := byID[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memoryStorage) Store(events []nostr.Event) error {
	m.events = append(m.events, events...)
	return nil
}
