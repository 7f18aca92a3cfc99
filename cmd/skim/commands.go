package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmlarsen/skim/internal/config"
	"github.com/jmlarsen/skim/internal/feed"
	"github.com/jmlarsen/skim/internal/opml"
	"github.com/jmlarsen/skim/internal/search"
	"github.com/jmlarsen/skim/internal/storage"
)

// refreshWaitTimeout bounds how long batch commands wait for the
// coordinator to finish before giving up.
const refreshWaitTimeout = 10 * time.Minute

// session bundles the pieces every command needs, wired together the
// same way the TUI wires them.
type session struct {
	store       *storage.Store
	engine      *search.Engine
	coordinator *feed.Coordinator
}

func openSession() (*session, error) {
	store, err := storage.NewStore(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	engine, err := search.Open(cfg.Database.SearchIndex)
	if err != nil {
		store.Close()
		return nil, err
	}

	coordinator := feed.NewCoordinator(store, cfg)
	coordinator.SetIndexer(engine)
	coordinator.SetForceRefresh(flagForce)
	coordinator.SetPermissiveValidation(flagInsecure)
	coordinator.Start()

	return &session{store: store, engine: engine, coordinator: coordinator}, nil
}

func (s *session) close() {
	s.coordinator.Stop()
	s.engine.Close()
	s.store.Close()
}

// awaitRefreshes drains coordinator events until every feed in pending
// reached a terminal state, printing one line per outcome.
func (s *session) awaitRefreshes(pending map[string]bool) {
	events := s.coordinator.Events()
	deadline := time.Now().Add(refreshWaitTimeout)

	for len(pending) > 0 && time.Now().Before(deadline) {
		ev, ok := events.TryNext()
		if !ok {
			time.Sleep(50 * time.Millisecond)
			continue
		}
		if !pending[ev.FeedID] {
			continue
		}

		switch ev.Kind {
		case feed.EventRefreshFinished:
			title := ev.FeedTitle
			if title == "" {
				title = shortID(ev.FeedID)
			}
			fmt.Printf("  %-40s %d new, %d updated\n", title, ev.New, ev.Updated)
			delete(pending, ev.FeedID)
		case feed.EventRefreshFailed:
			fmt.Printf("  %-40s failed: %s\n", shortID(ev.FeedID), ev.Err)
			delete(pending, ev.FeedID)
		case feed.EventRefreshCancelled:
			fmt.Printf("  %-40s cancelled\n", shortID(ev.FeedID))
			delete(pending, ev.FeedID)
		}
	}
}

// resolveFeed accepts a subscription URL or a feed ID prefix.
func (s *session) resolveFeed(ref string) (*storage.Feed, error) {
	feeds, err := s.store.GetAllFeeds()
	if err != nil {
		return nil, err
	}

	var match *storage.Feed
	for _, f := range feeds {
		if f.URL == ref || f.ID == ref {
			return f, nil
		}
		if strings.HasPrefix(f.ID, ref) {
			if match != nil {
				return nil, fmt.Errorf("ambiguous feed reference %q", ref)
			}
			match = f
		}
	}
	if match == nil {
		return nil, fmt.Errorf("no subscribed feed matches %q", ref)
	}
	return match, nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func newAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <url>...",
		Short: "Subscribe to one or more feeds",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession()
			if err != nil {
				return err
			}
			defer s.close()

			pending := map[string]bool{}
			for _, url := range args {
				f, err := s.coordinator.Subscribe(url)
				if err != nil {
					fmt.Fprintf(os.Stderr, "  %s: %v\n", url, err)
					continue
				}
				fmt.Printf("Subscribed to %s\n", f.URL)
				pending[f.ID] = true
			}
			s.awaitRefreshes(pending)
			return nil
		},
	}
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List subscribed feeds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := storage.NewStore(cfg.Database.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			feeds, err := store.GetAllFeeds()
			if err != nil {
				return err
			}
			if len(feeds) == 0 {
				fmt.Println("No feeds subscribed. Try: skim add <url>")
				return nil
			}

			unread, err := store.UnreadCounts()
			if err != nil {
				return err
			}

			for _, f := range feeds {
				title := f.Title
				if title == "" {
					title = f.URL
				}
				state := ""
				if !f.Enabled {
					state = " [disabled]"
				}
				if f.LastError != "" {
					state += fmt.Sprintf(" [failing x%d]", f.FailureCount)
				}
				fmt.Printf("%s  %-50s %3d unread%s\n", shortID(f.ID), title, unread[f.ID], state)
			}
			return nil
		},
	}
}

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <url|id>",
		Short: "Unsubscribe from a feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession()
			if err != nil {
				return err
			}
			defer s.close()

			f, err := s.resolveFeed(args[0])
			if err != nil {
				return err
			}
			if err := s.coordinator.Unsubscribe(f.ID); err != nil {
				return err
			}
			fmt.Printf("Removed %s\n", f.URL)
			return nil
		},
	}
}

func newRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <url|id> <title>",
		Short: "Rename a feed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := storage.NewStore(cfg.Database.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			feeds, err := store.GetAllFeeds()
			if err != nil {
				return err
			}
			for _, f := range feeds {
				if f.URL == args[0] || f.ID == args[0] || strings.HasPrefix(f.ID, args[0]) {
					if err := store.RenameFeed(f.ID, args[1]); err != nil {
						return err
					}
					fmt.Printf("Renamed %s to %q\n", shortID(f.ID), args[1])
					return nil
				}
			}
			return fmt.Errorf("no subscribed feed matches %q", args[0])
		},
	}
}

func newRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh [url|id]",
		Short: "Refresh one feed, or all feeds",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession()
			if err != nil {
				return err
			}
			defer s.close()

			pending := map[string]bool{}
			if len(args) == 1 {
				f, err := s.resolveFeed(args[0])
				if err != nil {
					return err
				}
				pending[f.ID] = true
				s.coordinator.RefreshFeed(f.ID, feed.ReasonManual)
			} else {
				feeds, err := s.store.GetAllFeeds()
				if err != nil {
					return err
				}
				for _, f := range feeds {
					if f.Enabled {
						pending[f.ID] = true
					}
				}
				s.coordinator.RefreshAll(feed.ReasonManual)
			}

			fmt.Printf("Refreshing %d feed(s)...\n", len(pending))
			s.awaitRefreshes(pending)
			return nil
		},
	}
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.opml>",
		Short: "Import subscriptions from an OPML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			subs, err := opml.Parse(f)
			if err != nil {
				return err
			}
			if len(subs) == 0 {
				return fmt.Errorf("no feeds found in %s", args[0])
			}

			s, err := openSession()
			if err != nil {
				return err
			}
			defer s.close()

			pending := map[string]bool{}
			for _, sub := range subs {
				added, err := s.coordinator.Subscribe(sub.URL)
				if err != nil {
					fmt.Fprintf(os.Stderr, "  %s: %v\n", sub.URL, err)
					continue
				}
				if sub.Title != "" {
					if err := s.store.RenameFeed(added.ID, sub.Title); err != nil {
						fmt.Fprintf(os.Stderr, "  %s: %v\n", sub.URL, err)
					}
				}
				pending[added.ID] = true
			}

			fmt.Printf("Imported %d feed(s)\n", len(pending))
			s.awaitRefreshes(pending)
			return nil
		},
	}
}

func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [file.opml]",
		Short: "Export subscriptions as OPML (stdout by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := storage.NewStore(cfg.Database.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			feeds, err := store.GetAllFeeds()
			if err != nil {
				return err
			}

			subs := make([]opml.Subscription, 0, len(feeds))
			for _, f := range feeds {
				subs = append(subs, opml.Subscription{Title: f.Title, URL: f.URL})
			}

			out, err := opml.Export("skim subscriptions", subs)
			if err != nil {
				return err
			}

			if len(args) == 1 {
				if err := os.WriteFile(args[0], out, 0o644); err != nil {
					return err
				}
				fmt.Printf("Exported %d feed(s) to %s\n", len(subs), args[0])
				return nil
			}
			_, err = os.Stdout.Write(append(out, '\n'))
			return err
		},
	}
}

func newSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search the article archive",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := search.Open(cfg.Database.SearchIndex)
			if err != nil {
				return err
			}
			defer engine.Close()

			results, err := engine.Search(strings.Join(args, " "), 25)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Println("No results")
				return nil
			}

			for _, r := range results {
				fmt.Printf("%s\n", r.Title)
				if r.URL != "" {
					fmt.Printf("    %s\n", r.URL)
				}
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("skim %s\n", Version)
		},
	}
}

func newGenerateConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate-config",
		Short: "Write a default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			path := filepath.Join(home, ".config", "skim", "config.toml")
			if err := config.GenerateDefaultConfig(path); err != nil {
				return err
			}
			fmt.Printf("Generated default configuration at %s\n", path)
			return nil
		},
	}
}
