// Package seed imports users, feeds and hooks from a YAML file at startup.
// Importing is idempotent: users are keyed by username, feeds by (user, url)
// and hooks by (user, name), so running the same file twice updates rows in
// place instead of duplicating them.
package seed

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/feedhook/feedhook/app/database"
)

type file struct {
	Users []userSpec `yaml:"users"`
}

type userSpec struct {
	Username string     `yaml:"username"`
	Roles    string     `yaml:"roles"`
	Hooks    []hookSpec `yaml:"hooks"`
	Feeds    []feedSpec `yaml:"feeds"`
}

type hookSpec struct {
	Name     string         `yaml:"name"`
	Type     string         `yaml:"type"`
	Reversed bool           `yaml:"reversed"`
	Config   map[string]any `yaml:"config"`
	Filter   map[string]any `yaml:"filter"`
}

type feedSpec struct {
	URL        string   `yaml:"url"`
	Title      string   `yaml:"title"`
	Cron       string   `yaml:"cron"`
	Enabled    *bool    `yaml:"enabled"`
	MaxRetries int      `yaml:"maxRetries"`
	Hooks      []string `yaml:"hooks"`
}

var validHookTypes = map[string]struct{}{
	database.HookTypeNotification: {},
	database.HookTypeWebhook:      {},
	database.HookTypeDownload:     {},
	database.HookTypeBitTorrent:   {},
	database.HookTypeAISummary:    {},
	database.HookTypeRegular:      {},
}

// Importer loads a seed file into the database.
type Importer struct {
	users database.UserRepository
	feeds database.FeedRepository
	hooks database.HookRepository
}

func NewImporter(users database.UserRepository, feeds database.FeedRepository, hooks database.HookRepository) *Importer {
	return &Importer{users: users, feeds: feeds, hooks: hooks}
}

// ImportFile reads the YAML file at path and upserts its users, hooks and
// feeds. Hooks are imported before feeds so feed entries can reference them
// by name. A missing file is skipped, not an error.
func (i *Importer) ImportFile(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		slog.Info("Seed file not found, skipping import", "path", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read seed file: %w", err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse seed file: %w", err)
	}

	for idx := range f.Users {
		if err := i.importUser(&f.Users[idx]); err != nil {
			return fmt.Errorf("failed to import user %q: %w", f.Users[idx].Username, err)
		}
	}

	slog.Info("Seed file imported", "path", path, "users", len(f.Users))

	return nil
}

func (i *Importer) importUser(spec *userSpec) error {
	if spec.Username == "" {
		return fmt.Errorf("username is required")
	}

	user := &database.User{Username: spec.Username, Roles: spec.Roles}
	if err := i.users.UpsertUser(user); err != nil {
		return err
	}

	hookIDs := make(map[string]int64, len(spec.Hooks))
	for _, h := range spec.Hooks {
		id, err := i.importHook(user.ID, h)
		if err != nil {
			return fmt.Errorf("hook %q: %w", h.Name, err)
		}
		hookIDs[h.Name] = id
	}

	for _, f := range spec.Feeds {
		if err := i.importFeed(user.ID, f, hookIDs); err != nil {
			return fmt.Errorf("feed %q: %w", f.URL, err)
		}
	}

	slog.Debug("Seeded user", "username", spec.Username, "hooks", len(spec.Hooks), "feeds", len(spec.Feeds))

	return nil
}

func (i *Importer) importHook(userID int64, spec hookSpec) (int64, error) {
	if spec.Name == "" {
		return 0, fmt.Errorf("name is required")
	}
	if _, ok := validHookTypes[spec.Type]; !ok {
		return 0, fmt.Errorf("unknown hook type %q", spec.Type)
	}

	config, err := marshalJSON(spec.Config)
	if err != nil {
		return 0, fmt.Errorf("invalid config: %w", err)
	}
	filter, err := marshalJSON(spec.Filter)
	if err != nil {
		return 0, fmt.Errorf("invalid filter: %w", err)
	}

	hook := &database.Hook{
		UserID:     userID,
		Name:       spec.Name,
		Type:       spec.Type,
		Config:     config,
		Filter:     filter,
		IsReversed: spec.Reversed,
	}
	if err := i.hooks.UpsertHook(hook); err != nil {
		return 0, err
	}
	return hook.ID, nil
}

func (i *Importer) importFeed(userID int64, spec feedSpec, hookIDs map[string]int64) error {
	if spec.URL == "" {
		return fmt.Errorf("url is required")
	}
	if spec.Cron == "" {
		return fmt.Errorf("cron is required")
	}

	enabled := true
	if spec.Enabled != nil {
		enabled = *spec.Enabled
	}

	feed := &database.Feed{
		UserID:     userID,
		URL:        spec.URL,
		Title:      spec.Title,
		Cron:       spec.Cron,
		IsEnabled:  enabled,
		MaxRetries: spec.MaxRetries,
	}
	if err := i.feeds.UpsertFeed(feed); err != nil {
		return err
	}

	for _, name := range spec.Hooks {
		id, ok := hookIDs[name]
		if !ok {
			return fmt.Errorf("references undeclared hook %q", name)
		}
		if err := i.hooks.LinkFeedHook(feed.ID, id); err != nil {
			return err
		}
	}

	return nil
}

func marshalJSON(m map[string]any) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return json.Marshal(m)
}
