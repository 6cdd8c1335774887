package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/c360/mavrouter/errors"
	"github.com/c360/mavrouter/link"
	"github.com/c360/mavrouter/transport"
)

// LinkRecord is the persisted form of one link.
type LinkRecord struct {
	Name          string            `json:"name" yaml:"name"`
	Transport     transport.Config  `json:"transport" yaml:"transport"`
	Reader        link.ReaderConfig `json:"reader" yaml:"reader"`
	EmitHeartbeat bool              `json:"emit_heartbeat" yaml:"emit_heartbeat"`
}

// Settings is everything needed to recreate the link set at startup.
type Settings struct {
	Links   []LinkRecord        `json:"links" yaml:"links"`
	Routing map[string][]string `json:"routing,omitempty" yaml:"routing,omitempty"`
}

// Store loads and saves Settings.
type Store interface {
	// Load returns the saved settings, or empty settings when nothing was saved yet.
	Load(ctx context.Context) (*Settings, error)
	// Save replaces the saved settings.
	Save(ctx context.Context, s *Settings) error
	// DeleteLink drops one link record and every route naming it.
	DeleteLink(ctx context.Context, name string) error
}

// Link returns the record for name.
func (s *Settings) Link(name string) (LinkRecord, bool) {
	for _, rec := range s.Links {
		if rec.Name == name {
			return rec, true
		}
	}
	return LinkRecord{}, false
}

// Validate checks that link names are set and unique and that every
// transport config is valid.
func (s *Settings) Validate() error {
	seen := make(map[string]struct{}, len(s.Links))
	for _, rec := range s.Links {
		if rec.Name == "" {
			return errors.WrapInvalid(fmt.Errorf("%w: link with empty name", errors.ErrInvalidConfig),
				"Settings", "Validate", "link name check")
		}
		if _, dup := seen[rec.Name]; dup {
			return errors.WrapInvalid(fmt.Errorf("%w: %q", errors.ErrDuplicateName, rec.Name),
				"Settings", "Validate", "link name check")
		}
		seen[rec.Name] = struct{}{}
		if err := rec.Transport.Validate(); err != nil {
			return errors.Wrap(err, "Settings", "Validate", fmt.Sprintf("link %q transport", rec.Name))
		}
	}
	return nil
}

// normalize sorts links by name and drops empty routing entries.
func (s *Settings) normalize() {
	sort.Slice(s.Links, func(i, j int) bool { return s.Links[i].Name < s.Links[j].Name })
	for src, dsts := range s.Routing {
		if len(dsts) == 0 {
			delete(s.Routing, src)
		}
	}
	if len(s.Routing) == 0 {
		s.Routing = nil
	}
}

// withoutLink returns a copy of s without the named link or any route naming it.
func (s *Settings) withoutLink(name string) *Settings {
	out := &Settings{Routing: make(map[string][]string)}
	for _, rec := range s.Links {
		if rec.Name != name {
			out.Links = append(out.Links, rec)
		}
	}
	out.Routing = pruneRoutes(s.Routing, name)
	out.normalize()
	return out
}

func pruneRoutes(routing map[string][]string, name string) map[string][]string {
	out := make(map[string][]string, len(routing))
	for src, dsts := range routing {
		if src == name {
			continue
		}
		kept := make([]string, 0, len(dsts))
		for _, dst := range dsts {
			if dst != name {
				kept = append(kept, dst)
			}
		}
		if len(kept) > 0 {
			out[src] = kept
		}
	}
	return out
}
