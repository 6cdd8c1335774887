package router

import (
	"context"
	"sort"

	"github.com/c360/mavrouter/errors"
	"github.com/c360/mavrouter/store"
)

// Settings returns the current link set and routing table in persisted form.
func (r *Router) Settings() *store.Settings {
	names := r.Names()
	s := &store.Settings{Links: make([]store.LinkRecord, 0, len(names))}
	for _, name := range names {
		info, ok := r.Get(name)
		if !ok {
			continue
		}
		s.Links = append(s.Links, store.LinkRecord{
			Name:          info.Name,
			Transport:     info.Transport,
			Reader:        info.Reader,
			EmitHeartbeat: info.EmitHeartbeat,
		})
	}
	if table := r.RoutingTable(); len(table) > 0 {
		s.Routing = table
	}
	return s
}

// SaveSettings persists the current link set and routing table. Saved
// records of links that are not registered now (removed without purge, or
// not restored at startup) are kept along with their own routes; only
// Remove with purgeSettings deletes a record.
func (r *Router) SaveSettings(ctx context.Context) error {
	if r.store == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Router", "SaveSettings", "store check")
	}
	saved, err := r.store.Load(ctx)
	if err != nil {
		return errors.Wrap(err, "Router", "SaveSettings", "store load")
	}
	if err := r.store.Save(ctx, mergeSettings(r.Settings(), saved)); err != nil {
		return errors.Wrap(err, "Router", "SaveSettings", "store save")
	}
	return nil
}

// mergeSettings returns current plus the records in saved whose names are
// not in current. Routes from those records are carried over with their
// destinations limited to names in the result.
func mergeSettings(current, saved *store.Settings) *store.Settings {
	out := &store.Settings{
		Links:   append([]store.LinkRecord(nil), current.Links...),
		Routing: make(map[string][]string, len(current.Routing)),
	}
	for src, dsts := range current.Routing {
		out.Routing[src] = append([]string(nil), dsts...)
	}

	names := make(map[string]struct{}, len(current.Links)+len(saved.Links))
	for _, rec := range current.Links {
		names[rec.Name] = struct{}{}
	}
	var retained []string
	for _, rec := range saved.Links {
		if _, ok := names[rec.Name]; ok {
			continue
		}
		names[rec.Name] = struct{}{}
		out.Links = append(out.Links, rec)
		retained = append(retained, rec.Name)
	}

	for _, src := range retained {
		var dsts []string
		for _, dst := range saved.Routing[src] {
			if _, ok := names[dst]; ok && dst != src {
				dsts = append(dsts, dst)
			}
		}
		if len(dsts) > 0 {
			out.Routing[src] = dsts
		}
	}
	if len(out.Routing) == 0 {
		out.Routing = nil
	}
	return out
}

// LoadSettings recreates the persisted links and routes. Links that fail to
// open are logged and skipped; routes naming them are dropped. It returns the
// number of links opened.
func (r *Router) LoadSettings(ctx context.Context) (int, error) {
	if r.store == nil {
		return 0, errors.WrapInvalid(errors.ErrInvalidConfig, "Router", "LoadSettings", "store check")
	}
	s, err := r.store.Load(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "Router", "LoadSettings", "store load")
	}

	opened := 0
	for _, rec := range s.Links {
		if err := ctx.Err(); err != nil {
			return opened, err
		}
		if err := r.Add(ctx, rec.Name, rec.Transport, rec.Reader); err != nil {
			r.logger.Warn("Skipping saved link", "link", rec.Name, "error", err)
			continue
		}
		r.SwitchEmitHeartbeat(rec.Name, rec.EmitHeartbeat)
		opened++
	}

	srcs := make([]string, 0, len(s.Routing))
	for src := range s.Routing {
		srcs = append(srcs, src)
	}
	sort.Strings(srcs)

	for _, src := range srcs {
		if _, ok := r.Get(src); !ok {
			continue
		}
		dsts := make([]string, 0, len(s.Routing[src]))
		for _, dst := range s.Routing[src] {
			if _, ok := r.Get(dst); ok {
				dsts = append(dsts, dst)
			}
		}
		if err := r.UpdateRouting(src, dsts); err != nil {
			r.logger.Warn("Skipping saved routes", "src", src, "error", err)
		}
	}

	r.logger.Info("Settings loaded", "links", opened, "saved_links", len(s.Links))
	return opened, nil
}
