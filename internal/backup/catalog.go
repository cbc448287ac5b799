package backup

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/jask/jasknotes/internal/logging"
	"github.com/jask/jasknotes/internal/storage"
)

// Entry is one backup available for import or delete.
type Entry struct {
	Name string
}

// Catalog lists the backups under a resolved handle.
type Catalog struct {
	log *zap.Logger
}

func NewCatalog(log *zap.Logger) *Catalog {
	return &Catalog{log: logging.OrNop(log).Named("catalog")}
}

// List returns the handle's entries in reversed directory order. Directory
// order is lexical, so date-stamped names come out newest first; no
// timestamps are consulted. An empty or missing folder yields no entries.
func (c *Catalog) List(ctx context.Context, h storage.Handle) ([]Entry, error) {
	names, err := h.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list backups in %s: %w", h.Location(), err)
	}
	slices.Reverse(names)
	out := make([]Entry, len(names))
	for i, n := range names {
		out[i] = Entry{Name: n}
	}
	c.log.Debug("listed backups", zap.String("location", h.Location()), zap.Int("count", len(out)))
	return out, nil
}

// Names flattens entries for display.
func Names(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out
}
