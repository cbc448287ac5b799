// Package storage resolves where backups live. Legacy mode writes into a
// fixed directory once the storage permission is held; scoped mode only
// writes into a folder the user granted through the chooser.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/jask/jasknotes/internal/config"
	"github.com/jask/jasknotes/internal/logging"
	"github.com/jask/jasknotes/internal/platform"
	"github.com/jask/jasknotes/internal/prefs"
)

// Resolver hands out validated Handles. It never caches one: grants can be
// revoked between calls, so every Resolve re-checks the location.
type Resolver struct {
	mode      string
	legacyDir string
	prefs     prefs.Store
	perms     platform.Permissions
	log       *zap.Logger
}

// NewResolver builds a resolver for mode (config.StorageLegacy or config.StorageScoped).
func NewResolver(mode, legacyDir string, store prefs.Store, perms platform.Permissions, log *zap.Logger) *Resolver {
	return &Resolver{
		mode:      mode,
		legacyDir: legacyDir,
		prefs:     store,
		perms:     perms,
		log:       logging.OrNop(log).Named("storage"),
	}
}

// Scoped reports whether the resolver needs user-granted folders.
func (r *Resolver) Scoped() bool { return r.mode == config.StorageScoped }

// Resolve returns a writable handle, ErrNeedsUserGrant (scoped) or
// ErrPermissionDenied (legacy).
func (r *Resolver) Resolve(ctx context.Context) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.Scoped() {
		return r.resolveTree()
	}
	return r.resolveDirect()
}

func (r *Resolver) resolveDirect() (Handle, error) {
	if r.perms == nil || !r.perms.Granted(platform.StorageWrite) {
		return nil, ErrPermissionDenied
	}
	if err := os.MkdirAll(r.legacyDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotWritable, err)
	}
	if err := checkWritable(r.legacyDir); err != nil {
		return nil, err
	}
	return NewDirectPath(r.legacyDir), nil
}

func (r *Resolver) resolveTree() (Handle, error) {
	raw := r.prefs.GetString(prefs.KeyBackupFolderURI, "")
	if raw == "" {
		r.log.Debug("no backup folder granted")
		return nil, ErrNeedsUserGrant
	}
	h, err := ParseTreeURI(raw)
	if err != nil {
		r.log.Warn("stored backup folder uri unusable", zap.String("uri", raw), zap.Error(err))
		return nil, ErrNeedsUserGrant
	}
	if err := checkWritable(h.Dir()); err != nil {
		r.log.Info("backup folder grant no longer writable", zap.String("uri", raw), zap.Error(err))
		return nil, ErrNeedsUserGrant
	}
	return h, nil
}

// Persist stores a freshly granted folder URI and returns its handle. The
// grant is stored even when the folder turns out to be unwritable, matching
// what the chooser handed back; the following Resolve reports the failure.
func (r *Resolver) Persist(uri string) error {
	if _, err := ParseTreeURI(uri); err != nil {
		return err
	}
	if err := r.prefs.PutString(prefs.KeyBackupFolderURI, uri); err != nil {
		return fmt.Errorf("persist backup folder: %w", err)
	}
	r.log.Info("backup folder granted", zap.String("uri", uri))
	return nil
}

// NeedsGrant reports whether err asks for the folder chooser.
func NeedsGrant(err error) bool { return errors.Is(err, ErrNeedsUserGrant) }
