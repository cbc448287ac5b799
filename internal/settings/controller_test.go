package settings

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jask/jasknotes/internal/backup"
	"github.com/jask/jasknotes/internal/platform"
	"github.com/jask/jasknotes/internal/prefs"
	"github.com/jask/jasknotes/internal/storage"
)

// scriptedResolver returns the queued results in order, then repeats the last.
type scriptedResolver struct {
	scoped    bool
	results   []error
	handle    storage.Handle
	calls     int
	persisted []string
	persist   error
}

func (r *scriptedResolver) Resolve(context.Context) (storage.Handle, error) {
	i := r.calls
	if i >= len(r.results) {
		i = len(r.results) - 1
	}
	r.calls++
	if i >= 0 && r.results[i] != nil {
		return nil, r.results[i]
	}
	return r.handle, nil
}

func (r *scriptedResolver) Persist(uri string) error {
	r.persisted = append(r.persisted, uri)
	return r.persist
}

func (r *scriptedResolver) Scoped() bool { return r.scoped }

type recordingDispatcher struct {
	got []backup.Action
	err error
}

func (d *recordingDispatcher) Submit(_ context.Context, a backup.Action) error {
	d.got = append(d.got, a)
	if d.err != nil {
		return d.err
	}
	return a.Validate()
}

type fixture struct {
	c     *Controller
	res   *scriptedResolver
	disp  *recordingDispatcher
	prefs *prefs.Memory
	dir   string
}

func newFixture(t *testing.T, files ...string) fixture {
	t.Helper()
	dir := t.TempDir()
	for _, f := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, f), []byte("x"), 0o600))
	}
	store := prefs.NewMemory()
	res := &scriptedResolver{scoped: true, handle: storage.NewDirectPath(dir)}
	disp := &recordingDispatcher{}
	c := New(Deps{
		Resolver:    res,
		Catalog:     backup.NewCatalog(nil),
		Dispatcher:  disp,
		Permissions: platform.PrefPermissions{Store: store},
		Prefs:       store,
		Now:         func() time.Time { return time.Date(2024, 3, 5, 14, 7, 0, 0, time.UTC) },
	})
	return fixture{c: c, res: res, disp: disp, prefs: store, dir: dir}
}

func TestImportScenarioDispatchesOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, "2024-01-01.zip", "2024-02-01.zip")

	step := f.c.StartImport(ctx)
	require.True(t, step.Notice.Empty())
	require.Equal(t, StatePresentingCatalog, f.c.State())
	require.Equal(t, []string{"2024-02-01.zip", "2024-01-01.zip"}, backup.Names(f.c.Entries()))

	f.c.ChooseImport(0)
	require.Equal(t, StateConfirming, f.c.State())
	require.Equal(t, backup.Action{Kind: backup.KindImport, Target: "2024-02-01.zip"}, f.c.Action())

	step = f.c.Confirm(ctx)
	require.Equal(t, NoticeInfo, step.Notice.Level)
	require.Equal(t, StateIdle, f.c.State())

	// a repeated confirm after dispatch must not submit again
	f.c.Confirm(ctx)
	require.Equal(t, []backup.Action{{Kind: backup.KindImport, Target: "2024-02-01.zip"}}, f.disp.got)
}

func TestDeleteNeedsConfirmation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, "a.zip", "b.zip")

	f.c.StartImport(ctx)
	f.c.ChooseDelete(1)
	require.Equal(t, StateConfirming, f.c.State())
	require.Empty(t, f.disp.got)

	f.c.Confirm(ctx)
	require.Equal(t, []backup.Action{{Kind: backup.KindDelete, Target: "a.zip"}}, f.disp.got)
}

func TestNothingSelectedNeverDispatches(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	for _, choose := range []func(*Controller, int) Step{(*Controller).ChooseImport, (*Controller).ChooseDelete} {
		f := newFixture(t, "a.zip")
		f.c.StartImport(ctx)

		step := choose(f.c, -1)
		require.Equal(t, MsgNothingSelected, step.Notice.Text)
		require.Equal(t, StateAborted, f.c.State())
		f.c.Confirm(ctx)
		require.Empty(t, f.disp.got)

		f.c.Acknowledge()
		require.Equal(t, StateIdle, f.c.State())
	}
}

func TestEmptyCatalogNeverDispatches(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	step := f.c.StartImport(ctx)
	require.Equal(t, MsgNoBackups, step.Notice.Text)
	require.Equal(t, StateIdle, f.c.State())
	f.c.ChooseImport(0)
	f.c.Confirm(ctx)
	require.Empty(t, f.disp.got)
}

func TestExportEmptyNameUsesDefault(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	f.c.StartExport(ctx)
	require.Equal(t, StatePresentingName, f.c.State())
	require.Equal(t, "2024.03.05-1407", f.c.DefaultName())

	f.c.SubmitExportName(ctx, "   ")
	require.Equal(t, []backup.Action{{Kind: backup.KindExport, Target: "2024.03.05-1407"}}, f.disp.got)
	require.Equal(t, StateIdle, f.c.State())
}

func TestExportNameCollisionWarnsButProceeds(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, "weekly.zip")

	f.c.StartExport(ctx)
	require.True(t, f.c.NameCollides("weekly"))
	require.False(t, f.c.NameCollides("monthly"))

	f.c.SubmitExportName(ctx, "weekly")
	require.Equal(t, []backup.Action{{Kind: backup.KindExport, Target: "weekly"}}, f.disp.got)
}

func TestGrantRoundTripResumesChain(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, "a.zip")
	f.res.results = []error{storage.ErrNeedsUserGrant, nil}

	step := f.c.StartImport(ctx)
	require.NotNil(t, step.Request)
	require.Equal(t, platform.AccessForImport, step.Request.Code)
	require.Equal(t, StateAwaitingUserGrant, f.c.State())

	step = f.c.HandleResult(ctx, step.Request.Grant("file:///granted"))
	require.True(t, step.Notice.Empty())
	require.Equal(t, []string{"file:///granted"}, f.res.persisted)
	require.Equal(t, StatePresentingCatalog, f.c.State())
}

func TestExportChooserUsesExportCode(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.res.results = []error{storage.ErrNeedsUserGrant}

	step := f.c.StartExport(context.Background())
	require.Equal(t, platform.AccessForExport, step.Request.Code)
}

func TestGrantStillInvalidAbortsAfterOneRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, "a.zip")
	f.res.results = []error{storage.ErrNeedsUserGrant}

	step := f.c.StartExport(ctx)
	require.NotNil(t, step.Request)

	step = f.c.HandleResult(ctx, step.Request.Grant("file:///readonly"))
	require.Nil(t, step.Request, "no second chooser")
	require.Equal(t, MsgFolderUnwritable, step.Notice.Text)
	require.Equal(t, StateAborted, f.c.State())
	require.Equal(t, 2, f.res.calls)
	require.Empty(t, f.disp.got)
}

func TestChooserCancelAborts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.res.results = []error{storage.ErrNeedsUserGrant}

	step := f.c.StartImport(ctx)
	step = f.c.HandleResult(ctx, step.Request.Deny())
	require.Equal(t, MsgNoFolderGranted, step.Notice.Text)
	require.Equal(t, StateAborted, f.c.State())
	require.Empty(t, f.res.persisted)
}

func TestStaleAndUnknownResultsIgnored(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.res.results = []error{storage.ErrNeedsUserGrant}

	step := f.c.StartImport(ctx)
	req := *step.Request

	other := platform.NewRequest(platform.AccessForImport)
	require.Equal(t, Step{}, f.c.HandleResult(ctx, other.Grant("file:///x")))
	require.Equal(t, Step{}, f.c.HandleResult(ctx, platform.Result{Code: 999, Token: req.Token, OK: true}))
	require.Equal(t, StateAwaitingUserGrant, f.c.State())
	require.Empty(t, f.res.persisted)
}

func TestPersistFailureAborts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.res.results = []error{storage.ErrNeedsUserGrant}
	f.res.persist = errors.New("not a folder uri")

	step := f.c.StartImport(ctx)
	step = f.c.HandleResult(ctx, step.Request.Grant("content://nope"))
	require.Equal(t, StateAborted, f.c.State())
	require.Equal(t, NoticeError, step.Notice.Level)
}

func TestLegacyPermissionPrompt(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, "a.zip")
	f.res.scoped = false
	f.res.results = []error{storage.ErrPermissionDenied, nil}

	step := f.c.StartImport(ctx)
	require.True(t, step.AskPermission)
	require.Equal(t, StateAwaitingPermission, f.c.State())

	f.c.PermissionResult(ctx, true)
	require.Equal(t, StatePresentingCatalog, f.c.State())
	require.Equal(t, "granted", f.prefs.GetString(prefs.KeyStoragePermission, ""))
}

func TestLegacyPermissionDeniedReturnsIdle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.res.scoped = false
	f.res.results = []error{storage.ErrPermissionDenied}

	f.c.StartExport(ctx)
	step := f.c.PermissionResult(ctx, false)
	require.Equal(t, MsgPermissionDenied, step.Notice.Text)
	require.Equal(t, StateIdle, f.c.State())
	require.Equal(t, "denied", f.prefs.GetString(prefs.KeyStoragePermission, ""))
	require.Equal(t, 1, f.res.calls)
}

func TestLegacyPermissionAskedOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.res.scoped = false
	f.res.results = []error{storage.ErrPermissionDenied}

	f.c.StartExport(ctx)
	step := f.c.PermissionResult(ctx, true)
	require.False(t, step.AskPermission)
	require.Equal(t, StateIdle, f.c.State())
	require.Equal(t, MsgPermissionDenied, step.Notice.Text)
}

func TestChangeBackupFolder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, "a.zip")

	step := f.c.ChangeBackupFolder()
	require.Equal(t, platform.AccessForImport, step.Request.Code)
	f.c.HandleResult(ctx, step.Request.Grant("file:///new"))
	require.Equal(t, StatePresentingCatalog, f.c.State())
	require.Equal(t, []string{"file:///new"}, f.res.persisted)
}

func TestChangeBackupFolderLegacy(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.res.scoped = false
	step := f.c.ChangeBackupFolder()
	require.Nil(t, step.Request)
	require.Equal(t, MsgFolderUnsupported, step.Notice.Text)
	require.Equal(t, StateIdle, f.c.State())
}

func TestCrossAppImport(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.res.results = []error{storage.ErrNeedsUserGrant}

	step := f.c.StartCrossAppImport()
	require.Equal(t, platform.FileImport, step.Request.Code)
	require.Equal(t, StateAwaitingFilePick, f.c.State())

	f.c.HandleResult(ctx, step.Request.Grant("/tmp/springpad.zip"))
	require.Zero(t, f.res.calls, "cross-app import needs no backup folder")
	require.Equal(t, []backup.Action{{Kind: backup.KindCrossAppImport, Source: "/tmp/springpad.zip"}}, f.disp.got)
}

func TestCancelFromDialogs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, "a.zip")

	f.c.StartImport(ctx)
	f.c.ChooseImport(0)
	step := f.c.Cancel()
	require.Equal(t, MsgCancelled, step.Notice.Text)
	require.Equal(t, StateAborted, f.c.State())
	require.Empty(t, f.disp.got)

	// a new action starts cleanly from Aborted
	f.c.StartExport(ctx)
	require.Equal(t, StatePresentingName, f.c.State())
	f.c.Cancel()
	f.c.Acknowledge()
	require.Equal(t, StateIdle, f.c.State())
}

func TestBusyIgnoresNewActions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, "a.zip")

	f.c.StartImport(ctx)
	require.Equal(t, Step{}, f.c.StartExport(ctx))
	require.Equal(t, FlowImport, f.c.Flow())
}

func TestDispatchFailureBecomesNotice(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.disp.err = errors.New("database is locked")

	f.c.StartExport(ctx)
	step := f.c.SubmitExportName(ctx, "x")
	require.Equal(t, NoticeError, step.Notice.Level)
	require.Contains(t, step.Notice.Text, "database is locked")
	require.Equal(t, StateIdle, f.c.State())
}

func TestImportSummaryDependsOnPassword(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	without := f.c.ImportSummary()
	require.NoError(t, f.prefs.PutString(prefs.KeyPassword, "hunter2"))
	require.NotEqual(t, without, f.c.ImportSummary())
}

func TestExportSummaryShowsLocation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	require.Equal(t, f.dir, f.c.ExportSummary(context.Background()))

	f.res.results = []error{storage.ErrNeedsUserGrant}
	require.Equal(t, "No backup folder chosen", f.c.ExportSummary(context.Background()))

	f.res.results = []error{storage.ErrPermissionDenied}
	require.Equal(t, "Storage permission needed to export", f.c.ExportSummary(context.Background()))
	require.Equal(t, StateIdle, f.c.State())
}
