// Package settings drives the backup part of the settings screen: resolve
// storage, list or name a backup, confirm, then hand the action to the worker
// queue. The Controller holds no UI; the TUI feeds it user events and platform
// results and renders whatever state it reports.
package settings

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jask/jasknotes/internal/backup"
	"github.com/jask/jasknotes/internal/logging"
	"github.com/jask/jasknotes/internal/platform"
	"github.com/jask/jasknotes/internal/prefs"
	"github.com/jask/jasknotes/internal/storage"
)

type State string

const (
	StateIdle               State = "idle"
	StateResolvingStorage   State = "resolvingStorage"
	StateAwaitingPermission State = "awaitingPermission"
	StateAwaitingUserGrant  State = "awaitingUserGrant"
	StatePresentingCatalog  State = "presentingCatalog"
	StatePresentingName     State = "presentingNameEntry"
	StateConfirming         State = "confirming"
	StateAwaitingFilePick   State = "awaitingFilePick"
	StateDispatching        State = "dispatching"
	StateAborted            State = "aborted"
)

// Flow is the user action a workflow started from.
type Flow string

const (
	FlowNone     Flow = ""
	FlowExport   Flow = "export"
	FlowImport   Flow = "import"
	FlowCrossApp Flow = "crossApp"
)

type NoticeLevel string

const (
	NoticeInfo  NoticeLevel = "info"
	NoticeWarn  NoticeLevel = "warn"
	NoticeError NoticeLevel = "error"
)

// Notice is a user-visible message. The zero value means nothing to show.
type Notice struct {
	Level NoticeLevel
	Text  string
}

func (n Notice) Empty() bool { return n.Text == "" }

// Notice texts shown by the settings screen.
const (
	MsgNoBackups         = "No backups available"
	MsgNothingSelected   = "Nothing selected"
	MsgBackupExists      = "A backup with this name already exists"
	MsgPermissionDenied  = "Storage permission denied"
	MsgNoFolderGranted   = "No backup folder selected"
	MsgFolderUnwritable  = "The selected backup folder cannot be written"
	MsgCancelled         = "Cancelled"
	MsgFolderUnsupported = "Backup folder selection is not available in legacy storage mode"
)

// Step is what the host must do after an event: show a notice, run a
// chooser or ask for the storage permission. Everything else is read from
// the Controller's state.
type Step struct {
	Notice        Notice
	Request       *platform.Request
	AskPermission bool
}

// Resolver yields a validated storage handle.
type Resolver interface {
	Resolve(ctx context.Context) (storage.Handle, error)
	Persist(uri string) error
	Scoped() bool
}

// Lister enumerates backups under a handle.
type Lister interface {
	List(ctx context.Context, h storage.Handle) ([]backup.Entry, error)
}

// Submitter hands an action to the worker.
type Submitter interface {
	Submit(ctx context.Context, a backup.Action) error
}

// Deps bundles the Controller's collaborators.
type Deps struct {
	Resolver    Resolver
	Catalog     Lister
	Dispatcher  Submitter
	Permissions platform.Permissions
	Prefs       prefs.Store
	Now         func() time.Time
	NameLayout  string
	Log         *zap.Logger
}

// Controller is the backup workflow state machine. It is not safe for
// concurrent use; the TUI calls it from its update loop only.
type Controller struct {
	deps Deps
	log  *zap.Logger

	state   State
	flow    Flow
	pending *platform.Request
	// chooser round trips and permission prompts used by the current action
	grants     int
	permAsked  bool
	entries    []backup.Entry
	action     backup.Action
	defaultNm  string
	lastNotice Notice
}

func New(deps Deps) *Controller {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Controller{
		deps:  deps,
		log:   logging.OrNop(deps.Log).Named("settings"),
		state: StateIdle,
	}
}

func (c *Controller) State() State { return c.state }
func (c *Controller) Flow() Flow   { return c.flow }

// Entries is the catalog currently on screen, newest first.
func (c *Controller) Entries() []backup.Entry { return c.entries }

// Pending is the outstanding chooser request, if any.
func (c *Controller) Pending() *platform.Request { return c.pending }

// Action is the action awaiting confirmation.
func (c *Controller) Action() backup.Action { return c.action }

// DefaultName is the placeholder of the export name dialog.
func (c *Controller) DefaultName() string { return c.defaultNm }

// Notice is the last notice produced, kept until the next action starts.
func (c *Controller) Notice() Notice { return c.lastNotice }

// CanChangeFolder reports whether the "change backup folder" action is offered.
func (c *Controller) CanChangeFolder() bool { return c.deps.Resolver.Scoped() }

// ImportSummary is the subtitle of the import action. It mentions the
// password only when one is configured, since backups never carry it.
func (c *Controller) ImportSummary() string {
	if c.deps.Prefs == nil || c.deps.Prefs.GetString(prefs.KeyPassword, "") == "" {
		return "Restore notes and settings from a backup"
	}
	return "Restore notes and settings from a backup; the current password is kept"
}

// ExportSummary names the folder exports are written to: the granted tree URI
// or the legacy backup path. It never prompts.
func (c *Controller) ExportSummary(ctx context.Context) string {
	h, err := c.deps.Resolver.Resolve(ctx)
	switch {
	case err == nil:
		return h.Location()
	case errors.Is(err, storage.ErrPermissionDenied):
		return "Storage permission needed to export"
	default:
		return "No backup folder chosen"
	}
}

// StartExport begins the export workflow.
func (c *Controller) StartExport(ctx context.Context) Step {
	if !c.begin(FlowExport) {
		return c.busy()
	}
	return c.resolve(ctx)
}

// StartImport begins the import/delete workflow.
func (c *Controller) StartImport(ctx context.Context) Step {
	if !c.begin(FlowImport) {
		return c.busy()
	}
	return c.resolve(ctx)
}

// ChangeBackupFolder opens the folder chooser directly and continues into
// the import catalog once a folder is granted. The grant counts as the
// action's single chooser round trip.
func (c *Controller) ChangeBackupFolder() Step {
	if !c.CanChangeFolder() {
		return Step{Notice: c.notice(NoticeWarn, MsgFolderUnsupported)}
	}
	if !c.begin(FlowImport) {
		return c.busy()
	}
	c.grants++
	return c.request(platform.AccessForImport, StateAwaitingUserGrant)
}

// StartCrossAppImport asks the host for an archive produced by another app.
// No backup folder is involved, so storage is not resolved.
func (c *Controller) StartCrossAppImport() Step {
	if !c.begin(FlowCrossApp) {
		return c.busy()
	}
	return c.request(platform.FileImport, StateAwaitingFilePick)
}

// PermissionResult continues after the storage permission prompt.
func (c *Controller) PermissionResult(ctx context.Context, granted bool) Step {
	if c.state != StateAwaitingPermission {
		c.log.Warn("permission result outside prompt", zap.String("state", string(c.state)))
		return Step{}
	}
	if c.deps.Permissions != nil {
		if err := c.deps.Permissions.Record(platform.StorageWrite, granted); err != nil {
			c.log.Error("record storage permission", zap.Error(err))
		}
	}
	if !granted {
		return c.finish(c.notice(NoticeError, MsgPermissionDenied))
	}
	return c.resolve(ctx)
}

// HandleResult continues after a chooser or file picker answered.
func (c *Controller) HandleResult(ctx context.Context, res platform.Result) Step {
	if c.pending == nil || res.Token != c.pending.Token {
		c.log.Warn("stale platform result", zap.Stringer("code", res.Code), zap.String("token", res.Token))
		return Step{}
	}
	switch res.Code {
	case platform.AccessForExport, platform.AccessForImport:
		c.pending = nil
		if !res.OK {
			return c.abort(NoticeError, MsgNoFolderGranted)
		}
		if err := c.deps.Resolver.Persist(res.URI); err != nil {
			c.log.Warn("persist backup folder", zap.String("uri", res.URI), zap.Error(err))
			return c.abort(NoticeError, MsgFolderUnwritable)
		}
		return c.resolve(ctx)
	case platform.FileImport:
		c.pending = nil
		if !res.OK || strings.TrimSpace(res.URI) == "" {
			return c.abort(NoticeWarn, MsgNothingSelected)
		}
		return c.dispatch(ctx, backup.Action{Kind: backup.KindCrossAppImport, Source: res.URI})
	default:
		c.log.Error("wrong element chosen", zap.Int("request_code", int(res.Code)))
		return Step{}
	}
}

// ChooseImport picks the catalog entry at position for import. Position -1
// means the user confirmed without selecting anything.
func (c *Controller) ChooseImport(position int) Step {
	return c.choose(backup.KindImport, position)
}

// ChooseDelete picks the catalog entry at position for deletion.
func (c *Controller) ChooseDelete(position int) Step {
	return c.choose(backup.KindDelete, position)
}

func (c *Controller) choose(kind backup.Kind, position int) Step {
	if c.state != StatePresentingCatalog {
		return Step{}
	}
	if position < 0 || position >= len(c.entries) {
		return c.abort(NoticeWarn, MsgNothingSelected)
	}
	c.action = backup.Action{Kind: kind, Target: c.entries[position].Name}
	c.state = StateConfirming
	return Step{}
}

// Confirm dispatches the action awaiting confirmation.
func (c *Controller) Confirm(ctx context.Context) Step {
	if c.state != StateConfirming {
		return Step{}
	}
	return c.dispatch(ctx, c.action)
}

// NameCollides reports whether name matches a listed backup. The export
// dialog shows MsgBackupExists inline but still allows the export.
func (c *Controller) NameCollides(name string) bool {
	return c.state == StatePresentingName && backup.Collides(name, c.entries)
}

// SubmitExportName dispatches the export. An empty name uses the default.
func (c *Controller) SubmitExportName(ctx context.Context, name string) Step {
	if c.state != StatePresentingName {
		return Step{}
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = c.defaultNm
	}
	return c.dispatch(ctx, backup.Action{Kind: backup.KindExport, Target: name})
}

// Cancel abandons the workflow from any dialog.
func (c *Controller) Cancel() Step {
	switch c.state {
	case StateIdle, StateAborted:
		return Step{}
	case StateAwaitingPermission:
		return c.finish(c.notice(NoticeError, MsgPermissionDenied))
	}
	return c.abort(NoticeInfo, MsgCancelled)
}

// Acknowledge dismisses an aborted workflow.
func (c *Controller) Acknowledge() {
	if c.state == StateAborted {
		c.reset()
	}
}

func (c *Controller) begin(flow Flow) bool {
	switch c.state {
	case StateAborted:
		c.reset()
	case StateIdle:
	default:
		return false
	}
	c.flow = flow
	c.lastNotice = Notice{}
	return true
}

func (c *Controller) busy() Step {
	c.log.Debug("action ignored while busy", zap.String("state", string(c.state)))
	return Step{}
}

// resolve runs the Resolver and moves to the flow's dialog, the chooser, or
// the permission prompt. At most one chooser round trip and one permission
// prompt happen per action.
func (c *Controller) resolve(ctx context.Context) Step {
	c.state = StateResolvingStorage
	h, err := c.deps.Resolver.Resolve(ctx)
	switch {
	case err == nil:
		return c.present(ctx, h)
	case errors.Is(err, storage.ErrNeedsUserGrant):
		if c.grants > 0 {
			return c.abort(NoticeError, MsgFolderUnwritable)
		}
		c.grants++
		code := platform.AccessForImport
		if c.flow == FlowExport {
			code = platform.AccessForExport
		}
		return c.request(code, StateAwaitingUserGrant)
	case errors.Is(err, storage.ErrPermissionDenied):
		if c.permAsked {
			return c.finish(c.notice(NoticeError, MsgPermissionDenied))
		}
		c.permAsked = true
		c.state = StateAwaitingPermission
		return Step{AskPermission: true}
	default:
		c.log.Error("resolve backup storage", zap.Error(err))
		return c.abort(NoticeError, fmt.Sprintf("Backup folder unavailable: %v", err))
	}
}

func (c *Controller) present(ctx context.Context, h storage.Handle) Step {
	entries, err := c.deps.Catalog.List(ctx, h)
	if err != nil {
		c.log.Error("list backups", zap.Error(err))
		return c.abort(NoticeError, fmt.Sprintf("Cannot list backups: %v", err))
	}
	c.entries = entries
	if c.flow == FlowExport {
		c.defaultNm = backup.DefaultName(c.deps.Now(), c.deps.NameLayout)
		c.state = StatePresentingName
		return Step{}
	}
	if len(entries) == 0 {
		return c.finish(c.notice(NoticeWarn, MsgNoBackups))
	}
	c.state = StatePresentingCatalog
	return Step{}
}

func (c *Controller) request(code platform.RequestCode, next State) Step {
	req := platform.NewRequest(code)
	c.pending = &req
	c.state = next
	c.log.Debug("platform request", zap.Stringer("code", code), zap.String("token", req.Token))
	return Step{Request: &req}
}

func (c *Controller) dispatch(ctx context.Context, a backup.Action) Step {
	c.state = StateDispatching
	err := c.deps.Dispatcher.Submit(ctx, a)
	switch {
	case err == nil:
		return c.finish(c.notice(NoticeInfo, queuedText(a)))
	case errors.Is(err, backup.ErrUnknownAction):
		// already logged by the dispatcher; the UI never builds one
		return c.finish(Notice{})
	case errors.Is(err, backup.ErrNothingSelected):
		return c.finish(c.notice(NoticeWarn, MsgNothingSelected))
	default:
		return c.finish(c.notice(NoticeError, fmt.Sprintf("Could not start %s: %v", a.Kind, err)))
	}
}

func queuedText(a backup.Action) string {
	switch a.Kind {
	case backup.KindExport:
		return fmt.Sprintf("Exporting backup %s", a.Target)
	case backup.KindImport:
		return fmt.Sprintf("Importing backup %s", a.Target)
	case backup.KindDelete:
		return fmt.Sprintf("Deleting backup %s", a.Target)
	case backup.KindCrossAppImport:
		return fmt.Sprintf("Importing notes from %s", filepath.Base(a.Source))
	}
	return string(a.Kind)
}

func (c *Controller) notice(level NoticeLevel, text string) Notice {
	return Notice{Level: level, Text: text}
}

// finish returns to Idle with n.
func (c *Controller) finish(n Notice) Step {
	c.reset()
	c.lastNotice = n
	return Step{Notice: n}
}

func (c *Controller) abort(level NoticeLevel, text string) Step {
	n := c.notice(level, text)
	c.clear()
	c.state = StateAborted
	c.lastNotice = n
	c.log.Info("backup workflow aborted", zap.String("flow", string(c.flow)), zap.String("reason", text))
	return Step{Notice: n}
}

func (c *Controller) reset() {
	c.clear()
	c.state = StateIdle
	c.flow = FlowNone
}

func (c *Controller) clear() {
	c.pending = nil
	c.grants = 0
	c.permAsked = false
	c.entries = nil
	c.action = backup.Action{}
	c.defaultNm = ""
}
