package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"
	"go.uber.org/zap"

	"github.com/jask/jasknotes/internal/backup"
	"github.com/jask/jasknotes/internal/logging"
	"github.com/jask/jasknotes/internal/platform"
	"github.com/jask/jasknotes/internal/service"
	"github.com/jask/jasknotes/internal/settings"
	"github.com/jask/jasknotes/internal/storage"
	"github.com/jask/jasknotes/internal/worker"
)

// App is the settings screen. Backup workflows live in the settings
// Controller; App turns keys into Controller events and plays the host
// side of platform requests with its own dialogs.
type App struct {
	ctx         context.Context
	ctrl        *settings.Controller
	services    Services
	completions <-chan worker.Completion
	log         *zap.Logger
	keys        keyMap

	cursor        int
	catalogCursor int
	width         int
	height        int
	status        string
	location      string
	modal         modalState

	nameInput textinput.Model
	pathInput textinput.Model
	request   *platform.Request
}

type Services struct {
	Maintenance *service.MaintenanceService
}

type modalState string

const (
	modalNone         modalState = ""
	modalConfirmReset modalState = "confirmReset"
	modalChooser      modalState = "chooser"
	modalPermission   modalState = "permission"
)

type menuItem string

const (
	itemExport       menuItem = "export"
	itemImport       menuItem = "import"
	itemChangeFolder menuItem = "changeFolder"
	itemCrossApp     menuItem = "crossApp"
	itemReset        menuItem = "reset"
)

type keyMap struct {
	Up      key.Binding
	Down    key.Binding
	Select  key.Binding
	Import  key.Binding
	Delete  key.Binding
	Confirm key.Binding
	Deny    key.Binding
	Cancel  key.Binding
	Quit    key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Select:  key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select")),
		Import:  key.NewBinding(key.WithKeys("i", "enter"), key.WithHelp("i", "import")),
		Delete:  key.NewBinding(key.WithKeys("x", "delete"), key.WithHelp("x", "delete")),
		Confirm: key.NewBinding(key.WithKeys("y", "Y", "enter"), key.WithHelp("y", "confirm")),
		Deny:    key.NewBinding(key.WithKeys("n", "N"), key.WithHelp("n", "no")),
		Cancel:  key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
		Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func New(ctx context.Context, ctrl *settings.Controller, services Services, completions <-chan worker.Completion, log *zap.Logger) *App {
	name := textinput.New()
	name.CharLimit = 64
	path := textinput.New()
	path.CharLimit = 4096
	a := &App{
		ctx:           ctx,
		ctrl:          ctrl,
		services:      services,
		completions:   completions,
		log:           logging.OrNop(log).Named("tui"),
		keys:          defaultKeys(),
		catalogCursor: -1,
		nameInput:     name,
		pathInput:     path,
	}
	a.refreshLocation()
	return a
}

// refreshLocation re-reads the export folder shown under the export item.
func (a *App) refreshLocation() {
	a.location = a.ctrl.ExportSummary(a.ctx)
}

func (a *App) Init() tea.Cmd {
	return a.waitForCompletion()
}

func (a *App) waitForCompletion() tea.Cmd {
	if a.completions == nil {
		return nil
	}
	ch := a.completions
	return func() tea.Msg {
		c, ok := <-ch
		if !ok {
			return nil
		}
		return completionMsg(c)
	}
}

func (a *App) menu() []menuItem {
	items := []menuItem{itemExport, itemImport}
	if a.ctrl.CanChangeFolder() {
		items = append(items, itemChangeFolder)
	}
	return append(items, itemCrossApp, itemReset)
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m := msg.(type) {
	case tea.WindowSizeMsg:
		a.width, a.height = m.Width, m.Height
	case tea.KeyMsg:
		if m.String() == "ctrl+c" {
			return a, tea.Quit
		}
		if a.modal != modalNone {
			return a.handleModalKey(m)
		}
		return a.handleControllerKey(m)
	case completionMsg:
		c := worker.Completion(m)
		if c.Err != nil {
			a.log.Debug("job outcome", zap.String("job_id", c.JobID), zap.Error(c.Err))
		}
		a.status = completionText(c)
		a.refreshLocation()
		return a, a.waitForCompletion()
	case statusMsg:
		a.status = string(m)
		a.refreshLocation()
	case errMsg:
		a.status = "error: " + m.Error()
	}
	return a, nil
}

func (a *App) handleControllerKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch a.ctrl.State() {
	case settings.StatePresentingCatalog:
		return a.handleCatalogKey(m)
	case settings.StateConfirming:
		switch {
		case key.Matches(m, a.keys.Confirm):
			a.apply(a.ctrl.Confirm(a.ctx))
		case key.Matches(m, a.keys.Deny), key.Matches(m, a.keys.Cancel):
			a.apply(a.ctrl.Cancel())
		}
		return a, nil
	case settings.StatePresentingName:
		return a.handleNameKey(m)
	case settings.StateAborted:
		a.ctrl.Acknowledge()
		return a, nil
	}
	return a.handleMenuKey(m)
}

func (a *App) handleMenuKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	items := a.menu()
	switch {
	case key.Matches(m, a.keys.Quit):
		return a, tea.Quit
	case key.Matches(m, a.keys.Up):
		if a.cursor > 0 {
			a.cursor--
		}
	case key.Matches(m, a.keys.Down):
		if a.cursor < len(items)-1 {
			a.cursor++
		}
	case key.Matches(m, a.keys.Select):
		if a.cursor >= len(items) {
			a.cursor = 0
		}
		return a, a.activate(items[a.cursor])
	}
	return a, nil
}

func (a *App) activate(item menuItem) tea.Cmd {
	a.status = ""
	switch item {
	case itemExport:
		a.apply(a.ctrl.StartExport(a.ctx))
	case itemImport:
		a.catalogCursor = -1
		a.apply(a.ctrl.StartImport(a.ctx))
	case itemChangeFolder:
		a.catalogCursor = -1
		a.apply(a.ctrl.ChangeBackupFolder())
	case itemCrossApp:
		a.apply(a.ctrl.StartCrossAppImport())
	case itemReset:
		a.modal = modalConfirmReset
	}
	return nil
}

// apply shows what the Controller asked for.
func (a *App) apply(step settings.Step) {
	if !step.Notice.Empty() {
		a.status = step.Notice.Text
	}
	switch {
	case step.Request != nil:
		a.request = step.Request
		a.modal = modalChooser
		a.pathInput.Reset()
		a.pathInput.Placeholder = chooserPlaceholder(step.Request.Code)
		a.pathInput.Focus()
	case step.AskPermission:
		a.modal = modalPermission
	}
	if a.ctrl.State() == settings.StateIdle {
		a.refreshLocation()
	}
	if a.ctrl.State() == settings.StatePresentingName {
		a.nameInput.Reset()
		a.nameInput.Placeholder = a.ctrl.DefaultName()
		a.nameInput.Focus()
	}
}

func (a *App) handleCatalogKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	n := len(a.ctrl.Entries())
	switch {
	case key.Matches(m, a.keys.Cancel):
		a.apply(a.ctrl.Cancel())
	case key.Matches(m, a.keys.Up):
		if a.catalogCursor > 0 {
			a.catalogCursor--
		}
	case key.Matches(m, a.keys.Down):
		if a.catalogCursor < n-1 {
			a.catalogCursor++
		}
	case key.Matches(m, a.keys.Import):
		a.apply(a.ctrl.ChooseImport(a.catalogCursor))
	case key.Matches(m, a.keys.Delete):
		a.apply(a.ctrl.ChooseDelete(a.catalogCursor))
	}
	return a, nil
}

func (a *App) handleNameKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.Type {
	case tea.KeyEsc:
		a.nameInput.Blur()
		a.apply(a.ctrl.Cancel())
		return a, nil
	case tea.KeyEnter:
		name := a.nameInput.Value()
		a.nameInput.Blur()
		a.apply(a.ctrl.SubmitExportName(a.ctx, name))
		return a, nil
	}
	var cmd tea.Cmd
	a.nameInput, cmd = a.nameInput.Update(m)
	return a, cmd
}

func (a *App) handleModalKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch a.modal {
	case modalConfirmReset:
		switch {
		case key.Matches(m, a.keys.Confirm):
			a.modal = modalNone
			return a, a.resetCmd()
		case key.Matches(m, a.keys.Deny), key.Matches(m, a.keys.Cancel):
			a.modal = modalNone
		}
	case modalPermission:
		switch {
		case key.Matches(m, a.keys.Confirm):
			a.modal = modalNone
			a.apply(a.ctrl.PermissionResult(a.ctx, true))
		case key.Matches(m, a.keys.Deny), key.Matches(m, a.keys.Cancel):
			a.modal = modalNone
			a.apply(a.ctrl.PermissionResult(a.ctx, false))
		}
	case modalChooser:
		switch m.Type {
		case tea.KeyEsc:
			a.answer(a.request.Deny())
			return a, nil
		case tea.KeyEnter:
			res, err := a.fulfil(*a.request, a.pathInput.Value())
			if err != nil {
				a.status = "error: " + err.Error()
				return a, nil
			}
			a.answer(res)
			return a, nil
		}
		var cmd tea.Cmd
		a.pathInput, cmd = a.pathInput.Update(m)
		return a, cmd
	}
	return a, nil
}

// fulfil turns what the user typed into the chooser's answer. Folder
// requests grant a tree URI; the file picker hands back the path.
func (a *App) fulfil(req platform.Request, input string) (platform.Result, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return req.Deny(), nil
	}
	abs, err := filepath.Abs(expandHome(input))
	if err != nil {
		return platform.Result{}, err
	}
	if req.Code == platform.FileImport {
		return req.Grant(abs), nil
	}
	uri, err := storage.TreeURI(abs)
	if err != nil {
		return platform.Result{}, err
	}
	return req.Grant(uri), nil
}

func (a *App) answer(res platform.Result) {
	a.modal = modalNone
	a.request = nil
	a.pathInput.Blur()
	a.apply(a.ctrl.HandleResult(a.ctx, res))
}

func (a *App) resetCmd() tea.Cmd {
	return func() tea.Msg {
		if a.services.Maintenance == nil {
			return errMsg{fmt.Errorf("maintenance not configured")}
		}
		if err := a.services.Maintenance.Reset(a.ctx); err != nil {
			return errMsg{err}
		}
		return statusMsg("all notes and settings removed")
	}
}

// messages
type completionMsg worker.Completion

type statusMsg string

type errMsg struct{ error }

func completionText(c worker.Completion) string {
	if c.Err != nil {
		if errors.Is(c.Err, backup.ErrUnknownAction) {
			return ""
		}
		return fmt.Sprintf("%s failed: %v", kindLabel(c.Action.Kind), c.Err)
	}
	switch c.Action.Kind {
	case backup.KindExport:
		return fmt.Sprintf("Backup saved: %s (%d notes)", filepath.Base(c.Result.Path), c.Result.Notes)
	case backup.KindDelete:
		return fmt.Sprintf("Backup %s deleted", c.Action.Target)
	default:
		return fmt.Sprintf("Imported %d notes", c.Result.Notes)
	}
}

func kindLabel(k backup.Kind) string {
	switch k {
	case backup.KindExport:
		return "Export"
	case backup.KindImport, backup.KindCrossAppImport:
		return "Import"
	case backup.KindDelete:
		return "Delete"
	}
	return string(k)
}

func chooserPlaceholder(code platform.RequestCode) string {
	if code == platform.FileImport {
		return "path/to/export.zip"
	}
	return "~/Documents/jasknotes-backups"
}

func (a *App) View() string {
	var body string
	switch a.ctrl.State() {
	case settings.StatePresentingCatalog:
		body = a.renderCatalog()
	case settings.StateConfirming:
		body = a.renderConfirm()
	case settings.StatePresentingName:
		body = a.renderNameEntry()
	case settings.StateAborted:
		body = a.renderAborted()
	default:
		body = a.renderMenu()
	}
	if a.status != "" {
		body += "\n" + a.statusLine()
	}
	if a.modal == modalNone {
		return body
	}
	box := dialogStyle.Render(a.renderModal())
	if a.width > 0 && a.height > 0 {
		return overlayCenter(body, box, a.width, a.height)
	}
	return body + "\n\n" + box
}

func (a *App) renderMenu() string {
	out := titleStyle.Render("Settings - Data") + "\n"
	for i, item := range a.menu() {
		marker := " "
		label, summary := a.itemText(item)
		if i == a.cursor {
			marker = "▶"
			label = cursorStyle.Render(label)
		}
		out += fmt.Sprintf("%s %s\n", marker, label)
		if summary != "" {
			out += "   " + hintStyle.Render(a.fit(summary)) + "\n"
		}
	}
	out += hintStyle.Render("[enter] Select  [q] Quit")
	return out
}

func (a *App) itemText(item menuItem) (string, string) {
	switch item {
	case itemExport:
		return "Export notes", a.location
	case itemImport:
		return "Import notes", a.ctrl.ImportSummary()
	case itemChangeFolder:
		return "Change backup folder", "Pick the folder backups are kept in"
	case itemCrossApp:
		return "Import from another app", "Read notes from an exported archive"
	case itemReset:
		return "Reset all data", "Delete every note and setting"
	}
	return string(item), ""
}

func (a *App) renderCatalog() string {
	out := titleStyle.Render("Import") + "\n"
	for i, e := range a.ctrl.Entries() {
		marker := "( )"
		if i == a.catalogCursor {
			marker = "(•)"
		}
		out += fmt.Sprintf("%s %s\n", marker, a.fit(e.Name))
	}
	out += hintStyle.Render("[↑/↓] Choose  [i] Import  [x] Delete  [esc] Cancel")
	return out
}

func (a *App) renderConfirm() string {
	act := a.ctrl.Action()
	if act.Kind == backup.KindDelete {
		return titleStyle.Render("Remove backup?") + "\n" + a.fit(act.Target) + "\n" +
			hintStyle.Render("[y] Confirm  [n] Cancel")
	}
	return titleStyle.Render("Restore backup?") + "\n" + a.fit(act.Target) + "\n\n" +
		warnStyle.Render("Notes in the backup replace notes with the same id.") + "\n" +
		hintStyle.Render("[y] Confirm  [n] Cancel")
}

func (a *App) renderNameEntry() string {
	out := titleStyle.Render("Export notes") + "\n" + a.nameInput.View() + "\n"
	if a.ctrl.NameCollides(a.nameInput.Value()) {
		out += warnStyle.Render(settings.MsgBackupExists) + "\n"
	}
	out += hintStyle.Render("[enter] Export  [esc] Cancel")
	return out
}

func (a *App) renderAborted() string {
	n := a.ctrl.Notice()
	style := warnStyle
	if n.Level == settings.NoticeError {
		style = errorStyle
	}
	return style.Render(a.fit(n.Text)) + "\n" + hintStyle.Render("press any key")
}

func (a *App) renderModal() string {
	switch a.modal {
	case modalConfirmReset:
		return titleStyle.Render("Reset all data?") + "\nThis will delete all notes and settings.\n[y] Yes  [n] No"
	case modalPermission:
		return titleStyle.Render("Storage permission") + "\nAllow jasknotes to write backups to its backup folder?\n[y] Allow  [n] Deny"
	case modalChooser:
		title := "Choose backup folder"
		if a.request != nil && a.request.Code == platform.FileImport {
			title = "Choose archive to import"
		}
		return titleStyle.Render(title) + "\n" + a.pathInput.View() + "\n" + hintStyle.Render("[enter] Choose  [esc] Cancel")
	}
	return ""
}

func (a *App) statusLine() string {
	text := a.fit(a.status)
	switch n := a.ctrl.Notice(); {
	case n.Text != a.status:
		return text
	case n.Level == settings.NoticeError:
		return errorStyle.Render(text)
	case n.Level == settings.NoticeWarn:
		return warnStyle.Render(text)
	}
	return infoStyle.Render(text)
}

// fit truncates s to the terminal width once it is known.
func (a *App) fit(s string) string {
	if a.width <= 0 {
		return s
	}
	return ansi.Truncate(s, a.width, "…")
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
