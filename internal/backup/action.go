package backup

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNothingSelected rejects an action whose target was never chosen.
	ErrNothingSelected = errors.New("backup: nothing selected")
	// ErrUnknownAction rejects a kind the worker has no entry point for.
	ErrUnknownAction = errors.New("backup: unknown action")
	// ErrBackupNotFound is returned by the worker when the named entry is gone.
	ErrBackupNotFound = errors.New("backup: not found")
	// ErrInvalidArchive means the entry is not a readable backup or export.
	ErrInvalidArchive = errors.New("backup: not a valid archive")
)

// Kind selects the worker entry point.
type Kind string

const (
	KindImport         Kind = "import"
	KindDelete         Kind = "delete"
	KindExport         Kind = "export"
	KindCrossAppImport Kind = "cross_app_import"
)

// Action is one fire-and-forget request for the worker.
type Action struct {
	Kind Kind
	// Target is the backup name for Import, Delete and Export.
	Target string
	// Source is the external archive path for CrossAppImport.
	Source string
}

// Argument is the single string parameter passed across the worker boundary.
func (a Action) Argument() string {
	if a.Kind == KindCrossAppImport {
		return a.Source
	}
	return a.Target
}

// Validate checks the fields required by a.Kind.
func (a Action) Validate() error {
	switch a.Kind {
	case KindImport, KindDelete, KindExport:
		if strings.TrimSpace(a.Target) == "" {
			return fmt.Errorf("%s: %w", a.Kind, ErrNothingSelected)
		}
		if strings.ContainsAny(a.Target, `/\`) || a.Target == "." || a.Target == ".." {
			return fmt.Errorf("%s: invalid backup name %q", a.Kind, a.Target)
		}
	case KindCrossAppImport:
		if strings.TrimSpace(a.Source) == "" {
			return fmt.Errorf("%s: %w", a.Kind, ErrNothingSelected)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, a.Kind)
	}
	return nil
}

// ParseAction rebuilds an Action from its wire form.
func ParseAction(kind, argument string) (Action, error) {
	a := Action{Kind: Kind(kind)}
	if a.Kind == KindCrossAppImport {
		a.Source = argument
	} else {
		a.Target = argument
	}
	return a, a.Validate()
}

// DefaultName is the export name offered when the user types nothing.
func DefaultName(now time.Time, layout string) string {
	if layout == "" {
		layout = "2006.01.02-1504"
	}
	return now.Format(layout)
}

const archiveExt = ".zip"

// ArchiveName is the file an export named name is written to.
func ArchiveName(name string) string {
	if strings.HasSuffix(strings.ToLower(name), archiveExt) {
		return name
	}
	return name + archiveExt
}

// Collides reports whether exporting name would overwrite an entry.
func Collides(name string, entries []Entry) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	file := ArchiveName(name)
	for _, e := range entries {
		if e.Name == name || e.Name == file {
			return true
		}
	}
	return false
}
