// Package platform models the host interactions the settings screen cannot
// perform itself: runtime permissions, the folder chooser and the file picker.
// Each interaction is a Request answered later by a Result carrying the same
// correlation token.
package platform

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/jask/jasknotes/internal/prefs"
)

// RequestCode identifies what a chooser result is for.
type RequestCode int

const (
	FileImport      RequestCode = 0
	AccessForExport RequestCode = 200
	AccessForImport RequestCode = 210
)

func (c RequestCode) String() string {
	switch c {
	case FileImport:
		return "file-import"
	case AccessForExport:
		return "access-for-export"
	case AccessForImport:
		return "access-for-import"
	default:
		return fmt.Sprintf("request(%d)", int(c))
	}
}

// Request asks the host to show a chooser.
type Request struct {
	Code  RequestCode
	Token string
}

// NewRequest stamps a fresh correlation token.
func NewRequest(code RequestCode) Request {
	return Request{Code: code, Token: uuid.NewString()}
}

// Result answers a Request. OK is false when the user cancelled or denied.
// URI is a granted folder for the access codes and a file path for FileImport.
type Result struct {
	Code  RequestCode
	Token string
	URI   string
	OK    bool
}

// Grant builds a successful result for r.
func (r Request) Grant(uri string) Result {
	return Result{Code: r.Code, Token: r.Token, URI: uri, OK: true}
}

// Deny builds a cancelled result for r.
func (r Request) Deny() Result {
	return Result{Code: r.Code, Token: r.Token}
}

// Permission names a runtime permission.
type Permission string

const StorageWrite Permission = "storage_write"

// Permissions reports and records runtime permission grants.
type Permissions interface {
	Granted(p Permission) bool
	Record(p Permission, granted bool) error
}

// PrefPermissions keeps grants in the preference store, the way the host
// remembers an accepted permission dialog.
type PrefPermissions struct {
	Store prefs.Store
}

func (p PrefPermissions) Granted(perm Permission) bool {
	if perm != StorageWrite {
		return false
	}
	return p.Store.GetString(prefs.KeyStoragePermission, "") == "granted"
}

func (p PrefPermissions) Record(perm Permission, granted bool) error {
	if perm != StorageWrite {
		return fmt.Errorf("platform: unknown permission %q", perm)
	}
	v := "denied"
	if granted {
		v = "granted"
	}
	return p.Store.PutString(prefs.KeyStoragePermission, v)
}
