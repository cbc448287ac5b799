package backup

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jask/jasknotes/internal/database/repository"
)

const (
	formatVersion   = 1
	manifestFile    = "manifest.toml"
	notesFile       = "notes.json"
	preferencesFile = "preferences.toml"
	crossAppFile    = "data.json"
)

type manifest struct {
	FormatVersion int       `toml:"format_version"`
	CreatedAt     time.Time `toml:"created_at"`
	NoteCount     int       `toml:"note_count"`
}

type archivedNote struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Category  *string   `json:"category,omitempty"`
	Archived  bool      `json:"archived"`
	Trashed   bool      `json:"trashed"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// archiveContents is everything an export carries.
type archiveContents struct {
	Manifest    manifest
	Notes       []repository.Note
	Preferences map[string]string
}

func writeArchive(w io.Writer, c archiveContents) error {
	zw := zip.NewWriter(w)

	var mf bytes.Buffer
	if err := toml.NewEncoder(&mf).Encode(c.Manifest); err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := writeEntry(zw, manifestFile, mf.Bytes()); err != nil {
		return err
	}

	notes := make([]archivedNote, len(c.Notes))
	for i, n := range c.Notes {
		notes[i] = archivedNote(n)
	}
	nb, err := json.MarshalIndent(notes, "", "  ")
	if err != nil {
		return fmt.Errorf("encode notes: %w", err)
	}
	if err := writeEntry(zw, notesFile, nb); err != nil {
		return err
	}

	var pb bytes.Buffer
	if err := toml.NewEncoder(&pb).Encode(c.Preferences); err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	if err := writeEntry(zw, preferencesFile, pb.Bytes()); err != nil {
		return err
	}
	return zw.Close()
}

func writeEntry(zw *zip.Writer, name string, data []byte) error {
	f, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("zip %s: %w", name, err)
	}
	_, err = f.Write(data)
	return err
}

func readArchive(r io.ReaderAt, size int64) (archiveContents, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return archiveContents{}, fmt.Errorf("open archive: %w", err)
	}
	var c archiveContents

	mb, err := readEntry(zr, manifestFile)
	if err != nil {
		return archiveContents{}, err
	}
	if _, err := toml.Decode(string(mb), &c.Manifest); err != nil {
		return archiveContents{}, fmt.Errorf("decode manifest: %w", err)
	}
	if c.Manifest.FormatVersion != formatVersion {
		return archiveContents{}, fmt.Errorf("unsupported backup format %d", c.Manifest.FormatVersion)
	}

	nb, err := readEntry(zr, notesFile)
	if err != nil {
		return archiveContents{}, err
	}
	var notes []archivedNote
	if err := json.Unmarshal(nb, &notes); err != nil {
		return archiveContents{}, fmt.Errorf("decode notes: %w", err)
	}
	c.Notes = make([]repository.Note, len(notes))
	for i, n := range notes {
		c.Notes[i] = repository.Note(n)
	}

	pb, err := readEntry(zr, preferencesFile)
	if err != nil {
		return archiveContents{}, err
	}
	c.Preferences = map[string]string{}
	if _, err := toml.Decode(string(pb), &c.Preferences); err != nil {
		return archiveContents{}, fmt.Errorf("decode preferences: %w", err)
	}
	return c, nil
}

func readEntry(zr *zip.Reader, name string) ([]byte, error) {
	f, err := zr.Open(name)
	if err != nil {
		return nil, fmt.Errorf("archive entry %s: %w", name, err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

// crossAppNote is one item of a predecessor application's export.
type crossAppNote struct {
	Name     string `json:"name"`
	Text     string `json:"text"`
	Created  string `json:"created"`
	Notebook string `json:"notebook"`
}

func readCrossApp(r io.ReaderAt, size int64) ([]crossAppNote, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	b, err := readEntry(zr, crossAppFile)
	if err != nil {
		return nil, err
	}
	var items []crossAppNote
	if err := json.Unmarshal(b, &items); err != nil {
		return nil, fmt.Errorf("decode %s: %w", crossAppFile, err)
	}
	return items, nil
}
