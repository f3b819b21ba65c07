package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/abduznik/AI-PR-Analyzer/internal/docstore"
	ferrors "github.com/abduznik/AI-PR-Analyzer/internal/foundation/errors"
)

// Document is the session file: chat id to session.
type Document map[string]*Session

// NewDocument returns an empty Document.
func NewDocument() Document { return Document{} }

// MigrationReport lists the chats whose stored value had the legacy shape
// and the chats whose value could not be read at all.
type MigrationReport struct {
	Migrated []string `json:"migrated"`
	Rejected []string `json:"rejected,omitempty"`
}

// UnmarshalJSON accepts both the current and the legacy chat shapes.
// Unreadable chats are dropped; Salvage reports them.
func (d *Document) UnmarshalJSON(data []byte) error {
	_, err := d.Salvage(data)
	return err
}

// Salvage decodes data and returns the raw value of every chat that could
// not be read. The other chats are kept.
func (d *Document) Salvage(data []byte) (map[string]json.RawMessage, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	doc, report := Migrate(raw)
	*d = doc
	if len(report.Rejected) == 0 {
		return nil, nil
	}
	dropped := make(map[string]json.RawMessage, len(report.Rejected))
	for _, chatID := range report.Rejected {
		dropped[chatID] = raw[chatID]
	}
	return dropped, nil
}

// Migrate converts raw chat values into sessions. A JSON array is the legacy
// shape and becomes the current session with no snapshots; a JSON object is
// taken as is. Any other value, or one that does not decode, is left out of
// the document and listed in the report.
func Migrate(raw map[string]json.RawMessage) (Document, MigrationReport) {
	doc := make(Document, len(raw))
	var report MigrationReport

	for chatID, value := range raw {
		s, legacy, err := decodeChat(value)
		if err != nil {
			report.Rejected = append(report.Rejected, chatID)
			continue
		}
		doc[chatID] = s
		if legacy {
			report.Migrated = append(report.Migrated, chatID)
		}
	}

	slices.Sort(report.Migrated)
	slices.Sort(report.Rejected)
	return doc, report
}

func decodeChat(value json.RawMessage) (*Session, bool, error) {
	trimmed := bytes.TrimSpace(value)
	if len(trimmed) == 0 {
		return nil, false, fmt.Errorf("empty value")
	}
	switch trimmed[0] {
	case '[':
		var turns []Turn
		if err := json.Unmarshal(trimmed, &turns); err != nil {
			return nil, true, fmt.Errorf("legacy turns: %w", err)
		}
		s := &Session{Current: turns}
		s.normalize()
		return s, true, nil
	case '{':
		s := &Session{}
		if err := json.Unmarshal(trimmed, s); err != nil {
			return nil, false, fmt.Errorf("session: %w", err)
		}
		s.normalize()
		return s, false, nil
	default:
		return nil, false, fmt.Errorf("unexpected value %s", truncate(trimmed, 32))
	}
}

// MigrateFile rewrites the session file at path in canonical form and reports
// which chats were converted. Unreadable chats are moved to a corrupt copy
// next to the file. A missing file is not an error.
func MigrateFile(ctx context.Context, path string, opts ...docstore.Option) (MigrationReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return MigrationReport{}, nil
		}
		return MigrationReport{}, ferrors.WrapError(err, ferrors.CategoryStorageWrite, "failed to read session file").
			WithContext("path", path).
			Build()
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return MigrationReport{}, ferrors.StorageCorruptError("session file is not a JSON object").
			WithCause(err).
			WithContext("path", path).
			Build()
	}
	_, report := Migrate(raw)
	if len(report.Migrated) == 0 && len(report.Rejected) == 0 {
		return report, nil
	}
	// Loading through the store sets rejected chats aside; the update then
	// writes the remaining chats in the current shape.
	err = NewFile(path, opts...).Update(ctx, func(*Document) error { return nil })
	return report, err
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
