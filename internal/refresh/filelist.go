// internal/refresh/filelist.go
//
// JSON-encoded path list stored in the `supplementary_files` column.
// Order is preserved; the generation worker receives the paths in the
// order the ingestion pipeline reported them.

package refresh

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// FileList is an ordered list of knowledge-file paths handed to the
// generation worker as extra context.  NULL and "[]" both scan to an
// empty list.
type FileList []string

// Value implements driver.Valuer; empty lists persist as NULL.
func (f FileList) Value() (driver.Value, error) {
	if len(f) == 0 {
		return nil, nil
	}
	return json.Marshal(f)
}

// Scan implements sql.Scanner.
func (f *FileList) Scan(src any) error {
	if src == nil {
		*f = nil
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("supplementary_files: cannot scan %T", src)
	}
	if len(raw) == 0 {
		*f = nil
		return nil
	}
	return json.Unmarshal(raw, f)
}
