// internal/knowledge/checker.go
//
// Knowledge-base file existence signal.
//
// Context
// -------
// The ingestion pipeline drops per-family markdown files under
// `<knowledge_dir>/gammes/<alias>.md`.  The resolver treats the presence
// of such a file as the availability signal for the "reference"
// archetype.  Absence is not an error — it is evidence the archetype
// does not apply — so Exists returns a plain bool.
//
// The check is an injected capability (refresh.KnowledgeChecker) rather
// than a direct OS call at the call site, so the resolver stays testable
// without a real filesystem.

package knowledge

import (
	"os"
	"path/filepath"
)

// Checker answers existence queries against one base directory.
type Checker struct {
	baseDir string
}

// NewChecker anchors a Checker at baseDir (the configured knowledge
// directory, not the repo root).
func NewChecker(baseDir string) *Checker {
	return &Checker{baseDir: baseDir}
}

// Path returns the deterministic knowledge-file path for alias.
func (c *Checker) Path(alias string) string {
	return filepath.Join(c.baseDir, "gammes", alias+".md")
}

// Exists reports whether the knowledge file for alias is on disk.  Any
// stat error — permission, transient, or plain absence — reads as "not
// applicable."
func (c *Checker) Exists(alias string) bool {
	info, err := os.Stat(c.Path(alias))
	return err == nil && !info.IsDir()
}
