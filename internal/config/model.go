// internal/config/model.go
//
// Typed configuration model for Refinery.
//
// Context
// -------
// These structs define the shape of the configuration tree that
// `internal/config/loader.go` builds from three overlay layers:
//
//   • optional `.env`                            – dotenv values,
//   • `conf/global.yaml`                         – primary static file,
//   • `REFINERY_`-prefixed environment overrides – highest precedence.
//
// The database password may be a literal or a `vault:<path>#<key>`
// reference; the reference is resolved through internal/vault during
// bootstrap, so the model only ever stores the resolved string at the
// time the DSN is assembled.
//
// Validation happens immediately after unmarshal; the app fails fast if
// required fields are missing.
//
// Notes
// -----
//   • Struct tags use `koanf:"…"`, not `yaml:"…"`—Koanf ignores `yaml` tags
//     unless configured otherwise.
//   • The `Paths.Root` field is filled at runtime; YAML must not set it.
//   • Oxford commas, two spaces after periods.  No em-dash.

package config

import (
	"fmt"
	"time"
)

//
// HTTP section
//

// HTTP holds web-server tunables for the admin API.
type HTTP struct {
	ListenAddr string `koanf:"listen_addr" validate:"required,hostname_port"`
}

//
// Database section
//

// Database holds the DSN template and its secret.
//
// The *template* (`DSN`) is kept in YAML so operators can tweak host, port,
// or flags without touching Vault.  It must contain exactly one `%s` verb
// where the password is spliced in.  The *secret* portion (`Password`) is
// either a literal or a `vault:` reference resolved at boot, keeping
// credentials out of flat files and git history.
type Database struct {
	DSN      string `koanf:"dsn"      validate:"required,dsntemplate"`
	Password string `koanf:"password" validate:"required"`
}

// BuildDSN splices the resolved password into the DSN template.
func (d Database) BuildDSN(password string) string {
	return fmt.Sprintf(d.DSN, password)
}

//
// Queue section
//

// Queue holds the persistent-queue contract knobs.  The defaults mirror the
// delivery guarantees the generation worker is written against: two
// attempts with exponential backoff starting at thirty seconds.
type Queue struct {
	Attempts     int           `koanf:"attempts"      validate:"min=1,max=10"`
	BackoffBase  time.Duration `koanf:"backoff_base"`
	Retention    time.Duration `koanf:"retention"`
	PollInterval time.Duration `koanf:"poll_interval"`
	Workers      int           `koanf:"workers" validate:"min=1,max=32"`
}

//
// Reaper section
//

// Reaper bounds how long a refresh row may sit in `processing` before it is
// declared stuck and failed.
type Reaper struct {
	MaxProcessingAge time.Duration `koanf:"max_processing_age"`
	Interval         time.Duration `koanf:"interval"`
}

//
// Geo section (optional)
//

// Geo points at a MaxMind City database used to enrich the admin audit
// trail.  Empty path disables the lookup; UA parsing still works.
type Geo struct {
	DBPath string `koanf:"db_path"`
}

//
// Paths section
//

// Paths groups filesystem anchors.  `Root` is resolved at runtime—never set
// in YAML or env.  `KnowledgeDir` is where the ingestion pipeline drops
// knowledge-base markdown; the resolver checks
// `<knowledge_dir>/gammes/<alias>.md` for the reference archetype.
type Paths struct {
	Root         string `koanf:"-"`
	KnowledgeDir string `koanf:"knowledge_dir" validate:"required"`
}

//
// Root aggregate
//

// Config is the immutable aggregate returned by Load() and cached in an
// atomic.Pointer for lock-free reads throughout the app lifetime.
type Config struct {
	HTTP     HTTP     `koanf:"http"`
	Database Database `koanf:"database"`
	Queue    Queue    `koanf:"queue"`
	Reaper   Reaper   `koanf:"reaper"`
	Geo      Geo      `koanf:"geo"`
	Paths    Paths    `koanf:"paths"`
}

// applyDefaults fills the zero-value knobs that YAML may omit.
func (c *Config) applyDefaults() {
	if c.Queue.Attempts == 0 {
		c.Queue.Attempts = 2
	}
	if c.Queue.BackoffBase == 0 {
		c.Queue.BackoffBase = 30 * time.Second
	}
	if c.Queue.Retention == 0 {
		c.Queue.Retention = 72 * time.Hour
	}
	if c.Queue.PollInterval == 0 {
		c.Queue.PollInterval = 5 * time.Second
	}
	if c.Queue.Workers == 0 {
		c.Queue.Workers = 2
	}
	if c.Reaper.MaxProcessingAge == 0 {
		c.Reaper.MaxProcessingAge = 2 * time.Hour
	}
	if c.Reaper.Interval == 0 {
		c.Reaper.Interval = 10 * time.Minute
	}
}
