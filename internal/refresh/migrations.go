// internal/refresh/migrations.go
//
// Idempotent schema for the refresh pipeline.  Applied at boot by
// cmd/refineryd; every statement is CREATE TABLE IF NOT EXISTS so repeat
// runs are harmless.  Retention/cleanup of refresh_job rows is an
// external concern; this subsystem never deletes them.

package refresh

import (
	"context"

	"github.com/jmoiron/sqlx"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS refresh_job (
        id                  BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
        family_id           BIGINT          NOT NULL,
        family_alias        VARCHAR(191)    NOT NULL,
        page_type           VARCHAR(32)     NOT NULL,
        status              VARCHAR(32)     NOT NULL DEFAULT 'pending',
        trigger_source      VARCHAR(128)    NOT NULL,
        trigger_job_id      VARCHAR(191)    NOT NULL,
        supplementary_files JSON            NULL,
        queue_job_id        VARCHAR(64)     NULL,
        error_message       TEXT            NULL,
        created_at          DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP,
        updated_at          DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP,
        published_at        DATETIME        NULL,
        published_by        VARCHAR(191)    NULL,
        KEY idx_refresh_pair_status (family_id, page_type, status),
        KEY idx_refresh_status_created (status, created_at)
    )`,

	`CREATE TABLE IF NOT EXISTS page_content (
        id               BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
        family_id        BIGINT       NOT NULL,
        page_type        VARCHAR(32)  NOT NULL,
        title            VARCHAR(255) NOT NULL DEFAULT '',
        heading          VARCHAR(255) NOT NULL DEFAULT '',
        canonical_url    VARCHAR(255) NOT NULL DEFAULT '',
        meta_description VARCHAR(512) NOT NULL DEFAULT '',
        body             MEDIUMTEXT   NULL,
        is_draft         TINYINT(1)   NOT NULL DEFAULT 1,
        is_published     TINYINT(1)   NOT NULL DEFAULT 0,
        updated_at       DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
        UNIQUE KEY uq_page (family_id, page_type)
    )`,

	`CREATE TABLE IF NOT EXISTS page_baseline (
        id               BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
        family_id        BIGINT       NOT NULL,
        page_type        VARCHAR(32)  NOT NULL,
        title            VARCHAR(255) NOT NULL DEFAULT '',
        heading          VARCHAR(255) NOT NULL DEFAULT '',
        canonical_url    VARCHAR(255) NOT NULL DEFAULT '',
        meta_description VARCHAR(512) NOT NULL DEFAULT '',
        captured_at      DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
        UNIQUE KEY uq_baseline (family_id, page_type)
    )`,

	`CREATE TABLE IF NOT EXISTS family (
        id           BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
        alias        VARCHAR(191) NOT NULL,
        name         VARCHAR(255) NOT NULL DEFAULT '',
        suspended_at DATETIME     NULL,
        deleted_at   DATETIME     NULL,
        created_at   DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
        UNIQUE KEY uq_family_alias (alias)
    )`,

	`CREATE TABLE IF NOT EXISTS diagnostic (
        id         BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
        alias      VARCHAR(191) NOT NULL,
        name       VARCHAR(255) NOT NULL DEFAULT '',
        created_at DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
        UNIQUE KEY uq_diagnostic_alias (alias)
    )`,

	`CREATE TABLE IF NOT EXISTS purchase_guide (
        id         BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
        family_id  BIGINT   NOT NULL,
        created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
        KEY idx_guide_family (family_id)
    )`,

	`CREATE TABLE IF NOT EXISTS advisory (
        id         BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
        family_id  BIGINT   NOT NULL,
        created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
        KEY idx_advisory_family (family_id)
    )`,

	`CREATE TABLE IF NOT EXISTS queue_job (
        id            VARCHAR(64)  NOT NULL PRIMARY KEY,
        refresh_job_id BIGINT      NOT NULL,
        family_id     BIGINT       NOT NULL,
        family_alias  VARCHAR(191) NOT NULL,
        page_type     VARCHAR(32)  NOT NULL,
        state         VARCHAR(16)  NOT NULL DEFAULT 'waiting',
        attempts      INT          NOT NULL DEFAULT 0,
        max_attempts  INT          NOT NULL DEFAULT 2,
        run_at        DATETIME     NOT NULL,
        last_error    TEXT         NULL,
        created_at    DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
        finished_at   DATETIME     NULL,
        KEY idx_queue_state_runat (state, run_at)
    )`,

	`CREATE TABLE IF NOT EXISTS admin_role (
        admin VARCHAR(191) NOT NULL,
        role  VARCHAR(64)  NOT NULL,
        PRIMARY KEY (admin, role)
    )`,

	`CREATE TABLE IF NOT EXISTS role_acl (
        role      VARCHAR(64) NOT NULL,
        component VARCHAR(64) NOT NULL,
        action    VARCHAR(64) NOT NULL,
        permitted TINYINT(1)  NOT NULL DEFAULT 0,
        PRIMARY KEY (role, component, action)
    )`,
}

// Migrate applies the schema.  Call once during bootstrap.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
