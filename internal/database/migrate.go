package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied statement by statement so the DSN does not need
// multiStatements.  Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS auth_identities (
		id            CHAR(36)     NOT NULL PRIMARY KEY,
		email         VARCHAR(255) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		is_active     BOOLEAN      NOT NULL DEFAULT TRUE,
		created_at    DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at    DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS users (
		id         CHAR(36)     NOT NULL PRIMARY KEY,
		name       VARCHAR(255) NOT NULL,
		email      VARCHAR(255) NOT NULL UNIQUE,
		dob        DATE         NOT NULL,
		created_at DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT fk_users_identity FOREIGN KEY (id) REFERENCES auth_identities(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id         BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		user_id    CHAR(36)        NOT NULL,
		token_hash CHAR(64)        NOT NULL UNIQUE,
		expires_at DATETIME        NOT NULL,
		revoked_at DATETIME        NULL,
		created_at DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP,
		KEY idx_refresh_user (user_id),
		CONSTRAINT fk_refresh_identity FOREIGN KEY (user_id) REFERENCES auth_identities(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS event (
		id                CHAR(36)      NOT NULL PRIMARY KEY,
		name              VARCHAR(255)  NOT NULL,
		description       TEXT          NOT NULL,
		image_url         VARCHAR(1024) NOT NULL DEFAULT '',
		price             DECIMAL(10,2) NOT NULL,
		tickets_available INT           NOT NULL,
		address           VARCHAR(512)  NOT NULL DEFAULT '',
		event_date        DATETIME      NOT NULL,
		created_at        DATETIME      NOT NULL DEFAULT CURRENT_TIMESTAMP,
		KEY idx_event_name (name),
		CONSTRAINT chk_event_tickets CHECK (tickets_available >= 0)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS event_attendees (
		id             CHAR(36)      NOT NULL PRIMARY KEY,
		user_id        CHAR(36)      NOT NULL,
		event_id       CHAR(36)      NOT NULL,
		tickets_booked INT           NOT NULL,
		price_paid     DECIMAL(10,2) NOT NULL,
		booked_at      DATETIME      NOT NULL DEFAULT CURRENT_TIMESTAMP,
		KEY idx_attendees_user (user_id, booked_at),
		CONSTRAINT fk_attendees_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
		CONSTRAINT fk_attendees_event FOREIGN KEY (event_id) REFERENCES event(id),
		CONSTRAINT chk_attendees_tickets CHECK (tickets_booked > 0)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates the tables the service relies on when they are missing.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i+1, err)
		}
	}
	return nil
}
