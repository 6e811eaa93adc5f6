// Package storage opens the relational store and keeps its schema current.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"github.com/christopherjohns/socialhub/internal/config"
)

// Open connects to the configured database and verifies the connection.
func Open(cfg config.DatabaseConfig) (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)

	switch strings.ToLower(cfg.Driver) {
	case "sqlite", "sqlite3":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("sqlite dsn must be provided")
		}
		db, err = sql.Open("sqlite3", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		// sqlite allows a single writer; one connection also keeps
		// the foreign_keys pragma below in effect for every query.
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
		}
	case "mysql":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
				cfg.Username,
				cfg.Password,
				cfg.Host,
				cfg.Port,
				cfg.DBName,
				cfg.Params,
			)
		}
		db, err = sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("open mysql database: %w", err)
		}
		db.SetConnMaxLifetime(5 * time.Minute)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Migrate ensures the required tables are present.
func Migrate(db *sql.DB, driver string) error {
	var stmts []string
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		stmts = sqliteSchema
	case "mysql":
		stmts = mysqlSchema
	default:
		return fmt.Errorf("unsupported driver: %s", driver)
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		profile_picture_url TEXT NOT NULL DEFAULT '',
		bio TEXT NOT NULL DEFAULT '',
		is_online INTEGER NOT NULL DEFAULT 0,
		last_seen DATETIME,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL DEFAULT '',
		is_group INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		last_message_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS conversation_participants (
		conversation_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		joined_at DATETIME NOT NULL,
		last_read_at DATETIME,
		PRIMARY KEY (conversation_id, user_id),
		FOREIGN KEY(conversation_id) REFERENCES conversations(id) ON DELETE CASCADE,
		FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_participants_user ON conversation_participants(user_id)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id INTEGER NOT NULL,
		sender_id INTEGER NOT NULL,
		content TEXT NOT NULL,
		type TEXT NOT NULL DEFAULT 'text',
		sent_at DATETIME NOT NULL,
		is_edited INTEGER NOT NULL DEFAULT 0,
		is_deleted INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY(conversation_id) REFERENCES conversations(id) ON DELETE CASCADE,
		FOREIGN KEY(sender_id) REFERENCES users(id) ON DELETE CASCADE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, sent_at)`,
	`CREATE TABLE IF NOT EXISTS posts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		text_content TEXT NOT NULL DEFAULT '',
		type TEXT NOT NULL DEFAULT 'text',
		media_url TEXT NOT NULL DEFAULT '',
		thumbnail_url TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		edited_at DATETIME,
		is_edited INTEGER NOT NULL DEFAULT 0,
		is_deleted INTEGER NOT NULL DEFAULT 0,
		likes_count INTEGER NOT NULL DEFAULT 0,
		comments_count INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_posts_user ON posts(user_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS comments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		post_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		parent_comment_id INTEGER,
		content TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		edited_at DATETIME,
		is_edited INTEGER NOT NULL DEFAULT 0,
		is_deleted INTEGER NOT NULL DEFAULT 0,
		likes_count INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY(post_id) REFERENCES posts(id) ON DELETE CASCADE,
		FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE,
		FOREIGN KEY(parent_comment_id) REFERENCES comments(id) ON DELETE SET NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_comments_post ON comments(post_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS post_likes (
		post_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (post_id, user_id),
		FOREIGN KEY(post_id) REFERENCES posts(id) ON DELETE CASCADE,
		FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS comment_likes (
		comment_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (comment_id, user_id),
		FOREIGN KEY(comment_id) REFERENCES comments(id) ON DELETE CASCADE,
		FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS friendships (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		requester_id INTEGER NOT NULL,
		addressee_id INTEGER NOT NULL,
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		accepted_at DATETIME,
		UNIQUE(requester_id, addressee_id),
		FOREIGN KEY(requester_id) REFERENCES users(id) ON DELETE CASCADE,
		FOREIGN KEY(addressee_id) REFERENCES users(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS follows (
		follower_id INTEGER NOT NULL,
		following_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (follower_id, following_id),
		FOREIGN KEY(follower_id) REFERENCES users(id) ON DELETE CASCADE,
		FOREIGN KEY(following_id) REFERENCES users(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		actor_user_id INTEGER,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		type TEXT NOT NULL,
		is_read INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		data TEXT,
		FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE,
		FOREIGN KEY(actor_user_id) REFERENCES users(id) ON DELETE SET NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, is_read, created_at)`,
}

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT NOT NULL AUTO_INCREMENT,
		username VARCHAR(64) NOT NULL UNIQUE,
		email VARCHAR(255) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		display_name VARCHAR(128) NOT NULL DEFAULT '',
		profile_picture_url VARCHAR(512) NOT NULL DEFAULT '',
		bio VARCHAR(512) NOT NULL DEFAULT '',
		is_online BOOLEAN NOT NULL DEFAULT FALSE,
		last_seen DATETIME NULL,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id BIGINT NOT NULL AUTO_INCREMENT,
		name VARCHAR(128) NOT NULL DEFAULT '',
		is_group BOOLEAN NOT NULL DEFAULT FALSE,
		created_at DATETIME NOT NULL,
		last_message_at DATETIME NULL,
		PRIMARY KEY (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS conversation_participants (
		conversation_id BIGINT NOT NULL,
		user_id BIGINT NOT NULL,
		joined_at DATETIME NOT NULL,
		last_read_at DATETIME NULL,
		PRIMARY KEY (conversation_id, user_id),
		INDEX idx_participants_user (user_id),
		CONSTRAINT fk_participants_conversation FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE,
		CONSTRAINT fk_participants_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS messages (
		id BIGINT NOT NULL AUTO_INCREMENT,
		conversation_id BIGINT NOT NULL,
		sender_id BIGINT NOT NULL,
		content TEXT NOT NULL,
		type VARCHAR(16) NOT NULL DEFAULT 'text',
		sent_at DATETIME(6) NOT NULL,
		is_edited BOOLEAN NOT NULL DEFAULT FALSE,
		is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (id),
		INDEX idx_messages_conversation (conversation_id, sent_at),
		CONSTRAINT fk_messages_conversation FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE,
		CONSTRAINT fk_messages_sender FOREIGN KEY (sender_id) REFERENCES users(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS posts (
		id BIGINT NOT NULL AUTO_INCREMENT,
		user_id BIGINT NOT NULL,
		text_content TEXT NOT NULL,
		type VARCHAR(16) NOT NULL DEFAULT 'text',
		media_url VARCHAR(512) NOT NULL DEFAULT '',
		thumbnail_url VARCHAR(512) NOT NULL DEFAULT '',
		created_at DATETIME(6) NOT NULL,
		edited_at DATETIME NULL,
		is_edited BOOLEAN NOT NULL DEFAULT FALSE,
		is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
		likes_count INT NOT NULL DEFAULT 0,
		comments_count INT NOT NULL DEFAULT 0,
		PRIMARY KEY (id),
		INDEX idx_posts_user (user_id, created_at),
		CONSTRAINT fk_posts_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS comments (
		id BIGINT NOT NULL AUTO_INCREMENT,
		post_id BIGINT NOT NULL,
		user_id BIGINT NOT NULL,
		parent_comment_id BIGINT NULL,
		content TEXT NOT NULL,
		created_at DATETIME(6) NOT NULL,
		edited_at DATETIME NULL,
		is_edited BOOLEAN NOT NULL DEFAULT FALSE,
		is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
		likes_count INT NOT NULL DEFAULT 0,
		PRIMARY KEY (id),
		INDEX idx_comments_post (post_id, created_at),
		CONSTRAINT fk_comments_post FOREIGN KEY (post_id) REFERENCES posts(id) ON DELETE CASCADE,
		CONSTRAINT fk_comments_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
		CONSTRAINT fk_comments_parent FOREIGN KEY (parent_comment_id) REFERENCES comments(id) ON DELETE SET NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS post_likes (
		post_id BIGINT NOT NULL,
		user_id BIGINT NOT NULL,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (post_id, user_id),
		CONSTRAINT fk_post_likes_post FOREIGN KEY (post_id) REFERENCES posts(id) ON DELETE CASCADE,
		CONSTRAINT fk_post_likes_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS comment_likes (
		comment_id BIGINT NOT NULL,
		user_id BIGINT NOT NULL,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (comment_id, user_id),
		CONSTRAINT fk_comment_likes_comment FOREIGN KEY (comment_id) REFERENCES comments(id) ON DELETE CASCADE,
		CONSTRAINT fk_comment_likes_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS friendships (
		id BIGINT NOT NULL AUTO_INCREMENT,
		requester_id BIGINT NOT NULL,
		addressee_id BIGINT NOT NULL,
		status VARCHAR(16) NOT NULL,
		created_at DATETIME NOT NULL,
		accepted_at DATETIME NULL,
		PRIMARY KEY (id),
		UNIQUE KEY uq_friendship_pair (requester_id, addressee_id),
		CONSTRAINT fk_friendships_requester FOREIGN KEY (requester_id) REFERENCES users(id) ON DELETE CASCADE,
		CONSTRAINT fk_friendships_addressee FOREIGN KEY (addressee_id) REFERENCES users(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS follows (
		follower_id BIGINT NOT NULL,
		following_id BIGINT NOT NULL,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (follower_id, following_id),
		CONSTRAINT fk_follows_follower FOREIGN KEY (follower_id) REFERENCES users(id) ON DELETE CASCADE,
		CONSTRAINT fk_follows_following FOREIGN KEY (following_id) REFERENCES users(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id BIGINT NOT NULL AUTO_INCREMENT,
		user_id BIGINT NOT NULL,
		actor_user_id BIGINT NULL,
		title VARCHAR(128) NOT NULL,
		message VARCHAR(1024) NOT NULL,
		type VARCHAR(32) NOT NULL,
		is_read BOOLEAN NOT NULL DEFAULT FALSE,
		created_at DATETIME(6) NOT NULL,
		data TEXT NULL,
		PRIMARY KEY (id),
		INDEX idx_notifications_user (user_id, is_read, created_at),
		CONSTRAINT fk_notifications_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
		CONSTRAINT fk_notifications_actor FOREIGN KEY (actor_user_id) REFERENCES users(id) ON DELETE SET NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}
