package db

import (
	"database/sql"
	"fmt"
	"log"

	"soundsketch/config"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
)

var DB *sql.DB

// ConnectDB establishes a connection to the database.
func ConnectDB(cfg *config.Config) error {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	var err error
	DB, err = sql.Open("mysql", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	if err = DB.Ping(); err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("Successfully connected to the database.")
	return nil
}

// InitDB initializes the database schema, creating tables if they don't exist.
func InitDB() error {
	if err := createUsersTable(); err != nil {
		return err
	}
	if err := createTracksTable(); err != nil {
		return err
	}
	if err := createVersionsTable(); err != nil {
		return err
	}

	log.Println("Database initialization completed.")
	return nil
}

func createUsersTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		id INT AUTO_INCREMENT PRIMARY KEY,
		username VARCHAR(100) NOT NULL UNIQUE,
		email VARCHAR(255) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		display_name VARCHAR(100),
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	);
	`
	_, err := DB.Exec(query)
	if err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}
	log.Println("Users table initialized successfully (or already exists).")
	return nil
}

func createTracksTable() error {
	// latest_version_id is a denormalized pointer to the most recently created
	// surviving version; maintained by the version repository.
	query := `
	CREATE TABLE IF NOT EXISTS tracks (
		id INT AUTO_INCREMENT PRIMARY KEY,
		creator_id INT NOT NULL,
		title VARCHAR(255) NOT NULL,
		description TEXT,
		shareable_id VARCHAR(36) NOT NULL UNIQUE,
		downloads_enabled BOOLEAN NOT NULL DEFAULT FALSE,
		latest_version_id INT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		CONSTRAINT fk_track_creator FOREIGN KEY (creator_id) REFERENCES users(id) ON DELETE CASCADE
	);
	`
	_, err := DB.Exec(query)
	if err != nil {
		return fmt.Errorf("failed to create tracks table: %w", err)
	}
	log.Println("Tracks table initialized successfully (or already exists).")
	return nil
}

func createVersionsTable() error {
	// The four original_* columns are set together iff the source upload was
	// lossless and a streaming encode was produced from it.
	query := `
	CREATE TABLE IF NOT EXISTS versions (
		id INT AUTO_INCREMENT PRIMARY KEY,
		track_id INT NOT NULL,
		version_name VARCHAR(255) NOT NULL,
		change_notes TEXT,
		streaming_key VARCHAR(255) NOT NULL,
		bucket VARCHAR(100) NOT NULL,
		file_name VARCHAR(255) NOT NULL,
		file_size BIGINT NOT NULL,
		file_format VARCHAR(10) NOT NULL,
		duration DOUBLE NOT NULL DEFAULT 0,
		uploaded_by INT NOT NULL,
		original_key VARCHAR(255),
		original_file_name VARCHAR(255),
		original_file_size BIGINT,
		original_file_format VARCHAR(10),
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT fk_version_track FOREIGN KEY (track_id) REFERENCES tracks(id) ON DELETE CASCADE,
		INDEX idx_versions_track (track_id, created_at)
	);
	`
	_, err := DB.Exec(query)
	if err != nil {
		return fmt.Errorf("failed to create versions table: %w", err)
	}
	log.Println("Versions table initialized successfully (or already exists).")
	return nil
}
