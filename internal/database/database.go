package database

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/llmhub/termmux/internal/config"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// ErrNotFound is returned by lookup helpers when no matching row exists.
var ErrNotFound = errors.New("not found")

func Init() error {
	dbPath := config.Cfg.DatabasePath
	dbDir := filepath.Dir(dbPath)
	if dbDir != "" {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return fmt.Errorf("create db directory: %w", err)
		}
	}

	var err error
	DB, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}

	if err := DB.AutoMigrate(&Server{}, &Project{}); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	return nil
}

func Close() {
	if DB == nil {
		return
	}
	sqlDB, err := DB.DB()
	if err != nil {
		log.Printf("database close: %v", err)
		return
	}
	sqlDB.Close()
}

// GetServerByKey looks up a backend host by its connection key.
func GetServerByKey(key string) (*Server, error) {
	var srv Server
	if err := DB.Where("key = ?", key).First(&srv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &srv, nil
}

// GetProjectByKey looks up a project by its context key.
func GetProjectByKey(key string) (*Project, error) {
	var proj Project
	if err := DB.Where("key = ?", key).First(&proj).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &proj, nil
}

// ListServers returns all known backend hosts.
func ListServers() ([]Server, error) {
	var servers []Server
	if err := DB.Order("key").Find(&servers).Error; err != nil {
		return nil, err
	}
	return servers, nil
}

// UpsertServer inserts or updates a host record by key.
func UpsertServer(srv *Server) error {
	var existing Server
	err := DB.Where("key = ?", srv.Key).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return DB.Create(srv).Error
	}
	if err != nil {
		return err
	}
	srv.ID = existing.ID
	return DB.Save(srv).Error
}

// UpsertProject inserts or updates a project record by key.
func UpsertProject(proj *Project) error {
	var existing Project
	err := DB.Where("key = ?", proj.Key).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return DB.Create(proj).Error
	}
	if err != nil {
		return err
	}
	proj.ID = existing.ID
	return DB.Save(proj).Error
}
