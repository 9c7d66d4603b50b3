package database

import "time"

// Server is a backend host a terminal channel can be opened against. Key is
// the backend connection key shared by every session targeting this host.
type Server struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Key          string    `gorm:"uniqueIndex;not null" json:"key"`
	Name         string    `gorm:"not null" json:"name"`
	Host         string    `gorm:"not null" json:"host"`
	TerminalPort int       `gorm:"not null;default:7700" json:"terminal_port"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Project is a logical workspace (a context key). Sessions opened for a
// project resolve their backend host through its ServerKey. Project CRUD
// lives elsewhere; this table only makes context keys resolvable.
type Project struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Key       string    `gorm:"uniqueIndex;not null" json:"key"`
	Name      string    `gorm:"not null" json:"name"`
	Slug      string    `json:"slug"`
	ServerKey string    `gorm:"index" json:"server_key"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
