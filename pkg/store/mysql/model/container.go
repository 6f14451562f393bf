package model

import "time"

// Container MySQL model for containers table (simulated registry).
// Replicas are rows with ParentID set; depth is at most one.
type Container struct {
	ID           string     `gorm:"primaryKey;column:id;type:varchar(64)" json:"id"`
	ParentID     *string    `gorm:"column:parent_id;type:varchar(64);index:idx_container_parent_status,priority:1" json:"parent_id,omitempty"`
	UserID       int64      `gorm:"column:user_id;not null;index:idx_container_user" json:"user_id"`
	Name         string     `gorm:"column:name;type:varchar(255);not null" json:"name"`
	Image        string     `gorm:"column:image;type:varchar(255)" json:"image"`
	Port         int        `gorm:"column:port;not null" json:"port"`
	URL          string     `gorm:"column:url;type:varchar(512)" json:"url"`
	Status       string     `gorm:"column:status;type:varchar(20);not null;index:idx_container_parent_status,priority:2" json:"status"`
	ReplicaIndex int        `gorm:"column:replica_index;not null" json:"replica_index"`
	Labels       JSONMap    `gorm:"column:labels;type:json" json:"labels,omitempty"`
	StartedAt    *time.Time `gorm:"column:started_at" json:"started_at,omitempty"`
	StoppedAt    *time.Time `gorm:"column:stopped_at" json:"stopped_at,omitempty"`
	CreatedAt    time.Time  `gorm:"column:created_at;not null;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;not null;autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for Container
func (Container) TableName() string {
	return "containers"
}
