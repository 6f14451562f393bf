package model

import "time"

// ScalingEvent MySQL model for scaling_events table.
// No foreign key to scaling_policies: events outlive their policy.
type ScalingEvent struct {
	ID                 int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	EventID            string    `gorm:"column:event_id;type:varchar(64);not null;uniqueIndex:idx_event_id_unique" json:"event_id"`
	PolicyID           int64     `gorm:"column:policy_id;not null;index:idx_event_policy" json:"policy_id"`
	ContainerID        string    `gorm:"column:container_id;type:varchar(64);not null;index:idx_event_container_created,priority:1" json:"container_id"`
	Action             string    `gorm:"column:action;type:varchar(20);not null" json:"action"`
	TriggerMetric      string    `gorm:"column:trigger_metric;type:varchar(20);not null" json:"trigger_metric"`
	MetricValue        float64   `gorm:"column:metric_value;not null" json:"metric_value"`
	ReplicaCountBefore int       `gorm:"column:replica_count_before;not null" json:"replica_count_before"`
	ReplicaCountAfter  int       `gorm:"column:replica_count_after;not null" json:"replica_count_after"`
	CreatedAt          time.Time `gorm:"column:created_at;not null;index:idx_event_created;index:idx_event_container_created,priority:2" json:"created_at"`
}

// TableName specifies the table name for ScalingEvent
func (ScalingEvent) TableName() string {
	return "scaling_events"
}
