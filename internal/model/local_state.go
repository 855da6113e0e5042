package model

import "time"

// LocalState is one key of on-device state, stored as a single JSON blob.
type LocalState struct {
	Key       string `gorm:"column:state_key;primaryKey;size:128"`
	Value     string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

// TableName pins the table name used by every driver.
func (LocalState) TableName() string {
	return "local_state"
}
