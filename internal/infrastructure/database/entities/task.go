package entities

import "time"

// ChatTask represents the durable task queue backing inbound processing and
// outbound delivery. Workers claim rows with FOR UPDATE SKIP LOCKED.
type ChatTask struct {
	ID        uint      `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	Type    string `gorm:"type:varchar(30);not null;index:idx_chat_task_claim"`
	Payload []byte `gorm:"type:jsonb;not null"`
	// PartitionKey serializes tasks of one conversation identity.
	PartitionKey string `gorm:"type:varchar(160);not null;index"`

	Status    string    `gorm:"type:varchar(20);not null;default:'queued';index:idx_chat_task_claim"`
	Attempts  int       `gorm:"not null;default:0"`
	VisibleAt time.Time `gorm:"not null;index:idx_chat_task_claim"`
	LastError *string   `gorm:"type:text"`

	StartedAt   *time.Time
	CompletedAt *time.Time
	FailedAt    *time.Time
}

// TableName specifies the table name for ChatTask.
func (ChatTask) TableName() string {
	return "chat_tasks"
}

// Setting is a single-row key/value table for operator controls.
type Setting struct {
	Key       string    `gorm:"primaryKey;type:varchar(50)"`
	Value     string    `gorm:"type:varchar(256);not null"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName specifies the table name for Setting.
func (Setting) TableName() string {
	return "settings"
}
