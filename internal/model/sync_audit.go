package model

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// ==================== SyncAudit 同步审计 ====================

// SyncAudit 一次远端拉取的审计记录
// 保留原始事件组报文，供导出与对账回溯；只在发生真实拉取时写入
type SyncAudit struct {
	ID int64 `gorm:"primaryKey;autoIncrement"`

	StartDate time.Time `gorm:"index;not null"`
	EndDate   time.Time `gorm:"index;not null"`

	EventGroupCount int
	LineItemCount   int
	InsertedCount   int

	// 本次报文里出现过的事件种类（PostgreSQL text[]）
	EventTypes pq.StringArray `gorm:"type:text[]"`

	// 原始事件组报文（PostgreSQL JSONB）
	RawPayload datatypes.JSON `gorm:"type:jsonb"`

	// S3 导出地址（未开启导出时为空）
	ExportURL string `gorm:"size:500"`

	CreatedAt time.Time
}

func (*SyncAudit) TableName() string {
	return "finance_sync_audits"
}
