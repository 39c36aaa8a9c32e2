package repository

import (
	"context"
	"log"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"amzfin_v1_202608/internal/model"
)

// ==================== LineItemRepository 行项目仓库 ====================

// LineItemRepository 行项目仓库接口
// 行项目只增不删：同步引擎依赖唯一键去重保证幂等
type LineItemRepository interface {
	CountInRange(ctx context.Context, start, end time.Time) (int64, error)
	ListInRange(ctx context.Context, start, end time.Time) ([]model.LineItem, error)
	// CreateBatch 分批插入，单批失败不回滚已提交批次，返回成功插入的行数
	CreateBatch(ctx context.Context, items []model.LineItem, batchSize int) (int64, error)
}

type lineItemRepository struct {
	db *gorm.DB
}

// NewLineItemRepository 创建行项目仓库
func NewLineItemRepository(db *gorm.DB) LineItemRepository {
	return &lineItemRepository{db: db}
}

func (r *lineItemRepository) CountInRange(ctx context.Context, start, end time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.LineItem{}).
		Where("posted_date BETWEEN ? AND ?", start, end).
		Count(&count).Error
	return count, err
}

func (r *lineItemRepository) ListInRange(ctx context.Context, start, end time.Time) ([]model.LineItem, error) {
	var items []model.LineItem
	err := r.db.WithContext(ctx).
		Where("posted_date BETWEEN ? AND ?", start, end).
		Order("posted_date ASC, order_id ASC").
		Find(&items).Error
	return items, err
}

func (r *lineItemRepository) CreateBatch(ctx context.Context, items []model.LineItem, batchSize int) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}
	if batchSize <= 0 {
		batchSize = 200
	}

	var inserted int64
	var lastErr error
	failedBatches := 0
	totalBatches := 0

	// 逐批提交：某一批失败只记录，不影响已提交的批次（至少一次语义）
	for offset := 0; offset < len(items); offset += batchSize {
		totalBatches++
		limit := offset + batchSize
		if limit > len(items) {
			limit = len(items)
		}
		chunk := items[offset:limit]

		result := r.db.WithContext(ctx).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(&chunk)
		if result.Error != nil {
			log.Printf("[Repo] 行项目批次入库失败 (offset=%d, size=%d): %v", offset, len(chunk), result.Error)
			failedBatches++
			lastErr = result.Error
			continue
		}
		inserted += result.RowsAffected
	}

	// 全部批次失败才向上抛错
	if failedBatches == totalBatches && lastErr != nil {
		return inserted, lastErr
	}
	return inserted, nil
}

// ==================== RangeSummaryRepository 区间汇总仓库 ====================

// RangeSummaryRepository 区间汇总仓库接口
type RangeSummaryRepository interface {
	// GetExact 精确匹配 (start, end)，查不到返回 gorm.ErrRecordNotFound
	GetExact(ctx context.Context, start, end time.Time) (*model.RangeSummary, error)
	// Upsert 按 (start_date, end_date) 整行插入或覆盖
	Upsert(ctx context.Context, summary *model.RangeSummary) error
	// ListOverlapping 与 [start, end] 有交集的全部已存汇总
	ListOverlapping(ctx context.Context, start, end time.Time) ([]model.RangeSummary, error)
	List(ctx context.Context, limit int) ([]model.RangeSummary, error)
}

type rangeSummaryRepository struct {
	db *gorm.DB
}

// NewRangeSummaryRepository 创建区间汇总仓库
func NewRangeSummaryRepository(db *gorm.DB) RangeSummaryRepository {
	return &rangeSummaryRepository{db: db}
}

func (r *rangeSummaryRepository) GetExact(ctx context.Context, start, end time.Time) (*model.RangeSummary, error) {
	var summary model.RangeSummary
	err := r.db.WithContext(ctx).
		Where("start_date = ? AND end_date = ?", start, end).
		First(&summary).Error
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

func (r *rangeSummaryRepository) Upsert(ctx context.Context, summary *model.RangeSummary) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "start_date"}, {Name: "end_date"}},
			UpdateAll: true,
		}).
		Create(summary).Error
}

func (r *rangeSummaryRepository) ListOverlapping(ctx context.Context, start, end time.Time) ([]model.RangeSummary, error) {
	var summaries []model.RangeSummary
	err := r.db.WithContext(ctx).
		Where("start_date <= ? AND end_date >= ?", end, start).
		Order("start_date ASC").
		Find(&summaries).Error
	return summaries, err
}

func (r *rangeSummaryRepository) List(ctx context.Context, limit int) ([]model.RangeSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	var summaries []model.RangeSummary
	err := r.db.WithContext(ctx).
		Order("start_date DESC").
		Limit(limit).
		Find(&summaries).Error
	return summaries, err
}

// ==================== ProductMappingRepository 商品映射仓库 ====================

// ProductMappingRepository 商品映射仓库接口（本引擎只读）
type ProductMappingRepository interface {
	GetCodeMap(ctx context.Context) (map[string]string, error)
}

type productMappingRepository struct {
	db *gorm.DB
}

// NewProductMappingRepository 创建商品映射仓库
func NewProductMappingRepository(db *gorm.DB) ProductMappingRepository {
	return &productMappingRepository{db: db}
}

func (r *productMappingRepository) GetCodeMap(ctx context.Context) (map[string]string, error) {
	var mappings []model.ProductMapping
	if err := r.db.WithContext(ctx).Find(&mappings).Error; err != nil {
		return nil, err
	}

	codeMap := make(map[string]string, len(mappings))
	for _, m := range mappings {
		codeMap[m.ExternalSKU] = m.InternalCode
	}
	return codeMap, nil
}

// ==================== SyncAuditRepository 同步审计仓库 ====================

// SyncAuditRepository 同步审计仓库接口
type SyncAuditRepository interface {
	Create(ctx context.Context, audit *model.SyncAudit) error
	ListRecent(ctx context.Context, limit int) ([]model.SyncAudit, error)
}

type syncAuditRepository struct {
	db *gorm.DB
}

// NewSyncAuditRepository 创建同步审计仓库
func NewSyncAuditRepository(db *gorm.DB) SyncAuditRepository {
	return &syncAuditRepository{db: db}
}

func (r *syncAuditRepository) Create(ctx context.Context, audit *model.SyncAudit) error {
	return r.db.WithContext(ctx).Create(audit).Error
}

func (r *syncAuditRepository) ListRecent(ctx context.Context, limit int) ([]model.SyncAudit, error) {
	if limit <= 0 {
		limit = 20
	}
	var audits []model.SyncAudit
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&audits).Error
	return audits, err
}
