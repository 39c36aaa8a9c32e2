package service

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"amzfin_v1_202608/internal/model"
	"amzfin_v1_202608/internal/repository"
	"amzfin_v1_202608/pkg/config"
	"amzfin_v1_202608/pkg/spapi"
)

// ==================== 同步审计服务 ====================
// 记录每次真实拉取的原始报文，可选归档到 S3。
// 审计是旁路：任何失败只记日志，绝不影响同步主流程

// AuditService 同步审计服务接口
type AuditService interface {
	Record(ctx context.Context, start, end time.Time, groups []spapi.FinancialEvents, lineItemCount, insertedCount int)
}

// PayloadArchiver 原始报文归档接口
type PayloadArchiver interface {
	// Archive 归档压缩后的报文，返回可访问地址
	Archive(ctx context.Context, data []byte) (url string, err error)
}

type auditService struct {
	repo     repository.SyncAuditRepository
	archiver PayloadArchiver // 可为 nil（未开启导出）
}

// NewAuditService 创建审计服务
func NewAuditService(repo repository.SyncAuditRepository, archiver PayloadArchiver) AuditService {
	return &auditService{repo: repo, archiver: archiver}
}

func (s *auditService) Record(ctx context.Context, start, end time.Time, groups []spapi.FinancialEvents, lineItemCount, insertedCount int) {
	raw, err := json.Marshal(groups)
	if err != nil {
		log.Printf("[Audit] 报文序列化失败: %v", err)
		return
	}

	audit := &model.SyncAudit{
		StartDate:       start,
		EndDate:         end,
		EventGroupCount: len(groups),
		LineItemCount:   lineItemCount,
		InsertedCount:   insertedCount,
		EventTypes:      collectEventTypes(groups),
		RawPayload:      datatypes.JSON(raw),
	}

	// 1. 可选归档
	if s.archiver != nil {
		gz, err := gzipBytes(raw)
		if err != nil {
			log.Printf("[Audit] 报文压缩失败: %v", err)
		} else if url, err := s.archiver.Archive(ctx, gz); err != nil {
			log.Printf("[Audit] 报文归档失败: %v", err)
		} else {
			audit.ExportURL = url
		}
	}

	// 2. 落库
	if err := s.repo.Create(ctx, audit); err != nil {
		log.Printf("[Audit] 审计记录写入失败: %v", err)
	}
}

// collectEventTypes 本次报文里出现过的事件种类
func collectEventTypes(groups []spapi.FinancialEvents) []string {
	present := map[string]bool{}
	for _, g := range groups {
		if len(g.ShipmentEventList) > 0 {
			present["shipment"] = true
		}
		if len(g.RefundEventList) > 0 {
			present["refund"] = true
		}
		if len(g.ServiceFeeEventList) > 0 {
			present["service_fee"] = true
		}
		if len(g.ProductAdsPaymentEventList) > 0 {
			present["product_ads"] = true
		}
		if len(g.ChargebackEventList) > 0 {
			present["chargeback"] = true
		}
		if len(g.CouponPaymentEventList) > 0 {
			present["coupon"] = true
		}
		if len(g.AdjustmentEventList) > 0 {
			present["adjustment"] = true
		}
	}

	types := make([]string, 0, len(present))
	for _, t := range []string{"shipment", "refund", "service_fee", "product_ads", "chargeback", "coupon", "adjustment"} {
		if present[t] {
			types = append(types, t)
		}
	}
	return types
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(data); err != nil {
		return nil, err
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ==================== S3 归档实现 ====================

// S3Archiver S3 报文归档
type S3Archiver struct {
	client   *s3.Client
	bucket   string
	region   string
	basePath string
}

// NewS3Archiver 创建 S3 归档器
func NewS3Archiver(cfg *config.StorageConfig) (*S3Archiver, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("加载AWS配置失败: %v", err)
	}

	return &S3Archiver{
		client:   s3.NewFromConfig(awsCfg),
		bucket:   cfg.Bucket,
		region:   cfg.Region,
		basePath: cfg.BasePath,
	}, nil
}

func (s *S3Archiver) Archive(ctx context.Context, data []byte) (string, error) {
	key := s.generateKey()

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(s.bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(data),
		ContentType:     aws.String("application/json"),
		ContentEncoding: aws.String("gzip"),
	})
	if err != nil {
		return "", fmt.Errorf("上传S3失败: %v", err)
	}

	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key), nil
}

func (s *S3Archiver) generateKey() string {
	datePath := time.Now().Format("2006/01/02")
	filename := fmt.Sprintf("%s.json.gz", uuid.New().String())
	if s.basePath != "" {
		return fmt.Sprintf("%s/%s/%s", s.basePath, datePath, filename)
	}
	return fmt.Sprintf("%s/%s", datePath, filename)
}
