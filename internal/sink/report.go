package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/edvin/automation/internal/core"
	"github.com/edvin/automation/internal/model"
)

// Report types.
const (
	ReportAutomationSummary = "automation_summary"
	ReportKPIAlerts         = "kpi_alerts"
)

// ReportSource reads the figures a report is built from.
type ReportSource interface {
	Stats(ctx context.Context, tenantID string, since time.Time) (*core.AutomationStats, error)
	ListAlertsSince(ctx context.Context, tenantID string, since time.Time) ([]model.KPIAlert, error)
}

// ReportStore stores rendered reports under a key.
type ReportStore interface {
	Put(ctx context.Context, key string, body []byte) error
}

// Report is the stored JSON document.
type Report struct {
	Type        string    `json:"report_type"`
	TenantID    string    `json:"tenant_id"`
	GeneratedAt time.Time `json:"generated_at"`
	PeriodStart time.Time `json:"period_start"`
	PeriodDays  int       `json:"period_days"`
	Data        any       `json:"data"`
}

// Reports builds tenant reports and hands them to a ReportStore.
type Reports struct {
	source ReportSource
	store  ReportStore
}

func NewReports(source ReportSource, store ReportStore) *Reports {
	return &Reports{source: source, store: store}
}

// ReportKey is where a report generated at the given time is stored.
func ReportKey(tenantID, reportType string, at time.Time) string {
	return fmt.Sprintf("reports/%s/%s/%s.json", tenantID, reportType, at.UTC().Format("20060102T150405Z"))
}

// Generate builds the report and returns its storage key.
func (r *Reports) Generate(ctx context.Context, tenantID, reportType string, periodDays int, now time.Time) (string, error) {
	since := now.AddDate(0, 0, -periodDays)
	rep := Report{
		Type:        reportType,
		TenantID:    tenantID,
		GeneratedAt: now,
		PeriodStart: since,
		PeriodDays:  periodDays,
	}

	switch reportType {
	case ReportAutomationSummary:
		stats, err := r.source.Stats(ctx, tenantID, since)
		if err != nil {
			return "", fmt.Errorf("build %s report: %w", reportType, err)
		}
		rep.Data = stats
	case ReportKPIAlerts:
		alerts, err := r.source.ListAlertsSince(ctx, tenantID, since)
		if err != nil {
			return "", fmt.Errorf("build %s report: %w", reportType, err)
		}
		if alerts == nil {
			alerts = []model.KPIAlert{}
		}
		rep.Data = alerts
	default:
		return "", fmt.Errorf("unknown report type %q", reportType)
	}

	body, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	key := ReportKey(tenantID, reportType, now)
	if err := r.store.Put(ctx, key, body); err != nil {
		return "", err
	}
	return key, nil
}

// S3Config locates the report bucket. Endpoint may point at any
// S3-compatible store; path-style addressing is used.
type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
}

// S3ReportStore writes reports to an S3 bucket.
type S3ReportStore struct {
	client *s3.Client
	bucket string
}

func NewS3ReportStore(cfg S3Config) *S3ReportStore {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := s3.Options{
		Region:       region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return &S3ReportStore{client: s3.New(opts), bucket: cfg.Bucket}
}

func (s *S3ReportStore) Put(ctx context.Context, key string, body []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}
