package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Roles accepted by Validate.
const (
	RoleWorker        = "worker"
	RoleAutomationAPI = "automation-api"
)

type Config struct {
	CoreDatabaseURL string
	MigrationsDir   string

	TemporalAddress       string
	TemporalTLSCert       string
	TemporalTLSKey        string
	TemporalTLSCACert     string
	TemporalTLSServerName string

	HTTPListenAddr string
	MetricsAddr    string
	LogLevel       string
	ServiceName    string
	// WorkerID tags log lines and metrics of one worker process.
	WorkerID string

	CycleCron        string
	CycleConcurrency int
	KPIRecalcCron    string
	LogCleanupCron   string
	LogRetentionDays int

	SMTPAddr     string
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	ReportS3Endpoint  string
	ReportS3Region    string
	ReportS3Bucket    string
	ReportS3AccessKey string
	ReportS3SecretKey string

	WebhookTimeout time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		CoreDatabaseURL:       getEnv("CORE_DATABASE_URL", ""),
		MigrationsDir:         getEnv("MIGRATIONS_DIR", "migrations"),
		TemporalAddress:       getEnv("TEMPORAL_ADDRESS", "localhost:7233"),
		TemporalTLSCert:       getEnv("TEMPORAL_TLS_CERT", ""),
		TemporalTLSKey:        getEnv("TEMPORAL_TLS_KEY", ""),
		TemporalTLSCACert:     getEnv("TEMPORAL_TLS_CA_CERT", ""),
		TemporalTLSServerName: getEnv("TEMPORAL_TLS_SERVER_NAME", ""),
		HTTPListenAddr:        getEnv("HTTP_LISTEN_ADDR", ":8090"),
		MetricsAddr:           getEnv("METRICS_ADDR", ""),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		ServiceName:           getEnv("SERVICE_NAME", ""),
		WorkerID:              getEnv("WORKER_ID", ""),
		CycleCron:             getEnv("CYCLE_CRON", "* * * * *"),
		KPIRecalcCron:         getEnv("KPI_RECALC_CRON", "15 0 * * *"),
		LogCleanupCron:        getEnv("LOG_CLEANUP_CRON", "30 3 * * *"),
		SMTPAddr:              getEnv("SMTP_ADDR", ""),
		SMTPUsername:          getEnv("SMTP_USERNAME", ""),
		SMTPPassword:          getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:              getEnv("SMTP_FROM", ""),
		ReportS3Endpoint:      getEnv("REPORT_S3_ENDPOINT", ""),
		ReportS3Region:        getEnv("REPORT_S3_REGION", "us-east-1"),
		ReportS3Bucket:        getEnv("REPORT_S3_BUCKET", ""),
		ReportS3AccessKey:     getEnv("REPORT_S3_ACCESS_KEY", ""),
		ReportS3SecretKey:     getEnv("REPORT_S3_SECRET_KEY", ""),
	}

	var err error
	if cfg.CycleConcurrency, err = getEnvInt("CYCLE_CONCURRENCY", 8); err != nil {
		return nil, err
	}
	if cfg.LogRetentionDays, err = getEnvInt("LOG_RETENTION_DAYS", 90); err != nil {
		return nil, err
	}
	if cfg.WebhookTimeout, err = getEnvDuration("WEBHOOK_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate reports every missing or malformed setting the given role needs.
func (c *Config) Validate(role string) error {
	var missing []string
	require := func(key, value string) {
		if value == "" {
			missing = append(missing, key)
		}
	}

	switch role {
	case RoleWorker:
		require("CORE_DATABASE_URL", c.CoreDatabaseURL)
		require("TEMPORAL_ADDRESS", c.TemporalAddress)
	case RoleAutomationAPI:
		require("CORE_DATABASE_URL", c.CoreDatabaseURL)
		require("TEMPORAL_ADDRESS", c.TemporalAddress)
		require("HTTP_LISTEN_ADDR", c.HTTPListenAddr)
	default:
		return fmt.Errorf("unknown role %q", role)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}

	if (c.TemporalTLSCert == "") != (c.TemporalTLSKey == "") {
		return fmt.Errorf("TEMPORAL_TLS_CERT and TEMPORAL_TLS_KEY must both be set")
	}

	if role == RoleWorker {
		for key, expr := range map[string]string{
			"CYCLE_CRON":       c.CycleCron,
			"KPI_RECALC_CRON":  c.KPIRecalcCron,
			"LOG_CLEANUP_CRON": c.LogCleanupCron,
		} {
			if _, err := cron.ParseStandard(expr); err != nil {
				return fmt.Errorf("%s: invalid cron expression %q: %w", key, expr, err)
			}
		}
		if c.CycleConcurrency < 1 {
			return fmt.Errorf("CYCLE_CONCURRENCY must be at least 1")
		}
		if c.LogRetentionDays < 1 {
			return fmt.Errorf("LOG_RETENTION_DAYS must be at least 1")
		}
		if c.SMTPAddr != "" && c.SMTPFrom == "" {
			return fmt.Errorf("SMTP_FROM is required when SMTP_ADDR is set")
		}
		if c.ReportS3Bucket != "" && (c.ReportS3AccessKey == "" || c.ReportS3SecretKey == "") {
			return fmt.Errorf("REPORT_S3_ACCESS_KEY and REPORT_S3_SECRET_KEY are required when REPORT_S3_BUCKET is set")
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
