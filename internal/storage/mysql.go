package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"cv-match-go/internal/config"
	"cv-match-go/internal/constants"
	"cv-match-go/internal/storage/models"
	"cv-match-go/internal/tracing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var mysqlTracer = otel.Tracer("cv-match-go/storage/mysql")

// GormTracingPlugin 向GORM回调注入OpenTelemetry追踪
type GormTracingPlugin struct {
	tracer trace.Tracer
	dbName string
}

// Name 返回插件名称
func (p *GormTracingPlugin) Name() string {
	return "GormOpenTelemetryPlugin"
}

// Initialize 注册GORM回调以启用追踪
func (p *GormTracingPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()

	type hook struct {
		kind     string
		register func() error
	}
	hooks := []hook{
		{"CREATE", func() error {
			if err := cb.Create().Before("gorm:create").Register("otel:before_create", p.before("CREATE")); err != nil {
				return err
			}
			return cb.Create().After("gorm:create").Register("otel:after_create", p.after())
		}},
		{"SELECT", func() error {
			if err := cb.Query().Before("gorm:query").Register("otel:before_query", p.before("SELECT")); err != nil {
				return err
			}
			return cb.Query().After("gorm:query").Register("otel:after_query", p.after())
		}},
		{"UPDATE", func() error {
			if err := cb.Update().Before("gorm:update").Register("otel:before_update", p.before("UPDATE")); err != nil {
				return err
			}
			return cb.Update().After("gorm:update").Register("otel:after_update", p.after())
		}},
		{"DELETE", func() error {
			if err := cb.Delete().Before("gorm:delete").Register("otel:before_delete", p.before("DELETE")); err != nil {
				return err
			}
			return cb.Delete().After("gorm:delete").Register("otel:after_delete", p.after())
		}},
		{"RAW", func() error {
			if err := cb.Raw().Before("gorm:raw").Register("otel:before_raw", p.before("RAW")); err != nil {
				return err
			}
			return cb.Raw().After("gorm:raw").Register("otel:after_raw", p.after())
		}},
	}
	for _, h := range hooks {
		if err := h.register(); err != nil {
			return fmt.Errorf("注册 %s 追踪回调失败: %w", h.kind, err)
		}
	}
	return nil
}

type gormSpanKey struct{}

func (p *GormTracingPlugin) before(operation string) func(db *gorm.DB) {
	return func(db *gorm.DB) {
		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}

		tableName := db.Statement.Table
		if tableName == "" {
			tableName = "unknown"
		}

		newCtx, span := p.tracer.Start(ctx, fmt.Sprintf("%s %s", operation, tableName),
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				semconv.DBSystemMySQL,
				attribute.String("db.name", p.dbName),
				attribute.String("db.operation", operation),
				attribute.String("db.sql.table", tableName),
			),
		)
		db.Statement.Context = context.WithValue(newCtx, gormSpanKey{}, span)
	}
}

func (p *GormTracingPlugin) after() func(db *gorm.DB) {
	return func(db *gorm.DB) {
		span, ok := db.Statement.Context.Value(gormSpanKey{}).(trace.Span)
		if !ok {
			return
		}
		defer span.End()

		span.SetAttributes(
			attribute.Int64("db.rows_affected", db.Statement.RowsAffected),
			attribute.String("db.statement", tracing.SafeSQL(db.Statement.SQL.String())),
		)

		if db.Error != nil {
			if errors.Is(db.Error, gorm.ErrRecordNotFound) {
				// 未找到记录是业务正常路径，不算错误
				span.SetAttributes(attribute.String("error.type", "record_not_found"))
				span.SetStatus(codes.Ok, "record not found")
			} else {
				tracing.RecordError(span, db.Error, tracing.ErrorTypeDB)
			}
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}
}

// NewGormTracingPlugin 创建GORM追踪插件
func NewGormTracingPlugin(dbName string) *GormTracingPlugin {
	return &GormTracingPlugin{
		tracer: mysqlTracer,
		dbName: dbName,
	}
}

// MySQL 提供关系数据库功能
type MySQL struct {
	db  *gorm.DB
	cfg *config.MySQLConfig
}

// NewMySQL 创建MySQL客户端并自动迁移表结构
func NewMySQL(cfg *config.MySQLConfig) (*MySQL, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MySQL配置不能为空")
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=%ds&readTimeout=%ds&writeTimeout=%ds",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database,
		cfg.ConnectTimeoutSeconds, cfg.ReadTimeoutSeconds, cfg.WriteTimeoutSeconds)

	var logLevel logger.LogLevel
	switch cfg.LogLevel {
	case 1:
		logLevel = logger.Silent
	case 2:
		logLevel = logger.Error
	case 3:
		logLevel = logger.Warn
	default:
		logLevel = logger.Info
	}

	gormConfig := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   logger.Default.LogMode(logLevel),
		PrepareStmt:                              true,
		NowFunc: func() time.Time {
			return time.Now().Local()
		},
	}

	db, err := gorm.Open(mysql.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("连接MySQL失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTimeMinutes) * time.Minute)

	m := &MySQL{db: db, cfg: cfg}

	if err := db.Use(NewGormTracingPlugin(cfg.Database)); err != nil {
		return nil, fmt.Errorf("注册追踪插件失败: %w", err)
	}

	if err := m.autoMigrateSchema(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("自动迁移数据库结构失败: %w", err)
	}

	log.Println("成功连接到MySQL并自动迁移数据库结构")
	return m, nil
}

// autoMigrateSchema 使用GORM自动迁移数据库表结构，迁移期间静默SQL日志
func (m *MySQL) autoMigrateSchema() error {
	silentLogger := logger.New(
		log.New(log.Writer(), "", log.LstdFlags),
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Silent,
			IgnoreRecordNotFoundError: true,
		},
	)
	silentDB := m.db.Session(&gorm.Session{Logger: silentLogger})

	if err := silentDB.AutoMigrate(
		&models.Job{},
		&models.ResumeSubmission{},
		&models.JobResumeMatch{},
	); err != nil {
		return fmt.Errorf("GORM自动迁移失败: %w", err)
	}
	return nil
}

// DB 返回GORM数据库连接实例
func (m *MySQL) DB() *gorm.DB {
	return m.db
}

// Close 关闭数据库连接
func (m *MySQL) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	return sqlDB.Close()
}

// SaveJob 创建或更新岗位记录
func (m *MySQL) SaveJob(ctx context.Context, job *models.Job) error {
	return m.db.WithContext(ctx).Save(job).Error
}

// GetJobByID 通过 JobID 获取岗位记录
func (m *MySQL) GetJobByID(ctx context.Context, jobID string) (*models.Job, error) {
	var job models.Job
	if err := m.db.WithContext(ctx).Where("job_id = ?", jobID).First(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// CreateResumeSubmission 创建简历提交记录，主键冲突时幂等跳过
func (m *MySQL) CreateResumeSubmission(ctx context.Context, submission *models.ResumeSubmission) error {
	return m.db.WithContext(ctx).Clauses(
		clause.OnConflict{
			Columns:   []clause.Column{{Name: "submission_uuid"}},
			DoUpdates: clause.AssignmentColumns([]string{"submission_uuid"}),
		}).Create(submission).Error
}

// GetResumeSubmission 通过 SubmissionUUID 获取简历提交记录
func (m *MySQL) GetResumeSubmission(ctx context.Context, submissionUUID string) (*models.ResumeSubmission, error) {
	var submission models.ResumeSubmission
	if err := m.db.WithContext(ctx).Where("submission_uuid = ?", submissionUUID).First(&submission).Error; err != nil {
		return nil, err
	}
	return &submission, nil
}

// UpdateResumeProcessingStatus 更新简历处理状态
func (m *MySQL) UpdateResumeProcessingStatus(ctx context.Context, submissionUUID string, status string) error {
	return m.db.WithContext(ctx).Model(&models.ResumeSubmission{}).
		Where("submission_uuid = ?", submissionUUID).
		Update("processing_status", status).Error
}

// UpdateResumeSubmissionFields 更新简历提交记录的多个字段
func (m *MySQL) UpdateResumeSubmissionFields(ctx context.Context, submissionUUID string, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	return m.db.WithContext(ctx).Model(&models.ResumeSubmission{}).
		Where("submission_uuid = ?", submissionUUID).
		Updates(updates).Error
}

// SaveMatchResult 保存匹配结果
// (submission_uuid, job_id) 唯一，重复匹配覆盖全部分数与叙述字段
func (m *MySQL) SaveMatchResult(ctx context.Context, match *models.JobResumeMatch) error {
	ctx, span := mysqlTracer.Start(ctx, "MySQL.SaveMatchResult",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.DBSystemMySQL,
			attribute.String("db.sql.table", "job_resume_matches"),
			attribute.String("match.job_id", match.JobID),
			attribute.String("match.submission_uuid", match.SubmissionUUID),
			attribute.Float64("match.score", match.MatchScore),
		))
	defer span.End()

	err := m.db.WithContext(ctx).Clauses(
		clause.OnConflict{
			Columns: []clause.Column{{Name: "submission_uuid"}, {Name: "job_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"match_score", "skill_match_score", "experience_match_score",
				"matched_skills_json", "missing_skills_json", "experience_analysis_json",
				"narrative", "embedding_model_version", "evaluated_at",
			}),
		}).Create(match).Error
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// GetMatchResult 获取指定岗位与简历的匹配结果
func (m *MySQL) GetMatchResult(ctx context.Context, jobID, submissionUUID string) (*models.JobResumeMatch, error) {
	var match models.JobResumeMatch
	if err := m.db.WithContext(ctx).
		Where("job_id = ? AND submission_uuid = ?", jobID, submissionUUID).
		First(&match).Error; err != nil {
		return nil, err
	}
	return &match, nil
}

// ListMatchesByJob 列出岗位下的全部匹配结果，按综合分降序
func (m *MySQL) ListMatchesByJob(ctx context.Context, jobID string, limit int) ([]models.JobResumeMatch, error) {
	var matches []models.JobResumeMatch
	query := m.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("match_score DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&matches).Error; err != nil {
		return nil, err
	}
	return matches, nil
}

// MatchesBySubmissionUUIDs 取岗位下指定SubmissionUUID集合的匹配记录
// 返回顺序与传入的uuids一致，库里已不存在的条目跳过
func (m *MySQL) MatchesBySubmissionUUIDs(ctx context.Context, jobID string, uuids []string) ([]models.JobResumeMatch, error) {
	if len(uuids) == 0 {
		return nil, nil
	}
	var matches []models.JobResumeMatch
	if err := m.db.WithContext(ctx).
		Where("job_id = ? AND submission_uuid IN ?", jobID, uuids).
		Find(&matches).Error; err != nil {
		return nil, err
	}
	return orderMatchesByUUID(matches, uuids), nil
}

// orderMatchesByUUID 按uuids给定的顺序重排匹配记录，IN查询不保证返回顺序
func orderMatchesByUUID(matches []models.JobResumeMatch, uuids []string) []models.JobResumeMatch {
	byUUID := make(map[string]int, len(matches))
	for i := range matches {
		byUUID[matches[i].SubmissionUUID] = i
	}
	ordered := make([]models.JobResumeMatch, 0, len(uuids))
	for _, id := range uuids {
		if i, ok := byUUID[id]; ok {
			ordered = append(ordered, matches[i])
		}
	}
	return ordered
}

// ShortlistByJob 入围筛选: 综合分不低于 minScore 的候选人，按综合分降序
// minScore 为负时使用默认入围线
func (m *MySQL) ShortlistByJob(ctx context.Context, jobID string, minScore float64) ([]models.JobResumeMatch, error) {
	if minScore < 0 {
		minScore = constants.DefaultShortlistMinScore
	}

	ctx, span := mysqlTracer.Start(ctx, "MySQL.ShortlistByJob",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("match.job_id", jobID),
			attribute.Float64("match.min_score", minScore),
		))
	defer span.End()

	var matches []models.JobResumeMatch
	err := m.db.WithContext(ctx).
		Where("job_id = ? AND match_score >= ?", jobID, minScore).
		Order("match_score DESC").
		Find(&matches).Error
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return nil, err
	}
	span.SetAttributes(attribute.Int("match.shortlist_size", len(matches)))
	span.SetStatus(codes.Ok, "")
	return matches, nil
}
