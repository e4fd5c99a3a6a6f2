// Package storage 用 SQLite 记录每次运行、场景结果与网络交换。
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"storyharness/internal/config"
	"storyharness/internal/ctxkeys"
	logger2 "storyharness/internal/logger"
	"storyharness/internal/suite"
	"storyharness/pkg/model"
)

// ErrRunNotFound 运行记录不存在
var ErrRunNotFound = errors.New("run not found")

// 场景状态
const (
	StatusPassed  = "passed"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Run 一次套件运行
type Run struct {
	ID         string `gorm:"primaryKey;size:64"`
	Mode       string `gorm:"size:16"`
	StartedAt  time.Time
	FinishedAt *time.Time
	Passed     int
	Failed     int
	Skipped    int
}

// ScenarioResult 单个场景的结果
type ScenarioResult struct {
	ID         uint   `gorm:"primaryKey"`
	RunID      string `gorm:"index;size:64"`
	Name       string
	Status     string `gorm:"size:16"`
	SkipReason string
	Errors     string
	DurationMS int64
}

// ExchangeRecord 一次已完成的网络交换
type ExchangeRecord struct {
	ID         uint   `gorm:"primaryKey"`
	RunID      string `gorm:"index;size:64"`
	Seq        int64
	Label      string `gorm:"index"`
	Method     string `gorm:"size:16"`
	URL        string
	StatusCode int
	Outcome    string `gorm:"size:16"`
	Error      string
	BodySize   int
	StartedAt  time.Time
	FinishedAt time.Time
}

// Journal 运行日志库
type Journal struct {
	db  *gorm.DB
	log logger2.Logger
}

// Open 打开（必要时创建）SQLite 数据库并迁移表结构
func Open(cfg config.SqliteConfig, l logger2.Logger) (*Journal, error) {
	if l == nil {
		l = logger2.NewNop()
	}
	db, err := gorm.Open(sqlite.Open(cfg.Dsn), &gorm.Config{
		Logger:         NewGormLogger(l),
		NamingStrategy: schema.NamingStrategy{TablePrefix: cfg.Prefix},
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", cfg.Dsn, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// 拦截回调可能并发写入
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Run{}, &ScenarioResult{}, &ExchangeRecord{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Journal{db: db, log: l}, nil
}

// Close 关闭数据库
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// StartRun 写入运行开始记录
func (j *Journal) StartRun(ctx context.Context, id model.SessionID, mode string) error {
	run := Run{ID: string(id), Mode: mode, StartedAt: time.Now()}
	return j.db.WithContext(ctxkeys.WithTraceID(ctx, string(id))).Create(&run).Error
}

// FinishRun 写入场景结果并更新运行汇总
func (j *Journal) FinishRun(ctx context.Context, id model.SessionID, res suite.Results) error {
	ctx = ctxkeys.WithTraceID(ctx, string(id))
	passed, failed, skipped := res.Counts()
	now := time.Now()

	return j.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{
			"finished_at": now,
			"passed":      passed,
			"failed":      failed,
			"skipped":     skipped,
		}
		r := tx.Model(&Run{}).Where("id = ?", string(id)).Updates(updates)
		if r.Error != nil {
			return r.Error
		}
		if r.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		if len(res.Tests) == 0 {
			return nil
		}
		rows := make([]ScenarioResult, 0, len(res.Tests))
		for _, t := range res.Tests {
			rows = append(rows, scenarioRow(string(id), t))
		}
		return tx.Create(&rows).Error
	})
}

func scenarioRow(runID string, t suite.TestResult) ScenarioResult {
	row := ScenarioResult{
		RunID:      runID,
		Name:       t.TestID.String(),
		SkipReason: t.SkipReason,
		DurationMS: t.Duration.Milliseconds(),
	}
	switch {
	case t.Skipped:
		row.Status = StatusSkipped
	case t.Failed():
		row.Status = StatusFailed
	default:
		row.Status = StatusPassed
	}
	msgs := make([]string, 0, len(t.Errors))
	for _, err := range t.Errors {
		msgs = append(msgs, err.Error())
	}
	row.Errors = strings.Join(msgs, "\n")
	return row
}

// Recorder 返回把交换写入指定运行的记录器
func (j *Journal) Recorder(id model.SessionID) *ExchangeRecorder {
	return &ExchangeRecorder{journal: j, runID: string(id)}
}

// ExchangeRecorder 实现 handler.Recorder
type ExchangeRecorder struct {
	journal *Journal
	runID   string
}

// RecordExchange 写入一次交换；失败只记日志，不影响场景
func (r *ExchangeRecorder) RecordExchange(ex model.Exchange) {
	rec := ExchangeRecord{
		RunID:      r.runID,
		Seq:        ex.Seq,
		Label:      string(ex.Label),
		Method:     ex.Method,
		URL:        ex.URL,
		StatusCode: ex.StatusCode,
		Outcome:    string(ex.Outcome),
		Error:      ex.Error,
		BodySize:   len(ex.Body),
		StartedAt:  ex.Started,
		FinishedAt: ex.Finished,
	}
	ctx := ctxkeys.WithTraceID(context.Background(), r.runID)
	if err := r.journal.db.WithContext(ctx).Create(&rec).Error; err != nil {
		r.journal.log.Err(err, "写入交换记录失败", "runId", r.runID, "url", ex.URL)
	}
}

// Runs 最近的运行，按开始时间倒序
func (j *Journal) Runs(ctx context.Context, limit int) ([]Run, error) {
	var runs []Run
	q := j.db.WithContext(ctx).Order("started_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&runs).Error
	return runs, err
}

// Run 单个运行
func (j *Journal) Run(ctx context.Context, id model.SessionID) (Run, error) {
	var run Run
	err := j.db.WithContext(ctx).First(&run, "id = ?", string(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return run, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

// Scenarios 运行中的场景结果，按执行顺序
func (j *Journal) Scenarios(ctx context.Context, id model.SessionID) ([]ScenarioResult, error) {
	var rows []ScenarioResult
	err := j.db.WithContext(ctx).Where("run_id = ?", string(id)).Order("id").Find(&rows).Error
	return rows, err
}

// Exchanges 运行中的交换，按写入顺序
func (j *Journal) Exchanges(ctx context.Context, id model.SessionID) ([]ExchangeRecord, error) {
	var rows []ExchangeRecord
	err := j.db.WithContext(ctx).Where("run_id = ?", string(id)).Order("id").Find(&rows).Error
	return rows, err
}
