// Package ledger 把每次运行的结果记录到 SQLite，供下次只重跑失败任务。
// 缓存是否命中仍以文件是否存在为准，这里只记录历史。
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/iabetor/stemgen/internal/job"
	"github.com/iabetor/stemgen/internal/logger"
)

// Ledger 是运行记录库。
type Ledger struct {
	db   *sql.DB
	path string
}

// Run 是一次阶段运行的摘要。
type Run struct {
	ID        string
	Phase     string
	Provider  string
	StartedAt time.Time
	Duration  time.Duration
	Skipped   int
	Succeeded int
	Failed    int
}

// Failure 是一条失败记录。
type Failure struct {
	RunID       string
	Destination string
	Language    string
	Text        string
	Attempts    int
	Reason      string
}

// Open 打开或创建记录库，并执行迁移。
func Open(path string) (*Ledger, error) {
	if path == "" {
		path = filepath.Join(".stemgen", "ledger.db")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("创建记录库目录失败: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("打开记录库失败: %w", err)
	}
	// modernc sqlite 单连接写入，避免 SQLITE_BUSY
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("执行 %s 失败: %w", pragma, err)
		}
	}

	l := &Ledger{db: db, path: path}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debugf("[ledger] 记录库已打开: %s", path)
	return l, nil
}

// Path 返回数据库文件路径。
func (l *Ledger) Path() string { return l.path }

func (l *Ledger) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			phase TEXT NOT NULL,
			provider TEXT NOT NULL DEFAULT '',
			started_at INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			skipped INTEGER NOT NULL DEFAULT 0,
			succeeded INTEGER NOT NULL DEFAULT 0,
			failed INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS failures (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			destination TEXT NOT NULL,
			language TEXT NOT NULL DEFAULT '',
			text TEXT NOT NULL DEFAULT '',
			attempts INTEGER NOT NULL DEFAULT 0,
			reason TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_phase_started ON runs(phase, started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_failures_run ON failures(run_id)`,
	}
	for _, m := range migrations {
		if _, err := l.db.Exec(m); err != nil {
			return fmt.Errorf("记录库迁移失败: %w", err)
		}
	}
	return nil
}

// Record 在一个事务里写入运行摘要和全部失败任务，返回运行 ID。
func (l *Ledger) Record(ctx context.Context, run Run, outcomes []job.Outcome) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	run.Skipped, run.Succeeded, run.Failed = 0, 0, 0
	for _, o := range outcomes {
		switch o.Status {
		case job.StatusSkipped:
			run.Skipped++
		case job.StatusSucceeded:
			run.Succeeded++
		case job.StatusFailed:
			run.Failed++
		}
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("开启事务失败: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, phase, provider, started_at, duration_ms, skipped, succeeded, failed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Phase, run.Provider, run.StartedAt.UnixNano(), run.Duration.Milliseconds(),
		run.Skipped, run.Succeeded, run.Failed)
	if err != nil {
		return "", fmt.Errorf("写入运行记录失败: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO failures (run_id, destination, language, text, attempts, reason) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("准备失败记录语句失败: %w", err)
	}
	defer stmt.Close()

	for _, o := range outcomes {
		if o.Status != job.StatusFailed {
			continue
		}
		if _, err := stmt.ExecContext(ctx, run.ID, o.Job.Destination(), o.Job.Language(), o.Job.Text(), o.Attempts, o.Reason); err != nil {
			return "", fmt.Errorf("写入失败记录失败: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("提交运行记录失败: %w", err)
	}

	logger.Debugf("[ledger] 已记录运行 %s (%s): 跳过 %d, 成功 %d, 失败 %d",
		run.ID, run.Phase, run.Skipped, run.Succeeded, run.Failed)
	return run.ID, nil
}

// LastRun 返回某阶段最近一次运行。没有记录时返回 nil。
func (l *Ledger) LastRun(ctx context.Context, phase string) (*Run, error) {
	var (
		r       Run
		started int64
		ms      int64
	)
	err := l.db.QueryRowContext(ctx,
		`SELECT id, phase, provider, started_at, duration_ms, skipped, succeeded, failed
		 FROM runs WHERE phase = ? ORDER BY started_at DESC, rowid DESC LIMIT 1`, phase).
		Scan(&r.ID, &r.Phase, &r.Provider, &started, &ms, &r.Skipped, &r.Succeeded, &r.Failed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询最近运行失败: %w", err)
	}
	r.StartedAt = time.Unix(0, started)
	r.Duration = time.Duration(ms) * time.Millisecond
	return &r, nil
}

// LastFailures 返回某阶段最近一次运行的失败任务。
func (l *Ledger) LastFailures(ctx context.Context, phase string) ([]Failure, error) {
	run, err := l.LastRun(ctx, phase)
	if err != nil || run == nil {
		return nil, err
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT run_id, destination, language, text, attempts, reason
		 FROM failures WHERE run_id = ? ORDER BY id`, run.ID)
	if err != nil {
		return nil, fmt.Errorf("查询失败记录失败: %w", err)
	}
	defer rows.Close()

	var out []Failure
	for rows.Next() {
		var f Failure
		if err := rows.Scan(&f.RunID, &f.Destination, &f.Language, &f.Text, &f.Attempts, &f.Reason); err != nil {
			return nil, fmt.Errorf("读取失败记录失败: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Close 关闭数据库连接。
func (l *Ledger) Close() error {
	if l.db != nil {
		return l.db.Close()
	}
	return nil
}
