package task

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	xerrors "AgentPay/internal/errors"
	"github.com/go-sql-driver/mysql"
)

// MySQLStore 使用 MySQL 记录任务状态。
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore 创建一个新的 MySQLStore。
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "MySQL DSN 不能为空")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 MySQL 失败")
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(10 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "无法连接到 MySQL")
	}

	store := &MySQLStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *MySQLStore) initSchema() error {
	const schema = `CREATE TABLE IF NOT EXISTS task_records (
        id VARCHAR(64) PRIMARY KEY,
        theme TEXT NOT NULL,
        budget BIGINT NOT NULL DEFAULT 0,
        voice_id VARCHAR(255) DEFAULT '',
        status VARCHAR(32) NOT NULL,
        attempts INT NOT NULL DEFAULT 0,
        report MEDIUMTEXT,
        fail_code VARCHAR(64) DEFAULT '',
        fail_reason TEXT,
        created_at BIGINT NOT NULL,
        updated_at BIGINT NOT NULL,
        INDEX idx_task_status (status),
        INDEX idx_task_updated (updated_at)
)`

	if _, err := s.db.Exec(schema); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化 task_records 表失败")
	}
	return nil
}

// Create 插入新的任务记录。
func (s *MySQLStore) Create(ctx context.Context, t *Task) error {
	if t == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "task 不能为空")
	}
	if strings.TrimSpace(t.ID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "任务 ID 不能为空")
	}

	now := time.Now().Unix()
	t.CreatedAt = now
	t.UpdatedAt = now

	const stmt = `INSERT INTO task_records
        (id, theme, budget, voice_id, status, attempts, report, fail_code, fail_reason, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, '', '', '', ?, ?)`

	_, err := s.db.ExecContext(ctx, stmt,
		t.ID,
		t.Theme,
		t.Budget,
		t.VoiceID,
		t.Status,
		t.Attempts,
		t.CreatedAt,
		t.UpdatedAt,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if stdErrors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return ErrTaskConflict
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入任务失败")
	}
	return nil
}

// Get 查询指定任务。
func (s *MySQLStore) Get(ctx context.Context, id string) (*Task, error) {
	const stmt = `SELECT id, theme, budget, voice_id, status, attempts, report, fail_code, fail_reason, created_at, updated_at
        FROM task_records WHERE id = ?`

	row := s.db.QueryRowContext(ctx, stmt, id)

	var t Task
	var report, failReason sql.NullString
	if err := row.Scan(
		&t.ID,
		&t.Theme,
		&t.Budget,
		&t.VoiceID,
		&t.Status,
		&t.Attempts,
		&report,
		&t.FailCode,
		&failReason,
		&t.CreatedAt,
		&t.UpdatedAt,
	); err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询任务失败")
	}
	t.Report = report.String
	t.FailReason = failReason.String
	return &t, nil
}

// Claim 将任务标记为运行中并返回最新状态。
func (s *MySQLStore) Claim(ctx context.Context, id string) (*Task, error) {
	const updateStmt = `UPDATE task_records SET status = ?, attempts = attempts + 1, updated_at = ?, fail_code = '', fail_reason = ''
        WHERE id = ? AND status = ?`

	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx, updateStmt,
		StatusRunning,
		now,
		id,
		StatusPending,
	)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新任务状态失败")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取影响行数失败")
	}
	if affected == 0 {
		t, getErr := s.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		if t.Status.Terminal() {
			return t, ErrTaskFinished
		}
		return t, ErrTaskConflict
	}
	return s.Get(ctx, id)
}

// MarkCompleted 将任务标记为完成并写入报告。
func (s *MySQLStore) MarkCompleted(ctx context.Context, id string, report string) error {
	const stmt = `UPDATE task_records SET status = ?, report = ?, updated_at = ?, fail_code = '', fail_reason = '' WHERE id = ?`

	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx, stmt, StatusCompleted, report, now, id)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "标记任务完成失败")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// MarkFailed 将任务标记为失败。
func (s *MySQLStore) MarkFailed(ctx context.Context, id string, code string, reason string) error {
	const stmt = `UPDATE task_records SET status = ?, fail_code = ?, fail_reason = ?, updated_at = ? WHERE id = ?`

	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx, stmt, StatusFailed, code, reason, now, id)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "标记任务失败失败")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// List 返回最近的任务。
func (s *MySQLStore) List(ctx context.Context, opts ListOptions) ([]*Task, error) {
	opts.applyDefaults()

	query := `SELECT id, theme, budget, voice_id, status, attempts, report, fail_code, fail_reason, created_at, updated_at FROM task_records`

	clause, filterArgs := buildFilterClause(opts)
	if clause != "" {
		query += " WHERE " + clause
	}

	order := " ORDER BY updated_at DESC, id DESC"
	if opts.Order == SortByUpdatedAsc {
		order = " ORDER BY updated_at ASC, id ASC"
	}
	query += order + " LIMIT ? OFFSET ?"

	args := append(filterArgs, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询任务列表失败")
	}
	defer rows.Close()

	tasks := make([]*Task, 0, opts.Limit)
	for rows.Next() {
		var t Task
		var report, failReason sql.NullString
		if err := rows.Scan(
			&t.ID,
			&t.Theme,
			&t.Budget,
			&t.VoiceID,
			&t.Status,
			&t.Attempts,
			&report,
			&t.FailCode,
			&failReason,
			&t.CreatedAt,
			&t.UpdatedAt,
		); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析任务记录失败")
		}
		t.Report = report.String
		t.FailReason = failReason.String
		taskCopy := t
		tasks = append(tasks, &taskCopy)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历任务失败")
	}
	return tasks, nil
}

// Stats 返回各状态的任务数量。
func (s *MySQLStore) Stats(ctx context.Context) (*Stats, error) {
	const query = `SELECT
        COUNT(*) AS total,
        SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS pending,
        SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS running,
        SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS completed,
        SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS failed
        FROM task_records`

	row := s.db.QueryRowContext(ctx, query,
		string(StatusPending), string(StatusRunning), string(StatusCompleted), string(StatusFailed))

	var stats Stats
	var pending, running, completed, failed sql.NullInt64
	if err := row.Scan(&stats.Total, &pending, &running, &completed, &failed); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询任务统计失败")
	}
	stats.Pending = pending.Int64
	stats.Running = running.Int64
	stats.Completed = completed.Int64
	stats.Failed = failed.Int64
	return &stats, nil
}

// Close 关闭底层数据库连接。
func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func buildFilterClause(opts ListOptions) (string, []any) {
	conditions := make([]string, 0, 4)
	args := make([]any, 0, 6)

	if len(opts.Statuses) > 0 {
		placeholders := make([]string, 0, len(opts.Statuses))
		for range opts.Statuses {
			placeholders = append(placeholders, "?")
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
		for _, status := range opts.Statuses {
			args = append(args, status)
		}
	}
	if opts.HasReport != nil {
		if *opts.HasReport {
			conditions = append(conditions, "report <> ''")
		} else {
			conditions = append(conditions, "(report IS NULL OR report = '')")
		}
	}
	if opts.Query != "" {
		pattern := "%" + opts.Query + "%"
		conditions = append(conditions, "(id LIKE ? OR theme LIKE ? OR report LIKE ? OR fail_reason LIKE ?)")
		args = append(args, pattern, pattern, pattern, pattern)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return strings.Join(conditions, " AND "), args
}

var _ Store = (*MySQLStore)(nil)
