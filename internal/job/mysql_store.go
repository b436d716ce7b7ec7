package job

import (
	"context"
	"database/sql"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	xerrors "TravelPlanner/internal/errors"
	"TravelPlanner/internal/travel"
)

// MySQL 错误码 1062：唯一键冲突。
const mysqlErrDuplicateEntry = 1062

// jobColumns 是所有查询共用的列清单，顺序必须与 scanJob 一致。
const jobColumns = "id, query, mode, status, attempts, max_retries, last_error, error_code, result_json, created_at, updated_at"

// MySQLConfig 描述连接池参数，零值字段使用默认值。
type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func (cfg *MySQLConfig) applyPoolDefaults() {
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 20
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 10
	}
	if cfg.ConnMaxLifetime <= 0 {
		cfg.ConnMaxLifetime = 10 * time.Minute
	}
}

// MySQLStore 把作业持久化到 MySQL 的 search_jobs 表。
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore 建立连接池、验证连通性并确保表结构存在。
func NewMySQLStore(cfg MySQLConfig) (*MySQLStore, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "MySQL DSN 不能为空")
	}
	cfg.applyPoolDefaults()

	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 MySQL 失败")
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "无法连接到 MySQL")
	}

	store := &MySQLStore{db: db}
	if err := store.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *MySQLStore) ensureSchema() error {
	const schema = `CREATE TABLE IF NOT EXISTS search_jobs (
        id VARCHAR(64) PRIMARY KEY,
        query TEXT NOT NULL,
        mode VARCHAR(8) NOT NULL DEFAULT 'live',
        status VARCHAR(32) NOT NULL,
        attempts INT NOT NULL DEFAULT 0,
        max_retries INT NOT NULL DEFAULT 3,
        last_error TEXT,
        error_code VARCHAR(64) DEFAULT '',
        result_json TEXT,
        created_at BIGINT NOT NULL,
        updated_at BIGINT NOT NULL,
        INDEX idx_job_status (status),
        INDEX idx_job_updated (updated_at)
)`
	if _, err := s.db.Exec(schema); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化 search_jobs 表失败")
	}
	return nil
}

// Create 插入新作业，主键冲突映射为 ErrJobConflict。
func (s *MySQLStore) Create(ctx context.Context, job *Job) error {
	if job == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "job 不能为空")
	}
	if strings.TrimSpace(job.ID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "作业 ID 不能为空")
	}

	now := time.Now().Unix()
	job.CreatedAt = now
	job.UpdatedAt = now

	const stmt = `INSERT INTO search_jobs (` + jobColumns + `)
        VALUES (?, ?, ?, ?, ?, ?, '', '', '', ?, ?)`
	_, err := s.db.ExecContext(ctx, stmt,
		job.ID, job.Query, job.Mode, job.Status,
		job.Attempts, job.MaxRetries, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if stdErrors.As(err, &mysqlErr) && mysqlErr.Number == mysqlErrDuplicateEntry {
			return ErrJobConflict
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入作业失败")
	}
	return nil
}

// Get 查询指定作业。
func (s *MySQLStore) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM search_jobs WHERE id = ?`, id)
	job, err := scanJob(row.Scan)
	if stdErrors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询作业失败")
	}
	return job, nil
}

// Claim 用条件 UPDATE 原子地领取作业：只有待处理或可重试的失败作业
// 会被置为运行中。没有命中任何行时再回查一次，把具体原因翻译成哨兵错误。
func (s *MySQLStore) Claim(ctx context.Context, id string) (*Job, error) {
	const stmt = `UPDATE search_jobs
        SET status = ?, attempts = attempts + 1, updated_at = ?, last_error = '', error_code = ''
        WHERE id = ? AND status IN (?, ?) AND attempts < max_retries`

	res, err := s.db.ExecContext(ctx, stmt,
		StatusRunning, time.Now().Unix(), id, StatusPending, StatusFailed)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新作业状态失败")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取影响行数失败")
	}
	if affected > 0 {
		return s.Get(ctx, id)
	}

	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case job.Status == StatusSucceeded:
		return job, ErrJobCompleted
	case job.Status == StatusRunning:
		return job, ErrJobConflict
	case job.Attempts >= job.MaxRetries:
		return job, ErrJobExhausted
	default:
		return job, ErrJobConflict
	}
}

// MarkSucceeded 写入序列化后的结果并清空错误字段。
func (s *MySQLStore) MarkSucceeded(ctx context.Context, id string, result travel.SearchResults) error {
	encoded, err := json.Marshal(result)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "编码搜索结果失败")
	}
	const stmt = `UPDATE search_jobs
        SET status = ?, result_json = ?, updated_at = ?, last_error = '', error_code = ''
        WHERE id = ?`
	return s.execTouch(ctx, stmt, "标记作业成功失败",
		StatusSucceeded, string(encoded), time.Now().Unix(), id)
}

// MarkFailed 记录失败信息。
func (s *MySQLStore) MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string, _ bool) error {
	const stmt = `UPDATE search_jobs
        SET status = ?, last_error = ?, error_code = ?, updated_at = ?
        WHERE id = ?`
	return s.execTouch(ctx, stmt, "标记作业失败失败",
		StatusFailed, lastError, string(code), time.Now().Unix(), id)
}

// execTouch 执行 UPDATE 并把零行命中翻译为 ErrJobNotFound。
func (s *MySQLStore) execTouch(ctx context.Context, stmt, failMsg string, args ...any) error {
	res, err := s.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, failMsg)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrJobNotFound
	}
	return nil
}

// List 返回过滤、排序、分页后的作业。
func (s *MySQLStore) List(ctx context.Context, opts ListOptions) ([]*Job, error) {
	opts.sanitize()

	var where whereBuilder
	where.fromOptions(opts)

	query := `SELECT ` + jobColumns + ` FROM search_jobs` + where.clause()
	if opts.Order == SortByUpdatedAsc {
		query += " ORDER BY updated_at ASC, created_at ASC, id ASC"
	} else {
		query += " ORDER BY updated_at DESC, created_at DESC, id DESC"
	}
	query += " LIMIT ? OFFSET ?"

	rows, err := s.db.QueryContext(ctx, query, append(where.args, opts.Limit, opts.Offset)...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询作业列表失败")
	}
	defer rows.Close()

	jobs := make([]*Job, 0, opts.Limit)
	for rows.Next() {
		job, err := scanJob(rows.Scan)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析作业记录失败")
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历作业失败")
	}
	return jobs, nil
}

// Stats 用单条聚合查询统计作业分布与更新时间窗口。
func (s *MySQLStore) Stats(ctx context.Context, opts ListOptions) (JobStats, error) {
	opts.sanitize()

	var where whereBuilder
	where.fromOptions(opts)

	query := `SELECT
        COUNT(*) AS total,
        SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS pending,
        SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS running,
        SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS succeeded,
        SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS failed,
        COALESCE(MIN(updated_at), 0) AS oldest,
        COALESCE(MAX(updated_at), 0) AS newest
        FROM search_jobs` + where.clause()

	args := append([]any{
		string(StatusPending), string(StatusRunning),
		string(StatusSucceeded), string(StatusFailed),
	}, where.args...)

	var stats JobStats
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&stats.Total, &stats.Pending, &stats.Running,
		&stats.Succeeded, &stats.Failed,
		&stats.OldestUpdatedAt, &stats.NewestUpdatedAt,
	)
	if err != nil {
		return JobStats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询作业统计失败")
	}
	if stats.Total == 0 {
		stats.OldestUpdatedAt = 0
		stats.NewestUpdatedAt = 0
	}
	return stats, nil
}

// Close 关闭底层数据库连接。
func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func scanJob(scan func(dest ...any) error) (*Job, error) {
	var (
		job        Job
		lastError  sql.NullString
		resultJSON sql.NullString
	)
	if err := scan(
		&job.ID, &job.Query, &job.Mode, &job.Status,
		&job.Attempts, &job.MaxRetries,
		&lastError, &job.ErrorCode, &resultJSON,
		&job.CreatedAt, &job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	job.LastError = lastError.String

	if resultJSON.Valid && strings.TrimSpace(resultJSON.String) != "" {
		var result travel.SearchResults
		if err := json.Unmarshal([]byte(resultJSON.String), &result); err != nil {
			return nil, fmt.Errorf("解析 result_json 失败: %w", err)
		}
		result.Normalize()
		job.Result = &result
	}
	return &job, nil
}

// whereBuilder 累积 WHERE 条件及其绑定参数。
type whereBuilder struct {
	conds []string
	args  []any
}

func (w *whereBuilder) add(cond string, args ...any) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *whereBuilder) clause() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func (w *whereBuilder) fromOptions(opts ListOptions) {
	if n := len(opts.Statuses); n > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", n), ",")
		args := make([]any, n)
		for i, status := range opts.Statuses {
			args[i] = status
		}
		w.add("status IN ("+placeholders+")", args...)
	}
	if opts.UpdatedGTE > 0 {
		w.add("updated_at >= ?", opts.UpdatedGTE)
	}
	if opts.UpdatedLTE > 0 {
		w.add("updated_at <= ?", opts.UpdatedLTE)
	}
	if opts.HasResult != nil {
		if *opts.HasResult {
			w.add("(result_json IS NOT NULL AND result_json <> '')")
		} else {
			w.add("(result_json IS NULL OR result_json = '')")
		}
	}
	if opts.Query != "" {
		pattern := "%" + opts.Query + "%"
		w.add("(id LIKE ? OR query LIKE ? OR last_error LIKE ? OR result_json LIKE ?)",
			pattern, pattern, pattern, pattern)
	}
}

var _ Store = (*MySQLStore)(nil)
