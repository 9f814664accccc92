package market

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"strings"

	_ "modernc.org/sqlite" // SQLite 驱动

	xerrors "AgentPay/internal/errors"
)

const catalogSchema = `CREATE TABLE IF NOT EXISTS resources (
        id          TEXT PRIMARY KEY,
        name        TEXT NOT NULL,
        description TEXT NOT NULL DEFAULT '',
        price       INTEGER NOT NULL DEFAULT 0 CHECK (price >= 0)
)`

// SQLiteCatalog 使用 SQLite 保存资源目录，适合单机持久化部署。
type SQLiteCatalog struct {
	db *sql.DB
}

// NewSQLiteCatalog 打开（或创建）目录数据库并确保表结构存在。
func NewSQLiteCatalog(path string) (*SQLiteCatalog, error) {
	if strings.TrimSpace(path) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "SQLite 路径不能为空")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "打开 SQLite 失败")
	}
	db.SetMaxOpenConns(1) // 避免 SQLITE_BUSY
	if _, err := db.Exec(catalogSchema); err != nil {
		_ = db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化 resources 表失败")
	}
	return &SQLiteCatalog{db: db}, nil
}

// SeedIfEmpty 仅在目录为空时写入初始条目。
func (c *SQLiteCatalog) SeedIfEmpty(ctx context.Context, seed []Resource) error {
	var count int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM resources`).Scan(&count); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "统计资源数量失败")
	}
	if count > 0 {
		return nil
	}
	for i := range seed {
		if err := c.Put(ctx, &seed[i]); err != nil {
			return err
		}
	}
	return nil
}

// Get 返回指定资源。
func (c *SQLiteCatalog) Get(ctx context.Context, id string) (*Resource, error) {
	var resource Resource
	err := c.db.QueryRowContext(ctx,
		`SELECT id, name, description, price FROM resources WHERE id = ?`, id).
		Scan(&resource.ID, &resource.Name, &resource.Description, &resource.Price)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrResourceNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询资源失败")
	}
	return &resource, nil
}

// Search 按名称做大小写不敏感的子串匹配。
func (c *SQLiteCatalog) Search(ctx context.Context, keyword string) ([]Summary, error) {
	pattern := "%" + strings.ToLower(strings.TrimSpace(keyword)) + "%"
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, name FROM resources WHERE LOWER(name) LIKE ? ORDER BY id`, pattern)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "搜索资源失败")
	}
	defer rows.Close()

	var results []Summary
	for rows.Next() {
		var summary Summary
		if err := rows.Scan(&summary.ID, &summary.Name); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取搜索结果失败")
		}
		results = append(results, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历搜索结果失败")
	}
	return results, nil
}

// Put 写入或覆盖资源条目。
func (c *SQLiteCatalog) Put(ctx context.Context, resource *Resource) error {
	if resource == nil || strings.TrimSpace(resource.ID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "资源 ID 不能为空")
	}
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO resources(id, name, description, price) VALUES(?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET name = excluded.name,
             description = excluded.description, price = excluded.price`,
		resource.ID, resource.Name, resource.Description, resource.Price)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入资源失败")
	}
	return nil
}

// Close 释放数据库连接。
func (c *SQLiteCatalog) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

var _ Catalog = (*SQLiteCatalog)(nil)
