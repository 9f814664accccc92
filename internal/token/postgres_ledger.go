package token

import (
	"context"
	stdErrors "errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	xerrors "AgentPay/internal/errors"
)

const ledgerSchema = `CREATE TABLE IF NOT EXISTS payment_tokens (
        id         TEXT PRIMARY KEY,
        holder     TEXT NOT NULL DEFAULT '',
        balance    BIGINT NOT NULL CHECK (balance >= 0),
        issued_at  BIGINT NOT NULL,
        expire_in  BIGINT NOT NULL DEFAULT 3600
)`

// PostgresLedger 使用 PostgreSQL 保存令牌台账。
type PostgresLedger struct {
	pool *pgxpool.Pool
}

// NewPostgresLedger 建立连接池并确保表结构存在。
func NewPostgresLedger(ctx context.Context, dsn string) (*PostgresLedger, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "PostgreSQL DSN 不能为空")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 PostgreSQL 失败")
	}
	if _, err := pool.Exec(ctx, ledgerSchema); err != nil {
		pool.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化 payment_tokens 表失败")
	}
	return &PostgresLedger{pool: pool}, nil
}

// Insert 插入新的令牌记录。
func (p *PostgresLedger) Insert(ctx context.Context, token *PaymentToken) error {
	if token == nil || strings.TrimSpace(token.ID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "令牌不能为空")
	}
	if token.IssuedAt == 0 {
		token.IssuedAt = time.Now().Unix()
	}
	_, err := p.pool.Exec(ctx,
		`INSERT INTO payment_tokens(id, holder, balance, issued_at, expire_in) VALUES($1,$2,$3,$4,$5)`,
		token.ID, token.Holder, token.Balance, token.IssuedAt, token.ExpireIn)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入令牌失败")
	}
	return nil
}

// Balance 返回剩余余额，未知或过期令牌返回 0。
func (p *PostgresLedger) Balance(ctx context.Context, id string) (int64, error) {
	var balance int64
	err := p.pool.QueryRow(ctx,
		`SELECT balance FROM payment_tokens
         WHERE id = $1 AND (expire_in <= 0 OR issued_at + expire_in > $2)`,
		id, time.Now().Unix()).Scan(&balance)
	if err != nil {
		if stdErrors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询令牌余额失败")
	}
	return balance, nil
}

// Debit 以单条 UPDATE 原子地校验有效期与余额并扣减。
func (p *PostgresLedger) Debit(ctx context.Context, id string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, xerrors.New(xerrors.CodeInvalidArgument, "扣款金额必须为正数")
	}
	now := time.Now().Unix()
	var balance int64
	err := p.pool.QueryRow(ctx,
		`UPDATE payment_tokens SET balance = balance - $2
         WHERE id = $1 AND balance >= $2 AND (expire_in <= 0 OR issued_at + expire_in > $3)
         RETURNING balance`,
		id, amount, now).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !stdErrors.Is(err, pgx.ErrNoRows) {
		return 0, xerrors.Wrap(xerrors.CodeStorageFailure, err, "扣减令牌余额失败")
	}

	// 区分拒绝原因：不存在、过期或余额不足。
	var issuedAt, expireIn int64
	err = p.pool.QueryRow(ctx,
		`SELECT balance, issued_at, expire_in FROM payment_tokens WHERE id = $1`,
		id).Scan(&balance, &issuedAt, &expireIn)
	if err != nil {
		if stdErrors.Is(err, pgx.ErrNoRows) {
			return 0, ErrTokenNotFound
		}
		return 0, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询令牌失败")
	}
	if expireIn > 0 && issuedAt+expireIn <= now {
		return 0, ErrTokenExpired
	}
	return balance, ErrInsufficientBalance
}

// Issued 返回累计发放数量。
func (p *PostgresLedger) Issued(ctx context.Context) (int64, error) {
	var count int64
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM payment_tokens`).Scan(&count); err != nil {
		return 0, xerrors.Wrap(xerrors.CodeStorageFailure, err, "统计令牌数量失败")
	}
	return count, nil
}

// Close 释放连接池。
func (p *PostgresLedger) Close() error {
	if p != nil && p.pool != nil {
		p.pool.Close()
	}
	return nil
}

var _ Ledger = (*PostgresLedger)(nil)
