package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/nguyenminhquan-80/CLASSGUARD-PRO/internal/common/config"

	_ "github.com/lib/pq"
)

// 单个MQTT写入者加看板查询，不需要大连接池
const (
	defaultMaxConns    = 10
	defaultMaxIdle     = 5
	connMaxLifetime    = 30 * time.Minute
	connMaxIdleTimeout = 5 * time.Minute
)

// NewPostgresDB 创建PostgreSQL数据库连接
func NewPostgresDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	dsn := cfg.GetDSN()

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 设置连接池参数
	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = defaultMaxConns
	}
	maxIdle := cfg.MaxIdle
	if maxIdle <= 0 {
		maxIdle = defaultMaxIdle
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTimeout)

	// 测试连接
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Close 关闭数据库连接
func Close(db *sql.DB) error {
	if db != nil {
		return db.Close()
	}
	return nil
}
