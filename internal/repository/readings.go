package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/nguyenminhquan-80/CLASSGUARD-PRO/internal/models"
)

// ReadingFilters 采样查询过滤器
type ReadingFilters struct {
	Since *time.Time // 开始时间（含）
	Until *time.Time // 结束时间（含）
	Date  *time.Time // 日历日期过滤，按记录自身 timestamp 而非 received_at
}

// ReadingsRepository 采样数据仓库接口
// 只追加：历史记录除本接口的查询方法外不对外暴露。
type ReadingsRepository interface {
	// Append 追加一条采样，返回自增序列ID
	Append(ctx context.Context, reading *models.Reading) (int64, error)

	// Query 分页查询，最新在前；页码越界返回空页而非错误
	Query(ctx context.Context, filters *ReadingFilters, page, size int) ([]models.Reading, int, error)

	// RangeScan 按 timestamp 升序流式遍历 [since, until]
	// 游标式读取，窗口跨整个日志也不会整体载入内存。
	RangeScan(ctx context.Context, since, until time.Time) (Cursor, error)
}

// Cursor 采样流式游标
type Cursor interface {
	// Next 返回下一条采样；遍历结束返回 (nil, nil)
	Next() (*models.Reading, error)
	// Close 关闭游标，释放底层连接
	Close() error
}

// PostgresReadingsRepository 采样数据仓库 PostgreSQL 实现
type PostgresReadingsRepository struct {
	db *sql.DB
}

// NewPostgresReadingsRepository 创建采样数据仓库
func NewPostgresReadingsRepository(db *sql.DB) *PostgresReadingsRepository {
	return &PostgresReadingsRepository{db: db}
}

// 确保实现了接口
var _ ReadingsRepository = (*PostgresReadingsRepository)(nil)

const readingColumns = `
	id,
	device_id,
	temperature,
	humidity,
	co2,
	light,
	noise,
	aqi,
	class_score,
	status,
	timestamp,
	received_at
`

// Append 插入一条采样到 sensor_readings 表
func (r *PostgresReadingsRepository) Append(ctx context.Context, reading *models.Reading) (int64, error) {
	query := `
		INSERT INTO sensor_readings (
			device_id,
			temperature,
			humidity,
			co2,
			light,
			noise,
			aqi,
			class_score,
			status,
			timestamp,
			received_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
		RETURNING id
	`

	var deviceID interface{}
	if reading.DeviceID != "" {
		deviceID = reading.DeviceID
	}

	var id int64
	err := r.db.QueryRowContext(
		ctx,
		query,
		deviceID,
		reading.Temperature,
		reading.Humidity,
		reading.CO2,
		reading.Light,
		reading.Noise,
		reading.AQI,
		reading.ClassScore,
		reading.Status,
		reading.Timestamp,
		reading.ReceivedAt,
	).Scan(&id)

	if err != nil {
		return 0, fmt.Errorf("failed to insert sensor_readings: %w", err)
	}

	return id, nil
}

// buildWhereClause 构建 WHERE 子句
func (r *PostgresReadingsRepository) buildWhereClause(filters *ReadingFilters, args *[]interface{}, argN *int) string {
	var where []string

	if filters != nil {
		if filters.Since != nil {
			where = append(where, fmt.Sprintf("timestamp >= $%d", *argN))
			*args = append(*args, *filters.Since)
			*argN++
		}
		if filters.Until != nil {
			where = append(where, fmt.Sprintf("timestamp <= $%d", *argN))
			*args = append(*args, *filters.Until)
			*argN++
		}
		if filters.Date != nil {
			where = append(where, fmt.Sprintf("timestamp::date = $%d::date", *argN))
			*args = append(*args, *filters.Date)
			*argN++
		}
	}

	if len(where) == 0 {
		return "TRUE"
	}
	return strings.Join(where, " AND ")
}

// Query 分页查询（最新在前，id 作为同时间戳的次序键）
func (r *PostgresReadingsRepository) Query(ctx context.Context, filters *ReadingFilters, page, size int) ([]models.Reading, int, error) {
	args := []interface{}{}
	argN := 1
	whereClause := r.buildWhereClause(filters, &args, &argN)

	// 查询总数
	queryCount := "SELECT COUNT(*) FROM sensor_readings WHERE " + whereClause

	var total int
	if err := r.db.QueryRowContext(ctx, queryCount, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count: %w", err)
	}

	// 分页查询
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	offset := (page - 1) * size

	args = append(args, size, offset)
	query := "SELECT " + readingColumns + " FROM sensor_readings WHERE " + whereClause +
		" ORDER BY timestamp DESC, id DESC" +
		fmt.Sprintf(" LIMIT $%d OFFSET $%d", argN, argN+1)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	results, err := scanReadings(rows)
	if err != nil {
		return nil, 0, err
	}

	return results, total, nil
}

// RangeScan 打开一个按 timestamp 升序的流式游标
// 调用方负责 Close；聚合引擎逐条消费，不做整体加载。
func (r *PostgresReadingsRepository) RangeScan(ctx context.Context, since, until time.Time) (Cursor, error) {
	query := "SELECT " + readingColumns + ` FROM sensor_readings
		WHERE timestamp >= $1 AND timestamp <= $2
		ORDER BY timestamp ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, since, until)
	if err != nil {
		return nil, fmt.Errorf("failed to open range scan: %w", err)
	}

	return &ReadingCursor{rows: rows}, nil
}

// ReadingCursor 采样流式游标
type ReadingCursor struct {
	rows *sql.Rows
}

// Next 返回下一条采样；遍历结束返回 (nil, nil)
func (c *ReadingCursor) Next() (*models.Reading, error) {
	if !c.rows.Next() {
		if err := c.rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to iterate rows: %w", err)
		}
		return nil, nil
	}

	reading, err := scanReading(c.rows)
	if err != nil {
		return nil, err
	}
	return reading, nil
}

// Close 关闭游标，释放底层连接
func (c *ReadingCursor) Close() error {
	return c.rows.Close()
}

// scanReading 扫描单条记录
func scanReading(rows *sql.Rows) (*models.Reading, error) {
	var reading models.Reading
	var id int64
	var deviceID sql.NullString
	var temperature, humidity, co2, light, noise, aqi sql.NullFloat64

	if err := rows.Scan(
		&id,
		&deviceID,
		&temperature,
		&humidity,
		&co2,
		&light,
		&noise,
		&aqi,
		&reading.ClassScore,
		&reading.Status,
		&reading.Timestamp,
		&reading.ReceivedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to scan sensor_readings: %w", err)
	}

	// 处理 nullable 字段
	if deviceID.Valid {
		reading.DeviceID = deviceID.String
	}
	if temperature.Valid {
		v := temperature.Float64
		reading.Temperature = &v
	}
	if humidity.Valid {
		v := humidity.Float64
		reading.Humidity = &v
	}
	if co2.Valid {
		v := co2.Float64
		reading.CO2 = &v
	}
	if light.Valid {
		v := light.Float64
		reading.Light = &v
	}
	if noise.Valid {
		v := noise.Float64
		reading.Noise = &v
	}
	if aqi.Valid {
		v := aqi.Float64
		reading.AQI = &v
	}

	return &reading, nil
}

// scanReadings 扫描多行记录
func scanReadings(rows *sql.Rows) ([]models.Reading, error) {
	results := []models.Reading{}

	for rows.Next() {
		reading, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *reading)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return results, nil
}
