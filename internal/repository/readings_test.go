package repository

import (
	"context"
	"testing"
	"time"

	"github.com/nguyenminhquan-80/CLASSGUARD-PRO/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildReading(t *testing.T, deviceID string, temp *float64, now time.Time) *models.Reading {
	t.Helper()
	return &models.Reading{
		DeviceID:    deviceID,
		Temperature: temp,
		Status:      "Unknown",
		Timestamp:   now,
		ReceivedAt:  now,
	}
}

func readingRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "device_id", "temperature", "humidity", "co2", "light", "noise", "aqi",
		"class_score", "status", "timestamp", "received_at",
	})
}

func TestAppend_ReturnsSequenceID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresReadingsRepository(db)

	temp := 26.5
	now := time.Now()
	reading := buildReading(t, "esp32-01", &temp, now)

	mock.ExpectQuery(`INSERT INTO sensor_readings`).
		WithArgs(
			"esp32-01", 26.5, nil, nil, nil, nil, nil, 0, "Unknown",
			reading.Timestamp, reading.ReceivedAt,
		).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	id, err := repo.Append(context.Background(), reading)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppend_EmptyDeviceIDStoredAsNull(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresReadingsRepository(db)

	now := time.Now()
	reading := buildReading(t, "", nil, now)

	mock.ExpectQuery(`INSERT INTO sensor_readings`).
		WithArgs(
			nil, nil, nil, nil, nil, nil, nil, 0, "Unknown",
			reading.Timestamp, reading.ReceivedAt,
		).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))

	_, err = repo.Append(context.Background(), reading)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuery_PaginatedNewestFirst(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresReadingsRepository(db)

	t1 := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM sensor_readings`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	mock.ExpectQuery(`SELECT\s+id`).
		WithArgs(20, 0).
		WillReturnRows(readingRows().
			AddRow(int64(2), "esp32-01", 24.0, nil, nil, nil, nil, nil, 80, "Good", t2, t2).
			AddRow(int64(1), "esp32-01", 22.0, nil, 900.0, nil, nil, nil, 75, "Good", t1, t1))

	readings, total, err := repo.Query(context.Background(), nil, 1, 20)
	require.NoError(t, err)

	assert.Equal(t, 2, total)
	require.Len(t, readings, 2)
	assert.Equal(t, 24.0, *readings[0].Temperature)
	assert.Nil(t, readings[0].CO2)
	assert.Equal(t, 900.0, *readings[1].CO2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuery_DateFilter(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresReadingsRepository(db)

	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM sensor_readings WHERE timestamp::date = \$1::date`).
		WithArgs(date).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	mock.ExpectQuery(`SELECT\s+id`).
		WithArgs(date, 50, 0).
		WillReturnRows(readingRows())

	readings, total, err := repo.Query(context.Background(), &ReadingFilters{Date: &date}, 1, 50)
	require.NoError(t, err)

	assert.Equal(t, 0, total)
	assert.Empty(t, readings)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuery_OutOfRangePageReturnsEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresReadingsRepository(db)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM sensor_readings`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	// page 99 越界：LIMIT/OFFSET 自然返回空集
	mock.ExpectQuery(`SELECT\s+id`).
		WithArgs(20, 1960).
		WillReturnRows(readingRows())

	readings, total, err := repo.Query(context.Background(), nil, 99, 20)
	require.NoError(t, err)

	assert.Equal(t, 3, total)
	assert.Empty(t, readings)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRangeScan_StreamsAscending(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresReadingsRepository(db)

	since := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	until := since.Add(time.Hour)

	mock.ExpectQuery(`SELECT\s+id`).
		WithArgs(since, until).
		WillReturnRows(readingRows().
			AddRow(int64(1), nil, 22.0, nil, nil, nil, nil, nil, 0, "Unknown", since, since).
			AddRow(int64(2), nil, 24.0, nil, nil, nil, nil, nil, 0, "Unknown", since.Add(30*time.Second), since.Add(30*time.Second)))

	cursor, err := repo.RangeScan(context.Background(), since, until)
	require.NoError(t, err)
	defer cursor.Close()

	first, err := cursor.Next()
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, 22.0, *first.Temperature)
	assert.Equal(t, "", first.DeviceID)

	second, err := cursor.Next()
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, 24.0, *second.Temperature)

	// 遍历结束
	done, err := cursor.Next()
	require.NoError(t, err)
	assert.Nil(t, done)

	assert.NoError(t, mock.ExpectationsWereMet())
}
