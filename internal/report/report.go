package report

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/nguyenminhquan-80/CLASSGUARD-PRO/internal/models"
	"github.com/nguyenminhquan-80/CLASSGUARD-PRO/internal/repository"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// missingValue 通道缺失时的占位符
const missingValue = "N/A"

// defaultMaxRows 报表默认行数上限
const defaultMaxRows = 50

// ReportHeader 环境报表表头
var ReportHeader = []string{
	"Timestamp",
	"Device ID",
	"Temperature (°C)",
	"Humidity (%)",
	"CO2 (ppm)",
	"Light (lux)",
	"Noise (dB)",
	"AQI",
	"Class Score",
	"Status",
}

// Row 报表行，列顺序与 ReportHeader 一致
type Row []string

// Generator 环境报表生成器
// 纯粹是存储查询结果到行元组的映射，无副作用、不缓存。
type Generator struct {
	repo   repository.ReadingsRepository
	logger *zap.Logger
}

// NewGenerator 创建报表生成器
func NewGenerator(repo repository.ReadingsRepository, logger *zap.Logger) *Generator {
	return &Generator{
		repo:   repo,
		logger: logger,
	}
}

// BuildRows 从存储构建报表行
// 结果按时间从新到旧排列；超过 maxRows 时确定性截断，只保留最近的
// maxRows 条。缺失通道填 "N/A" 而不是 0。
func (g *Generator) BuildRows(ctx context.Context, since, until time.Time, maxRows int) ([]Row, error) {
	if maxRows <= 0 {
		maxRows = defaultMaxRows
	}
	if until.Before(since) {
		return []Row{}, nil
	}

	filters := &repository.ReadingFilters{
		Since: &since,
		Until: &until,
	}

	// 查询按时间倒序，第一页即最近的 maxRows 条
	readings, total, err := g.repo.Query(ctx, filters, 1, maxRows)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings for report: %w", err)
	}

	if total > maxRows {
		g.logger.Debug("Report window truncated to most recent rows",
			zap.Int("total", total),
			zap.Int("max_rows", maxRows),
		)
	}

	rows := make([]Row, 0, len(readings))
	for _, reading := range readings {
		rows = append(rows, buildRow(&reading))
	}
	return rows, nil
}

// BuildExcel 将报表行渲染为 .xlsx 文档
func (g *Generator) BuildExcel(ctx context.Context, since, until time.Time, maxRows int) ([]byte, error) {
	rows, err := g.BuildRows(ctx, since, until, maxRows)
	if err != nil {
		return nil, err
	}
	return renderExcel(since, until, rows)
}

// buildRow 单条采样到报表行的映射
func buildRow(reading *models.Reading) Row {
	deviceID := reading.DeviceID
	if deviceID == "" {
		deviceID = missingValue
	}
	return Row{
		reading.Timestamp.Format("2006-01-02 15:04:05"),
		deviceID,
		formatChannel(reading.Temperature, 1),
		formatChannel(reading.Humidity, 1),
		formatChannel(reading.CO2, 0),
		formatChannel(reading.Light, 0),
		formatChannel(reading.Noise, 1),
		formatChannel(reading.AQI, 0),
		strconv.Itoa(reading.ClassScore),
		reading.Status,
	}
}

// formatChannel 通道值格式化，nil 返回占位符
func formatChannel(value *float64, precision int) string {
	if value == nil {
		return missingValue
	}
	return strconv.FormatFloat(*value, 'f', precision, 64)
}

// renderExcel 渲染报表 Excel 文件
// 首行为报表标题，次行为带样式表头，之后逐行写入数据。
func renderExcel(since, until time.Time, rows []Row) ([]byte, error) {
	f := excelize.NewFile()
	// WriteTo 需要文件保持打开，出错路径单独 Close

	sheetName := "Environment Report"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	// 报表标题行
	title := fmt.Sprintf("Classroom Environment Report  %s ~ %s",
		since.Format("2006-01-02 15:04"), until.Format("2006-01-02 15:04"))
	if err := f.SetCellValue(sheetName, "A1", title); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to set title cell: %w", err)
	}
	endCol, err := excelize.ColumnNumberToName(len(ReportHeader))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to convert column number: %w", err)
	}
	if err := f.MergeCell(sheetName, "A1", endCol+"1"); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to merge title cells: %w", err)
	}
	titleStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold: true,
			Size: 14,
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create title style: %w", err)
	}
	if err := f.SetCellStyle(sheetName, "A1", endCol+"1", titleStyle); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to set title style: %w", err)
	}

	// 表头样式
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold: true,
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	// 写入表头（第2行）
	for col, header := range ReportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 2)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
	}

	// 列宽
	columnWidths := []float64{
		20, // Timestamp
		15, // Device ID
		16, // Temperature
		14, // Humidity
		12, // CO2
		12, // Light
		12, // Noise
		10, // AQI
		12, // Class Score
		12, // Status
	}
	for i := range ReportHeader {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert column number: %w", err)
		}
		if i < len(columnWidths) {
			if err := f.SetColWidth(sheetName, col, col, columnWidths[i]); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to set column width: %w", err)
			}
		}
	}

	// 写入数据（从第3行开始）
	for rowIdx, row := range rows {
		for colIdx, value := range row {
			cell, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+3)
			if err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to convert coordinates: %w", err)
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to set cell %s: %w", cell, err)
			}
		}
	}

	// 冻结标题和表头
	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		Split:       false,
		XSplit:      0,
		YSplit:      2,
		TopLeftCell: "A3",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}

	return buf.Bytes(), nil
}
