package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nguyenminhquan-80/CLASSGUARD-PRO/internal/cache"
	"github.com/nguyenminhquan-80/CLASSGUARD-PRO/internal/consumer"
	"github.com/nguyenminhquan-80/CLASSGUARD-PRO/internal/models"
	"github.com/nguyenminhquan-80/CLASSGUARD-PRO/internal/repository"

	"go.uber.org/zap"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200

	defaultChartWindow  = time.Hour
	defaultChartBuckets = 12
	maxChartBuckets     = 288

	defaultReportWindow = 24 * time.Hour
	defaultReportRows   = 50

	maxControlBody = 4 * 1024
)

// ControlIssuer 控制指令下发接口
type ControlIssuer interface {
	Issue(ctx context.Context, device string, state bool, actorID, actorRole string) (*models.ControlCommand, error)
}

// ChartProvider 图表聚合接口
type ChartProvider interface {
	Aggregate(ctx context.Context, since, until time.Time, width time.Duration, lastN int) ([]models.AggregateBucket, error)
}

// ReportBuilder 报表构建接口
type ReportBuilder interface {
	BuildExcel(ctx context.Context, since, until time.Time, maxRows int) ([]byte, error)
}

// StatsProvider 摄取计数器接口
type StatsProvider interface {
	Snapshot() consumer.Stats
	CurrentState() consumer.State
}

// APIHandler 看板查询与控制 API
type APIHandler struct {
	latest  *cache.LatestState
	repo    repository.ReadingsRepository
	charts  ChartProvider
	control ControlIssuer
	reports ReportBuilder
	stats   StatsProvider
	logger  *zap.Logger
}

// NewAPIHandler 创建 API Handler
func NewAPIHandler(
	latest *cache.LatestState,
	repo repository.ReadingsRepository,
	charts ChartProvider,
	control ControlIssuer,
	reports ReportBuilder,
	stats StatsProvider,
	logger *zap.Logger,
) *APIHandler {
	return &APIHandler{
		latest:  latest,
		repo:    repo,
		charts:  charts,
		control: control,
		reports: reports,
		stats:   stats,
		logger:  logger,
	}
}

// GetLatest 最新一条采样与设备开关状态快照
func (h *APIHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	reading, devices := h.latest.Get()
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"reading": reading,
		"devices": devices,
	}))
}

// GetHistory 历史采样分页查询
// 支持 date=YYYY-MM-DD 过滤单日，page/page_size 分页，时间倒序。
func (h *APIHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	filters := &repository.ReadingFilters{}
	if dateStr := r.URL.Query().Get("date"); dateStr != "" {
		date, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, Fail("invalid date, expected YYYY-MM-DD"))
			return
		}
		filters.Date = &date
	}

	page := parseInt(r.URL.Query().Get("page"), 1)
	pageSize := parseInt(r.URL.Query().Get("page_size"), defaultPageSize)
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	readings, total, err := h.repo.Query(r.Context(), filters, page, pageSize)
	if err != nil {
		h.logger.Error("Failed to query history",
			zap.Int("page", page),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, Fail("failed to query history"))
		return
	}

	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"items":     readings,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	}))
}

// GetChart 图表聚合序列
// window 为回看时长（Go duration 格式），buckets 为桶数；
// 桶宽 = window / buckets，返回最近 buckets 个桶（含空桶）。
func (h *APIHandler) GetChart(w http.ResponseWriter, r *http.Request) {
	window := parseDuration(r.URL.Query().Get("window"), defaultChartWindow)
	buckets := parseInt(r.URL.Query().Get("buckets"), defaultChartBuckets)
	if buckets <= 0 {
		buckets = defaultChartBuckets
	}
	if buckets > maxChartBuckets {
		buckets = maxChartBuckets
	}

	// 网格从桶宽反推：恰好 buckets 个左闭右开的桶铺满 [now-buckets*width, now)，
	// 扫描终点回退1ns，避免聚合的含端点约定多出一个起点为 now 的空桶
	until := time.Now()
	width := window / time.Duration(buckets)
	if width <= 0 {
		writeJSON(w, http.StatusBadRequest, Fail("window too small for bucket count"))
		return
	}
	since := until.Add(-time.Duration(buckets) * width)

	series, err := h.charts.Aggregate(r.Context(), since, until.Add(-time.Nanosecond), width, buckets)
	if err != nil {
		h.logger.Error("Failed to aggregate chart series",
			zap.Duration("window", window),
			zap.Int("buckets", buckets),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, Fail("failed to build chart series"))
		return
	}

	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"buckets": series,
		"window":  window.String(),
	}))
}

// controlRequest 控制指令请求体
type controlRequest struct {
	Device string `json:"device"`
	State  bool   `json:"state"`
}

// PostControl 下发设备控制指令
// 操作者身份从 X-User-Id / X-User-Role 头注入（认证在外层网关完成）。
func (h *APIHandler) PostControl(w http.ResponseWriter, r *http.Request) {
	var req controlRequest
	if err := readBodyJSON(r, maxControlBody, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	if req.Device == "" {
		writeJSON(w, http.StatusBadRequest, Fail("device is required"))
		return
	}

	actorID := r.Header.Get("X-User-Id")
	actorRole := r.Header.Get("X-User-Role")

	cmd, err := h.control.Issue(r.Context(), req.Device, req.State, actorID, actorRole)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidDevice):
			writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		case errors.Is(err, models.ErrUnauthorized):
			writeJSON(w, http.StatusForbidden, Fail(err.Error()))
		default:
			h.logger.Error("Failed to issue control command",
				zap.String("device", req.Device),
				zap.Error(err),
			)
			writeJSON(w, http.StatusInternalServerError, Fail("failed to issue command"))
		}
		return
	}

	writeJSON(w, http.StatusOK, Ok(cmd))
}

// GetReport 环境报表下载
// window 为回看时长，max_rows 为行数上限，响应为 .xlsx 附件。
func (h *APIHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	window := parseDuration(r.URL.Query().Get("window"), defaultReportWindow)
	maxRows := parseInt(r.URL.Query().Get("max_rows"), defaultReportRows)

	until := time.Now()
	since := until.Add(-window)

	data, err := h.reports.BuildExcel(r.Context(), since, until, maxRows)
	if err != nil {
		h.logger.Error("Failed to build report",
			zap.Duration("window", window),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, Fail("failed to build report"))
		return
	}

	filename := fmt.Sprintf("environment_report_%s.xlsx", until.Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// GetStats 摄取计数器与订阅状态
func (h *APIHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"ingestion": h.stats.Snapshot(),
		"state":     h.stats.CurrentState().String(),
	}))
}
