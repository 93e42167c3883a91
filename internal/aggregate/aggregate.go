package aggregate

import (
	"context"
	"fmt"
	"time"

	"github.com/nguyenminhquan-80/CLASSGUARD-PRO/internal/models"
	"github.com/nguyenminhquan-80/CLASSGUARD-PRO/internal/repository"
)

// Engine 时间桶聚合引擎
// 按需在查询时对 RangeScan 流式计算，聚合结果不落库。
type Engine struct {
	repo repository.ReadingsRepository
}

// NewEngine 创建聚合引擎
func NewEngine(repo repository.ReadingsRepository) *Engine {
	return &Engine{repo: repo}
}

// bucketAccumulator 单个桶的逐通道累加器
type bucketAccumulator struct {
	count int
	sums  [5]float64 // temperature, humidity, co2, light, noise
	ns    [5]int
}

func (a *bucketAccumulator) add(reading *models.Reading) {
	a.count++
	channels := [5]*float64{
		reading.Temperature,
		reading.Humidity,
		reading.CO2,
		reading.Light,
		reading.Noise,
	}
	for i, v := range channels {
		if v != nil {
			a.sums[i] += *v
			a.ns[i]++
		}
	}
}

// mean 返回通道均值；桶内该通道无样本返回 nil，绝不补0
func (a *bucketAccumulator) mean(i int) *float64 {
	if a.ns[i] == 0 {
		return nil
	}
	m := a.sums[i] / float64(a.ns[i])
	return &m
}

// Aggregate 计算 [since, until] 的固定宽度时间桶统计
// 桶对齐到 since，采样属于 [bucketStart, bucketStart+width) 的左闭右开区间；
// 只返回末尾 lastN 个桶（图表的滑动窗口），lastN<=0 返回全部。
// 无中间写入时重复调用结果一致。
func (e *Engine) Aggregate(ctx context.Context, since, until time.Time, width time.Duration, lastN int) ([]models.AggregateBucket, error) {
	if width <= 0 {
		return nil, fmt.Errorf("bucket width must be positive, got %v", width)
	}
	if until.Before(since) {
		return []models.AggregateBucket{}, nil
	}

	cursor, err := e.repo.RangeScan(ctx, since, until)
	if err != nil {
		return nil, fmt.Errorf("failed to open range scan: %w", err)
	}
	defer cursor.Close()

	// 游标按 timestamp 升序，逐条归桶；只保留出现过样本的桶
	accumulators := make(map[int64]*bucketAccumulator)
	for {
		reading, err := cursor.Next()
		if err != nil {
			return nil, fmt.Errorf("failed to scan readings: %w", err)
		}
		if reading == nil {
			break
		}

		offset := reading.Timestamp.Sub(since)
		if offset < 0 {
			continue
		}
		idx := int64(offset / width)

		acc, ok := accumulators[idx]
		if !ok {
			acc = &bucketAccumulator{}
			accumulators[idx] = acc
		}
		acc.add(reading)
	}

	// 桶序列覆盖整个窗口（含空桶），再截取末尾 lastN 个
	totalBuckets := int64(until.Sub(since)/width) + 1
	firstIdx := int64(0)
	if lastN > 0 && totalBuckets > int64(lastN) {
		firstIdx = totalBuckets - int64(lastN)
	}

	buckets := make([]models.AggregateBucket, 0, totalBuckets-firstIdx)
	for idx := firstIdx; idx < totalBuckets; idx++ {
		bucket := models.AggregateBucket{
			BucketStart: since.Add(time.Duration(idx) * width),
		}
		if acc, ok := accumulators[idx]; ok {
			bucket.Count = acc.count
			bucket.Temperature = acc.mean(0)
			bucket.Humidity = acc.mean(1)
			bucket.CO2 = acc.mean(2)
			bucket.Light = acc.mean(3)
			bucket.Noise = acc.mean(4)
		}
		buckets = append(buckets, bucket)
	}

	return buckets, nil
}
