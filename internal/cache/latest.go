package cache

import (
	"sync"

	"github.com/nguyenminhquan-80/CLASSGUARD-PRO/internal/models"
)

// LatestState 最新状态缓存
// 持有最近一次 Reading 和当前设备开关状态，供任意数量的读协程并发访问。
// 读写都在单把 RWMutex 临界区内完成，Get 返回的快照对不会出现
// Reading 与 DeviceStatus 撕裂混读；无过期策略，"最新"即最后一次写入。
type LatestState struct {
	mu      sync.RWMutex
	reading models.Reading
	devices models.DeviceStatus
}

// NewLatestState 创建最新状态缓存
// 初始状态：空 Reading（各通道缺失），设备全部关闭。
func NewLatestState() *LatestState {
	return &LatestState{}
}

// Get 返回一致的时点快照对
func (c *LatestState) Get() (models.Reading, models.DeviceStatus) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reading, c.devices
}

// SetReading 写入最新采样（last-writer-wins）
func (c *LatestState) SetReading(reading models.Reading) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reading = reading
}

// SetDeviceState 更新单个设备开关状态
func (c *LatestState) SetDeviceState(device string, state bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.devices.Set(device, state)
}

// ApplyAck 按设备回执批量确认/纠正开关状态
// 回执中不在闭集内的设备名忽略。
func (c *LatestState) ApplyAck(ack models.ControlAck) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for device, state := range ack.States {
		if models.IsValidDevice(device) {
			c.devices.Set(device, state)
		}
	}
}
