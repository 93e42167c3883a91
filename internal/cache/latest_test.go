package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/nguyenminhquan-80/CLASSGUARD-PRO/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatestState_InitialState(t *testing.T) {
	c := NewLatestState()

	reading, devices := c.Get()

	assert.Nil(t, reading.Temperature)
	assert.True(t, reading.Timestamp.IsZero())
	assert.False(t, devices.Fan)
	assert.False(t, devices.Light)
	assert.False(t, devices.Buzzer)
}

func TestLatestState_SetReadingVisibleToGet(t *testing.T) {
	c := NewLatestState()

	temp := 24.5
	r := models.Reading{
		DeviceID:    "esp32-01",
		Temperature: &temp,
		Timestamp:   time.Now(),
		ReceivedAt:  time.Now(),
	}
	c.SetReading(r)

	got, _ := c.Get()
	assert.Equal(t, r, got)
}

func TestLatestState_SetDeviceState(t *testing.T) {
	c := NewLatestState()

	require.NoError(t, c.SetDeviceState("fan", true))
	_, devices := c.Get()
	assert.True(t, devices.Fan)

	require.NoError(t, c.SetDeviceState("fan", false))
	_, devices = c.Get()
	assert.False(t, devices.Fan)

	err := c.SetDeviceState("heater", true)
	assert.ErrorIs(t, err, models.ErrInvalidDevice)
}

func TestLatestState_ApplyAck(t *testing.T) {
	c := NewLatestState()
	require.NoError(t, c.SetDeviceState("fan", true))

	// 设备回执纠正 fan，未知设备名忽略
	c.ApplyAck(models.ControlAck{States: map[string]bool{
		"fan":    false,
		"buzzer": true,
		"heater": true,
	}})

	_, devices := c.Get()
	assert.False(t, devices.Fan)
	assert.True(t, devices.Buzzer)
	assert.False(t, devices.Light)
}

// 并发读写下快照对不出现撕裂：每个写者要么整体可见要么整体不可见
func TestLatestState_NoTornReads(t *testing.T) {
	c := NewLatestState()

	var wg sync.WaitGroup
	stop := make(chan struct{})

	// 写者：reading 的 score 与 fan 状态同步翻转
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			on := i%2 == 0
			score := 0
			if on {
				score = 100
			}
			c.SetReading(models.Reading{ClassScore: score, Status: "Good"})
			c.SetDeviceState("fan", on)
		}
	}()

	// 读者：任何时刻 Reading 自身字段必须一致
	for n := 0; n < 4; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				reading, _ := c.Get()
				if reading.Status != "" {
					assert.Equal(t, "Good", reading.Status)
					assert.Contains(t, []int{0, 100}, reading.ClassScore)
				}
			}
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(stop)
	wg.Wait()
}
