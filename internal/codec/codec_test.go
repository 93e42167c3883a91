package codec

import (
	"testing"
	"time"

	"github.com/nguyenminhquan-80/CLASSGUARD-PRO/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeReading_AllFields(t *testing.T) {
	receivedAt := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	payload := []byte(`{
		"device_id": "esp32-01",
		"temperature": 26.5,
		"humidity": 61.2,
		"co2": 820,
		"light": 412,
		"noise": 55.3,
		"aqi": 42,
		"class_score": 85,
		"status": "Good",
		"timestamp": "2025-03-10T07:59:30Z"
	}`)

	reading, err := DecodeReading(payload, receivedAt)
	require.NoError(t, err)

	assert.Equal(t, "esp32-01", reading.DeviceID)
	require.NotNil(t, reading.Temperature)
	assert.Equal(t, 26.5, *reading.Temperature)
	require.NotNil(t, reading.Humidity)
	assert.Equal(t, 61.2, *reading.Humidity)
	require.NotNil(t, reading.CO2)
	assert.Equal(t, 820.0, *reading.CO2)
	require.NotNil(t, reading.Light)
	assert.Equal(t, 412.0, *reading.Light)
	require.NotNil(t, reading.Noise)
	assert.Equal(t, 55.3, *reading.Noise)
	require.NotNil(t, reading.AQI)
	assert.Equal(t, 42.0, *reading.AQI)
	assert.Equal(t, 85, reading.ClassScore)
	assert.Equal(t, "Good", reading.Status)
	assert.Equal(t, time.Date(2025, 3, 10, 7, 59, 30, 0, time.UTC), reading.Timestamp)
	assert.Equal(t, receivedAt, reading.ReceivedAt)
}

func TestDecodeReading_AbsentChannelsStayAbsent(t *testing.T) {
	receivedAt := time.Now()
	payload := []byte(`{"temperature": 22.0}`)

	reading, err := DecodeReading(payload, receivedAt)
	require.NoError(t, err)

	require.NotNil(t, reading.Temperature)
	assert.Nil(t, reading.Humidity)
	assert.Nil(t, reading.CO2)
	assert.Nil(t, reading.Light)
	assert.Nil(t, reading.Noise)
	assert.Nil(t, reading.AQI)
	assert.Equal(t, 0, reading.ClassScore)
	assert.Equal(t, "Unknown", reading.Status)
}

func TestDecodeReading_DefaultTimestampIsReceiptTime(t *testing.T) {
	receivedAt := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	reading, err := DecodeReading([]byte(`{"co2": 900}`), receivedAt)
	require.NoError(t, err)

	assert.Equal(t, receivedAt, reading.Timestamp)
	assert.Equal(t, receivedAt, reading.ReceivedAt)
}

func TestDecodeReading_TimestampWithoutTimezone(t *testing.T) {
	receivedAt := time.Now()

	reading, err := DecodeReading([]byte(`{"timestamp": "2025-03-10T07:30:00"}`), receivedAt)
	require.NoError(t, err)

	assert.Equal(t, 2025, reading.Timestamp.Year())
	assert.Equal(t, 7, reading.Timestamp.Hour())
}

func TestDecodeReading_UnknownFieldsIgnored(t *testing.T) {
	reading, err := DecodeReading([]byte(`{"temperature": 21.0, "firmware": "v2", "rssi": -60}`), time.Now())
	require.NoError(t, err)
	require.NotNil(t, reading.Temperature)
	assert.Equal(t, 21.0, *reading.Temperature)
}

func TestDecodeReading_MalformedPayload(t *testing.T) {
	_, err := DecodeReading([]byte(`{not json`), time.Now())
	require.Error(t, err)

	var decodeErr *models.DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, models.MalformedPayload, decodeErr.Kind)
}

func TestDecodeReading_NotAnObject(t *testing.T) {
	_, err := DecodeReading([]byte(`[1, 2, 3]`), time.Now())
	require.Error(t, err)

	var decodeErr *models.DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, models.MissingRequiredField, decodeErr.Kind)
}

func TestDecodeAck(t *testing.T) {
	ack, ok := DecodeAck([]byte(`{"ack": {"fan": true, "buzzer": false}}`))
	require.True(t, ok)
	assert.Equal(t, map[string]bool{"fan": true, "buzzer": false}, ack.States)

	_, ok = DecodeAck([]byte(`{"temperature": 22.0}`))
	assert.False(t, ok)

	_, ok = DecodeAck([]byte(`not json`))
	assert.False(t, ok)
}

func TestEncodeCommand(t *testing.T) {
	cmd := models.ControlCommand{Device: "fan", State: true}

	payload, err := EncodeCommand(cmd)
	require.NoError(t, err)
	assert.JSONEq(t, `{"fan": true}`, string(payload))

	// 输出确定：同一指令编码两次结果一致
	payload2, err := EncodeCommand(cmd)
	require.NoError(t, err)
	assert.Equal(t, payload, payload2)
}

func TestReadingRoundTrip(t *testing.T) {
	temp := 23.4
	co2 := 1050.0
	original := models.Reading{
		DeviceID:    "esp32-01",
		Temperature: &temp,
		CO2:         &co2,
		ClassScore:  60,
		Status:      "Moderate",
		Timestamp:   time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
	}

	payload := []byte(`{
		"device_id": "esp32-01",
		"temperature": 23.4,
		"co2": 1050,
		"class_score": 60,
		"status": "Moderate",
		"timestamp": "2025-03-10T09:00:00Z"
	}`)

	decoded, err := DecodeReading(payload, time.Now())
	require.NoError(t, err)

	assert.Equal(t, original.DeviceID, decoded.DeviceID)
	assert.Equal(t, *original.Temperature, *decoded.Temperature)
	assert.Equal(t, *original.CO2, *decoded.CO2)
	assert.Nil(t, decoded.Humidity)
	assert.Nil(t, decoded.Noise)
	assert.Equal(t, original.ClassScore, decoded.ClassScore)
	assert.Equal(t, original.Status, decoded.Status)
	assert.True(t, original.Timestamp.Equal(decoded.Timestamp))
}
