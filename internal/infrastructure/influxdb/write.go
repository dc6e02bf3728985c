package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementBattery    = "camera_battery"
	MeasurementMotion     = "camera_motion"
	MeasurementConnection = "camera_connection"

	tagCamera = "camera"
)

// RecordBattery writes a battery level reading for a camera.
//
//	client.RecordBattery("Garage", 87)
func (c *Client) RecordBattery(camera string, level float64) {
	c.WritePoint(MeasurementBattery, map[string]string{tagCamera: camera},
		map[string]any{"level": level})
}

// RecordMotion writes a motion transition.
func (c *Client) RecordMotion(camera string, active bool) {
	c.WritePoint(MeasurementMotion, map[string]string{tagCamera: camera},
		map[string]any{"active": active})
}

// RecordConnection writes a camera connection transition as reported by
// neolink's status topic.
func (c *Client) RecordConnection(camera string, connected bool) {
	c.WritePoint(MeasurementConnection, map[string]string{tagCamera: camera},
		map[string]any{"connected": connected})
}

// WritePoint writes a point stamped now. Dropped when not connected.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePointWithTime(measurement, tags, fields, c.now())
}

// WritePointWithTime writes a point with an explicit timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, ts))
}
