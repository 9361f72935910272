package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementSensorReading is the measurement name for entry snapshots.
const MeasurementSensorReading = "sensor_reading"

// Reading is one exported snapshot of a sensor entry.
type Reading struct {
	DeviceID string
	Type     string
	Fields   map[string]any
	Time     time.Time
}

// WriteReading queues a sensor_reading point tagged with device_id and type.
// Readings without fields are dropped since InfluxDB rejects empty points.
func (c *Client) WriteReading(r Reading) {
	if len(r.Fields) == 0 {
		return
	}
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	c.WritePointWithTime(MeasurementSensorReading,
		map[string]string{
			"device_id": r.DeviceID,
			"type":      r.Type,
		},
		r.Fields,
		ts,
	)
}

// WritePoint writes a point stamped with the current time.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a point with an explicit timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
