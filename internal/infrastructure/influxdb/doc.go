// Package influxdb exports sensor readings to InfluxDB v2.
//
// It wraps the official influxdb-client-go v2 library. Every entry update
// becomes one sensor_reading point tagged with device_id and type; the
// fields are the numeric and boolean values of the entry's state plus
// battery_level, active and fault.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteReading(influxdb.Reading{
//	    DeviceID: "projects/p1/devices/d1",
//	    Type:     "temperature",
//	    Fields:   map[string]any{"currentTemperature": 21.5},
//	})
//
// Writes are non-blocking and batched according to batch_size and
// flush_interval. Async write errors are delivered to the SetOnError callback.
package influxdb
