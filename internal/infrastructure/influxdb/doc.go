// Package influxdb records camera telemetry (battery level, motion and
// connection transitions) to InfluxDB v2.
//
// Writes are non-blocking and batched by influxdb-client-go; failures are
// reported asynchronously through SetOnError.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.SetOnError(func(err error) { log.Warn("influx write", "error", err) })
//	client.RecordBattery("Garage", 87)
//
// Points are tagged with the neolink camera name and stored in the
// camera_battery, camera_motion and camera_connection measurements.
package influxdb
