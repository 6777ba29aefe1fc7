// Package influxdb records scheduler activity and device energy readings
// in InfluxDB v2.
//
// Each fire of a scheduled operation becomes a point in the
// "schedule_fires" measurement, tagged by device, operation and outcome,
// with the invocation duration as a field. Device energy reports go to
// "device_energy".
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without time-series output
//	}
//	defer client.Close()
//
//	client.WriteScheduleFire(influxdb.FireRecord{...})
//
// Writes are non-blocking and batched according to batch_size and
// flush_interval. Batch failures are delivered to the SetOnError callback.
package influxdb
