package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementScheduleFires = "schedule_fires"
	MeasurementDeviceEnergy  = "device_energy"
)

// FireRecord is one scheduler fire, or one entry dropped on restore.
type FireRecord struct {
	DeviceSerial string
	Operation    string
	Outcome      string
	Recurring    bool
	Duration     time.Duration
	FiredAt      time.Time
}

// WriteScheduleFire records the outcome of a scheduled invocation.
//
//	client.WriteScheduleFire(influxdb.FireRecord{
//	    DeviceSerial: "DEV-7", Operation: "set_brightness",
//	    Outcome: "success", Duration: 3 * time.Millisecond, FiredAt: now,
//	})
func (c *Client) WriteScheduleFire(rec FireRecord) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(firePoint(rec))
}

// WriteDeviceEnergy records a device's reported consumption and power state.
func (c *Client) WriteDeviceEnergy(serial string, kwh float64, on bool, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(energyPoint(serial, kwh, on, at))
}

// WritePoint writes a custom point stamped with the current time.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}

func firePoint(rec FireRecord) *write.Point {
	at := rec.FiredAt
	if at.IsZero() {
		at = time.Now()
	}
	return write.NewPoint(
		MeasurementScheduleFires,
		map[string]string{
			"device":    rec.DeviceSerial,
			"operation": rec.Operation,
			"outcome":   rec.Outcome,
		},
		map[string]any{
			"duration_ms": float64(rec.Duration) / float64(time.Millisecond),
			"success":     rec.Outcome == "success",
			"recurring":   rec.Recurring,
		},
		at,
	)
}

func energyPoint(serial string, kwh float64, on bool, at time.Time) *write.Point {
	if at.IsZero() {
		at = time.Now()
	}
	return write.NewPoint(
		MeasurementDeviceEnergy,
		map[string]string{"device": serial},
		map[string]any{"kwh": kwh, "on": on},
		at,
	)
}
