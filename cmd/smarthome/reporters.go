package main

import (
	"time"

	"github.com/nerrad567/smarthome-core/internal/device"
	"github.com/nerrad567/smarthome-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/smarthome-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/smarthome-core/internal/schedule"
)

// eventLogger is the part of logging.Logger the adapters use.
type eventLogger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Debug(msg string, args ...any)
}

// jsonPublisher is satisfied by *mqtt.Client.
type jsonPublisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

// pointWriter is satisfied by *influxdb.Client.
type pointWriter interface {
	WriteScheduleFire(rec influxdb.FireRecord)
	WriteDeviceEnergy(serial string, kwh float64, on bool, at time.Time)
}

// logReporter logs every scheduler event: successes at info, failures and
// dropped entries at warn.
func logReporter(log eventLogger) schedule.Reporter {
	return schedule.ReporterFunc(func(ev schedule.Event) {
		args := []any{
			"id", ev.DescriptorID,
			"device", ev.DeviceSerial,
			"operation", ev.Operation,
			"outcome", ev.Outcome,
			"duration", ev.Duration,
		}
		if !ev.NextFire.IsZero() {
			args = append(args, "next_fire", ev.NextFire)
		}
		if ev.Outcome == schedule.OutcomeSuccess {
			log.Info("scheduled operation fired", args...)
			return
		}
		log.Warn("scheduled operation failed", append(args, "error", ev.ErrorText())...)
	})
}

// fireMessage is the MQTT payload for a scheduler event.
type fireMessage struct {
	schedule.Event
	Error string `json:"error,omitempty"`
}

// firePublisher publishes scheduler events to Topics.ScheduleFired.
type firePublisher struct {
	pub jsonPublisher
	log eventLogger
}

func (p firePublisher) Report(ev schedule.Event) {
	topic := mqtt.Topics{}.ScheduleFired(ev.DeviceSerial)
	if err := p.pub.PublishJSON(topic, fireMessage{Event: ev, Error: ev.ErrorText()}, false); err != nil {
		p.log.Debug("publishing schedule event", "topic", topic, "error", err)
	}
}

// statePublisher publishes each changed device as a retained state message.
type statePublisher struct {
	pub jsonPublisher
	log eventLogger
}

func (p statePublisher) DeviceStateChanged(d device.Device) {
	topic := mqtt.Topics{}.DeviceState(d.Serial)
	if err := p.pub.PublishJSON(topic, d, true); err != nil {
		p.log.Debug("publishing device state", "topic", topic, "error", err)
	}
}

// fireRecorder writes scheduler events to InfluxDB.
type fireRecorder struct {
	w pointWriter
}

func (r fireRecorder) Report(ev schedule.Event) {
	r.w.WriteScheduleFire(influxdb.FireRecord{
		DeviceSerial: ev.DeviceSerial,
		Operation:    ev.Operation,
		Outcome:      string(ev.Outcome),
		Recurring:    ev.Recurring,
		Duration:     ev.Duration,
		FiredAt:      ev.FiredAt,
	})
}

// energyRecorder writes device consumption to InfluxDB on every change.
type energyRecorder struct {
	w pointWriter
}

func (r energyRecorder) DeviceStateChanged(d device.Device) {
	at := d.UpdatedAt
	if at.IsZero() {
		at = time.Now()
	}
	r.w.WriteDeviceEnergy(d.Serial, d.EnergyConsumption, d.IsOn, at)
}

// stateFanout forwards device changes to several observers in order.
type stateFanout []device.StateObserver

func (f stateFanout) DeviceStateChanged(d device.Device) {
	for _, o := range f {
		o.DeviceStateChanged(d)
	}
}
