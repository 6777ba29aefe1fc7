package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/smarthome-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/smarthome-core/internal/schedule"
)

// commandTimeout bounds a single MQTT-triggered invocation or registration.
const commandTimeout = 10 * time.Second

var (
	errMissingSerial    = errors.New("command topic has no device serial")
	errMissingOperation = errors.New("command has no operation")
)

// commandMessage is the payload accepted on Topics.DeviceCommand.
//
//	{"operation": "set_brightness", "arguments": [40]}
//	{"operation": "turn_on", "schedule": "07:30", "recurring": true}
//
// Without a schedule the operation runs immediately.
type commandMessage struct {
	Operation string `json:"operation"`
	Arguments []any  `json:"arguments"`
	Schedule  string `json:"schedule,omitempty"`
	Recurring bool   `json:"recurring,omitempty"`
}

type deviceInvoker interface {
	Invoke(ctx context.Context, serial, op string, args []any) (any, error)
}

type operationScheduler interface {
	Schedule(ctx context.Context, serial, op string, args []any, sched schedule.Schedule, recurring bool) (schedule.Handle, error)
}

// commandHandler runs or schedules operations received over MQTT.
type commandHandler struct {
	devices   deviceInvoker
	scheduler operationScheduler
	log       eventLogger
}

// handle is an mqtt.MessageHandler. Returned errors are logged by the client.
func (h *commandHandler) handle(topic string, payload []byte) error {
	serial := mqtt.SerialFromTopic(topic)
	if serial == "" {
		return errMissingSerial
	}

	var msg commandMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decoding command for %s: %w", serial, err)
	}
	if msg.Operation == "" {
		return fmt.Errorf("%s: %w", serial, errMissingOperation)
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if msg.Schedule == "" {
		if _, err := h.devices.Invoke(ctx, serial, msg.Operation, msg.Arguments); err != nil {
			return fmt.Errorf("invoking %s on %s: %w", msg.Operation, serial, err)
		}
		h.log.Info("device command applied", "device", serial, "operation", msg.Operation)
		return nil
	}

	sched, err := schedule.Parse(msg.Schedule)
	if err != nil {
		return err
	}
	id, err := h.scheduler.Schedule(ctx, serial, msg.Operation, msg.Arguments, sched, msg.Recurring)
	if err != nil {
		return fmt.Errorf("scheduling %s on %s: %w", msg.Operation, serial, err)
	}
	h.log.Info("device command scheduled",
		"id", id.String(),
		"device", serial,
		"operation", msg.Operation,
		"schedule", sched.String(),
		"recurring", msg.Recurring,
	)
	return nil
}
