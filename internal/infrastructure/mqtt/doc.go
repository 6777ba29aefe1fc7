// Package mqtt provides MQTT connectivity for the smart home core.
//
// The core publishes to the broker and listens for device commands:
//
//	smarthome/schedule/fired/{serial}   fire events (not retained)
//	smarthome/device/state/{serial}     device state (retained)
//	smarthome/device/command/{serial}   commands from other clients
//	smarthome/system/status             online/offline, with LWT (retained)
//
// The client reconnects with exponential backoff and replays its
// subscriptions after every reconnect. MQTT is optional; when disabled the
// core runs without it.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishJSON(mqtt.Topics{}.ScheduleFired("DEV-7"), event, false)
//
// # Thread Safety
//
// All Client methods are safe for concurrent use.
package mqtt
