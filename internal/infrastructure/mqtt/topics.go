package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes. Every topic the core publishes or subscribes to lives
// under TopicPrefix.
const (
	// TopicPrefix is the root of the smart home topic tree.
	TopicPrefix = "smarthome"

	// TopicPrefixDevice is the base for device topics.
	TopicPrefixDevice = TopicPrefix + "/device"

	// TopicPrefixSchedule is the base for scheduler topics.
	TopicPrefixSchedule = TopicPrefix + "/schedule"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = TopicPrefix + "/system"
)

// Topics provides builders for smart home MQTT topics.
// Using these helpers keeps topic naming consistent across the codebase.
//
//	topics := mqtt.Topics{}
//	topics.ScheduleFired("DEV-7")
//	// Returns: "smarthome/schedule/fired/DEV-7"
type Topics struct{}

// =============================================================================
// Device Topics
// =============================================================================

// DeviceState returns the retained topic carrying a device's current state.
//
// Example: smarthome/device/state/DEV-3
func (Topics) DeviceState(serial string) string {
	return fmt.Sprintf("%s/state/%s", TopicPrefixDevice, serial)
}

// DeviceCommand returns the topic on which external clients send commands
// for a device.
//
// Example: smarthome/device/command/DEV-3
func (Topics) DeviceCommand(serial string) string {
	return fmt.Sprintf("%s/command/%s", TopicPrefixDevice, serial)
}

// =============================================================================
// Scheduler Topics
// =============================================================================

// ScheduleFired returns the topic for fire events of a device's scheduled
// operations, including entries dropped on restore.
//
// Example: smarthome/schedule/fired/DEV-7
func (Topics) ScheduleFired(serial string) string {
	return fmt.Sprintf("%s/fired/%s", TopicPrefixSchedule, serial)
}

// =============================================================================
// System Topics
// =============================================================================

// SystemStatus returns the retained topic for core online/offline status.
// The broker publishes the Last Will here if the core disappears.
//
// Example: smarthome/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// =============================================================================
// Wildcard Subscriptions
// =============================================================================

// AllDeviceCommands matches the command topic of every device.
//
// Pattern: smarthome/device/command/+
func (Topics) AllDeviceCommands() string {
	return TopicPrefixDevice + "/command/+"
}

// AllScheduleFired matches fire events for every device.
//
// Pattern: smarthome/schedule/fired/+
func (Topics) AllScheduleFired() string {
	return TopicPrefixSchedule + "/fired/+"
}

// AllTopics matches every smart home topic.
//
// Pattern: smarthome/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}

// SerialFromTopic returns the last topic level, which is the device serial
// for device and schedule topics. It returns "" when the topic has no
// non-empty final level.
func SerialFromTopic(topic string) string {
	i := strings.LastIndexByte(topic, '/')
	if i < 0 || i == len(topic)-1 {
		return ""
	}
	return topic[i+1:]
}
