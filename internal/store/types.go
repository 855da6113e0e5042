package store

// Keys of the persisted local state layout.
const (
	KeyActionQueue = "offline_actions_queue"
	KeyDeviceID    = "device_id"
)
