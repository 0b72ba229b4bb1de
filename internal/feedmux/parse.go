package feedmux

import "strings"

const (
	EventTypePoseFrame = "pose_frame"
	EventTypeStatus    = "status"
	EventTypeConfig    = "config"
	EventTypeUnknown   = "unknown"
)

// ClassifyPayload inspects a payload string and returns a simple event type
// token. The classification is intentionally conservative: anything carrying
// keypoints is a frame, device heartbeats are status, and other JSON is
// assumed to be a config echo.
func ClassifyPayload(payload string) string {
	if strings.Contains(payload, "keypoints") || strings.Contains(payload, "poses") {
		return EventTypePoseFrame
	}
	if strings.Contains(payload, "battery") || strings.Contains(payload, "uptime") {
		return EventTypeStatus
	}
	if strings.HasPrefix(payload, "{") {
		return EventTypeConfig
	}
	return EventTypeUnknown
}
