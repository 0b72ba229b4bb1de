package feedmux

import (
	"encoding/json"
	"fmt"
	"log"
)

// CurrentState holds the latest config and status values received from the
// device and is intentionally package-level so admin routes or tests can
// inspect it.
var CurrentState map[string]any

// FrameSink receives raw frame lines for the processing pipeline.
type FrameSink func(line []byte)

// HandlePoseFrame forwards a frame line to the pipeline sink. Frames arrive
// at camera rate so they are not logged here.
func HandlePoseFrame(sink FrameSink, payload string) error {
	if sink == nil {
		return fmt.Errorf("no frame sink configured")
	}
	sink([]byte(payload))
	return nil
}

// HandleStatus records a device heartbeat into CurrentState.
func HandleStatus(payload string) error {
	return mergeState(payload, "Status Line")
}

// HandleConfigResponse records a config echo into CurrentState.
func HandleConfigResponse(payload string) error {
	return mergeState(payload, "Config Line")
}

func mergeState(payload, label string) error {
	var values map[string]any

	if err := json.Unmarshal([]byte(payload), &values); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %v", err)
	}

	// update the current state with the new values
	if CurrentState == nil {
		CurrentState = make(map[string]any)
	}
	for k, v := range values {
		CurrentState[k] = v
	}

	log.Printf("%s: %+v", label, payload)

	return nil
}

// HandleEvent classifies one line off the feed and dispatches it.
func HandleEvent(sink FrameSink, payload string) error {
	switch ClassifyPayload(payload) {
	case EventTypePoseFrame:
		if err := HandlePoseFrame(sink, payload); err != nil {
			return fmt.Errorf("failed to handle pose frame: %v", err)
		}
	case EventTypeStatus:
		if err := HandleStatus(payload); err != nil {
			return fmt.Errorf("failed to handle status event: %v", err)
		}
	case EventTypeConfig:
		if err := HandleConfigResponse(payload); err != nil {
			return fmt.Errorf("failed to handle config response: %v", err)
		}
	default:
		log.Printf("unknown event type: %s", payload)
	}
	return nil
}
