package feedmux

import (
	"testing"
)

func resetCurrentState() {
	CurrentState = nil
}

func TestHandleEvent_PoseFrameForwardedToSink(t *testing.T) {
	defer resetCurrentState()

	var got []byte
	sink := func(line []byte) { got = line }

	payload := `{"ts":1,"seq":2,"poses":[{"score":0.9,"keypoints":[]}]}`
	if err := HandleEvent(sink, payload); err != nil {
		t.Fatalf("HandleEvent returned error: %v", err)
	}

	if string(got) != payload {
		t.Errorf("sink received %q, want %q", got, payload)
	}
}

func TestHandleEvent_PoseFrameWithoutSink(t *testing.T) {
	defer resetCurrentState()

	payload := `{"poses":[]}`
	if err := HandleEvent(nil, payload); err == nil {
		t.Error("expected error when no sink configured")
	}
}

func TestHandleEvent_StatusUpdatesCurrentState(t *testing.T) {
	defer resetCurrentState()

	if err := HandleEvent(nil, `{"battery":0.75,"uptime":3600}`); err != nil {
		t.Fatalf("HandleEvent returned error: %v", err)
	}

	if CurrentState == nil {
		t.Fatal("CurrentState not initialized")
	}
	if CurrentState["battery"] != 0.75 {
		t.Errorf("battery = %v, want 0.75", CurrentState["battery"])
	}
}

func TestHandleEvent_ConfigMergesIntoCurrentState(t *testing.T) {
	defer resetCurrentState()

	if err := HandleEvent(nil, `{"rate":30}`); err != nil {
		t.Fatalf("HandleEvent returned error: %v", err)
	}
	if err := HandleEvent(nil, `{"format":"json"}`); err != nil {
		t.Fatalf("HandleEvent returned error: %v", err)
	}

	// Successive responses merge rather than replace.
	if CurrentState["rate"] != float64(30) {
		t.Errorf("rate = %v, want 30", CurrentState["rate"])
	}
	if CurrentState["format"] != "json" {
		t.Errorf("format = %v, want json", CurrentState["format"])
	}
}

func TestHandleEvent_MalformedStatus(t *testing.T) {
	defer resetCurrentState()

	if err := HandleEvent(nil, `{"battery": not-json`); err == nil {
		t.Error("expected error for malformed status JSON")
	}
}

func TestHandleEvent_UnknownIsIgnored(t *testing.T) {
	defer resetCurrentState()

	if err := HandleEvent(nil, "posefeed v2.1 ready"); err != nil {
		t.Errorf("unknown lines should not error, got %v", err)
	}
}
