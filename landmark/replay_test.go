package landmark

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/DaniruKun/repcounter/pose"
)

func TestReadReplay(t *testing.T) {
	data := `{"seq":1,"pose":[{"x":0.1,"y":0.2,"z":0,"visibility":0.9}]}

{"seq":3,"pose":null,"inference_ms":4}
`
	rp, err := ReadReplay(strings.NewReader(data))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rp.Len() != 2 {
		t.Fatalf("got %d records, want 2", rp.Len())
	}

	res, err := rp.Detect(context.Background(), testFrame(1))
	if err != nil {
		t.Fatal(err)
	}
	set, ok := res.Pose.Get()
	if !ok || len(set) != 1 || set[0].Visibility != 0.9 {
		t.Errorf("unexpected pose %v", set)
	}

	res, _ = rp.Detect(context.Background(), testFrame(3))
	if res.Pose.IsPresent() {
		t.Error("null pose should be absent")
	}

	res, _ = rp.Detect(context.Background(), testFrame(2))
	if !res.Miss() {
		t.Error("unrecorded frame should be a miss")
	}
}

func TestReadReplayBadLine(t *testing.T) {
	if _, err := ReadReplay(strings.NewReader("{\"seq\":1}\nnot json\n")); err == nil {
		t.Error("expected parse error")
	}
}

func TestRecorderFeedsReplay(t *testing.T) {
	src, err := ReadReplay(strings.NewReader(`{"seq":1,"pose":[{"x":0.5,"y":0.25,"z":0,"visibility":1}],"left_hand":[{"x":0.1,"y":0.1,"z":0,"visibility":0}]}`))
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	rec := NewRecorder(src, &buf)
	for seq := uint64(1); seq <= 2; seq++ {
		if _, err := rec.Detect(context.Background(), testFrame(seq)); err != nil {
			t.Fatal(err)
		}
	}
	if err := rec.Close(); err != nil {
		t.Fatal(err)
	}

	rp, err := ReadReplay(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if rp.Len() != 2 {
		t.Fatalf("got %d records, want 2", rp.Len())
	}

	res, _ := rp.Detect(context.Background(), testFrame(1))
	set, _ := res.Pose.Get()
	if len(set) != 1 || set[0] != (pose.Point{X: 0.5, Y: 0.25, Visibility: 1}) {
		t.Errorf("unexpected pose %v", set)
	}
	if !res.LeftHand.IsPresent() || res.RightHand.IsPresent() {
		t.Error("hand presence not preserved")
	}

	res, _ = rp.Detect(context.Background(), testFrame(2))
	if res.Pose.IsPresent() {
		t.Error("miss recorded as a detection")
	}
}
