package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestEventRoundTripKeepsType(t *testing.T) {
	e := New(OccupancyFinished, 4)
	e.Ticket = "AB12CD34"
	e.Amount = "1500"
	body, err := json.Marshal(e)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Type != OccupancyFinished || got.LotID != 4 || got.Ticket != "AB12CD34" {
		t.Fatalf("unexpected event %+v", got)
	}
	if _, err := time.Parse(time.RFC3339, got.Ts); err != nil {
		t.Fatalf("ts is not RFC3339: %q", got.Ts)
	}
}

func TestDecodeRejects(t *testing.T) {
	for _, body := range []string{`not json`, `{"lot_id": 1}`} {
		if _, err := Decode([]byte(body)); err == nil {
			t.Errorf("expected error for %s", body)
		}
	}
}

func TestEmitWithLogPublisher(t *testing.T) {
	Emit(context.Background(), LogPublisher{}, New(RatingChanged, 1))
	Emit(context.Background(), nil, New(RatingChanged, 1))
}
