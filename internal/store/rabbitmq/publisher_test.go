package rabbitmq

import (
	"encoding/json"
	"testing"

	"github.com/suPer8Hu/leadchat/internal/widget"
	"gorm.io/datatypes"
)

func TestDecodeEvent(t *testing.T) {
	conv := "c1"
	body, err := json.Marshal(&widget.Event{
		ConversationID: &conv,
		EventType:      widget.EventFormSubmit,
		EventDetails:   datatypes.JSON(`{"form_type":"lead_capture_sample"}`),
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	e, err := DecodeEvent(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if e.ConversationID == nil || *e.ConversationID != "c1" || e.EventType != widget.EventFormSubmit {
		t.Fatalf("unexpected event %+v", e)
	}
	if string(e.EventDetails) != `{"form_type":"lead_capture_sample"}` {
		t.Fatalf("unexpected details %s", e.EventDetails)
	}

	for _, bad := range []string{`{`, `{"threadId":"t"}`} {
		if _, err := DecodeEvent([]byte(bad)); err == nil {
			t.Fatalf("expected error for %s", bad)
		}
	}
}
