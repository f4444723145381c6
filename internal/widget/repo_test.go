package widget

import (
	"context"
	"errors"
	"testing"

	"github.com/suPer8Hu/leadchat/internal/db"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.Open("sqlite:file::memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

func TestRepo_Config(t *testing.T) {
	ctx := context.Background()
	r := NewRepo(openTestDB(t))

	if _, err := r.GetConfig(ctx, "default"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := r.SaveConfig(ctx, &Configuration{Identifier: "default", ThemeColor: "#000000", InitialMessage: "Hi"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := r.SaveConfig(ctx, &Configuration{Identifier: "default", ThemeColor: "#123456", InitialMessage: "Hello", RequireEmailFirst: true}); err != nil {
		t.Fatalf("save again: %v", err)
	}

	cfg, err := r.GetConfig(ctx, " default ")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if cfg.ThemeColor != "#123456" || cfg.InitialMessage != "Hello" || !cfg.RequireEmailFirst {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestRepo_Events(t *testing.T) {
	ctx := context.Background()
	r := NewRepo(openTestDB(t))

	conv := "c1"
	for _, e := range []*Event{
		{ConversationID: &conv, EventType: EventFlowStart, EventDetails: datatypes.JSON(`{"flow":"callback"}`)},
		{ConversationID: &conv, EventType: EventButtonClick},
		{EventType: EventButtonClick},
	} {
		if err := r.InsertEvent(ctx, e); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	got, err := r.ListEvents(ctx, EventFilter{ConversationID: "c1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].EventType != EventButtonClick {
		t.Fatalf("unexpected events %+v", got)
	}

	got, _ = r.ListEvents(ctx, EventFilter{EventType: EventButtonClick, Limit: 1})
	if len(got) != 1 || got[0].ConversationID != nil {
		t.Fatalf("expected the latest anonymous click, got %+v", got)
	}
}
