package database

import (
	"context"
	"testing"
)

func TestSettingsRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.SetSetting(ctx, "notify.webhook_url", "https://hooks.test/a"); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if got, err := db.GetSetting(ctx, "notify.webhook_url"); err != nil || got != "https://hooks.test/a" {
		t.Fatalf("get = %q, %v", got, err)
	}

	// Setting the same key again replaces the value.
	if err := db.SetSetting(ctx, "notify.webhook_url", "https://hooks.test/b"); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if got, _ := db.GetSetting(ctx, "notify.webhook_url"); got != "https://hooks.test/b" {
		t.Errorf("get after upsert = %q, want the new value", got)
	}

	if got, err := db.GetSetting(ctx, "missing.key"); err != nil || got != "" {
		t.Errorf("missing key = %q, %v; want empty", got, err)
	}
}

func TestSettingsJSONRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	type weights struct {
		Cost    float64 `json:"cost"`
		Variety float64 `json:"variety"`
	}

	in := weights{Cost: 2.0, Variety: 0.5}
	if err := db.SetSettingJSON(ctx, "planner.custom_weights", in); err != nil {
		t.Fatalf("set json failed: %v", err)
	}

	var out weights
	if err := db.GetSettingJSON(ctx, "planner.custom_weights", &out); err != nil {
		t.Fatalf("get json failed: %v", err)
	}
	if out != in {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}

	// A missing key leaves the target untouched.
	var untouched weights
	if err := db.GetSettingJSON(ctx, "missing.key", &untouched); err != nil {
		t.Fatalf("get json on missing key failed: %v", err)
	}
	if untouched != (weights{}) {
		t.Errorf("missing key modified target: %+v", untouched)
	}
}

func TestSettingsListAndDelete(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	pairs := map[string]string{
		"schedule.optimize":     "0 2 * * *",
		"planner.auto_generate": "true",
	}
	for k, v := range pairs {
		if err := db.SetSetting(ctx, k, v); err != nil {
			t.Fatalf("set %s failed: %v", k, err)
		}
	}

	all, err := db.GetAllSettings(ctx)
	if err != nil {
		t.Fatalf("get all failed: %v", err)
	}
	for k, v := range pairs {
		if all[k] != v {
			t.Errorf("all[%s] = %q, want %q", k, all[k], v)
		}
	}

	if err := db.DeleteSetting(ctx, "planner.auto_generate"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if got, _ := db.GetSetting(ctx, "planner.auto_generate"); got != "" {
		t.Errorf("deleted key still returns %q", got)
	}

	// Deleting a missing key is a no-op.
	if err := db.DeleteSetting(ctx, "missing.key"); err != nil {
		t.Errorf("delete on missing key failed: %v", err)
	}
}
