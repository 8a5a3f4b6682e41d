package engine

import "testing"

func TestValidate(t *testing.T) {
	if err := Validate(); err != nil {
		t.Fatalf("profile registry failed selector validation: %v", err)
	}
}

func TestByName(t *testing.T) {
	got := ByName([]string{"google", "nope", "bing"})
	if len(got) != 2 {
		t.Fatalf("ByName = %d profiles, want 2", len(got))
	}
	if got[0].Name != "google" || got[1].Name != "bing" {
		t.Errorf("ByName order = [%s %s], want [google bing]", got[0].Name, got[1].Name)
	}
}

func TestProfileShape(t *testing.T) {
	for name, p := range Profiles {
		if p.BaseURL == "" || len(p.SearchBoxSelectors) == 0 || p.ResultContainer == "" {
			t.Errorf("profile %s is missing required fields", name)
		}
		if p.PageStep <= 0 || p.OffsetParam == "" {
			t.Errorf("profile %s has no pagination contract", name)
		}
	}
}
