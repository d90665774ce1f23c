package storage

import (
	"testing"

	"cgr/internal/config"
	"cgr/internal/domain"
)

func TestJSONStorage_SaveLoad(t *testing.T) {
	cfg := config.New()
	cfg.ProjectPath = t.TempDir()
	st := NewJSONStorage(cfg)

	if _, err := st.Load(); err == nil {
		t.Fatal("expected error loading before any save")
	}

	out := &domain.RunOutput{
		Meta: domain.RunMeta{
			RunID:      "01HZZZ",
			TotalCases: 3,
			Counts:     map[domain.Status]int{domain.StatusPassed: 2, domain.StatusError: 1},
		},
		Details: []domain.Failure{{CaseID: "m::test_a", Name: "test_a", Phase: domain.PhaseTeardown, Status: domain.StatusError}},
	}
	if err := st.Save(out); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := st.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Meta.RunID != "01HZZZ" || loaded.Meta.Counts[domain.StatusError] != 1 {
		t.Errorf("unexpected meta %+v", loaded.Meta)
	}
	if len(loaded.Details) != 1 || loaded.Details[0].Status != domain.StatusError {
		t.Errorf("unexpected details %+v", loaded.Details)
	}

	loaded.Details[0].Resolved = true
	if err := st.Save(loaded); err != nil {
		t.Fatalf("save resolved: %v", err)
	}
	again, err := st.Load()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !again.Details[0].Resolved {
		t.Error("expected resolved flag to persist")
	}
}
