package bot

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStatusFileRoundTrip(t *testing.T) {
	s := NewStatusFile(filepath.Join(t.TempDir(), "saved_status.txt"))

	if v, completed, err := s.Value("Profile"); err != nil || v != "" || completed {
		t.Fatalf("empty file Value = (%q, %v, %v), want empty", v, completed, err)
	}

	if err := s.Set("Profile", "tanaris route"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set("Location", "un'goro"); err != nil {
		t.Fatalf("Set second key: %v", err)
	}

	v, completed, err := s.Value("Profile")
	if err != nil || v != "tanaris route" || completed {
		t.Fatalf("Value = (%q, %v, %v), want stored value uncompleted", v, completed, err)
	}
}

func TestStatusFileMarkCompleted(t *testing.T) {
	s := NewStatusFile(filepath.Join(t.TempDir(), "saved_status.txt"))

	if err := s.Set("Profile", "tanaris route"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.MarkCompleted("Profile"); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}

	v, completed, err := s.Value("Profile")
	if err != nil || v != "tanaris route" || !completed {
		t.Fatalf("Value after MarkCompleted = (%q, %v, %v)", v, completed, err)
	}

	// Marking twice must not stack markers.
	if err := s.MarkCompleted("Profile"); err != nil {
		t.Fatalf("second MarkCompleted: %v", err)
	}
	v, completed, _ = s.Value("Profile")
	if v != "tanaris route" || !completed {
		t.Fatalf("Value after double mark = (%q, %v)", v, completed)
	}
}

func TestStatusFileSetDropsCompletedMarker(t *testing.T) {
	s := NewStatusFile(filepath.Join(t.TempDir(), "saved_status.txt"))

	if err := s.Set("Profile", "tanaris route"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.MarkCompleted("Profile"); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	if err := s.Set("Profile", "un'goro route"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	v, completed, _ := s.Value("Profile")
	if v != "un'goro route" || completed {
		t.Fatalf("Value after overwrite = (%q, %v), want fresh uncompleted value", v, completed)
	}
}

func TestStatusFileToleratesForeignLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved_status.txt")
	raw := "garbage without separator\nProfile: tanaris route\n\n"
	if err := os.WriteFile(path, []byte(raw), 0644); err != nil {
		t.Fatal(err)
	}

	s := NewStatusFile(path)
	v, _, err := s.Value("Profile")
	if err != nil || v != "tanaris route" {
		t.Fatalf("Value = (%q, %v)", v, err)
	}
}

func TestNextInRotation(t *testing.T) {
	rotation := []string{"a", "b", "c"}

	tests := []struct {
		name    string
		current string
		want    string
	}{
		{"advance", "a", "b"},
		{"wrap", "c", "a"},
		{"unknown restarts", "zzz", "a"},
		{"empty current restarts", "", "a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NextInRotation(rotation, tt.current); got != tt.want {
				t.Errorf("NextInRotation(%q) = %q, want %q", tt.current, got, tt.want)
			}
		})
	}

	if got := NextInRotation(nil, "a"); got != "" {
		t.Errorf("empty rotation = %q, want empty", got)
	}
}
