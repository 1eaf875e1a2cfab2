package paths

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExpandTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"/abs/path", "/abs/path"},
		{"relative", "relative"},
		{"~", home},
		{"~/models", filepath.Join(home, "models")},
	}
	for _, tt := range tests {
		got, err := ExpandTilde(tt.in)
		if err != nil {
			t.Fatalf("ExpandTilde(%q) error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ExpandTilde(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBaseDirOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("GOCOACH_HOME", dir)

	got, err := BaseDir()
	if err != nil {
		t.Fatalf("BaseDir error: %v", err)
	}
	if got != dir {
		t.Errorf("BaseDir() = %q, want %q", got, dir)
	}

	models, err := WhisperModelsDir()
	if err != nil {
		t.Fatalf("WhisperModelsDir error: %v", err)
	}
	if want := filepath.Join(dir, "stt", "whisper"); models != want {
		t.Errorf("WhisperModelsDir() = %q, want %q", models, want)
	}
}

func TestConfigPathPrefersLocal(t *testing.T) {
	home := t.TempDir()
	t.Setenv("GOCOACH_HOME", home)

	work := t.TempDir()
	wd, _ := os.Getwd()
	if err := os.Chdir(work); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	defer os.Chdir(wd)

	// Nothing yet: valid empty result.
	got, err := ConfigPath()
	if err != nil || got != "" {
		t.Fatalf("ConfigPath() = %q, %v; want empty, nil", got, err)
	}

	global := filepath.Join(home, "gocoach.toml")
	if err := os.WriteFile(global, []byte("[session]\n"), 0600); err != nil {
		t.Fatal(err)
	}
	got, _ = ConfigPath()
	if got != global {
		t.Errorf("ConfigPath() = %q, want global %q", got, global)
	}

	if err := os.WriteFile(filepath.Join(work, "gocoach.json"), []byte("{}"), 0600); err != nil {
		t.Fatal(err)
	}
	got, _ = ConfigPath()
	if filepath.Base(got) != "gocoach.json" || filepath.Dir(got) == home {
		t.Errorf("ConfigPath() = %q, want local gocoach.json", got)
	}
}
