package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func withHome(t *testing.T, dir string) {
	t.Helper()
	ResetHome()
	t.Setenv(EnvHome, dir)
	t.Cleanup(ResetHome)
}

func TestGetHome_EnvVar(t *testing.T) {
	withHome(t, "/custom/path")

	if got := GetHome(); got != "/custom/path" {
		t.Errorf("GetHome() = %q, want %q", got, "/custom/path")
	}
}

func TestGetHome_Cached(t *testing.T) {
	withHome(t, "/first")
	first := GetHome()

	t.Setenv(EnvHome, "/second")
	if second := GetHome(); first != second {
		t.Errorf("GetHome() not cached: first=%q, second=%q", first, second)
	}
}

func TestHomeLayout(t *testing.T) {
	withHome(t, "/test/home")

	if got, want := GetReportsDir(), filepath.Join("/test/home", "reports"); got != want {
		t.Errorf("GetReportsDir() = %q, want %q", got, want)
	}
	if got, want := GetLogFile("parabank-e2e"), filepath.Join("/test/home", "logs", "parabank-e2e.log"); got != want {
		t.Errorf("GetLogFile() = %q, want %q", got, want)
	}
}

func TestLocateHome(t *testing.T) {
	install := t.TempDir()
	binDir := filepath.Join(install, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatal(err)
	}
	installed := filepath.Join(binDir, "parabank-e2e")
	if err := os.WriteFile(installed, nil, 0o755); err != nil {
		t.Fatal(err)
	}
	// resolve symlinks in the expectation too (macOS temp dirs)
	wantInstall, err := filepath.EvalSymlinks(install)
	if err != nil {
		t.Fatal(err)
	}

	exe := func(path string) func() (string, error) {
		return func() (string, error) { return path, nil }
	}
	noExe := func() (string, error) { return "", errors.New("unknown") }
	wd := func() (string, error) { return "/src/parabank-e2e", nil }
	noWd := func() (string, error) { return "", errors.New("removed") }

	tests := []struct {
		name       string
		env        string
		executable func() (string, error)
		workdir    func() (string, error)
		want       string
	}{
		{"env wins", "/explicit", exe(installed), wd, "/explicit"},
		{"installed binary", "", exe(installed), wd, wantInstall},
		{"go run binary", "", exe("/tmp/go-build1/exe/parabank-e2e"), wd, "/src/parabank-e2e"},
		{"no executable", "", noExe, wd, "/src/parabank-e2e"},
		{"nothing known", "", noExe, noWd, "."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := locateHome(tt.env, tt.executable, tt.workdir); got != tt.want {
				t.Errorf("locateHome() = %q, want %q", got, tt.want)
			}
		})
	}
}
