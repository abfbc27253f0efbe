package config

import (
	"os"
	"path/filepath"
	"sync"
)

// EnvHome points the suite at an explicit home directory.
const EnvHome = "PARABANK_E2E_HOME"

// A home directory holds everything a run leaves behind:
//
//	<home>/reports/<timestamp>/   report.json, report.html, allure-results
//	<home>/logs/parabank-e2e.log  rotated across runs
//
// Installed releases live in <home>/bin, so the home is found from the
// binary; a checkout run with `go run` writes next to the sources.
var (
	homeOnce sync.Once
	homeDir  string
)

// GetHome returns the home directory, resolved once per process from
// $PARABANK_E2E_HOME, then the install layout, then the working directory.
func GetHome() string {
	homeOnce.Do(func() {
		homeDir = locateHome(os.Getenv(EnvHome), os.Executable, os.Getwd)
	})
	return homeDir
}

// GetReportsDir returns the parent of the per-run report directories.
func GetReportsDir() string {
	return filepath.Join(GetHome(), "reports")
}

// GetLogFile returns the log file for name.
func GetLogFile(name string) string {
	return filepath.Join(GetHome(), "logs", name+".log")
}

// ResetHome forgets the resolved home. Tests call it after changing
// $PARABANK_E2E_HOME.
func ResetHome() {
	homeOnce = sync.Once{}
	homeDir = ""
}

func locateHome(env string, executable, workdir func() (string, error)) string {
	if env != "" {
		return env
	}
	if exe, err := executable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
		if dir := filepath.Dir(exe); filepath.Base(dir) == "bin" {
			return filepath.Dir(dir)
		}
	}
	if wd, err := workdir(); err == nil {
		return wd
	}
	return "."
}
