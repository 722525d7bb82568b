//go:build windows

package hlog

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"golang.org/x/sys/windows/svc"
	"golang.org/x/sys/windows/svc/eventlog"
)

const eventSource = "Fermion"

var debugLog *eventlog.Log

func init() {
	if err := eventlog.InstallAsEventCreate(eventSource, eventlog.Info|eventlog.Warning|eventlog.Error); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to install event source: %v\n", err)
	}
	if l, err := eventlog.Open(eventSource); err == nil {
		debugLog = l
	}
}

func debugInit(msg string) {
	if debugLog != nil {
		debugLog.Info(1, msg)
		return
	}
	fmt.Fprintln(os.Stderr, msg)
}

func IsTerminal() bool {
	if isService, err := svc.IsWindowsService(); err == nil && isService {
		return false
	}
	return isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
}

func getLogDir() string {
	if isService, _ := svc.IsWindowsService(); isService {
		return filepath.Join(filepath.VolumeName(os.Getenv("SystemDrive")), "ProgramData", "Fermion", "logs")
	}
	appData := os.Getenv("LOCALAPPDATA")
	if appData == "" {
		appData = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Local")
	}
	return filepath.Join(appData, "Fermion", "logs")
}
