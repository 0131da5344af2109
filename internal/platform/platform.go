// Package platform detects the host flavour and filesystem quirks that
// affect snapshot watching and clipboard access.
package platform

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

// Platform is the detected host.
type Platform string

const (
	PlatformMacOS   Platform = "macos"
	PlatformLinux   Platform = "linux"
	PlatformWSL1    Platform = "wsl1"
	PlatformWSL2    Platform = "wsl2"
	PlatformWindows Platform = "windows"
	PlatformUnknown Platform = "unknown"
)

var (
	detectOnce sync.Once
	detected   Platform
)

// Overridable for tests.
var (
	procVersionPath = "/proc/version"
	procMountsPath  = "/proc/mounts"
)

// Detect returns the current platform. The result is cached.
func Detect() Platform {
	detectOnce.Do(func() { detected = detect(runtime.GOOS) })
	return detected
}

func detect(goos string) Platform {
	switch goos {
	case "darwin":
		return PlatformMacOS
	case "windows":
		return PlatformWindows
	case "linux":
		return detectLinux()
	default:
		return PlatformUnknown
	}
}

func detectLinux() Platform {
	version, _ := os.ReadFile(procVersionPath)
	v := string(version)
	wsl := os.Getenv("WSL_DISTRO_NAME") != "" || strings.Contains(strings.ToLower(v), "microsoft")
	if !wsl {
		return PlatformLinux
	}
	if strings.Contains(v, "microsoft-standard") {
		return PlatformWSL2
	}
	if _, err := os.Stat("/run/WSL"); err == nil {
		return PlatformWSL2
	}
	return PlatformWSL1
}

// IsWSL reports whether we run under either WSL version.
func IsWSL() bool {
	p := Detect()
	return p == PlatformWSL1 || p == PlatformWSL2
}

func (p Platform) String() string {
	switch p {
	case PlatformMacOS:
		return "macOS"
	case PlatformLinux:
		return "Linux"
	case PlatformWSL1:
		return "WSL1"
	case PlatformWSL2:
		return "WSL2"
	case PlatformWindows:
		return "Windows"
	default:
		return "Unknown"
	}
}

// WatchWarning returns a message when path lives on a filesystem where
// fsnotify events are unreliable (9p, NFS, SMB, SSHFS), or "".
func WatchWarning(path string) string {
	if runtime.GOOS != "linux" {
		return ""
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return ""
	}
	mounts, err := os.ReadFile(procMountsPath)
	if err != nil {
		return ""
	}
	return watchWarning(abs, string(mounts))
}

func watchWarning(abs, mounts string) string {
	var mountPoint, fsType string
	for _, line := range strings.Split(mounts, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		if within(abs, fields[1]) && len(fields[1]) > len(mountPoint) {
			mountPoint, fsType = fields[1], fields[2]
		}
	}

	switch {
	case fsType == "9p":
		return "snapshot is on a 9p mount (Windows filesystem under WSL2): changes may go unnoticed, rerun scan to refresh"
	case fsType == "nfs" || fsType == "nfs4":
		return "snapshot is on an NFS mount: change notifications may be unreliable"
	case fsType == "cifs" || fsType == "smbfs":
		return "snapshot is on a CIFS/SMB mount: change notifications may be unreliable"
	case strings.HasPrefix(fsType, "fuse.sshfs"):
		return "snapshot is on an SSHFS mount: changes may go unnoticed, rerun scan to refresh"
	}
	return ""
}

func within(path, mountPoint string) bool {
	if mountPoint == "/" {
		return true
	}
	return path == mountPoint || strings.HasPrefix(path, mountPoint+"/")
}
