package lib

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/trobanga/enzflow/internal/models"
)

var windowsDrive = regexp.MustCompile(`^([A-Za-z]):[\\/]?(.*)$`)

// NormalizePath maps a host path into the form the tool environment expects.
//
// For the native style the path is only cleaned. For the wsl style, drive
// paths like C:\data\x.fa become /mnt/c/data/x.fa, backslashes become
// forward slashes, and paths that are already absolute POSIX paths are
// returned unchanged.
func NormalizePath(path string, style models.PathStyle) string {
	if path == "" {
		return path
	}

	if style != models.PathStyleWSL {
		return filepath.Clean(path)
	}

	if strings.HasPrefix(path, "/") {
		return path
	}

	if m := windowsDrive.FindStringSubmatch(path); m != nil {
		rest := strings.ReplaceAll(m[2], `\`, "/")
		rest = strings.TrimPrefix(rest, "/")
		drive := "/mnt/" + strings.ToLower(m[1])
		if rest == "" {
			return drive
		}
		return drive + "/" + rest
	}

	return strings.ReplaceAll(path, `\`, "/")
}
