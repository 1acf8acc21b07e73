package pathmap

import (
	"strings"
)

// UNC prefixes used by Windows to expose WSL filesystems.
var wslUNCPrefixes = []string{`\\wsl$\`, `\\wsl.localhost\`}

// IsWSLUNCPath reports whether path is a Windows UNC path into a WSL
// distribution filesystem.
func IsWSLUNCPath(path string) bool {
	lower := strings.ToLower(path)
	for _, prefix := range wslUNCPrefixes {
		if strings.HasPrefix(lower, strings.ToLower(prefix)) {
			return true
		}
	}
	return false
}

// SplitUNC splits a WSL UNC path into its distribution name and native WSL
// path. Returns ok=false when path is not a WSL UNC path.
func SplitUNC(path string) (distro, wslPath string, ok bool) {
	lower := strings.ToLower(path)
	for _, prefix := range wslUNCPrefixes {
		if !strings.HasPrefix(lower, strings.ToLower(prefix)) {
			continue
		}
		rest := path[len(prefix):]
		rest = strings.ReplaceAll(rest, `\`, "/")
		parts := strings.SplitN(rest, "/", 2)
		distro = parts[0]
		if len(parts) == 2 {
			wslPath = "/" + parts[1]
		} else {
			wslPath = "/"
		}
		return distro, wslPath, true
	}
	return "", "", false
}

// UNCToWSL converts a WSL UNC path to its native WSL form
// (`\\wsl$\Ubuntu\home\user` becomes `/home/user`). Non-UNC input is
// returned unchanged.
func UNCToWSL(path string) string {
	if _, wslPath, ok := SplitUNC(path); ok {
		return wslPath
	}
	return path
}

// WindowsToWSL converts a Windows drive path (`C:\Users\x`) to its WSL mount
// form (`/mnt/c/Users/x`). WSL UNC paths are converted to their native form,
// and paths that are already POSIX-style are returned unchanged.
func WindowsToWSL(path string) string {
	if path == "" {
		return path
	}
	if IsWSLUNCPath(path) {
		return UNCToWSL(path)
	}
	if strings.HasPrefix(path, "/") {
		return path
	}
	if len(path) >= 2 && path[1] == ':' && isDriveLetter(path[0]) {
		drive := strings.ToLower(path[:1])
		rest := strings.ReplaceAll(path[2:], `\`, "/")
		rest = strings.TrimPrefix(rest, "/")
		if rest == "" {
			return "/mnt/" + drive
		}
		return "/mnt/" + drive + "/" + rest
	}
	return strings.ReplaceAll(path, `\`, "/")
}

// WSLToWindows converts a WSL mount path (`/mnt/c/Users/x`) back to its
// Windows drive form (`C:\Users\x`). Paths outside /mnt/<drive> are returned
// unchanged.
func WSLToWindows(path string) string {
	if !strings.HasPrefix(path, "/mnt/") {
		return path
	}
	rest := path[len("/mnt/"):]
	if rest == "" {
		return path
	}
	parts := strings.SplitN(rest, "/", 2)
	if len(parts[0]) != 1 || !isDriveLetter(parts[0][0]) {
		return path
	}
	drive := strings.ToUpper(parts[0]) + ":"
	if len(parts) == 1 || parts[1] == "" {
		return drive + `\`
	}
	return drive + `\` + strings.ReplaceAll(parts[1], "/", `\`)
}

// WSLToUNC renders a native WSL path as the Windows UNC form for the given
// distribution (`/home/user` becomes `\\wsl$\Ubuntu\home\user`). Paths that
// are already UNC or Windows drive paths are returned unchanged.
func WSLToUNC(distro, path string) string {
	if distro == "" || path == "" || !strings.HasPrefix(path, "/") {
		return path
	}
	if strings.HasPrefix(path, "/mnt/") {
		if win := WSLToWindows(path); win != path {
			return win
		}
	}
	return `\\wsl$\` + distro + strings.ReplaceAll(path, "/", `\`)
}

func isDriveLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
