package pathmap

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// statFunc and lookPathFunc are package-level so tests can substitute a
// synthetic filesystem.
var (
	statFunc     = os.Stat
	lookPathFunc = exec.LookPath
)

// SetStatForTests overrides filesystem probing during tests.
func SetStatForTests(stat func(string) (os.FileInfo, error), lookPath func(string) (string, error)) func() {
	prevStat, prevLook := statFunc, lookPathFunc
	if stat != nil {
		statFunc = stat
	}
	if lookPath != nil {
		lookPathFunc = lookPath
	}
	return func() {
		statFunc = prevStat
		lookPathFunc = prevLook
	}
}

// ResolveCondaPython probes well-known conda/miniconda environment locations
// for a python interpreter and returns the first that exists. Falls back to
// the bare interpreter name for PATH resolution. Never returns an error;
// discovery is best-effort.
func ResolveCondaPython(envName string) string {
	if envName == "" {
		envName = "bookforge"
	}
	home, _ := os.UserHomeDir()
	fallback := "python3"
	var candidates []string
	if runtime.GOOS == "windows" {
		fallback = "python"
		if home != "" {
			candidates = append(candidates,
				filepath.Join(home, "miniconda3", "envs", envName, "python.exe"),
				filepath.Join(home, "anaconda3", "envs", envName, "python.exe"),
			)
		}
		candidates = append(candidates,
			filepath.Join(`C:\`, "ProgramData", "miniconda3", "envs", envName, "python.exe"),
		)
	} else {
		if home != "" {
			candidates = append(candidates,
				filepath.Join(home, "miniconda3", "envs", envName, "bin", "python"),
				filepath.Join(home, "anaconda3", "envs", envName, "bin", "python"),
				filepath.Join(home, ".conda", "envs", envName, "bin", "python"),
			)
		}
		candidates = append(candidates,
			filepath.Join("/opt", "miniconda3", "envs", envName, "bin", "python"),
		)
	}
	return firstExisting(candidates, fallback)
}

// EngineCommand is the assembly engine's PATH-relative command name.
const EngineCommand = "audiblez"

// ResolveEngine locates the assembly engine executable. An explicit override
// wins when it exists; otherwise well-known install locations are probed and
// the bare command name is returned as a PATH-relative fallback.
func ResolveEngine(override string) string {
	const command = EngineCommand
	if override != "" {
		if _, err := statFunc(override); err == nil {
			return override
		}
	}
	home, _ := os.UserHomeDir()
	var candidates []string
	if runtime.GOOS == "windows" {
		if home != "" {
			candidates = append(candidates,
				filepath.Join(home, "miniconda3", "envs", "bookforge", "Scripts", command+".exe"),
				filepath.Join(home, "AppData", "Roaming", "Python", "Scripts", command+".exe"),
			)
		}
	} else {
		if home != "" {
			candidates = append(candidates,
				filepath.Join(home, ".local", "bin", command),
				filepath.Join(home, "miniconda3", "envs", "bookforge", "bin", command),
			)
		}
		candidates = append(candidates,
			filepath.Join("/usr", "local", "bin", command),
		)
	}
	if found := firstExisting(candidates, ""); found != "" {
		return found
	}
	if resolved, err := lookPathFunc(command); err == nil {
		return resolved
	}
	return command
}

func firstExisting(candidates []string, fallback string) string {
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		if info, err := statFunc(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return fallback
}
