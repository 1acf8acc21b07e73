package reassembly

import (
	"strings"

	"bookforge/internal/config"
	"bookforge/internal/pathmap"
	"bookforge/internal/session"
)

// engineCommand builds the invocation for the external assembly engine and
// returns the path translator used to map engine-reported paths back to
// host form. When the session lives on a WSL-mounted filesystem the logical
// arguments are wrapped into a single shell command executed inside the
// distribution, with every path rewritten to its native WSL form first.
func engineCommand(cfg config.Engine, sess *session.Session, stagingDir, language string) (CommandSpec, func(string) string) {
	identity := func(path string) string { return path }

	if wslJob(cfg, sess) {
		distro := cfg.WSLDistro
		args := engineArgs(
			toWSL(sess.SourceEpubPath),
			toWSL(stagingDir),
			sess.SessionID,
			toWSL(sess.SessionDir),
			cfg.Device,
			language,
			cfg.TTSEngine,
		)
		command := shellJoin(append([]string{wslEngineBinary(cfg)}, args...))
		spec := CommandSpec{
			Binary: "wsl.exe",
			Args:   []string{"-d", distro, "--", "bash", "-lc", command},
		}
		return spec, func(path string) string {
			return pathmap.WSLToUNC(distro, path)
		}
	}

	spec := CommandSpec{
		Binary: engineBinary(cfg),
		Args: engineArgs(
			sess.SourceEpubPath,
			stagingDir,
			sess.SessionID,
			sess.SessionDir,
			cfg.Device,
			language,
			cfg.TTSEngine,
		),
	}
	return spec, identity
}

func engineBinary(cfg config.Engine) string {
	return pathmap.ResolveEngine(cfg.Binary)
}

// wslEngineBinary picks the command run inside the distribution. Host
// filesystem and PATH probing do not apply there: a configured override is
// translated to its WSL form and passed through when it stays POSIX-shaped,
// anything else falls back to the distro-PATH-relative command name.
func wslEngineBinary(cfg config.Engine) string {
	binary := strings.TrimSpace(cfg.Binary)
	if binary == "" {
		return pathmap.EngineCommand
	}
	translated := toWSL(binary)
	if strings.HasPrefix(translated, "/") {
		return translated
	}
	if !strings.ContainsAny(translated, `\:`) {
		return translated
	}
	return pathmap.EngineCommand
}

func engineArgs(epubPath, outputDir, sessionID, sessionDir, device, language, ttsEngine string) []string {
	args := []string{epubPath,
		"--output", outputDir,
		"--session", sessionID,
		"--session-dir", sessionDir,
		"--device", device,
		"--engine", ttsEngine,
		"--assemble-only",
		"--no-split",
	}
	if language != "" {
		args = append(args, "--lang", language)
	}
	return args
}

// wslJob reports whether the session's files live behind a WSL mount and a
// distribution is configured to run the engine inside.
func wslJob(cfg config.Engine, sess *session.Session) bool {
	if cfg.WSLDistro == "" {
		return false
	}
	return pathmap.IsWSLUNCPath(sess.SessionDir) || pathmap.IsWSLUNCPath(sess.SourceEpubPath)
}

func toWSL(path string) string {
	if pathmap.IsWSLUNCPath(path) {
		return pathmap.UNCToWSL(path)
	}
	return pathmap.WindowsToWSL(path)
}

// shellJoin quotes each argument for bash -lc.
func shellJoin(args []string) string {
	quoted := make([]string, 0, len(args))
	for _, arg := range args {
		quoted = append(quoted, shellQuote(arg))
	}
	return strings.Join(quoted, " ")
}

func shellQuote(arg string) string {
	if arg == "" {
		return "''"
	}
	if !strings.ContainsAny(arg, " \t\n'\"\\$`!*?[]()<>|&;{}~#") {
		return arg
	}
	return "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
}
