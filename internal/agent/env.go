package agent

import "strings"

// BlockedEnv lists variables that tell the CLI it is already running inside
// an automated session. With any of them present the CLI refuses to start an
// interactive session.
var BlockedEnv = []string{
	"CLAUDECODE",
	"CLAUDE_CODE_ENTRYPOINT",
}

// WorkerEnv builds the environment for a worker process from base, dropping
// blocked variables and forcing a capable terminal type.
func WorkerEnv(base []string, blocked []string) []string {
	drop := make(map[string]bool, len(blocked))
	for _, name := range blocked {
		drop[name] = true
	}

	env := make([]string, 0, len(base)+2)
	for _, kv := range base {
		name, _, _ := strings.Cut(kv, "=")
		if drop[name] || name == "TERM" || name == "COLORTERM" {
			continue
		}
		env = append(env, kv)
	}

	return append(env,
		"TERM=xterm-256color",
		"COLORTERM=truecolor",
	)
}
