package worker

import (
	"os"
	"os/user"
)

// inheritedPrefixes lists daemon environment variables that are safe to
// forward into a script's sandbox unchanged. Everything else (secrets,
// ambient credentials) is dropped; only what the operator explicitly
// configures via [env] or a provider's contributions reaches the script.
var inheritedPrefixes = []string{"PATH", "LC_ALL", "LANG"}

// buildEnv assembles a script's sandbox environment per the worker
// contract: start empty, forward a small daemon-environment whitelist,
// pin HOME to the sandbox directory and USER to the daemon's effective
// user, then layer operator-configured extras and finally the
// job-specific (provider + request) contributions, in that order so
// per-request values win ties.
func buildEnv(sandboxDir string, extraEnv, jobEnv map[string]string) []string {
	env := make(map[string]string)

	for _, key := range inheritedPrefixes {
		if v, ok := os.LookupEnv(key); ok {
			env[key] = v
		}
	}

	env["HOME"] = sandboxDir
	if u, err := user.Current(); err == nil && u.Username != "" {
		env["USER"] = u.Username
	}

	for k, v := range extraEnv {
		env[k] = v
	}
	for k, v := range jobEnv {
		env[k] = v
	}

	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
