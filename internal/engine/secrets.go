package engine

import (
	"os"

	"github.com/cwt-dev/cwtd/internal/types"
)

// SecretsProvider resolves a job's declared secret_keys to their values.
// The credential store backing a real implementation (process-native
// keychain, CLI-based vault, ...) is an out-of-scope collaborator; the
// engine only needs this narrow lookup contract.
type SecretsProvider interface {
	// Resolve returns whatever subset of keys it could find, keyed by name.
	// Keys with no known value are simply omitted, never zero-valued.
	Resolve(keys []string) map[string]string
}

// EnvSecrets resolves secret keys against the daemon's own OS environment.
// It's the simplest possible SecretsProvider and the default used when no
// credential store is wired in.
type EnvSecrets struct{}

func (EnvSecrets) Resolve(keys []string) map[string]string {
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := os.LookupEnv(k); ok {
			out[k] = v
		}
	}
	return out
}

// secretsEnv resolves job.SecretKeys plus the TELEGRAM_BOT_TOKEN
// auto-injection: when the job has a chat route and doesn't already list
// the token explicitly, the token is looked up and added too.
func (e *Engine) secretsEnv(job types.Job) map[string]string {
	env := e.Secrets.Resolve(job.SecretKeys)
	if _, ok := env["TELEGRAM_BOT_TOKEN"]; !ok && job.ChatRouteID != "" {
		if tg := e.Secrets.Resolve([]string{"TELEGRAM_BOT_TOKEN"}); tg["TELEGRAM_BOT_TOKEN"] != "" {
			env["TELEGRAM_BOT_TOKEN"] = tg["TELEGRAM_BOT_TOKEN"]
		}
	}
	return env
}
