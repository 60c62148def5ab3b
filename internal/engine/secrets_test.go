package engine

import (
	"testing"

	"github.com/cwt-dev/cwtd/internal/types"
)

type fakeSecrets struct {
	values map[string]string
}

func (f fakeSecrets) Resolve(keys []string) map[string]string {
	out := make(map[string]string)
	for _, k := range keys {
		if v, ok := f.values[k]; ok {
			out[k] = v
		}
	}
	return out
}

func TestSecretsEnvResolvesDeclaredKeys(t *testing.T) {
	e := &Engine{Secrets: fakeSecrets{values: map[string]string{"API_KEY": "k1"}}}
	job := types.Job{Name: "job1", SecretKeys: []string{"API_KEY"}}

	env := e.secretsEnv(job)
	if env["API_KEY"] != "k1" {
		t.Fatalf("expected API_KEY resolved, got %+v", env)
	}
	if _, ok := env["TELEGRAM_BOT_TOKEN"]; ok {
		t.Fatalf("expected no telegram token without a chat route, got %+v", env)
	}
}

func TestSecretsEnvAutoInjectsTelegramTokenForChatRoute(t *testing.T) {
	e := &Engine{Secrets: fakeSecrets{values: map[string]string{"TELEGRAM_BOT_TOKEN": "tok"}}}
	job := types.Job{Name: "job1", ChatRouteID: "slack-main"}

	env := e.secretsEnv(job)
	if env["TELEGRAM_BOT_TOKEN"] != "tok" {
		t.Fatalf("expected auto-injected telegram token, got %+v", env)
	}
}

func TestSecretsEnvDoesNotOverrideExplicitTelegramToken(t *testing.T) {
	e := &Engine{Secrets: fakeSecrets{values: map[string]string{"TELEGRAM_BOT_TOKEN": "auto-tok"}}}
	job := types.Job{Name: "job1", ChatRouteID: "slack-main", SecretKeys: []string{"TELEGRAM_BOT_TOKEN"}}

	env := e.secretsEnv(job)
	if env["TELEGRAM_BOT_TOKEN"] != "auto-tok" {
		t.Fatalf("expected resolved token from declared secret_keys, got %+v", env)
	}
}

func TestEnvSecretsResolvesFromProcessEnvironment(t *testing.T) {
	t.Setenv("CWT_TEST_SECRET", "value123")
	env := EnvSecrets{}.Resolve([]string{"CWT_TEST_SECRET", "CWT_TEST_MISSING"})
	if env["CWT_TEST_SECRET"] != "value123" {
		t.Fatalf("expected CWT_TEST_SECRET resolved, got %+v", env)
	}
	if _, ok := env["CWT_TEST_MISSING"]; ok {
		t.Fatalf("expected unset key to be omitted, got %+v", env)
	}
}

func TestNoopWindowMoverIsHarmless(t *testing.T) {
	if err := (NoopWindowMover{}).MoveToWorkspace("s", "w", "ws"); err != nil {
		t.Fatalf("expected no-op to succeed, got %v", err)
	}
}
