package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"classroom-quiz-service/internal/auth"
	"classroom-quiz-service/internal/domain"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := "auth:\n  secret: cli-secret\n  issuer: cli-test\n  tokenTtl: 1h\n"
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestTokenCommandIssuesVerifiableToken(t *testing.T) {
	path := writeConfig(t)

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"token", "--config", path, "--sub", "cr1", "--name", "Carol", "--role", "cr"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	p, err := auth.NewAuthenticator("cli-secret", "cli-test", time.Hour).Verify(strings.TrimSpace(out.String()))
	if err != nil {
		t.Fatalf("verify issued token: %v", err)
	}
	if p.ID != "cr1" || p.Name != "Carol" || p.Role != domain.RoleCR {
		t.Fatalf("unexpected principal %+v", p)
	}
}

func TestTokenCommandRejectsUnknownRole(t *testing.T) {
	path := writeConfig(t)

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"token", "--config", path, "--sub", "u1", "--role", "guest"})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected unknown role to fail")
	}
}

func TestSampleQuizzesAreOpenNow(t *testing.T) {
	now := time.Now()
	quiz := sampleQuizzes(now)["quiz-1"]
	if !quiz.ActiveAt(now) {
		t.Fatalf("sample quiz should be active at startup")
	}
	if len(quiz.Questions) != 2 {
		t.Fatalf("expected 2 sample questions, got %d", len(quiz.Questions))
	}
}
