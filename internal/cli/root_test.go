package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/xiaot623/gogo/fitsync/internal/adapter/marketplace"
	"github.com/xiaot623/gogo/fitsync/internal/config"
	"github.com/xiaot623/gogo/fitsync/internal/domain"
)

type cliEnv struct {
	backend *marketplace.MockClient
	ctx     context.Context
	state   string
	coach   domain.UserProfile
	athlete domain.UserProfile
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	backend := marketplace.NewMockClient()
	return &cliEnv{
		backend: backend,
		ctx:     WithAPI(context.Background(), backend),
		state:   filepath.Join(t.TempDir(), "state.db"),
		coach:   backend.SeedUser("Casey Coach", "coach@x", "pw", domain.RoleTrainer, domain.RoleTrainee),
		athlete: backend.SeedUser("Alex Athlete", "athlete@x", "pw", domain.RoleTrainee),
	}
}

func testConfig(env *cliEnv) *config.Config {
	cfg := config.Load()
	cfg.StateDSN = env.state
	cfg.LogLevel = "error"
	return cfg
}

func executeCommand(ctx context.Context, cmd *cobra.Command, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)
	return buf.String(), err
}

func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	args = append(args, "--state", e.state, "--log-level", "error")
	return executeCommand(e.ctx, NewRootCmd("test"), args...)
}

func (e *cliEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, args...)
	if err != nil {
		t.Fatalf("%s failed: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func TestRootCommandVersion(t *testing.T) {
	output, err := executeCommand(context.Background(), NewRootCmd("test"), "--version")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(output, "fitsync version test") {
		t.Fatalf("expected version output, got %q", output)
	}
}

func TestRootCommandHelp(t *testing.T) {
	output, err := executeCommand(context.Background(), NewRootCmd("test"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	for _, want := range []string{"login", "conversations", "chat", "serve"} {
		if !strings.Contains(output, want) {
			t.Fatalf("help output missing %q: %q", want, output)
		}
	}
}

func TestWhoamiSignedOut(t *testing.T) {
	env := newCLIEnv(t)
	out := env.mustRun(t, "whoami")
	if strings.TrimSpace(out) != "unauthenticated" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestLoginRequiresPassword(t *testing.T) {
	env := newCLIEnv(t)
	if _, err := env.run(t, "login", "coach@x"); err == nil {
		t.Fatalf("expected error without --password")
	}
}

func TestLoginPersistsSession(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun(t, "login", "coach@x", "-p", "pw")

	out := env.mustRun(t, "whoami", "--json")
	var sess domain.Session
	if err := json.Unmarshal([]byte(out), &sess); err != nil {
		t.Fatalf("decode whoami: %v\n%s", err, out)
	}
	if sess.UserID != env.coach.ID || sess.ActiveRole != domain.RoleTrainer {
		t.Fatalf("unexpected session: %+v", sess)
	}

	env.mustRun(t, "role", "trainee")
	out = env.mustRun(t, "role")
	if strings.TrimSpace(out) != domain.RoleTrainee {
		t.Fatalf("role not persisted: %q", out)
	}
	if _, err := env.run(t, "role", "admin"); err == nil {
		t.Fatalf("expected error switching to a role the user lacks")
	}

	env.mustRun(t, "logout")
	out = env.mustRun(t, "whoami")
	if strings.TrimSpace(out) != "unauthenticated" {
		t.Fatalf("expected signed out, got %q", out)
	}
}

func TestSendAndChat(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun(t, "login", "coach@x", "-p", "pw")

	convID := strings.TrimSpace(env.mustRun(t, "open", env.athlete.ID))
	if convID == "" {
		t.Fatalf("open returned no conversation id")
	}

	out := env.mustRun(t, "send", convID, "Leg", "day", "tomorrow")
	if !strings.Contains(out, "me: Leg day tomorrow") {
		t.Fatalf("unexpected send output: %q", out)
	}

	out = env.mustRun(t, "chat", convID)
	if !strings.Contains(out, "Leg day tomorrow") || strings.Contains(out, "(sending)") {
		t.Fatalf("unexpected chat output: %q", out)
	}

	out = env.mustRun(t, "conversations")
	if !strings.Contains(out, convID) || !strings.Contains(out, "Alex Athlete") {
		t.Fatalf("unexpected conversations output: %q", out)
	}
}

func TestSendRejectsEmptyMessage(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun(t, "login", "coach@x", "-p", "pw")
	convID := strings.TrimSpace(env.mustRun(t, "open", env.athlete.ID))

	out, err := env.run(t, "send", convID, "   ")
	if err == nil {
		t.Fatalf("expected validation error, got %q", out)
	}
}

func TestCommandsRequireSession(t *testing.T) {
	env := newCLIEnv(t)
	out, err := env.run(t, "conversations")
	if err == nil {
		t.Fatalf("expected error when signed out")
	}
	if !strings.Contains(out, "Hint:") {
		t.Fatalf("expected login hint, got %q", out)
	}
}

func TestRevokedTokenIsClearedOnStartup(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun(t, "login", "coach@x", "-p", "pw")

	// Grab the token through a fresh app, then revoke it server side.
	app, err := NewApp(env.ctx, testConfig(env), env.backend)
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	env.backend.RevokeToken(app.Engine.Session().Current().Token)
	app.Close()

	out := env.mustRun(t, "whoami")
	if strings.TrimSpace(out) != "unauthenticated" {
		t.Fatalf("expected revoked session to be cleared, got %q", out)
	}
}

func TestDeleteAccountNeedsConfirmation(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun(t, "login", "coach@x", "-p", "pw")
	if _, err := env.run(t, "delete-account"); err == nil {
		t.Fatalf("expected error without --yes")
	}
	env.mustRun(t, "delete-account", "--yes")
	if _, err := env.run(t, "login", "coach@x", "-p", "pw"); err == nil {
		t.Fatalf("expected login to fail after account deletion")
	}
}

func TestPreview(t *testing.T) {
	long := strings.Repeat("a", previewLength+10)
	if got := []rune(preview(long)); len(got) != previewLength {
		t.Fatalf("expected %d runes, got %d", previewLength, len(got))
	}
	if got := preview("two\n  lines"); got != "two lines" {
		t.Fatalf("unexpected preview: %q", got)
	}
}
