package cli_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/jrsteele09/campus-auth/internal/cli"
	"github.com/stretchr/testify/require"
)

type testFixture struct {
	configFile string
	storePath  string
}

func setupTestFixture(t *testing.T, extra string) *testFixture {
	t.Helper()
	dir := t.TempDir()
	f := &testFixture{
		configFile: filepath.Join(dir, "campusauth.yaml"),
		storePath:  filepath.Join(dir, "auth.json"),
	}
	content := fmt.Sprintf(`
env: TEST
backend:
  mode: memory
storage:
  driver: file
  path: %s
login:
  settletimeout: 1s
%s`, f.storePath, extra)
	require.NoError(t, os.WriteFile(f.configFile, []byte(content), 0o600))
	return f
}

func (f *testFixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := cli.NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--config", f.configFile, "--quiet"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestAdminLogin_DemoAdmin(t *testing.T) {
	f := setupTestFixture(t, "")

	out, err := f.run(t, "admin-login")
	require.NoError(t, err)
	require.Contains(t, out, "Admin login successful!")
	require.Contains(t, out, "Redirecting to dashboard...")
	require.Contains(t, out, "-> /admin/dashboard")
}

func TestLogin_Failures(t *testing.T) {
	f := setupTestFixture(t, "")

	out, err := f.run(t, "login", "--email", "admin@aimsr.edu.in", "--password", "wrong-password")
	require.Error(t, err)
	require.Contains(t, out, "Login failed")
	require.Contains(t, out, "Invalid login credentials")
	require.NotContains(t, out, "->")

	out, err = f.run(t, "login", "--email", "not-an-email", "--password", "123456")
	require.Error(t, err)
	require.Contains(t, out, "Login failed")
}

func TestRegister(t *testing.T) {
	f := setupTestFixture(t, "")

	out, err := f.run(t, "register",
		"--email", "new.student@aimsr.edu.in",
		"--password", "secret-pass",
		"--first-name", "Asha",
		"--last-name", "Rao",
	)
	require.NoError(t, err)
	require.Contains(t, out, "Registration successful!")
	require.Contains(t, out, "Please check your email to confirm your account.")

	out, err = f.run(t, "register", "--email", "x@aimsr.edu.in", "--password", "secret-pass")
	require.Error(t, err)
	require.Contains(t, out, "Registration failed")
}

func TestStatusAndLogout_SignedOut(t *testing.T) {
	f := setupTestFixture(t, "")

	out, err := f.run(t, "status")
	require.NoError(t, err)
	require.Contains(t, out, "session: signed out")
	require.Contains(t, out, "user pages:  redirect to /login")
	require.Contains(t, out, "admin pages: redirect to /admin/login")

	out, err = f.run(t, "logout")
	require.NoError(t, err)
	require.Contains(t, out, "Signed out.")
	require.Contains(t, out, "-> /")
}

func TestUnknownDriver(t *testing.T) {
	f := setupTestFixture(t, "")
	t.Setenv("CAMPUSAUTH_STORAGE_DRIVER", "floppy")

	_, err := f.run(t, "status")
	require.ErrorContains(t, err, "unknown storage driver")
}

func TestRedisDriver_BlankNamespaceRejected(t *testing.T) {
	f := setupTestFixture(t, "")
	t.Setenv("CAMPUSAUTH_STORAGE_DRIVER", "redis")
	t.Setenv("CAMPUSAUTH_STORAGE_REDISNAMESPACE", "   ")

	_, err := f.run(t, "status")
	require.ErrorContains(t, err, "redisnamespace must not be empty")
}
