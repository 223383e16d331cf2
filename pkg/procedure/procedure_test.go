package procedure

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ngld/henge/pkg/config"
	"github.com/ngld/henge/pkg/expected"
	"github.com/ngld/henge/pkg/platform"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("procedure tests rely on sh")
	}
}

func newEnv(t *testing.T, platforms ...platform.Info) (*Environment, *bytes.Buffer) {
	t.Helper()

	var out bytes.Buffer
	return &Environment{
		Platforms: platforms,
		Host:      "linux",
		Dir:       t.TempDir(),
		Variables: map[string]interface{}{"name": "app", "version": "1.0.0"},
		Stdout:    &out,
		Stderr:    &out,
	}, &out
}

func shell(script string) *config.Invocation {
	return &config.Invocation{Name: "sh", Args: []string{"-c", script}}
}

func TestNewValidation(t *testing.T) {
	env, _ := newEnv(t)

	_, err := New(&config.Procedure{}, env)
	require.True(t, expected.Is(err))

	_, err = New(&config.Procedure{Command: &config.Invocation{Name: "make"}, Task: &config.Invocation{Name: "build"}}, env)
	require.True(t, expected.Is(err))
}

func TestTaskArguments(t *testing.T) {
	env, _ := newEnv(t)

	p, err := New(&config.Procedure{Task: &config.Invocation{Name: "build"}}, env)
	require.NoError(t, err)
	command, args := p.Command()
	require.Equal(t, DefaultTaskRunner, command)
	require.Equal(t, []string{"run", "build"}, args)

	env.TaskRunner = "yarn"
	p, err = New(&config.Procedure{Task: &config.Invocation{Name: "build", Args: []string{"--prod"}}, Args: []string{"{platform}"}}, env)
	require.NoError(t, err)
	command, args = p.Command()
	require.Equal(t, "yarn", command)
	require.Equal(t, []string{"run", "build", "--", "--prod", "{platform}"}, args)
	require.Contains(t, p.Description(), "build")

	p, err = New(&config.Procedure{Command: &config.Invocation{Name: "make", Args: []string{"all"}}, Args: []string{"-j2"}, Description: "Compile"}, env)
	require.NoError(t, err)
	command, args = p.Command()
	require.Equal(t, "make", command)
	require.Equal(t, []string{"all", "-j2"}, args)
	require.Contains(t, p.Description(), "Compile")
}

func TestExecuteTemplatesPerPlatform(t *testing.T) {
	requireShell(t)

	env, _ := newEnv(t,
		platform.Info{Name: "win32", Variables: map[string]interface{}{"ext": ".exe"}},
		platform.Info{Name: "darwin", Variables: map[string]interface{}{"ext": ".app"}},
	)
	require.NoError(t, os.MkdirAll(filepath.Join(env.Dir, "build", "win32"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(env.Dir, "build", "darwin"), 0o755))

	p, err := New(&config.Procedure{
		Command:   shell(`printf '%s' "$1" > out.txt`),
		Args:      []string{"sh", "{name}{ext}"},
		Cwd:       "build/{platform}",
		Specifier: platform.Specifier{Multiplatform: true},
	}, env)
	require.NoError(t, err)
	require.NoError(t, p.Execute(context.Background()))

	content, err := os.ReadFile(filepath.Join(env.Dir, "build", "win32", "out.txt"))
	require.NoError(t, err)
	require.Equal(t, "app.exe", string(content))

	content, err = os.ReadFile(filepath.Join(env.Dir, "build", "darwin", "out.txt"))
	require.NoError(t, err)
	require.Equal(t, "app.app", string(content))
}

func TestEnvironmentOverlay(t *testing.T) {
	requireShell(t)
	t.Setenv("HENGE_TEST_BASE", "base")
	t.Setenv("HENGE_TEST_REMOVED", "present")
	t.Setenv("HENGE_TEST_OVERRIDE", "os")

	env, out := newEnv(t, platform.Info{
		Name: "win32",
		Env:  map[string]string{"HENGE_TEST_OVERRIDE": "platform", "HENGE_TEST_PLATFORM": "{platform}"},
	})

	p, err := New(&config.Procedure{
		Command: shell(`echo "$HENGE_TEST_BASE|${HENGE_TEST_REMOVED-unset}|$HENGE_TEST_OVERRIDE|$HENGE_TEST_PLATFORM|$HENGE_TEST_NUM"`),
		Env: map[string]interface{}{
			"HENGE_TEST_REMOVED":  nil,
			"HENGE_TEST_OVERRIDE": "{name}-procedure",
			"HENGE_TEST_NUM":      3,
		},
		Specifier: platform.Specifier{Platform: "win32"},
	}, env)
	require.NoError(t, err)
	require.NoError(t, p.Execute(context.Background()))

	require.Equal(t, "base|unset|app-procedure|win32|3", strings.TrimSpace(out.String()))
}

func TestTaskRunner(t *testing.T) {
	requireShell(t)

	env, _ := newEnv(t)
	runner := filepath.Join(env.Dir, "runner.sh")
	require.NoError(t, os.WriteFile(runner, []byte("#!/bin/sh\necho \"$@\" > task.txt\n"), 0o755))
	env.TaskRunner = runner

	p, err := New(&config.Procedure{Task: &config.Invocation{Name: "dist", Args: []string{"{platform}"}}}, env)
	require.NoError(t, err)
	require.NoError(t, p.Execute(context.Background()))

	content, err := os.ReadFile(filepath.Join(env.Dir, "task.txt"))
	require.NoError(t, err)
	require.Equal(t, "run dist -- linux\n", string(content))
}

func TestFailFast(t *testing.T) {
	requireShell(t)

	env, _ := newEnv(t, platform.Info{Name: "a"}, platform.Info{Name: "b"})
	p, err := New(&config.Procedure{
		Command:   shell(`echo {platform} >> log.txt; exit 3`),
		Specifier: platform.Specifier{Multiplatform: true},
	}, env)
	require.NoError(t, err)

	err = p.Execute(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "status 3")

	content, err := os.ReadFile(filepath.Join(env.Dir, "log.txt"))
	require.NoError(t, err)
	require.Equal(t, "a\n", string(content))
}

func TestMissingExecutable(t *testing.T) {
	env, _ := newEnv(t)
	p, err := New(&config.Procedure{Command: &config.Invocation{Name: "henge-test-does-not-exist"}}, env)
	require.NoError(t, err)

	err = p.Execute(context.Background())
	require.True(t, expected.Is(err))
}

func TestQuoteCommand(t *testing.T) {
	line, err := quoteCommand("echo", []string{"a b", "plain", "$HOME"})
	require.NoError(t, err)
	require.Equal(t, `echo 'a b' plain '$HOME'`, line)
}
