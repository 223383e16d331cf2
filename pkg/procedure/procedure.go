// Package procedure runs the commands and tasks declared by a project once per matched platform.
package procedure

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"github.com/ngld/henge/pkg/config"
	"github.com/ngld/henge/pkg/console"
	"github.com/ngld/henge/pkg/expected"
	"github.com/ngld/henge/pkg/platform"
	"github.com/ngld/henge/pkg/style"
	"github.com/ngld/henge/pkg/template"
)

// DefaultTaskRunner executes `task` procedures
const DefaultTaskRunner = "npm"

// Environment is the part of the project a procedure needs
type Environment struct {
	Platforms  []platform.Info
	Host       string
	Dir        string
	TaskRunner string
	Variables  map[string]interface{}

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Procedure is one validated entry of the project's procedure list
type Procedure struct {
	config      *config.Procedure
	env         *Environment
	matrix      platform.Matrix
	description string
	command     string
	args        []string
}

// New validates cfg. Exactly one of command and task has to be set.
func New(cfg *config.Procedure, env *Environment) (*Procedure, error) {
	p := &Procedure{
		config: cfg,
		env:    env,
		matrix: platform.Resolve(cfg.Specifier, env.Platforms, env.Host),
	}

	switch {
	case cfg.Command != nil && cfg.Task != nil:
		return nil, expected.New("A procedure must have only one of `command` or `task` property")
	case cfg.Command != nil:
		p.command = cfg.Command.Name
		p.args = append(append([]string{}, cfg.Command.Args...), cfg.Args...)
		p.description = style.Label("Command") + " " + orDefault(cfg.Description, p.command)
	case cfg.Task != nil:
		p.command = orDefault(env.TaskRunner, DefaultTaskRunner)
		p.args = []string{"run", cfg.Task.Name}

		extra := append(append([]string{}, cfg.Task.Args...), cfg.Args...)
		if len(extra) > 0 {
			p.args = append(append(p.args, "--"), extra...)
		}
		p.description = style.Label("Task") + " " + orDefault(cfg.Description, cfg.Task.Name)
	default:
		return nil, expected.New("A procedure must have one of `command` or `task` property")
	}

	return p, nil
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// Description returns the decorated description used in log output
func (p *Procedure) Description() string {
	return p.description
}

// Command returns the executable and the argument templates
func (p *Procedure) Command() (string, []string) {
	return p.command, p.args
}

// Execute runs the procedure for every platform of its matrix and stops at the first failure
func (p *Procedure) Execute(ctx context.Context) error {
	for _, info := range p.matrix.Platforms {
		if p.matrix.Specified {
			console.Log(ctx).Info().Msgf("%s %s", p.description, style.Dim("("+info.Name+")"))
		} else {
			console.Log(ctx).Info().Msg(p.description)
		}

		err := p.run(ctx, info)
		if err != nil {
			return err
		}
	}

	return nil
}

func (p *Procedure) data(info platform.Info) map[string]interface{} {
	return template.Merge(p.env.Variables, map[string]interface{}{"platform": info.Name}, info.Variables)
}

// Environ builds the environment for the given platform: the process environment, overlaid by the
// platform's and then the procedure's entries. A null procedure entry removes the variable.
func (p *Procedure) Environ(info platform.Info) []string {
	data := p.data(info)
	vars := make(map[string]string)
	for _, item := range os.Environ() {
		parts := strings.SplitN(item, "=", 2)
		if len(parts) != 2 {
			continue
		}
		vars[envKey(parts[0])] = parts[1]
	}

	for key, value := range info.Env {
		vars[envKey(key)] = template.Render(value, data)
	}

	for key, value := range p.config.Env {
		switch value := value.(type) {
		case nil:
			delete(vars, envKey(key))
		case string:
			vars[envKey(key)] = template.Render(value, data)
		default:
			vars[envKey(key)] = fmt.Sprint(value)
		}
	}

	result := make([]string, 0, len(vars))
	for key, value := range vars {
		result = append(result, key+"="+value)
	}
	sort.Strings(result)
	return result
}

func envKey(key string) string {
	if runtime.GOOS == "windows" {
		return strings.ToUpper(key)
	}
	return key
}

func (p *Procedure) run(ctx context.Context, info platform.Info) error {
	data := p.data(info)

	cwd := p.env.Dir
	if p.config.Cwd != "" {
		cwd = template.Render(p.config.Cwd, data)
		if !filepath.IsAbs(cwd) {
			cwd = filepath.Join(p.env.Dir, cwd)
		}
	}

	args := make([]string, len(p.args))
	for idx, arg := range p.args {
		args[idx] = template.Render(arg, data)
	}

	environ := expand.ListEnviron(p.Environ(info)...)
	executable, err := interp.LookPathDir(cwd, environ, p.command)
	if err != nil {
		return expected.Errorf("Could not find executable \"%s\": %s", p.command, err)
	}

	line, err := quoteCommand(p.command, args)
	if err != nil {
		return err
	}
	console.Sub(ctx).Msg(line)

	runLine, err := quoteCommand(executable, args)
	if err != nil {
		return err
	}

	file, err := syntax.NewParser().Parse(strings.NewReader(runLine), p.command)
	if err != nil {
		return eris.Wrapf(err, "failed to parse command line %s", runLine)
	}

	runner, err := interp.New(
		interp.Dir(cwd),
		interp.Env(environ),
		interp.StdIO(p.stdio()),
	)
	if err != nil {
		return eris.Wrap(err, "Failed to initialize runner")
	}

	err = runner.Run(ctx, file)
	if err != nil {
		if status, ok := interp.IsExitStatus(err); ok {
			return eris.Errorf("%s exited with status %d", p.command, status)
		}
		return eris.Wrapf(err, "Failed to run %s", p.command)
	}

	return nil
}

func (p *Procedure) stdio() (io.Reader, io.Writer, io.Writer) {
	stdin, stdout, stderr := p.env.Stdin, p.env.Stdout, p.env.Stderr
	if stdin == nil {
		stdin = os.Stdin
	}
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return stdin, stdout, stderr
}

func quoteCommand(command string, args []string) (string, error) {
	parts := make([]string, 0, len(args)+1)
	for _, item := range append([]string{command}, args...) {
		quoted, err := syntax.Quote(item, syntax.LangBash)
		if err != nil {
			return "", expected.Errorf("Argument %q can't be passed to a command: %s", item, err)
		}
		parts = append(parts, quoted)
	}
	return strings.Join(parts, " "), nil
}
