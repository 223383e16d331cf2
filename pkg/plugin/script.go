package plugin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"

	"github.com/ngld/henge/pkg/config"
	"github.com/ngld/henge/pkg/console"
	"github.com/ngld/henge/pkg/expected"
)

// ScriptExtension marks plugin identifiers that refer to Starlark scripts
const ScriptExtension = ".star"

const (
	loadVariablesFunc     = "load_variables"
	resolveDependencyFunc = "resolve_dependency"
	processMetadataFunc   = "process_artifact_metadata"
)

// Script is a plugin implemented in Starlark. Each capability is backed by a global function of
// the same name; missing functions are skipped.
type Script struct {
	filename string
	globals  starlark.StringDict
}

type scriptCtx struct {
	ctx      context.Context
	filename string
}

func getCtx(thread *starlark.Thread) *scriptCtx {
	return thread.Local("scriptCtx").(*scriptCtx)
}

func newThread(ctx context.Context, filename string) *starlark.Thread {
	thread := &starlark.Thread{
		Name: filepath.Base(filename),
		Print: func(thread *starlark.Thread, msg string) {
			console.Log(ctx).Info().Str("thread", thread.Name).Msg(msg)
		},
	}
	thread.SetLocal("scriptCtx", &scriptCtx{ctx: ctx, filename: filename})
	return thread
}

// LoadScript executes the given script and returns it as a plugin
func LoadScript(ctx context.Context, filename string) (*Script, error) {
	filename, err := filepath.Abs(filename)
	if err != nil {
		return nil, err
	}

	script, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, expected.Errorf("Plugin script \"%s\" does not exist", filename)
		}
		return nil, eris.Wrapf(err, "failed to read plugin %s", filename)
	}

	builtins := starlark.StringDict{
		"info":   starlark.NewBuiltin("info", starInfo),
		"warn":   starlark.NewBuiltin("warn", starWarn),
		"error":  starlark.NewBuiltin("error", starError),
		"getenv": starlark.NewBuiltin("getenv", getenv),
	}

	thread := newThread(ctx, filename)
	globals, err := starlark.ExecFile(thread, filename, script, builtins)
	if err != nil {
		if evalError, ok := err.(*starlark.EvalError); ok {
			return nil, eris.Errorf("failed to execute %s:\n%s", filename, evalError.Backtrace())
		}
		return nil, eris.Wrapf(err, "failed to execute %s", filename)
	}

	return &Script{filename: filename, globals: globals}, nil
}

// Name implements Plugin
func (s *Script) Name() string {
	return s.filename
}

func (s *Script) call(ctx context.Context, name string, args ...interface{}) (interface{}, bool, error) {
	fn, ok := s.globals[name].(starlark.Callable)
	if !ok {
		return nil, false, nil
	}

	params := make(starlark.Tuple, len(args))
	for idx, arg := range args {
		value, err := interfaceToStarlark(arg)
		if err != nil {
			return nil, true, eris.Wrapf(err, "failed to pass argument %d to %s", idx+1, name)
		}
		params[idx] = value
	}

	result, err := starlark.Call(newThread(ctx, s.filename), fn, params, nil)
	if err != nil {
		if evalError, ok := err.(*starlark.EvalError); ok {
			return nil, true, eris.Errorf("%s failed in %s:\n%s", name, s.filename, evalError.Backtrace())
		}
		return nil, true, eris.Wrapf(err, "%s failed in %s", name, s.filename)
	}

	value, err := starlarkToInterface(result)
	if err != nil {
		return nil, true, eris.Wrapf(err, "unexpected return value of %s in %s", name, s.filename)
	}
	return value, true, nil
}

func (s *Script) callDict(ctx context.Context, name string, args ...interface{}) (map[string]interface{}, error) {
	value, _, err := s.call(ctx, name, args...)
	if err != nil || value == nil {
		return nil, err
	}

	dict, ok := value.(map[string]interface{})
	if !ok {
		return nil, eris.Errorf("%s in %s has to return a dict or None but returned %T", name, s.filename, value)
	}
	return dict, nil
}

func projectDict(project *ProjectInfo) map[string]interface{} {
	return map[string]interface{}{
		"name":      project.Name,
		"version":   project.Version,
		"dir":       project.Dir,
		"variables": project.Variables,
	}
}

// LoadVariables implements VariableLoader
func (s *Script) LoadVariables(ctx context.Context, project *ProjectInfo) (map[string]interface{}, error) {
	return s.callDict(ctx, loadVariablesFunc, projectDict(project))
}

// ResolveDependency implements DependencyResolver. The function receives every field of the
// dependency entry and returns None or a dict with `url` and optionally `strip` and `sha256`.
func (s *Script) ResolveDependency(ctx context.Context, dep *config.Dependency, dctx DependencyContext) (*DependencyResult, error) {
	fields := dep.Fields
	if fields == nil {
		fields = map[string]interface{}{"name": dep.Name}
	}

	dict, err := s.callDict(ctx, resolveDependencyFunc, fields, map[string]interface{}{"platform": dctx.Platform})
	if err != nil || dict == nil {
		return nil, err
	}

	result := &DependencyResult{Strip: dep.Strip, Sha256: dep.Sha256}
	result.URL, err = stringField(dict, "url")
	if err != nil {
		return nil, err
	}
	if result.URL == "" {
		return nil, nil
	}

	if strip, ok := dict["strip"]; ok {
		value, ok := strip.(int)
		if !ok {
			return nil, eris.Errorf("%s in %s returned a non-integer strip value", resolveDependencyFunc, s.filename)
		}
		result.Strip = value
	}

	if _, ok := dict["sha256"]; ok {
		result.Sha256, err = stringField(dict, "sha256")
		if err != nil {
			return nil, err
		}
	}

	return result, nil
}

// ProcessArtifactMetadata implements MetadataProcessor. The returned dict may override the manifest's
// name, version and commit.
func (s *Script) ProcessArtifactMetadata(ctx context.Context, metadata *Metadata, project *ProjectInfo) error {
	current := map[string]interface{}{
		"name":    metadata.Name,
		"version": metadata.Version,
		"commit":  metadata.Commit,
	}

	dict, err := s.callDict(ctx, processMetadataFunc, current, projectDict(project))
	if err != nil || dict == nil {
		return err
	}

	for key, target := range map[string]*string{
		"name":    &metadata.Name,
		"version": &metadata.Version,
		"commit":  &metadata.Commit,
	} {
		if _, ok := dict[key]; !ok {
			continue
		}

		*target, err = stringField(dict, key)
		if err != nil {
			return err
		}
	}
	return nil
}

// * Builtin functions

func position(thread *starlark.Thread) string {
	pos := thread.CallFrame(1).Pos
	return fmt.Sprintf("%s:%d:%d", getCtx(thread).filename, pos.Line, pos.Col)
}

func starInfo(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var message string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &message)
	if err != nil {
		return nil, err
	}

	console.Log(getCtx(thread).ctx).Info().Msgf("%s: %s", position(thread), message)
	return starlark.None, nil
}

func starWarn(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var message string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &message)
	if err != nil {
		return nil, err
	}

	console.Log(getCtx(thread).ctx).Warn().Msgf("%s: %s", position(thread), message)
	return starlark.None, nil
}

func starError(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var message string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &message)
	if err != nil {
		return nil, err
	}

	return nil, eris.New(message)
}

func getenv(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var key string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &key)
	if err != nil {
		return nil, err
	}

	return starlark.String(os.Getenv(key)), nil
}
