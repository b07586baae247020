package launchfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/containerd/platforms"
	"gopkg.in/yaml.v3"
)

const (

	// File name looked up when a directory is given.
	DefaultFilename = "cradle.yaml"

	DefaultName     = "app"
	DefaultBase     = "python:3.10-slim"
	DefaultManifest = "requirements.txt"
	DefaultSource   = "."
	DefaultWorkdir  = "/app"
	DefaultPort     = 7860

	// Environment variable carrying the declared port into the image.
	PortEnv = "PORT"

	defaultFreeze = "pip freeze --all"
)

// Default start command.
var DefaultCommand = Command{"python", "app.py"}

// Resource names become container ID prefixes, so they are restricted to
// characters valid in containerd identifiers.
var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]{0,62}$`)

// A launch definition.
type File struct {
	Name       string            `yaml:"name"`       // Resource name, prefix for container IDs.
	Base       string            `yaml:"base"`       // Registry reference or path to an OCI archive.
	Manifest   string            `yaml:"manifest"`   // Dependency manifest, relative to the launch file.
	Source     string            `yaml:"source"`     // Application tree, relative to the launch file.
	Workdir    string            `yaml:"workdir"`    // Application root inside the image.
	Port       int               `yaml:"port"`       // The single declared TCP port.
	Command    Command           `yaml:"command"`    // Start command, run as process 1.
	Entrypoint string            `yaml:"entrypoint"` // Script verified at launch. Derived from Command when empty.
	Env        map[string]string `yaml:"env"`        // Extra image environment.
	Install    Install           `yaml:"install"`    // Dependency installer commands.
	Setup      []Step            `yaml:"setup"`      // Steps run before dependencies are installed.
	Platforms  []string          `yaml:"platforms"`  // Target platforms. Empty means the host.

	dir string // Directory containing the launch file.
}

// Installer commands, executed through the step shell inside the workdir.
type Install struct {
	Run    string `yaml:"run"`    // Installs the manifest. Defaults to pip.
	Freeze string `yaml:"freeze"` // Prints the installed set as name==version lines.
}

// Start command. Accepts a YAML sequence or a whitespace-separated string.
type Command []string

// Implements [yaml.Unmarshaler].
func (c *Command) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*c = strings.Fields(node.Value)
		return nil
	case yaml.SequenceNode:
		var args []string
		if err := node.Decode(&args); err != nil {
			return err
		}
		*c = args
		return nil
	default:
		return fmt.Errorf("line %d: command must be a string or a list", node.Line)
	}
}

// Returns the definition used when a source tree has no launch file.
func Default(dir string) *File {
	f := &File{dir: dir}
	f.applyDefaults()
	return f
}

// Loads a launch definition.
//
// If p is a directory, DefaultFilename inside it is read; when that file
// does not exist the defaults for the directory are returned. A p naming a
// missing file fails with [ErrNotFound].
func Load(p string) (*File, error) {
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return nil, err
	}

	if info.IsDir() {
		candidate := filepath.Join(p, DefaultFilename)
		if _, err := os.Stat(candidate); errors.Is(err, os.ErrNotExist) {
			f := Default(p)
			if err := f.Validate(); err != nil {
				return nil, err
			}
			return f, nil
		}
		p = candidate
	}

	fh, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	f, err := Parse(fh)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}

	f.dir = filepath.Dir(p)
	return f, nil
}

// Decodes and validates a launch definition.
//
// Unknown keys are rejected. Relative paths resolve against the current
// directory until the caller sets a base with [File.SetDir].
func Parse(r io.Reader) (*File, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	f := &File{dir: "."}
	if len(bytes.TrimSpace(data)) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(f); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
		}
	}

	f.applyDefaults()

	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Sets the directory relative paths resolve against.
func (f *File) SetDir(dir string) {
	f.dir = dir
}

// Returns the directory relative paths resolve against.
func (f *File) Dir() string {
	return f.dir
}

func (f *File) applyDefaults() {
	if f.Name == "" {
		f.Name = DefaultName
	}
	if f.Base == "" {
		f.Base = DefaultBase
	}
	if f.Manifest == "" {
		f.Manifest = DefaultManifest
	}
	if f.Source == "" {
		f.Source = DefaultSource
	}
	if f.Workdir == "" {
		f.Workdir = DefaultWorkdir
	}
	if f.Port == 0 {
		f.Port = DefaultPort
	}
	if len(f.Command) == 0 {
		f.Command = slices.Clone(DefaultCommand)
	}
	if f.Install.Run == "" {
		f.Install.Run = "pip install --no-cache-dir -r " + shellQuote(path.Base(filepath.ToSlash(f.Manifest)))
	}
	if f.Install.Freeze == "" {
		f.Install.Freeze = defaultFreeze
	}
}

// Checks the definition for consistency.
//
// All problems are reported together, each wrapped in [ErrInvalid].
func (f *File) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if !namePattern.MatchString(f.Name) {
		invalid("name %q must be lowercase alphanumerics, '.', '_' or '-'", f.Name)
	}
	if strings.TrimSpace(f.Base) == "" {
		invalid("base must not be empty")
	}
	if f.Port < 1 || f.Port > 65535 {
		invalid("port must be between 1 and 65535, got %d", f.Port)
	}
	if !path.IsAbs(f.Workdir) {
		invalid("workdir %q must be absolute", f.Workdir)
	}
	if filepath.IsAbs(f.Manifest) {
		invalid("manifest %q must be relative to the launch file", f.Manifest)
	}
	if len(f.Command) == 0 || strings.TrimSpace(f.Command[0]) == "" {
		invalid("command must not be empty")
	}

	for k, v := range f.Env {
		if k == "" || strings.ContainsAny(k, "= \t") {
			invalid("env key %q is not a valid variable name", k)
		}
		if k == PortEnv && v != strconv.Itoa(f.Port) {
			invalid("env %s=%s conflicts with port %d", PortEnv, v, f.Port)
		}
	}

	for _, p := range f.Platforms {
		if _, err := platforms.Parse(p); err != nil {
			invalid("platform %q: %v", p, err)
		}
	}

	for i, step := range f.Setup {
		if err := step.validate(); err != nil {
			invalid("setup step %d: %v", i+1, err)
		}
	}

	return errors.Join(errs...)
}

// Absolute path of the dependency manifest on the host.
func (f *File) ManifestPath() string {
	return f.resolve(f.Manifest)
}

// Absolute path of the application tree on the host.
func (f *File) SourceDir() string {
	return f.resolve(f.Source)
}

// Path of the manifest inside the image.
func (f *File) ImageManifestPath() string {
	return path.Join(f.Workdir, path.Base(filepath.ToSlash(f.Manifest)))
}

// Path inside the image that must exist for the start command to run.
//
// An explicit Entrypoint wins. Otherwise an interpreter invocation such as
// "python -u app.py" names its first operand, and any other command whose
// first argument is a path (contains a slash) names itself. Returns an empty
// string when no script can be determined (e.g., "python -m module" or
// "uvicorn main:app").
func (f *File) EntrypointPath() string {
	target := f.Entrypoint
	if target == "" {
		target = scriptArg(f.Command)
	}
	if target == "" {
		return ""
	}
	if path.IsAbs(target) {
		return path.Clean(target)
	}
	return path.Join(f.Workdir, target)
}

// Entry point relative to the source tree, or empty when the entry point
// lives outside the workdir.
func (f *File) SourceEntrypoint() string {
	p := f.EntrypointPath()
	if p == "" {
		return ""
	}
	rel, ok := strings.CutPrefix(p, strings.TrimSuffix(f.Workdir, "/")+"/")
	if !ok {
		return ""
	}
	return filepath.Join(f.SourceDir(), filepath.FromSlash(rel))
}

// The exposed port key for the image config (e.g., "7860/tcp").
func (f *File) ExposedPort() string {
	return strconv.Itoa(f.Port) + "/tcp"
}

// Image environment entries, sorted, with PORT always present.
func (f *File) ImageEnv() []string {
	env := make([]string, 0, len(f.Env)+1)
	env = append(env, PortEnv+"="+strconv.Itoa(f.Port))
	for k, v := range f.Env {
		if k == PortEnv {
			continue
		}
		env = append(env, k+"="+v)
	}
	slices.Sort(env)
	return env
}

func (f *File) resolve(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	abs, err := filepath.Abs(filepath.Join(f.dir, p))
	if err != nil {
		return filepath.Join(f.dir, p)
	}
	return abs
}

// Picks the script argument out of a start command.
//
// For a known interpreter, leading flags are skipped and the first operand
// is the script. Flags that take the program inline ("-m", "-c", ...) mean
// there is no script. Any other command is its own script when it is a
// path, or names a script as its first argument.
func scriptArg(cmd Command) string {
	if len(cmd) == 0 {
		return ""
	}
	if name := interpreter(cmd[0]); name != "" {
		return interpreterScript(name, cmd[1:])
	}
	if strings.Contains(cmd[0], "/") {
		return cmd[0]
	}
	if len(cmd) < 2 || strings.HasPrefix(cmd[1], "-") {
		return ""
	}
	return scriptOperand(cmd[1])
}

// Interpreters whose first operand is the program they run.
var interpreters = []string{"python", "pypy", "sh", "bash", "dash", "node"}

// Returns the interpreter family of a command, or "" if it is not one.
func interpreter(arg string) string {
	base := path.Base(arg)
	for _, name := range interpreters {
		// Versioned names such as python3 or python3.11 belong to the family.
		if rest, ok := strings.CutPrefix(base, name); ok && strings.Trim(rest, "0123456789.") == "" {
			return name
		}
	}
	return ""
}

// Flags that give the program inline, so no script file is run.
var inlineFlags = map[string][]string{
	"python": {"-m", "-c"},
	"pypy":   {"-m", "-c"},
	"sh":     {"-c"},
	"bash":   {"-c"},
	"dash":   {"-c"},
	"node":   {"-e", "-p", "--eval", "--print"},
}

// Interpreter flags that consume the next argument.
var valueFlags = map[string][]string{
	"python": {"-W", "-X"},
	"pypy":   {"-W", "-X"},
	"bash":   {"-o", "-O", "--rcfile", "--init-file"},
	"sh":     {"-o"},
	"dash":   {"-o"},
	"node":   {"-r", "--require"},
}

func interpreterScript(name string, args []string) string {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--":
			if i+1 < len(args) {
				return scriptOperand(args[i+1])
			}
			return ""
		case slices.Contains(inlineFlags[name], arg):
			return ""
		case slices.Contains(valueFlags[name], arg):
			i++
		case strings.HasPrefix(arg, "--"):
		case strings.HasPrefix(arg, "-") && len(arg) > 1:
			// Clustered short flags such as "-um" or "-ec" end with the
			// inline flag.
			if last := "-" + arg[len(arg)-1:]; slices.Contains(inlineFlags[name], last) {
				return ""
			}
		default:
			return scriptOperand(arg)
		}
	}
	return ""
}

// Module references like "main:app" and subcommands like "run" are not
// files.
func scriptOperand(arg string) string {
	if arg == "-" || strings.Contains(arg, ":") {
		return ""
	}
	if !strings.Contains(arg, "/") && path.Ext(arg) == "" {
		return ""
	}
	return arg
}

// Quotes s for a POSIX shell when it contains anything unusual.
func shellQuote(s string) string {
	if s != "" && strings.IndexFunc(s, func(r rune) bool {
		return !(r == '-' || r == '_' || r == '.' || r == '/' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'))
	}) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
