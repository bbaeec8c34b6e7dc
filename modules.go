package minipy

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/tliron/commonlog"
)

func logger(name string) commonlog.Logger {
	return commonlog.GetLogger(name)
}

func joinPath(path []string) string {
	return strings.Join(path, ".")
}

// An import that has started but not finished. Importers that reach it
// through a cycle register callbacks run once it completes.
type importJob struct {
	name   string
	onDone []func(module *Thing) error
}

func (self *importJob) whenDone(callback func(module *Thing) error) {
	self.onDone = append(self.onDone, callback)
}

// Memoizes completed modules by absolute path and tracks in-flight imports.
type moduleRegistry struct {
	mutex    sync.Mutex
	cache    map[string]*Thing
	inFlight map[string]*importJob
}

func (self *moduleRegistry) init() {
	self.cache = map[string]*Thing{}
	self.inFlight = map[string]*importJob{}
}

// Returns the cached module, or the in-flight job, or registers a new job
// which the caller must complete with finish.
func (self *moduleRegistry) begin(path string, name string) (*Thing, *importJob, bool) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	if module, ok := self.cache[path]; ok {
		return module, nil, false
	}
	if job, ok := self.inFlight[path]; ok {
		return nil, job, false
	}
	job := &importJob{name: name}
	self.inFlight[path] = job
	return nil, job, true
}

func (self *moduleRegistry) finish(path string, module *Thing) *importJob {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	job := self.inFlight[path]
	delete(self.inFlight, path)
	if module != nil {
		self.cache[path] = module
	}
	return job
}

// Directories from MINIPY_PATH, highest priority first.
func environmentSearchPath() []string {
	value := os.Getenv(SearchPathVariable)
	entries := strings.FieldsFunc(value, func(r rune) bool { return r == ':' || r == ';' })
	slices.Reverse(entries)
	return entries
}

// ModuleSearchPath lists the directories probed for an import made from a
// file in importerDirectory, in probe order.
func (ctx *Context) ModuleSearchPath(importerDirectory string) []string {
	directories := []string{importerDirectory}
	directories = append(directories, environmentSearchPath()...)
	return append(directories, ctx.SearchPath...)
}

// Resolve a dotted module name to an absolute source file path.
func (ctx *Context) resolveModule(name string, importerDirectory string) (string, error) {
	relative := filepath.Join(strings.Split(name, ".")...) + SourceExtension
	for _, directory := range ctx.ModuleSearchPath(importerDirectory) {
		candidate := filepath.Join(directory, relative)
		info, err := os.Stat(candidate)
		if err != nil || info.IsDir() {
			continue
		}
		absolute, err := filepath.Abs(candidate)
		if err != nil {
			return "", err
		}
		return filepath.Clean(absolute), nil
	}
	return "", ctx.Errorf(ctx.Classes.ImportError, "No module named '%s'", name)
}

// Load a module by dotted name. When the module is part of an import cycle
// still being executed, the in-flight job is returned instead.
func (ctx *Context) loadModule(name string, importerDirectory string) (*Thing, *importJob, error) {
	path, err := ctx.resolveModule(name, importerDirectory)
	if err != nil {
		return nil, nil, err
	}

	log := logger("minipy.modules")
	module, job, started := ctx.modules.begin(path, name)
	if module != nil {
		log.Debugf("cache hit for %s (%s)", name, path)
		return module, nil, nil
	}
	if !started {
		log.Debugf("circular import of %s, deferring bindings", name)
		return nil, job, nil
	}

	log.Debugf("importing %s from %s", name, path)
	namespace := NewNamespace()
	namespace.Set("__name__", ctx.NewString(name))
	namespace.Set("__file__", ctx.NewString(path))
	module = ctx.NewModule(name, namespace)
	return ctx.completeModule(path, module, ctx.executeFile(path, namespace))
}

func (ctx *Context) completeModule(path string, module *Thing, err error) (*Thing, *importJob, error) {
	if err != nil {
		ctx.modules.finish(path, nil)
		return nil, nil, err
	}
	job := ctx.modules.finish(path, module)
	if job == nil {
		return module, nil, nil
	}
	for _, callback := range job.onDone {
		if err := callback(module); err != nil {
			return nil, nil, err
		}
	}
	return module, nil, nil
}

func (ctx *Context) executeFile(path string, namespace *Namespace) error {
	source, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return ctx.executeSource(string(source), path, namespace)
}

func (ctx *Context) executeSource(source string, file string, namespace *Namespace) error {
	ctx.rememberSource(file, source)
	program, err := Parse(source, file)
	if err != nil {
		return err
	}
	return program.Eval(ctx, NewEnvironment(ctx.BaseEnvironment, namespace, ""))
}

// Import loads a module by dotted name, resolving relative to the current
// working directory, and returns its namespace.
func (ctx *Context) Import(name string) (*Namespace, error) {
	module, job, err := ctx.loadModule(name, ".")
	if err != nil {
		return nil, err
	}
	if job != nil {
		return nil, ctx.Errorf(ctx.Classes.ImportError, "module '%s' is still being imported", job.name)
	}
	return module.Namespace, nil
}

func (ctx *Context) mainNamespace(file string) *Namespace {
	namespace := NewNamespace()
	namespace.Set("__name__", ctx.NewString("__main__"))
	namespace.Set("__file__", ctx.NewString(file))
	return namespace
}

// RunFile executes a source file as the __main__ module. The file takes
// part in import cycle detection like any other module.
func (ctx *Context) RunFile(path string) (*Namespace, error) {
	absolute, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	absolute = filepath.Clean(absolute)

	namespace := ctx.mainNamespace(absolute)
	module := ctx.NewModule("__main__", namespace)
	_, job, started := ctx.modules.begin(absolute, "__main__")
	if !started && job != nil {
		return nil, ctx.Errorf(ctx.Classes.ImportError, "%s is already running", path)
	}
	if _, _, err := ctx.completeModule(absolute, module, ctx.executeFile(absolute, namespace)); err != nil {
		return namespace, err
	}
	return namespace, nil
}

// RunSource executes source text as the __main__ module. Imports resolve
// relative to the directory of file.
func (ctx *Context) RunSource(source string, file string) (*Namespace, error) {
	namespace := ctx.mainNamespace(file)
	return namespace, ctx.executeSource(source, file, namespace)
}
