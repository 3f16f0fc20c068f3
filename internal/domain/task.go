package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	"cfgadmin/internal/collection"
	"cfgadmin/internal/registry"
	"cfgadmin/internal/validate"
	"cfgadmin/internal/wire"
)

// Task discriminators.
const (
	TaskExec      = "exec"
	TaskAnt       = "ant"
	TaskNAnt      = "nant"
	TaskRake      = "rake"
	TaskFetch     = "fetch"
	TaskPluggable = "pluggable_task"
)

var runIfValues = []string{"passed", "failed", "any"}

// Task is one variant of the task family. Tasks are positional: they have no
// identity key.
type Task interface {
	json.Marshaler
	Identity() string
	Validate() *validate.Errors
	Errors() *validate.Errors
	IsValid() bool
	Type() string
	String() string
	Base() *TaskBase
}

// TaskBase holds what every task variant has.
type TaskBase struct {
	RunIf    wire.StringList
	OnCancel Task

	errs validate.Errors
}

func (b *TaskBase) Base() *TaskBase          { return b }
func (b *TaskBase) Identity() string         { return "" }
func (b *TaskBase) Errors() *validate.Errors { return &b.errs }

type Tasks = collection.Collection[Task]

// TaskRegistry resolves task discriminators, plus plugin ids registered by
// RegisterPlugins.
var TaskRegistry = registry.New[Task]("task")

func init() {
	TaskRegistry.MustRegister(registry.Variant[Task]{Kind: TaskExec, DisplayName: "Custom Command", New: newExecTask})
	TaskRegistry.MustRegister(registry.Variant[Task]{Kind: TaskAnt, DisplayName: "Ant", New: newAntTask})
	TaskRegistry.MustRegister(registry.Variant[Task]{Kind: TaskNAnt, DisplayName: "NAnt", New: newNAntTask})
	TaskRegistry.MustRegister(registry.Variant[Task]{Kind: TaskRake, DisplayName: "Rake", New: newRakeTask})
	TaskRegistry.MustRegister(registry.Variant[Task]{Kind: TaskFetch, DisplayName: "Fetch Artifact", New: newFetchTask})
	TaskRegistry.MustRegister(registry.Variant[Task]{Kind: TaskPluggable, DisplayName: "Plugin Task", New: newPluggableTask})
}

func NewTasks(items ...Task) *Tasks { return collection.New[Task]("task", "", TaskRegistry, items...) }

// DecodeTask reads a {type, attributes, errors} task document, including its
// on-cancel chain.
func DecodeTask(raw json.RawMessage) (Task, error) {
	env, err := wire.Unwrap(raw)
	if err != nil {
		return nil, err
	}
	t, err := TaskRegistry.Create(env.Type, env.Attributes)
	if err != nil {
		return nil, err
	}
	t.Base().errs = validate.FromMap(env.Errors)
	return t, nil
}

func runIfRule[T Task]() validate.Rule[T] {
	return validate.OneOf("runIf", func(t T) []string { return t.Base().RunIf }, runIfValues)
}

func taskValid(t Task) bool {
	ok := t.Validate().IsEmpty()
	if c := t.Base().OnCancel; c != nil && !c.IsValid() {
		ok = false
	}
	return ok
}

type taskAttrs struct {
	RunIf    wire.StringList `json:"run_if"`
	OnCancel json.RawMessage `json:"on_cancel"`
}

func (b *TaskBase) attrs() (taskAttrs, error) {
	a := taskAttrs{RunIf: b.RunIf, OnCancel: json.RawMessage("null")}
	if b.OnCancel != nil {
		raw, err := json.Marshal(b.OnCancel)
		if err != nil {
			return a, fmt.Errorf("encode on_cancel: %w", err)
		}
		a.OnCancel = raw
	}
	return a, nil
}

func (b *TaskBase) load(a taskAttrs) error {
	b.RunIf = a.RunIf
	if wire.IsNull(a.OnCancel) {
		return nil
	}
	t, err := DecodeTask(a.OnCancel)
	if err != nil {
		return fmt.Errorf("decode on_cancel: %w", err)
	}
	b.OnCancel = t
	return nil
}

// ExecTask runs a command.
type ExecTask struct {
	Command          string
	Arguments        wire.StringList
	Args             *string
	WorkingDirectory *string
	TaskBase
}

type execAttrs struct {
	Command          string           `json:"command,omitempty"`
	Arguments        *wire.StringList `json:"arguments,omitempty"`
	Args             *string          `json:"args,omitempty"`
	WorkingDirectory *string          `json:"working_directory,omitempty"`
	taskAttrs
}

var execRules = validate.Rules[*ExecTask]{
	validate.Presence("command", func(t *ExecTask) string { return t.Command }),
	runIfRule[*ExecTask](),
}

func (t *ExecTask) Type() string { return TaskExec }
func (t *ExecTask) Validate() *validate.Errors {
	t.errs = execRules.Apply(t)
	return &t.errs
}
func (t *ExecTask) IsValid() bool { return taskValid(t) }

func (t *ExecTask) String() string {
	args := strings.Join(t.Arguments, " ")
	if t.Args != nil {
		args = *t.Args
	}
	return strings.TrimSpace(t.Command + " " + args)
}

func (t *ExecTask) MarshalJSON() ([]byte, error) {
	common, err := t.attrs()
	if err != nil {
		return nil, err
	}
	a := execAttrs{Command: t.Command, Args: t.Args, WorkingDirectory: t.WorkingDirectory, taskAttrs: common}
	if t.Args == nil {
		args := t.Arguments
		a.Arguments = &args
	}
	return wire.Wrap(TaskExec, a)
}

func newExecTask(raw json.RawMessage) (Task, error) {
	var a execAttrs
	if err := unmarshalAttrs(raw, &a); err != nil {
		return nil, err
	}
	t := &ExecTask{Command: a.Command, Args: a.Args, WorkingDirectory: a.WorkingDirectory}
	if a.Arguments != nil {
		t.Arguments = *a.Arguments
	}
	return t, t.load(a.taskAttrs)
}

// BuildTask is the shape shared by the ant and rake tasks.
type BuildTask struct {
	BuildFile        *string
	Target           *string
	WorkingDirectory *string
	TaskBase
}

type buildAttrs struct {
	BuildFile        *string `json:"build_file,omitempty"`
	Target           *string `json:"target,omitempty"`
	WorkingDirectory *string `json:"working_directory,omitempty"`
	taskAttrs
}

func (t *BuildTask) String() string {
	return strings.TrimSpace(wire.Deref(t.Target) + " " + wire.Deref(t.BuildFile))
}

func (t *BuildTask) encode(kind string) ([]byte, error) {
	common, err := t.attrs()
	if err != nil {
		return nil, err
	}
	return wire.Wrap(kind, buildAttrs{BuildFile: t.BuildFile, Target: t.Target, WorkingDirectory: t.WorkingDirectory, taskAttrs: common})
}

func (t *BuildTask) decode(raw json.RawMessage) error {
	var a buildAttrs
	if err := unmarshalAttrs(raw, &a); err != nil {
		return err
	}
	t.BuildFile, t.Target, t.WorkingDirectory = a.BuildFile, a.Target, a.WorkingDirectory
	return t.load(a.taskAttrs)
}

// AntTask runs an Ant target.
type AntTask struct{ BuildTask }

var antRules = validate.Rules[*AntTask]{runIfRule[*AntTask]()}

func (t *AntTask) Type() string { return TaskAnt }
func (t *AntTask) Validate() *validate.Errors {
	t.errs = antRules.Apply(t)
	return &t.errs
}
func (t *AntTask) IsValid() bool                { return taskValid(t) }
func (t *AntTask) MarshalJSON() ([]byte, error) { return t.encode(TaskAnt) }

func newAntTask(raw json.RawMessage) (Task, error) {
	t := &AntTask{}
	return t, t.decode(raw)
}

// RakeTask runs a Rake target.
type RakeTask struct{ BuildTask }

var rakeRules = validate.Rules[*RakeTask]{runIfRule[*RakeTask]()}

func (t *RakeTask) Type() string { return TaskRake }
func (t *RakeTask) Validate() *validate.Errors {
	t.errs = rakeRules.Apply(t)
	return &t.errs
}
func (t *RakeTask) IsValid() bool                { return taskValid(t) }
func (t *RakeTask) MarshalJSON() ([]byte, error) { return t.encode(TaskRake) }

func newRakeTask(raw json.RawMessage) (Task, error) {
	t := &RakeTask{}
	return t, t.decode(raw)
}

// NAntTask runs a NAnt target, optionally with a specific NAnt install.
type NAntTask struct {
	BuildTask
	NAntPath *string
}

var nantRules = validate.Rules[*NAntTask]{runIfRule[*NAntTask]()}

func (t *NAntTask) Type() string { return TaskNAnt }
func (t *NAntTask) Validate() *validate.Errors {
	t.errs = nantRules.Apply(t)
	return &t.errs
}
func (t *NAntTask) IsValid() bool { return taskValid(t) }

func (t *NAntTask) MarshalJSON() ([]byte, error) {
	common, err := t.attrs()
	if err != nil {
		return nil, err
	}
	return wire.Wrap(TaskNAnt, struct {
		buildAttrs
		NAntPath *string `json:"nant_path,omitempty"`
	}{
		buildAttrs: buildAttrs{BuildFile: t.BuildFile, Target: t.Target, WorkingDirectory: t.WorkingDirectory, taskAttrs: common},
		NAntPath:   t.NAntPath,
	})
}

func newNAntTask(raw json.RawMessage) (Task, error) {
	t := &NAntTask{}
	if err := t.decode(raw); err != nil {
		return nil, err
	}
	var a struct {
		NAntPath *string `json:"nant_path"`
	}
	if err := unmarshalAttrs(raw, &a); err != nil {
		return nil, err
	}
	t.NAntPath = a.NAntPath
	return t, nil
}

// FetchTask copies an artifact from an upstream job.
type FetchTask struct {
	Pipeline      *string
	Stage         string
	Job           string
	Source        string
	IsSourceAFile bool
	Destination   *string
	TaskBase
}

type fetchAttrs struct {
	Pipeline      *string `json:"pipeline,omitempty"`
	Stage         string  `json:"stage,omitempty"`
	Job           string  `json:"job,omitempty"`
	Source        string  `json:"source,omitempty"`
	IsSourceAFile bool    `json:"is_source_a_file"`
	Destination   *string `json:"destination,omitempty"`
	taskAttrs
}

var fetchRules = validate.Rules[*FetchTask]{
	validate.Presence("stage", func(t *FetchTask) string { return t.Stage }),
	validate.Presence("job", func(t *FetchTask) string { return t.Job }),
	validate.Presence("source", func(t *FetchTask) string { return t.Source }),
	runIfRule[*FetchTask](),
}

func (t *FetchTask) Type() string { return TaskFetch }
func (t *FetchTask) Validate() *validate.Errors {
	t.errs = fetchRules.Apply(t)
	return &t.errs
}
func (t *FetchTask) IsValid() bool { return taskValid(t) }

func (t *FetchTask) String() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{wire.Deref(t.Pipeline), t.Stage, t.Job} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

func (t *FetchTask) MarshalJSON() ([]byte, error) {
	common, err := t.attrs()
	if err != nil {
		return nil, err
	}
	return wire.Wrap(TaskFetch, fetchAttrs{
		Pipeline:      t.Pipeline,
		Stage:         t.Stage,
		Job:           t.Job,
		Source:        t.Source,
		IsSourceAFile: t.IsSourceAFile,
		Destination:   t.Destination,
		taskAttrs:     common,
	})
}

func newFetchTask(raw json.RawMessage) (Task, error) {
	var a fetchAttrs
	if err := unmarshalAttrs(raw, &a); err != nil {
		return nil, err
	}
	t := &FetchTask{
		Pipeline:      a.Pipeline,
		Stage:         a.Stage,
		Job:           a.Job,
		Source:        a.Source,
		IsSourceAFile: a.IsSourceAFile,
		Destination:   a.Destination,
	}
	return t, t.load(a.taskAttrs)
}

// PluggableTask is a task implemented by a server plugin.
type PluggableTask struct {
	PluginConfiguration PluginMetadata
	Configuration       *ConfigProperties
	TaskBase
}

type pluggableAttrs struct {
	PluginConfiguration PluginMetadata  `json:"plugin_configuration"`
	Configuration       json.RawMessage `json:"configuration"`
	taskAttrs
}

var pluggableRules = validate.Rules[*PluggableTask]{
	validate.Presence("pluginConfiguration", func(t *PluggableTask) string { return t.PluginConfiguration.ID },
		validate.Message("Plugin must be present")),
	runIfRule[*PluggableTask](),
}

func (t *PluggableTask) Type() string { return TaskPluggable }
func (t *PluggableTask) Validate() *validate.Errors {
	t.errs = pluggableRules.Apply(t)
	return &t.errs
}

func (t *PluggableTask) IsValid() bool {
	return allValid(taskValid(t), t.Configuration == nil || t.Configuration.IsValid())
}

func (t *PluggableTask) String() string {
	if t.Configuration == nil {
		return ""
	}
	parts := collection.Collect(t.Configuration, func(p *ConfigProperty) string {
		if p.Value == nil || p.Value.IsSecure() {
			return p.Key + ": ****"
		}
		return p.Key + ": " + p.Value.Value()
	})
	return strings.Join(parts, " ")
}

func (t *PluggableTask) MarshalJSON() ([]byte, error) {
	common, err := t.attrs()
	if err != nil {
		return nil, err
	}
	cfg, err := marshalOwned(t.Configuration)
	if err != nil {
		return nil, err
	}
	return wire.Wrap(TaskPluggable, pluggableAttrs{PluginConfiguration: t.PluginConfiguration, Configuration: cfg, taskAttrs: common})
}

func newPluggableTask(raw json.RawMessage) (Task, error) {
	var a pluggableAttrs
	if err := unmarshalAttrs(raw, &a); err != nil {
		return nil, err
	}
	t := &PluggableTask{PluginConfiguration: a.PluginConfiguration, Configuration: NewConfigProperties()}
	if err := decodeList(t.Configuration, a.Configuration, DecodeConfigProperty); err != nil {
		return nil, err
	}
	return t, t.load(a.taskAttrs)
}
