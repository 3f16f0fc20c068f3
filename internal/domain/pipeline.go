package domain

import (
	"encoding/json"
	"fmt"

	"cfgadmin/internal/collection"
	"cfgadmin/internal/registry"
	"cfgadmin/internal/validate"
	"cfgadmin/internal/wire"
)

// Approval decides whether a stage runs automatically or waits for a user.
type Approval struct {
	Type          string        `json:"type"`
	Authorization Authorization `json:"authorization"`
}

type Authorization struct {
	Roles wire.StringList `json:"roles"`
	Users wire.StringList `json:"users"`
}

// Stage is an ordered step of a pipeline holding jobs that run in parallel.
type Stage struct {
	Name                  string
	FetchMaterials        bool
	CleanWorkingDirectory bool
	NeverCleanupArtifacts bool
	Approval              *Approval
	EnvironmentVariables  *EnvironmentVariables
	Jobs                  *Jobs

	errs validate.Errors
}

type Stages = collection.Collection[*Stage]

var StageRegistry = registry.New[*Stage]("stage")

func init() {
	mustSingle(StageRegistry, KindStage, DecodeStage)
}

func NewStages(items ...*Stage) *Stages {
	return collection.New("stage", "name", StageRegistry, items...)
}

// NewStage returns a stage that fetches materials and has no jobs yet.
func NewStage(name string) *Stage {
	return &Stage{
		Name:                 name,
		FetchMaterials:       true,
		EnvironmentVariables: NewEnvironmentVariables(),
		Jobs:                 NewJobs(),
	}
}

var stageRules = validate.Rules[*Stage]{
	validate.Presence("name", func(s *Stage) string { return s.Name }),
	validate.ID("name", func(s *Stage) string { return s.Name }),
	validate.Custom("approval", func(s *Stage) string {
		if s.Approval != nil && s.Approval.Type != "success" && s.Approval.Type != "manual" {
			return fmt.Sprintf("Approval type must be 'success' or 'manual', not '%s'", s.Approval.Type)
		}
		return ""
	}),
	validate.Custom("jobs", func(s *Stage) string {
		if s.Jobs == nil || s.Jobs.Len() == 0 {
			return "Stage must have at least one job"
		}
		return ""
	}),
}

func (s *Stage) Identity() string { return s.Name }
func (s *Stage) Validate() *validate.Errors {
	s.errs = stageRules.Apply(s)
	return &s.errs
}
func (s *Stage) Errors() *validate.Errors { return &s.errs }

func (s *Stage) IsValid() bool {
	return allValid(
		s.Validate().IsEmpty(),
		s.EnvironmentVariables == nil || s.EnvironmentVariables.IsValid(),
		s.Jobs == nil || s.Jobs.IsValid(),
	)
}

type stageDoc struct {
	Name                  string          `json:"name"`
	FetchMaterials        bool            `json:"fetch_materials"`
	CleanWorkingDirectory bool            `json:"clean_working_directory"`
	NeverCleanupArtifacts bool            `json:"never_cleanup_artifacts"`
	Approval              *Approval       `json:"approval,omitempty"`
	EnvironmentVariables  json.RawMessage `json:"environment_variables"`
	Jobs                  json.RawMessage `json:"jobs"`
}

func (s *Stage) MarshalJSON() ([]byte, error) {
	doc := stageDoc{
		Name:                  s.Name,
		FetchMaterials:        s.FetchMaterials,
		CleanWorkingDirectory: s.CleanWorkingDirectory,
		NeverCleanupArtifacts: s.NeverCleanupArtifacts,
		Approval:              s.Approval,
	}
	var err error
	if doc.EnvironmentVariables, err = marshalOwned(s.EnvironmentVariables); err != nil {
		return nil, err
	}
	if doc.Jobs, err = marshalOwned(s.Jobs); err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

func DecodeStage(raw json.RawMessage) (*Stage, error) {
	doc := stageDoc{FetchMaterials: true}
	errs, err := decodeEntity(raw, &doc)
	if err != nil {
		return nil, err
	}
	s := NewStage(doc.Name)
	s.FetchMaterials = doc.FetchMaterials
	s.CleanWorkingDirectory = doc.CleanWorkingDirectory
	s.NeverCleanupArtifacts = doc.NeverCleanupArtifacts
	s.Approval = doc.Approval
	s.errs = errs
	if err := decodeList(s.EnvironmentVariables, doc.EnvironmentVariables, DecodeEnvironmentVariable); err != nil {
		return nil, fmt.Errorf("stage %q: %w", doc.Name, err)
	}
	if err := decodeList(s.Jobs, doc.Jobs, DecodeJob); err != nil {
		return nil, fmt.Errorf("stage %q: %w", doc.Name, err)
	}
	return s, nil
}

// Pipeline is a pipeline configuration as served by the pipeline config
// endpoint.
type Pipeline struct {
	Name                 string
	Group                *string
	LabelTemplate        *string
	LockBehavior         *string
	Template             *string
	Materials            *Materials
	Stages               *Stages
	EnvironmentVariables *EnvironmentVariables
	Parameters           *Parameters
	TrackingTool         TrackingTool

	errs validate.Errors
}

type Pipelines = collection.Collection[*Pipeline]

var PipelineRegistry = registry.New[*Pipeline]("pipeline")

func init() {
	mustSingle(PipelineRegistry, KindPipeline, DecodePipeline)
}

func NewPipelines(items ...*Pipeline) *Pipelines {
	return collection.New("pipeline", "name", PipelineRegistry, items...)
}

// NewPipeline returns a pipeline with empty owned collections.
func NewPipeline(name string) *Pipeline {
	return &Pipeline{
		Name:                 name,
		Materials:            NewMaterials(),
		Stages:               NewStages(),
		EnvironmentVariables: NewEnvironmentVariables(),
		Parameters:           NewParameters(),
	}
}

var pipelineRules = validate.Rules[*Pipeline]{
	validate.Presence("name", func(p *Pipeline) string { return p.Name }),
	validate.ID("name", func(p *Pipeline) string { return p.Name }),
	validate.Custom("materials", func(p *Pipeline) string {
		if p.Materials == nil || p.Materials.Len() == 0 {
			return "Pipeline must have at least one material"
		}
		return ""
	}),
	validate.Custom("stages", func(p *Pipeline) string {
		hasStages := p.Stages != nil && p.Stages.Len() > 0
		switch {
		case wire.Deref(p.Template) != "" && hasStages:
			return "Pipeline cannot have both stages and a template"
		case wire.Deref(p.Template) == "" && !hasStages:
			return "Pipeline must have at least one stage or a template"
		}
		return ""
	}),
}

func (p *Pipeline) Identity() string { return p.Name }
func (p *Pipeline) Validate() *validate.Errors {
	p.errs = pipelineRules.Apply(p)
	return &p.errs
}
func (p *Pipeline) Errors() *validate.Errors { return &p.errs }

func (p *Pipeline) IsValid() bool {
	return allValid(
		p.Validate().IsEmpty(),
		p.Materials == nil || p.Materials.IsValid(),
		p.Stages == nil || p.Stages.IsValid(),
		p.EnvironmentVariables == nil || p.EnvironmentVariables.IsValid(),
		p.Parameters == nil || p.Parameters.IsValid(),
		p.TrackingTool == nil || p.TrackingTool.IsValid(),
	)
}

type pipelineDoc struct {
	Name                 string          `json:"name"`
	Group                *string         `json:"group,omitempty"`
	LabelTemplate        *string         `json:"label_template,omitempty"`
	LockBehavior         *string         `json:"lock_behavior,omitempty"`
	Template             *string         `json:"template,omitempty"`
	Materials            json.RawMessage `json:"materials"`
	Stages               json.RawMessage `json:"stages"`
	EnvironmentVariables json.RawMessage `json:"environment_variables"`
	Parameters           json.RawMessage `json:"parameters"`
	TrackingTool         json.RawMessage `json:"tracking_tool"`
}

func (p *Pipeline) MarshalJSON() ([]byte, error) {
	doc := pipelineDoc{
		Name:          p.Name,
		Group:         p.Group,
		LabelTemplate: p.LabelTemplate,
		LockBehavior:  p.LockBehavior,
		Template:      p.Template,
		TrackingTool:  json.RawMessage("null"),
	}
	var err error
	if doc.Materials, err = marshalOwned(p.Materials); err != nil {
		return nil, err
	}
	if doc.Stages, err = marshalOwned(p.Stages); err != nil {
		return nil, err
	}
	if doc.EnvironmentVariables, err = marshalOwned(p.EnvironmentVariables); err != nil {
		return nil, err
	}
	if doc.Parameters, err = marshalOwned(p.Parameters); err != nil {
		return nil, err
	}
	if p.TrackingTool != nil {
		if doc.TrackingTool, err = json.Marshal(p.TrackingTool); err != nil {
			return nil, err
		}
	}
	return json.Marshal(doc)
}

func DecodePipeline(raw json.RawMessage) (*Pipeline, error) {
	var doc pipelineDoc
	errs, err := decodeEntity(raw, &doc)
	if err != nil {
		return nil, err
	}
	p := NewPipeline(doc.Name)
	p.Group, p.LabelTemplate, p.LockBehavior, p.Template = doc.Group, doc.LabelTemplate, doc.LockBehavior, doc.Template
	p.errs = errs
	if err := decodeList(p.Materials, doc.Materials, DecodeMaterial); err != nil {
		return nil, fmt.Errorf("pipeline %q: %w", doc.Name, err)
	}
	if err := decodeList(p.Stages, doc.Stages, DecodeStage); err != nil {
		return nil, fmt.Errorf("pipeline %q: %w", doc.Name, err)
	}
	if err := decodeList(p.EnvironmentVariables, doc.EnvironmentVariables, DecodeEnvironmentVariable); err != nil {
		return nil, fmt.Errorf("pipeline %q: %w", doc.Name, err)
	}
	if err := decodeList(p.Parameters, doc.Parameters, DecodeParameter); err != nil {
		return nil, fmt.Errorf("pipeline %q: %w", doc.Name, err)
	}
	if p.TrackingTool, err = DecodeTrackingTool(doc.TrackingTool); err != nil {
		return nil, fmt.Errorf("pipeline %q: tracking tool: %w", doc.Name, err)
	}
	return p, nil
}
