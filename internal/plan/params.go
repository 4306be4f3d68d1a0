package plan

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/danielpatrickdp/plancore/internal/affect"
)

// #region params

// Params is the closed set of per-tool parameter shapes. Only types in this
// package implement it.
type Params interface {
	Tool() ToolID
	Fields() map[string]any
	isParams()
}

// Provenance is carried by every step: the request text it was derived from.
type Provenance struct {
	Intent  string `json:"input"`
	Context string `json:"context,omitempty"`
	Step    int    `json:"step"`
}

// AnalyzeParams parameterizes an analyze step.
type AnalyzeParams struct {
	Provenance
}

// GenerateParams parameterizes a generate step.
type GenerateParams struct {
	Provenance
	Strategy Strategy `json:"strategy"`
}

// ValidateParams parameterizes a validate step. Target is the step number under check.
type ValidateParams struct {
	Provenance
	Target int `json:"target"`
}

// ExecuteParams parameterizes an execute step.
type ExecuteParams struct {
	Provenance
	DryRun bool `json:"dry_run"`
}

// ReportParams parameterizes a report step.
type ReportParams struct {
	Provenance
	Format string `json:"format"`
}

func (AnalyzeParams) Tool() ToolID  { return ToolAnalyze }
func (GenerateParams) Tool() ToolID { return ToolGenerate }
func (ValidateParams) Tool() ToolID { return ToolValidate }
func (ExecuteParams) Tool() ToolID  { return ToolExecute }
func (ReportParams) Tool() ToolID   { return ToolReport }

func (AnalyzeParams) isParams()  {}
func (GenerateParams) isParams() {}
func (ValidateParams) isParams() {}
func (ExecuteParams) isParams()  {}
func (ReportParams) isParams()   {}

func (p AnalyzeParams) Fields() map[string]any { return p.base() }

func (p GenerateParams) Fields() map[string]any {
	m := p.base()
	m["strategy"] = string(p.Strategy)
	return m
}

func (p ValidateParams) Fields() map[string]any {
	m := p.base()
	m["target"] = p.Target
	return m
}

func (p ExecuteParams) Fields() map[string]any {
	m := p.base()
	m["dry_run"] = p.DryRun
	return m
}

func (p ReportParams) Fields() map[string]any {
	m := p.base()
	m["format"] = p.Format
	return m
}

func (p Provenance) base() map[string]any {
	m := map[string]any{"input": p.Intent, "step": p.Step}
	if p.Context != "" {
		m["context"] = p.Context
	}
	return m
}

// #endregion params

// #region constructor

// NewParams builds the parameter shape for tool.
func NewParams(tool ToolID, prov Provenance, strategy Strategy) (Params, error) {
	switch tool {
	case ToolAnalyze:
		return AnalyzeParams{Provenance: prov}, nil
	case ToolGenerate:
		return GenerateParams{Provenance: prov, Strategy: strategy}, nil
	case ToolValidate:
		target := prov.Step - 1
		if target < 1 {
			target = 1
		}
		return ValidateParams{Provenance: prov, Target: target}, nil
	case ToolExecute:
		return ExecuteParams{Provenance: prov}, nil
	case ToolReport:
		return ReportParams{Provenance: prov, Format: "text"}, nil
	}
	return nil, fmt.Errorf("%w: unknown tool %q", affect.ErrInvalidInput, tool)
}

// #endregion constructor

// #region json

type stepJSON struct {
	ID        string          `json:"id"`
	Tool      ToolID          `json:"tool"`
	Params    json.RawMessage `json:"params"`
	Priority  int             `json:"priority"`
	TimeoutMs int64           `json:"timeout_ms"`
}

// MarshalJSON encodes the params under the step's tool tag.
func (s ToolStep) MarshalJSON() ([]byte, error) {
	raw := []byte("null")
	if s.Params != nil {
		b, err := json.Marshal(s.Params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		raw = b
	}
	return json.Marshal(stepJSON{
		ID:        s.ID,
		Tool:      s.Tool,
		Params:    raw,
		Priority:  s.Priority,
		TimeoutMs: s.Timeout.Milliseconds(),
	})
}

// UnmarshalJSON decodes params into the concrete type selected by the tool tag.
func (s *ToolStep) UnmarshalJSON(data []byte) error {
	var wire stepJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	var params Params
	var err error
	switch wire.Tool {
	case ToolAnalyze:
		var p AnalyzeParams
		err = json.Unmarshal(wire.Params, &p)
		params = p
	case ToolGenerate:
		var p GenerateParams
		err = json.Unmarshal(wire.Params, &p)
		params = p
	case ToolValidate:
		var p ValidateParams
		err = json.Unmarshal(wire.Params, &p)
		params = p
	case ToolExecute:
		var p ExecuteParams
		err = json.Unmarshal(wire.Params, &p)
		params = p
	case ToolReport:
		var p ReportParams
		err = json.Unmarshal(wire.Params, &p)
		params = p
	default:
		return fmt.Errorf("%w: unknown tool %q", affect.ErrInvalidInput, wire.Tool)
	}
	if err != nil {
		return fmt.Errorf("unmarshal %s params: %w", wire.Tool, err)
	}

	*s = ToolStep{
		ID:       wire.ID,
		Tool:     wire.Tool,
		Params:   params,
		Priority: wire.Priority,
		Timeout:  time.Duration(wire.TimeoutMs) * time.Millisecond,
	}
	return nil
}

// #endregion json
