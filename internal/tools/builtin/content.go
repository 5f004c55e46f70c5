package builtin

import (
	"context"
	"errors"

	"reelgate/internal/studio"
	"reelgate/internal/tools"
)

type researchParams struct {
	Query     string `json:"query" jsonschema:"description=What to research about the product and its audience,required"`
	ProjectID string `json:"projectId,omitempty"`
}

func (p researchParams) Validate() error {
	if p.Query == "" {
		return errors.New("query is required")
	}
	return nil
}

type conceptParams struct {
	Brief     string `json:"brief" jsonschema:"description=Creative brief for the ad,required"`
	Research  string `json:"research,omitempty" jsonschema:"description=Research notes to ground the concept"`
	ProjectID string `json:"projectId,omitempty"`
}

func (p conceptParams) Validate() error {
	if p.Brief == "" {
		return errors.New("brief is required")
	}
	return nil
}

type segmentParams struct {
	Concept   string `json:"concept" jsonschema:"description=Approved concept to split into shots,required"`
	Count     int    `json:"count,omitempty" jsonschema:"description=Number of segments; omit for the studio default,minimum=1,maximum=12"`
	ProjectID string `json:"projectId,omitempty"`
}

func (p segmentParams) Validate() error {
	if p.Concept == "" {
		return errors.New("concept is required")
	}
	// 0 means the field was omitted and the studio picks the count.
	if p.Count < 0 || p.Count > 12 {
		return errors.New("count must be between 1 and 12, or omitted for the studio default")
	}
	return nil
}

func (b binding) webResearch() tools.Tool {
	return tools.NewTypedTool(WebResearch,
		"Research the product category, competitors and target audience.",
		false,
		func(ctx context.Context, p researchParams) (tools.ToolResult, error) {
			out, err := b.deps.Studio.Research(ctx, b.token, studio.ResearchRequest{
				Query:     p.Query,
				ProjectID: projectOf(ctx, p.ProjectID),
			})
			if err != nil {
				return tools.ToolResult{}, err
			}
			return payloadResult(out)
		})
}

func (b binding) generateConcept() tools.Tool {
	return tools.NewTypedTool(GenerateConcept,
		"Write a creative concept for the ad from a brief.",
		false,
		func(ctx context.Context, p conceptParams) (tools.ToolResult, error) {
			out, err := b.deps.Studio.Concept(ctx, b.token, studio.ConceptRequest{
				Brief:     p.Brief,
				Research:  p.Research,
				ProjectID: projectOf(ctx, p.ProjectID),
			})
			if err != nil {
				return tools.ToolResult{}, err
			}
			return payloadResult(out)
		})
}

func (b binding) segmentScript() tools.Tool {
	return tools.NewTypedTool(SegmentScript,
		"Split a concept into numbered script segments, one per shot.",
		false,
		func(ctx context.Context, p segmentParams) (tools.ToolResult, error) {
			project := projectOf(ctx, p.ProjectID)
			if project == "" {
				return tools.ToolResult{}, errNoProject
			}
			out, err := b.deps.Studio.SegmentScript(ctx, b.token, studio.SegmentRequest{
				ProjectID: project,
				Concept:   p.Concept,
				Count:     p.Count,
			})
			if err != nil {
				return tools.ToolResult{}, err
			}
			return payloadResult(out)
		})
}
