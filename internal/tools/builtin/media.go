package builtin

import (
	"context"
	"errors"

	"reelgate/internal/batch"
	"reelgate/internal/studio"
	"reelgate/internal/tools"
)

type imageParams struct {
	SegmentID string `json:"segmentId" jsonschema:"description=Segment to illustrate,required"`
	Prompt    string `json:"prompt" jsonschema:"description=Visual description of the still,required"`
	Model     string `json:"model,omitempty" jsonschema:"description=Image model override"`
	ProjectID string `json:"projectId,omitempty"`
}

func (p imageParams) Validate() error {
	if p.SegmentID == "" || p.Prompt == "" {
		return errors.New("segmentId and prompt are required")
	}
	return nil
}

type videoParams struct {
	SegmentID string `json:"segmentId" jsonschema:"description=Segment to animate,required"`
	Prompt    string `json:"prompt" jsonschema:"description=Motion and camera direction,required"`
	ImageURL  string `json:"imageUrl,omitempty" jsonschema:"description=Still to start from"`
	Model     string `json:"model,omitempty" jsonschema:"description=Video model override"`
	ProjectID string `json:"projectId,omitempty"`
}

func (p videoParams) Validate() error {
	if p.SegmentID == "" || p.Prompt == "" {
		return errors.New("segmentId and prompt are required")
	}
	return nil
}

type batchParams struct {
	Model           string   `json:"model,omitempty" jsonschema:"description=Model override for every segment"`
	RetrySegmentIDs []string `json:"retrySegmentIds,omitempty" jsonschema:"description=Only regenerate these segments"`
	ProjectID       string   `json:"projectId,omitempty"`
}

func (b binding) generateImage() tools.Tool {
	return tools.NewTypedTool(GenerateImage,
		"Generate the still image for one segment. Requires approval.",
		true,
		func(ctx context.Context, p imageParams) (tools.ToolResult, error) {
			out, err := b.deps.Studio.GenerateImage(ctx, b.token, studio.ImageRequest{
				ProjectID: projectOf(ctx, p.ProjectID),
				SegmentID: p.SegmentID,
				Prompt:    p.Prompt,
				Model:     p.Model,
			})
			if err != nil {
				return tools.ToolResult{}, err
			}
			return payloadResult(out)
		})
}

func (b binding) generateVideo() tools.Tool {
	return tools.NewTypedTool(GenerateVideo,
		"Generate the video clip for one segment. Requires approval.",
		true,
		func(ctx context.Context, p videoParams) (tools.ToolResult, error) {
			out, err := b.deps.Studio.GenerateVideo(ctx, b.token, studio.VideoRequest{
				ProjectID: projectOf(ctx, p.ProjectID),
				SegmentID: p.SegmentID,
				Prompt:    p.Prompt,
				ImageURL:  p.ImageURL,
				Model:     p.Model,
			})
			if err != nil {
				return tools.ToolResult{}, err
			}
			return payloadResult(out)
		})
}

func (b binding) batchGenerate(name string, kind batch.Kind) tools.Tool {
	description := "Generate stills for every segment of the project in parallel. Requires approval."
	if kind == batch.KindVideo {
		description = "Generate clips for every segment of the project, one after another. Requires approval."
	}

	return tools.NewTypedTool(name, description, true,
		func(ctx context.Context, p batchParams) (tools.ToolResult, error) {
			res, err := b.deps.Batch.Run(ctx, batch.Request{
				Kind:            kind,
				Token:           b.token,
				ProjectID:       projectOf(ctx, p.ProjectID),
				Model:           p.Model,
				RetrySegmentIDs: p.RetrySegmentIDs,
			})
			if errors.Is(err, batch.ErrMissingCapability) {
				return tools.ToolResult{}, tools.Fatal(name, err)
			}
			if err != nil {
				return tools.ToolResult{}, err
			}
			return payloadResult(*res)
		})
}
