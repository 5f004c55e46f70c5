// Package builtin provides the production tools offered to specialists.
// Every tool set is bound to one run's capability token, which is attached
// to each forwarded call and never shown to the model.
package builtin

import (
	"context"
	"encoding/json"
	"errors"

	"reelgate/internal/batch"
	"reelgate/internal/credits"
	"reelgate/internal/studio"
	"reelgate/internal/tools"
)

// Tool names.
const (
	WebResearch         = "web_research"
	GenerateConcept     = "generate_concept"
	SegmentScript       = "segment_script"
	GenerateImage       = "generate_image"
	GenerateVideo       = "generate_video"
	BatchGenerateImages = "batch_generate_images"
	BatchGenerateVideos = "batch_generate_videos"
)

// Studio is the subset of the studio client the tools forward to.
type Studio interface {
	Research(ctx context.Context, token string, req studio.ResearchRequest) (studio.Payload, error)
	Concept(ctx context.Context, token string, req studio.ConceptRequest) (studio.Payload, error)
	SegmentScript(ctx context.Context, token string, req studio.SegmentRequest) (studio.Payload, error)
	GenerateImage(ctx context.Context, token string, req studio.ImageRequest) (studio.Payload, error)
	GenerateVideo(ctx context.Context, token string, req studio.VideoRequest) (studio.Payload, error)
}

// BatchRunner executes approved segment batches.
type BatchRunner interface {
	Run(ctx context.Context, req batch.Request) (*batch.Result, error)
}

// Deps are the process-wide collaborators of the tools.
type Deps struct {
	Studio Studio
	Batch  BatchRunner

	// Ledger, when set, charges for every gated tool.
	Ledger credits.Ledger
}

// Names returns every built-in tool name.
func Names() []string {
	return []string{
		WebResearch, GenerateConcept, SegmentScript,
		GenerateImage, GenerateVideo,
		BatchGenerateImages, BatchGenerateVideos,
	}
}

// Build returns a fresh registry whose tools carry token.
func Build(token string, deps Deps) *tools.Registry {
	b := binding{token: token, deps: deps}

	r := tools.NewRegistry()
	r.MustRegister(b.webResearch())
	r.MustRegister(b.generateConcept())
	r.MustRegister(b.segmentScript())
	r.MustRegister(b.guard(b.generateImage(), credits.OpImage))
	r.MustRegister(b.guard(b.generateVideo(), credits.OpVideo))
	r.MustRegister(b.guard(b.batchGenerate(BatchGenerateImages, batch.KindImage), credits.OpImageBatch))
	r.MustRegister(b.guard(b.batchGenerate(BatchGenerateVideos, batch.KindVideo), credits.OpVideoBatch))
	return r
}

type binding struct {
	token string
	deps  Deps
}

func (b binding) guard(t tools.Tool, op credits.OpType) tools.Tool {
	if b.deps.Ledger == nil {
		return t
	}
	return credits.NewGuard(t, b.deps.Ledger, op)
}

func projectOf(ctx context.Context, explicit string) string {
	if explicit != "" {
		return explicit
	}
	id, _ := tools.ProjectIDFromContext(ctx)
	return id
}

// payloadResult renders data as compact JSON for the model and keeps the
// structured value for the stream.
func payloadResult(data any) (tools.ToolResult, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return tools.ToolResult{}, err
	}
	return tools.NewDataResult(string(raw), data), nil
}

var errNoProject = errors.New("projectId is required")
