package builtin

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reelgate/internal/batch"
	"reelgate/internal/credits"
	"reelgate/internal/studio"
	"reelgate/internal/tools"
)

type fakeStudio struct {
	tokens  []string
	images  []studio.ImageRequest
	failing bool
}

func (f *fakeStudio) record(token string) error {
	f.tokens = append(f.tokens, token)
	if f.failing {
		return &studio.StudioError{Path: "/x", Status: 500, Message: "boom", Transient: true}
	}
	return nil
}

func (f *fakeStudio) Research(ctx context.Context, token string, req studio.ResearchRequest) (studio.Payload, error) {
	return studio.Payload{"summary": "gentle cleansers trend"}, f.record(token)
}

func (f *fakeStudio) Concept(ctx context.Context, token string, req studio.ConceptRequest) (studio.Payload, error) {
	return studio.Payload{"concept": req.Brief}, f.record(token)
}

func (f *fakeStudio) SegmentScript(ctx context.Context, token string, req studio.SegmentRequest) (studio.Payload, error) {
	return studio.Payload{"projectId": req.ProjectID}, f.record(token)
}

func (f *fakeStudio) GenerateImage(ctx context.Context, token string, req studio.ImageRequest) (studio.Payload, error) {
	f.images = append(f.images, req)
	return studio.Payload{"imageUrl": "https://cdn/" + req.SegmentID}, f.record(token)
}

func (f *fakeStudio) GenerateVideo(ctx context.Context, token string, req studio.VideoRequest) (studio.Payload, error) {
	return studio.Payload{"videoUrl": "https://cdn/" + req.SegmentID}, f.record(token)
}

type fakeBatch struct {
	got    batch.Request
	result *batch.Result
	err    error
}

func (f *fakeBatch) Run(ctx context.Context, req batch.Request) (*batch.Result, error) {
	f.got = req
	return f.result, f.err
}

func TestBuild_GatingAndNames(t *testing.T) {
	r := Build("tok", Deps{Studio: &fakeStudio{}, Batch: &fakeBatch{}})
	assert.ElementsMatch(t, Names(), r.Names())

	gated := map[string]bool{}
	for _, tool := range r.List() {
		gated[tool.Name()] = tool.NeedsApproval()
	}
	assert.Equal(t, map[string]bool{
		WebResearch:         false,
		GenerateConcept:     false,
		SegmentScript:       false,
		GenerateImage:       true,
		GenerateVideo:       true,
		BatchGenerateImages: true,
		BatchGenerateVideos: true,
	}, gated)
}

func TestTools_ForwardCapabilityToken(t *testing.T) {
	fs := &fakeStudio{}
	r := Build("cap-123", Deps{Studio: fs, Batch: &fakeBatch{}})
	ctx := tools.WithProjectID(context.Background(), "proj-1")

	res, err := r.Execute(ctx, WebResearch, map[string]any{"query": "face wash"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"summary":"gentle cleansers trend"}`, res.Content)

	_, err = r.Execute(ctx, GenerateImage, map[string]any{"segmentId": "seg-1", "prompt": "foam"})
	require.NoError(t, err)

	assert.Equal(t, []string{"cap-123", "cap-123"}, fs.tokens)
	require.Len(t, fs.images, 1)
	assert.Equal(t, "proj-1", fs.images[0].ProjectID)

	for _, tool := range r.List() {
		assert.NotContains(t, tool.Description(), "cap-123")
	}
}

func TestTools_InvalidArguments(t *testing.T) {
	r := Build("tok", Deps{Studio: &fakeStudio{}, Batch: &fakeBatch{}})

	_, err := r.Execute(context.Background(), GenerateImage, map[string]any{"prompt": "no segment"})
	assert.ErrorIs(t, err, tools.ErrInvalidArgs)
	assert.ErrorIs(t, err, tools.ErrToolExecution)

	_, err = r.Execute(context.Background(), SegmentScript, map[string]any{"concept": "c"})
	assert.ErrorIs(t, err, errNoProject)
}

func TestTools_StudioFailureIsRecoverable(t *testing.T) {
	r := Build("tok", Deps{Studio: &fakeStudio{failing: true}, Batch: &fakeBatch{}})

	_, err := r.Execute(context.Background(), GenerateConcept, map[string]any{"brief": "b"})
	require.Error(t, err)
	assert.ErrorIs(t, err, tools.ErrToolExecution)
	assert.False(t, tools.IsFatal(err))
}

func TestBatchTool(t *testing.T) {
	fb := &fakeBatch{result: &batch.Result{TotalSegments: 3, SuccessCount: 2, FailureCount: 1}}
	r := Build("tok", Deps{Studio: &fakeStudio{}, Batch: fb})
	ctx := tools.WithProjectID(context.Background(), "proj-1")

	res, err := r.Execute(ctx, BatchGenerateImages, map[string]any{"retrySegmentIds": []any{"seg-2"}})
	require.NoError(t, err)

	assert.Equal(t, batch.KindImage, fb.got.Kind)
	assert.Equal(t, "tok", fb.got.Token)
	assert.Equal(t, "proj-1", fb.got.ProjectID)
	assert.Equal(t, []string{"seg-2"}, fb.got.RetrySegmentIDs)

	out, ok := res.Data.(batch.Result)
	require.True(t, ok)
	assert.Equal(t, 2, out.SuccessCount)
	assert.Contains(t, res.Content, `"successCount":2`)
}

func TestBatchTool_MissingTokenIsFatal(t *testing.T) {
	fb := &fakeBatch{err: batch.ErrMissingCapability}
	r := Build("", Deps{Studio: &fakeStudio{}, Batch: fb})

	_, err := r.Execute(context.Background(), BatchGenerateVideos, nil)
	assert.True(t, tools.IsFatal(err))
	assert.ErrorIs(t, err, batch.ErrMissingCapability)
}

func TestBuild_WithLedgerGuardsGatedTools(t *testing.T) {
	ledger := credits.NewMemoryLedger(nil)
	ledger.Grant("u1", 1)
	fb := &fakeBatch{err: errors.New("segments unavailable")}
	r := Build("tok", Deps{Studio: &fakeStudio{}, Batch: fb, Ledger: ledger})
	ctx := tools.WithUserID(context.Background(), "u1")

	_, err := r.Execute(ctx, GenerateImage, map[string]any{"segmentId": "s", "prompt": "p"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), ledger.Balance("u1"))

	_, err = r.Execute(ctx, GenerateVideo, map[string]any{"segmentId": "s", "prompt": "p"})
	assert.ErrorIs(t, err, credits.ErrInsufficientCredits)

	// ungated tools are never charged
	_, err = r.Execute(ctx, WebResearch, map[string]any{"query": "q"})
	assert.NoError(t, err)
}

func TestSegmentScript_Count(t *testing.T) {
	r := Build("tok", Deps{Studio: &fakeStudio{}, Batch: &fakeBatch{}})

	tests := []struct {
		name    string
		count   any
		wantErr bool
	}{
		{"omitted", nil, false},
		{"one", 1, false},
		{"twelve", 12, false},
		{"negative", -1, true},
		{"too many", 13, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := map[string]any{"concept": "morning ritual", "projectId": "p1"}
			if tt.count != nil {
				args["count"] = tt.count
			}
			_, err := r.Execute(context.Background(), SegmentScript, args)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tools.ErrInvalidArgs)
			assert.Contains(t, err.Error(), "between 1 and 12, or omitted")
		})
	}
}
