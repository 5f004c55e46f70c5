package studio

// Payload is the structured JSON body returned by a generation endpoint.
type Payload map[string]any

// ResearchRequest asks for market and product research.
type ResearchRequest struct {
	Query     string `json:"query"`
	ProjectID string `json:"projectId,omitempty"`
}

// ConceptRequest asks for a creative concept.
type ConceptRequest struct {
	Brief     string `json:"brief"`
	Research  string `json:"research,omitempty"`
	ProjectID string `json:"projectId,omitempty"`
}

// SegmentRequest splits a concept into script segments.
type SegmentRequest struct {
	ProjectID string `json:"projectId"`
	Concept   string `json:"concept"`
	Count     int    `json:"count,omitempty"`
}

// ImageRequest generates one still for a segment.
type ImageRequest struct {
	ProjectID string `json:"projectId"`
	SegmentID string `json:"segmentId"`
	Prompt    string `json:"prompt"`
	Model     string `json:"model,omitempty"`
}

// VideoRequest generates one clip for a segment.
type VideoRequest struct {
	ProjectID string `json:"projectId"`
	SegmentID string `json:"segmentId"`
	Prompt    string `json:"prompt"`
	ImageURL  string `json:"imageUrl,omitempty"`
	Model     string `json:"model,omitempty"`
}

// Segment is one scripted shot of a project.
type Segment struct {
	ID       string `json:"id"`
	Index    int    `json:"index"`
	Prompt   string `json:"prompt"`
	ImageURL string `json:"imageUrl,omitempty"`
	VideoURL string `json:"videoUrl,omitempty"`
}

type segmentsResponse struct {
	Segments []Segment `json:"segments"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
