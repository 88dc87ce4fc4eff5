package vertex

import (
	"context"
	"testing"

	"cloud.google.com/go/vertexai/genai"
)

func TestTextOfJoinsTextParts(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{
				genai.Text(" {\"biomarkers\":"),
				genai.Blob{MIMEType: "image/png", Data: []byte{1}},
				genai.Text("[]} "),
			}},
		}},
	}
	if got := textOf(resp); got != `{"biomarkers":[]}` {
		t.Errorf("textOf = %q", got)
	}
}

func TestTextOfEmpty(t *testing.T) {
	if textOf(nil) != "" {
		t.Error("nil response")
	}
	if textOf(&genai.GenerateContentResponse{}) != "" {
		t.Error("no candidates")
	}
	if textOf(&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}}) != "" {
		t.Error("nil content")
	}
}

func TestNewClientRequiresProject(t *testing.T) {
	if _, err := NewClient(context.Background(), Config{Region: "us-central1"}, nil); err == nil {
		t.Fatal("expected error without project")
	}
}
