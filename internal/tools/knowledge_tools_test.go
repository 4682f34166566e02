package tools

import "testing"

func TestRetrievedChunkCitation(t *testing.T) {
	tests := []struct {
		name  string
		chunk RetrievedChunk
		want  string
	}{
		{
			name:  "full annotation",
			chunk: RetrievedChunk{Source: "chunk-1", Filename: "manual.pdf", PageNumber: 12, SectionTitle: "Safety"},
			want:  "manual.pdf, p.12, §Safety",
		},
		{
			name:  "filename only",
			chunk: RetrievedChunk{Source: "chunk-2", Filename: "notes.md"},
			want:  "notes.md",
		},
		{
			name:  "falls back to chunk id",
			chunk: RetrievedChunk{Source: "chunk-3"},
			want:  "chunk-3",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.chunk.Citation(); got != tt.want {
				t.Fatalf("Citation() = %q, want %q", got, tt.want)
			}
		})
	}
}
