package transcript_test

import (
	"testing"

	"github.com/MrWong99/voxcap/internal/transcript"
)

func TestCorrector_Correct(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		keywords  []string
		text      string
		want      string
		wantFixes []string
	}{
		{
			name:      "case fix",
			keywords:  []string{"Nao"},
			text:      "hello nao",
			want:      "hello Nao",
			wantFixes: []string{"nao"},
		},
		{
			name:      "keeps punctuation",
			keywords:  []string{"Nao"},
			text:      "hello, nao!",
			want:      "hello, Nao!",
			wantFixes: []string{"nao!"},
		},
		{
			name:     "exact match is not a correction",
			keywords: []string{"Nao"},
			text:     "Hello Nao.",
			want:     "Hello Nao.",
		},
		{
			name:     "sound-alike common word kept",
			keywords: []string{"Nao"},
			text:     "turn it on now",
			want:     "turn it on now",
		},
		{
			name:      "multi-word keyword",
			keywords:  []string{"Tower of Whispers"},
			text:      "go to the tower of wispers",
			want:      "go to the Tower of Whispers",
			wantFixes: []string{"tower of wispers"},
		},
		{
			name:     "no keywords",
			keywords: nil,
			text:     "turn on the lights",
			want:     "turn on the lights",
		},
		{
			name:     "blank keyword ignored",
			keywords: []string{"  "},
			text:     "turn on the lights",
			want:     "turn on the lights",
		},
		{
			name:     "empty text",
			keywords: []string{"Nao"},
			text:     "",
			want:     "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, fixes := transcript.New(tt.keywords).Correct(tt.text)
			if got != tt.want {
				t.Errorf("Correct(%q) = %q, want %q", tt.text, got, tt.want)
			}
			if len(fixes) != len(tt.wantFixes) {
				t.Fatalf("corrections = %+v, want originals %v", fixes, tt.wantFixes)
			}
			for i, f := range fixes {
				if f.Original != tt.wantFixes[i] {
					t.Errorf("correction %d original = %q, want %q", i, f.Original, tt.wantFixes[i])
				}
				if f.Score <= 0 || f.Score > 1 {
					t.Errorf("correction %d score = %v, want in (0, 1]", i, f.Score)
				}
			}
		})
	}
}

func TestCorrector_Thresholds(t *testing.T) {
	t.Parallel()
	c := transcript.New([]string{"Tower of Whispers"},
		transcript.WithPhoneticThreshold(0.99),
		transcript.WithFuzzyThreshold(0.99),
	)
	text := "go to the tower of wispers"
	if got, fixes := c.Correct(text); got != text || len(fixes) != 0 {
		t.Errorf("Correct = %q, %+v; want unchanged with strict thresholds", got, fixes)
	}
}

func TestCorrector_ExactScoreIsOne(t *testing.T) {
	t.Parallel()
	_, fixes := transcript.New([]string{"Nao"}).Correct("NAO")
	if len(fixes) != 1 {
		t.Fatalf("corrections = %+v, want 1", fixes)
	}
	if fixes[0].Corrected != "Nao" || fixes[0].Score != 1 {
		t.Errorf("correction = %+v, want Nao with score 1", fixes[0])
	}
}
