package filter

import "testing"

func TestCompileAndMatches(t *testing.T) {
	t.Parallel()

	dict := map[string]int{"nes": 1, "sms": 2, "arcade": 3}

	tests := []struct {
		name       string
		expression string
		tags       []int
		want       bool
	}{
		{"no filter matches everything", "", []int{1}, true},
		{"include matches present tag", "arcade", []int{3}, true},
		{"include fails absent tag", "arcade", []int{1}, false},
		{"exclude rejects present tag", "!nes", []int{1}, false},
		{"exclude passes absent tag", "!nes", []int{2}, true},
		{"combined include+exclude", "arcade !nes", []int{3}, true},
		{"combined include+exclude rejects", "arcade !nes", []int{3, 1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f, err := Compile(tt.expression, dict)
			if err != nil {
				t.Fatalf("Compile: %v", err)
			}

			if got := f.Matches(tt.tags); got != tt.want {
				t.Errorf("Matches(%v) = %v, want %v", tt.tags, got, tt.want)
			}
		})
	}
}

func TestCompile_UnknownTermIsNotFatal(t *testing.T) {
	t.Parallel()

	f, err := Compile("ghost_tag", map[string]int{})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	if got := f.Unknown(); len(got) != 1 || got[0] != "ghost_tag" {
		t.Errorf("Unknown() = %v, want [ghost_tag]", got)
	}

	if !f.Matches(nil) {
		t.Error("a filter with only unknown terms should match everything")
	}
}

func TestCompile_MalformedSyntaxIsFatal(t *testing.T) {
	t.Parallel()

	if _, err := Compile("!", nil); err == nil {
		t.Fatal("expected error for bare '!' term")
	}
}
