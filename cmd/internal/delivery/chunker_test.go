package delivery

import (
	"strings"
	"testing"
)

func TestSplitShortTextIsSingleChunk(t *testing.T) {
	t.Parallel()

	got := Split("short and sweet", 100)
	if len(got) != 1 || got[0] != "short and sweet" {
		t.Fatalf("Split() = %#v", got)
	}
}

func TestSplitHardCutWithoutBreaks(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("a", 5000)
	got := Split(text, 2000)

	if len(got) != 3 {
		t.Fatalf("chunk count = %d, want 3", len(got))
	}
	for i, c := range got {
		if len([]rune(c)) > 2000 {
			t.Fatalf("chunk %d length = %d, exceeds limit", i, len([]rune(c)))
		}
	}
	if rejoined := strings.Join(got, ""); rejoined != text {
		t.Fatal("hard-cut chunks do not reassemble the input")
	}
}

func TestSplitPrefersParagraphBreak(t *testing.T) {
	t.Parallel()

	first := strings.Repeat("a", 60)
	second := strings.Repeat("b", 80)
	text := first + "\n\n" + second

	got := Split(text, 100)
	if len(got) != 2 {
		t.Fatalf("chunk count = %d, want 2 (%#v)", len(got), got)
	}
	if got[0] != first {
		t.Fatalf("chunk 0 = %q, want the first paragraph", got[0])
	}
	if got[1] != second {
		t.Fatalf("chunk 1 = %q, want the second paragraph", got[1])
	}
}

func TestSplitPrefersNewlineOverSentence(t *testing.T) {
	t.Parallel()

	first := strings.Repeat("a", 30) + ". " + strings.Repeat("b", 20)
	text := first + "\n" + strings.Repeat("c", 80)

	got := Split(text, 100)
	if len(got) != 2 {
		t.Fatalf("chunk count = %d, want 2 (%#v)", len(got), got)
	}
	if got[0] != first {
		t.Fatalf("chunk 0 = %q, want the full first line", got[0])
	}
}

func TestSplitFallsBackToSentenceBreak(t *testing.T) {
	t.Parallel()

	first := strings.Repeat("a", 60) + "."
	text := first + " " + strings.Repeat("b", 80)

	got := Split(text, 100)
	if len(got) != 2 {
		t.Fatalf("chunk count = %d, want 2 (%#v)", len(got), got)
	}
	if got[0] != first {
		t.Fatalf("chunk 0 = %q, want the first sentence", got[0])
	}
}

func TestSplitIgnoresEarlyBreaks(t *testing.T) {
	t.Parallel()

	// The only break sits before 30% of the window, so it must not be taken.
	text := "ab\n\n" + strings.Repeat("c", 150)

	got := Split(text, 100)
	if len(got) < 2 {
		t.Fatalf("chunk count = %d, want >= 2", len(got))
	}
	if got[0] == "ab" {
		t.Fatal("took a break point before the minimum fraction")
	}
}
