package segment

import (
	"strings"
	"testing"

	"github.com/matryer/is"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"whitespace only", "  \n\t ", nil},
		{"single no terminal", "Hey buddy, welcome to Silly Yard, how can I make your day brighter?", []string{"Hey buddy, welcome to Silly Yard, how can I make your day brighter?"}},
		{"three sentences", "Sunny today. High of 31! Stay cool?", []string{"Sunny today.", "High of 31!", "Stay cool?"}},
		{"whitespace run collapses", "One.   \n\tTwo.", []string{"One.", "Two."}},
		{"no space after terminal", "Version 1.5 is out.Now what", []string{"Version 1.5 is out.Now what"}},
		{"decimal kept", "It costs 3.50 dollars. Cheap!", []string{"It costs 3.50 dollars.", "Cheap!"}},
		{"leading and trailing space", "  Hi there.  Bye.  ", []string{"Hi there.", "Bye."}},
		{"ellipsis", "Well... maybe. Sure", []string{"Well...", "maybe.", "Sure"}},
		{"unicode", "¡Hola! ¿Qué tal? Bien.", []string{"¡Hola!", "¿Qué tal?", "Bien."}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			got := Split(tt.in)
			is.Equal(len(got), len(tt.want))
			for i := range tt.want {
				is.Equal(got[i], tt.want[i])
			}
		})
	}
}

func TestSegmentsRoundTrip(t *testing.T) {
	inputs := []string{
		"Sunny today. High of 31! Stay cool?",
		"A.  B?\nC!",
		"no boundaries here at all",
		"Trailing terminal.",
	}
	for _, in := range inputs {
		is := is.New(t)
		got := Split(in)
		for _, s := range got {
			is.True(s != "")                      // non-empty
			is.Equal(s, strings.TrimSpace(s))     // trimmed
		}
		joined := strings.Join(got, "")
		stripped := strings.Join(strings.Fields(in), "")
		is.Equal(strings.Join(strings.Fields(joined), ""), stripped) // only whitespace lost
	}
}

func TestSentencesIsLazy(t *testing.T) {
	is := is.New(t)
	var got []string
	for s := range Sentences("First. Second. Third.") {
		got = append(got, s)
		if len(got) == 2 {
			break
		}
	}
	is.Equal(got, []string{"First.", "Second."})
}

func TestSentencesRestartable(t *testing.T) {
	is := is.New(t)
	seq := Sentences("One. Two.")
	first := collect(seq)
	second := collect(seq)
	is.Equal(first, second)
}

func collect(seq func(func(string) bool)) []string {
	var out []string
	seq(func(s string) bool {
		out = append(out, s)
		return true
	})
	return out
}
