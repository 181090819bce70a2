package router

import (
	"testing"

	"github.com/matryer/is"

	"github.com/chriscow/voicegw/pkg/persona"
)

func TestRoute(t *testing.T) {
	me := persona.Lookup("me")

	tests := []struct {
		name string
		text string
		want Kind
	}{
		{"greeting", "hello", QuickReply},
		{"greeting with case and space", "  HeLLo  ", QuickReply},
		{"greeting with punctuation", "Hello.", GeneralQuery},
		{"multiword quick reply", "Thank You", QuickReply},
		{"multiword with punctuation", "Thank you!", GeneralQuery},
		{"greeting inside sentence", "hello there friend", GeneralQuery},
		{"news", "what's the news today", NewsRequest},
		{"headlines", "read me the headlines", NewsRequest},
		{"current events", "any current events I should know", NewsRequest},
		{"news beats search", "latest news on the weather", NewsRequest},
		{"weather", "What's the weather in Pune?", WebSearchRequest},
		{"who is", "who is the prime minister of india", WebSearchRequest},
		{"price", "bitcoin price", WebSearchRequest},
		{"general", "tell me a joke", GeneralQuery},
		{"empty", "", GeneralQuery},
		{"whitespace", "   ", GeneralQuery},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			is.Equal(Route(tt.text, me).Kind, tt.want)
		})
	}
}

func TestRouteQuickReplyText(t *testing.T) {
	is := is.New(t)

	d := Route("hello", persona.Lookup("me"))
	is.Equal(d.Kind, QuickReply)
	is.Equal(d.Reply, "Hey buddy, welcome to Silly Yard, how can I make your day brighter?")

	d = Route(" Hello ", persona.Lookup("pirate"))
	is.Equal(d.Reply, "Ahoy matey! Welcome aboard the Silly Yard. What be yer question?") // persona override
}

func TestRouteIsPure(t *testing.T) {
	is := is.New(t)
	p := persona.Lookup("butler")
	inputs := []string{"hi", "news please", "weather today", "sing a song", "Thanks."}

	for _, in := range inputs {
		first := Route(in, p)
		for i := 0; i < 5; i++ {
			is.Equal(Route(in, p), first)
		}
	}
}

func TestNormalize(t *testing.T) {
	is := is.New(t)
	is.Equal(Normalize("  HeLLo  "), "hello")
	is.Equal(Normalize("Hello!"), "hello!")
	is.Equal(Normalize("\tThank You\n"), "thank you")
}

func TestKindString(t *testing.T) {
	is := is.New(t)
	is.Equal(QuickReply.String(), "quick_reply")
	is.Equal(NewsRequest.String(), "news")
	is.Equal(WebSearchRequest.String(), "web_search")
	is.Equal(GeneralQuery.String(), "general")
}
