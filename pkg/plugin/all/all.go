// Package all registers every built-in provider with the default plugin
// registry. Import it for side effects.
package all

import (
	_ "github.com/chriscow/voicegw/pkg/plugin/assemblyai"
	_ "github.com/chriscow/voicegw/pkg/plugin/fake"
	_ "github.com/chriscow/voicegw/pkg/plugin/gemini"
	_ "github.com/chriscow/voicegw/pkg/plugin/murf"
	_ "github.com/chriscow/voicegw/pkg/plugin/newsapi"
	_ "github.com/chriscow/voicegw/pkg/plugin/openai"
	_ "github.com/chriscow/voicegw/pkg/plugin/serpapi"
)
