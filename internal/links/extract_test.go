package links

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "no urls",
			text: "no links here",
			want: nil,
		},
		{
			name: "empty",
			text: "",
			want: nil,
		},
		{
			name: "single http url",
			text: "check http://example.com/test out",
			want: []string{"http://example.com/test"},
		},
		{
			name: "https and www",
			text: "see https://a.example/x and www.b.example/y",
			want: []string{"https://a.example/x", "www.b.example/y"},
		},
		{
			name: "duplicates collapse",
			text: "visit http://a.co and again http://a.co",
			want: []string{"http://a.co"},
		},
		{
			name: "trailing slash is a distinct candidate",
			text: "http://a.co http://a.co/",
			want: []string{"http://a.co", "http://a.co/"},
		},
		{
			name: "greedy run keeps trailing punctuation",
			text: "read https://example.com/page, then stop.",
			want: []string{"https://example.com/page,"},
		},
		{
			name: "stops at angle brackets and quotes",
			text: `<https://a.example/x> "https://b.example/y"`,
			want: []string{"https://a.example/x", "https://b.example/y"},
		},
		{
			name: "scheme prefix is case sensitive",
			text: "HTTP://A.EXAMPLE Https://b.example WWW.c.example",
			want: nil,
		},
		{
			name: "host part is not case sensitive",
			text: "http://EXAMPLE.com/Path",
			want: []string{"http://EXAMPLE.com/Path"},
		},
		{
			name: "malformed but matching",
			text: "broken http://%%%zz and https://",
			want: []string{"http://%%%zz"},
		},
		{
			name: "www inside an http url is one candidate",
			text: "go to http://www.example.com now",
			want: []string{"http://www.example.com"},
		},
		{
			name: "no space before scheme",
			text: "prefixhttps://example.com",
			want: []string{"https://example.com"},
		},
		{
			name: "newlines and tabs separate",
			text: "a\nhttps://x.example\tb\nwww.y.example\n",
			want: []string{"https://x.example", "www.y.example"},
		},
		{
			name: "unicode space separates",
			text: "https://x.example\u00a0next\u2003www.y.example",
			want: []string{"https://x.example", "www.y.example"},
		},
		{
			name: "control separators end a url",
			text: "http://a.co\vv http://b.co\u0085n http://c.co\x1cfs http://d.co\x1fus",
			want: []string{"http://a.co", "http://b.co", "http://c.co", "http://d.co"},
		},
		{
			name: "non-ascii path is kept",
			text: "https://example.com/путь?q=ü done",
			want: []string{"https://example.com/путь?q=ü"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Extract(tt.text))
		})
	}
}

func TestExtractCandidatesAppearVerbatim(t *testing.T) {
	text := "one https://a.example/1 two www.b.example three https://a.example/1 four <http://c.example>"
	for _, c := range Extract(text) {
		assert.Contains(t, text, c)
	}
}

func TestSpansIncludeDuplicates(t *testing.T) {
	text := "http://a.co x http://a.co"
	spans := NewExtractor().Spans(text)
	require.Len(t, spans, 2)
	for _, s := range spans {
		assert.Equal(t, "http://a.co", text[s[0]:s[1]])
	}
}
