package keyword

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenizeText(t *testing.T) {
	assert := assert.New(t)

	fixtures := []struct {
		text string
		out  []string
	}{
		{text: "", out: []string{}},
		{text: "Hello, World!", out: []string{"hello", "world"}},
		{text: "FREE   crypto!!! visit t.me/scam", out: []string{"free", "crypto", "visit", "t", "me", "scam"}},
		{text: "Ýour Áccount", out: []string{"your", "account"}},
		{text: "测试 消息", out: []string{"测试", "消息"}},
	}

	for _, fix := range fixtures {
		assert.ElementsMatch(fix.out, TokenizeText(fix.text))
	}
}

func TestTokenizeIdentifier(t *testing.T) {
	assert := assert.New(t)

	assert.Equal([]string{"spam", "bot", "2024"}, TokenizeIdentifier("spam-bot.2024"))
	assert.Equal([]string{"handle", "example"}, TokenizeIdentifier("@handle_example"))
	assert.Empty(TokenizeIdentifier("a.b.c"))
}

func TestSlugify(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("freemoney", Slugify("FREE money!"))
	assert.Equal("", Slugify("!!! ..."))
}

func TestStopList(t *testing.T) {
	assert := assert.New(t)

	l := NewStopList("scams", []string{"crypto", "Free-Money"})
	assert.Equal(2, l.Len())
	assert.True(l.Contains("CRYPTO"))
	assert.True(l.Contains("freemoney"))
	assert.False(l.Contains("hello"))
}
