package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func classifyFirst(t *testing.T, c *Classifier, html string) (MessageEntry, bool) {
	t.Helper()
	doc := newDoc(t, html)
	return c.Classify(firstElement(t, doc, "article, [data-message-id]"), NewIndex(10))
}

func TestClassifyUserByRoleDescendant(t *testing.T) {
	c := NewClassifier(NewQuestionPolicy(PolicyMinimalLength, 10), fixedClock())
	e, ok := classifyFirst(t, c, userTurn(1, "  How do channels work in Go?  "))
	require.True(t, ok)
	assert.Equal(t, "How do channels work in Go?", e.Text)
	assert.Equal(t, StableID("How do channels work in Go?", "conversation-turn-1"), e.ID)
}

func TestClassifyUserByTestID(t *testing.T) {
	c := NewClassifier(NewQuestionPolicy(PolicyMinimalLength, 10), fixedClock())
	_, ok := classifyFirst(t, c, `<article data-testid="user-message">Please summarise this article</article>`)
	assert.True(t, ok)
}

func TestClassifyUserBySiblingHeuristic(t *testing.T) {
	c := NewClassifier(NewQuestionPolicy(PolicyMinimalLength, 10), fixedClock())
	_, ok := classifyFirst(t, c,
		`<article data-testid="turn-a">What is a monad, really?</article>`+
			`<article data-testid="assistant-turn">A monoid in the category...</article>`)
	assert.True(t, ok)
}

func TestClassifyRejectsAssistantQuestion(t *testing.T) {
	c := NewClassifier(NewQuestionPolicy(PolicyInterrogativePattern, 10), fixedClock())
	_, ok := classifyFirst(t, c, assistantTurn(2, "Why does this happen?"))
	assert.False(t, ok)
}

func TestClassifyRejectsAssistantTestID(t *testing.T) {
	c := NewClassifier(NewQuestionPolicy(PolicyMinimalLength, 10), fixedClock())
	_, ok := classifyFirst(t, c, `<article data-testid="assistant-user-reply">This is a long answer text</article>`)
	assert.False(t, ok)
}

func TestClassifyRejectsEmptyAndShort(t *testing.T) {
	c := NewClassifier(NewQuestionPolicy(PolicyMinimalLength, 10), fixedClock())
	_, ok := classifyFirst(t, c, userTurn(1, "   "))
	assert.False(t, ok, "empty text")
	_, ok = classifyFirst(t, c, userTurn(1, "0123456789"))
	assert.False(t, ok, "exactly min length is not enough")
	_, ok = classifyFirst(t, c, userTurn(1, "0123456789a"))
	assert.True(t, ok)
}

func TestClassifyRejectsDuplicate(t *testing.T) {
	c := NewClassifier(NewQuestionPolicy(PolicyMinimalLength, 10), fixedClock())
	doc := newDoc(t, userTurn(1, "How do channels work in Go?"))
	el := firstElement(t, doc, "article")
	idx := NewIndex(10)

	e, ok := c.Classify(el, idx)
	require.True(t, ok)
	idx.Insert(e)
	_, ok = c.Classify(el, idx)
	assert.False(t, ok)
}

func TestClassifyOrdinalOrder(t *testing.T) {
	c := NewClassifier(NewQuestionPolicy(PolicyMinimalLength, 10), fixedClock())
	text := "Where is the config file stored?"

	e, ok := classifyFirst(t, c, `<article data-message-id="msg-9" data-messageid="old" data-testid="user-x">`+text+`</article>`)
	require.True(t, ok)
	assert.Equal(t, StableID(text, "msg-9"), e.ID)

	e, ok = classifyFirst(t, c, `<article data-messageid="old" data-testid="user-x">`+text+`</article>`)
	require.True(t, ok)
	assert.Equal(t, StableID(text, "old"), e.ID)
}

func TestClassifyWallClockFallback(t *testing.T) {
	c := NewClassifier(NewQuestionPolicy(PolicyMinimalLength, 10), fixedClock())
	text := "Where is the config file stored?"
	e, ok := classifyFirst(t, c,
		`<article><span data-author-role="user">`+text+`</span></article>`)
	require.True(t, ok)
	assert.Equal(t, StableID(text, "1700000000000"), e.ID)
}

func TestClassifyAdapterFailures(t *testing.T) {
	c := NewClassifier(NewQuestionPolicy(PolicyMinimalLength, 10), fixedClock())
	_, ok := c.Classify(brokenElement{}, NewIndex(10))
	assert.False(t, ok)
	_, ok = c.Classify(panickyElement{}, NewIndex(10))
	assert.False(t, ok)
}

func TestInterrogativePolicy(t *testing.T) {
	p := NewQuestionPolicy(PolicyInterrogativePattern, 10)
	assert.Equal(t, PolicyInterrogativePattern, p.Name())

	cases := map[string]bool{
		"Why does this happen?":              true,
		"how to reverse a list in python":    true,
		"Could you rewrite this paragraph":   true,
		"Refactor this function please?":     true,
		"Refactor this function please":      false,
		"Why?":                               false,
		"What, exactly, is a goroutine leak": true,
	}
	for text, want := range cases {
		assert.Equal(t, want, p.Accept(text), text)
	}
}

func TestUnknownPolicyFallsBack(t *testing.T) {
	p := NewQuestionPolicy("regex", 0)
	assert.Equal(t, PolicyMinimalLength, p.Name())
	assert.True(t, p.Accept("eleven char"))
}
