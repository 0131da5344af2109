package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asheshgoplani/chatjump/internal/dom/htmldoc"
)

func TestScanAllStrictTierWins(t *testing.T) {
	doc := newDoc(t, userTurn(1, "first question here"), `<article>untagged</article>`)
	found := NewScanner(doc, nil).ScanAll()
	require.Len(t, found, 1)
}

func TestScanAllFallsBackToArticles(t *testing.T) {
	doc := newDoc(t, `<article>one</article><article>two</article>`)
	assert.Len(t, NewScanner(doc, nil).ScanAll(), 2)
}

func TestScanAllFallsBackToMessageID(t *testing.T) {
	doc := newDoc(t, `<div data-message-id="a">one</div><div data-message-id="b">two</div>`)
	assert.Len(t, NewScanner(doc, nil).ScanAll(), 2)
}

func TestScanAllSkipsBrokenTier(t *testing.T) {
	doc := newDoc(t, `<article>one</article>`)
	s := NewScanner(doc, []string{"article[[", "article"})
	assert.Len(t, s.ScanAll(), 1)
}

func TestScanAllEmptyDocument(t *testing.T) {
	doc, err := htmldoc.ParseString(`<html><body><p>nothing</p></body></html>`, "")
	require.NoError(t, err)
	assert.Empty(t, NewScanner(doc, nil).ScanAll())
}

func TestIsContainer(t *testing.T) {
	doc := newDoc(t, `<article>a</article><div data-message-id="x">b</div><p>c</p>`)
	s := NewScanner(doc, nil)
	assert.True(t, s.IsContainer(firstElement(t, doc, "article")))
	assert.True(t, s.IsContainer(firstElement(t, doc, "div[data-message-id]")))
	assert.False(t, s.IsContainer(firstElement(t, doc, "p")))
}

func TestDescendantsUsesFirstMatchingTier(t *testing.T) {
	doc := newDoc(t, `<section id="wrap"><div data-message-id="a">one</div><div data-message-id="b">two</div></section>`)
	s := NewScanner(doc, nil)

	found, err := s.Descendants(firstElement(t, doc, "#wrap"))
	require.NoError(t, err)
	assert.Len(t, found, 2)

	found, err = s.Descendants(firstElement(t, doc, "div[data-message-id]"))
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestDescendantsFallsBackToArticles(t *testing.T) {
	doc := newDoc(t, `<section id="wrap"><article>a</article></section>`)
	s := NewScanner(doc, []string{"[data-turn]"})

	found, err := s.Descendants(firstElement(t, doc, "#wrap"))
	require.NoError(t, err)
	assert.Len(t, found, 1)
}
