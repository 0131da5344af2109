package engine

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/asheshgoplani/chatjump/internal/dom"
	"github.com/asheshgoplani/chatjump/internal/logging"
)

// Question policies.
const (
	PolicyMinimalLength        = "minimal-length"
	PolicyInterrogativePattern = "interrogative-pattern"
)

// authorshipStrategy decides whether a node was written by the user. The
// strategies are tried in order and the first match wins.
type authorshipStrategy struct {
	name  string
	match func(el dom.Element) (bool, error)
}

var defaultAuthorship = []authorshipStrategy{
	{name: "testid", match: userTestID},
	{name: "role-descendant", match: userRoleDescendant},
	{name: "assistant-sibling", match: precedesAssistant},
}

func userTestID(el dom.Element) (bool, error) {
	testID, err := el.Attr("data-testid")
	if err != nil {
		return false, err
	}
	if strings.Contains(testID, "assistant") {
		return false, nil
	}
	role, err := el.Attr("data-message-author-role")
	if err != nil {
		return false, err
	}
	if role == "assistant" {
		return false, nil
	}
	return strings.Contains(testID, "user"), nil
}

func userRoleDescendant(el dom.Element) (bool, error) {
	found, err := el.QuerySelector(`[data-message-author-role="user"], [data-author-role="user"]`)
	if err != nil {
		return false, err
	}
	return found != nil, nil
}

func precedesAssistant(el dom.Element) (bool, error) {
	next, err := el.NextElementSibling()
	if err != nil || next == nil {
		return false, err
	}
	if next.TagName() != "ARTICLE" {
		return false, nil
	}
	testID, err := next.Attr("data-testid")
	if err != nil {
		return false, err
	}
	return strings.Contains(testID, "assistant"), nil
}

// QuestionPolicy decides whether user text is worth indexing.
type QuestionPolicy interface {
	Name() string
	Accept(text string) bool
}

type minimalLength struct{ min int }

func (p minimalLength) Name() string { return PolicyMinimalLength }

func (p minimalLength) Accept(text string) bool {
	return utf8.RuneCountInString(text) > p.min
}

type interrogativePattern struct{ minimalLength }

func (p interrogativePattern) Name() string { return PolicyInterrogativePattern }

var interrogatives = map[string]bool{
	"who": true, "what": true, "when": true, "where": true, "why": true,
	"how": true, "which": true, "whose": true, "whom": true,
	"is": true, "are": true, "am": true, "was": true, "were": true,
	"do": true, "does": true, "did": true,
	"can": true, "could": true, "should": true, "would": true, "will": true,
	"shall": true, "may": true, "might": true, "must": true,
	"has": true, "have": true, "had": true,
}

func (p interrogativePattern) Accept(text string) bool {
	if !p.minimalLength.Accept(text) {
		return false
	}
	if strings.HasSuffix(text, "?") {
		return true
	}
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return false
	}
	first := strings.TrimFunc(strings.ToLower(fields[0]), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	return interrogatives[first]
}

// NewQuestionPolicy returns the named policy. Unknown names fall back to
// minimal-length.
func NewQuestionPolicy(name string, minLength int) QuestionPolicy {
	if minLength <= 0 {
		minLength = DefaultMinLength
	}
	base := minimalLength{min: minLength}
	if name == PolicyInterrogativePattern {
		return interrogativePattern{base}
	}
	return base
}

// ordinalAttrs are read in order; the first non-empty value is the weak
// ordinal fed to StableID.
var ordinalAttrs = []string{"data-message-id", "data-messageid", "data-testid"}

// Classifier turns candidate nodes into index entries.
type Classifier struct {
	strategies []authorshipStrategy
	policy     QuestionPolicy
	now        func() time.Time
	log        *slog.Logger
}

// NewClassifier builds a classifier with the default authorship strategies.
func NewClassifier(policy QuestionPolicy, now func() time.Time) *Classifier {
	if now == nil {
		now = time.Now
	}
	return &Classifier{
		strategies: defaultAuthorship,
		policy:     policy,
		now:        now,
		log:        logging.ForComponent(logging.CompEngine),
	}
}

// Classify returns the entry for el when el is a question-like user message
// not yet in idx. Adapter failures and panics count as a rejection.
func (c *Classifier) Classify(el dom.Element, idx *Index) (entry MessageEntry, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			reject("panic")
			c.log.Debug("classify_panic", slog.String("panic", fmt.Sprint(r)))
			entry, ok = MessageEntry{}, false
		}
	}()

	text, err := el.Text()
	if err != nil {
		reject("text_error")
		return MessageEntry{}, false
	}
	text = strings.TrimSpace(text)
	if text == "" {
		reject("empty_text")
		return MessageEntry{}, false
	}

	strategy, err := c.authorship(el)
	if err != nil {
		reject("attr_error")
		return MessageEntry{}, false
	}
	if strategy == "" {
		reject("not_user")
		return MessageEntry{}, false
	}

	if !c.policy.Accept(text) {
		reject("not_question")
		return MessageEntry{}, false
	}

	ordinal, err := c.ordinal(el)
	if err != nil {
		reject("attr_error")
		return MessageEntry{}, false
	}
	id := StableID(text, ordinal)
	if idx != nil && idx.Has(id) {
		return MessageEntry{}, false
	}
	return MessageEntry{ID: id, Text: text}, true
}

// candidate computes the id a node would get, without authorship or policy
// checks. Navigation uses it to re-resolve ids.
func (c *Classifier) candidate(el dom.Element) (id, text string, err error) {
	raw, err := el.Text()
	if err != nil {
		return "", "", err
	}
	text = strings.TrimSpace(raw)
	if text == "" {
		return "", "", nil
	}
	ordinal, err := c.ordinal(el)
	if err != nil {
		return "", "", err
	}
	return StableID(text, ordinal), text, nil
}

func (c *Classifier) authorship(el dom.Element) (string, error) {
	for _, s := range c.strategies {
		ok, err := s.match(el)
		if err != nil {
			return "", err
		}
		if ok {
			return s.name, nil
		}
	}
	return "", nil
}

func (c *Classifier) ordinal(el dom.Element) (string, error) {
	for _, name := range ordinalAttrs {
		v, err := el.Attr(name)
		if err != nil {
			return "", err
		}
		if v != "" {
			return v, nil
		}
	}
	return wallClockOrdinal(c.now()), nil
}

func reject(reason string) {
	logging.Aggregate(logging.CompEngine, "node_rejected", slog.String("reason", reason))
}
