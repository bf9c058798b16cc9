package index

import (
	"encoding/json"

	"github.com/velasearch/vela/errkind"
)

func marshalSettings(s Settings) ([]byte, error) { return json.Marshal(s) }

func unmarshalSettings(raw []byte) (Settings, error) {
	var s Settings
	if err := json.Unmarshal(raw, &s); err != nil {
		return Settings{}, errkind.Wrap(errkind.InvalidStoreFile, err, "decoding settings")
	}
	return s, nil
}

// Setting is a tri-state field for one settings attribute (§4.3
// "Settings"): a settings update task may leave a field untouched, reset
// it to its default, or set it to an explicit value.
type Setting[T any] struct {
	state settingState
	value T
}

type settingState int

const (
	Unset settingState = iota
	Reset
	Set
)

// NewSet returns a Setting carrying an explicit value.
func NewSet[T any](v T) Setting[T] { return Setting[T]{state: Set, value: v} }

// NewReset returns a Setting requesting the default value.
func NewReset[T any]() Setting[T] { return Setting[T]{state: Reset} }

// IsUnset reports whether this field should be left untouched.
func (s Setting[T]) IsUnset() bool { return s.state == Unset }

// Apply resolves this tri-state field against the current value and a
// default, per the §4.3 rule: Unset keeps current, Reset applies default,
// Set applies the carried value.
func (s Setting[T]) Apply(current, def T) T {
	switch s.state {
	case Set:
		return s.value
	case Reset:
		return def
	default:
		return current
	}
}

// RankingRule is one entry of the configured ranking-rule order (§4.4).
type RankingRule string

const (
	RuleWords      RankingRule = "words"
	RuleTypo       RankingRule = "typo"
	RuleProximity  RankingRule = "proximity"
	RuleAttribute  RankingRule = "attribute"
	RuleExactness  RankingRule = "exactness"
	RuleAscPrefix  RankingRule = "asc:"
	RuleDescPrefix RankingRule = "desc:"
)

// DefaultRankingRules is the default order named in §4.4: "Words → Typo →
// Proximity → Attribute → Exactness → configured Sorts → Geo".
var DefaultRankingRules = []RankingRule{RuleWords, RuleTypo, RuleProximity, RuleAttribute, RuleExactness}

// TypoTolerance configures per-word-length typo bounds (§4.4 defaults: 5
// and 9 code points).
type TypoTolerance struct {
	Enabled            bool
	MinWordLenForTypo1 int
	MinWordLenForTypo2 int
	DisableOnWords     map[string]struct{}
	DisableOnAttrs     map[string]struct{}
}

func DefaultTypoTolerance() TypoTolerance {
	return TypoTolerance{Enabled: true, MinWordLenForTypo1: 5, MinWordLenForTypo2: 9}
}

// Faceting configures the facet distribution's default/maximum values per
// facet, and sort-facet-values-by ordering.
type Faceting struct {
	MaxValuesPerFacet int
	SortFacetValuesBy map[string]string // "alpha" | "count"
}

// Pagination configures the maximum total hits a single query may return.
type Pagination struct {
	MaxTotalHits int
}

// Settings is the effective, fully-resolved configuration of one index
// (§3.1, §4.3). SettingsUpdate tasks carry a SettingsPatch of tri-state
// fields that Resolve merges onto the current Settings.
type Settings struct {
	FilterableAttributes  map[string]struct{}
	SortableAttributes    map[string]struct{}
	DisplayedAttributes   []string // nil/empty means "all"
	SearchableAttributes  []string // ordered; nil/empty means "all", in field order
	StopWords             map[string]struct{}
	Synonyms              map[string][]string
	TypoTolerance         TypoTolerance
	RankingRules          []RankingRule
	Faceting              Faceting
	Pagination            Pagination
}

func DefaultSettings() Settings {
	return Settings{
		FilterableAttributes: map[string]struct{}{},
		SortableAttributes:   map[string]struct{}{},
		StopWords:            map[string]struct{}{},
		Synonyms:             map[string][]string{},
		TypoTolerance:        DefaultTypoTolerance(),
		RankingRules:         append([]RankingRule(nil), DefaultRankingRules...),
		Faceting:             Faceting{MaxValuesPerFacet: 100},
		Pagination:           Pagination{MaxTotalHits: 1000},
	}
}

// SettingsPatch carries the tri-state updates of one SettingsUpdate task.
type SettingsPatch struct {
	FilterableAttributes Setting[map[string]struct{}]
	SortableAttributes   Setting[map[string]struct{}]
	DisplayedAttributes  Setting[[]string]
	SearchableAttributes Setting[[]string]
	StopWords            Setting[map[string]struct{}]
	Synonyms             Setting[map[string][]string]
	TypoTolerance        Setting[TypoTolerance]
	RankingRules         Setting[[]RankingRule]
	Faceting             Setting[Faceting]
	Pagination           Setting[Pagination]
}

// SettingsWire is the JSON shape a SettingsUpdate task's Details carries
// (Details itself is persisted through a generic map[string]any, so the
// tri-state Setting[T] type cannot round-trip directly; this flattens
// "provided" to Set and folds Reset into "set the default explicitly" —
// a caller wanting a field reset sends DefaultSettings()'s value for it,
// simplifying the wire format at the cost of not distinguishing "reset to
// default" from "set to a value that happens to equal the default").
type SettingsWire struct {
	FilterableAttributes *[]string           `json:"filterableAttributes,omitempty"`
	SortableAttributes   *[]string           `json:"sortableAttributes,omitempty"`
	DisplayedAttributes  *[]string           `json:"displayedAttributes,omitempty"`
	SearchableAttributes *[]string           `json:"searchableAttributes,omitempty"`
	StopWords            *[]string           `json:"stopWords,omitempty"`
	Synonyms             *map[string][]string `json:"synonyms,omitempty"`
	TypoTolerance        *TypoTolerance      `json:"typoTolerance,omitempty"`
	RankingRules         *[]string           `json:"rankingRules,omitempty"`
	Faceting             *Faceting           `json:"faceting,omitempty"`
	Pagination           *Pagination         `json:"pagination,omitempty"`
}

func setOf(names []string) map[string]struct{} {
	out := make(map[string]struct{}, len(names))
	for _, n := range names {
		out[n] = struct{}{}
	}
	return out
}

// ToPatch converts the wire form into a SettingsPatch, ready for Resolve.
func (w SettingsWire) ToPatch() SettingsPatch {
	var p SettingsPatch
	if w.FilterableAttributes != nil {
		p.FilterableAttributes = NewSet(setOf(*w.FilterableAttributes))
	}
	if w.SortableAttributes != nil {
		p.SortableAttributes = NewSet(setOf(*w.SortableAttributes))
	}
	if w.DisplayedAttributes != nil {
		p.DisplayedAttributes = NewSet(*w.DisplayedAttributes)
	}
	if w.SearchableAttributes != nil {
		p.SearchableAttributes = NewSet(*w.SearchableAttributes)
	}
	if w.StopWords != nil {
		p.StopWords = NewSet(setOf(*w.StopWords))
	}
	if w.Synonyms != nil {
		p.Synonyms = NewSet(*w.Synonyms)
	}
	if w.TypoTolerance != nil {
		p.TypoTolerance = NewSet(*w.TypoTolerance)
	}
	if w.RankingRules != nil {
		rules := make([]RankingRule, len(*w.RankingRules))
		for i, r := range *w.RankingRules {
			rules[i] = RankingRule(r)
		}
		p.RankingRules = NewSet(rules)
	}
	if w.Faceting != nil {
		p.Faceting = NewSet(*w.Faceting)
	}
	if w.Pagination != nil {
		p.Pagination = NewSet(*w.Pagination)
	}
	return p
}

// Resolve merges patch onto current, returning the new effective settings
// plus whether the patch sets or resets searchable attributes (the one
// change that forces the word-docids rebuild §4.3 calls out explicitly).
// That flag is true whenever the field is not Unset, even if the resulting
// value equals the current one.
func (patch SettingsPatch) Resolve(current Settings) (next Settings, searchableChanged bool) {
	def := DefaultSettings()
	next = Settings{
		FilterableAttributes: patch.FilterableAttributes.Apply(current.FilterableAttributes, def.FilterableAttributes),
		SortableAttributes:   patch.SortableAttributes.Apply(current.SortableAttributes, def.SortableAttributes),
		DisplayedAttributes:  patch.DisplayedAttributes.Apply(current.DisplayedAttributes, def.DisplayedAttributes),
		SearchableAttributes: patch.SearchableAttributes.Apply(current.SearchableAttributes, def.SearchableAttributes),
		StopWords:            patch.StopWords.Apply(current.StopWords, def.StopWords),
		Synonyms:             patch.Synonyms.Apply(current.Synonyms, def.Synonyms),
		TypoTolerance:        patch.TypoTolerance.Apply(current.TypoTolerance, def.TypoTolerance),
		RankingRules:         patch.RankingRules.Apply(current.RankingRules, def.RankingRules),
		Faceting:             patch.Faceting.Apply(current.Faceting, def.Faceting),
		Pagination:           patch.Pagination.Apply(current.Pagination, def.Pagination),
	}
	searchableChanged = !patch.SearchableAttributes.IsUnset()
	return next, searchableChanged
}
