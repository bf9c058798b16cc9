package search

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/velasearch/vela/errkind"
	"github.com/velasearch/vela/index"
	"github.com/velasearch/vela/internal/mathutil"
	"github.com/velasearch/vela/search/filter"
	"github.com/velasearch/vela/search/geo"
	"github.com/velasearch/vela/storage/docstore"
	"github.com/velasearch/vela/storage/facet"
	"github.com/velasearch/vela/storage/mdbxkv"
)

// HybridParams carries the hybrid-search knob (§6 "hybrid.semanticRatio").
// Vector search itself is out of scope (§1 Non-goals); this only keeps
// the request field round-trippable for a client that sends it.
type HybridParams struct {
	SemanticRatio float64
}

// Request is one search query (§6 recognized request fields).
type Request struct {
	Query       string
	Offset      int
	Limit       int
	HitsPerPage int
	Page        int

	Filter string
	Sort   []string // "field:asc" | "field:desc" | "_geoPoint(lat,lng):asc"
	Facets []string

	AttributesToRetrieve   []string
	AttributesToHighlight  []string
	HighlightPreTag        string
	HighlightPostTag       string
	AttributesToCrop       []string
	CropLength             int
	CropMarker             string
	ShowMatchesPosition    bool
	ShowRankingScore       bool
	ShowRankingScoreDetails bool
	MatchingStrategy       string // "last" | "all"

	Vector []float64
	Hybrid *HybridParams
}

// Hit is one materialized, formatted search result.
type Hit struct {
	Fields              map[string]any
	Formatted           map[string]any
	RankingScore        float64
	RankingScoreDetails []ScoreDetail
}

// Response is the result of one Search call (§6). Offset/Limit/
// EstimatedTotalHits are populated for offset-based requests; Page/
// HitsPerPage/TotalPages/TotalHits are populated instead when the
// request used the finite-pagination (hitsPerPage/page) mode.
type Response struct {
	Hits               []Hit
	Query              string
	Offset             int
	Limit              int
	EstimatedTotalHits int
	Page               int
	HitsPerPage        int
	TotalPages         int
	TotalHits          int
	FacetDistribution  map[string][]facet.ValueCount
}

// Search runs query resolution, candidate-universe narrowing, ranking,
// pagination, and result materialization over idx (§4.4).
func Search(idx *index.Index, req Request) (*Response, error) {
	offset, limit := resolvePagination(req)
	strategy := MatchingLast
	if strings.EqualFold(req.MatchingStrategy, "all") {
		strategy = MatchingAll
	}

	var resp *Response
	err := idx.Env().View(func(tx *mdbxkv.Tx) error {
		fieldsMap := idx.FieldsIDsMap()
		settings := idx.Settings()

		var filterExpr filter.Expr
		if strings.TrimSpace(req.Filter) != "" {
			expr, err := filter.Parse(req.Filter)
			if err != nil {
				return err
			}
			filterExpr = expr
		}

		words, err := index.LoadWordSet(tx)
		if err != nil {
			return err
		}
		graph := BuildQueryGraph(words, settings, req.Query, true)
		terms, err := resolveTermDocids(tx, graph)
		if err != nil {
			return err
		}

		docIDBound, err := idx.NextDocID(tx)
		if err != nil {
			return err
		}

		universe, err := baseUniverse(tx, fieldsMap, settings, docIDBound, terms, strategy, filterExpr)
		if err != nil {
			return err
		}

		sortCriteria, err := parseSortCriteria(fieldsMap, settings, req.Sort)
		if err != nil {
			return err
		}
		rules, err := buildRuleChain(fieldsMap, settings, terms, req.Query, sortCriteria)
		if err != nil {
			return err
		}

		estimatedTotal := int(universe.GetCardinality())
		ordered, scores, err := Paginate(tx, rules, universe, offset, limit)
		if err != nil {
			return err
		}

		hits, err := materialize(tx, idx, fieldsMap, req, ordered, scores)
		if err != nil {
			return err
		}

		var dist map[string][]facet.ValueCount
		if len(req.Facets) > 0 {
			dist, err = facetDistribution(tx, fieldsMap, settings, universe, req.Facets)
			if err != nil {
				return err
			}
		}

		resp = &Response{
			Hits:              hits,
			Query:             req.Query,
			FacetDistribution: dist,
		}
		if req.HitsPerPage > 0 {
			page := req.Page
			if page < 1 {
				page = 1
			}
			resp.Page = page
			resp.HitsPerPage = req.HitsPerPage
			resp.TotalHits = estimatedTotal
			resp.TotalPages = mathutil.CeilDiv(estimatedTotal, req.HitsPerPage)
		} else {
			resp.Offset = offset
			resp.Limit = limit
			resp.EstimatedTotalHits = estimatedTotal
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func resolvePagination(req Request) (offset, limit int) {
	if req.HitsPerPage > 0 {
		page := req.Page
		if page < 1 {
			page = 1
		}
		return (page - 1) * req.HitsPerPage, req.HitsPerPage
	}
	limit = req.Limit
	if limit <= 0 {
		limit = 20
	}
	return req.Offset, limit
}

func baseUniverse(tx *mdbxkv.Tx, fieldsMap *index.FieldsIDsMap, settings index.Settings, docIDBound uint32, terms []termDocids, strategy MatchingStrategy, filterExpr filter.Expr) (*roaring.Bitmap, error) {
	var base *roaring.Bitmap
	switch {
	case len(terms) == 0:
		base = allDocIDs(docIDBound)
	case strategy == MatchingAll:
		base = terms[0].docids.Clone()
		for _, t := range terms[1:] {
			base.And(t.docids)
		}
	default:
		base = roaring.New()
		for _, t := range terms {
			base.Or(t.docids)
		}
	}
	if filterExpr != nil {
		allowed, err := filter.Eval(tx, fieldsMap, settings, docIDBound, filterExpr)
		if err != nil {
			return nil, err
		}
		base.And(allowed)
	}
	return base, nil
}

// sortCriterion is one resolved entry of the request's `sort` list.
type sortCriterion struct {
	geo        bool
	fieldID    uint16
	target     geo.Point
	descending bool
}

func parseSortCriteria(fieldsMap *index.FieldsIDsMap, settings index.Settings, raw []string) ([]sortCriterion, error) {
	var out []sortCriterion
	for _, entry := range raw {
		idx := strings.LastIndex(entry, ":")
		if idx < 0 {
			return nil, errkind.New(errkind.InvalidSearchSort, "sort entry %q missing :asc/:desc direction", entry)
		}
		field, dir := entry[:idx], entry[idx+1:]
		descending, err := sortDirection(entry, dir)
		if err != nil {
			return nil, err
		}

		if strings.HasPrefix(field, "_geoPoint(") && strings.HasSuffix(field, ")") {
			args := strings.Split(field[len("_geoPoint(") :len(field)-1], ",")
			if len(args) != 2 {
				return nil, errkind.New(errkind.InvalidSearchSort, "_geoPoint sort requires exactly 2 arguments")
			}
			lat, err1 := strconv.ParseFloat(strings.TrimSpace(args[0]), 64)
			lng, err2 := strconv.ParseFloat(strings.TrimSpace(args[1]), 64)
			if err1 != nil || err2 != nil {
				return nil, errkind.New(errkind.InvalidSearchSort, "_geoPoint sort arguments must be numeric")
			}
			out = append(out, sortCriterion{geo: true, target: geo.Point{Lat: lat, Lng: lng}, descending: descending})
			continue
		}

		if _, sortable := settings.SortableAttributes[field]; !sortable {
			return nil, errkind.New(errkind.InvalidSearchSort, "field %q is not sortable", field).WithField(field)
		}
		id, ok := fieldsMap.ID(field)
		if !ok {
			return nil, errkind.New(errkind.InvalidSearchSort, "unknown field %q in sort", field).WithField(field)
		}
		out = append(out, sortCriterion{fieldID: id, descending: descending})
	}
	return out, nil
}

func sortDirection(entry, dir string) (bool, error) {
	switch dir {
	case "asc":
		return false, nil
	case "desc":
		return true, nil
	default:
		return false, errkind.New(errkind.InvalidSearchSort, "sort entry %q must end in :asc or :desc", entry)
	}
}

func buildRuleChain(fieldsMap *index.FieldsIDsMap, settings index.Settings, terms []termDocids, query string, sortCriteria []sortCriterion) ([]Rule, error) {
	var rules []Rule
	for _, r := range settings.RankingRules {
		switch r {
		case index.RuleWords:
			rules = append(rules, NewWordsRule(terms))
		case index.RuleTypo:
			rules = append(rules, NewTypoRule(terms))
		case index.RuleProximity:
			rules = append(rules, NewProximityRule(terms))
		case index.RuleAttribute:
			rules = append(rules, NewAttributeRule(terms, fieldsMap, settings.SearchableAttributes))
		case index.RuleExactness:
			rules = append(rules, NewExactnessRule(fieldsMap, settings.SearchableAttributes, query))
		}
	}
	for _, sc := range sortCriteria {
		if sc.geo {
			geoFieldID, ok := fieldsMap.ID(geo.FieldName)
			if !ok {
				continue
			}
			rules = append(rules, NewGeoSortRule(geoFieldID, sc.target, sc.descending))
			continue
		}
		rules = append(rules, NewSortRule(sc.fieldID, sc.descending))
	}
	return rules, nil
}

func materialize(tx *mdbxkv.Tx, idx *index.Index, fieldsMap *index.FieldsIDsMap, req Request, ordered []uint32, scores map[uint32][]Rank) ([]Hit, error) {
	wanted := fieldIDSet(fieldsMap, req.AttributesToRetrieve)
	highlightCfg := HighlightConfig{
		Attributes:     fieldNameSet(req.AttributesToHighlight),
		PreTag:         firstNonEmpty(req.HighlightPreTag, "<em>"),
		PostTag:        firstNonEmpty(req.HighlightPostTag, "</em>"),
		CropAttributes: fieldNameSet(req.AttributesToCrop),
		CropLength:     req.CropLength,
		CropMarker:     firstNonEmpty(req.CropMarker, "…"),
	}
	if highlightCfg.CropLength == 0 {
		highlightCfg.CropLength = 10
	}
	matchWords := queryWords(req.Query)

	hits := make([]Hit, 0, len(ordered))
	for _, docID := range ordered {
		raw, ok, err := docstore.GetProjected(tx, docID, wanted)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		fields := map[string]any{}
		for id, bytes := range raw {
			name, ok := fieldsMap.Name(id)
			if !ok {
				continue
			}
			var v any
			if err := json.Unmarshal(bytes, &v); err != nil {
				continue
			}
			fields[name] = v
		}

		hit := Hit{Fields: fields}
		if len(highlightCfg.Attributes) > 0 || len(highlightCfg.CropAttributes) > 0 {
			hit.Formatted = formatHit(fields, highlightCfg, matchWords)
		}
		if req.ShowRankingScore || req.ShowRankingScoreDetails {
			details := scores[docID]
			hit.RankingScore = GlobalScore(rankOnlyDetails(details))
			if req.ShowRankingScoreDetails {
				hit.RankingScoreDetails = attachDetailNames(details)
			}
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func rankOnlyDetails(details []Rank) []Rank { return details }

func attachDetailNames(details []Rank) []ScoreDetail {
	out := make([]ScoreDetail, 0, len(details))
	for _, d := range details {
		d := d
		out = append(out, ScoreDetail{Rank: &d})
	}
	return out
}

func formatHit(fields map[string]any, cfg HighlightConfig, matchWords []string) map[string]any {
	out := map[string]any{}
	for name, v := range fields {
		s, ok := v.(string)
		if !ok {
			out[name] = v
			continue
		}
		if _, crop := cfg.CropAttributes[name]; crop {
			s = Crop(s, matchWords, cfg)
		}
		if _, highlight := cfg.Attributes[name]; highlight {
			s = Highlight(s, matchWords, cfg)
		}
		out[name] = s
	}
	return out
}

func queryWords(q string) []string {
	var out []string
	for _, tok := range tokenizeQuery(q) {
		out = append(out, tok.word)
	}
	return out
}

func fieldIDSet(fieldsMap *index.FieldsIDsMap, names []string) map[docstore.FieldID]struct{} {
	if len(names) == 0 {
		return nil
	}
	out := map[docstore.FieldID]struct{}{}
	for _, n := range names {
		if id, ok := fieldsMap.ID(n); ok {
			out[id] = struct{}{}
		}
	}
	return out
}

func fieldNameSet(names []string) map[string]struct{} {
	if len(names) == 0 {
		return nil
	}
	out := map[string]struct{}{}
	for _, n := range names {
		out[n] = struct{}{}
	}
	return out
}

func firstNonEmpty(s, def string) string {
	if s != "" {
		return s
	}
	return def
}

// facetDistribution computes (value, count) pairs scoped to universe,
// reading each document's own recorded facet value through the reverse
// index rather than scanning every value in the forward facet tree and
// intersecting with universe, since universe is usually far smaller than
// the whole field's value space.
func facetDistribution(tx *mdbxkv.Tx, fieldsMap *index.FieldsIDsMap, settings index.Settings, universe *roaring.Bitmap, facets []string) (map[string][]facet.ValueCount, error) {
	out := map[string][]facet.ValueCount{}
	for _, name := range facets {
		if _, ok := settings.FilterableAttributes[name]; !ok {
			return nil, errkind.New(errkind.InvalidSearchFacets, "field %q is not filterable/facetable", name).WithField(name)
		}
		fieldID, ok := fieldsMap.ID(name)
		if !ok {
			out[name] = nil
			continue
		}
		counts := map[string]uint64{}
		it := universe.Iterator()
		for it.HasNext() {
			id := it.Next()
			dv, ok, err := facet.GetDocValue(tx, fieldID, id)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			key := dv.String
			if dv.IsNumeric {
				key = strconv.FormatFloat(dv.Number, 'f', -1, 64)
			}
			counts[key]++
		}
		var vcs []facet.ValueCount
		for v, c := range counts {
			vcs = append(vcs, facet.ValueCount{Value: v, Count: c})
		}
		sort.Slice(vcs, func(i, j int) bool {
			if vcs[i].Count != vcs[j].Count {
				return vcs[i].Count > vcs[j].Count
			}
			return vcs[i].Value < vcs[j].Value
		})
		limit := settings.Faceting.MaxValuesPerFacet
		if limit > 0 && len(vcs) > limit {
			vcs = vcs[:limit]
		}
		out[name] = vcs
	}
	return out, nil
}
