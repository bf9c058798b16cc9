package filter

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/velasearch/vela/errkind"
	"github.com/velasearch/vela/index"
	"github.com/velasearch/vela/search/geo"
	"github.com/velasearch/vela/storage/docstore"
	"github.com/velasearch/vela/storage/facet"
	"github.com/velasearch/vela/storage/mdbxkv"
)

// Eval evaluates expr (already Normalize'd — see Parse) against fieldsMap
// and settings's filterable-attributes set, returning the matching docid
// bitmap. docIDBound bounds the brute-force scan _geoRadius needs, since no
// spatial index exists over the `_geo` field (§9 "the R-tree ... is built
// lazily per query"; a filter-time membership test needs no tree at all,
// just one pass over the candidate space). Callers must pass the index's
// NextDocID high-water mark here, not its live document count: deletions
// leave gaps below the live count but never above NextDocID, and scanning
// only up to the live count would silently skip documents assigned an id
// above it before other, lower ids were freed by deletion.
func Eval(tx *mdbxkv.Tx, fieldsMap *index.FieldsIDsMap, settings index.Settings, docIDBound uint32, expr Expr) (*roaring.Bitmap, error) {
	switch n := expr.(type) {
	case And:
		left, err := Eval(tx, fieldsMap, settings, docIDBound, n.Left)
		if err != nil {
			return nil, err
		}
		right, err := Eval(tx, fieldsMap, settings, docIDBound, n.Right)
		if err != nil {
			return nil, err
		}
		left.And(right)
		return left, nil
	case Or:
		left, err := Eval(tx, fieldsMap, settings, docIDBound, n.Left)
		if err != nil {
			return nil, err
		}
		right, err := Eval(tx, fieldsMap, settings, docIDBound, n.Right)
		if err != nil {
			return nil, err
		}
		left.Or(right)
		return left, nil
	case Not:
		// Parse always normalizes before returning; a caller constructing
		// raw Not nodes by hand gets the same pushdown applied here.
		return Eval(tx, fieldsMap, settings, docIDBound, Normalize(n))
	case Condition:
		return evalCondition(tx, fieldsMap, settings, n)
	case Range:
		return evalRange(tx, fieldsMap, settings, n)
	case GeoRadius:
		return evalGeoRadius(tx, fieldsMap, docIDBound, n)
	default:
		panic("filter: unhandled expr in Eval")
	}
}

func fieldID(fieldsMap *index.FieldsIDsMap, settings index.Settings, name string) (uint16, error) {
	id, ok := fieldsMap.ID(name)
	if !ok {
		return 0, errkind.New(errkind.InvalidSearchFilter, "unknown field %q in filter", name).WithField(name)
	}
	if _, filterable := settings.FilterableAttributes[name]; !filterable {
		return 0, errkind.New(errkind.InvalidSearchFilter, "field %q is not filterable", name).WithField(name)
	}
	return id, nil
}

func evalCondition(tx *mdbxkv.Tx, fieldsMap *index.FieldsIDsMap, settings index.Settings, c Condition) (*roaring.Bitmap, error) {
	id, err := fieldID(fieldsMap, settings, c.Field)
	if err != nil {
		return nil, err
	}
	switch c.Op {
	case Equal:
		return equalityBitmap(tx, id, c)
	case NotEqual:
		eq, err := equalityBitmap(tx, id, c)
		if err != nil {
			return nil, err
		}
		return complement(tx, id, eq)
	case GreaterThan:
		if !c.HasNumeric {
			return nil, errkind.New(errkind.InvalidSearchFilter, "field %q: %q requires a numeric value for >", c.Field, c.Value)
		}
		return facet.RangeNumber(tx, id, nextAfter(c.NumValue), math64Max())
	case GreaterOrEqual:
		if !c.HasNumeric {
			return nil, errkind.New(errkind.InvalidSearchFilter, "field %q: %q requires a numeric value for >=", c.Field, c.Value)
		}
		return facet.RangeNumber(tx, id, c.NumValue, math64Max())
	case LowerThan:
		if !c.HasNumeric {
			return nil, errkind.New(errkind.InvalidSearchFilter, "field %q: %q requires a numeric value for <", c.Field, c.Value)
		}
		return facet.RangeNumber(tx, id, math64Min(), nextBefore(c.NumValue))
	case LowerOrEqual:
		if !c.HasNumeric {
			return nil, errkind.New(errkind.InvalidSearchFilter, "field %q: %q requires a numeric value for <=", c.Field, c.Value)
		}
		return facet.RangeNumber(tx, id, math64Min(), c.NumValue)
	default:
		panic("filter: unhandled operator in evalCondition")
	}
}

func equalityBitmap(tx *mdbxkv.Tx, id uint16, c Condition) (*roaring.Bitmap, error) {
	if c.HasNumeric {
		bm, err := facet.EqualityNumber(tx, id, c.NumValue)
		if err != nil {
			return nil, err
		}
		if bm.GetCardinality() > 0 {
			return bm, nil
		}
	}
	return facet.EqualityString(tx, id, c.Value)
}

// complement returns every docid in the field's full posting set (union of
// its string and numeric facet values) that isn't in eq — the only way to
// express "!=" given no explicit "has any value for this field" index.
func complement(tx *mdbxkv.Tx, id uint16, eq *roaring.Bitmap) (*roaring.Bitmap, error) {
	all, err := facet.RangeNumber(tx, id, math64Min(), math64Max())
	if err != nil {
		return nil, err
	}
	allStrings, err := facet.RangeString(tx, id, "", "￿")
	if err != nil {
		return nil, err
	}
	all.Or(allStrings)
	all.AndNot(eq)
	return all, nil
}

func evalRange(tx *mdbxkv.Tx, fieldsMap *index.FieldsIDsMap, settings index.Settings, r Range) (*roaring.Bitmap, error) {
	id, err := fieldID(fieldsMap, settings, r.Field)
	if err != nil {
		return nil, err
	}
	lo, hi := r.LowerN, r.UpperN
	// "*" disables that bound (§6 date-filter convention), generalized to
	// any range bound in this grammar.
	if r.Lower == "*" {
		lo = math64Min()
	}
	if r.Upper == "*" {
		hi = math64Max()
	}
	return facet.RangeNumber(tx, id, lo, hi)
}

func evalGeoRadius(tx *mdbxkv.Tx, fieldsMap *index.FieldsIDsMap, docIDBound uint32, g GeoRadius) (*roaring.Bitmap, error) {
	geoFieldID, ok := fieldsMap.ID(geo.FieldName)
	if !ok {
		return roaring.New(), nil
	}
	target := geo.Point{Lat: g.Lat, Lng: g.Lng}
	result := roaring.New()
	for docID := uint32(0); docID < docIDBound; docID++ {
		fields, ok, err := docstore.GetProjected(tx, docID, map[docstore.FieldID]struct{}{geoFieldID: {}})
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		raw, ok := fields[geoFieldID]
		if !ok {
			continue
		}
		point, ok := geo.ParseField(raw)
		if !ok {
			continue
		}
		within := geo.DistanceMeters(target, point) <= g.Meters
		if within != g.Negate {
			result.Add(docID)
		}
	}
	return result, nil
}

func math64Min() float64 { return -1.7976931348623157e+308 }
func math64Max() float64 { return 1.7976931348623157e+308 }
func nextAfter(v float64) float64 {
	return v + 1e-9
}
func nextBefore(v float64) float64 {
	return v - 1e-9
}
