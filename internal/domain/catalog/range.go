package catalog

// Range is a named set of products that conditions and benefits can be scoped
// to: the whole site, an explicit product list, categories, or product
// classes. Membership checks are pure and allocation-free.
type Range struct {
	ID             int64
	Name           string
	IncludesAll    bool
	ProductIDs     map[string]struct{}
	CategoryIDs    map[string]struct{}
	ClassIDs       map[string]struct{}
	ExcludedIDs    map[string]struct{}
}

// NewRange builds a range from explicit membership lists. Nil slices are fine.
func NewRange(id int64, name string, includesAll bool, productIDs, categoryIDs, classIDs, excludedIDs []string) *Range {
	return &Range{
		ID:          id,
		Name:        name,
		IncludesAll: includesAll,
		ProductIDs:  toSet(productIDs),
		CategoryIDs: toSet(categoryIDs),
		ClassIDs:    toSet(classIDs),
		ExcludedIDs: toSet(excludedIDs),
	}
}

// Contains reports whether the product is a member of the range. Exclusions
// win over every inclusion rule.
func (r *Range) Contains(p Product) bool {
	if _, excluded := r.ExcludedIDs[p.ID]; excluded {
		return false
	}
	if r.IncludesAll {
		return true
	}
	if _, ok := r.ProductIDs[p.ID]; ok {
		return true
	}
	if _, ok := r.CategoryIDs[p.CategoryID]; ok {
		return true
	}
	if _, ok := r.ClassIDs[p.ClassID]; ok {
		return true
	}
	return false
}

func toSet(ids []string) map[string]struct{} {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
