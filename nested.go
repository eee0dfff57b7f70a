package cbtools

// NestedDocument is the embeddable base of a sub-record owned by exactly
// one parent document. It has its own stable uid, which may be pre-set
// by the caller, but no network lifecycle: it is serialized only as an
// array element inside the parent's payload. Passing a nested model to
// DB.Save or DB.Load fails with a ValidationError.
type NestedDocument struct {
	Document
}

func (d *NestedDocument) isNested() {}

// NestedModel is a Model embedding [NestedDocument].
type NestedModel interface {
	Model
	isNested()
}

func isNestedModel(m Model) bool {
	_, ok := m.(interface{ isNested() })
	return ok
}
