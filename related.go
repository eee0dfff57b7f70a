package cbtools

// LoadMany materializes the documents with the given uids in one bulk
// fetch, in row order. Any error row fails the whole call; use LoadMap
// when missing ids should simply be skipped.
func LoadMany[T Model](db *DB, uids []string, factory func() T) ([]T, error) {
	rows, err := db.gateway.AllDocs(uids)
	if err != nil {
		return nil, err
	}

	out := make([]T, 0, len(rows))
	for _, row := range rows {
		m := factory()
		if err := db.fromRow(row, m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// LoadMap materializes documents keyed by uid, in one bulk fetch. Ids
// absent from the store are left out of the map rather than failing the
// call, so partial results are per-row, never a whole-call failure.
func LoadMap[T Model](db *DB, uids []string, factory func() T) (map[string]T, error) {
	rows, err := db.gateway.AllDocs(uids)
	if err != nil {
		return nil, err
	}

	out := make(map[string]T, len(rows))
	for _, row := range rows {
		if row.Err() != nil {
			continue
		}
		m := factory()
		if err := db.fromRow(row, m); err != nil {
			return nil, err
		}
		out[m.Base().UID] = m
	}
	return out, nil
}

// Relation declares how parent records point at a related document
// type: how to read the stored foreign uid, how to attach the resolved
// instance, and how to make an empty instance to load into.
type Relation[P Model, R Model] struct {
	Key    func(P) string
	Assign func(P, R)
	New    func() R
}

// LoadRelated resolves one relation for a batch of parents with exactly
// one bulk fetch, whatever the mix of duplicate and empty keys. Parents
// whose key is empty or unresolved get the type's zero value assigned.
func LoadRelated[P Model, R Model](db *DB, parents []P, rel Relation[P, R]) error {
	seen := make(map[string]struct{}, len(parents))
	keys := make([]string, 0, len(parents))
	for _, p := range parents {
		k := rel.Key(p)
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}

	related, err := LoadMap(db, keys, rel.New)
	if err != nil {
		return err
	}

	for _, p := range parents {
		if k := rel.Key(p); k != "" {
			if r, ok := related[k]; ok {
				rel.Assign(p, r)
				continue
			}
		}
		var none R
		rel.Assign(p, none)
	}
	return nil
}

// QueryModels discovers document ids through a view and materializes
// them in one bulk fetch: the cheap-index-scan-then-batch-load pattern
// in a single call.
func QueryModels[T Model](db *DB, view string, key any, factory func() T) ([]T, error) {
	ids, err := db.views.QueryKeys(view, key)
	if err != nil {
		return nil, err
	}
	return LoadMany(db, ids, factory)
}
