package room

// OwnershipIndex maps a connection identity to the ids of the entities it
// created, in creation order. It is a cache of Entity.OwnerID groupings and is
// kept consistent by EntityManager.
type OwnershipIndex struct {
	owned map[string][]string
}

// NewOwnershipIndex creates an empty index.
func NewOwnershipIndex() *OwnershipIndex {
	return &OwnershipIndex{owned: make(map[string][]string)}
}

// Ensure creates an empty entry for connID if none exists.
func (o *OwnershipIndex) Ensure(connID string) {
	if _, ok := o.owned[connID]; !ok {
		o.owned[connID] = []string{}
	}
}

// Add appends entityID under connID, creating the entry if needed.
func (o *OwnershipIndex) Add(connID, entityID string) {
	o.owned[connID] = append(o.owned[connID], entityID)
}

// Remove drops entityID from connID's entry. The entry itself is kept.
func (o *OwnershipIndex) Remove(connID, entityID string) {
	ids, ok := o.owned[connID]
	if !ok {
		return
	}
	for i, id := range ids {
		if id == entityID {
			o.owned[connID] = append(ids[:i], ids[i+1:]...)
			return
		}
	}
}

// Owned returns a copy of connID's entity ids.
func (o *OwnershipIndex) Owned(connID string) ([]string, bool) {
	ids, ok := o.owned[connID]
	if !ok {
		return nil, false
	}
	out := make([]string, len(ids))
	copy(out, ids)
	return out, true
}

// Take removes connID's entry and returns its ids.
func (o *OwnershipIndex) Take(connID string) ([]string, bool) {
	ids, ok := o.owned[connID]
	if !ok {
		return nil, false
	}
	delete(o.owned, connID)
	return ids, true
}

// Has reports whether connID has an entry.
func (o *OwnershipIndex) Has(connID string) bool {
	_, ok := o.owned[connID]
	return ok
}

// Len returns the number of connection entries.
func (o *OwnershipIndex) Len() int {
	return len(o.owned)
}
