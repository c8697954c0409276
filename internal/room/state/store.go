package state

// Collection names used in Change events.
const (
	EntitiesCollection = "entities"
	UsersCollection    = "users"
)

// Store is the room's replicated state: entities keyed by id and users keyed
// by session id.
type Store struct {
	Entities *Collection[*Entity]
	Users    *Collection[*User]
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		Entities: NewCollection[*Entity](EntitiesCollection),
		Users:    NewCollection[*User](UsersCollection),
	}
}

// OnChange registers l on both collections.
func (s *Store) OnChange(l Listener) {
	s.Entities.OnChange(l)
	s.Users.OnChange(l)
}

// Snapshot is a detached deep copy of the store, safe to hand to encoders.
type Snapshot struct {
	Entities map[string]*Entity `json:"entities"`
	Users    map[string]*User   `json:"users"`
}

// Snapshot copies the current contents.
func (s *Store) Snapshot() Snapshot {
	snap := Snapshot{
		Entities: make(map[string]*Entity, s.Entities.Len()),
		Users:    make(map[string]*User, s.Users.Len()),
	}
	s.Entities.Range(func(k string, e *Entity) bool {
		snap.Entities[k] = e.Clone()
		return true
	})
	s.Users.Range(func(k string, u *User) bool {
		snap.Users[k] = u.Clone()
		return true
	})
	return snap
}
