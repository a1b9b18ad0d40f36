package formula

// StringTable interns the text values a workbook stores. identical text
// shares one entry, entries are reference counted and their IDs reused once
// released. ID 0 is never handed out.
type StringTable struct {
	ids     map[string]uint32
	entries []stringEntry // indexed by ID
	free    []uint32
}

type stringEntry struct {
	value string
	refs  int
}

// NewStringTable creates a new string table
func NewStringTable() *StringTable {
	return &StringTable{
		ids:     make(map[string]uint32),
		entries: make([]stringEntry, 1), // reserve 0
	}
}

// Intern returns the ID for s, adding a reference
func (st *StringTable) Intern(s string) uint32 {
	if id, exists := st.ids[s]; exists {
		st.entries[id].refs++
		return id
	}

	var id uint32
	if n := len(st.free); n > 0 {
		id = st.free[n-1]
		st.free = st.free[:n-1]
		st.entries[id] = stringEntry{value: s, refs: 1}
	} else {
		id = uint32(len(st.entries))
		st.entries = append(st.entries, stringEntry{value: s, refs: 1})
	}
	st.ids[s] = id
	return id
}

// GetString retrieves a string by its ID
func (st *StringTable) GetString(id uint32) (string, bool) {
	if id == 0 || int(id) >= len(st.entries) || st.entries[id].refs == 0 {
		return "", false
	}
	return st.entries[id].value, true
}

// Release drops one reference to id. it returns true when that was the
// last one and the entry is gone.
func (st *StringTable) Release(id uint32) bool {
	if id == 0 || int(id) >= len(st.entries) || st.entries[id].refs == 0 {
		return false
	}
	entry := &st.entries[id]
	entry.refs--
	if entry.refs > 0 {
		return false
	}
	delete(st.ids, entry.value)
	*entry = stringEntry{}
	st.free = append(st.free, id)
	return true
}

// GetReferenceCount returns the reference count for a string ID
func (st *StringTable) GetReferenceCount(id uint32) int {
	if int(id) >= len(st.entries) {
		return 0
	}
	return st.entries[id].refs
}

// Count returns the number of unique strings in the table
func (st *StringTable) Count() int {
	return len(st.ids)
}
