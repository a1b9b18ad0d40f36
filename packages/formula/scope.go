package formula

// Scope holds LET and LAMBDA bindings. lookups walk the parent chain, so an
// inner binding shadows an outer one of the same name. names are stored
// upper-cased.
type Scope struct {
	bindings map[string]Primitive
	parent   *Scope
}

// NewScope creates a scope with an optional parent
func NewScope(parent *Scope) *Scope {
	return &Scope{
		bindings: make(map[string]Primitive),
		parent:   parent,
	}
}

// Child creates a new scope whose parent is s. s may be nil.
func (s *Scope) Child() *Scope {
	return NewScope(s)
}

// Lookup finds name in this scope or any parent. a nil scope holds nothing.
func (s *Scope) Lookup(name string) (Primitive, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if v, ok := cur.bindings[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Bind sets name in this scope only
func (s *Scope) Bind(name string, value Primitive) {
	s.bindings[name] = value
}

// Closure is what a LAMBDA evaluates to: parameters, body and everything
// the body can see at the point of creation
type Closure struct {
	ID       LambdaRef
	Params   []string
	Body     ASTNode
	Accessor CellAccessor
	Sheet    string
	Scope    *Scope
}
