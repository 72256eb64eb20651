package query

// IndexProvider hands out the integers used to name aliases and bind
// parameters. One provider is shared by every clause of a single compile.
type IndexProvider struct {
	next int
}

func (p *IndexProvider) NextIndex() int {
	i := p.next
	p.next++
	return i
}

// Parameters is an insertion-ordered map of bind name to value.
type Parameters struct {
	names  []string
	values map[string]any
}

func NewParameters() *Parameters {
	return &Parameters{values: make(map[string]any)}
}

// Put binds value to name. Rebinding a name keeps its original position.
func (p *Parameters) Put(name string, value any) {
	if _, ok := p.values[name]; !ok {
		p.names = append(p.names, name)
	}
	p.values[name] = value
}

func (p *Parameters) Get(name string) (any, bool) {
	v, ok := p.values[name]
	return v, ok
}

func (p *Parameters) Len() int {
	return len(p.names)
}

// Names returns the bind names in the order they were first bound.
func (p *Parameters) Names() []string {
	out := make([]string, len(p.names))
	copy(out, p.names)
	return out
}

// Map returns a copy of the bindings.
func (p *Parameters) Map() map[string]any {
	out := make(map[string]any, len(p.values))
	for k, v := range p.values {
		out[k] = v
	}
	return out
}

// merge returns a new Parameters holding p's bindings followed by other's.
func (p *Parameters) merge(other *Parameters) *Parameters {
	out := NewParameters()
	for _, n := range p.names {
		out.Put(n, p.values[n])
	}
	for _, n := range other.names {
		out.Put(n, other.values[n])
	}
	return out
}
