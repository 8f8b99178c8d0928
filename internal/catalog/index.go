package catalog

import "fmt"

// DefaultL is the value bound to the constant L during index evaluation.
const DefaultL = 0.5

// IndexDefinition is a named spectral index formula.
type IndexDefinition struct {
	Name        string
	Description string
	Formula     Expr
}

// Expression returns the canonical expression string of the formula.
func (d *IndexDefinition) Expression() string {
	return d.Formula.String()
}

// IndexRegistry holds index definitions in registration order.
type IndexRegistry struct {
	order   []string
	indices map[string]*IndexDefinition
}

// NewIndexRegistry creates an empty index registry.
func NewIndexRegistry() *IndexRegistry {
	return &IndexRegistry{indices: make(map[string]*IndexDefinition)}
}

// Add registers an index definition.
func (r *IndexRegistry) Add(def *IndexDefinition) error {
	if def == nil || def.Formula == nil {
		return fmt.Errorf("index definition must have a formula")
	}
	if def.Name == "" {
		return fmt.Errorf("index name is required")
	}
	if _, exists := r.indices[def.Name]; exists {
		return fmt.Errorf("index %q already exists", def.Name)
	}
	r.indices[def.Name] = def
	r.order = append(r.order, def.Name)
	return nil
}

// Index returns the definition registered under name.
func (r *IndexRegistry) Index(name string) (*IndexDefinition, error) {
	def, ok := r.indices[name]
	if !ok {
		return nil, fmt.Errorf("index %q: %w", name, ErrNotFound)
	}
	return def, nil
}

// Names returns index names in registration order.
func (r *IndexRegistry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// All returns definitions in registration order.
func (r *IndexRegistry) All() []*IndexDefinition {
	defs := make([]*IndexDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.indices[name])
	}
	return defs
}

// BuiltinIndices returns the registry of supported spectral indices.
func BuiltinIndices() *IndexRegistry {
	var (
		red     = Ref(RoleRed)
		green   = Ref(RoleGreen)
		blue    = Ref(RoleBlue)
		nir     = Ref(RoleNIR)
		l       = Const(ConstantL)
		twoNIR1 = Add(Mul(Num(2), nir), Num(1))
		// 2*RED - BLUE, the atmospherically resistant red term
		rb = Sub(Mul(Num(2), red), blue)
	)

	defs := []*IndexDefinition{
		{
			Name:        "NDVI",
			Description: "Normalized Difference Vegetation Index",
			Formula:     NormalizedDifference(RoleNIR, RoleRed),
		},
		{
			Name:        "EVI",
			Description: "Enhanced Vegetation Index",
			Formula: Mul(Num(2.5), Div(
				Sub(nir, red),
				Add(Sub(Add(nir, Mul(Num(6), red)), Mul(Num(7.5), blue)), Num(1)),
			)),
		},
		{
			Name:        "SAVI",
			Description: "Soil Adjusted Vegetation Index",
			Formula:     Mul(Div(Sub(nir, red), Add(Add(nir, red), l)), Add(Num(1), l)),
		},
		{
			Name:        "NDWI",
			Description: "Normalized Difference Water Index",
			Formula:     NormalizedDifference(RoleGreen, RoleNIR),
		},
		{
			Name:        "GNDVI",
			Description: "Green Normalized Difference Vegetation Index",
			Formula:     NormalizedDifference(RoleNIR, RoleGreen),
		},
		{
			Name:        "NDRE",
			Description: "Normalized Difference Red Edge",
			Formula:     NormalizedDifference(RoleNIR, RoleRedEdge),
		},
		{
			Name:        "MSAVI2",
			Description: "Modified Soil Adjusted Vegetation Index 2",
			Formula: Div(
				Sub(twoNIR1, Sqrt(Sub(Pow(twoNIR1, Num(2)), Mul(Num(8), Sub(nir, red))))),
				Num(2),
			),
		},
		{
			Name:        "ARVI",
			Description: "Atmospherically Resistant Vegetation Index",
			Formula:     Div(Sub(nir, rb), Add(nir, rb)),
		},
		{
			Name:        "PRI",
			Description: "Photochemical Reflectance Index",
			Formula:     NormalizedDifference(RoleRed, RoleBlue),
		},
		{
			Name:        "WBI",
			Description: "Water Band Index",
			Formula:     Div(nir, green),
		},
	}

	registry := NewIndexRegistry()
	for _, def := range defs {
		if err := registry.Add(def); err != nil {
			panic(err)
		}
	}
	return registry
}
