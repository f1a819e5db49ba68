package domain

// nodeRef locates one authored node inside the dataset arena.
type nodeRef struct {
	condition int
	node      int
}

// Dataset is the immutable, process-wide table of categories and conditions.
// Build it with NewDataset after validation; it is safe for concurrent reads.
type Dataset struct {
	version    string
	categories []Category
	conditions []Condition
	categoryIx map[string]int
	nodeIx     map[string][]nodeRef
}

// NewDataset copies the given categories and conditions into an indexed,
// read-only table. It performs no validation.
func NewDataset(version string, categories []Category, conditions []Condition) *Dataset {
	ds := &Dataset{
		version:    version,
		categories: make([]Category, len(categories)),
		conditions: make([]Condition, len(conditions)),
		categoryIx: make(map[string]int, len(categories)),
		nodeIx:     make(map[string][]nodeRef),
	}
	copy(ds.categories, categories)
	for i, cat := range ds.categories {
		ds.categoryIx[cat.ID] = i
	}

	for i, c := range conditions {
		cp := Condition{
			Name:     c.Name,
			Category: c.Category,
			Nodes:    append([]SymptomNode(nil), c.Nodes...),
			Edges:    append([]ConditionEdge(nil), c.Edges...),
		}
		ds.conditions[i] = cp
		for j, n := range cp.Nodes {
			ds.nodeIx[n.ID] = append(ds.nodeIx[n.ID], nodeRef{condition: i, node: j})
		}
	}
	return ds
}

// Version identifies the dataset content; it keys cached results.
func (d *Dataset) Version() string { return d.version }

// Len returns the number of conditions.
func (d *Dataset) Len() int { return len(d.conditions) }

// Condition returns the i-th condition in authoring order. The returned
// value shares slices with the dataset and must not be modified.
func (d *Dataset) Condition(i int) *Condition { return &d.conditions[i] }

// Conditions returns a copy of the condition list in authoring order.
func (d *Dataset) Conditions() []Condition {
	out := make([]Condition, len(d.conditions))
	copy(out, d.conditions)
	return out
}

// ConditionsInCategory returns the conditions grouped under categoryID.
func (d *Dataset) ConditionsInCategory(categoryID string) []Condition {
	var out []Condition
	for _, c := range d.conditions {
		if c.Category == categoryID {
			out = append(out, c)
		}
	}
	return out
}

// Categories returns a copy of the categories in authoring order.
func (d *Dataset) Categories() []Category {
	out := make([]Category, len(d.categories))
	copy(out, d.categories)
	return out
}

// Category looks up a category by id.
func (d *Dataset) Category(id string) (Category, bool) {
	i, ok := d.categoryIx[id]
	if !ok {
		return Category{}, false
	}
	return d.categories[i], true
}

// HasSymptom reports whether any condition authors a node with this id.
func (d *Dataset) HasSymptom(id string) bool {
	_, ok := d.nodeIx[id]
	return ok
}

// Symptom is one catalog entry: a node id with the conditions that use it.
type Symptom struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	BaseSymptom string   `json:"base_symptom,omitempty"`
	Severity    Severity `json:"severity,omitempty"`
	Conditions  []string `json:"conditions"`
}

// Symptoms lists the distinct node ids in authoring order. Display fields
// come from the first condition that authors the id.
func (d *Dataset) Symptoms() []Symptom {
	seen := make(map[string]bool, len(d.nodeIx))
	out := make([]Symptom, 0, len(d.nodeIx))
	for _, c := range d.conditions {
		for _, n := range c.Nodes {
			if seen[n.ID] {
				continue
			}
			seen[n.ID] = true
			refs := d.nodeIx[n.ID]
			names := make([]string, 0, len(refs))
			for _, r := range refs {
				names = append(names, d.conditions[r.condition].Name)
			}
			out = append(out, Symptom{
				ID:          n.ID,
				Name:        n.Name,
				BaseSymptom: n.BaseSymptom,
				Severity:    n.Severity,
				Conditions:  names,
			})
		}
	}
	return out
}

// HasCondition reports whether any category authors a condition with this name.
func (d *Dataset) HasCondition(name string) bool {
	for i := range d.conditions {
		if d.conditions[i].Name == name {
			return true
		}
	}
	return false
}
