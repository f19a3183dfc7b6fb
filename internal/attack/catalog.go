// Package attack turns raw STIX bundle objects into the catalog the
// explorer browses: threat actors classified by region, activity, and
// target sector, adversary tools, and the technique cross-references
// between them.
package attack

import (
	"sort"
	"strings"

	"threatscope/internal/stix"
)

const noDescription = "No description available"

// Actor is a threat actor (STIX intrusion-set) with derived classifications.
type Actor struct {
	ID          string
	Name        string
	AttackID    string
	Description string
	Region      string
	Activity    string
	Sector      string
	Domain      string
	Revoked     bool
}

// CategoryValue returns the actor's classification along the given axis.
func (a Actor) CategoryValue(c Category) string {
	switch c {
	case CategoryActivity:
		return a.Activity
	case CategorySector:
		return a.Sector
	default:
		return a.Region
	}
}

// Tool is an adversary tool (STIX tool object).
type Tool struct {
	ID          string
	Name        string
	AttackID    string
	Description string
	Domain      string
	Revoked     bool
}

// Technique is an attack pattern resolved through a relationship, with
// platform and kill-chain metadata flattened for display.
type Technique struct {
	ID          string
	Name        string
	AttackID    string
	Description string
	Platforms   string
	KillChain   string
	Revoked     bool
}

// ActorRef is an actor correlated with a tool.
type ActorRef struct {
	Name        string
	Description string
}

// ActorGroup is one column of the grouped actor display.
type ActorGroup struct {
	Label  string
	Actors []Actor
}

// CatalogStats summarizes catalog content.
type CatalogStats struct {
	Actors        int
	Tools         int
	Techniques    int
	Relationships int
	ByDomain      map[string]int
}

// Source is one domain's worth of bundle objects.
type Source struct {
	Domain  string
	Objects []stix.Object
}

type relation struct {
	source string
	target string
}

// Catalog indexes bundle objects for lookup and cross-referencing. Build it
// once per dataset; all methods are read-only afterwards.
type Catalog struct {
	actors         []Actor
	tools          []Tool
	objects        map[string]*stix.Object
	rels           []relation
	actorsByName   map[string]*Actor
	techniqueCount int
	byDomain       map[string]int
}

// NewCatalog builds a catalog from one or more domain sources. Actors are
// sorted by name; tools keep bundle order. Objects without names are
// skipped.
func NewCatalog(sources ...Source) *Catalog {
	c := &Catalog{
		objects:      make(map[string]*stix.Object),
		actorsByName: make(map[string]*Actor),
		byDomain:     make(map[string]int),
	}

	for _, src := range sources {
		c.byDomain[src.Domain] += len(src.Objects)
		for i := range src.Objects {
			obj := &src.Objects[i]
			switch obj.Type {
			case stix.TypeIntrusionSet:
				if obj.Name == "" {
					continue
				}
				c.objects[obj.ID] = obj
				actor := Actor{
					ID:          obj.ID,
					Name:        obj.Name,
					AttackID:    obj.AttackID(),
					Description: obj.Description,
					Region:      ClassifyRegion(obj.Description),
					Activity:    ClassifyActivity(obj.Description),
					Sector:      ClassifySector(obj.Description),
					Domain:      src.Domain,
					Revoked:     obj.IsRevoked(),
				}
				c.actors = append(c.actors, actor)
				// First occurrence in bundle order wins name lookup.
				key := strings.ToLower(actor.Name)
				if _, ok := c.actorsByName[key]; !ok {
					cp := actor
					c.actorsByName[key] = &cp
				}
			case stix.TypeTool:
				if obj.Name == "" {
					continue
				}
				c.objects[obj.ID] = obj
				desc := obj.Description
				if desc == "" {
					desc = noDescription
				}
				c.tools = append(c.tools, Tool{
					ID:          obj.ID,
					Name:        obj.Name,
					AttackID:    obj.AttackID(),
					Description: desc,
					Domain:      src.Domain,
					Revoked:     obj.IsRevoked(),
				})
			case stix.TypeAttackPattern:
				c.objects[obj.ID] = obj
				c.techniqueCount++
			case stix.TypeRelationship:
				c.rels = append(c.rels, relation{source: obj.SourceRef, target: obj.TargetRef})
			}
		}
	}

	sort.Slice(c.actors, func(i, j int) bool { return c.actors[i].Name < c.actors[j].Name })
	return c
}

// Actors returns all threat actors sorted by name.
func (c *Catalog) Actors() []Actor {
	return c.actors
}

// Tools returns all adversary tools in bundle order.
func (c *Catalog) Tools() []Tool {
	return c.tools
}

// Techniques returns all attack patterns sorted by name.
func (c *Catalog) Techniques() []Technique {
	var out []Technique
	for _, obj := range c.objects {
		if obj.Type != stix.TypeAttackPattern {
			continue
		}
		out = append(out, techniqueFromObject(obj))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ActorByName resolves an actor by case-insensitive name equality.
func (c *Catalog) ActorByName(name string) (*Actor, bool) {
	a, ok := c.actorsByName[strings.ToLower(name)]
	return a, ok
}

// ToolByName resolves a tool by case-insensitive name equality, first match
// in bundle order.
func (c *Catalog) ToolByName(name string) (*Tool, bool) {
	lower := strings.ToLower(name)
	for i := range c.tools {
		if strings.ToLower(c.tools[i].Name) == lower {
			return &c.tools[i], true
		}
	}
	return nil, false
}

// TechniquesForActor returns the attack patterns the actor has a
// relationship to, in bundle relationship order.
func (c *Catalog) TechniquesForActor(actorID string) []Technique {
	var out []Technique
	for _, r := range c.rels {
		if r.source != actorID || !strings.Contains(r.target, stix.TypeAttackPattern) {
			continue
		}
		obj, ok := c.objects[r.target]
		if !ok || obj.Type != stix.TypeAttackPattern {
			continue
		}
		out = append(out, techniqueFromObject(obj))
	}
	return out
}

// TechniquesForTool returns the attack patterns delivered by the tool,
// sorted by kill-chain string. Descriptions are flattened to one line and
// suffixed with the STIX identifier.
func (c *Catalog) TechniquesForTool(toolID string) []Technique {
	var out []Technique
	for _, r := range c.rels {
		if r.source != toolID || !strings.Contains(r.target, stix.TypeAttackPattern) {
			continue
		}
		obj, ok := c.objects[r.target]
		if !ok || obj.Type != stix.TypeAttackPattern {
			continue
		}
		t := techniqueFromObject(obj)
		desc := obj.Description
		if desc == "" {
			desc = noDescription
		}
		t.Description = flatten(desc) + " (ID: " + obj.ID + ")"
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].KillChain < out[j].KillChain })
	return out
}

// ActorsForTool returns the actors with a relationship onto the tool, in
// bundle relationship order.
func (c *Catalog) ActorsForTool(toolID string) []ActorRef {
	var out []ActorRef
	for _, r := range c.rels {
		if r.target != toolID || !strings.Contains(r.source, stix.TypeIntrusionSet) {
			continue
		}
		obj, ok := c.objects[r.source]
		if !ok || obj.Type != stix.TypeIntrusionSet {
			continue
		}
		desc := obj.Description
		if desc == "" {
			desc = noDescription
		}
		out = append(out, ActorRef{
			Name:        obj.Name,
			Description: flatten(desc) + " (ID: " + obj.ID + ")",
		})
	}
	return out
}

// Relations returns every relationship pair, for fact loading.
func (c *Catalog) Relations() [][2]string {
	out := make([][2]string, len(c.rels))
	for i, r := range c.rels {
		out[i] = [2]string{r.source, r.target}
	}
	return out
}

// TechniqueByID returns the technique for a STIX attack-pattern ID.
func (c *Catalog) TechniqueByID(id string) (*Technique, bool) {
	obj, ok := c.objects[id]
	if !ok || obj.Type != stix.TypeAttackPattern {
		return nil, false
	}
	t := techniqueFromObject(obj)
	return &t, true
}

// Object returns the raw STIX object for an ID.
func (c *Catalog) Object(id string) (*stix.Object, bool) {
	obj, ok := c.objects[id]
	return obj, ok
}

// GroupActors splits actors into groups along the given axis, preserving
// first-seen group order.
func GroupActors(actors []Actor, cat Category) []ActorGroup {
	index := make(map[string]int)
	var groups []ActorGroup
	for _, a := range actors {
		label := a.CategoryValue(cat)
		i, ok := index[label]
		if !ok {
			i = len(groups)
			index[label] = i
			groups = append(groups, ActorGroup{Label: label})
		}
		groups[i].Actors = append(groups[i].Actors, a)
	}
	return groups
}

// SearchActors returns actors whose name or ATT&CK ID contains q,
// case-insensitively. An empty query returns all actors.
func (c *Catalog) SearchActors(q string) []Actor {
	if q == "" {
		return c.actors
	}
	lower := strings.ToLower(q)
	var out []Actor
	for _, a := range c.actors {
		if strings.Contains(strings.ToLower(a.Name), lower) ||
			strings.Contains(strings.ToLower(a.AttackID), lower) {
			out = append(out, a)
		}
	}
	return out
}

// SearchTools returns tools whose name or ATT&CK ID contains q,
// case-insensitively. An empty query returns all tools.
func (c *Catalog) SearchTools(q string) []Tool {
	if q == "" {
		return c.tools
	}
	lower := strings.ToLower(q)
	var out []Tool
	for _, t := range c.tools {
		if strings.Contains(strings.ToLower(t.Name), lower) ||
			strings.Contains(strings.ToLower(t.AttackID), lower) {
			out = append(out, t)
		}
	}
	return out
}

// Stats returns catalog content counts.
func (c *Catalog) Stats() CatalogStats {
	return CatalogStats{
		Actors:        len(c.actors),
		Tools:         len(c.tools),
		Techniques:    c.techniqueCount,
		Relationships: len(c.rels),
		ByDomain:      c.byDomain,
	}
}

func techniqueFromObject(obj *stix.Object) Technique {
	platforms := "N/A"
	if len(obj.Platforms) > 0 {
		platforms = strings.Join(obj.Platforms, ", ")
	}
	phases := make([]string, len(obj.KillChainPhases))
	for i, p := range obj.KillChainPhases {
		phases[i] = p.PhaseName
	}
	return Technique{
		ID:          obj.ID,
		Name:        obj.Name,
		AttackID:    obj.AttackID(),
		Description: obj.Description,
		Platforms:   platforms,
		KillChain:   strings.Join(phases, ", "),
		Revoked:     obj.IsRevoked(),
	}
}

func flatten(s string) string {
	return strings.ReplaceAll(s, "\n", " ")
}
