// Package kb derives cross references between threat actors, adversary
// tools, and techniques with a Google Mangle engine. The catalog asserts
// base facts; Datalog rules join them into the shared-usage relations
// behind the overlap screen.
package kb

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	_ "github.com/google/mangle/builtin"
	mengine "github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	_ "github.com/google/mangle/packages"
	"github.com/google/mangle/parse"
	"github.com/google/mangle/unionfind"

	"threatscope/internal/attack"
	"threatscope/internal/logging"
	"threatscope/internal/stix"
)

// schema declares the base predicates Load asserts and the rules that
// cross-reference them. Bounds pin every argument to a string constant,
// so STIX identifiers and display names round-trip unchanged.
const schema = `
# Base facts asserted from the catalog.
Decl actor(ID, Name) descr [mode("-", "-")] bound [/string, /string].
Decl adversary_tool(ID, Name) descr [mode("-", "-")] bound [/string, /string].
Decl technique(ID, Name) descr [mode("-", "-")] bound [/string, /string].
Decl uses(Source, Target) descr [mode("-", "-")] bound [/string, /string].

# Derived cross references.
Decl actor_technique(Actor, Technique) descr [mode("-", "-")].
Decl actor_tool(Actor, Tool) descr [mode("-", "-")].
Decl tool_technique(Tool, Technique) descr [mode("-", "-")].
Decl shared_technique(A, B, Technique) descr [mode("-", "-", "-")].
Decl shared_tool(A, B, Tool) descr [mode("-", "-", "-")].

actor_technique(A, T) :- uses(A, T), actor(A, _), technique(T, _).
actor_tool(A, S) :- uses(A, S), actor(A, _), adversary_tool(S, _).
tool_technique(S, T) :- uses(S, T), adversary_tool(S, _), technique(T, _).

# Actor pairs on the same technique or tool. The reflexive pair is
# derived too; Overlaps skips those rows when it aggregates.
shared_technique(A, B, T) :- actor_technique(A, T), actor_technique(B, T).
shared_tool(A, B, S) :- actor_tool(A, S), actor_tool(B, S).
`

// Config holds knowledge-base limits.
type Config struct {
	FactLimit    int           `json:"fact_limit"`
	QueryTimeout time.Duration `json:"query_timeout"`
}

// DefaultConfig returns limits sized for the full enterprise dataset.
func DefaultConfig() Config {
	return Config{
		FactLimit:    250000,
		QueryTimeout: 10 * time.Second,
	}
}

// Fact is a single base fact.
type Fact struct {
	Predicate string        `json:"predicate"`
	Args      []interface{} `json:"args"`
}

// String returns the Datalog rendering of the fact.
func (f Fact) String() string {
	args := make([]string, len(f.Args))
	for i, arg := range f.Args {
		switch v := arg.(type) {
		case string:
			if strings.HasPrefix(v, "/") {
				args[i] = v
			} else {
				args[i] = fmt.Sprintf("%q", v)
			}
		default:
			args[i] = fmt.Sprintf("%v", v)
		}
	}
	return fmt.Sprintf("%s(%s).", f.Predicate, strings.Join(args, ", "))
}

// QueryResult holds the variable bindings produced by a query.
type QueryResult struct {
	Bindings []map[string]interface{} `json:"bindings"`
	Duration time.Duration            `json:"duration"`
}

// Overlap summarizes what one actor shares with another.
type Overlap struct {
	ActorID          string `json:"actor_id"`
	ActorName        string `json:"actor_name"`
	SharedTechniques int    `json:"shared_techniques"`
	SharedTools      int    `json:"shared_tools"`
}

// Total returns the combined shared count.
func (o Overlap) Total() int {
	return o.SharedTechniques + o.SharedTools
}

// Stats describes fact store contents.
type Stats struct {
	TotalFacts      int            `json:"total_facts"`
	PredicateCounts map[string]int `json:"predicate_counts"`
	LastLoad        time.Time      `json:"last_load"`
}

// Engine wraps the Mangle engine with the threat-intelligence schema
// compiled in. Safe for concurrent use.
type Engine struct {
	config Config

	mu             sync.RWMutex
	store          factstore.ConcurrentFactStore
	programInfo    *analysis.ProgramInfo
	queryContext   *mengine.QueryContext
	predicateIndex map[string]ast.PredicateSym
	factCount      int
	actorNames     map[string]string
	lastLoad       time.Time
}

// NewEngine compiles the embedded schema and returns an empty engine.
func NewEngine(cfg Config) (*Engine, error) {
	unit, err := parse.Unit(strings.NewReader(schema))
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}

	programInfo, err := analysis.AnalyzeOneUnit(unit, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze schema: %w", err)
	}

	e := &Engine{
		config:      cfg,
		store:       factstore.NewConcurrentFactStore(factstore.NewSimpleInMemoryStore()),
		programInfo: programInfo,
	}

	e.predicateIndex = make(map[string]ast.PredicateSym, len(programInfo.Decls))
	for sym := range programInfo.Decls {
		e.predicateIndex[sym.Symbol] = sym
	}
	e.rebuildQueryContextLocked()

	return e, nil
}

// rebuildQueryContextLocked refreshes the query context so it reads from
// the current store.
func (e *Engine) rebuildQueryContextLocked() {
	predToDecl := make(map[ast.PredicateSym]*ast.Decl, len(e.programInfo.Decls))
	for sym, decl := range e.programInfo.Decls {
		predToDecl[sym] = decl
	}

	predToRules := make(map[ast.PredicateSym][]ast.Clause)
	for _, clause := range e.programInfo.Rules {
		predToRules[clause.Head.Predicate] = append(predToRules[clause.Head.Predicate], clause)
	}

	e.queryContext = &mengine.QueryContext{
		PredToRules: predToRules,
		PredToDecl:  predToDecl,
		Store:       e.store,
	}
}

func (e *Engine) resetLocked() {
	e.store = factstore.NewConcurrentFactStore(factstore.NewSimpleInMemoryStore())
	e.factCount = 0
	e.actorNames = nil
	e.rebuildQueryContextLocked()
}

// Load replaces the store contents with facts from the catalog and runs
// one evaluation pass to derive the cross references. A failed load
// leaves the engine empty.
func (e *Engine) Load(cat *attack.Catalog) error {
	timer := logging.StartTimer(logging.CategoryKB, "kb load")
	defer timer.Stop()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.resetLocked()

	names := make(map[string]string)
	for _, a := range cat.Actors() {
		if err := e.insertLocked(Fact{Predicate: "actor", Args: []interface{}{a.ID, a.Name}}); err != nil {
			e.resetLocked()
			return fmt.Errorf("assert actor: %w", err)
		}
		names[a.ID] = a.Name
	}
	for _, tool := range cat.Tools() {
		if err := e.insertLocked(Fact{Predicate: "adversary_tool", Args: []interface{}{tool.ID, tool.Name}}); err != nil {
			e.resetLocked()
			return fmt.Errorf("assert tool: %w", err)
		}
	}
	for _, tech := range cat.Techniques() {
		if err := e.insertLocked(Fact{Predicate: "technique", Args: []interface{}{tech.ID, tech.Name}}); err != nil {
			e.resetLocked()
			return fmt.Errorf("assert technique: %w", err)
		}
	}
	for _, rel := range cat.Relations() {
		if !usesEdge(rel[0], rel[1]) {
			continue
		}
		if err := e.insertLocked(Fact{Predicate: "uses", Args: []interface{}{rel[0], rel[1]}}); err != nil {
			e.resetLocked()
			return fmt.Errorf("assert uses: %w", err)
		}
	}

	base := e.factCount
	if e.config.FactLimit > 0 && base*100 >= e.config.FactLimit*85 {
		logging.Get(logging.CategoryKB).Warn("fact store at %d of %d capacity", base, e.config.FactLimit)
	}

	if _, err := mengine.EvalProgramWithStats(e.programInfo, e.store); err != nil {
		e.resetLocked()
		return fmt.Errorf("evaluate rules: %w", err)
	}

	e.actorNames = names
	e.lastLoad = time.Now()
	logging.KB("loaded %d base facts, %d total after evaluation", base, e.store.EstimateFactCount())
	return nil
}

// usesEdge reports whether a relationship pair can join against the
// declared base predicates.
func usesEdge(source, target string) bool {
	if !strings.HasPrefix(source, stix.TypeIntrusionSet+"--") && !strings.HasPrefix(source, stix.TypeTool+"--") {
		return false
	}
	return strings.HasPrefix(target, stix.TypeAttackPattern+"--") || strings.HasPrefix(target, stix.TypeTool+"--")
}

func (e *Engine) insertLocked(fact Fact) error {
	if e.config.FactLimit > 0 && e.factCount >= e.config.FactLimit {
		return fmt.Errorf("fact limit exceeded: %d", e.config.FactLimit)
	}

	atom, err := e.factToAtomLocked(fact)
	if err != nil {
		return err
	}

	if e.store.Add(atom) {
		e.factCount++
	}
	return nil
}

func (e *Engine) factToAtomLocked(fact Fact) (ast.Atom, error) {
	sym, ok := e.predicateIndex[fact.Predicate]
	if !ok {
		return ast.Atom{}, fmt.Errorf("predicate %s is not declared", fact.Predicate)
	}
	if len(fact.Args) != sym.Arity {
		return ast.Atom{}, fmt.Errorf("predicate %s expects %d args, got %d", fact.Predicate, sym.Arity, len(fact.Args))
	}

	args := make([]ast.BaseTerm, len(fact.Args))
	for i, raw := range fact.Args {
		term, err := convertTerm(raw)
		if err != nil {
			return ast.Atom{}, fmt.Errorf("predicate %s arg %d: %w", fact.Predicate, i, err)
		}
		args[i] = term
	}

	return ast.Atom{Predicate: sym, Args: args}, nil
}

// convertTerm maps a Go value onto a Mangle constant. Strings become
// string constants unless they carry an explicit /name prefix.
func convertTerm(value interface{}) (ast.BaseTerm, error) {
	switch v := value.(type) {
	case string:
		if strings.HasPrefix(v, "/") {
			return ast.Name(v)
		}
		return ast.String(v), nil
	case int:
		return ast.Number(int64(v)), nil
	case int64:
		return ast.Number(v), nil
	case bool:
		if v {
			return ast.TrueConstant, nil
		}
		return ast.FalseConstant, nil
	default:
		return nil, fmt.Errorf("unsupported argument type %T", v)
	}
}

// Overlaps returns the actors sharing techniques or tools with the given
// actor, sorted by total shared count descending, then by name. An actor
// absent from the facts yields an empty result.
func (e *Engine) Overlaps(ctx context.Context, actorID string) ([]Overlap, error) {
	timer := logging.StartTimer(logging.CategoryKB, "overlap query")
	defer timer.Stop()

	techniques, err := e.Query(ctx, "shared_technique(A, B, T)")
	if err != nil {
		return nil, err
	}
	tools, err := e.Query(ctx, "shared_tool(A, B, S)")
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	names := e.actorNames
	e.mu.RUnlock()

	byPartner := make(map[string]*Overlap)
	partner := func(id string) *Overlap {
		o, ok := byPartner[id]
		if !ok {
			name := names[id]
			if name == "" {
				name = id
			}
			o = &Overlap{ActorID: id, ActorName: name}
			byPartner[id] = o
		}
		return o
	}

	for _, row := range techniques.Bindings {
		a, _ := row["A"].(string)
		b, _ := row["B"].(string)
		if a != actorID || b == actorID {
			continue
		}
		partner(b).SharedTechniques++
	}
	for _, row := range tools.Bindings {
		a, _ := row["A"].(string)
		b, _ := row["B"].(string)
		if a != actorID || b == actorID {
			continue
		}
		partner(b).SharedTools++
	}

	out := make([]Overlap, 0, len(byPartner))
	for _, o := range byPartner {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total() != out[j].Total() {
			return out[i].Total() > out[j].Total()
		}
		return out[i].ActorName < out[j].ActorName
	})
	return out, nil
}

// Query evaluates a query expressed in Mangle notation. A "?" prefix and
// trailing "." are tolerated. When the context carries no deadline the
// configured query timeout applies.
func (e *Engine) Query(ctx context.Context, query string) (*QueryResult, error) {
	shape, err := parseQueryShape(query)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	queryContext := e.queryContext
	decl, ok := queryContext.PredToDecl[shape.atom.Predicate]
	if !ok {
		e.mu.RUnlock()
		return nil, fmt.Errorf("predicate %s is not declared", shape.atom.Predicate.Symbol)
	}
	if len(decl.Modes()) == 0 {
		e.mu.RUnlock()
		return nil, fmt.Errorf("predicate %s has no modes declared", shape.atom.Predicate.Symbol)
	}
	mode := decl.Modes()[0]
	e.mu.RUnlock()

	timeout := e.config.QueryTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	resultChan := make(chan []map[string]interface{}, 1)
	errChan := make(chan error, 1)

	go func() {
		var results []map[string]interface{}
		err := queryContext.EvalQuery(shape.atom, mode, unionfind.New(), func(fact ast.Atom) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			row := make(map[string]interface{}, len(shape.variables))
			for _, binding := range shape.variables {
				if binding.Index >= len(fact.Args) {
					continue
				}
				row[binding.Name] = termValue(fact.Args[binding.Index])
			}
			results = append(results, row)
			return nil
		})
		if err != nil {
			errChan <- err
			return
		}
		resultChan <- results
	}()

	select {
	case results := <-resultChan:
		return &QueryResult{Bindings: results, Duration: time.Since(start)}, nil
	case err := <-errChan:
		return nil, err
	case <-ctx.Done():
		return nil, fmt.Errorf("query timed out after %v: %w", time.Since(start), ctx.Err())
	}
}

// GetFacts returns all stored facts for a predicate, derived ones
// included.
func (e *Engine) GetFacts(predicate string) ([]Fact, error) {
	e.mu.RLock()
	sym, ok := e.predicateIndex[predicate]
	store := e.store
	e.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("predicate %s is not declared", predicate)
	}

	var results []Fact
	err := store.GetFacts(ast.NewQuery(sym), func(atom ast.Atom) error {
		args := make([]interface{}, len(atom.Args))
		for i, arg := range atom.Args {
			args[i] = termValue(arg)
		}
		results = append(results, Fact{Predicate: predicate, Args: args})
		return nil
	})
	return results, err
}

// GetStats counts stored facts per predicate.
func (e *Engine) GetStats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	counts := make(map[string]int)
	for _, sym := range e.store.ListPredicates() {
		n := 0
		_ = e.store.GetFacts(ast.NewQuery(sym), func(ast.Atom) error {
			n++
			return nil
		})
		counts[sym.Symbol] = n
	}

	return Stats{
		TotalFacts:      e.store.EstimateFactCount(),
		PredicateCounts: counts,
		LastLoad:        e.lastLoad,
	}
}

type queryVariable struct {
	Name  string
	Index int
}

type queryShape struct {
	atom      ast.Atom
	variables []queryVariable
}

func parseQueryShape(query string) (*queryShape, error) {
	clean := strings.TrimSpace(query)
	if clean == "" {
		return nil, fmt.Errorf("empty query")
	}

	clean = strings.TrimSpace(strings.TrimPrefix(clean, "?"))
	clean = strings.TrimSpace(strings.TrimSuffix(clean, "."))

	atom, err := parse.Atom(clean)
	if err != nil {
		atom, err = parse.Atom(clean + ".")
		if err != nil {
			return nil, fmt.Errorf("failed to parse query %q: %w", query, err)
		}
	}

	variables := make([]queryVariable, 0, len(atom.Args))
	for idx, arg := range atom.Args {
		if variable, ok := arg.(ast.Variable); ok {
			variables = append(variables, queryVariable{Name: variable.Symbol, Index: idx})
		}
	}

	return &queryShape{atom: atom, variables: variables}, nil
}

func termValue(term ast.BaseTerm) interface{} {
	switch v := term.(type) {
	case ast.Constant:
		switch v.Type {
		case ast.StringType, ast.NameType, ast.BytesType:
			return v.Symbol
		case ast.NumberType:
			return v.NumValue
		default:
			return v.String()
		}
	case ast.Variable:
		return v.Symbol
	default:
		return fmt.Sprintf("%v", term)
	}
}
