// Package impact scores how disruptive changing a file is likely to be and
// maps the project-wide file relationship graph.
//
// Everything here is recomputed wholesale per call: the graph is derived
// from regex-extracted dependencies and is cheap enough to rebuild, so no
// incremental maintenance exists. Derived facts (per-file links, analysis
// counts) are written back through the metadata collaborator best-effort.
package impact

import (
	"context"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tapestry/internal/discovery"
	"tapestry/internal/langdep"
	"tapestry/internal/store"
	"tapestry/internal/themes"
)

// Level is the coarse impact classification.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// Score thresholds and signal weights. The score is a fixed heuristic, not
// a calibrated model.
const (
	mediumThreshold = 3
	highThreshold   = 6

	configBonus = 2
	testPenalty = 1

	criticalDependentFloor = 5
)

// FileImpact is the per-file assessment.
type FileImpact struct {
	Path                string   `json:"path"`
	RecentModifications int      `json:"recent_modifications"`
	Dependencies        []string `json:"dependencies"`
	Dependents          []string `json:"dependents"`
	AffectedThemes      []string `json:"affected_themes"`
	Score               int      `json:"score"`
	Level               Level    `json:"impact_level"`
}

// CriticalFile is a heavily depended-upon file with its criticality score.
type CriticalFile struct {
	Path                 string  `json:"path"`
	DirectDependents     int     `json:"direct_dependents"`
	TransitiveDependents int     `json:"transitive_dependents"`
	Score                float64 `json:"score"`
}

// Cluster is one connected component of the undirected dependency graph.
type Cluster struct {
	Files           []string `json:"files"`
	Size            int      `json:"size"`
	InternalEdges   int      `json:"internal_edges"`
	Cohesion        float64  `json:"cohesion"`
	CommonPrefix    string   `json:"common_prefix,omitempty"`
	CommonExtension string   `json:"common_extension,omitempty"`
}

// Statistics summarizes one relationship mapping run.
type Statistics struct {
	TotalFiles          int     `json:"total_files"`
	TotalDependencies   int     `json:"total_dependencies"`
	AverageDependencies float64 `json:"average_dependencies"`
	CyclesFound         int     `json:"cycles_found"`
	OrphanCount         int     `json:"orphan_count"`
	ClusterCount        int     `json:"cluster_count"`
}

// RelationshipMap is the full project graph result.
type RelationshipMap struct {
	DependencyGraph      map[string][]string `json:"dependency_graph"`
	ReverseDependencies  map[string][]string `json:"reverse_dependencies"`
	CircularDependencies [][]string          `json:"circular_dependencies"`
	OrphanedFiles        []string            `json:"orphaned_files"`
	CriticalFiles        []CriticalFile      `json:"critical_files"`
	FileClusters         []Cluster           `json:"file_clusters"`
	Statistics           Statistics          `json:"statistics"`
}

// MetadataQueries is the slice of the store the analyzer reads and writes.
// A nil collaborator contributes zeros and skips write-back.
type MetadataQueries interface {
	ModificationCount(path string) (int, error)
	FileRelationships(path string) (dependencies, dependents []string, err error)
	UpsertFileMeta(m store.FileMeta) error
	ReplaceFileLinks(source string, targets []string) error
}

// ThemeQueries enumerates and loads themes for affected-theme resolution.
type ThemeQueries interface {
	Names(projectRoot string) ([]string, error)
	Load(projectRoot, name string) (*themes.Theme, error)
}

// Analyzer computes impact assessments and relationship maps for one
// project root.
type Analyzer struct {
	root    string
	meta    MetadataQueries
	themes  ThemeQueries
	workers int
	logger  *zap.Logger
}

// NewAnalyzer wires an analyzer. meta and themeStore may be nil; the
// analyzer then runs on extraction alone.
func NewAnalyzer(root string, meta MetadataQueries, themeStore ThemeQueries, workers int, logger *zap.Logger) *Analyzer {
	if workers <= 0 {
		workers = 8
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{root: root, meta: meta, themes: themeStore, workers: workers, logger: logger}
}

// ─── File Impact ──────────────────────────────────────────────────────────────

// FileImpact assesses one file by relative path. Collaborator failures are
// logged and contribute zero; the assessment itself never fails.
func (a *Analyzer) FileImpact(rel string) *FileImpact {
	rec := langdep.Analyze(filepath.Join(a.root, filepath.FromSlash(rel)))

	result := &FileImpact{
		Path:           rel,
		Dependencies:   rec.Dependencies,
		Dependents:     []string{},
		AffectedThemes: []string{},
	}

	if a.meta != nil {
		if count, err := a.meta.ModificationCount(rel); err != nil {
			a.logger.Debug("modification count unavailable", zap.String("path", rel), zap.Error(err))
		} else {
			result.RecentModifications = count
		}
		if _, dependents, err := a.meta.FileRelationships(rel); err != nil {
			a.logger.Debug("stored relationships unavailable", zap.String("path", rel), zap.Error(err))
		} else if dependents != nil {
			result.Dependents = dependents
		}
	}

	result.AffectedThemes = a.affectedThemes(rel)

	result.Score = impactScore(rel, result.RecentModifications, len(result.Dependents))
	result.Level = levelFor(result.Score)
	return result
}

// affectedThemes finds every theme that claims the file directly or through
// one of its paths.
func (a *Analyzer) affectedThemes(rel string) []string {
	if a.themes == nil {
		return []string{}
	}
	names, err := a.themes.Names(a.root)
	if err != nil {
		a.logger.Warn("theme enumeration failed", zap.Error(err))
		return []string{}
	}

	var affected []string
	for _, name := range names {
		theme, err := a.themes.Load(a.root, name)
		if err != nil {
			a.logger.Warn("skipping unreadable theme", zap.String("theme", name), zap.Error(err))
			continue
		}
		if themeClaims(theme, rel) {
			affected = append(affected, name)
		}
	}
	if affected == nil {
		return []string{}
	}
	sort.Strings(affected)
	return affected
}

func themeClaims(theme *themes.Theme, rel string) bool {
	for _, f := range theme.Files {
		if f == rel {
			return true
		}
	}
	for _, p := range theme.Paths {
		if rel == p || strings.HasPrefix(rel, strings.TrimSuffix(p, "/")+"/") {
			return true
		}
	}
	return false
}

// impactScore combines three independent signals: modification frequency,
// dependent count and filename shape.
func impactScore(rel string, modifications, dependents int) int {
	score := frequencyBucket(modifications) + frequencyBucket(dependents)

	switch discovery.Categorize(rel) {
	case discovery.CategoryConfig:
		score += configBonus
	case discovery.CategoryTests:
		score -= testPenalty
	}

	if score < 0 {
		score = 0
	}
	return score
}

func frequencyBucket(n int) int {
	switch {
	case n > 10:
		return 3
	case n > 5:
		return 2
	case n > 0:
		return 1
	default:
		return 0
	}
}

func levelFor(score int) Level {
	switch {
	case score >= highThreshold:
		return LevelHigh
	case score >= mediumThreshold:
		return LevelMedium
	default:
		return LevelLow
	}
}

// ─── Relationship Mapping ─────────────────────────────────────────────────────

// MapRelationships discovers the project's code files, extracts their
// dependencies in parallel and derives the full relationship map.
func (a *Analyzer) MapRelationships(ctx context.Context) (*RelationshipMap, error) {
	listing, err := discovery.Discover(a.root, nil, nil)
	if err != nil {
		return nil, err
	}

	files := append([]string{}, listing.Categories[discovery.CategorySource]...)
	files = append(files, listing.Categories[discovery.CategoryTests]...)
	sort.Strings(files)

	records := a.extractAll(ctx, files)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	index := buildResolutionIndex(files)
	graph := make(map[string][]string, len(files))
	reverse := make(map[string][]string, len(files))
	for _, f := range files {
		graph[f] = []string{}
		reverse[f] = []string{}
	}

	edgeCount := 0
	for i, f := range files {
		targets := map[string]struct{}{}
		for _, dep := range records[i].Dependencies {
			for _, resolved := range index.resolve(dep) {
				if resolved != f {
					targets[resolved] = struct{}{}
				}
			}
		}
		for t := range targets {
			graph[f] = append(graph[f], t)
			reverse[t] = append(reverse[t], f)
		}
		sort.Strings(graph[f])
		edgeCount += len(graph[f])
	}
	for _, deps := range reverse {
		sort.Strings(deps)
	}

	result := &RelationshipMap{
		DependencyGraph:      graph,
		ReverseDependencies:  reverse,
		CircularDependencies: detectCycles(graph, files),
		OrphanedFiles:        findOrphans(graph, reverse, files),
		CriticalFiles:        findCriticalFiles(reverse, files),
		FileClusters:         findClusters(graph, reverse, files),
	}
	result.Statistics = Statistics{
		TotalFiles:        len(files),
		TotalDependencies: edgeCount,
		CyclesFound:       len(result.CircularDependencies),
		OrphanCount:       len(result.OrphanedFiles),
		ClusterCount:      len(result.FileClusters),
	}
	if len(files) > 0 {
		result.Statistics.AverageDependencies = float64(edgeCount) / float64(len(files))
	}

	a.writeBack(files, records, graph)
	return result, nil
}

// extractAll analyzes files through a bounded worker pool. Results land in
// a per-file slot so no locking is needed.
func (a *Analyzer) extractAll(ctx context.Context, files []string) []langdep.Record {
	records := make([]langdep.Record, len(files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i, f := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			records[i] = langdep.Analyze(filepath.Join(a.root, filepath.FromSlash(f)))
			return nil
		})
	}
	// Extraction absorbs all per-file failures; the only error that can
	// surface here is context cancellation, checked by the caller.
	_ = g.Wait()
	return records
}

// writeBack persists per-file links and analysis facts. Failures are logged
// and ignored: the map is already computed and remains valid.
func (a *Analyzer) writeBack(files []string, records []langdep.Record, graph map[string][]string) {
	if a.meta == nil {
		return
	}
	for i, f := range files {
		if err := a.meta.ReplaceFileLinks(f, graph[f]); err != nil {
			a.logger.Debug("link write-back failed", zap.String("path", f), zap.Error(err))
			continue
		}
		err := a.meta.UpsertFileMeta(store.FileMeta{
			Path:        f,
			Language:    string(records[i].Language),
			Category:    discovery.Categorize(f),
			ImportCount: len(records[i].Imports),
			ExportCount: len(records[i].Exports),
		})
		if err != nil {
			a.logger.Debug("meta write-back failed", zap.String("path", f), zap.Error(err))
		}
	}
}

// ─── Dependency Resolution ────────────────────────────────────────────────────

// resolutionIndex matches normalized dependency tokens against project
// files: exact paths first, then path-suffix matches, then bare basenames.
type resolutionIndex struct {
	exact  map[string]string   // rel path → rel path
	stems  map[string][]string // basename without extension → rel paths
	byStem map[string]string   // full path without extension → rel path
}

func buildResolutionIndex(files []string) *resolutionIndex {
	idx := &resolutionIndex{
		exact:  make(map[string]string, len(files)),
		stems:  make(map[string][]string),
		byStem: make(map[string]string, len(files)),
	}
	for _, f := range files {
		idx.exact[f] = f
		stem := trimExt(f)
		idx.byStem[stem] = f
		base := path.Base(stem)
		idx.stems[base] = append(idx.stems[base], f)
	}
	return idx
}

func (idx *resolutionIndex) resolve(token string) []string {
	if token == "" {
		return nil
	}
	if f, ok := idx.exact[token]; ok {
		return []string{f}
	}
	if f, ok := idx.byStem[token]; ok {
		return []string{f}
	}

	base := path.Base(trimExt(token))
	candidates := idx.stems[base]
	if len(candidates) == 0 {
		return nil
	}

	// Prefer candidates whose full stem ends with the token's path shape;
	// fall back to every basename match only for unqualified tokens.
	if strings.Contains(token, "/") {
		var matched []string
		want := "/" + strings.TrimSuffix(token, path.Ext(token))
		for _, c := range candidates {
			if strings.HasSuffix(trimExt(c), want) {
				matched = append(matched, c)
			}
		}
		return matched
	}
	return candidates
}

func trimExt(p string) string {
	return strings.TrimSuffix(p, path.Ext(p))
}

// ─── Cycle Detection ──────────────────────────────────────────────────────────

// detectCycles runs a DFS per unvisited node with an active recursion
// stack. Rediscovering a node on the active path records the path slice
// from that node as a cycle; rotations of the same cycle collapse to one
// entry starting at the lexicographically smallest member.
func detectCycles(graph map[string][]string, files []string) [][]string {
	visited := make(map[string]bool, len(files))
	onStack := make(map[string]bool, len(files))
	var stack []string
	seen := make(map[string]bool)
	var cycles [][]string

	var visit func(node string)
	visit = func(node string) {
		visited[node] = true
		onStack[node] = true
		stack = append(stack, node)

		for _, next := range graph[node] {
			if !visited[next] {
				visit(next)
			} else if onStack[next] {
				start := 0
				for i, n := range stack {
					if n == next {
						start = i
						break
					}
				}
				cycle := normalizeCycle(stack[start:])
				key := strings.Join(cycle, "\x00")
				if !seen[key] {
					seen[key] = true
					cycles = append(cycles, cycle)
				}
			}
		}

		stack = stack[:len(stack)-1]
		onStack[node] = false
	}

	for _, f := range files {
		if !visited[f] {
			visit(f)
		}
	}
	return cycles
}

// normalizeCycle rotates a cycle to start at its smallest member so that
// A→B→C and B→C→A compare equal.
func normalizeCycle(cycle []string) []string {
	if len(cycle) == 0 {
		return nil
	}
	smallest := 0
	for i, n := range cycle {
		if n < cycle[smallest] {
			smallest = i
		}
	}
	out := make([]string, 0, len(cycle))
	out = append(out, cycle[smallest:]...)
	out = append(out, cycle[:smallest]...)
	return out
}

// ─── Orphans ──────────────────────────────────────────────────────────────────

func findOrphans(graph, reverse map[string][]string, files []string) []string {
	orphans := []string{}
	for _, f := range files {
		if len(graph[f]) == 0 && len(reverse[f]) == 0 {
			orphans = append(orphans, f)
		}
	}
	return orphans
}

// ─── Critical Files ───────────────────────────────────────────────────────────

// coreNames mark files whose names suggest load-bearing roles.
var coreNames = map[string]bool{
	"main": true, "core": true, "base": true, "index": true,
	"app": true, "init": true, "common": true, "utils": true,
	"shared": true, "config": true,
}

// findCriticalFiles ranks files with at least criticalDependentFloor direct
// dependents. Score = 2×direct + 0.5×transitive + core-name bonuses.
func findCriticalFiles(reverse map[string][]string, files []string) []CriticalFile {
	critical := []CriticalFile{}
	for _, f := range files {
		direct := len(reverse[f])
		if direct < criticalDependentFloor {
			continue
		}

		total := transitiveDependents(reverse, f)
		transitive := total - direct
		if transitive < 0 {
			transitive = 0
		}

		score := 2*float64(direct) + 0.5*float64(transitive)
		if coreNames[path.Base(trimExt(f))] {
			score += 3
		}
		for _, seg := range strings.Split(path.Dir(f), "/") {
			if coreNames[seg] {
				score += 1
				break
			}
		}

		critical = append(critical, CriticalFile{
			Path:                 f,
			DirectDependents:     direct,
			TransitiveDependents: transitive,
			Score:                score,
		})
	}

	sort.Slice(critical, func(i, j int) bool {
		if critical[i].Score != critical[j].Score {
			return critical[i].Score > critical[j].Score
		}
		return critical[i].Path < critical[j].Path
	})
	return critical
}

// transitiveDependents counts every file reachable through the reverse
// graph, breadth-first.
func transitiveDependents(reverse map[string][]string, start string) int {
	visited := map[string]bool{start: true}
	queue := []string{start}
	count := 0
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		for _, dep := range reverse[node] {
			if !visited[dep] {
				visited[dep] = true
				count++
				queue = append(queue, dep)
			}
		}
	}
	return count
}

// ─── Clusters ─────────────────────────────────────────────────────────────────

// findClusters walks connected components of the undirected graph with a
// plain BFS. Single-node components are noise, not clusters.
func findClusters(graph, reverse map[string][]string, files []string) []Cluster {
	neighbors := func(f string) []string {
		return append(append([]string{}, graph[f]...), reverse[f]...)
	}

	visited := make(map[string]bool, len(files))
	clusters := []Cluster{}

	for _, f := range files {
		if visited[f] {
			continue
		}
		component := []string{}
		queue := []string{f}
		visited[f] = true
		for len(queue) > 0 {
			node := queue[0]
			queue = queue[1:]
			component = append(component, node)
			for _, n := range neighbors(node) {
				if !visited[n] {
					visited[n] = true
					queue = append(queue, n)
				}
			}
		}
		if len(component) < 2 {
			continue
		}
		sort.Strings(component)

		internal := 0
		for _, node := range component {
			internal += len(graph[node])
		}
		maxEdges := len(component) * (len(component) - 1) / 2
		cohesion := 0.0
		if maxEdges > 0 {
			cohesion = float64(internal) / float64(maxEdges)
			if cohesion > 1 {
				cohesion = 1
			}
		}

		clusters = append(clusters, Cluster{
			Files:           component,
			Size:            len(component),
			InternalEdges:   internal,
			Cohesion:        cohesion,
			CommonPrefix:    commonDirPrefix(component),
			CommonExtension: commonExtension(component),
		})
	}

	sort.Slice(clusters, func(i, j int) bool {
		if clusters[i].Size != clusters[j].Size {
			return clusters[i].Size > clusters[j].Size
		}
		return clusters[i].Files[0] < clusters[j].Files[0]
	})
	return clusters
}

// commonDirPrefix returns the longest shared directory prefix, segment-wise.
func commonDirPrefix(paths []string) string {
	if len(paths) == 0 {
		return ""
	}
	prefix := strings.Split(path.Dir(paths[0]), "/")
	for _, p := range paths[1:] {
		segs := strings.Split(path.Dir(p), "/")
		i := 0
		for i < len(prefix) && i < len(segs) && prefix[i] == segs[i] {
			i++
		}
		prefix = prefix[:i]
		if len(prefix) == 0 {
			return ""
		}
	}
	joined := strings.Join(prefix, "/")
	if joined == "." {
		return ""
	}
	return joined
}

// commonExtension returns the shared extension, or "" when mixed.
func commonExtension(paths []string) string {
	if len(paths) == 0 {
		return ""
	}
	ext := path.Ext(paths[0])
	for _, p := range paths[1:] {
		if path.Ext(p) != ext {
			return ""
		}
	}
	return ext
}
