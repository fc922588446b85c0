// Package corpus implements the corpus indexer (spec §4.A): it walks a
// <root>/<domain>/<lang>/<file> directory tree, assigns dense integer
// ids to languages and domains in first-seen order, and prunes languages
// that don't appear in enough domains.
package corpus

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"

	pkgerrors "github.com/standardbeagle/langid-train/internal/errors"
	"github.com/standardbeagle/langid-train/internal/types"
)

// enumerator hands out dense, monotonically increasing ids in
// first-seen order. Replaces the Python source's global Enumerator
// closure with an explicit object each Indexer owns, per spec §9's
// "global mutable state" design note.
type enumerator struct {
	ids  map[string]int32
	next int32
}

func newEnumerator() *enumerator {
	return &enumerator{ids: make(map[string]int32)}
}

// lookup returns the id for key, assigning a new one if unseen. ok is
// false if allowed is non-nil and key is not in it.
func (e *enumerator) lookup(key string, allowed map[string]bool) (id int32, ok bool) {
	if allowed != nil && !allowed[key] {
		return 0, false
	}
	if id, exists := e.ids[key]; exists {
		return id, true
	}
	id = e.next
	e.ids[key] = id
	e.next++
	return id, true
}

// Options configures a corpus walk.
type Options struct {
	Root       string
	MinDomain  int
	Proportion float64 // sampling probability p in (0, 1]
	Langs      []string
	Domains    []string
	Rand       *rand.Rand // optional; defaults to a process-seeded source
}

// Indexer holds the result of indexing a corpus: the dense id
// assignments and the surviving document list.
type Indexer struct {
	Root string

	LangNames   []string // index = LangID
	DomainNames []string // index = DomainID

	Items []types.Document
}

// Index walks opts.Root, assigns ids, and applies min-domain pruning.
// Returns *errors.EmptyCorpusError if no documents survive.
func Index(opts Options) (*Indexer, error) {
	if opts.Proportion <= 0 || opts.Proportion > 1 {
		return nil, pkgerrors.NewConfigError("proportion", fmt.Sprint(opts.Proportion), fmt.Errorf("must be in (0,1]"))
	}
	if opts.MinDomain < 1 {
		return nil, pkgerrors.NewConfigError("min_domain", fmt.Sprint(opts.MinDomain), fmt.Errorf("must be >= 1"))
	}

	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}

	var allowLangs, allowDomains map[string]bool
	if opts.Langs != nil {
		allowLangs = toSet(opts.Langs)
	}
	if opts.Domains != nil {
		allowDomains = toSet(opts.Domains)
	}

	langEnum := newEnumerator()
	domainEnum := newEnumerator()
	coverage := make(map[string]map[string]bool) // domain -> set(lang)

	var items []types.Document

	err := filepath.Walk(opts.Root, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			// Unreadable directory entries are skipped with a warning,
			// not a fatal failure.
			fmt.Fprintf(os.Stderr, "warning: skipping %s: %v\n", path, walkErr)
			return nil
		}
		if info.IsDir() {
			return nil
		}
		if rng.Float64() >= opts.Proportion {
			return nil
		}

		dir := filepath.Dir(path)
		lang := filepath.Base(dir)
		domain := filepath.Base(filepath.Dir(dir))

		domainID, ok := domainEnum.lookup(domain, allowDomains)
		if !ok {
			return nil
		}
		langID, ok := langEnum.lookup(lang, allowLangs)
		if !ok {
			return nil
		}

		if coverage[domain] == nil {
			coverage[domain] = make(map[string]bool)
		}
		coverage[domain][lang] = true

		items = append(items, types.Document{
			Domain: types.DomainID(domainID),
			Lang:   types.LangID(langID),
			Name:   info.Name(),
			Path:   path,
		})
		return nil
	})
	if err != nil {
		return nil, pkgerrors.NewIOError("walk", opts.Root, err)
	}

	langNames := namesByID(langEnum)
	domainNames := namesByID(domainEnum)

	items, langNames = pruneMinDomain(items, langNames, coverage, opts.MinDomain)

	if len(items) == 0 {
		return nil, pkgerrors.NewEmptyCorpusError(opts.Root, opts.MinDomain)
	}

	return &Indexer{
		Root:        opts.Root,
		LangNames:   langNames,
		DomainNames: domainNames,
		Items:       items,
	}, nil
}

// pruneMinDomain drops every language that appears in fewer than
// minDomain distinct domains, renumbers the survivors densely in
// first-seen order, and remaps items accordingly.
func pruneMinDomain(items []types.Document, langNames []string, coverage map[string]map[string]bool, minDomain int) ([]types.Document, []string) {
	nameToID := make(map[string]int, len(langNames))
	for i, name := range langNames {
		nameToID[name] = i
	}

	domainCount := make([]int, len(langNames))
	for _, langs := range coverage {
		for lang := range langs {
			domainCount[nameToID[lang]]++
		}
	}

	remap := make(map[types.LangID]types.LangID)
	var survivors []string
	for i, name := range langNames {
		if domainCount[i] >= minDomain {
			remap[types.LangID(i)] = types.LangID(len(survivors))
			survivors = append(survivors, name)
		}
	}

	filtered := make([]types.Document, 0, len(items))
	for _, doc := range items {
		if newID, ok := remap[doc.Lang]; ok {
			doc.Lang = newID
			filtered = append(filtered, doc)
		}
	}

	return filtered, survivors
}

func namesByID(e *enumerator) []string {
	names := make([]string, len(e.ids))
	for name, id := range e.ids {
		names[id] = name
	}
	return names
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}

// DistLang returns a vector of document counts per language.
func (ix *Indexer) DistLang() []int {
	dist := make([]int, len(ix.LangNames))
	for _, doc := range ix.Items {
		dist[doc.Lang]++
	}
	return dist
}

// DistDomain returns a vector of document counts per domain.
func (ix *Indexer) DistDomain() []int {
	dist := make([]int, len(ix.DomainNames))
	for _, doc := range ix.Items {
		dist[doc.Domain]++
	}
	return dist
}

// Summary formats a one-line-per-class console summary, e.g.
// "en(120) fr(98)", matching the original train.py's lang_info/domain_info
// construction (see SPEC_FULL.md §12).
func Summary(names []string, dist []int) string {
	type pair struct {
		name  string
		count int
	}
	pairs := make([]pair, len(names))
	for i, name := range names {
		pairs[i] = pair{name, dist[i]}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].name < pairs[j].name })

	out := ""
	for i, p := range pairs {
		if i > 0 {
			out += " "
		}
		out += fmt.Sprintf("%s(%d)", p.name, p.count)
	}
	return out
}
