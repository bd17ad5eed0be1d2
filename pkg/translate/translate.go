// Package translate implements the bidirectional translator between the flat
// package/section/option text format (pkg/uci) and the hierarchical typed
// key/value store (pkg/store).
package translate

import (
	"fmt"

	"github.com/pchambers/ucifs/pkg/store"
	"github.com/pchambers/ucifs/pkg/uci"
	"github.com/pchambers/ucifs/pkg/utils"
)

var logger = utils.GetLogger("translate")

// ConfigRoot is the store key every package lives under.
const ConfigRoot = "system:/config"

// Metadata kinds used by Render to recover tree shape unambiguously. The
// type/array tags alone don't say whether a key is a section, a scalar
// option, a list, or a list element, so every entry also carries "kind".
const (
	kindConfig  = "config"
	kindPackage = "package"
	kindSection = "section"
	kindOption  = "option"
	kindList    = "list"
	kindElement = "element"
)

// Translator commits parsed packages into a Store and renders them back.
type Translator struct {
	store store.Store
}

// New returns a Translator writing into and reading from s.
func New(s store.Store) *Translator {
	return &Translator{store: s}
}

type anonCounter struct {
	count   int
	counter int
}

// Commit walks pkg and writes it into the store under
// ConfigRoot/<pkg.Name>, replacing any prior contents for that package in
// the same transaction: pre-load, accumulate, commit once.
func (t *Translator) Commit(pkg *uci.Package) error {
	pkgKey := ConfigRoot + "/" + pkg.Name

	txn, err := t.store.Open(ConfigRoot)
	if err != nil {
		return err
	}

	txn.Delete(pkgKey, true)
	txn.Set(ConfigRoot, "", map[string]string{"type": "config", "kind": kindConfig})
	txn.Set(pkgKey, "", map[string]string{"kind": kindPackage})

	// First pass: tally anonymous section types so the second pass knows
	// which of them need an index suffix.
	tally := make(map[string]*anonCounter)
	for _, s := range pkg.Sections {
		if s.Anonymous {
			c, ok := tally[s.Type]
			if !ok {
				c = &anonCounter{}
				tally[s.Type] = c
			}
			c.count++
		}
	}

	// Second pass: assign each section its key segment and store it.
	for _, section := range pkg.Sections {
		segment := sectionSegment(section, tally)
		sectionKey := pkgKey + "/" + segment
		meta := map[string]string{
			"type":      section.Type,
			"anonymous": boolString(section.Anonymous),
			"kind":      kindSection,
		}
		txn.Set(sectionKey, "", meta)

		for _, opt := range section.Options {
			writeOption(txn, sectionKey, opt)
		}
	}

	if err := txn.Commit(); err != nil {
		// A commit failure is logged here and returned so the caller can
		// feed a metric and keep the entry dirty; it must never become a
		// syscall failure on release.
		logger.Errorf("commit %s: %s", pkg.Name, err)
		return err
	}
	return nil
}

func sectionSegment(s *uci.Section, tally map[string]*anonCounter) string {
	if !s.Anonymous {
		return s.Name
	}
	c := tally[s.Type]
	if c.count <= 1 {
		return s.Type
	}
	idx := c.counter
	c.counter++
	return s.Type + "/" + indexSuffix(idx)
}

func writeOption(txn store.Txn, sectionKey string, opt *uci.Option) {
	optKey := sectionKey + "/" + opt.Name

	if !opt.IsList {
		typ := inferType(opt.Value)
		txn.Set(optKey, opt.Value, map[string]string{"type": typ, "kind": kindOption})
		return
	}

	last := 0
	if len(opt.List) > 0 {
		last = len(opt.List) - 1
	}
	txn.Set(optKey, "", map[string]string{
		"type":  "list",
		"array": indexSuffix(last),
		"kind":  kindList,
	})
	for i, v := range opt.List {
		elemKey := optKey + "/" + indexSuffix(i)
		typ := inferType(v)
		txn.Set(elemKey, v, map[string]string{"type": typ, "kind": kindElement})
	}
}

// indexSuffix formats i as the three-digit zero-padded "#NNN" index used for
// both anonymous-section disambiguation and list elements.
func indexSuffix(i int) string {
	return fmt.Sprintf("#%03d", i)
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

