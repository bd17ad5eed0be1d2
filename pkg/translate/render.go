package translate

import (
	"sort"
	"strings"

	"github.com/pchambers/ucifs/pkg/store"
	"github.com/pchambers/ucifs/pkg/uci"
)

// Render walks the store subtree for pkgName back into a uci.Package, the
// inverse of Commit. FileEntry.Populate composes Render with uci.Serialize,
// so populating a file and parsing it back yields an equivalent tree.
func (t *Translator) Render(pkgName string) (*uci.Package, error) {
	pkgKey := ConfigRoot + "/" + pkgName

	entries, err := t.store.Walk(pkgKey)
	if err != nil {
		return nil, err
	}

	byKey := make(map[string]store.Entry, len(entries))
	var sectionKeys []string
	for _, e := range entries {
		byKey[e.Key] = e
		if e.Meta["kind"] == kindSection {
			sectionKeys = append(sectionKeys, e.Key)
		}
	}
	sort.Strings(sectionKeys)

	pkg := &uci.Package{Name: pkgName}
	for _, sectionKey := range sectionKeys {
		se := byKey[sectionKey]
		section := &uci.Section{
			Type:      se.Meta["type"],
			Anonymous: se.Meta["anonymous"] == "true",
		}
		if !section.Anonymous {
			section.Name = lastSegment(sectionKey)
		}
		section.Options = renderOptions(sectionKey, entries, byKey)
		pkg.Sections = append(pkg.Sections, section)
	}
	return pkg, nil
}

func renderOptions(sectionKey string, entries []store.Entry, byKey map[string]store.Entry) []*uci.Option {
	prefix := sectionKey + "/"
	var optionKeys []string
	for _, e := range entries {
		if !strings.HasPrefix(e.Key, prefix) {
			continue
		}
		rest := e.Key[len(prefix):]
		if strings.Contains(rest, "/") {
			continue // not a direct child: a list element, handled below
		}
		if e.Meta["kind"] == kindOption || e.Meta["kind"] == kindList {
			optionKeys = append(optionKeys, e.Key)
		}
	}
	sort.Strings(optionKeys)

	options := make([]*uci.Option, 0, len(optionKeys))
	for _, optKey := range optionKeys {
		oe := byKey[optKey]
		if oe.Meta["kind"] == kindOption {
			options = append(options, &uci.Option{Name: lastSegment(optKey), Value: oe.Value})
			continue
		}
		options = append(options, renderList(optKey, entries, byKey))
	}
	return options
}

func renderList(listKey string, entries []store.Entry, byKey map[string]store.Entry) *uci.Option {
	prefix := listKey + "/"
	var elemKeys []string
	for _, e := range entries {
		if strings.HasPrefix(e.Key, prefix) && e.Meta["kind"] == kindElement {
			elemKeys = append(elemKeys, e.Key)
		}
	}
	sort.Strings(elemKeys) // "#000" < "#001" < ... sorts lexicographically in order

	opt := &uci.Option{Name: lastSegment(listKey), IsList: true}
	for _, ek := range elemKeys {
		opt.List = append(opt.List, byKey[ek].Value)
	}
	return opt
}

func lastSegment(key string) string {
	idx := strings.LastIndex(key, "/")
	if idx < 0 {
		return key
	}
	return key[idx+1:]
}
