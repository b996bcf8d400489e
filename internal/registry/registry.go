// Package registry holds the static type tables used to classify and dispatch
// attachments. A Registry is immutable once built and safe for concurrent use.
package registry

import (
	"sort"
	"strings"
)

// SubtypeGroup binds a dispatch group name to the application sub-type
// substrings that select it.
type SubtypeGroup struct {
	Name       string
	Substrings []string
}

// Options customises a Registry. Nil fields fall back to the defaults.
type Options struct {
	MaliciousExtensions      []string
	ExtraMaliciousExtensions []string
	MimeAliases              map[string]string
	ExtensionOverrides       map[string]string
	ApplicationGroups        []SubtypeGroup
}

// Registry is the read-only lookup surface for the classifier and scanners.
type Registry struct {
	malicious  map[string]struct{}
	aliases    map[string]string
	overrides  map[string]string
	extToMime  map[string]string
	strict     map[string]struct{}
	mimeToExts map[string][]string
	mainTypes  map[string]struct{}
	appGroups  []SubtypeGroup
}

var defaultRegistry = New(Options{})

// Default returns the registry built from the built-in tables.
func Default() *Registry {
	return defaultRegistry
}

// New builds a registry from opts.
func New(opts Options) *Registry {
	r := &Registry{
		malicious:  make(map[string]struct{}),
		aliases:    make(map[string]string),
		overrides:  make(map[string]string),
		extToMime:  make(map[string]string),
		strict:     make(map[string]struct{}),
		mimeToExts: make(map[string][]string),
		mainTypes:  make(map[string]struct{}),
	}

	malicious := opts.MaliciousExtensions
	if malicious == nil {
		malicious = defaultMaliciousExtensions
	}
	for _, ext := range append(append([]string{}, malicious...), opts.ExtraMaliciousExtensions...) {
		r.malicious[normalizeExtension(ext)] = struct{}{}
	}

	aliases := opts.MimeAliases
	if aliases == nil {
		aliases = defaultMimeAliases
	}
	for k, v := range aliases {
		r.aliases[k] = v
	}

	overrides := opts.ExtensionOverrides
	if overrides == nil {
		overrides = defaultExtensionOverrides
	}
	for k, v := range overrides {
		r.overrides[normalizeExtension(k)] = v
	}

	for _, e := range defaultTypes {
		r.addType(e)
		r.strict[e.ext] = struct{}{}
	}
	for _, e := range nonStrictTypes {
		r.addType(e)
	}
	for mime := range r.mimeToExts {
		sort.Strings(r.mimeToExts[mime])
	}

	for _, t := range defaultMainTypes {
		r.mainTypes[t] = struct{}{}
	}

	groups := opts.ApplicationGroups
	if groups == nil {
		groups = defaultApplicationGroups
	}
	r.appGroups = make([]SubtypeGroup, len(groups))
	for i, g := range groups {
		r.appGroups[i] = SubtypeGroup{Name: g.Name, Substrings: append([]string{}, g.Substrings...)}
	}

	return r
}

func (r *Registry) addType(e typeEntry) {
	if _, ok := r.extToMime[e.ext]; !ok {
		r.extToMime[e.ext] = e.mime
	}
	if !contains(r.mimeToExts[e.mime], e.ext) {
		r.mimeToExts[e.mime] = append(r.mimeToExts[e.mime], e.ext)
	}
}

// IsMalicious reports whether ext is dangerous regardless of content.
func (r *Registry) IsMalicious(ext string) bool {
	_, ok := r.malicious[strings.ToLower(ext)]
	return ok
}

// Alias resolves a confusable MIME spelling. Unknown types are returned as is.
func (r *Registry) Alias(mime string) string {
	if a, ok := r.aliases[mime]; ok {
		return a
	}
	return mime
}

// Override returns the forced MIME type for ext, if any.
func (r *Registry) Override(ext string) (string, bool) {
	m, ok := r.overrides[strings.ToLower(ext)]
	return m, ok
}

// KnownExtension reports whether ext has a strict entry in the extension
// table.
func (r *Registry) KnownExtension(ext string) bool {
	_, ok := r.strict[strings.ToLower(ext)]
	return ok
}

// ExtensionsFor lists, sorted, every extension associated with mime.
func (r *Registry) ExtensionsFor(mime string) []string {
	exts := r.mimeToExts[mime]
	if len(exts) == 0 {
		return nil
	}
	return append([]string{}, exts...)
}

// ExpectedMimeType applies the override table, then generic inference on the
// full name, then aliasing.
func (r *Registry) ExpectedMimeType(name, ext string) string {
	if m, ok := r.Override(ext); ok {
		return m
	}
	return r.Alias(r.GuessType(name))
}

// GuessType infers a MIME type from a filename the way generic
// extension-based inference does: suffix aliases such as .tgz are expanded,
// a trailing compression suffix is dropped, and the remaining extension is
// looked up. It returns "" when nothing matches.
func (r *Registry) GuessType(name string) string {
	base, ext := SplitExt(name)
	for {
		alias, ok := suffixAliases[strings.ToLower(ext)]
		if !ok {
			break
		}
		base, ext = SplitExt(base + alias)
	}
	if _, ok := encodingSuffixes[ext]; ok {
		base, ext = SplitExt(base)
	}
	return r.extToMime[strings.ToLower(ext)]
}

// HasMainTypeHandler reports whether a dedicated handler exists for main.
func (r *Registry) HasMainTypeHandler(main string) bool {
	_, ok := r.mainTypes[main]
	return ok
}

// MatchApplicationGroup returns the first group, in priority order, with a
// substring contained in subtype.
func (r *Registry) MatchApplicationGroup(subtype string) (SubtypeGroup, bool) {
	for _, g := range r.appGroups {
		for _, s := range g.Substrings {
			if strings.Contains(subtype, s) {
				return g, true
			}
		}
	}
	return SubtypeGroup{}, false
}

// ApplicationGroups returns a copy of the dispatch groups in priority order.
func (r *Registry) ApplicationGroups() []SubtypeGroup {
	out := make([]SubtypeGroup, len(r.appGroups))
	copy(out, r.appGroups)
	return out
}

// SplitExt splits name into root and extension. Leading dots of the final
// path element do not start an extension, so ".profile" has none.
func SplitExt(name string) (string, string) {
	sep := strings.LastIndexAny(name, `/\`)
	dot := strings.LastIndex(name, ".")
	if dot <= sep {
		return name, ""
	}
	for i := sep + 1; i < dot; i++ {
		if name[i] != '.' {
			return name[:dot], name[dot:]
		}
	}
	return name, ""
}

// Extension returns the lower-cased extension of name.
func Extension(name string) string {
	_, ext := SplitExt(name)
	return strings.ToLower(ext)
}

func normalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
