// Package config parses the engine's hdd disk list and runtime key/value
// configuration (spec.md §6).
package config

import (
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/saunafs/chunkserver-storage/build"
)

// DiskEntry is one parsed line of the hdd configuration file: `[*]<meta>
// [| <data>]` or `zonefs:<meta> | <data>` (spec.md §6). Grounded on
// solarisdb-solaris's pkg/ql/parser.go participle grammar style - a simple
// lexer plus a struct-tag grammar, generalised here from a boolean
// expression language to this one-line disk-entry language.
type DiskEntry struct {
	Zoned           bool   `@"zonefs:"?`
	MarkForRemoval  bool   `@"*"?`
	Meta            string `@Path`
	Data            string `("|" @Path)?`
}

var (
	hddLexer = lexer.MustSimple([]lexer.SimpleRule{
		{Name: "Keyword", Pattern: `zonefs:|\*|\|`},
		{Name: "Path", Pattern: `[^\s|]+`},
		{Name: "whitespace", Pattern: `\s+`},
	})

	diskEntryParser = participle.MustBuild[DiskEntry](
		participle.Lexer(hddLexer),
	)
)

// ParseHDDConfig parses the full contents of an hdd.cfg file into its disk
// entries, skipping comments (`# ...`) and blank lines (spec.md §6).
func ParseHDDConfig(contents string) ([]DiskEntry, error) {
	var entries []DiskEntry
	for _, line := range strings.Split(contents, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		entry, err := diskEntryParser.ParseString("", trimmed)
		if err != nil {
			return nil, build.ExtendErr("malformed hdd config line: "+line, err)
		}
		normalizeEntry(entry)
		entries = append(entries, *entry)
	}
	return entries, nil
}

// normalizeEntry fills Data from Meta when no "| data" clause was given, and
// trims the trailing slash the spec calls for (spec.md §6: "Trailing slash
// is normalised in").
func normalizeEntry(e *DiskEntry) {
	e.Meta = strings.TrimSuffix(e.Meta, "/")
	if e.Data == "" {
		e.Data = e.Meta
	} else {
		e.Data = strings.TrimSuffix(e.Data, "/")
	}
}

// DiffEntries compares a freshly parsed config against the previous one and
// returns which meta paths were added and which were removed. A changed data
// path for an existing meta path is not rejected: it is reported as both a
// removal of the old entry and an addition of the new one, so the caller
// recreates the Disk with the new data path.
func DiffEntries(prev, next []DiskEntry) (added, removed []DiskEntry) {
	prevByMeta := make(map[string]DiskEntry, len(prev))
	for _, e := range prev {
		prevByMeta[e.Meta] = e
	}
	seen := make(map[string]bool, len(next))
	for _, e := range next {
		seen[e.Meta] = true
		old, existed := prevByMeta[e.Meta]
		if !existed {
			added = append(added, e)
			continue
		}
		if old.Data != e.Data {
			removed = append(removed, old)
			added = append(added, e)
		}
	}
	for _, e := range prev {
		if !seen[e.Meta] {
			removed = append(removed, e)
		}
	}
	return added, removed
}
