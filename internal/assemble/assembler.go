// Package assemble turns the outputs of one conversion into either a single
// downloadable file or a zip archive with deterministic entry names.
package assemble

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"arstate/internal/media"
)

// BatchArchiveName names archives built from more than one source.
const BatchArchiveName = "converted_files.zip"

const archiveMIME = "application/zip"

type Assembler struct {
	newArchive func() ArchiveBuilder
	log        zerolog.Logger
}

// New returns an assembler. A nil factory selects the in-memory zip builder.
func New(newArchive func() ArchiveBuilder, log zerolog.Logger) *Assembler {
	if newArchive == nil {
		newArchive = NewZip
	}
	return &Assembler{newArchive: newArchive, log: log.With().Str("comp", "assemble").Logger()}
}

// group is the outputs of one source, in production order.
type group struct {
	base      string
	paginated bool
	outputs   []media.Output
}

// Assemble returns the single output as-is when the batch is one
// non-paginated source with one output, and an archive otherwise.
//
// Pages are named page_NNN.ext and go into a folder named after their source
// when the batch has more than one source. Other outputs sit at the archive
// root as base.ext. A base that would reuse an earlier entry or folder name
// gets a _2, _3, ... suffix.
func (a *Assembler) Assemble(outputs []media.Output, sourceCount int, anyPaginated bool) (media.Assembly, error) {
	if len(outputs) == 0 {
		return media.Assembly{}, media.AssemblyError(errors.New("no outputs to assemble"))
	}

	if sourceCount == 1 && !anyPaginated && len(outputs) == 1 {
		out := outputs[0]
		return media.Assembly{
			Name:    out.Name(),
			MIME:    mimeForExt(out.Ext),
			Data:    out.Data,
			Entries: []string{out.Name()},
		}, nil
	}

	groups := groupOutputs(outputs)
	nested := sourceCount > 1

	archive := a.newArchive()
	used := make(map[string]bool)
	var entries []string

	for _, g := range groups {
		base := uniqueBase(g, nested, used)
		for _, out := range g.outputs {
			name := base + "." + out.Ext
			if out.Page > 0 {
				name = media.PageName(out.Page, out.Ext)
				if nested {
					name = base + "/" + name
				}
			}
			if used[name] {
				return media.Assembly{}, media.AssemblyError(fmt.Errorf("duplicate entry %q", name))
			}
			used[name] = true
			if err := archive.Add(name, out.Data); err != nil {
				return media.Assembly{}, media.AssemblyError(fmt.Errorf("add %s: %w", name, err))
			}
			entries = append(entries, name)
		}
		if g.paginated && nested {
			used[base+"/"] = true
		}
	}

	data, err := archive.Finish()
	if err != nil {
		return media.Assembly{}, media.AssemblyError(err)
	}

	name := BatchArchiveName
	if sourceCount == 1 {
		name = groups[0].base + ".zip"
	}
	a.log.Debug().Str("archive", name).Int("entries", len(entries)).Int("bytes", len(data)).Msg("assembled")

	return media.Assembly{
		Name:    name,
		MIME:    archiveMIME,
		Data:    data,
		Archive: true,
		Entries: entries,
	}, nil
}

func groupOutputs(outputs []media.Output) []*group {
	var groups []*group
	byID := make(map[string]*group)
	for _, out := range outputs {
		key := out.SourceID
		if key == "" {
			key = out.Base
		}
		g, ok := byID[key]
		if !ok {
			g = &group{base: out.Base}
			byID[key] = g
			groups = append(groups, g)
		}
		if out.Page > 0 {
			g.paginated = true
		}
		g.outputs = append(g.outputs, out)
	}
	return groups
}

func uniqueBase(g *group, nested bool, used map[string]bool) string {
	clashes := func(base string) bool {
		for _, out := range g.outputs {
			switch {
			case out.Page > 0 && nested:
				if used[base+"/"] {
					return true
				}
			case out.Page == 0:
				if used[base+"."+out.Ext] {
					return true
				}
			}
		}
		return false
	}

	base := g.base
	for n := 2; clashes(base); n++ {
		base = fmt.Sprintf("%s_%d", g.base, n)
	}
	return base
}

func mimeForExt(ext string) string {
	kind, err := media.ParseOutputKind(ext)
	if err != nil {
		return "application/octet-stream"
	}
	return kind.MIME()
}
