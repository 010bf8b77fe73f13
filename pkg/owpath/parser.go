package owpath

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/OpenTraceLab/OpenTraceOneWire/pkg/onewire"
)

// pathLexer tokenizes the text form of a path.
var pathLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `[ \t]+`},
	// Address must come before Int so a 16 digit address is not read as a
	// channel number.
	{Name: "Address", Pattern: `[0-9A-Fa-f]{16}`},
	{Name: "Int", Pattern: `[0-9]+`},
	{Name: "Slash", Pattern: `/`},
	{Name: "Underscore", Pattern: `_`},
})

type pathAST struct {
	Hops []*hopAST `( "/" @@ )+`
}

type hopAST struct {
	Branch  string `@Address`
	Channel int    `"_" @Int`
}

var pathParser = participle.MustBuild[pathAST](
	participle.Lexer(pathLexer),
	participle.Elide("Whitespace"),
	participle.UseLookahead(2),
)

// Parse reads the form produced by Path.String. "" and "/" are the root.
func Parse(s string) (Path, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "/" {
		return Path{}, nil
	}
	ast, err := pathParser.ParseString("", s)
	if err != nil {
		return Path{}, fmt.Errorf("%w: path %q: %w", onewire.ErrSetup, s, err)
	}
	var p Path
	for _, hop := range ast.Hops {
		addr, err := onewire.ParseAddress(hop.Branch)
		if err != nil {
			return Path{}, err
		}
		if !addr.Valid() {
			return Path{}, fmt.Errorf("%w: %s fails CRC", onewire.ErrInvalidAddress, addr)
		}
		p = p.Add(addr, hop.Channel)
	}
	return p, nil
}
