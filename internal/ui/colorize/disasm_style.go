package colorize

import (
	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/styles"
)

// DisasmDark is the listing style: white mnemonics, teal registers, pink
// numbers and gold labels and strings. It registers as "disasm-dark".
var DisasmDark = styles.Register(chroma.MustNewStyle("disasm-dark", chroma.StyleEntries{
	chroma.Text:           "#FFFFFF",
	chroma.Background:     "bg:#1e1e1e",
	chroma.Comment:        "#EBC2ED", // annotations after ';'
	chroma.CommentPreproc: "#EBC2ED",

	// nasm tokenizes mnemonics as functions or keywords
	chroma.Keyword:       "#FFFFFF",
	chroma.KeywordPseudo: "#FFFFFF", // db
	chroma.KeywordType:   "#9CDCFE", // byte, word, dword
	chroma.Name:          "#7C9C9D",
	chroma.NameBuiltin:   "#7C9C9D", // eax, esp, ...
	chroma.NameVariable:  "#7C9C9D",

	chroma.LiteralNumber:        "#FF5F87",
	chroma.LiteralNumberHex:     "#FF5F87",
	chroma.LiteralNumberBin:     "#FF5F87",
	chroma.LiteralNumberOct:     "#FF5F87",
	chroma.LiteralNumberInteger: "#FF5F87",
	chroma.LiteralNumberFloat:   "#FF5F87",

	chroma.NameLabel:    "#FFD700",
	chroma.NameFunction: "#FFFFFF",

	chroma.Operator:    "#FFFFFF",
	chroma.Punctuation: "#FFFFFF",

	chroma.String: "#EACD53",
}))
