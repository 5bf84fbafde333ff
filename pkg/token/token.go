package token

type Type int

const (
	EOF Type = iota
	Ident
	Number
	Int
	Return
	If
	Else
	While
	For
	Sizeof
	LParen
	RParen
	LBrace
	RBrace
	LBracket
	RBracket
	Semi
	Comma
	Eq
	Plus
	Minus
	Star
	Slash
	Rem
	And
	EqEq
	Neq
	Lt
	Gt
	Lte
	Gte
)

var KeywordMap = map[string]Type{
	"int":    Int,
	"return": Return,
	"if":     If,
	"else":   Else,
	"while":  While,
	"for":    For,
	"sizeof": Sizeof,
}

var punctStrings = map[Type]string{
	LParen:   "(",
	RParen:   ")",
	LBrace:   "{",
	RBrace:   "}",
	LBracket: "[",
	RBracket: "]",
	Semi:     ";",
	Comma:    ",",
	Eq:       "=",
	Plus:     "+",
	Minus:    "-",
	Star:     "*",
	Slash:    "/",
	Rem:      "%",
	And:      "&",
	EqEq:     "==",
	Neq:      "!=",
	Lt:       "<",
	Gt:       ">",
	Lte:      "<=",
	Gte:      ">=",
}

// Reverse mapping from Type to the keyword or punctuator spelling
var TypeStrings = make(map[Type]string)

func init() {
	for str, typ := range KeywordMap {
		TypeStrings[typ] = str
	}
	for typ, str := range punctStrings {
		TypeStrings[typ] = str
	}
	TypeStrings[EOF] = "end of file"
	TypeStrings[Ident] = "identifier"
	TypeStrings[Number] = "number"
}

func (t Type) String() string {
	if s, ok := TypeStrings[t]; ok {
		return s
	}
	return "unknown"
}

// Token is a single lexeme. Offset is the rune offset into the source file,
// Line and Column are 1-based.
type Token struct {
	Type      Type
	Value     string
	FileIndex int
	Line      int
	Column    int
	Offset    int
	Len       int
}

// Text returns the spelling of the token as it appears in the source.
func (t Token) Text() string {
	switch t.Type {
	case Ident, Number:
		return t.Value
	}
	return t.Type.String()
}
