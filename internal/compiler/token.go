package compiler

import "fmt"

// Kind is a token kind.
type Kind int

const (
	EOF Kind = iota
	Newline
	IdentTok
	Int
	Float
	String

	LParen
	RParen
	LBrace
	RBrace
	Comma
	Colon
	Assign

	Plus
	Minus
	Star
	Slash
	Percent
	Eq
	NotEq
	Lt
	Le
	Gt
	Ge

	True
	False
	And
	Or
	Not
	If
	Else
	While
	Break
	Continue
	Return
)

var kindNames = [...]string{
	EOF:      "end of file",
	Newline:  "newline",
	IdentTok: "identifier",
	Int:      "integer",
	Float:    "float",
	String:   "string",
	LParen:   "'('",
	RParen:   "')'",
	LBrace:   "'{'",
	RBrace:   "'}'",
	Comma:    "','",
	Colon:    "':'",
	Assign:   "'='",
	Plus:     "'+'",
	Minus:    "'-'",
	Star:     "'*'",
	Slash:    "'/'",
	Percent:  "'%'",
	Eq:       "'=='",
	NotEq:    "'!='",
	Lt:       "'<'",
	Le:       "'<='",
	Gt:       "'>'",
	Ge:       "'>='",
	True:     "'true'",
	False:    "'false'",
	And:      "'and'",
	Or:       "'or'",
	Not:      "'not'",
	If:       "'if'",
	Else:     "'else'",
	While:    "'while'",
	Break:    "'break'",
	Continue: "'continue'",
	Return:   "'return'",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

var keywords = map[string]Kind{
	"true":     True,
	"false":    False,
	"and":      And,
	"or":       Or,
	"not":      Not,
	"if":       If,
	"else":     Else,
	"while":    While,
	"break":    Break,
	"continue": Continue,
	"return":   Return,
}

// Pos is a 1-based source position.
type Pos struct {
	Line int
	Col  int
}

// Token is one lexeme. Text holds the decoded value for strings and the
// literal spelling for everything else.
type Token struct {
	Kind Kind
	Text string
	Pos
}

func (t Token) describe() string {
	switch t.Kind {
	case IdentTok, Int, Float:
		return fmt.Sprintf("%s %q", t.Kind, t.Text)
	case String:
		return "string literal"
	}
	return t.Kind.String()
}
