package minipy

import (
	"fmt"
	"strings"
	"unicode"
)

// Token Kinds
const (
	// Meta
	TOKEN_EOF    = "end-of-file"
	TOKEN_EOL    = "end-of-line"
	TOKEN_INDENT = "indentation"
	// Identifiers and Literals
	TOKEN_IDENTIFIER = "identifier"
	TOKEN_NUMBER     = "number"
	TOKEN_STRING     = "string"
	TOKEN_BOOLEAN    = "boolean"
	// Operators
	TOKEN_EQ     = "=="
	TOKEN_NE     = "!="
	TOKEN_LE     = "<="
	TOKEN_GE     = ">="
	TOKEN_POW    = "**"
	TOKEN_ADD    = "+"
	TOKEN_SUB    = "-"
	TOKEN_MUL    = "*"
	TOKEN_DIV    = "/"
	TOKEN_MOD    = "%"
	TOKEN_LT     = "<"
	TOKEN_GT     = ">"
	TOKEN_ASSIGN = "="
	// Delimiters
	TOKEN_LPAREN   = "("
	TOKEN_RPAREN   = ")"
	TOKEN_LBRACE   = "{"
	TOKEN_RBRACE   = "}"
	TOKEN_LBRACKET = "["
	TOKEN_RBRACKET = "]"
	TOKEN_COLON    = ":"
	TOKEN_DOT      = "."
	TOKEN_COMMA    = ","
	// Keywords
	TOKEN_AND      = "and"
	TOKEN_AS       = "as"
	TOKEN_BREAK    = "break"
	TOKEN_CLASS    = "class"
	TOKEN_CONTINUE = "continue"
	TOKEN_DEF      = "def"
	TOKEN_DEL      = "del"
	TOKEN_ELIF     = "elif"
	TOKEN_ELSE     = "else"
	TOKEN_EXCEPT   = "except"
	TOKEN_FINALLY  = "finally"
	TOKEN_FOR      = "for"
	TOKEN_FROM     = "from"
	TOKEN_IF       = "if"
	TOKEN_IMPORT   = "import"
	TOKEN_IN       = "in"
	TOKEN_IS       = "is"
	TOKEN_NONE     = "None"
	TOKEN_NOT      = "not"
	TOKEN_OF       = "of"
	TOKEN_OR       = "or"
	TOKEN_PASS     = "pass"
	TOKEN_RAISE    = "raise"
	TOKEN_RETURN   = "return"
	TOKEN_TRY      = "try"
	TOKEN_WHILE    = "while"
	// Produced by the expression parser, never by the lexer.
	TOKEN_IS_NOT = "is not"
	TOKEN_NOT_IN = "not in"
	TOKEN_NEGATE = "unary -"
)

// Symbols in match priority order: longer symbols sharing a prefix with a
// shorter one must come first.
var symbols = []string{
	TOKEN_EQ, TOKEN_NE, TOKEN_LE, TOKEN_GE, TOKEN_POW,
	TOKEN_ADD, TOKEN_SUB, TOKEN_MUL, TOKEN_DIV, TOKEN_MOD,
	TOKEN_LT, TOKEN_GT, TOKEN_ASSIGN,
	TOKEN_LPAREN, TOKEN_RPAREN, TOKEN_LBRACE, TOKEN_RBRACE,
	TOKEN_LBRACKET, TOKEN_RBRACKET, TOKEN_COLON, TOKEN_DOT, TOKEN_COMMA,
}

var keywords = map[string]string{
	TOKEN_AND:      TOKEN_AND,
	TOKEN_AS:       TOKEN_AS,
	TOKEN_BREAK:    TOKEN_BREAK,
	TOKEN_CLASS:    TOKEN_CLASS,
	TOKEN_CONTINUE: TOKEN_CONTINUE,
	TOKEN_DEF:      TOKEN_DEF,
	TOKEN_DEL:      TOKEN_DEL,
	TOKEN_ELIF:     TOKEN_ELIF,
	TOKEN_ELSE:     TOKEN_ELSE,
	TOKEN_EXCEPT:   TOKEN_EXCEPT,
	TOKEN_FINALLY:  TOKEN_FINALLY,
	TOKEN_FOR:      TOKEN_FOR,
	TOKEN_FROM:     TOKEN_FROM,
	TOKEN_IF:       TOKEN_IF,
	TOKEN_IMPORT:   TOKEN_IMPORT,
	TOKEN_IN:       TOKEN_IN,
	TOKEN_IS:       TOKEN_IS,
	TOKEN_NONE:     TOKEN_NONE,
	TOKEN_NOT:      TOKEN_NOT,
	TOKEN_OF:       TOKEN_OF,
	TOKEN_OR:       TOKEN_OR,
	TOKEN_PASS:     TOKEN_PASS,
	TOKEN_RAISE:    TOKEN_RAISE,
	TOKEN_RETURN:   TOKEN_RETURN,
	TOKEN_TRY:      TOKEN_TRY,
	TOKEN_WHILE:    TOKEN_WHILE,
}

// Lex Error Kinds
const (
	LEX_MIXED_INDENTATION   = "MixedIndentation"
	LEX_CARRIAGE_RETURN     = "CarriageReturnDetected"
	LEX_PARSE_STRING_FAILED = "ParseStringFailed"
	LEX_UNTERMINATED_STRING = "UnterminatedString"
	LEX_NO_MATCH            = "NoLexMatch"
	LEX_MALFORMED_NUMBER    = "MalformedNumber"
)

type LexError struct {
	Kind     string
	Location *SourceLocation // Optional
	why      string
}

func (self LexError) Error() string {
	return fmt.Sprintf("%s: %s", self.Kind, self.why)
}

type Token struct {
	Kind     string
	Literal  string
	Location *SourceLocation
}

func (self Token) String() string {
	switch self.Kind {
	case TOKEN_IDENTIFIER, TOKEN_NUMBER, TOKEN_BOOLEAN:
		return self.Literal
	case TOKEN_STRING:
		return quote(self.Literal)
	}
	return self.Kind
}

// Depth of an indentation token, in whitespace characters.
func (self Token) Depth() int {
	return len([]rune(self.Literal))
}

type Lexer struct {
	runes    []rune
	location *SourceLocation
	position int

	// Whitespace character used for indentation, fixed on first use.
	indentRune rune
	lineStart  bool
	eolAtEof   bool
}

func NewLexer(source string, location *SourceLocation) Lexer {
	if location == nil {
		location = &SourceLocation{"<source>", 1}
	}
	return Lexer{
		runes:     []rune(source),
		location:  location,
		position:  0,
		lineStart: true,
	}
}

// Tokenize lexes an entire source text. The result always ends with an
// end-of-line token followed by an end-of-file token.
func Tokenize(source string, file string) ([]Token, error) {
	lexer := NewLexer(source, &SourceLocation{file, 1})
	tokens := []Token{}
	for {
		token, err := lexer.NextToken()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
		if token.Kind == TOKEN_EOF {
			return tokens, nil
		}
	}
}

func (self *Lexer) here() *SourceLocation {
	return &SourceLocation{self.location.File, self.location.Line}
}

func (self *Lexer) newToken(kind string, literal string) Token {
	return Token{Kind: kind, Literal: literal, Location: self.here()}
}

func (self *Lexer) errorf(kind string, format string, args ...any) error {
	return LexError{
		Kind:     kind,
		Location: self.here(),
		why:      fmt.Sprintf(format, args...),
	}
}

func (self *Lexer) currentRune() rune {
	if self.position >= len(self.runes) {
		return rune(0)
	}
	return self.runes[self.position]
}

func (self *Lexer) peekRune(offset int) rune {
	if self.position+offset >= len(self.runes) {
		return rune(0)
	}
	return self.runes[self.position+offset]
}

func (self *Lexer) isEof() bool {
	return self.position >= len(self.runes)
}

func (self *Lexer) advanceRune() {
	if self.isEof() {
		return
	}
	if self.currentRune() == '\n' {
		self.location.Line += 1
	}
	self.position += 1
}

func (self *Lexer) skipComment() error {
	for !self.isEof() && self.currentRune() != '\n' {
		if self.currentRune() == '\r' {
			return self.errorf(LEX_CARRIAGE_RETURN, "carriage return (CR) characters are not allowed")
		}
		self.advanceRune()
	}
	return nil
}

func (self *Lexer) lexIndentation() (Token, error) {
	location := self.here()
	literal := ""
	for r := self.currentRune(); r == ' ' || r == '\t'; r = self.currentRune() {
		if self.indentRune == 0 {
			self.indentRune = r
		} else if self.indentRune != r {
			return Token{}, self.errorf(LEX_MIXED_INDENTATION, "indentation mixes tabs and spaces")
		}
		literal += string(r)
		self.advanceRune()
	}
	return Token{Kind: TOKEN_INDENT, Literal: literal, Location: location}, nil
}

func (self *Lexer) lexKeywordOrIdentifier() Token {
	location := self.here()
	literal := ""
	for unicode.IsLetter(self.currentRune()) || unicode.IsDigit(self.currentRune()) || self.currentRune() == '_' {
		literal += string(self.currentRune())
		self.advanceRune()
	}

	if literal == "True" || literal == "False" {
		return Token{Kind: TOKEN_BOOLEAN, Literal: literal, Location: location}
	}
	if keyword, ok := keywords[literal]; ok {
		return Token{Kind: keyword, Literal: literal, Location: location}
	}
	return Token{Kind: TOKEN_IDENTIFIER, Literal: literal, Location: location}
}

func isDigit(r rune) bool {
	return '0' <= r && r <= '9'
}

func (self *Lexer) lexNumber() (Token, error) {
	location := self.here()
	literal := ""
	for isDigit(self.currentRune()) || self.currentRune() == '.' {
		literal += string(self.currentRune())
		self.advanceRune()
	}

	switch strings.Count(literal, ".") {
	case 0:
		return Token{Kind: TOKEN_NUMBER, Literal: literal, Location: location}, nil
	case 1:
		if literal == "." {
			return Token{Kind: TOKEN_DOT, Literal: literal, Location: location}, nil
		}
		return Token{Kind: TOKEN_NUMBER, Literal: literal, Location: location}, nil
	}
	return Token{}, LexError{
		Kind:     LEX_MALFORMED_NUMBER,
		Location: location,
		why:      fmt.Sprintf("more than one \".\" in number %s", literal),
	}
}

func (self *Lexer) lexEscape() (rune, error) {
	self.advanceRune() // backslash
	if self.isEof() {
		return 0, self.errorf(LEX_UNTERMINATED_STRING, "string backslash escape interrupted by end of file")
	}
	r := self.currentRune()
	self.advanceRune()
	switch r {
	case '\\':
		return '\\', nil
	case 'n':
		return '\n', nil
	case 't':
		return '\t', nil
	case 'r':
		return '\r', nil
	case '\'', '"':
		return r, nil
	}
	return 0, self.errorf(LEX_PARSE_STRING_FAILED, "backslash followed by %q", string(r))
}

func (self *Lexer) lexString() (Token, error) {
	location := self.here()
	delimiter := self.currentRune()
	self.advanceRune()

	triple := self.currentRune() == delimiter && self.peekRune(1) == delimiter
	if triple {
		self.advanceRune()
		self.advanceRune()
	}

	var sb strings.Builder
	for {
		if self.isEof() {
			opening := string(delimiter)
			if triple {
				opening = strings.Repeat(opening, 3)
			}
			return Token{}, LexError{
				Kind:     LEX_UNTERMINATED_STRING,
				Location: location,
				why:      fmt.Sprintf("end of file reached in a string starting with %s", opening),
			}
		}

		r := self.currentRune()
		switch {
		case r == '\\':
			escaped, err := self.lexEscape()
			if err != nil {
				return Token{}, err
			}
			sb.WriteRune(escaped)
			continue
		case r == '\r':
			return Token{}, self.errorf(LEX_CARRIAGE_RETURN, "carriage return in string")
		case r == delimiter && !triple:
			self.advanceRune()
			return Token{Kind: TOKEN_STRING, Literal: sb.String(), Location: location}, nil
		case r == delimiter && self.peekRune(1) == delimiter && self.peekRune(2) == delimiter:
			self.advanceRune()
			self.advanceRune()
			self.advanceRune()
			return Token{Kind: TOKEN_STRING, Literal: sb.String(), Location: location}, nil
		case r == '\n' && !triple:
			return Token{}, self.errorf(LEX_PARSE_STRING_FAILED, "line ended inside a single-line string")
		}
		sb.WriteRune(r)
		self.advanceRune()
	}
}

func (self *Lexer) lexSymbol() (Token, error) {
	for _, symbol := range symbols {
		runes := []rune(symbol)
		matched := true
		for i, r := range runes {
			if self.peekRune(i) != r {
				matched = false
				break
			}
		}
		if matched {
			token := self.newToken(symbol, symbol)
			for range runes {
				self.advanceRune()
			}
			return token, nil
		}
	}

	remainder := string(self.runes[self.position:])
	if newline := strings.IndexRune(remainder, '\n'); newline >= 0 {
		remainder = remainder[:newline]
	}
	return Token{}, self.errorf(LEX_NO_MATCH, "no token matches %q", remainder)
}

func (self *Lexer) NextToken() (Token, error) {
	if self.lineStart {
		self.lineStart = false
		return self.lexIndentation()
	}

	for !self.isEof() {
		r := self.currentRune()
		if r == ' ' || r == '\t' {
			self.advanceRune()
			continue
		}
		if r == '#' {
			// Ending a file inside a comment is fine.
			if err := self.skipComment(); err != nil {
				return Token{}, err
			}
			continue
		}
		break
	}

	if self.isEof() {
		if !self.eolAtEof {
			self.eolAtEof = true
			return self.newToken(TOKEN_EOL, ""), nil
		}
		return self.newToken(TOKEN_EOF, ""), nil
	}

	r := self.currentRune()
	switch {
	case r == '\n':
		token := self.newToken(TOKEN_EOL, "")
		self.advanceRune()
		self.lineStart = true
		return token, nil
	case r == '\r':
		return Token{}, self.errorf(LEX_CARRIAGE_RETURN, "carriage return (CR) characters are not allowed")
	case r == '\'' || r == '"':
		return self.lexString()
	case unicode.IsLetter(r) || r == '_':
		return self.lexKeywordOrIdentifier(), nil
	case isDigit(r) || r == '.':
		return self.lexNumber()
	}
	return self.lexSymbol()
}
