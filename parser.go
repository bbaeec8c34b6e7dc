package minipy

import (
	"fmt"
	"slices"
)

type Parser struct {
	lexer        *Lexer
	currentToken Token
}

func NewParser(lexer *Lexer) (Parser, error) {
	self := Parser{
		lexer:        lexer,
		currentToken: Token{"invalid program", "", lexer.location},
	}
	if _, err := self.advanceToken(); err != nil {
		return Parser{}, err
	}
	return self, nil
}

// Parse lexes and parses a complete source file.
func Parse(source string, file string) (AstProgram, error) {
	lexer := NewLexer(source, &SourceLocation{file, 1})
	parser, err := NewParser(&lexer)
	if err != nil {
		return AstProgram{}, err
	}
	return parser.ParseProgram()
}

func (self *Parser) advanceToken() (Token, error) {
	current := self.currentToken
	token, err := self.lexer.NextToken()
	if err != nil {
		return token, err
	}
	self.currentToken = token
	return current, nil
}

func (self *Parser) checkCurrent(kind string) bool {
	return self.currentToken.Kind == kind
}

func (self *Parser) expectCurrent(kind string) (Token, error) {
	current := self.currentToken
	if current.Kind != kind {
		return Token{}, syntaxError(current.Location, "expected %s, found %s", quote(kind), quote(current.String()))
	}
	if _, err := self.advanceToken(); err != nil {
		return Token{}, err
	}
	return current, nil
}

// Every command ends at the end of its line.
func (self *Parser) expectEndOfLine() error {
	current := self.currentToken
	if isCloser(current.Kind) {
		return syntaxError(current.Location, "unmatched %s", quote(current.Kind))
	}
	if current.Kind != TOKEN_EOL {
		return syntaxError(current.Location, "invalid syntax: unexpected %s", quote(current.String()))
	}
	_, err := self.advanceToken()
	return err
}

func (self *Parser) expectIdentifier() (string, error) {
	token, err := self.expectCurrent(TOKEN_IDENTIFIER)
	if err != nil {
		return "", err
	}
	return token.Literal, nil
}

// Comma separated expressions form a tuple without parentheses in
// statement position.
func (self *Parser) parseExpressionList(stop ...string) (AstExpression, error) {
	location := self.currentToken.Location
	stop = append(slices.Clone(stop), TOKEN_COMMA)
	elements := []AstExpression{}
	comma := false
	for {
		element, err := self.ParseExpression(stop...)
		if err != nil {
			return nil, err
		}
		elements = append(elements, element)
		if !self.checkCurrent(TOKEN_COMMA) {
			break
		}
		comma = true
		if _, err := self.advanceToken(); err != nil {
			return nil, err
		}
		switch kind := self.currentToken.Kind; {
		case kind == TOKEN_EOL, kind == TOKEN_ASSIGN, kind == TOKEN_COLON, slices.Contains(stop, kind):
			return AstExpressionTuple{location, elements}, nil
		}
	}
	if !comma {
		return elements[0], nil
	}
	return AstExpressionTuple{location, elements}, nil
}

func (self *Parser) parseDottedName() ([]string, error) {
	path := []string{}
	for {
		name, err := self.expectIdentifier()
		if err != nil {
			return nil, err
		}
		path = append(path, name)
		if !self.checkCurrent(TOKEN_DOT) {
			return path, nil
		}
		if _, err := self.advanceToken(); err != nil {
			return nil, err
		}
	}
}

// Command is one parsed logical line. Keyword is the leading keyword of
// block headers and keyword statements; assignments and expression
// statements have an empty Keyword. Simple statements carry their parsed
// form in Statement.
type Command struct {
	Keyword    string
	Depth      int
	Location   *SourceLocation
	Condition  AstExpression // if, elif, while, except
	Target     AstExpression // for
	Iterable   AstExpression // for
	Name       string        // def, class, except ... as
	Parameters []AstParameter
	Base       AstExpression // Optional
	Statement  AstStatement
}

func (self *Command) isHeader() bool {
	return self.Statement == nil
}

// ParseCommand parses the logical line starting at the current indentation
// token. Blank and comment-only lines produce a nil command.
func (self *Parser) ParseCommand() (*Command, error) {
	indent, err := self.expectCurrent(TOKEN_INDENT)
	if err != nil {
		return nil, err
	}
	if self.checkCurrent(TOKEN_EOL) {
		_, err := self.advanceToken()
		return nil, err
	}

	command := &Command{
		Keyword:  self.currentToken.Kind,
		Depth:    indent.Depth(),
		Location: self.currentToken.Location,
	}
	switch command.Keyword {
	case TOKEN_IF, TOKEN_ELIF, TOKEN_WHILE:
		err = self.parseConditionHeader(command)
	case TOKEN_ELSE, TOKEN_TRY, TOKEN_FINALLY:
		err = self.parseBareHeader()
	case TOKEN_EXCEPT:
		err = self.parseExceptHeader(command)
	case TOKEN_FOR:
		err = self.parseForHeader(command)
	case TOKEN_DEF:
		err = self.parseDefHeader(command)
	case TOKEN_CLASS:
		err = self.parseClassHeader(command)
	case TOKEN_PASS, TOKEN_BREAK, TOKEN_CONTINUE, TOKEN_RETURN, TOKEN_RAISE,
		TOKEN_DEL, TOKEN_IMPORT, TOKEN_FROM:
		command.Statement, err = self.parseKeywordStatement(command.Location)
	default:
		command.Keyword = ""
		command.Statement, err = self.parseExpressionOrAssignment(command.Location)
	}
	if err != nil {
		return nil, err
	}
	return command, nil
}

func (self *Parser) parseHeaderEnd() error {
	if _, err := self.expectCurrent(TOKEN_COLON); err != nil {
		return err
	}
	return self.expectEndOfLine()
}

func (self *Parser) parseConditionHeader(command *Command) error {
	if _, err := self.advanceToken(); err != nil {
		return err
	}
	condition, err := self.ParseExpression()
	if err != nil {
		return err
	}
	command.Condition = condition
	return self.parseHeaderEnd()
}

func (self *Parser) parseBareHeader() error {
	if _, err := self.advanceToken(); err != nil {
		return err
	}
	return self.parseHeaderEnd()
}

func (self *Parser) parseExceptHeader(command *Command) error {
	if _, err := self.advanceToken(); err != nil {
		return err
	}
	if !self.checkCurrent(TOKEN_COLON) {
		class, err := self.ParseExpression(TOKEN_AS)
		if err != nil {
			return err
		}
		command.Condition = class
		if self.checkCurrent(TOKEN_AS) {
			if _, err := self.advanceToken(); err != nil {
				return err
			}
			if command.Name, err = self.expectIdentifier(); err != nil {
				return err
			}
		}
	}
	return self.parseHeaderEnd()
}

// Both `for target of iterable:` and `for target in iterable:` are
// accepted. The `in` form parses as a membership test which is split into
// its two sides.
func (self *Parser) parseForHeader(command *Command) error {
	if _, err := self.advanceToken(); err != nil {
		return err
	}
	location := self.currentToken.Location
	targets := []AstExpression{}
	for {
		target, err := self.ParseExpression(TOKEN_COMMA, TOKEN_OF)
		if err != nil {
			return err
		}
		targets = append(targets, target)
		if !self.checkCurrent(TOKEN_COMMA) {
			break
		}
		if _, err := self.advanceToken(); err != nil {
			return err
		}
	}

	if self.checkCurrent(TOKEN_OF) {
		if _, err := self.advanceToken(); err != nil {
			return err
		}
		iterable, err := self.parseExpressionList()
		if err != nil {
			return err
		}
		command.Iterable = iterable
	} else {
		last, ok := targets[len(targets)-1].(AstExpressionBinary)
		if !ok || last.Operator != TOKEN_IN {
			return syntaxError(location, "expected \"of\" or \"in\" in for statement")
		}
		targets[len(targets)-1] = last.Left
		command.Iterable = last.Right
	}

	if len(targets) == 1 {
		command.Target = targets[0]
	} else {
		command.Target = AstExpressionTuple{location, targets}
	}
	if err := validateTarget(command.Target); err != nil {
		return err
	}
	return self.parseHeaderEnd()
}

func (self *Parser) parseDefHeader(command *Command) error {
	if _, err := self.advanceToken(); err != nil {
		return err
	}
	name, err := self.expectIdentifier()
	if err != nil {
		return err
	}
	command.Name = name
	if _, err := self.expectCurrent(TOKEN_LPAREN); err != nil {
		return err
	}

	parameters := []AstParameter{}
	seen := map[string]bool{}
	defaults := false
	for !self.checkCurrent(TOKEN_RPAREN) {
		location := self.currentToken.Location
		name, err := self.expectIdentifier()
		if err != nil {
			return err
		}
		if seen[name] {
			return syntaxError(location, "duplicate argument %s in function definition", quote(name))
		}
		seen[name] = true

		parameter := AstParameter{Name: name}
		if self.checkCurrent(TOKEN_ASSIGN) {
			if _, err := self.advanceToken(); err != nil {
				return err
			}
			if parameter.Default, err = self.ParseExpression(TOKEN_COMMA); err != nil {
				return err
			}
			defaults = true
		} else if defaults {
			return syntaxError(location, "non-default argument %s follows default argument", quote(name))
		}
		parameters = append(parameters, parameter)

		if !self.checkCurrent(TOKEN_COMMA) {
			break
		}
		if _, err := self.advanceToken(); err != nil {
			return err
		}
	}
	if _, err := self.expectCurrent(TOKEN_RPAREN); err != nil {
		return err
	}
	command.Parameters = parameters
	return self.parseHeaderEnd()
}

func (self *Parser) parseClassHeader(command *Command) error {
	if _, err := self.advanceToken(); err != nil {
		return err
	}
	name, err := self.expectIdentifier()
	if err != nil {
		return err
	}
	command.Name = name
	if self.checkCurrent(TOKEN_LPAREN) {
		if _, err := self.advanceToken(); err != nil {
			return err
		}
		if !self.checkCurrent(TOKEN_RPAREN) {
			if command.Base, err = self.ParseExpression(); err != nil {
				return err
			}
		}
		if _, err := self.expectCurrent(TOKEN_RPAREN); err != nil {
			return err
		}
	}
	return self.parseHeaderEnd()
}

func (self *Parser) parseKeywordStatement(location *SourceLocation) (AstStatement, error) {
	keyword, err := self.advanceToken()
	if err != nil {
		return nil, err
	}

	var statement AstStatement
	switch keyword.Kind {
	case TOKEN_PASS:
		statement = AstStatementPass{location}
	case TOKEN_BREAK:
		statement = AstStatementBreak{location}
	case TOKEN_CONTINUE:
		statement = AstStatementContinue{location}
	case TOKEN_RETURN, TOKEN_RAISE:
		var value AstExpression
		if !self.checkCurrent(TOKEN_EOL) {
			if value, err = self.parseExpressionList(); err != nil {
				return nil, err
			}
		}
		if keyword.Kind == TOKEN_RETURN {
			statement = AstStatementReturn{location, value}
		} else {
			statement = AstStatementRaise{location, value}
		}
	case TOKEN_DEL:
		target, err := self.parseExpressionList()
		if err != nil {
			return nil, err
		}
		if err := validateTarget(target); err != nil {
			return nil, syntaxError(location, "cannot delete %s", describeExpression(target))
		}
		statement = AstStatementDel{location, target}
	case TOKEN_IMPORT:
		path, err := self.parseDottedName()
		if err != nil {
			return nil, err
		}
		alias := ""
		if self.checkCurrent(TOKEN_AS) {
			if _, err := self.advanceToken(); err != nil {
				return nil, err
			}
			if alias, err = self.expectIdentifier(); err != nil {
				return nil, err
			}
		}
		statement = AstStatementImport{location, path, alias}
	case TOKEN_FROM:
		path, err := self.parseDottedName()
		if err != nil {
			return nil, err
		}
		if _, err := self.expectCurrent(TOKEN_IMPORT); err != nil {
			return nil, err
		}
		if self.checkCurrent(TOKEN_MUL) {
			if _, err := self.advanceToken(); err != nil {
				return nil, err
			}
			statement = AstStatementFromImport{location, path, nil, true}
			break
		}
		names := []string{}
		for {
			name, err := self.expectIdentifier()
			if err != nil {
				if self.checkCurrent(TOKEN_MUL) {
					return nil, syntaxError(self.currentToken.Location, "\"*\" must be the only name imported")
				}
				return nil, err
			}
			names = append(names, name)
			if !self.checkCurrent(TOKEN_COMMA) {
				break
			}
			if _, err := self.advanceToken(); err != nil {
				return nil, err
			}
		}
		statement = AstStatementFromImport{location, path, names, false}
	default:
		return nil, InternalError{location, fmt.Sprintf("unhandled keyword statement %s", keyword.Kind)}
	}

	if err := self.expectEndOfLine(); err != nil {
		return nil, err
	}
	return statement, nil
}

func (self *Parser) parseExpressionOrAssignment(location *SourceLocation) (AstStatement, error) {
	expression, err := self.parseExpressionList(TOKEN_ASSIGN)
	if err != nil {
		return nil, err
	}

	if !self.checkCurrent(TOKEN_ASSIGN) {
		if err := self.expectEndOfLine(); err != nil {
			return nil, err
		}
		return AstStatementExpression{location, expression}, nil
	}

	if err := validateTarget(expression); err != nil {
		return nil, err
	}
	if _, err := self.advanceToken(); err != nil {
		return nil, err
	}
	value, err := self.parseExpressionList()
	if err != nil {
		return nil, err
	}
	if err := self.expectEndOfLine(); err != nil {
		return nil, err
	}
	return AstStatementAssign{location, expression, value}, nil
}

func (self *Parser) ParseProgram() (AstProgram, error) {
	location := self.currentToken.Location
	commands := []*Command{}
	for !self.checkCurrent(TOKEN_EOF) {
		command, err := self.ParseCommand()
		if err != nil {
			return AstProgram{}, err
		}
		if command != nil {
			commands = append(commands, command)
		}
	}

	blocks := blockParser{commands: commands}
	statements, err := blocks.parseProgram()
	if err != nil {
		return AstProgram{}, err
	}
	return AstProgram{location, statements}, nil
}

// Groups the flat command sequence into nested blocks by indentation.
type blockParser struct {
	commands      []*Command
	position      int
	loopDepth     int
	functionDepth int
}

func (self *blockParser) peek() *Command {
	if self.position >= len(self.commands) {
		return nil
	}
	return self.commands[self.position]
}

func (self *blockParser) next() *Command {
	command := self.peek()
	self.position += 1
	return command
}

// A continuation clause belonging to the block opened at depth.
func (self *blockParser) peekClause(depth int, keywords ...string) *Command {
	command := self.peek()
	if command == nil || command.Depth != depth || !slices.Contains(keywords, command.Keyword) {
		return nil
	}
	return command
}

func (self *blockParser) parseProgram() ([]AstStatement, error) {
	if first := self.peek(); first != nil && first.Depth != 0 {
		return nil, indentationError(first.Location, "unexpected indent")
	}
	return self.parseSequence(0)
}

func (self *blockParser) parseSequence(depth int) ([]AstStatement, error) {
	statements := []AstStatement{}
	for {
		command := self.peek()
		if command == nil || command.Depth < depth {
			return statements, nil
		}
		if command.Depth > depth {
			return nil, indentationError(command.Location, "unexpected indent")
		}

		var statement AstStatement
		var err error
		switch command.Keyword {
		case TOKEN_ELIF, TOKEN_ELSE, TOKEN_EXCEPT, TOKEN_FINALLY:
			return nil, syntaxError(command.Location, "invalid syntax: %s without a matching block", quote(command.Keyword))
		case TOKEN_IF:
			statement, err = self.parseIf()
		case TOKEN_WHILE:
			statement, err = self.parseWhile()
		case TOKEN_FOR:
			statement, err = self.parseFor()
		case TOKEN_TRY:
			statement, err = self.parseTry()
		case TOKEN_DEF:
			statement, err = self.parseDef()
		case TOKEN_CLASS:
			statement, err = self.parseClass()
		default:
			statement, err = self.parseSimple()
		}
		if err != nil {
			return nil, err
		}
		statements = append(statements, statement)
	}
}

func (self *blockParser) parseSimple() (AstStatement, error) {
	command := self.next()
	if command.isHeader() {
		return nil, InternalError{command.Location, fmt.Sprintf("block header %s parsed as a statement", command.Keyword)}
	}
	switch command.Statement.(type) {
	case AstStatementBreak, AstStatementContinue:
		if self.loopDepth == 0 {
			return nil, syntaxError(command.Location, "%s outside loop", quote(command.Keyword))
		}
	case AstStatementReturn:
		if self.functionDepth == 0 {
			return nil, syntaxError(command.Location, "\"return\" outside function")
		}
	}
	return command.Statement, nil
}

// The body of header: a sequence indented deeper than the header.
func (self *blockParser) parseBody(header *Command) ([]AstStatement, error) {
	first := self.peek()
	if first == nil || first.Depth <= header.Depth {
		location := header.Location
		if first != nil {
			location = first.Location
		}
		return nil, indentationError(location, "expected an indented block after %s statement on line %d", quote(header.Keyword), header.Location.Line)
	}
	body, err := self.parseSequence(first.Depth)
	if err != nil {
		return nil, err
	}
	if after := self.peek(); after != nil && after.Depth > header.Depth {
		return nil, indentationError(after.Location, "unindent does not match any outer indentation level")
	}
	return body, nil
}

func (self *blockParser) parseLoopBody(header *Command) ([]AstStatement, error) {
	self.loopDepth += 1
	defer func() { self.loopDepth -= 1 }()
	return self.parseBody(header)
}

func (self *blockParser) parseElse(header *Command) ([]AstStatement, error) {
	clause := self.peekClause(header.Depth, TOKEN_ELSE)
	if clause == nil {
		return nil, nil
	}
	self.next()
	return self.parseBody(clause)
}

func (self *blockParser) parseIf() (AstStatement, error) {
	header := self.next()
	statement := AstStatementIf{Location: header.Location}
	for clause := header; clause != nil; clause = self.peekClause(header.Depth, TOKEN_ELIF) {
		if clause != header {
			self.next()
		}
		body, err := self.parseBody(clause)
		if err != nil {
			return nil, err
		}
		statement.Branches = append(statement.Branches, AstConditionalBranch{clause.Location, clause.Condition, body})
	}
	var err error
	if statement.Else, err = self.parseElse(header); err != nil {
		return nil, err
	}
	return statement, nil
}

func (self *blockParser) parseWhile() (AstStatement, error) {
	header := self.next()
	body, err := self.parseLoopBody(header)
	if err != nil {
		return nil, err
	}
	orelse, err := self.parseElse(header)
	if err != nil {
		return nil, err
	}
	return AstStatementWhile{header.Location, header.Condition, body, orelse}, nil
}

func (self *blockParser) parseFor() (AstStatement, error) {
	header := self.next()
	body, err := self.parseLoopBody(header)
	if err != nil {
		return nil, err
	}
	orelse, err := self.parseElse(header)
	if err != nil {
		return nil, err
	}
	return AstStatementFor{header.Location, header.Target, header.Iterable, body, orelse}, nil
}

func (self *blockParser) parseTry() (AstStatement, error) {
	header := self.next()
	body, err := self.parseBody(header)
	if err != nil {
		return nil, err
	}
	statement := AstStatementTry{Location: header.Location, Body: body}

	for clause := self.peekClause(header.Depth, TOKEN_EXCEPT); clause != nil; clause = self.peekClause(header.Depth, TOKEN_EXCEPT) {
		if n := len(statement.Handlers); n > 0 && statement.Handlers[n-1].Class == nil {
			return nil, syntaxError(statement.Handlers[n-1].Location, "default \"except:\" must be last")
		}
		self.next()
		handlerBody, err := self.parseBody(clause)
		if err != nil {
			return nil, err
		}
		statement.Handlers = append(statement.Handlers, AstExceptHandler{clause.Location, clause.Condition, clause.Name, handlerBody})
	}

	if clause := self.peekClause(header.Depth, TOKEN_ELSE); clause != nil {
		if len(statement.Handlers) == 0 {
			return nil, syntaxError(clause.Location, "\"else\" in a try statement requires an \"except\" clause")
		}
		if statement.Else, err = self.parseElse(header); err != nil {
			return nil, err
		}
	}

	if clause := self.peekClause(header.Depth, TOKEN_FINALLY); clause != nil {
		self.next()
		if statement.Finally, err = self.parseBody(clause); err != nil {
			return nil, err
		}
	}

	if len(statement.Handlers) == 0 && statement.Finally == nil {
		return nil, syntaxError(header.Location, "expected \"except\" or \"finally\" block")
	}
	return statement, nil
}

func (self *blockParser) parseDef() (AstStatement, error) {
	header := self.next()
	loopDepth := self.loopDepth
	self.loopDepth = 0
	self.functionDepth += 1
	defer func() {
		self.loopDepth = loopDepth
		self.functionDepth -= 1
	}()

	body, err := self.parseBody(header)
	if err != nil {
		return nil, err
	}
	return AstStatementDef{header.Location, header.Name, header.Parameters, body}, nil
}

func (self *blockParser) parseClass() (AstStatement, error) {
	header := self.next()
	loopDepth, functionDepth := self.loopDepth, self.functionDepth
	self.loopDepth, self.functionDepth = 0, 0
	defer func() {
		self.loopDepth, self.functionDepth = loopDepth, functionDepth
	}()

	body, err := self.parseBody(header)
	if err != nil {
		return nil, err
	}
	return AstStatementClass{header.Location, header.Name, header.Base, body}, nil
}
