package minipy

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// One entry of the shift buffer: either a reduced expression or a token the
// reduce passes have not consumed yet.
type expressionItem struct {
	node  AstExpression // Optional
	token Token
}

func (self expressionItem) isNode() bool {
	return self.node != nil
}

func (self expressionItem) isToken(kind string) bool {
	return self.node == nil && self.token.Kind == kind
}

func (self expressionItem) location() *SourceLocation {
	if self.node != nil {
		return self.node.ExpressionLocation()
	}
	return self.token.Location
}

type precedenceLevel struct {
	operator string
	unary    bool
}

// Highest to lowest. Each level folds left to right until exhausted before
// the next level is considered.
var precedence = []precedenceLevel{
	{TOKEN_POW, false},
	{TOKEN_NEGATE, true},
	{TOKEN_MUL, false},
	{TOKEN_DIV, false},
	{TOKEN_MOD, false},
	{TOKEN_ADD, false},
	{TOKEN_SUB, false},
	{TOKEN_IS_NOT, false},
	{TOKEN_NOT_IN, false},
	{TOKEN_IS, false},
	{TOKEN_IN, false},
	{TOKEN_NE, false},
	{TOKEN_EQ, false},
	{TOKEN_LE, false},
	{TOKEN_LT, false},
	{TOKEN_GE, false},
	{TOKEN_GT, false},
	{TOKEN_NOT, true},
	{TOKEN_AND, false},
	{TOKEN_OR, false},
}

var operatorTokens = map[string]bool{
	TOKEN_POW: true, TOKEN_MUL: true, TOKEN_DIV: true, TOKEN_MOD: true,
	TOKEN_ADD: true, TOKEN_SUB: true, TOKEN_EQ: true, TOKEN_NE: true,
	TOKEN_LE: true, TOKEN_LT: true, TOKEN_GE: true, TOKEN_GT: true,
	TOKEN_IS: true, TOKEN_IN: true, TOKEN_NOT: true, TOKEN_AND: true,
	TOKEN_OR: true,
}

var closers = map[string]string{
	TOKEN_LPAREN:   TOKEN_RPAREN,
	TOKEN_LBRACKET: TOKEN_RBRACKET,
	TOKEN_LBRACE:   TOKEN_RBRACE,
}

func isCloser(kind string) bool {
	return kind == TOKEN_RPAREN || kind == TOKEN_RBRACKET || kind == TOKEN_RBRACE
}

// ParseExpression parses one expression starting at the current token. The
// token that terminated the expression is left current. Kinds listed in
// stop terminate the expression outside of brackets.
func (self *Parser) ParseExpression(stop ...string) (AstExpression, error) {
	location := self.currentToken.Location
	items, err := self.shiftExpression(nil, nil, stop)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, syntaxError(location, "expected expression, found %s", quote(self.currentToken.String()))
	}
	return reduceExpression(items)
}

func terminalNode(token Token) (AstExpression, error) {
	switch token.Kind {
	case TOKEN_IDENTIFIER:
		return AstExpressionIdentifier{token.Location, token.Literal}, nil
	case TOKEN_STRING:
		return AstExpressionString{token.Location, token.Literal}, nil
	case TOKEN_BOOLEAN:
		return AstExpressionBoolean{token.Location, token.Literal == "True"}, nil
	case TOKEN_NONE:
		return AstExpressionNone{token.Location}, nil
	case TOKEN_NUMBER:
		if strings.Contains(token.Literal, ".") {
			value, err := strconv.ParseFloat(token.Literal, 64)
			if err != nil {
				return nil, syntaxError(token.Location, "invalid number %s", token.Literal)
			}
			return AstExpressionFloat{token.Location, value}, nil
		}
		value, err := strconv.ParseInt(token.Literal, 10, 64)
		if err != nil {
			return nil, syntaxError(token.Location, "integer literal %s is too large", token.Literal)
		}
		return AstExpressionInteger{token.Location, value}, nil
	}
	return nil, syntaxError(token.Location, "unexpected %s", quote(token.String()))
}

func isTerminal(kind string) bool {
	switch kind {
	case TOKEN_IDENTIFIER, TOKEN_NUMBER, TOKEN_STRING, TOKEN_BOOLEAN, TOKEN_NONE:
		return true
	}
	return false
}

// Shift tokens into the buffer until a token cannot extend it. Inside a
// bracket group (opener non-nil) line ends are absorbed, the group's
// separators are kept as tokens, and anything else that cannot extend the
// buffer is an error naming the unclosed bracket.
func (self *Parser) shiftExpression(items []expressionItem, opener *Token, stop []string) ([]expressionItem, error) {
	for {
		token := self.currentToken
		if opener == nil && slices.Contains(stop, token.Kind) {
			return items, nil
		}

		if len(items) > 0 && items[len(items)-1].isToken(TOKEN_DOT) && token.Kind != TOKEN_IDENTIFIER {
			return nil, syntaxError(token.Location, "expected attribute name after \".\", found %s", quote(token.String()))
		}

		switch {
		case token.Kind == TOKEN_EOL || token.Kind == TOKEN_INDENT:
			if opener == nil {
				return items, nil
			}
			if _, err := self.advanceToken(); err != nil {
				return nil, err
			}
			continue

		case token.Kind == TOKEN_EOF:
			if opener != nil {
				return nil, unclosed(*opener)
			}
			return items, nil

		case closers[token.Kind] != "":
			grouped, err := self.shiftGroup(items)
			if err != nil {
				return nil, err
			}
			items = grouped
			continue

		case isCloser(token.Kind):
			if opener != nil && closers[opener.Kind] != token.Kind {
				return nil, syntaxError(token.Location, "closing %s does not match opening %s on line %d", quote(token.Kind), quote(opener.Kind), opener.Location.Line)
			}
			return items, nil

		case isTerminal(token.Kind):
			node, err := terminalNode(token)
			if err != nil {
				return nil, err
			}
			if _, err := self.advanceToken(); err != nil {
				return nil, err
			}
			items, err = appendOperand(items, node, token)
			if err != nil {
				return nil, err
			}
			continue

		case operatorTokens[token.Kind] || token.Kind == TOKEN_DOT:
			// Keep going.

		case token.Kind == TOKEN_COMMA:
			if opener == nil && slices.Contains(stop, token.Kind) {
				return items, nil
			}

		case token.Kind == TOKEN_COLON:
			if opener == nil || opener.Kind == TOKEN_LPAREN {
				if opener != nil {
					return nil, self.unexpectedInGroup(token, *opener)
				}
				return items, nil
			}

		case token.Kind == TOKEN_ASSIGN:
			if opener == nil || opener.Kind != TOKEN_LPAREN {
				if opener != nil {
					return nil, self.unexpectedInGroup(token, *opener)
				}
				return items, nil
			}

		case token.Kind == TOKEN_FOR || token.Kind == TOKEN_OF || token.Kind == TOKEN_IF:
			if opener == nil || opener.Kind != TOKEN_LBRACKET {
				if opener != nil {
					return nil, self.unexpectedInGroup(token, *opener)
				}
				return items, nil
			}

		default:
			if opener != nil {
				return nil, self.unexpectedInGroup(token, *opener)
			}
			return items, nil
		}

		items = append(items, expressionItem{token: token})
		if _, err := self.advanceToken(); err != nil {
			return nil, err
		}
	}
}

func unclosed(opener Token) error {
	return syntaxError(opener.Location, "%s was never closed", quote(opener.Kind))
}

// Blame token when the group it interrupts is closed later on the same
// line, and the opener otherwise.
func (self *Parser) unexpectedInGroup(token Token, opener Token) error {
	if self.closedLaterOnLine(opener) {
		return syntaxError(token.Location, "unexpected %s", quote(token.String()))
	}
	return unclosed(opener)
}

// Scans ahead on a copy of the lexer; the parser's own position is left
// untouched.
func (self *Parser) closedLaterOnLine(opener Token) bool {
	scan := *self.lexer
	scan.location = &SourceLocation{scan.location.File, scan.location.Line}
	depth := 1
	for {
		token, err := scan.NextToken()
		if err != nil || token.Kind == TOKEN_EOL || token.Kind == TOKEN_EOF {
			return false
		}
		switch {
		case closers[token.Kind] != "":
			depth += 1
		case isCloser(token.Kind):
			depth -= 1
			if depth == 0 {
				return token.Kind == closers[opener.Kind]
			}
		}
	}
}

// An operand directly after `node .` completes an attribute access.
func appendOperand(items []expressionItem, node AstExpression, token Token) ([]expressionItem, error) {
	n := len(items)
	if n > 0 && items[n-1].isToken(TOKEN_DOT) {
		if n < 2 || !items[n-2].isNode() {
			return nil, syntaxError(items[n-1].token.Location, "invalid syntax: \".\" without an object")
		}
		attribute := AstExpressionAttribute{items[n-1].token.Location, items[n-2].node, token.Literal}
		return append(items[:n-2], expressionItem{node: attribute}), nil
	}
	return append(items, expressionItem{node: node}), nil
}

// Shift a whole bracket group, reduce it on its closing token, and fold it
// into the buffer. A group directly following a reduced expression is a
// call, index or slice of that expression.
func (self *Parser) shiftGroup(items []expressionItem) ([]expressionItem, error) {
	opener, err := self.advanceToken()
	if err != nil {
		return nil, err
	}
	inner, err := self.shiftExpression(nil, &opener, nil)
	if err != nil {
		return nil, err
	}
	if _, err := self.expectCurrent(closers[opener.Kind]); err != nil {
		return nil, err
	}

	n := len(items)
	postfix := n > 0 && items[n-1].isNode()

	var node AstExpression
	switch {
	case opener.Kind == TOKEN_LPAREN && postfix:
		node, err = reduceCall(opener, items[n-1].node, inner)
	case opener.Kind == TOKEN_LPAREN:
		node, err = reduceParenthesized(opener, inner)
	case opener.Kind == TOKEN_LBRACKET && postfix:
		node, err = reduceSubscript(opener, items[n-1].node, inner)
	case opener.Kind == TOKEN_LBRACKET:
		node, err = reduceBracketDisplay(opener, inner)
	default:
		node, err = reduceBraceDisplay(opener, inner)
	}
	if err != nil {
		return nil, err
	}

	if postfix {
		items[n-1] = expressionItem{node: node}
		return items, nil
	}
	return append(items, expressionItem{node: node}), nil
}

func splitItems(items []expressionItem, separator string) [][]expressionItem {
	segments := [][]expressionItem{}
	start := 0
	for i, item := range items {
		if item.isToken(separator) {
			segments = append(segments, items[start:i])
			start = i + 1
		}
	}
	return append(segments, items[start:])
}

func containsToken(items []expressionItem, kind string) bool {
	return slices.ContainsFunc(items, func(item expressionItem) bool { return item.isToken(kind) })
}

// Comma separated elements; a trailing comma is allowed. Reports whether
// at least one comma was present.
func reduceElements(opener Token, inner []expressionItem) ([]AstExpression, bool, error) {
	if len(inner) == 0 {
		return []AstExpression{}, false, nil
	}
	segments := splitItems(inner, TOKEN_COMMA)
	if len(segments) > 1 && len(segments[len(segments)-1]) == 0 {
		segments = segments[:len(segments)-1]
	}
	elements := make([]AstExpression, len(segments))
	for i, segment := range segments {
		if len(segment) == 0 {
			return nil, false, syntaxError(opener.Location, "invalid syntax: empty element in %s", quote(opener.Kind+closers[opener.Kind]))
		}
		element, err := reduceExpression(segment)
		if err != nil {
			return nil, false, err
		}
		elements[i] = element
	}
	return elements, containsToken(inner, TOKEN_COMMA), nil
}

func reduceParenthesized(opener Token, inner []expressionItem) (AstExpression, error) {
	elements, comma, err := reduceElements(opener, inner)
	if err != nil {
		return nil, err
	}
	if len(elements) == 1 && !comma {
		return AstExpressionParened{opener.Location, elements[0]}, nil
	}
	return AstExpressionTuple{opener.Location, elements}, nil
}

func reduceCall(opener Token, callee AstExpression, inner []expressionItem) (AstExpression, error) {
	arguments := []AstArgument{}
	if len(inner) == 0 {
		return AstExpressionCall{opener.Location, callee, arguments}, nil
	}

	segments := splitItems(inner, TOKEN_COMMA)
	if len(segments) > 1 && len(segments[len(segments)-1]) == 0 {
		segments = segments[:len(segments)-1]
	}
	keywords := false
	for _, segment := range segments {
		if len(segment) == 0 {
			return nil, syntaxError(opener.Location, "invalid syntax: empty argument")
		}
		if len(segment) >= 2 && segment[1].isToken(TOKEN_ASSIGN) {
			name, ok := segment[0].node.(AstExpressionIdentifier)
			if !ok {
				return nil, syntaxError(segment[1].token.Location, "keyword argument name must be an identifier")
			}
			value, err := reduceArgument(segment[2:], segment[1].token)
			if err != nil {
				return nil, err
			}
			arguments = append(arguments, AstArgument{name.Name, value})
			keywords = true
			continue
		}
		if keywords {
			return nil, syntaxError(segment[0].location(), "positional argument follows keyword argument")
		}
		value, err := reduceArgument(segment, opener)
		if err != nil {
			return nil, err
		}
		arguments = append(arguments, AstArgument{"", value})
	}
	return AstExpressionCall{opener.Location, callee, arguments}, nil
}

func reduceArgument(segment []expressionItem, at Token) (AstExpression, error) {
	if len(segment) == 0 {
		return nil, syntaxError(at.Location, "expected expression after %s", quote(at.Kind))
	}
	if i := slices.IndexFunc(segment, func(item expressionItem) bool { return item.isToken(TOKEN_ASSIGN) }); i >= 0 {
		return nil, syntaxError(segment[i].token.Location, "invalid syntax: unexpected \"=\"")
	}
	return reduceExpression(segment)
}

func reduceSubscript(opener Token, object AstExpression, inner []expressionItem) (AstExpression, error) {
	if len(inner) == 0 {
		return nil, syntaxError(opener.Location, "expected index between \"[]\"")
	}
	if !containsToken(inner, TOKEN_COLON) {
		elements, comma, err := reduceElements(opener, inner)
		if err != nil {
			return nil, err
		}
		if comma {
			return AstExpressionIndex{opener.Location, object, AstExpressionTuple{opener.Location, elements}}, nil
		}
		return AstExpressionIndex{opener.Location, object, elements[0]}, nil
	}

	parts := splitItems(inner, TOKEN_COLON)
	if len(parts) > 3 {
		return nil, syntaxError(opener.Location, "a slice takes at most three positions")
	}
	bounds := []AstExpression{}
	for _, part := range parts {
		if len(part) == 0 {
			bounds = append(bounds, AstExpressionEmpty{opener.Location})
			continue
		}
		bound, err := reduceExpression(part)
		if err != nil {
			return nil, err
		}
		bounds = append(bounds, bound)
	}
	if len(bounds) == 2 {
		bounds = append(bounds, AstExpressionEmpty{opener.Location})
	}
	return AstExpressionSlice{opener.Location, object, bounds[0], bounds[1], bounds[2]}, nil
}

func reduceBracketDisplay(opener Token, inner []expressionItem) (AstExpression, error) {
	loop := slices.IndexFunc(inner, func(item expressionItem) bool {
		return item.isToken(TOKEN_FOR) || item.isToken(TOKEN_OF)
	})
	if loop < 0 {
		elements, _, err := reduceElements(opener, inner)
		if err != nil {
			return nil, err
		}
		return AstExpressionList{opener.Location, elements}, nil
	}

	if loop == 0 {
		return nil, syntaxError(opener.Location, "list comprehension needs an output expression")
	}
	output, err := reduceExpression(inner[:loop])
	if err != nil {
		return nil, err
	}

	clause := inner[loop+1:]
	var filter AstExpression
	if i := slices.IndexFunc(clause, func(item expressionItem) bool { return item.isToken(TOKEN_IF) }); i >= 0 {
		if i == len(clause)-1 {
			return nil, syntaxError(clause[i].token.Location, "expected condition after \"if\"")
		}
		filter, err = reduceExpression(clause[i+1:])
		if err != nil {
			return nil, err
		}
		clause = clause[:i]
	}
	if len(clause) == 0 {
		return nil, syntaxError(inner[loop].token.Location, "expected \"target in iterable\" in list comprehension")
	}

	membership, err := reduceExpression(clause)
	if err != nil {
		return nil, err
	}
	binary, ok := membership.(AstExpressionBinary)
	if !ok || binary.Operator != TOKEN_IN {
		return nil, syntaxError(inner[loop].token.Location, "expected \"target in iterable\" in list comprehension")
	}
	if err := validateTarget(binary.Left); err != nil {
		return nil, err
	}
	return AstExpressionListComprehension{opener.Location, output, binary.Left, binary.Right, filter}, nil
}

func reduceBraceDisplay(opener Token, inner []expressionItem) (AstExpression, error) {
	if len(inner) == 0 {
		return AstExpressionDict{opener.Location, []AstDictPair{}}, nil
	}
	if !containsToken(inner, TOKEN_COLON) {
		elements, _, err := reduceElements(opener, inner)
		if err != nil {
			return nil, err
		}
		return AstExpressionSet{opener.Location, elements}, nil
	}

	segments := splitItems(inner, TOKEN_COMMA)
	if len(segments) > 1 && len(segments[len(segments)-1]) == 0 {
		segments = segments[:len(segments)-1]
	}
	pairs := []AstDictPair{}
	for _, segment := range segments {
		parts := splitItems(segment, TOKEN_COLON)
		if len(parts) != 2 || len(parts[0]) == 0 || len(parts[1]) == 0 {
			return nil, syntaxError(opener.Location, "every dict display entry needs the form \"key: value\"")
		}
		key, err := reduceExpression(parts[0])
		if err != nil {
			return nil, err
		}
		value, err := reduceExpression(parts[1])
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, AstDictPair{key, value})
	}
	return AstExpressionDict{opener.Location, pairs}, nil
}

// Reduce a flat buffer of operands and operator tokens into one expression.
func reduceExpression(items []expressionItem) (AstExpression, error) {
	items = slices.DeleteFunc(slices.Clone(items), func(item expressionItem) bool {
		return item.isToken(TOKEN_EOL) || item.isToken(TOKEN_INDENT)
	})
	items = fuseOperators(items)
	markNegation(items)

	for _, level := range precedence {
		var err error
		if level.unary {
			items, err = foldUnary(items, level.operator)
		} else {
			items, err = foldBinary(items, level.operator)
		}
		if err != nil {
			return nil, err
		}
	}

	if len(items) == 1 && items[0].isNode() {
		return items[0].node, nil
	}
	for _, item := range items {
		if item.isToken(TOKEN_COMMA) {
			return nil, syntaxError(item.token.Location, "invalid syntax: did you mean a tuple? Add parentheses")
		}
	}
	for i, item := range items {
		if !item.isNode() {
			return nil, syntaxError(item.token.Location, "invalid syntax: unexpected %s", quote(item.token.String()))
		}
		if i > 0 {
			return nil, syntaxError(item.location(), "invalid syntax: two expressions without an operator")
		}
	}
	return nil, syntaxError(nil, "invalid syntax")
}

// `is` + `not` becomes is-not, `not` + `in` becomes not-in.
func fuseOperators(items []expressionItem) []expressionItem {
	fused := []expressionItem{}
	for i := 0; i < len(items); i += 1 {
		item := items[i]
		if i+1 < len(items) {
			next := items[i+1]
			if item.isToken(TOKEN_IS) && next.isToken(TOKEN_NOT) {
				item.token.Kind = TOKEN_IS_NOT
				fused = append(fused, item)
				i += 1
				continue
			}
			if item.isToken(TOKEN_NOT) && next.isToken(TOKEN_IN) {
				item.token.Kind = TOKEN_NOT_IN
				fused = append(fused, item)
				i += 1
				continue
			}
		}
		fused = append(fused, item)
	}
	return fused
}

// A minus is negation when it starts the segment or follows an operator.
func markNegation(items []expressionItem) {
	for i := range items {
		if items[i].isToken(TOKEN_SUB) && (i == 0 || !items[i-1].isNode()) {
			items[i].token.Kind = TOKEN_NEGATE
		}
	}
}

func foldUnaryAt(items []expressionItem, i int) ([]expressionItem, error) {
	operator := items[i].token
	if i+1 >= len(items) {
		return nil, syntaxError(operator.Location, "expected operand after %s", quote(operatorText(operator.Kind)))
	}
	if items[i+1].isToken(operator.Kind) {
		var err error
		items, err = foldUnaryAt(items, i+1)
		if err != nil {
			return nil, err
		}
	}
	if !items[i+1].isNode() {
		return nil, syntaxError(operator.Location, "expected operand after %s", quote(operatorText(operator.Kind)))
	}
	node := AstExpressionUnary{operator.Location, operator.Kind, items[i+1].node}
	return slices.Replace(items, i, i+2, expressionItem{node: node}), nil
}

func foldUnary(items []expressionItem, operator string) ([]expressionItem, error) {
	for {
		i := slices.IndexFunc(items, func(item expressionItem) bool { return item.isToken(operator) })
		if i < 0 {
			return items, nil
		}
		if i > 0 && items[i-1].isNode() {
			return nil, syntaxError(items[i].token.Location, "invalid syntax: unexpected %s", quote(operatorText(operator)))
		}
		var err error
		items, err = foldUnaryAt(items, i)
		if err != nil {
			return nil, err
		}
	}
}

func foldBinary(items []expressionItem, operator string) ([]expressionItem, error) {
	for {
		i := slices.IndexFunc(items, func(item expressionItem) bool { return item.isToken(operator) })
		if i < 0 {
			return items, nil
		}
		token := items[i].token
		if i == 0 || !items[i-1].isNode() {
			return nil, syntaxError(token.Location, "expected operand before %s", quote(operatorText(operator)))
		}
		if i+1 < len(items) && items[i+1].isToken(TOKEN_NEGATE) {
			// Only reachable for `**`, which binds tighter than negation.
			var err error
			items, err = foldUnaryAt(items, i+1)
			if err != nil {
				return nil, err
			}
		}
		if i+1 >= len(items) || !items[i+1].isNode() {
			return nil, syntaxError(token.Location, "expected operand after %s", quote(operatorText(operator)))
		}
		node := AstExpressionBinary{token.Location, operator, items[i-1].node, items[i+1].node}
		items = slices.Replace(items, i-1, i+2, expressionItem{node: node})
	}
}

func operatorText(kind string) string {
	if kind == TOKEN_NEGATE {
		return TOKEN_SUB
	}
	return kind
}

// Assignable shapes: names, attributes, subscripts, and parenthesized or
// displayed groups of those.
func validateTarget(target AstExpression) error {
	switch node := target.(type) {
	case AstExpressionIdentifier, AstExpressionAttribute, AstExpressionIndex, AstExpressionSlice:
		return nil
	case AstExpressionParened:
		return validateTarget(node.Expression)
	case AstExpressionTuple:
		for _, element := range node.Elements {
			if err := validateTarget(element); err != nil {
				return err
			}
		}
		return nil
	case AstExpressionList:
		for _, element := range node.Elements {
			if err := validateTarget(element); err != nil {
				return err
			}
		}
		return nil
	}
	return syntaxError(target.ExpressionLocation(), "cannot assign to %s", describeExpression(target))
}

func describeExpression(node AstExpression) string {
	switch node.(type) {
	case AstExpressionInteger, AstExpressionFloat, AstExpressionString, AstExpressionBoolean, AstExpressionNone:
		return "literal"
	case AstExpressionCall:
		return "function call"
	case AstExpressionBinary, AstExpressionUnary:
		return "expression"
	case AstExpressionListComprehension:
		return "list comprehension"
	case AstExpressionDict, AstExpressionSet:
		return "display"
	}
	return fmt.Sprintf("%T", node)
}
