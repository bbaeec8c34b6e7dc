package minipy

type AstExpression interface {
	ExpressionLocation() *SourceLocation
	Eval(*Context, *Environment) (*Thing, error)
}

type AstStatement interface {
	StatementLocation() *SourceLocation
	Eval(*Context, *Environment) (ControlFlow, error)
}

// Marker for statements that record a stack frame when an exception passes
// through them. Block statements record frames for their header
// expressions themselves.
type astCommand interface {
	AstStatement
	command()
}

type AstProgram struct {
	Location   *SourceLocation // Optional
	Statements []AstStatement
}

// Expressions

type AstExpressionInteger struct {
	Location *SourceLocation
	Value    int64
}

type AstExpressionFloat struct {
	Location *SourceLocation
	Value    float64
}

type AstExpressionString struct {
	Location *SourceLocation
	Value    string
}

type AstExpressionBoolean struct {
	Location *SourceLocation
	Value    bool
}

type AstExpressionNone struct {
	Location *SourceLocation
}

type AstExpressionIdentifier struct {
	Location *SourceLocation
	Name     string
}

// Placeholder for an omitted slice bound.
type AstExpressionEmpty struct {
	Location *SourceLocation
}

type AstExpressionParened struct {
	Location   *SourceLocation
	Expression AstExpression
}

type AstExpressionTuple struct {
	Location *SourceLocation
	Elements []AstExpression
}

type AstExpressionList struct {
	Location *SourceLocation
	Elements []AstExpression
}

type AstExpressionSet struct {
	Location *SourceLocation
	Elements []AstExpression
}

type AstDictPair struct {
	Key   AstExpression
	Value AstExpression
}

type AstExpressionDict struct {
	Location *SourceLocation
	Pairs    []AstDictPair
}

// Name is empty for positional arguments.
type AstArgument struct {
	Name  string
	Value AstExpression
}

type AstExpressionCall struct {
	Location  *SourceLocation
	Callee    AstExpression
	Arguments []AstArgument
}

type AstExpressionAttribute struct {
	Location *SourceLocation
	Object   AstExpression
	Name     string
}

type AstExpressionIndex struct {
	Location *SourceLocation
	Object   AstExpression
	Index    AstExpression
}

type AstExpressionSlice struct {
	Location *SourceLocation
	Object   AstExpression
	Start    AstExpression
	Stop     AstExpression
	Step     AstExpression
}

type AstExpressionBinary struct {
	Location *SourceLocation
	Operator string
	Left     AstExpression
	Right    AstExpression
}

type AstExpressionUnary struct {
	Location *SourceLocation
	Operator string
	Operand  AstExpression
}

type AstExpressionListComprehension struct {
	Location *SourceLocation
	Output   AstExpression
	Target   AstExpression
	Source   AstExpression
	Filter   AstExpression // Optional
}

// Simple statements

type AstStatementExpression struct {
	Location   *SourceLocation
	Expression AstExpression
}

type AstStatementAssign struct {
	Location *SourceLocation
	Target   AstExpression
	Value    AstExpression
}

type AstStatementPass struct {
	Location *SourceLocation
}

type AstStatementBreak struct {
	Location *SourceLocation
}

type AstStatementContinue struct {
	Location *SourceLocation
}

type AstStatementReturn struct {
	Location *SourceLocation
	Value    AstExpression // Optional
}

type AstStatementRaise struct {
	Location *SourceLocation
	Value    AstExpression // Optional: re-raise the handled exception.
}

type AstStatementDel struct {
	Location *SourceLocation
	Target   AstExpression
}

type AstStatementImport struct {
	Location *SourceLocation
	Path     []string
	Alias    string // Optional
}

type AstStatementFromImport struct {
	Location *SourceLocation
	Path     []string
	Names    []string
	Star     bool
}

// Blocks

type AstConditionalBranch struct {
	Location  *SourceLocation
	Condition AstExpression
	Body      []AstStatement
}

type AstStatementIf struct {
	Location *SourceLocation
	Branches []AstConditionalBranch
	Else     []AstStatement // Optional
}

type AstStatementWhile struct {
	Location  *SourceLocation
	Condition AstExpression
	Body      []AstStatement
	Else      []AstStatement // Optional
}

type AstStatementFor struct {
	Location *SourceLocation
	Target   AstExpression
	Iterable AstExpression
	Body     []AstStatement
	Else     []AstStatement // Optional
}

type AstExceptHandler struct {
	Location *SourceLocation
	Class    AstExpression // Optional: a bare except catches any Exception.
	Name     string        // Optional
	Body     []AstStatement
}

type AstStatementTry struct {
	Location *SourceLocation
	Body     []AstStatement
	Handlers []AstExceptHandler
	Else     []AstStatement // Optional
	Finally  []AstStatement // Optional
}

type AstParameter struct {
	Name    string
	Default AstExpression // Optional
}

type AstStatementDef struct {
	Location   *SourceLocation
	Name       string
	Parameters []AstParameter
	Body       []AstStatement
}

type AstStatementClass struct {
	Location *SourceLocation
	Name     string
	Base     AstExpression // Optional
	Body     []AstStatement
}

func (self AstExpressionInteger) ExpressionLocation() *SourceLocation    { return self.Location }
func (self AstExpressionFloat) ExpressionLocation() *SourceLocation      { return self.Location }
func (self AstExpressionString) ExpressionLocation() *SourceLocation     { return self.Location }
func (self AstExpressionBoolean) ExpressionLocation() *SourceLocation    { return self.Location }
func (self AstExpressionNone) ExpressionLocation() *SourceLocation       { return self.Location }
func (self AstExpressionIdentifier) ExpressionLocation() *SourceLocation { return self.Location }
func (self AstExpressionEmpty) ExpressionLocation() *SourceLocation      { return self.Location }
func (self AstExpressionParened) ExpressionLocation() *SourceLocation    { return self.Location }
func (self AstExpressionTuple) ExpressionLocation() *SourceLocation      { return self.Location }
func (self AstExpressionList) ExpressionLocation() *SourceLocation       { return self.Location }
func (self AstExpressionSet) ExpressionLocation() *SourceLocation        { return self.Location }
func (self AstExpressionDict) ExpressionLocation() *SourceLocation       { return self.Location }
func (self AstExpressionCall) ExpressionLocation() *SourceLocation       { return self.Location }
func (self AstExpressionAttribute) ExpressionLocation() *SourceLocation  { return self.Location }
func (self AstExpressionIndex) ExpressionLocation() *SourceLocation      { return self.Location }
func (self AstExpressionSlice) ExpressionLocation() *SourceLocation      { return self.Location }
func (self AstExpressionBinary) ExpressionLocation() *SourceLocation     { return self.Location }
func (self AstExpressionUnary) ExpressionLocation() *SourceLocation      { return self.Location }

func (self AstExpressionListComprehension) ExpressionLocation() *SourceLocation {
	return self.Location
}

func (self AstStatementExpression) StatementLocation() *SourceLocation { return self.Location }
func (self AstStatementAssign) StatementLocation() *SourceLocation     { return self.Location }
func (self AstStatementPass) StatementLocation() *SourceLocation       { return self.Location }
func (self AstStatementBreak) StatementLocation() *SourceLocation      { return self.Location }
func (self AstStatementContinue) StatementLocation() *SourceLocation   { return self.Location }
func (self AstStatementReturn) StatementLocation() *SourceLocation     { return self.Location }
func (self AstStatementRaise) StatementLocation() *SourceLocation      { return self.Location }
func (self AstStatementDel) StatementLocation() *SourceLocation        { return self.Location }
func (self AstStatementImport) StatementLocation() *SourceLocation     { return self.Location }
func (self AstStatementFromImport) StatementLocation() *SourceLocation { return self.Location }
func (self AstStatementIf) StatementLocation() *SourceLocation         { return self.Location }
func (self AstStatementWhile) StatementLocation() *SourceLocation      { return self.Location }
func (self AstStatementFor) StatementLocation() *SourceLocation        { return self.Location }
func (self AstStatementTry) StatementLocation() *SourceLocation        { return self.Location }
func (self AstStatementDef) StatementLocation() *SourceLocation        { return self.Location }
func (self AstStatementClass) StatementLocation() *SourceLocation      { return self.Location }

func (self AstStatementExpression) command() {}
func (self AstStatementAssign) command()     {}
func (self AstStatementPass) command()       {}
func (self AstStatementBreak) command()      {}
func (self AstStatementContinue) command()   {}
func (self AstStatementReturn) command()     {}
func (self AstStatementRaise) command()      {}
func (self AstStatementDel) command()        {}
func (self AstStatementImport) command()     {}
func (self AstStatementFromImport) command() {}
