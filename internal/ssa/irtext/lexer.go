package irtext

import (
	"fmt"
	"strconv"

	"github.com/tangzhangming/ssaopt/internal/errors"
	"github.com/tangzhangming/ssaopt/internal/ssa"
)

// ============================================================================
// Token
// ============================================================================

// TokenType token 类型
type TokenType int

const (
	EOF TokenType = iota
	NEWLINE
	IDENT
	INT
	STRING
	LPAREN
	RPAREN
	LBRACE
	RBRACE
	LBRACKET
	RBRACKET
	COMMA
	COLON
	ASSIGN
	BANG
	STAR
	AMP
	AMPAMP
)

var tokenNames = [...]string{
	EOF:      "end of file",
	NEWLINE:  "newline",
	IDENT:    "identifier",
	INT:      "integer",
	STRING:   "string",
	LPAREN:   "'('",
	RPAREN:   "')'",
	LBRACE:   "'{'",
	RBRACE:   "'}'",
	LBRACKET: "'['",
	RBRACKET: "']'",
	COMMA:    "','",
	COLON:    "':'",
	ASSIGN:   "'='",
	BANG:     "'!'",
	STAR:     "'*'",
	AMP:      "'&'",
	AMPAMP:   "'&&'",
}

func (t TokenType) String() string {
	if int(t) < len(tokenNames) {
		return tokenNames[t]
	}
	return fmt.Sprintf("token(%d)", int(t))
}

// Token 词法单元
type Token struct {
	Type    TokenType
	Literal string
	Pos     ssa.Pos
}

func (t Token) String() string {
	switch t.Type {
	case IDENT, INT:
		return fmt.Sprintf("'%s'", t.Literal)
	case STRING:
		return strconv.Quote(t.Literal)
	}
	return t.Type.String()
}

// ============================================================================
// Lexer - 词法分析器
// ============================================================================
//
// 文本 SSA 以行为单位，换行是有意义的 token（连续空行折叠为一个）。
// 注释以 ';' 或 '//' 开头，直到行尾。
//
// ============================================================================

// Lexer 词法分析器
type Lexer struct {
	source   string
	filename string
	tokens   []Token

	start     int
	current   int
	line      int
	lineStart int

	errors []*errors.CompileError
}

// NewLexer 创建词法分析器
func NewLexer(source, filename string) *Lexer {
	return &Lexer{
		source:   source,
		filename: filename,
		tokens:   make([]Token, 0, len(source)/4+16),
		line:     1,
	}
}

// ScanTokens 扫描所有 token，最后一个总是 EOF
func (l *Lexer) ScanTokens() []Token {
	for !l.isAtEnd() {
		l.start = l.current
		l.scanToken()
	}
	l.start = l.current
	l.addToken(NEWLINE)
	l.addToken(EOF)
	return l.tokens
}

// Errors 返回所有词法错误
func (l *Lexer) Errors() []*errors.CompileError {
	return l.errors
}

func (l *Lexer) scanToken() {
	ch := l.advance()
	switch ch {
	case ' ', '\t', '\r':
	case '\n':
		l.addToken(NEWLINE)
		l.line++
		l.lineStart = l.current
	case ';':
		l.lineComment()
	case '/':
		if l.match('/') {
			l.lineComment()
		} else {
			l.error(errors.E0101, ch)
		}
	case '(':
		l.addToken(LPAREN)
	case ')':
		l.addToken(RPAREN)
	case '{':
		l.addToken(LBRACE)
	case '}':
		l.addToken(RBRACE)
	case '[':
		l.addToken(LBRACKET)
	case ']':
		l.addToken(RBRACKET)
	case ',':
		l.addToken(COMMA)
	case ':':
		l.addToken(COLON)
	case '=':
		l.addToken(ASSIGN)
	case '!':
		l.addToken(BANG)
	case '*':
		l.addToken(STAR)
	case '&':
		if l.match('&') {
			l.addToken(AMPAMP)
		} else {
			l.addToken(AMP)
		}
	case '"':
		l.scanString()
	case '-':
		if isDigit(l.peek()) {
			l.number()
		} else {
			l.error(errors.E0101, ch)
		}
	default:
		switch {
		case isDigit(ch):
			l.number()
		case isAlpha(ch):
			l.identifier()
		default:
			l.error(errors.E0101, ch)
		}
	}
}

func (l *Lexer) lineComment() {
	for !l.isAtEnd() && l.peek() != '\n' {
		l.current++
	}
}

func (l *Lexer) identifier() {
	for isAlpha(l.peek()) || isDigit(l.peek()) || l.peek() == '.' {
		l.current++
	}
	l.addToken(IDENT)
}

func (l *Lexer) number() {
	for isDigit(l.peek()) {
		l.current++
	}
	lit := l.source[l.start:l.current]
	if _, err := strconv.ParseInt(lit, 10, 64); err != nil {
		l.error(errors.E0103, lit)
		return
	}
	l.addToken(INT)
}

func (l *Lexer) scanString() {
	for !l.isAtEnd() && l.peek() != '"' && l.peek() != '\n' {
		if l.peek() == '\\' {
			l.current++
		}
		l.current++
	}
	if l.isAtEnd() || l.peek() != '"' {
		l.error(errors.E0102)
		return
	}
	l.current++
	text, err := strconv.Unquote(l.source[l.start:l.current])
	if err != nil {
		l.error(errors.E0102)
		return
	}
	l.tokens = append(l.tokens, Token{Type: STRING, Literal: text, Pos: l.startPos()})
}

// ============================================================================
// 辅助方法
// ============================================================================

func (l *Lexer) addToken(t TokenType) {
	// 折叠连续的换行
	if t == NEWLINE && (len(l.tokens) == 0 || l.tokens[len(l.tokens)-1].Type == NEWLINE) {
		return
	}
	l.tokens = append(l.tokens, Token{
		Type:    t,
		Literal: l.source[l.start:l.current],
		Pos:     l.startPos(),
	})
}

func (l *Lexer) startPos() ssa.Pos {
	return ssa.Pos{Line: l.line, Col: l.start - l.lineStart + 1}
}

func (l *Lexer) error(code string, args ...interface{}) {
	pos := l.startPos()
	l.errors = append(l.errors, errors.NewCompileError(code, l.filename, pos.Line, pos.Col, args...))
}

func (l *Lexer) isAtEnd() bool {
	return l.current >= len(l.source)
}

func (l *Lexer) advance() byte {
	ch := l.source[l.current]
	l.current++
	return ch
}

func (l *Lexer) peek() byte {
	if l.isAtEnd() {
		return 0
	}
	return l.source[l.current]
}

func (l *Lexer) match(expected byte) bool {
	if l.isAtEnd() || l.source[l.current] != expected {
		return false
	}
	l.current++
	return true
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isAlpha(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_'
}
