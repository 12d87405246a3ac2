package formula

import (
	"fmt"
	"strconv"
	"strings"
)

// knownFunctions maps a formula scalar function name to the identically
// named CEL function celexpr registers; the compiler only needs to check
// arity here, since celexpr's type checker rejects bad argument types.
var knownFunctions = map[string]int{
	"round":  1,
	"upper":  1,
	"lower":  1,
	"length": 1,
	"year":   1,
	"month":  1,
	"day":    1,
}

// Compile translates a bracketed-formula expression into an equivalent CEL
// expression string runnable by celexpr. Errors carry the source offset of
// the failing token.
func Compile(source string) (string, error) {
	ast, err := parse(source)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	if err := render(&sb, ast); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// ColumnNames returns the column names referenced by source, so callers can
// build the celexpr environment without re-parsing.
func ColumnNames(source string) ([]string, error) {
	ast, err := parse(source)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var names []string
	var walk func(n node)
	walk = func(n node) {
		switch v := n.(type) {
		case *columnRef:
			if !seen[v.name] {
				seen[v.name] = true
				names = append(names, v.name)
			}
		case *unaryExpr:
			walk(v.x)
		case *binaryExpr:
			walk(v.l)
			walk(v.r)
		case *callExpr:
			for _, a := range v.args {
				walk(a)
			}
		case *ifExpr:
			walk(v.cond)
			walk(v.then)
			walk(v.els)
		}
	}
	walk(ast)
	return names, nil
}

func render(sb *strings.Builder, n node) error {
	switch v := n.(type) {
	case *numberLit:
		sb.WriteString(v.value)
		return nil
	case *stringLit:
		sb.WriteString(strconv.Quote(v.value))
		return nil
	case *boolLit:
		if v.value {
			sb.WriteString("true")
		} else {
			sb.WriteString("false")
		}
		return nil
	case *columnRef:
		if !isValidIdent(v.name) {
			return &parseError{pos: v.at, msg: fmt.Sprintf("column %q is not representable as an identifier in an engine expression", v.name)}
		}
		sb.WriteString(v.name)
		return nil
	case *unaryExpr:
		switch v.op {
		case "-":
			sb.WriteString("-(")
		case "not":
			sb.WriteString("!(")
		}
		if err := render(sb, v.x); err != nil {
			return err
		}
		sb.WriteString(")")
		return nil
	case *binaryExpr:
		return renderBinary(sb, v)
	case *callExpr:
		arity, ok := knownFunctions[strings.ToLower(v.name)]
		if !ok {
			return &parseError{pos: v.at, msg: fmt.Sprintf("unknown function %q", v.name)}
		}
		if len(v.args) != arity {
			return &parseError{pos: v.at, msg: fmt.Sprintf("function %q expects %d argument(s), got %d", v.name, arity, len(v.args))}
		}
		sb.WriteString(strings.ToLower(v.name))
		sb.WriteString("(")
		for i, a := range v.args {
			if i > 0 {
				sb.WriteString(", ")
			}
			if err := render(sb, a); err != nil {
				return err
			}
		}
		sb.WriteString(")")
		return nil
	case *ifExpr:
		sb.WriteString("(")
		if err := render(sb, v.cond); err != nil {
			return err
		}
		sb.WriteString(" ? ")
		if err := render(sb, v.then); err != nil {
			return err
		}
		sb.WriteString(" : ")
		if err := render(sb, v.els); err != nil {
			return err
		}
		sb.WriteString(")")
		return nil
	default:
		return &parseError{pos: 0, msg: fmt.Sprintf("unhandled node type %T", n)}
	}
}

func renderBinary(sb *strings.Builder, v *binaryExpr) error {
	if v.op == "&" {
		sb.WriteString("(string(")
		if err := render(sb, v.l); err != nil {
			return err
		}
		sb.WriteString(") + string(")
		if err := render(sb, v.r); err != nil {
			return err
		}
		sb.WriteString("))")
		return nil
	}
	op := v.op
	switch op {
	case "and":
		op = "&&"
	case "or":
		op = "||"
	}
	sb.WriteString("(")
	if err := render(sb, v.l); err != nil {
		return err
	}
	sb.WriteString(" " + op + " ")
	if err := render(sb, v.r); err != nil {
		return err
	}
	sb.WriteString(")")
	return nil
}

func isValidIdent(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (i > 0 && c >= '0' && c <= '9') {
			continue
		}
		return false
	}
	return true
}
