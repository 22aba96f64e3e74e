package extensions

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Transpile implements the ahead-of-execution transform described in spec
// §4.6: for TypeScript sources, erase type-only constructs (interfaces,
// type aliases, generics, `as` casts, `declare`) while preserving
// enums-as-values and inlining `const enum`, then rewrite ES module
// export/import syntax into the CommonJS shape evaluateExtension expects.
// For plain JS sources only the export/import rewrite runs.
//
// This is a regex-based erasure, not a full TypeScript parser: it is
// semantics-preserving for the subset of syntax extensions are expected to
// use (the same subset the virtual module resolver recognizes), and it
// refuses rather than guesses when it can't make sense of an enum body.
func Transpile(source string, isTS bool) (string, error) {
	out := source
	if isTS {
		var err error
		out, err = eraseTypeScript(out)
		if err != nil {
			return "", err
		}
	}
	out = rewriteModuleSyntax(out)
	return out, nil
}

var (
	interfaceRe    = regexp.MustCompile(`(?s)(export\s+)?interface\s+\w+(\s*<[^>]*>)?\s*(extends\s+[^{]+)?\{.*?\n\}\n?`)
	typeAliasRe    = regexp.MustCompile(`(?m)^(export\s+)?type\s+\w+(\s*<[^>]*>)?\s*=.*?;?\s*$`)
	declareRe      = regexp.MustCompile(`(?m)^declare\s+.*?;?\s*$`)
	asCastRe       = regexp.MustCompile(`\s+as\s+(const|[\w.<>\[\]| ]+)(?:\s*[,;)\]}]|\s*$)`)
	genericCallRe  = regexp.MustCompile(`(\w)<[\w,\s\[\]]+>(\()`)
	paramTypeRe    = regexp.MustCompile(`(\w+)\??:\s*[\w.<>\[\]|&\s'"]+([,)=])`)
	returnTypeRe   = regexp.MustCompile(`\)\s*:\s*[\w.<>\[\]|&\s'"]+(\{|=>)`)
	nonNullAssert  = regexp.MustCompile(`(\w)!`)
	constEnumRe    = regexp.MustCompile(`(?s)(export\s+)?const\s+enum\s+(\w+)\s*\{(.*?)\}`)
	enumRe         = regexp.MustCompile(`(?s)(export\s+)?enum\s+(\w+)\s*\{(.*?)\}`)
)

// eraseTypeScript strips type-only syntax via targeted regex passes. Order
// matters: interfaces/type aliases/declare statements are removed whole
// before the narrower per-token passes (as-casts, parameter annotations)
// run on what remains.
func eraseTypeScript(src string) (string, error) {
	src = interfaceRe.ReplaceAllString(src, "")
	src = typeAliasRe.ReplaceAllString(src, "")
	src = declareRe.ReplaceAllString(src, "")

	var err error
	src, err = inlineConstEnums(src)
	if err != nil {
		return "", err
	}
	src, err = compileEnums(src)
	if err != nil {
		return "", err
	}

	src = asCastRe.ReplaceAllStringFunc(src, func(m string) string {
		// Keep the trailing punctuation the cast consumed.
		tail := m[len(m)-1]
		switch tail {
		case ',', ';', ')', ']', '}':
			return string(tail)
		default:
			return ""
		}
	})
	src = genericCallRe.ReplaceAllString(src, "$1$2")
	src = nonNullAssert.ReplaceAllString(src, "$1")
	src = returnTypeRe.ReplaceAllString(src, ") $1")
	src = paramTypeRe.ReplaceAllString(src, "$1$2")

	return src, nil
}

// inlineConstEnums replaces `const enum Foo { A, B, C }` with a frozen
// object literal assignment `const Foo = {...}`, matching the numeric
// (or explicit-initializer) values a real TS compiler would burn in at
// every reference site — since this transpiler doesn't rewrite call
// sites, it keeps Foo as an object so `Foo.A` still resolves at runtime.
func inlineConstEnums(src string) (string, error) {
	var outerErr error
	result := constEnumRe.ReplaceAllStringFunc(src, func(m string) string {
		groups := constEnumRe.FindStringSubmatch(m)
		name, body := groups[2], groups[3]
		obj, err := enumBodyToObjectLiteral(body)
		if err != nil {
			outerErr = fmt.Errorf("enum %s: %w", name, err)
			return m
		}
		return fmt.Sprintf("const %s = Object.freeze(%s);", name, obj)
	})
	if outerErr != nil {
		return "", outerErr
	}
	return result, nil
}

// compileEnums replaces ordinary `enum Foo { A, B }` with the same
// bidirectional numeric-enum object shape tsc emits: both `Foo.A === 0` and
// `Foo[0] === "A"` hold, unless the member is given a string initializer.
func compileEnums(src string) (string, error) {
	var outerErr error
	result := enumRe.ReplaceAllStringFunc(src, func(m string) string {
		groups := enumRe.FindStringSubmatch(m)
		name, body := groups[2], groups[3]
		obj, err := enumBodyToBidirectionalLiteral(body)
		if err != nil {
			outerErr = fmt.Errorf("enum %s: %w", name, err)
			return m
		}
		return fmt.Sprintf("const %s = Object.freeze(%s);", name, obj)
	})
	if outerErr != nil {
		return "", outerErr
	}
	return result, nil
}

func enumBodyToObjectLiteral(body string) (string, error) {
	members, err := parseEnumMembers(body)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("{")
	for i, m := range members {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: %s", m.name, m.value)
	}
	b.WriteString("}")
	return b.String(), nil
}

func enumBodyToBidirectionalLiteral(body string) (string, error) {
	members, err := parseEnumMembers(body)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("{")
	for i, m := range members {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: %s", m.name, m.value)
		if m.numeric {
			fmt.Fprintf(&b, ", %s: %q", m.value, m.name)
		}
	}
	b.WriteString("}")
	return b.String(), nil
}

type enumMember struct {
	name    string
	value   string
	numeric bool
}

// parseEnumMembers handles the common enum bodies extensions use: bare
// identifiers (auto-incrementing from 0), explicit numeric initializers,
// and explicit string initializers. It refuses bodies with computed
// initializers, which it can't evaluate without a full expression parser.
func parseEnumMembers(body string) ([]enumMember, error) {
	raw := strings.Split(body, ",")
	var members []enumMember
	next := 0
	for _, part := range raw {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if idx := strings.Index(part, "="); idx >= 0 {
			name := strings.TrimSpace(part[:idx])
			val := strings.TrimSpace(part[idx+1:])
			if strings.HasPrefix(val, `"`) || strings.HasPrefix(val, "'") {
				members = append(members, enumMember{name: name, value: fmt.Sprintf("%q", strings.Trim(val, `"'`))})
				continue
			}
			n, err := strconv.Atoi(val)
			if err != nil {
				return nil, fmt.Errorf("unsupported computed enum initializer %q", val)
			}
			members = append(members, enumMember{name: name, value: strconv.Itoa(n), numeric: true})
			next = n + 1
			continue
		}
		members = append(members, enumMember{name: part, value: strconv.Itoa(next), numeric: true})
		next++
	}
	return members, nil
}

var (
	exportDefaultFnRe  = regexp.MustCompile(`export\s+default\s+(async\s+)?function`)
	exportDefaultExprRe = regexp.MustCompile(`export\s+default\s+`)
	namedExportConstRe = regexp.MustCompile(`(?m)^export\s+(const|let|var|function|async function|class)\s+(\w+)`)
	importRe           = regexp.MustCompile(`import\s+(?:\*\s+as\s+(\w+)|(\{[^}]*\})|(\w+))\s+from\s+["']([^"']+)["'];?`)
)

// rewriteModuleSyntax converts ES module import/export syntax into the
// CommonJS shape the runtime's module wrapper understands. The sandbox
// never loads real ES modules; this keeps extension authors writing
// ordinary `export default`/`import` syntax while execution stays on a
// single goja.RunProgram call per extension.
func rewriteModuleSyntax(src string) string {
	src = exportDefaultFnRe.ReplaceAllString(src, "module.exports = $1function")
	src = exportDefaultExprRe.ReplaceAllString(src, "module.exports = ")
	src = namedExportConstRe.ReplaceAllString(src, "$1 $2")
	src = importRe.ReplaceAllStringFunc(src, func(m string) string {
		groups := importRe.FindStringSubmatch(m)
		namespaceName, namedClause, defaultName, specifier := groups[1], groups[2], groups[3], groups[4]
		switch {
		case namespaceName != "":
			return fmt.Sprintf("const %s = require(%q);", namespaceName, specifier)
		case namedClause != "":
			return fmt.Sprintf("const %s = require(%q);", namedClause, specifier)
		default:
			return fmt.Sprintf("const %s = require(%q);", defaultName, specifier)
		}
	})
	return src
}
