// Package templates renders custom webhook bodies with Handlebars.
package templates

import (
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/aymerick/raymond"
	"github.com/goliatone/go-featurehooks/core"
)

var builtinHelpers = []string{"if", "unless", "each", "with", "lookup", "log", "equal", "json", "else"}

// scoped block helpers change the context, so names inside them are not
// resolved against the root variable set.
var scopedHelpers = []string{"each", "with"}

var mustachePattern = regexp.MustCompile(`\{\{\{?~?\s*([^{}]*?)\s*~?\}?\}\}`)

var quotedPattern = regexp.MustCompile(`"[^"]*"|'[^']*'`)

// closingBrace stands in for a literal "}" that directly follows a "}}"
// close. JSON bodies such as {"conditions":{{json conditions}}} would
// otherwise lex as a "}}}" triple-stash close.
const closingBrace = "\uE07D"

// HandlebarsEngine implements core.TemplateEngine. Parsed templates are
// cached by source.
type HandlebarsEngine struct {
	// Allowed are the root names a template may reference.
	Allowed []string

	mu    sync.RWMutex
	cache map[string]*compiledTemplate
}

type compiledTemplate struct {
	tpl *raymond.Template
	// braces is set when literal closing braces were swapped for closingBrace.
	braces bool
}

func NewHandlebarsEngine() *HandlebarsEngine {
	return &HandlebarsEngine{
		Allowed: append([]string(nil), core.TemplateVariables...),
		cache:   map[string]*compiledTemplate{},
	}
}

func (e *HandlebarsEngine) Render(source string, vars map[string]any) ([]byte, error) {
	if e == nil {
		return nil, core.RenderError(nil, "", "templates: handlebars engine is nil")
	}
	compiled, err := e.parse(source)
	if err != nil {
		return nil, err
	}
	out, err := compiled.tpl.Exec(vars)
	if err != nil {
		return nil, core.RenderError(err, "", "templates: execute body template")
	}
	if compiled.braces {
		out = strings.ReplaceAll(out, closingBrace, "}")
	}
	return []byte(out), nil
}

// Validate checks syntax and variable references without rendering.
func (e *HandlebarsEngine) Validate(source string) error {
	_, err := e.parse(source)
	return err
}

func (e *HandlebarsEngine) parse(source string) (*compiledTemplate, error) {
	e.mu.RLock()
	compiled, ok := e.cache[source]
	e.mu.RUnlock()
	if ok {
		return compiled, nil
	}

	prepared, braces := protectClosingBraces(source)
	if err := CheckReferences(prepared, e.Allowed); err != nil {
		return nil, err
	}
	tpl, err := raymond.Parse(prepared)
	if err != nil {
		return nil, core.RenderError(err, "", "templates: invalid body template syntax")
	}
	tpl.RegisterHelper("json", jsonHelper)
	compiled = &compiledTemplate{tpl: tpl, braces: braces}

	e.mu.Lock()
	if e.cache == nil {
		e.cache = map[string]*compiledTemplate{}
	}
	e.cache[source] = compiled
	e.mu.Unlock()
	return compiled, nil
}

// protectClosingBraces swaps the literal "}" right after each "{{ }}" tag for
// closingBrace. Triple-stash tags are left as written.
func protectClosingBraces(source string) (string, bool) {
	if !strings.Contains(source, "}}}") {
		return source, false
	}
	var out strings.Builder
	out.Grow(len(source))
	swapped := false
	for i := 0; i < len(source); {
		open := strings.Index(source[i:], "{{")
		if open < 0 {
			out.WriteString(source[i:])
			break
		}
		open += i
		closer := "}}"
		if strings.HasPrefix(source[open:], "{{{") {
			closer = "}}}"
		}
		end := strings.Index(source[open+len(closer):], closer)
		if end < 0 {
			out.WriteString(source[i:])
			break
		}
		end += open + len(closer) + len(closer)
		out.WriteString(source[i:end])
		i = end
		if closer == "}}" && i < len(source) && source[i] == '}' {
			out.WriteString(closingBrace)
			swapped = true
			i++
		}
	}
	return out.String(), swapped
}

func jsonHelper(value any) raymond.SafeString {
	encoded, err := json.Marshal(value)
	if err != nil {
		return raymond.SafeString("null")
	}
	return raymond.SafeString(encoded)
}

// CheckReferences reports the first root-level name in source that is not in
// allowed. Names inside each/with blocks are relative to the block context
// and are skipped.
func CheckReferences(source string, allowed []string) error {
	depth := 0
	for _, match := range mustachePattern.FindAllStringSubmatch(source, -1) {
		body := strings.TrimSpace(quotedPattern.ReplaceAllString(match[1], `""`))
		if body == "" || strings.HasPrefix(body, "!") {
			continue
		}
		switch body[0] {
		case '/':
			if slices.Contains(scopedHelpers, strings.TrimSpace(body[1:])) && depth > 0 {
				depth--
			}
			continue
		case '>':
			return core.RenderError(nil, "", "templates: partials are not supported")
		case '#', '^':
			fields := strings.Fields(body[1:])
			if len(fields) == 0 {
				continue
			}
			helper := fields[0]
			if depth == 0 {
				if err := checkNames(fields[1:], allowed); err != nil {
					return err
				}
				if !slices.Contains(builtinHelpers, helper) {
					if err := checkNames(fields[:1], allowed); err != nil {
						return err
					}
				}
			}
			if slices.Contains(scopedHelpers, helper) {
				depth++
			}
			continue
		case '&':
			body = strings.TrimSpace(body[1:])
		}
		if depth > 0 {
			continue
		}
		fields := strings.Fields(body)
		if len(fields) == 0 {
			continue
		}
		if slices.Contains(builtinHelpers, fields[0]) {
			if err := checkNames(fields[1:], allowed); err != nil {
				return err
			}
			continue
		}
		if err := checkNames(fields, allowed); err != nil {
			return err
		}
	}
	return nil
}

func checkNames(tokens []string, allowed []string) error {
	for _, token := range tokens {
		if index := strings.Index(token, "="); index >= 0 {
			token = token[index+1:]
		}
		token = strings.Trim(token, "()")
		if !isPathToken(token) {
			continue
		}
		root := token
		if index := strings.IndexAny(root, "./["); index > 0 {
			root = root[:index]
		}
		if !slices.Contains(allowed, root) {
			return core.RenderError(nil, "", fmt.Sprintf("templates: undefined variable %q", root))
		}
	}
	return nil
}

func isPathToken(token string) bool {
	if token == "" || token == "this" || token == "." || token == "true" || token == "false" || token == "null" || token == "undefined" {
		return false
	}
	switch token[0] {
	case '"', '\'', '@', '.':
		return false
	}
	if strings.HasPrefix(token, "this.") || strings.HasPrefix(token, "this/") {
		return false
	}
	if (token[0] >= '0' && token[0] <= '9') || token[0] == '-' {
		return false
	}
	return true
}

var _ core.TemplateEngine = (*HandlebarsEngine)(nil)
