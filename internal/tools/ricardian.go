package tools

import "regexp"

// ParamKind classifies a contract action parameter.
type ParamKind string

const (
	ParamRequired ParamKind = "required"
	ParamOptional ParamKind = "optional"
)

var (
	placeholderPattern = regexp.MustCompile(`{{\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*}}`)
	conditionalPattern = regexp.MustCompile(`{{#if\s+([a-zA-Z_][a-zA-Z0-9_]*)}}[\s\S]*?{{/if}}`)
)

// ExtractParams reads the placeholders of a ricardian contract template.
// Every {{ name }} is required unless the name also guards an
// {{#if name}}...{{/if}} block, which makes it optional.
func ExtractParams(ricardian string) map[string]ParamKind {
	params := make(map[string]ParamKind)
	for _, m := range placeholderPattern.FindAllStringSubmatch(ricardian, -1) {
		if m[1] == "else" {
			continue
		}
		if _, seen := params[m[1]]; !seen {
			params[m[1]] = ParamRequired
		}
	}
	for _, m := range conditionalPattern.FindAllStringSubmatch(ricardian, -1) {
		params[m[1]] = ParamOptional
	}
	return params
}
