package ai

import (
	"bytes"
	"regexp"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// Variables whose values are harmless to show the model.
var publicVars = map[string]bool{
	"HOME": true, "USER": true, "PWD": true, "OLDPWD": true, "SHELL": true,
	"PATH": true, "LANG": true, "TERM": true, "EDITOR": true, "PAGER": true,
	"HOSTNAME": true, "TMPDIR": true, "LC_ALL": true, "GOPATH": true,
}

var (
	assignPattern = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*)=("[^"]*"|'[^']*'|\S+)`)
	paramPattern  = regexp.MustCompile(`\$\{?([A-Za-z_][A-Za-z0-9_]*)\}?`)
	secretFlag    = regexp.MustCompile(`(?i)(--?(?:password|passwd|token|secret|api-key|apikey)[= ])("[^"]*"|'[^']*'|\S+)`)
)

// Redact hides variable values and secret-looking flags in a shell command
// before it is quoted back to the model.
func Redact(command string) string {
	command = secretFlag.ReplaceAllString(command, "$1***")

	file, err := syntax.NewParser(syntax.Variant(syntax.LangBash)).Parse(strings.NewReader(command), "")
	if err != nil {
		return redactText(command)
	}
	syntax.Walk(file, func(node syntax.Node) bool {
		switch n := node.(type) {
		case *syntax.Assign:
			if n.Name != nil && !publicVars[n.Name.Value] && n.Value != nil {
				n.Value.Parts = []syntax.WordPart{&syntax.Lit{Value: "***"}}
			}
		case *syntax.ParamExp:
			if n.Param != nil && isNamedVar(n.Param.Value) && !publicVars[n.Param.Value] {
				n.Param.Value = "REDACTED"
			}
		}
		return true
	})

	var buf bytes.Buffer
	if err := syntax.NewPrinter(syntax.Indent(0)).Print(&buf, file); err != nil {
		return redactText(command)
	}
	return strings.TrimRight(buf.String(), "\n")
}

// redactText is the fallback for input the parser rejects.
func redactText(command string) string {
	command = assignPattern.ReplaceAllStringFunc(command, func(m string) string {
		name := assignPattern.FindStringSubmatch(m)[1]
		if publicVars[name] {
			return m
		}
		return name + "=***"
	})
	return paramPattern.ReplaceAllStringFunc(command, func(m string) string {
		name := paramPattern.FindStringSubmatch(m)[1]
		if publicVars[name] {
			return m
		}
		return strings.Replace(m, name, "REDACTED", 1)
	})
}

func isNamedVar(name string) bool {
	if name == "" {
		return false
	}
	c := name[0]
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
