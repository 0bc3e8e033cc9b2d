/*
Package template renders agent prompts with ${var} placeholders.

# Overview

Prompts are parsed once and rendered per call against a variable map.
Values are formatted for a language model to read: strings are inserted
verbatim, maps become sorted "key: value" lines and slices become one
item per line.

	tmpl := template.MustParse("You help ${company} customers.\n\nCustomer context:\n${user_context}")
	prompt, err := tmpl.Render(map[string]any{
	    "company":      "CultPass",
	    "user_context": map[string]any{"email": "ann@example.com"},
	})

# Missing Variables

By default a missing variable leaves its placeholder in place. Render
accepts options to substitute an empty string or fail instead:

	_, err := tmpl.Render(nil, template.WithMissingAction(template.MissingError))
	// err: "undefined variables: company, user_context"

A literal "${" is written as "$${".
*/
package template
