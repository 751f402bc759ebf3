// Package recql implements the small filter language accepted by the query
// surfaces. An expression is a boolean combination of field comparisons:
//
//	field:value   field=value   field!=value   field~substring
//	level>warning  level>=warning  level<error  level<=error
//
// Bare words and quoted strings search message, category and scene.
// Terms combine with AND, OR, NOT and parentheses; juxtaposition means AND.
// Matching is case-insensitive and levels compare by severity.
package recql
