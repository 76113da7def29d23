// Package report renders scan outcomes and the rule catalog for humans and tools.
//
// Three formats are supported: JSON for integration, Markdown for sharing and
// colored text for the terminal.
package report
