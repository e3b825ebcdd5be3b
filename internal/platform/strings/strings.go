// Package strings holds the header and name folding shared by the reconciler and employer registry
package strings

import (
	std "strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// HeaderKey folds a column header for alias matching: lower case, letters and digits only
// "EMPLOYER_NAME", "Employer Name" and "employer-name" all fold to "employername"
func HeaderKey(s string) string {
	return std.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return -1
	}, s)
}

// Title renders a normalized employer key for display: single spaced, each word capitalized
func Title(s string) string {
	return cases.Title(language.AmericanEnglish).String(std.Join(std.Fields(s), " "))
}
