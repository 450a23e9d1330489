// Package alias expands recipient tokens (raw numbers, aliases, groups)
// into phone numbers using a table loaded once at startup.
package alias

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Table maps an alias name to one or more phone numbers. A plain alias holds
// exactly one number; a group holds several. The table is read-only after
// load and safe to share across goroutines.
type Table map[string][]string

// rawNumber matches a bare phone number after separators are stripped:
// optional leading '+' followed by digits only.
var rawNumber = regexp.MustCompile(`^\+?\d+$`)

// UnknownRecipientError reports a token that is neither a number nor a
// known alias.
type UnknownRecipientError struct {
	Token string
	Known []string
}

func (e *UnknownRecipientError) Error() string {
	if len(e.Known) == 0 {
		return fmt.Sprintf("unknown recipient %q (no aliases defined)", e.Token)
	}
	return fmt.Sprintf("unknown recipient %q (known aliases: %s)", e.Token, strings.Join(e.Known, ", "))
}

// CleanNumber strips whitespace, hyphens and dots from a candidate number.
func CleanNumber(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '-', '.':
			return -1
		}
		return r
	}, s)
}

// IsNumber reports whether the token looks like a phone number once
// separators are removed.
func IsNumber(token string) bool {
	return rawNumber.MatchString(CleanNumber(token))
}

// Resolve expands one token into phone numbers.
//
// A token that parses as a number is returned as a singleton. Otherwise it is
// looked up in the table and its numbers are returned in stored order.
// Unknown tokens fail with *UnknownRecipientError.
func Resolve(token string, table Table) ([]string, error) {
	if nums, ok := table[token]; ok {
		out := make([]string, len(nums))
		copy(out, nums)
		return out, nil
	}
	if IsNumber(token) {
		return []string{CleanNumber(token)}, nil
	}
	return nil, &UnknownRecipientError{Token: token, Known: names(table)}
}

// ResolveAll expands every token in order and concatenates the results.
// Duplicate numbers are preserved: a number reachable through two aliases is
// returned twice and will be texted twice.
func ResolveAll(tokens []string, table Table) ([]string, error) {
	var out []string
	for _, tok := range tokens {
		nums, err := Resolve(tok, table)
		if err != nil {
			return nil, err
		}
		out = append(out, nums...)
	}
	return out, nil
}

func names(table Table) []string {
	out := make([]string, 0, len(table))
	for k := range table {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i]) < strings.ToLower(out[j])
	})
	return out
}
