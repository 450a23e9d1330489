package config

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"webtexter/internal/alias"
)

// parseLegacy reads the original line-oriented config format:
//
//	# comment
//	username joe
//	password secret
//	carrier meteor
//	nosplit
//	alias sean 086 555 1234
//	alias beerpeople sean 087-111-2222 +353 86 123 4567
//
// Alias lines may reference aliases defined on earlier lines; number tokens
// may contain spaces, dots and dashes.
func parseLegacy(data []byte) (*Config, error) {
	cfg := &Config{Aliases: map[string][]string{}}
	resolved := map[string][]string{}

	sc := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "username":
			if len(fields) < 2 {
				return nil, fmt.Errorf("line %d: username needs a value", lineNo)
			}
			cfg.Username = fields[len(fields)-1]
		case "password":
			if len(fields) < 2 {
				return nil, fmt.Errorf("line %d: password needs a value", lineNo)
			}
			cfg.Password = fields[len(fields)-1]
		case "carrier":
			if len(fields) < 2 {
				return nil, fmt.Errorf("line %d: carrier needs a value", lineNo)
			}
			cfg.Carrier = fields[len(fields)-1]
		case "nosplit":
			cfg.NoSplit = true
		case "alias":
			if len(fields) < 3 {
				return nil, fmt.Errorf("line %d: alias needs a name and at least one number", lineNo)
			}
			name := fields[1]
			nums, err := parseAliasContacts(fields[2:], resolved)
			if err != nil {
				return nil, fmt.Errorf("line %d: alias %s: %w", lineNo, name, err)
			}
			resolved[name] = nums
			cfg.Aliases[name] = nums
		default:
			return nil, fmt.Errorf("line %d: cannot parse %q", lineNo, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseAliasContacts turns the tail of an alias line into numbers. Spaced
// number groups ("086 555 1234") are joined; names must reference aliases
// defined earlier in the file.
func parseAliasContacts(tokens []string, resolved map[string][]string) ([]string, error) {
	var nums []string
	var pending string

	flush := func() {
		if pending != "" {
			nums = append(nums, pending)
			pending = ""
		}
	}

	for _, tok := range tokens {
		if alias.IsNumber(tok) {
			cleaned := alias.CleanNumber(tok)
			if strings.HasPrefix(cleaned, "+") && pending != "" {
				// A new international number starts a new group.
				flush()
			}
			pending += cleaned
			continue
		}
		flush()
		known, ok := resolved[tok]
		if !ok {
			return nil, fmt.Errorf("references %q before it is defined", tok)
		}
		nums = append(nums, known...)
	}
	flush()

	if len(nums) == 0 {
		return nil, fmt.Errorf("no numbers found")
	}
	return nums, nil
}
