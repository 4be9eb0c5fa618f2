// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2017 Datadog, Inc.

package source

import "regexp"

// Rule types, named after the original agent's processing rules.
const (
	ExcludeAtMatch = "exclude_at_match"
	MaskSequences  = "mask_sequences"
)

// ProcessingRule redacts or drops raw block content before it is matched
// against a Source's Pattern.
type ProcessingRule struct {
	Type                    string
	Name                    string
	Pattern                 string
	Reg                     *regexp.Regexp
	ReplacePlaceholder      string
	ReplacePlaceholderBytes []byte
}

// applyRules returns false when content should be dropped outright
// (ExcludeAtMatch), else the (possibly redacted) content.
func applyRules(rules []ProcessingRule, content []byte) (bool, []byte) {
	for _, rule := range rules {
		switch rule.Type {
		case ExcludeAtMatch:
			if rule.Reg.Match(content) {
				return false, nil
			}
		case MaskSequences:
			content = rule.Reg.ReplaceAllLiteral(content, rule.ReplacePlaceholderBytes)
		}
	}
	return true, content
}
