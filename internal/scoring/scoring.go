// Package scoring implements the Knowledge Application Scorer (spec.md
// §4.8): a pure, side-effect-free function that checks an agent's output
// text against a set of named expected patterns and reports how well the
// output satisfied them, in the style of the teacher's heuristic quality
// rules (internal/autopoiesis/quality.go).
package scoring

import (
	"fmt"
	"regexp"
	"strings"
)

// StepType names the recognized pattern sets, per spec.md §4.8.
const (
	StepCodeGeneration = "code_generation"
	StepPlanning       = "planning"
	StepMultiAgent     = "multi_agent"
	StepGeneral        = "general"
)

// ExpectedPattern is a named regex-or-substring expectation against an
// agent's output.
type ExpectedPattern struct {
	Name  string
	Match func(output string) bool
}

// Substring builds an ExpectedPattern matched by plain substring containment.
func Substring(name, substr string) ExpectedPattern {
	return ExpectedPattern{
		Name: name,
		Match: func(output string) bool {
			return strings.Contains(output, substr)
		},
	}
}

// Regex builds an ExpectedPattern matched by a compiled regular expression.
// A malformed pattern never matches, rather than panicking, so a bad
// pattern degrades a score instead of crashing the scorer.
func Regex(name, pattern string) ExpectedPattern {
	re, err := regexp.Compile(pattern)
	return ExpectedPattern{
		Name: name,
		Match: func(output string) bool {
			if err != nil || re == nil {
				return false
			}
			return re.MatchString(output)
		},
	}
}

// Result is the scorer's output, per spec.md §4.8.
type Result struct {
	OverallScore    float64
	PatternScores   map[string]float64
	MissingPatterns []string
	Feedback        []string
}

// Score checks output against every entry in expected and computes the
// fraction satisfied. Side-effect-free: it reads its arguments and returns
// a value, nothing else. An empty expected set scores 1.0 (vacuously
// satisfied) with no missing patterns.
func Score(output string, expected []ExpectedPattern) Result {
	result := Result{
		PatternScores: make(map[string]float64, len(expected)),
	}

	if len(expected) == 0 {
		result.OverallScore = 1.0
		return result
	}

	satisfied := 0
	for _, p := range expected {
		ok := p.Match != nil && p.Match(output)
		if ok {
			result.PatternScores[p.Name] = 1.0
			satisfied++
		} else {
			result.PatternScores[p.Name] = 0.0
			result.MissingPatterns = append(result.MissingPatterns, p.Name)
			result.Feedback = append(result.Feedback, fmt.Sprintf("expected pattern %q was not found in output", p.Name))
		}
	}

	result.OverallScore = float64(satisfied) / float64(len(expected))
	return result
}

// DefaultPatterns returns the built-in expected-pattern set for a step
// type, matching the four names spec.md §4.8 recognizes. Callers may also
// build their own pattern sets and bypass this entirely.
func DefaultPatterns(stepType string) []ExpectedPattern {
	switch stepType {
	case StepCodeGeneration:
		return []ExpectedPattern{
			Regex("has_code_fence", "```"),
			Regex("declares_symbol", `(?i)\b(func|def|class|function|const|interface)\b`),
		}
	case StepPlanning:
		return []ExpectedPattern{
			Regex("has_file_action", `(?i)"action"\s*:\s*"(create|modify|delete)"`),
			Regex("has_file_path", `(?i)"file_path"\s*:`),
		}
	case StepMultiAgent:
		return []ExpectedPattern{
			Regex("references_role", `(?i)\b(agent|team|role)\b`),
		}
	case StepGeneral:
		return []ExpectedPattern{
			{Name: "nonempty", Match: func(output string) bool { return strings.TrimSpace(output) != "" }},
		}
	default:
		return nil
	}
}
