// Package parser implements the email parser (§4.D): subject-to-route
// lookup and the body grammar that yields clients, observations, and lines.
package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/dacrisa/comandas-core/internal/normalize"
)

var (
	clientLineRe      = regexp.MustCompile(`(?i)^Cliente:\s*(.*)$`)
	observationLineRe = regexp.MustCompile(`(?i)^Observaciones:\s*(.*)$`)
	productLineRe     = regexp.MustCompile(`^([0-9]+(?:[.,][0-9]+)?)\s+(\S+)\s*-\s*(.+?)\s*-\s*([0-9]+(?:[.,][0-9]+)?)$`)
)

// ResolveRoute implements §4.D's subject→route step. routeNormSet is the set
// of norm_name values present in the active routes catalog.
func ResolveRoute(subject string, routeNormSet map[string]bool) (routeNorm string, ok bool) {
	key := normalize.Norm(subject)
	return key, routeNormSet[key]
}

// ParsedLine is one product line before matching/assignment.
type ParsedLine struct {
	Quantity   float64
	UnitRaw    string
	ProductRaw string
	Price      float64
	LineNo     int
}

// ParsedClient is one client section before DB insertion.
type ParsedClient struct {
	NameRaw      string
	Observations string
	Lines        []ParsedLine
}

// Level distinguishes hard errors from warnings in the parse report.
type Level string

const (
	LevelError   Level = "ERROR"
	LevelWarning Level = "WARNING"
)

// Issue is one parse-report entry.
type Issue struct {
	Level   Level
	Message string
	LineNo  int
}

// ParseBody implements §4.D's body grammar. The parse is considered
// successful (third return value true) iff at least one client was emitted and no
// LevelError issue occurred.
func ParseBody(body string) ([]ParsedClient, []Issue, bool) {
	lines := splitLines(body)

	var clients []ParsedClient
	var issues []Issue
	var current *ParsedClient
	justOpenedClient := false

	flush := func() {
		if current != nil {
			clients = append(clients, *current)
			current = nil
		}
	}

	for i, raw := range lines {
		lineNo := i + 1
		trimmed := strings.TrimSpace(raw)

		if m := clientLineRe.FindStringSubmatch(trimmed); m != nil {
			flush()
			name := strings.TrimSpace(m[1])
			if name == "" {
				issues = append(issues, Issue{Level: LevelError, Message: "client without name", LineNo: lineNo})
				current = nil
				justOpenedClient = false
				continue
			}
			current = &ParsedClient{NameRaw: name}
			justOpenedClient = true
			continue
		}

		if current != nil && justOpenedClient {
			if m := observationLineRe.FindStringSubmatch(trimmed); m != nil {
				current.Observations = strings.TrimSpace(m[1])
				justOpenedClient = false
				continue
			}
		}
		justOpenedClient = false

		if trimmed == "" {
			continue
		}

		if m := productLineRe.FindStringSubmatch(trimmed); m != nil {
			qty, qErr := parseDecimal(m[1])
			price, pErr := parseDecimal(m[4])
			if qErr != nil || pErr != nil {
				issues = append(issues, Issue{Level: LevelWarning, Message: "misformatted line", LineNo: lineNo})
				continue
			}
			line := ParsedLine{
				Quantity:   qty,
				UnitRaw:    m[2],
				ProductRaw: strings.TrimSpace(m[3]),
				Price:      price,
				LineNo:     lineNo,
			}
			if current == nil {
				issues = append(issues, Issue{Level: LevelWarning, Message: "product line with no client", LineNo: lineNo})
				continue
			}
			current.Lines = append(current.Lines, line)
			continue
		}

		if current != nil {
			issues = append(issues, Issue{Level: LevelWarning, Message: "misformatted line", LineNo: lineNo})
		}
	}
	flush()

	for i := range clients {
		if len(clients[i].Lines) == 0 {
			issues = append(issues, Issue{Level: LevelWarning, Message: "client without products"})
		}
	}

	hasHardError := false
	for _, iss := range issues {
		if iss.Level == LevelError {
			hasHardError = true
			break
		}
	}

	success := len(clients) > 0 && !hasHardError
	return clients, issues, success
}

func splitLines(body string) []string {
	normalized := strings.ReplaceAll(body, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")
	return strings.Split(normalized, "\n")
}

func parseDecimal(s string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
}
