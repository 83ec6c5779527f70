package roster

import "strings"

// detectWindow is how many non-empty lines Detect looks at
const detectWindow = 15

type fingerprint struct {
	docType DocumentType
	matches func(head []string) bool
}

var fingerprints = []fingerprint{
	{
		docType: DocumentType{Kind: CompleteLogbook, Format: FormatLogbookCSV},
		matches: func(head []string) bool {
			return strings.HasPrefix(head[0], "flightID;")
		},
	},
	{
		docType: DocumentType{Kind: Planned, Format: FormatKlmIcal},
		matches: func(head []string) bool {
			if strings.TrimSpace(head[0]) != "BEGIN:VCALENDAR" {
				return false
			}
			for _, line := range head {
				if strings.HasPrefix(line, "PRODID") && strings.Contains(strings.ToUpper(line), "KLM") {
					return true
				}
			}
			return false
		},
	},
	{
		docType: DocumentType{Kind: Planned, Format: FormatKlcRoster},
		matches: func(head []string) bool {
			return anyContains(head, "KLM CITYHOPPER") && anyContains(head, "CREW ROSTER")
		},
	},
	{
		docType: DocumentType{Kind: Completed, Format: FormatKlcMonthly},
		matches: func(head []string) bool {
			return anyContains(head, "KLM CITYHOPPER") && anyContains(head, "MONTHLY OVERVIEW")
		},
	},
	{
		docType: DocumentType{Kind: Completed, Format: FormatKlmIcaMonthly},
		matches: func(head []string) bool {
			return anyContains(head, "KLM ICA") && anyContains(head, "MONTHLY FILE")
		},
	},
}

// Detect recognises a document by the first non-empty lines of its text
func Detect(lines []string) DocumentType {
	head := make([]string, 0, detectWindow)
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		head = append(head, line)
		if len(head) == detectWindow {
			break
		}
	}
	if len(head) == 0 {
		return DocumentType{Kind: Unsupported}
	}

	for _, fp := range fingerprints {
		if fp.matches(head) {
			return fp.docType
		}
	}
	return DocumentType{Kind: Unsupported}
}

// anyContains is a case-insensitive search over the head lines
func anyContains(head []string, needle string) bool {
	for _, line := range head {
		if strings.Contains(strings.ToUpper(line), needle) {
			return true
		}
	}
	return false
}
