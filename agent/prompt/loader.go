package prompt

import (
	_ "embed"
	"strings"
)

//go:embed template/sales.txt
var salesRaw string

// PromptSet holds loaded prompt content.
type PromptSet struct {
	Sales string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
// Safe to call concurrently; the embed is compile-time.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Sales: strings.TrimSpace(salesRaw),
	}
}
