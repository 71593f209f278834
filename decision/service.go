package decision

import "github.com/liamcoop/decisioncentral/feel"

// Service is a loaded decision service. Implementations must be safe for
// concurrent use once built.
type Service interface {
	// Glossary returns the service wide glossary.
	Glossary() Glossary
	// GlossaryNames returns the glossary title followed by the names of the
	// annotation columns.
	GlossaryNames() []string
	// Sheets returns the decision tables in declaration order.
	Sheets() []Sheet
	// TableGlossary returns the glossary restricted to the variables one
	// table reads or writes.
	TableGlossary(sheet string) (Glossary, bool)
	Decision() DecisionSheet
	Decide(data map[string]feel.Value) (Status, Outcome)
	DecideTables(data map[string]feel.Value, tables []string) (Status, Outcome)
}

// HasSheet reports whether svc has a table called name.
func HasSheet(svc Service, name string) bool {
	for _, s := range svc.Sheets() {
		if s.Name == name {
			return true
		}
	}
	return false
}
