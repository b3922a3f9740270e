// Package numbering provides domain contracts for per-legal-entity document numbering.
// Implementations of CounterStore live in the infrastructure layer.
package numbering

import (
	"fmt"
	"strings"
)

// Kind identifies a numbered document type. Each kind keeps its own
// independent counter per legal entity.
type Kind string

const (
	KindQuote       Kind = "quote"
	KindInvoice     Kind = "invoice"
	KindCertificate Kind = "certificate"
)

// Kinds lists every known document kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindQuote, KindInvoice, KindCertificate}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindQuote, KindInvoice, KindCertificate:
		return true
	}
	return false
}

func (k Kind) String() string {
	return string(k)
}

// DefaultPrefix is the prefix a new counter gets when none is configured.
func (k Kind) DefaultPrefix() string {
	switch k {
	case KindQuote:
		return "Q-"
	case KindInvoice:
		return "INV-"
	case KindCertificate:
		return "CERT-"
	}
	return ""
}

// ParseKind accepts the singular kind name and the plural route segment
// ("quote", "quotes", "Invoice").
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "s"))
	if !k.Valid() {
		return "", fmt.Errorf("unknown document kind %q", s)
	}
	return k, nil
}
