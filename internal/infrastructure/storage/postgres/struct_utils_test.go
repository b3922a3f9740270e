package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsdesk/internal/core/id"
	"opsdesk/internal/core/numbering"
	"opsdesk/internal/core/types"
	"opsdesk/internal/domain/document"
	"opsdesk/internal/domain/legalentity"
)

func TestExtractDBColumns_EmbeddedBase(t *testing.T) {
	cols := ExtractDBColumns[legalentity.LegalEntity]()

	assert.ElementsMatch(t, []string{
		"id", "version", "created_at", "updated_at",
		"company_id", "display_name", "is_default", "status",
	}, cols)
}

func TestStructToMap_Document(t *testing.T) {
	doc := document.New(id.New(), id.New(), numbering.KindInvoice, "Consulting", types.MustMoney("120.50"))
	doc.Number = "INV-000001"

	m := StructToMap(doc)

	require.Len(t, m, len(ExtractDBColumns[document.Document]()))
	assert.Equal(t, doc.ID, m["id"])
	assert.Equal(t, 1, m["version"])
	assert.Equal(t, numbering.KindInvoice, m["kind"])
	assert.Equal(t, "INV-000001", m["number"])
	assert.Equal(t, doc.LegalEntityID, m["legal_entity_id"])
}

func TestStructToMap_NonStruct(t *testing.T) {
	assert.Nil(t, StructToMap(42))
}
