package embedded

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"opsdesk/internal/core/numbering"
)

// Key layout:
//
//	le/<legalEntityID>                         legal entity
//	le-co/<companyID>/<legalEntityID>          company index
//	ctr/<legalEntityID>/<kind>                 counter
//	doc/<documentID>                           document
//	doc-co/<companyID>/<kind>/<documentID>     company index, UUIDv7 order
//	doc-num/<legalEntityID>/<kind>/<number>    uniqueness of numbers
//	audit/<entityType>/<entityID>/<auditID>    audit entry
const (
	prefixLegalEntity   = "le/"
	prefixEntityCompany = "le-co/"
	prefixCounter       = "ctr/"
	prefixDocument      = "doc/"
	prefixDocCompany    = "doc-co/"
	prefixDocNumber     = "doc-num/"
	prefixAudit         = "audit/"
)

var errNotFound = errors.New("key not found")

func getJSON(txn *badger.Txn, key string, v any) error {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return errNotFound
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	return item.Value(func(val []byte) error {
		if err := json.Unmarshal(val, v); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		return nil
	})
}

func setJSON(txn *badger.Txn, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := txn.Set([]byte(key), data); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func exists(txn *badger.Txn, key string) (bool, error) {
	_, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	return true, nil
}

// scanKeys returns the suffixes of all keys under prefix, in key order
// (reverse order when reverse is set).
func scanKeys(txn *badger.Txn, prefix string, reverse bool) []string {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = []byte(prefix)
	opts.Reverse = reverse

	it := txn.NewIterator(opts)
	defer it.Close()

	seek := []byte(prefix)
	if reverse {
		seek = append([]byte(prefix), 0xFF)
	}

	var out []string
	for it.Seek(seek); it.ValidForPrefix([]byte(prefix)); it.Next() {
		out = append(out, string(it.Item().Key()[len(prefix):]))
	}
	return out
}

func counterKey(key numbering.Key) string {
	return prefixCounter + key.LegalEntityID.String() + "/" + key.Kind.String()
}

// storeErr marks a backend failure as a counter store outage.
func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", numbering.ErrStoreUnavailable, op, err)
}
