package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/klingon-exchange/tokenledger/internal/store"
)

// ToRecord converts an Event into the wide-column shape the store
// persists. Metadata for structured-metadata types (DEBIT/TIP) is stored
// as a nested map; everything else is stored as a JSON string, matching
// spec §4.2/§9. A caller-omitted RefID is filled in with a fresh id so
// every row is independently addressable via the refId indexes.
func ToRecord(e Event) (store.Record, error) {
	if e.RefID == "" {
		e.RefID = uuid.NewString()
	}

	rec := store.Record{
		"id":              e.ID,
		"userId":          e.UserID,
		"beneficiaryId":   e.BeneficiaryID,
		"transactionType": string(e.Type),
		"amount":          e.Amount,
		"purpose":         e.Purpose,
		"refId":           e.RefID,
		"expiresAt":       e.ExpiresAt,
		"createdAt":       e.CreatedAt,
	}
	if e.Type == Hold {
		rec["state"] = string(e.State)
		rec["version"] = e.Version
	}
	if e.FreeBeneficiaryConsumed != 0 {
		rec["freeBeneficiaryConsumed"] = e.FreeBeneficiaryConsumed
	}
	if e.FreeSystemConsumed != 0 {
		rec["freeSystemConsumed"] = e.FreeSystemConsumed
	}
	if e.FreeBeneficiarySourceID != "" {
		rec["freeBeneficiarySourceId"] = e.FreeBeneficiarySourceID
	}

	if err := encodeMetadata(rec, e.Type, e.Metadata); err != nil {
		return nil, err
	}
	return rec, nil
}

func encodeMetadata(rec store.Record, t TransactionType, md Metadata) error {
	md = stripTestingFlag(md)
	if structuredMetadataTypes[t] {
		if md.Structured != nil {
			rec["metadata"] = md.Structured
			return nil
		}
		if md.Raw != "" {
			var m map[string]interface{}
			if err := json.Unmarshal([]byte(md.Raw), &m); err == nil {
				rec["metadata"] = m
				return nil
			}
		}
		rec["metadata"] = map[string]interface{}{}
		return nil
	}
	switch {
	case md.Raw != "":
		rec["metadata"] = md.Raw
	case md.Structured != nil:
		b, err := json.Marshal(md.Structured)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		rec["metadata"] = string(b)
	default:
		rec["metadata"] = ""
	}
	return nil
}

// stripTestingFlag removes the input-only "testing" key so it never
// reaches storage. The key is not read anywhere; HOLD's relaxed
// expiresAfter bound is selected by HoldOptions.Testing.
func stripTestingFlag(md Metadata) Metadata {
	if md.Structured != nil {
		if _, ok := md.Structured["testing"]; ok {
			cp := make(map[string]interface{}, len(md.Structured))
			for k, v := range md.Structured {
				if k != "testing" {
					cp[k] = v
				}
			}
			md.Structured = cp
		}
	}
	if md.Raw != "" {
		var m map[string]interface{}
		if err := json.Unmarshal([]byte(md.Raw), &m); err == nil {
			if _, ok := m["testing"]; ok {
				delete(m, "testing")
				if b, err := json.Marshal(m); err == nil {
					md.Raw = string(b)
				}
			}
		}
	}
	return md
}

// FromRecord reconstructs an Event from a stored Record. It is tolerant
// of missing or corrupt metadata: a read never fails because a historical
// row's metadata column doesn't parse, per spec §4.2 ("decode failures are
// swallowed, not raised").
func FromRecord(rec store.Record) Event {
	e := Event{
		ID:            stringAttr(rec, "id"),
		UserID:        stringAttr(rec, "userId"),
		BeneficiaryID: stringAttr(rec, "beneficiaryId"),
		Type:          TransactionType(stringAttr(rec, "transactionType")),
		Amount:        int64Attr(rec, "amount"),
		Purpose:       stringAttr(rec, "purpose"),
		RefID:         stringAttr(rec, "refId"),
		ExpiresAt:     stringAttr(rec, "expiresAt"),
		CreatedAt:     stringAttr(rec, "createdAt"),
		State:         HoldState(stringAttr(rec, "state")),
		Version:       int(int64Attr(rec, "version")),

		FreeBeneficiaryConsumed: int64Attr(rec, "freeBeneficiaryConsumed"),
		FreeSystemConsumed:      int64Attr(rec, "freeSystemConsumed"),
		FreeBeneficiarySourceID: stringAttr(rec, "freeBeneficiarySourceId"),
	}
	e.Metadata = decodeMetadata(rec["metadata"])
	return e
}

func decodeMetadata(v interface{}) Metadata {
	switch val := v.(type) {
	case map[string]interface{}:
		return Metadata{Structured: val}
	case string:
		if val == "" {
			return Metadata{}
		}
		var m map[string]interface{}
		if err := json.Unmarshal([]byte(val), &m); err == nil {
			return Metadata{Structured: m, Raw: val}
		}
		return Metadata{Raw: val}
	default:
		return Metadata{}
	}
}

func stringAttr(rec store.Record, key string) string {
	v, ok := rec[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func int64Attr(rec store.Record, key string) int64 {
	v, ok := rec[key]
	if !ok || v == nil {
		return 0
	}
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
