package ledger

import (
	"github.com/klingon-exchange/tokenledger/internal/store/memstore"
	"github.com/klingon-exchange/tokenledger/internal/store/sqlitestore"
)

// Table names (spec §4.8 names TokenRegistryArchive explicitly).
const (
	TableTokenRegistry        = "TokenRegistry"
	TableTokenRegistryArchive = "TokenRegistryArchive"
)

// Named secondary indexes, spelled exactly as spec §4.1 names them.
const (
	IndexUserCreatedAt        = "userId,createdAt"
	IndexBeneficiaryCreatedAt = "beneficiaryId,createdAt"
	IndexUserExpiresAt        = "userId,expiresAt"
	IndexUserRefID            = "userId,refId"
	IndexRefIDType            = "refId,transactionType"
	IndexRefIDState           = "refId,state"
	IndexTypeExpiresAt        = "transactionType,expiresAt"
)

// indexDefs is the partition/range attribute pair behind each named index,
// shared by both backend schema builders below.
var indexDefs = []struct {
	name         string
	partitionKey string
	rangeKey     string
}{
	{IndexUserCreatedAt, "userId", "createdAt"},
	{IndexBeneficiaryCreatedAt, "beneficiaryId", "createdAt"},
	{IndexUserExpiresAt, "userId", "expiresAt"},
	{IndexUserRefID, "userId", "refId"},
	{IndexRefIDType, "refId", "transactionType"},
	{IndexRefIDState, "refId", "state"},
	{IndexTypeExpiresAt, "transactionType", "expiresAt"},
}

// MemstoreSchema builds the pk/index maps memstore.New needs: a primary
// key for both the live ledger table and its archive, and every index the
// core relies on for the live table (the archive has no indexes).
func MemstoreSchema() (map[string]string, map[string][]memstore.IndexSpec) {
	pk := map[string]string{
		TableTokenRegistry:        "id",
		TableTokenRegistryArchive: "id",
	}
	var specs []memstore.IndexSpec
	for _, d := range indexDefs {
		specs = append(specs, memstore.IndexSpec{Name: d.name, PartitionKey: d.partitionKey, RangeKey: d.rangeKey})
	}
	indexes := map[string][]memstore.IndexSpec{
		TableTokenRegistry: specs,
	}
	return pk, indexes
}

// SqliteSchemas builds the sqlitestore.TableSchema set for the ledger
// table and its archive.
func SqliteSchemas() []sqlitestore.TableSchema {
	cols := []sqlitestore.Column{
		{Name: "id", Kind: sqlitestore.ColumnText},
		{Name: "userId", Kind: sqlitestore.ColumnText},
		{Name: "beneficiaryId", Kind: sqlitestore.ColumnText},
		{Name: "transactionType", Kind: sqlitestore.ColumnText},
		{Name: "refId", Kind: sqlitestore.ColumnText},
		{Name: "state", Kind: sqlitestore.ColumnText},
		{Name: "createdAt", Kind: sqlitestore.ColumnText},
		{Name: "expiresAt", Kind: sqlitestore.ColumnText},
		{Name: "version", Kind: sqlitestore.ColumnInteger},
	}
	var indexes []sqlitestore.Index
	for _, d := range indexDefs {
		cols := []string{d.partitionKey}
		if d.rangeKey != "" {
			cols = append(cols, d.rangeKey)
		}
		indexes = append(indexes, sqlitestore.Index{Name: sanitizeIndexName(d.name), Columns: cols})
	}

	return []sqlitestore.TableSchema{
		{Table: TableTokenRegistry, PrimaryKey: "id", Columns: cols, Indexes: indexes},
		{Table: TableTokenRegistryArchive, PrimaryKey: "id", Columns: cols, Indexes: indexes},
	}
}

func sanitizeIndexName(name string) string {
	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c == ',' {
			out = append(out, '_')
			continue
		}
		out = append(out, c)
	}
	return string(out)
}
