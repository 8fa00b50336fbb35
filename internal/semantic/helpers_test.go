package semantic

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"mdl-rewrite/internal/domain"
	"mdl-rewrite/internal/manifest"
)

func loadTPCH(t *testing.T) *manifest.Catalog {
	t.Helper()
	cat, err := manifest.Load(filepath.Join("testdata", "tpch.yaml"))
	require.NoError(t, err)
	return cat
}

// abcManifest is a model A with two independent to-many relationships, to B
// and to C, plus extra column lines for A.
const abcManifest = `
models:
  - name: A
    refSql: select * from a
%s
    columns:
      - {name: id, type: INTEGER}
      - {name: v, type: INTEGER}
      - {name: bs, type: B, relationship: AB}
      - {name: cs, type: C, relationship: AC}
%s
  - name: B
    refSql: select * from b
    primaryKey: id
    columns:
      - {name: id, type: INTEGER}
      - {name: a_id, type: INTEGER}
      - {name: x, type: INTEGER}
      - {name: a, type: A, relationship: AB}
  - name: C
    refSql: select * from c
    primaryKey: id
    columns:
      - {name: id, type: INTEGER}
      - {name: a_id, type: INTEGER}
      - {name: y, type: INTEGER}
relationships:
  - {name: AB, models: [A, B], joinType: ONE_TO_MANY, condition: A.id = B.a_id}
  - {name: AC, models: [A, C], joinType: ONE_TO_MANY, condition: A.id = C.a_id}
`

// abcCatalog builds the A/B/C catalog with the given extra columns on A,
// one YAML flow mapping per line.
func abcCatalog(t *testing.T, withPK bool, columns ...string) *manifest.Catalog {
	t.Helper()
	pk := ""
	if withPK {
		pk = "    primaryKey: id"
	}
	extra := ""
	for _, c := range columns {
		extra += "      - " + c + "\n"
	}
	cat, err := manifest.Parse([]byte(fmt.Sprintf(abcManifest, pk, extra)))
	require.NoError(t, err)
	return cat
}

func requireCode(t *testing.T, err error, code domain.RewriteCode) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, domain.RewriteCodeOf(err), "error: %v", err)
}

func parseCatalog(t *testing.T, doc string) *manifest.Catalog {
	t.Helper()
	cat, err := manifest.Parse([]byte(doc))
	require.NoError(t, err)
	return cat
}
