package seed

import (
	"context"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridwatch/internal/query"
	"gridwatch/internal/store"
)

const sample = `
regions:
  - name: ACCRA EAST REGION
    districts:
      - name: ACCRA EAST
      - id: d-adenta
        name: ADENTA
roles:
  - name: load_auditor
    accessLevel: regional
    allowedRegions: [ACCRA EAST REGION]
`

func TestApplyIsIdempotent(t *testing.T) {
	f, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)
	s := store.NewMemory()
	ctx := context.Background()
	v := validator.New()

	require.NoError(t, Apply(ctx, s, v, f))
	require.NoError(t, Apply(ctx, s, v, f))

	regions, err := store.All(ctx, s, query.Regions)
	require.NoError(t, err)
	require.Len(t, regions, 1)
	assert.Equal(t, ID("region", "ACCRA EAST REGION"), regions[0].ID())

	districts, err := store.All(ctx, s, query.Districts)
	require.NoError(t, err)
	require.Len(t, districts, 2)
	for _, d := range districts {
		assert.Equal(t, regions[0].ID(), d.String("regionId"))
	}
	_, err = s.Get(ctx, query.Districts, "d-adenta")
	require.NoError(t, err)

	roles, err := store.All(ctx, s, query.Roles)
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, "regional", roles[0].String("accessLevel"))
}

func TestApplyValidates(t *testing.T) {
	v := validator.New()
	for name, doc := range map[string]string{
		"bad access level":    "roles:\n  - name: x\n    accessLevel: galactic\n",
		"regional no regions": "roles:\n  - name: x\n    accessLevel: regional\n",
		"unnamed region":      "regions:\n  - districts: []\n",
	} {
		t.Run(name, func(t *testing.T) {
			f, err := Parse(strings.NewReader(doc))
			require.NoError(t, err)
			require.Error(t, Apply(context.Background(), store.NewMemory(), v, f))
		})
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse(strings.NewReader("regoins:\n  - name: typo\n"))
	require.Error(t, err)
}

func TestParseEmpty(t *testing.T) {
	f, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, f.Regions)
}
