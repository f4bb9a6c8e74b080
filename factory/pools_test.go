package factory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-ledger/ledger"
)

func TestParsePools(t *testing.T) {
	r, err := ParsePools([]byte(`{
		"default": {"annual_share": "0.25"},
		"categories": {"personal": {"annual_share": "1"}, "sick": {"annual_share": "0"}}
	}`))
	require.NoError(t, err)

	assert.True(t, r.ShareFor("personal").Equal(decimal.NewFromInt(1)))
	assert.True(t, r.ShareFor("sick").IsZero())
	assert.True(t, r.ShareFor("bonus").Equal(decimal.RequireFromString("0.25")))

	gk, ak := r.Keys("emp-1", "bonus")
	pair := ledger.Pair{General: ledger.Balance{Key: gk}, Annual: ledger.Balance{Key: ak}}
	g, a, err := r.Split(context.Background(), pair, decimal.NewFromInt(8))
	require.NoError(t, err)
	assert.Equal(t, "6", g.String())
	assert.Equal(t, "2", a.String())
}

func TestParsePools_Default(t *testing.T) {
	r, err := ParsePools([]byte(DefaultPoolsJSON))
	require.NoError(t, err)
	assert.True(t, r.ShareFor("personal").IsZero())
}

func TestParsePools_Invalid(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"malformed", `{`},
		{"unknown category", `{"categories": {"annual": {"annual_share": "1"}}}`},
		{"not numeric", `{"categories": {"sick": {"annual_share": "half"}}}`},
		{"share above one", `{"categories": {"sick": {"annual_share": "1.5"}}}`},
		{"negative default", `{"default": {"annual_share": "-0.1"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePools([]byte(tt.json))
			assert.Error(t, err)
		})
	}
}

func TestLoadPools(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pools.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"categories": {"bonus": {"annual_share": "0.5"}}}`), 0o600))

	r, err := LoadPools(path)
	require.NoError(t, err)
	assert.True(t, r.ShareFor("bonus").Equal(decimal.RequireFromString("0.5")))

	r, err = LoadPools("")
	require.NoError(t, err)
	assert.True(t, r.ShareFor("bonus").IsZero())

	_, err = LoadPools(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
