package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcclellann/loankart/pkg/models"
)

func TestLoadDefault(t *testing.T) {
	products, err := Load("")
	require.NoError(t, err)
	assert.Len(t, products, 4)
	assert.Equal(t, models.LoanTypePersonal, products[0].Type)
	assert.Equal(t, 10.5, products[0].InterestRate)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.yaml")
	content := `products:
  - type: auto
    min_amount: 100000
    max_amount: 2000000
    interest_rate: 9.25
    max_term: 84
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	products, err := Load(path)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, models.LoanTypeAuto, products[0].Type)
	assert.Equal(t, 9.25, products[0].InterestRate)
	assert.Equal(t, 84, products[0].MaxTerm)
}

func TestLoadRejectsBadFile(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"empty.yaml":   "products: []\n",
		"badtype.yaml": "products:\n  - {type: yacht, min_amount: 1, max_amount: 2, interest_rate: 1, max_term: 1}\n",
		"range.yaml":   "products:\n  - {type: home, min_amount: 10, max_amount: 2, interest_rate: 1, max_term: 1}\n",
		"syntax.yaml":  "products: [",
	}
	for name, content := range cases {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
		_, err := Load(path)
		assert.Error(t, err, name)
	}

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestFilter(t *testing.T) {
	products := DefaultProducts()

	assert.Len(t, Filter(products, Criteria{}), 4)

	opts := Filter(products, Criteria{MaxRate: 9})
	require.Len(t, opts, 2)
	assert.Equal(t, models.LoanTypeEducation, opts[0].Type)
	assert.Equal(t, models.LoanTypeHome, opts[1].Type)
	assert.Nil(t, opts[0].Quote)

	opts = Filter(products, Criteria{Amount: 600000, Term: 72})
	require.Len(t, opts, 3)
	for _, o := range opts {
		assert.NotEqual(t, models.LoanTypePersonal, o.Type)
		require.NotNil(t, o.Quote)
		assert.Equal(t, 72, o.Quote.Term)
		assert.Equal(t, o.InterestRate, o.Quote.InterestRate)
	}

	opts = Filter(products, Criteria{Type: models.LoanTypeHome, Amount: 100000})
	assert.Empty(t, opts)
}
