package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryPreservesRegistrationOrder(t *testing.T) {
	registry := NewToolRegistry()
	registry.RegisterAll(
		&echoTool{name: "get_stock_price"},
		&echoTool{name: "get_currency_rate"},
		&echoTool{name: "get_company_info"},
	)

	assert.Equal(t, []string{"get_stock_price", "get_currency_rate", "get_company_info"}, registry.List())

	defs := registry.Definitions()
	require.Len(t, defs, 3)
	assert.Equal(t, "get_stock_price", defs[0].Name)
	assert.Equal(t, "get_company_info", defs[2].Name)
}

func TestRegistryReplaceKeepsPosition(t *testing.T) {
	registry := NewToolRegistry()
	first := &echoTool{name: "get_stock_price"}
	registry.Register(first)
	registry.Register(&echoTool{name: "get_currency_rate"})

	replacement := &echoTool{name: "get_stock_price"}
	registry.Register(replacement)

	assert.Equal(t, []string{"get_stock_price", "get_currency_rate"}, registry.List())
	got, ok := registry.Get("get_stock_price")
	require.True(t, ok)
	assert.Same(t, replacement, got)
}

func TestRegistryGetUnknown(t *testing.T) {
	registry := NewToolRegistry()
	_, ok := registry.Get("get_dividends")
	assert.False(t, ok)
}
