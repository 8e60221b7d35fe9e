package geoip_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"trackly/internal/pkg/geoip"
	"trackly/internal/testsupport"
)

func TestCountryName(t *testing.T) {
	tests := []struct {
		code     string
		expected string
	}{
		{"ES", "Spain"},
		{"us", "United States"},
		{"DE", "Germany"},
		{"zz", "ZZ"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.expected, geoip.CountryName(tt.code))
		})
	}
}

func TestResolverWithoutDatabase(t *testing.T) {
	resolver := geoip.NewResolver(filepath.Join(t.TempDir(), "missing.mmdb"), testsupport.GetLogger())

	assert.False(t, resolver.Available())

	country, region, ok := resolver.Lookup("81.2.69.142")
	assert.False(t, ok)
	assert.Empty(t, country)
	assert.Empty(t, region)

	assert.NoError(t, resolver.Close())
}

func TestResolverWithoutPath(t *testing.T) {
	resolver := geoip.NewResolver("", testsupport.GetLogger())
	_, _, ok := resolver.Lookup("81.2.69.142")
	assert.False(t, ok)
}
