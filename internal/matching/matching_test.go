package matching

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BrokerSettle/internal/parsers"
)

type fakeDirectory struct {
	policies map[string]PolicyRef
	brokers  map[string]string
}

func (d *fakeDirectory) LookupPolicy(_ context.Context, policyNumber string) (PolicyRef, bool, error) {
	ref, ok := d.policies[policyNumber]
	return ref, ok, nil
}

func (d *fakeDirectory) LookupBrokerByHint(_ context.Context, hint string) (string, bool, error) {
	id, ok := d.brokers[strings.ToLower(hint)]
	return id, ok, nil
}

func TestResolvePolicyMatchBeatsHint(t *testing.T) {
	dir := &fakeDirectory{
		policies: map[string]PolicyRef{"AB-123": {BrokerID: "broker-policy"}},
		brokers:  map[string]string{"otro@corp.com": "broker-hint"},
	}
	m := NewMatcher(dir)

	row := parsers.CanonicalRow{
		PolicyNumber: "ab-123",
		Raw:          parsers.RawFields{"Corredor": "otro@corp.com"},
	}
	res, err := m.Resolve(context.Background(), row)
	require.NoError(t, err)
	assert.Equal(t, "broker-policy", res.BrokerID)
	assert.True(t, res.ViaPolicy)
	assert.False(t, res.ViaHint)
}

func TestResolveNormalizesLeadingZeros(t *testing.T) {
	dir := &fakeDirectory{policies: map[string]PolicyRef{"X-9": {BrokerID: "b1"}}}
	m := NewMatcher(dir)

	res, err := m.Resolve(context.Background(), parsers.CanonicalRow{PolicyNumber: " 00x-9 "})
	require.NoError(t, err)
	assert.Equal(t, "b1", res.BrokerID)
}

func TestResolveHintFallback(t *testing.T) {
	dir := &fakeDirectory{
		policies: map[string]PolicyRef{},
		brokers:  map[string]string{"ana@corp.com": "b2"},
	}
	m := NewMatcher(dir)

	row := parsers.CanonicalRow{
		PolicyNumber: "NOPE-1",
		Raw:          parsers.RawFields{"Corredor": "ANA@corp.com"},
	}
	res, err := m.Resolve(context.Background(), row)
	require.NoError(t, err)
	assert.Equal(t, "b2", res.BrokerID)
	assert.True(t, res.ViaHint)
}

func TestResolveUnidentified(t *testing.T) {
	m := NewMatcher(&fakeDirectory{policies: map[string]PolicyRef{}, brokers: map[string]string{}})
	res, err := m.Resolve(context.Background(), parsers.CanonicalRow{PolicyNumber: "NOPE-2"})
	require.NoError(t, err)
	assert.Equal(t, "", res.BrokerID)
}

func TestNormalizePolicy(t *testing.T) {
	assert.Equal(t, "AB-1", NormalizePolicy("  ab-1 "))
	assert.Equal(t, "45678", NormalizePolicy("0045678"))
	assert.Equal(t, "0", NormalizePolicy("000"))
	assert.Equal(t, "", NormalizePolicy(""))
}
