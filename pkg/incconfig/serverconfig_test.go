package incconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionPolicyStringRoundTrip(t *testing.T) {
	for _, p := range []VersionPolicy{VersionStrict, VersionCompatible, VersionPermissive} {
		parsed, err := ParseVersionPolicy(p.String())
		assert.NoError(t, err)
		assert.Equal(t, p, parsed)
	}
}

func TestParseVersionPolicyRejectsUnknown(t *testing.T) {
	_, err := ParseVersionPolicy("Relaxed")
	assert.Error(t, err)
}

func TestEncryptionRequirementStringRoundTrip(t *testing.T) {
	for _, e := range []EncryptionRequirement{EncryptionOptional, EncryptionPreferred, EncryptionRequired} {
		parsed, err := ParseEncryptionRequirement(e.String())
		assert.NoError(t, err)
		assert.Equal(t, e, parsed)
	}
}

// Scenario 6 (§8): Strict configured with current=3 rejects version 2.
func TestNegotiateStrictRejectsMismatch(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.VersionPolicy = VersionStrict
	cfg.ProtocolVersionCurrent = 3

	_, accept := cfg.Negotiate(2)
	assert.False(t, accept)

	negotiated, accept := cfg.Negotiate(3)
	assert.True(t, accept)
	assert.Equal(t, uint16(3), negotiated)
}

func TestNegotiateCompatibleAcceptsRangeAndPicksMin(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.VersionPolicy = VersionCompatible
	cfg.ProtocolVersionCurrent = 3
	cfg.ProtocolVersionMin = 1
	cfg.ProtocolVersionMax = 3

	negotiated, accept := cfg.Negotiate(2)
	assert.True(t, accept)
	assert.Equal(t, uint16(2), negotiated)

	_, accept = cfg.Negotiate(5)
	assert.False(t, accept)
}

func TestNegotiatePermissiveAcceptsAnyVersion(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.VersionPolicy = VersionPermissive
	cfg.ProtocolVersionCurrent = 3

	negotiated, accept := cfg.Negotiate(999)
	assert.True(t, accept)
	assert.Equal(t, uint16(3), negotiated)
}

func TestDumpProducesLabeledBlock(t *testing.T) {
	cfg := DefaultServerConfig()
	out := cfg.Dump()

	assert.Contains(t, out, "=== INC Server Configuration ===")
	assert.Contains(t, out, "Listen Address: "+cfg.ListenAddress)
	assert.Contains(t, out, "Version Policy: Compatible")
	assert.Contains(t, out, "Encryption Requirement: Optional")
}

func TestHandshakePolicyAdapterDelegatesToNegotiate(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.VersionPolicy = VersionStrict
	cfg.ProtocolVersionCurrent = 1

	policy := cfg.HandshakePolicy()
	negotiated, accept := policy(1)
	assert.True(t, accept)
	assert.Equal(t, uint16(1), negotiated)

	_, accept = policy(2)
	assert.False(t, accept)
}
