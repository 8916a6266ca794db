package state_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-domain/pkg/state"
)

func TestEnvelopeCarriesFlagsJSONCannot(t *testing.T) {
	provider := invoiceRules(t)
	inv := newInvoice(t, provider, "INV-1", 1, 2)
	require.NoError(t, inv.AssignIdentityKey("inv-1"))
	first, _ := inv.Lines.At(0)
	require.NoError(t, first.AssignIdentityKey("line-1"))
	_, err := inv.Lines.RemoveAt(0)
	require.NoError(t, err)

	env, err := state.Capture("invoice", inv)
	require.NoError(t, err)
	payload, err := env.Marshal()
	require.NoError(t, err)

	decoded, err := state.UnmarshalEnvelope(payload)
	require.NoError(t, err)
	restored := &invoice{}
	require.NoError(t, decoded.Restore(restored, provider))

	assert.Equal(t, "inv-1", restored.IdentityKey())
	assert.True(t, restored.IsSelfDirty(), "dirty flag survives")
	require.Equal(t, 1, restored.Lines.Len())
	remaining, _ := restored.Lines.At(0)
	assert.True(t, remaining.IsNew())
	require.Len(t, restored.Lines.Deleted(), 1)
	gone := restored.Lines.Deleted()[0]
	assert.Equal(t, "line-1", gone.IdentityKey())
	assert.True(t, gone.IsDeleted())
}

func TestEnvelopeRestoreRebindsRules(t *testing.T) {
	provider := invoiceRules(t)
	inv := newInvoice(t, provider, "INV-1", 1)
	env, err := state.Capture("invoice", inv)
	require.NoError(t, err)

	restored := &invoice{}
	require.NoError(t, env.Restore(restored, provider))
	assert.True(t, restored.IsValid())

	restored.SetNumber("")
	assert.False(t, restored.IsValid())
	assert.NotEmpty(t, restored.BrokenRules().ForProperty("Number"))
}

func TestUnmarshalEnvelopeRejectsUnknownVersion(t *testing.T) {
	_, err := state.UnmarshalEnvelope([]byte(`{"version":99,"kind":"invoice","graph":{}}`))
	require.Error(t, err)
	_, err = state.UnmarshalEnvelope([]byte(`not json`))
	require.Error(t, err)

	require.Error(t, state.Envelope{Version: 1, Graph: []byte(`{"number":1}`)}.Restore(&invoice{}, invoiceRules(t)))
}
