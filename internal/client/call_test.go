package client

import (
	"testing"

	"github.com/Wyydra/parley/internal/core/domain"
	"github.com/stretchr/testify/require"
)

func TestCall_Advance(t *testing.T) {
	req := require.New(t)
	call := NewCall("call-1")
	req.Equal(domain.CallInitiating, call.State())

	req.NoError(call.Advance(domain.CallOfferSent))
	// No answer yet, cannot be connected
	req.ErrorIs(call.Advance(domain.CallConnected), domain.ErrValidation)
	req.Equal(domain.CallOfferSent, call.State())

	req.NoError(call.Advance(domain.CallTimeout))
	req.NoError(call.Advance(domain.CallEnded))
	req.Error(call.Advance(domain.CallOfferSent))
}
