package tunnel

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomKey(t *testing.T) [32]byte {
	t.Helper()
	var k [32]byte
	_, err := rand.Read(k[:])
	require.NoError(t, err)
	return k
}

// TestHandshakeEstablishesBothSides drives a full IK handshake between
// an Initiator and a Responder Tunnel entirely in-process, mirroring
// the sender-initiates / receiver-responds model of this pipeline.
func TestHandshakeEstablishesBothSides(t *testing.T) {
	initiatorPriv := randomKey(t)
	responderPriv := randomKey(t)

	var initiatorPub, responderPub [32]byte
	copy(initiatorPub[:], derivePublic(initiatorPriv))
	copy(responderPub[:], derivePublic(responderPriv))

	initiator, err := Open(Initiator, initiatorPriv, responderPub)
	require.NoError(t, err)
	responder, err := Open(Responder, responderPriv, initiatorPub)
	require.NoError(t, err)

	// Initiator drives the first message directly via its handshake
	// state since Feed() only auto-advances the Responder side.
	msg1, _, _, err := initiator.hs.WriteMessage(nil, nil)
	require.NoError(t, err)

	outcome, response, err := responder.Feed(msg1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeWriteToNetwork, outcome)
	assert.True(t, responder.Established())

	_, recvState, sendState, err := initiator.hs.ReadMessage(nil, response)
	require.NoError(t, err)

	initiator.sendState = sendState
	initiator.recvState = recvState
	initiator.established = true

	ciphertext, err := initiator.Write([]byte("hello"))
	require.NoError(t, err)

	outcome, plaintext, err := responder.Feed(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeliver, outcome)
	assert.Equal(t, []byte("hello"), plaintext)
}

// establishedPair drives a full IK handshake and returns both sides
// with sendState/recvState wired, ready to exchange transport messages.
func establishedPair(t *testing.T) (initiator, responder *Tunnel) {
	t.Helper()

	initiatorPriv := randomKey(t)
	responderPriv := randomKey(t)

	var initiatorPub, responderPub [32]byte
	copy(initiatorPub[:], derivePublic(initiatorPriv))
	copy(responderPub[:], derivePublic(responderPriv))

	initiator, err := Open(Initiator, initiatorPriv, responderPub)
	require.NoError(t, err)
	responder, err = Open(Responder, responderPriv, initiatorPub)
	require.NoError(t, err)

	msg1, _, _, err := initiator.hs.WriteMessage(nil, nil)
	require.NoError(t, err)

	_, response, err := responder.Feed(msg1)
	require.NoError(t, err)

	_, recvState, sendState, err := initiator.hs.ReadMessage(nil, response)
	require.NoError(t, err)
	initiator.sendState = sendState
	initiator.recvState = recvState
	initiator.established = true

	return initiator, responder
}

// TestFeedTransportDuplicateNotLoggedAsDecryptError replays the exact
// same ciphertext twice: the second copy must be recognized as a
// duplicate from its raw fingerprint, not handed to recvState.Decrypt
// and mislabeled as a crypto failure.
func TestFeedTransportDuplicateNotLoggedAsDecryptError(t *testing.T) {
	initiator, responder := establishedPair(t)

	ciphertext, err := initiator.Write([]byte("hello"))
	require.NoError(t, err)

	outcome, plaintext, err := responder.Feed(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeliver, outcome)
	assert.Equal(t, []byte("hello"), plaintext)

	outcome, _, err = responder.Feed(ciphertext)
	assert.ErrorIs(t, err, ErrDuplicatePacket)
	assert.Equal(t, OutcomeNone, outcome)
}

// TestFeedTransportCorruptCiphertextIsNotDuplicate asserts a ciphertext
// that was never previously delivered, and fails to decrypt, is
// reported as a genuine decrypt error rather than ErrDuplicatePacket.
func TestFeedTransportCorruptCiphertextIsNotDuplicate(t *testing.T) {
	initiator, responder := establishedPair(t)

	ciphertext, err := initiator.Write([]byte("hello"))
	require.NoError(t, err)
	corrupt := append([]byte(nil), ciphertext...)
	corrupt[len(corrupt)-1] ^= 0xFF

	outcome, _, err := responder.Feed(corrupt)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrDuplicatePacket)
	assert.Equal(t, OutcomeNone, outcome)
}

func TestFeedTransportBeforeEstablishedFails(t *testing.T) {
	priv := randomKey(t)
	peer := randomKey(t)
	tun, err := Open(Responder, priv, peer)
	require.NoError(t, err)

	_, _, err = tun.Feed([]byte("garbage"))
	assert.Error(t, err)
}

func TestWriteBeforeEstablishedFails(t *testing.T) {
	priv := randomKey(t)
	peer := randomKey(t)
	tun, err := Open(Responder, priv, peer)
	require.NoError(t, err)

	_, err = tun.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrNotEstablished)
}

