package relay

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestOutbox(t *testing.T) (*Outbox, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "outbox")
	o, err := OpenOutbox(path)
	require.NoError(t, err)
	return o, path
}

func envelopes(subject string, n int) []Envelope {
	out := make([]Envelope, n)
	for i := range out {
		out[i] = Envelope{Subject: subject, Code: uint32(i + 1), Bits: uint32(i + 1), Payload: []byte{byte(i)}}
	}
	return out
}

func TestOutbox_AppendAssignsSequence(t *testing.T) {
	o, _ := openTestOutbox(t)
	defer o.Close()

	envs := envelopes("orders", 3)
	require.NoError(t, o.Append(envs))
	assert.Equal(t, []uint64{1, 2, 3}, []uint64{envs[0].Seq, envs[1].Seq, envs[2].Seq})
	assert.Equal(t, uint64(3), o.LastSeq())

	require.NoError(t, o.Append(nil))
	assert.Equal(t, uint64(3), o.LastSeq())
}

func TestOutbox_ReadFrom(t *testing.T) {
	o, _ := openTestOutbox(t)
	defer o.Close()
	require.NoError(t, o.Append(envelopes("orders", 5)))

	got, err := o.ReadFrom(0, 0)
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, "orders", got[0].Subject)
	assert.Equal(t, []byte{0}, got[0].Payload)

	got, err = o.ReadFrom(2, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(3), got[0].Seq)
	assert.Equal(t, uint64(4), got[1].Seq)

	got, err = o.ReadFrom(5, 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestOutbox_ReopenKeepsSequenceAndCursors(t *testing.T) {
	o, path := openTestOutbox(t)
	require.NoError(t, o.Append(envelopes("orders", 4)))
	require.NoError(t, o.AdvanceCursor("bus", 2))
	require.NoError(t, o.Close())

	o, err := OpenOutbox(path)
	require.NoError(t, err)
	defer o.Close()

	assert.Equal(t, uint64(4), o.LastSeq())
	c, err := o.Cursor("bus")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), c)

	c, err = o.Cursor("new")
	require.NoError(t, err)
	assert.Zero(t, c)

	envs := envelopes("orders", 1)
	require.NoError(t, o.Append(envs))
	assert.Equal(t, uint64(5), envs[0].Seq)
}

func TestOutbox_Cleanup(t *testing.T) {
	o, _ := openTestOutbox(t)
	defer o.Close()
	require.NoError(t, o.Append(envelopes("orders", 10)))

	require.NoError(t, o.AdvanceCursor("a", 6))
	require.NoError(t, o.AdvanceCursor("b", 4))
	o.cleanup()

	got, err := o.ReadFrom(0, 100)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, uint64(5), got[0].Seq)
	assert.Len(t, got, 6)
}

func TestOutbox_PruneCursors(t *testing.T) {
	o, _ := openTestOutbox(t)
	defer o.Close()
	require.NoError(t, o.Append(envelopes("orders", 3)))
	require.NoError(t, o.AdvanceCursor("kept", 3))
	require.NoError(t, o.AdvanceCursor("gone", 1))

	require.NoError(t, o.PruneCursors([]string{"kept"}))
	o.cleanup()

	got, err := o.ReadFrom(0, 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestOutbox_Closed(t *testing.T) {
	o, _ := openTestOutbox(t)
	require.NoError(t, o.Close())

	assert.ErrorIs(t, o.Close(), ErrOutboxClosed)
	assert.ErrorIs(t, o.Append(envelopes("x", 1)), ErrOutboxClosed)
	_, err := o.ReadFrom(0, 1)
	assert.ErrorIs(t, err, ErrOutboxClosed)
	_, err = o.Cursor("x")
	assert.ErrorIs(t, err, ErrOutboxClosed)
	assert.ErrorIs(t, o.AdvanceCursor("x", 1), ErrOutboxClosed)
}

func TestOutboxKeyOrdering(t *testing.T) {
	keys := []uint64{1, 15, 16, 255, 256, 1 << 40}
	for i := 1; i < len(keys); i++ {
		assert.Less(t, string(outboxKey(keys[i-1])), string(outboxKey(keys[i])), fmt.Sprint(keys[i]))
	}
}
