package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvelope_Headers(t *testing.T) {
	env := Envelope{
		Seq:       42,
		Subject:   "orders",
		SubjectID: 7,
		Code:      0x20000010,
		Group:     2,
		Bits:      0x10,
		Instance:  "node-a",
	}

	assert.Equal(t, []Header{
		{HeaderSubject, "orders"},
		{HeaderSubjectID, "7"},
		{HeaderCode, "0x20000010"},
		{HeaderGroup, "2"},
		{HeaderBits, "0x10"},
		{HeaderSeq, "42"},
		{HeaderInstance, "node-a"},
	}, env.Headers())

	env.Instance = ""
	h := env.Headers()
	assert.Len(t, h, 6)
	assert.NotContains(t, h, Header{HeaderInstance, ""})
}
