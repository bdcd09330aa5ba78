package diag

import (
	"fmt"
	"testing"

	"github.com/maxpert/herald/mask"
	"github.com/maxpert/herald/observe"
	"github.com/maxpert/herald/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nop(mask.Code, *observe.Subject, any) {}

type env struct {
	reg    *registry.Registry
	orders *observe.Subject
	users  *observe.Subject
	subs   []*observe.FuncSubscriber
}

func setup(t *testing.T) *env {
	t.Helper()
	e := &env{reg: registry.New()}
	e.orders = observe.New("orders.created", observe.WithRegistry(e.reg))
	e.users = observe.New("users.login", observe.WithRegistry(e.reg))
	for i := 0; i < 3; i++ {
		e.subs = append(e.subs, observe.NewFuncSubscriber(nop))
	}
	e.orders.Attach(e.subs[0], 0)
	e.orders.Attach(e.subs[1], 0)
	e.users.Attach(e.subs[2], 0)
	return e
}

func (e *env) ordersLine() string {
	return fmt.Sprintf("orders.created(2){#%d,#%d}", e.subs[0].ID(), e.subs[1].ID())
}

func (e *env) usersLine() string {
	return fmt.Sprintf("users.login(1){#%d}", e.subs[2].ID())
}

func TestDescribe(t *testing.T) {
	e := setup(t)

	assert.Equal(t, e.ordersLine(), Describe(e.orders))
	assert.Equal(t, e.usersLine(), Describe(e.users))

	empty := observe.New("empty", observe.WithRegistry(nil))
	assert.Equal(t, "empty(0){}", Describe(empty))
}

func TestDigestIgnoresOrder(t *testing.T) {
	assert.Equal(t, Digest([]uint64{3, 1, 2}), Digest([]uint64{1, 2, 3}))
	assert.NotEqual(t, Digest([]uint64{1, 2}), Digest([]uint64{1, 2, 3}))
	assert.Equal(t, Digest(nil), Digest([]uint64{}))
}

func TestCollect(t *testing.T) {
	e := setup(t)
	orders := e.orders
	orders.Mute(0x4)

	r := Collect(e.reg)
	require.Len(t, r.Subjects, 2)
	assert.Equal(t, 3, r.Subscribers)
	assert.NotZero(t, r.Timestamp)

	o, ok := r.Find("orders.created")
	require.True(t, ok)
	assert.Equal(t, orders.ID(), o.ID)
	assert.Equal(t, []uint64{e.subs[0].ID(), e.subs[1].ID()}, o.Identities)
	assert.Equal(t, uint32(0x4), o.Muted)
	assert.Equal(t, 2, o.Pool.Active)
	assert.Equal(t, Digest(o.Identities), o.Digest)

	_, ok = r.Find("missing")
	assert.False(t, ok)
}

func TestCollectMatching(t *testing.T) {
	e := setup(t)

	r, err := CollectMatching(e.reg, "orders.*")
	require.NoError(t, err)
	require.Len(t, r.Subjects, 1)
	assert.Equal(t, "orders.created", r.Subjects[0].Name)

	_, err = CollectMatching(e.reg, "[")
	assert.Error(t, err)
}

func TestEncodeDecode(t *testing.T) {
	e := setup(t)
	r := Collect(e.reg)

	data, err := Encode(r)
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, r, got)

	_, err = Decode([]byte{0xc1})
	assert.Error(t, err)
}

func TestDump(t *testing.T) {
	e := setup(t)

	out := Dump(e.reg)
	assert.Contains(t, out, "subjects=2 subscribers=3")
	assert.Contains(t, out, e.ordersLine())
	assert.Contains(t, out, e.usersLine())
}
