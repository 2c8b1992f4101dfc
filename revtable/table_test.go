package revtable

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nordhaven/rsmcore/api"
)

func TestTable_GetUnregisteredIsNotRunning(t *testing.T) {
	tb := New()
	_, err := tb.Get("counter")
	assert.ErrorIs(t, err, api.ErrNotRunning)
}

func TestTable_RegisterStartsAtNoRevision(t *testing.T) {
	tb := New()
	tb.Register("counter")

	rev, err := tb.Get("counter")
	assert.NoError(t, err)
	assert.Equal(t, api.NoRevision, rev)
}

func TestTable_PublishThenUnregister(t *testing.T) {
	tb := New()
	tb.Register("counter")
	tb.Publish("counter", api.Revision{HistoryID: "hist-1", Seqno: 3})

	rev, err := tb.Get("counter")
	assert.NoError(t, err)
	assert.Equal(t, api.Revision{HistoryID: "hist-1", Seqno: 3}, rev)

	tb.Unregister("counter")
	_, err = tb.Get("counter")
	assert.ErrorIs(t, err, api.ErrNotRunning)
}
