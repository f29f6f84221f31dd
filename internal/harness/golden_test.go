package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/featurestream/internal/ir"
	"github.com/roach88/featurestream/internal/row"
)

func TestSnapshot(t *testing.T) {
	r := NewResult()
	r.AddRowTrace(row.NewMeta(row.ZeroMeta()), 1)
	r.AddRowTrace(row.Row{
		Name:          "parcels",
		SortKeyValues: []ir.Value{ir.String("Lot A"), ir.Null{}},
		Values:        []any{nil, 2.5, []byte("x")},
	}, 2)
	r.AddErrorTrace("SORT_KEY_TYPE", 3)

	got, err := Snapshot("snap", "exec-1", r)
	require.NoError(t, err)

	want := `{"execution_id":"exec-1","scenario":"snap"}
{"container":"meta","matched":0,"max_key":null,"min_key":null,"returned":0,"seq":1}
{"container":"parcels","keys":["Lot A",null],"seq":2,"values":[null,"2.5","x"]}
{"error":"SORT_KEY_TYPE","seq":3}
`
	assert.Equal(t, want, string(got))
}

func TestAssertGolden(t *testing.T) {
	r := NewResult()
	r.AddRowTrace(row.NewMeta(row.MetaInfo{MinKey: ir.Int(1), MaxKey: ir.Int(1), NumberReturned: 1, NumberMatched: -1}), 1)
	r.AddRowTrace(row.Row{Name: "parcels", SortKeyValues: []ir.Value{ir.Int(1)}, Values: []any{int64(1)}}, 2)

	require.NoError(t, AssertGolden(t, "assert_golden", "exec-1", r))
}
