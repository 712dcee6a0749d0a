package ingest

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsFloat64HandlesIntAndFloatArrays(t *testing.T) {
	pool := memory.NewGoAllocator()

	ib := array.NewInt64Builder(pool)
	ib.AppendValues([]int64{7, 0}, []bool{true, false})
	intArr := ib.NewArray()
	defer intArr.Release()

	v, ok, err := asFloat64(intArr, 0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 7.0, v)

	_, ok, err = asFloat64(intArr, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	fb := array.NewFloat64Builder(pool)
	fb.AppendValues([]float64{3.5}, []bool{true})
	floatArr := fb.NewArray()
	defer floatArr.Release()

	v, ok, err = asFloat64(floatArr, 0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3.5, v)
}

func TestAsFloat64RejectsNonNumericArray(t *testing.T) {
	pool := memory.NewGoAllocator()
	sb := array.NewStringBuilder(pool)
	sb.Append("not-a-number")
	strArr := sb.NewArray()
	defer strArr.Release()

	_, _, err := asFloat64(strArr, 0)
	assert.Error(t, err)
}

func buildRecordWithPaymentType(t *testing.T, paymentTypeIsString bool) arrow.Record {
	t.Helper()
	pool := memory.NewGoAllocator()

	var fields []arrow.Field
	var cols []arrow.Array

	idb := array.NewInt64Builder(pool)
	idb.Append(1)
	vendorArr := idb.NewArray()
	fields = append(fields, arrow.Field{Name: "VendorID", Type: arrow.PrimitiveTypes.Int64})
	cols = append(cols, vendorArr)

	if paymentTypeIsString {
		sb := array.NewStringBuilder(pool)
		sb.Append("CASH")
		ptArr := sb.NewArray()
		fields = append(fields, arrow.Field{Name: "payment_type", Type: arrow.BinaryTypes.String})
		cols = append(cols, ptArr)
	} else {
		pb := array.NewInt64Builder(pool)
		pb.Append(1)
		ptArr := pb.NewArray()
		fields = append(fields, arrow.Field{Name: "payment_type", Type: arrow.PrimitiveTypes.Int64})
		cols = append(cols, ptArr)
	}

	schema := arrow.NewSchema(fields, nil)
	return array.NewRecord(schema, cols, 1)
}

func TestIntPtrRejectsNonNumericColumn(t *testing.T) {
	rec := buildRecordWithPaymentType(t, true)
	defer rec.Release()

	colIdx := map[string]int{"vendorid": 0, "payment_type": 1}
	_, err := intPtr(rec, colIdx, "payment_type", 0)
	assert.Error(t, err)
}

func TestIntPtrAcceptsIntegralNumericColumn(t *testing.T) {
	rec := buildRecordWithPaymentType(t, false)
	defer rec.Release()

	colIdx := map[string]int{"vendorid": 0, "payment_type": 1}
	v, err := intPtr(rec, colIdx, "payment_type", 0)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, int32(1), *v)
}

func TestIntPtrMissingColumnReturnsNilNoError(t *testing.T) {
	rec := buildRecordWithPaymentType(t, false)
	defer rec.Release()

	colIdx := map[string]int{"vendorid": 0}
	v, err := intPtr(rec, colIdx, "ratecodeid", 0)
	require.NoError(t, err)
	assert.Nil(t, v)
}
