package schema

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSchemaLookupAndAlias(t *testing.T) {
	s := New()
	require.NoError(t, s.Add(Record("conn", F("resp_p", Type{Kind: KindPort}))))
	require.ErrorIs(t, s.Add(Record("conn")), ErrDuplicateType)

	got, err := s.Lookup("conn")
	require.NoError(t, err)
	require.Equal(t, "conn", got.Name)

	require.NoError(t, s.Alias("connection", "conn"))
	aliased, err := s.Lookup("connection")
	require.NoError(t, err)
	require.Equal(t, "conn", aliased.Name)

	_, err = s.Lookup("nope")
	require.ErrorIs(t, err, ErrUnknownType)
}

func TestTypeCongruenceIgnoresName(t *testing.T) {
	a := Record("conn_a", F("port", Type{Kind: KindPort}), F("proto", Type{Kind: KindString}))
	b := Record("conn_b", F("port", Type{Kind: KindPort}), F("proto", Type{Kind: KindString}))
	require.True(t, a.Congruent(b))

	c := Record("conn_c", F("port", Type{Kind: KindPort}))
	require.False(t, a.Congruent(c))

	d := Record("conn_d", F("port", Type{Kind: KindString}), F("proto", Type{Kind: KindString}))
	require.False(t, a.Congruent(d))
}

func TestSchemaCongruentWith(t *testing.T) {
	base := New()
	require.NoError(t, base.Add(Record("conn", F("port", Type{Kind: KindPort}))))

	discovered := New()
	require.NoError(t, discovered.Add(Record("conn", F("port", Type{Kind: KindPort}))))
	require.NoError(t, base.CongruentWith(discovered))

	mismatched := New()
	require.NoError(t, mismatched.Add(Record("conn", F("port", Type{Kind: KindString}))))
	require.Error(t, base.CongruentWith(mismatched))
}

func TestValueMarshalRoundTrip(t *testing.T) {
	addr := netip.MustParseAddr("10.0.0.1")
	subnet := netip.MustParsePrefix("10.0.0.0/24")

	cases := []Value{
		{Kind: KindBool, Bool: true},
		{Kind: KindInt, Int: -42},
		{Kind: KindCount, Count: 42},
		{Kind: KindReal, Real: 3.25},
		{Kind: KindString, Str: "mozilla"},
		{Kind: KindPattern, Pattern: `^www\..*`},
		{Kind: KindAddress, Addr: addr},
		{Kind: KindSubnet, Subnet: subnet},
		{Kind: KindPort, Port: 995},
		{Kind: KindEnum, Enum: "TCP"},
	}
	for _, v := range cases {
		data, err := v.Marshal()
		require.NoError(t, err)
		got, err := Unmarshal(data, v.Kind)
		require.NoError(t, err)
		switch v.Kind {
		case KindAddress:
			require.Equal(t, v.Addr, got.Addr)
		case KindSubnet:
			require.Equal(t, v.Subnet, got.Subnet)
		default:
			require.Equal(t, v, got)
		}
	}
}

func TestValueMarshalRoundTripsNestedVector(t *testing.T) {
	v := Value{
		Kind: KindVector,
		Vector: []Value{
			{Kind: KindInt, Int: 1},
			{Kind: KindInt, Int: 2},
			{Kind: KindInt, Int: 3},
		},
	}
	data, err := v.Marshal()
	require.NoError(t, err)
	got, err := Unmarshal(data, KindVector)
	require.NoError(t, err)
	require.Len(t, got.Vector, 3)
	for i, e := range got.Vector {
		require.Equal(t, int64(i+1), e.Int)
	}
}
