package wiregen

import (
	"go/parser"
	"go/token"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `package demo

type Rank uint8

//wire:generate
type Member struct {
	ID    uint64
	Rank  Rank
	Alias string
	Seen  []Rank
}

// Guild is marked in a longer doc comment.
//
//wire:generate
type Guild struct {
	Name    string
	Crest   [8]byte
	Banner  []byte
	Members []Member
	Scores  []int32
	cache   map[string]int
	Local   uint32 ` + "`wire:\"-\"`" + `
}

type Unmarked struct {
	X int
}
`

func TestParsePlans(t *testing.T) {
	f, err := Parse("demo.go", []byte(sample))
	require.NoError(t, err)
	assert.Equal(t, "demo", f.Package)
	require.Len(t, f.Types, 2)

	member := f.Types[0]
	assert.Equal(t, "Member", member.Name)
	require.Len(t, member.Fields, 4)
	assert.Equal(t, &Plan{Kind: KindScalar, Method: "Uint8", Base: "uint8", Conv: "Rank", GoType: "Rank"}, member.Fields[1].Plan)
	assert.Equal(t, KindSlice, member.Fields[3].Plan.Kind)
	assert.Equal(t, "Rank", member.Fields[3].Plan.Elem.Conv)

	guild := f.Types[1]
	names := make([]string, len(guild.Fields))
	for i, fl := range guild.Fields {
		names[i] = fl.Name
	}
	assert.Equal(t, []string{"Name", "Crest", "Banner", "Members", "Scores"}, names)
	assert.Equal(t, KindByteArray, guild.Fields[1].Plan.Kind)
	assert.Equal(t, KindBytes, guild.Fields[2].Plan.Kind)
	assert.Equal(t, KindStruct, guild.Fields[3].Plan.Elem.Kind)
	assert.Equal(t, "[]Member", guild.Fields[3].Plan.GoType)
}

func TestGenerateCompilesToValidGo(t *testing.T) {
	out, err := Generate("demo.go", []byte(sample), "")
	require.NoError(t, err)

	_, err = parser.ParseFile(token.NewFileSet(), "demo_wire.go", out, 0)
	require.NoError(t, err, string(out))

	src := string(out)
	assert.Contains(t, src, "// Code generated by wiregen; DO NOT EDIT.")
	assert.Contains(t, src, `import "gamewire/wire"`)
	assert.Contains(t, src, "w.WriteUint8(uint8(m.Rank))")
	assert.Contains(t, src, "m.Rank = Rank(v)")
	assert.Contains(t, src, "w.WriteRaw(m.Crest[:])")
	assert.Contains(t, src, "if err := w.WriteByteSequence(m.Banner); err != nil {")
	assert.Contains(t, src, "m.Members = make([]Member, n)")
	assert.Contains(t, src, "if err = m.Members[i].UnmarshalWire(r); err != nil {")
	assert.NotContains(t, src, "Local")
	assert.NotContains(t, src, "Unmarked")
}

func TestGenerateRejects(t *testing.T) {
	cases := map[string]string{
		"platform int": `package x
//wire:generate
type T struct{ N int }`,
		"nested slice": `package x
//wire:generate
type T struct{ N [][]int32 }`,
		"embedded": `package x
type U struct{}
//wire:generate
type T struct{ U }`,
		"unmarked struct": `package x
type U struct{ A uint8 }
//wire:generate
type T struct{ X U }`,
		"map": `package x
//wire:generate
type T struct{ M map[string]uint8 }`,
		"int array": `package x
//wire:generate
type T struct{ A [3]int32 }`,
		"nothing marked": `package x
type T struct{ A uint8 }`,
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Generate("x.go", []byte(src), "")
			assert.Error(t, err)
		})
	}
}

func TestGeneratedMessagesAreCurrent(t *testing.T) {
	src, err := os.ReadFile("../../message/game.go")
	require.NoError(t, err)
	want, err := os.ReadFile("../../message/message_wire.go")
	require.NoError(t, err)

	got, err := Generate("game.go", src, "")
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got), "run go generate ./message")
}
