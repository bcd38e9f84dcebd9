package schema

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/suite"
)

type sample struct {
	Title   [16]byte `attr:"title"`
	Count   int32    `attr:"count"`
	Total   int64    `attr:"total"`
	Scratch [4]int32 `attr:"-"`
	Note    [8]byte
}

type TableTestSuite struct {
	suite.Suite
	tbl *Table
}

func (s *TableTestSuite) SetupTest() {
	tbl, err := FromStruct(reflect.TypeOf(sample{}))
	s.Require().NoError(err)
	s.tbl = tbl
}

func (s *TableTestSuite) TestDescriptors() {
	s.Require().Equal(3, s.tbl.Len())
	s.Equal([]string{"title", "count", "total"}, s.tbl.Names())
	s.Equal(int(reflect.TypeOf(sample{}).Size()), s.tbl.RecordSize())

	title, err := s.tbl.Resolve("title")
	s.Require().NoError(err)
	s.Equal(Descriptor{Name: "title", Offset: 0, Kind: KindText, Size: 16}, title)

	count, err := s.tbl.Resolve("count")
	s.Require().NoError(err)
	s.Equal(KindInteger, count.Kind)
	s.Equal(16, count.Offset)
	s.Equal(4, count.Size)

	total, err := s.tbl.Resolve("total")
	s.Require().NoError(err)
	s.Equal(8, total.Size)
}

func (s *TableTestSuite) TestBijection() {
	for _, name := range s.tbl.Names() {
		d, err := s.tbl.Resolve(name)
		s.Require().NoError(err)
		back, err := s.tbl.ResolveByOffset(d.Offset)
		s.Require().NoError(err)
		s.Equal(name, back.Name)
		s.Equal(d, back)
	}
}

func (s *TableTestSuite) TestLookupFailures() {
	_, err := s.tbl.Resolve("nope")
	s.ErrorIs(err, ErrUnknownAttribute)
	_, err = s.tbl.Resolve("Title")
	s.ErrorIs(err, ErrUnknownAttribute)

	// inside an attribute but not at its start
	_, err = s.tbl.ResolveByOffset(1)
	s.ErrorIs(err, ErrUnknownOffset)
	_, err = s.tbl.ResolveByOffset(-1)
	s.ErrorIs(err, ErrUnknownOffset)
	_, err = s.tbl.ResolveByOffset(s.tbl.RecordSize())
	s.ErrorIs(err, ErrUnknownOffset)
}

func (s *TableTestSuite) TestDescriptorsIsACopy() {
	ds := s.tbl.Descriptors()
	ds[0].Name = "changed"
	d, err := s.tbl.Resolve("title")
	s.Require().NoError(err)
	s.Equal("title", d.Name)
}

func (s *TableTestSuite) TestInvalidLayouts() {
	type badType struct {
		F float64 `attr:"f"`
	}
	type dupName struct {
		A int32 `attr:"a"`
		B int32 `attr:"a"`
	}
	type emptyName struct {
		A int32 `attr:""`
	}
	type oneByte struct {
		A [1]byte `attr:"a"`
	}
	for _, v := range []any{badType{}, dupName{}, emptyName{}, oneByte{}, 7} {
		_, err := FromStruct(reflect.TypeOf(v))
		s.ErrorIs(err, ErrInvalidLayout, "%T", v)
	}
	s.Panics(func() { MustFromStruct(reflect.TypeOf(badType{})) })
}

func (s *TableTestSuite) TestKindString() {
	s.Equal("Integer", KindInteger.String())
	s.Equal("Text", KindText.String())
	s.Equal("Kind(9)", Kind(9).String())
}

func TestTableTestSuite(t *testing.T) {
	suite.Run(t, new(TableTestSuite))
}
