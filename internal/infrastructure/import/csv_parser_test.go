package csvimport

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCSVParser(t *testing.T) {
	t.Run("Valid UTF-8 CSV", func(t *testing.T) {
		parser, err := NewCSVParser(strings.NewReader("archiveid,override\na,b"))

		require.NoError(t, err)
		require.NotNil(t, parser)
	})

	t.Run("UTF-8 BOM is stripped", func(t *testing.T) {
		parser, err := NewCSVParser(strings.NewReader("\xEF\xBB\xBFArchiveId,Override\na,b"))
		require.NoError(t, err)
		require.NoError(t, parser.ParseHeader())

		assert.Equal(t, "archiveid", parser.Headers()[0])
	})

	t.Run("Empty file returns error", func(t *testing.T) {
		parser, err := NewCSVParser(strings.NewReader(""))

		assert.Nil(t, parser)
		assert.ErrorIs(t, err, ErrEmptyFile)
	})

	t.Run("Invalid encoding returns error", func(t *testing.T) {
		_, err := NewCSVParser(strings.NewReader("archiveid\n\xff\xfe\xfd"))
		assert.ErrorIs(t, err, ErrInvalidEncoding)
	})

	t.Run("Multi-byte rune across the peek boundary", func(t *testing.T) {
		// "é" is two bytes; place it so the first byte is the last peeked byte
		content := "archiveid\n" + strings.Repeat("a", 4096-len("archiveid\n")-1) + "é\n"
		_, err := NewCSVParser(strings.NewReader(content))
		assert.NoError(t, err)
	})

	t.Run("Custom delimiter", func(t *testing.T) {
		parser, err := NewCSVParser(strings.NewReader("archiveid;override\na;b"), WithDelimiter(';'))
		require.NoError(t, err)
		require.NoError(t, parser.ParseHeader())

		assert.Equal(t, []string{"archiveid", "override"}, parser.Headers())
	})
}

func TestParseHeader(t *testing.T) {
	t.Run("Headers are normalised", func(t *testing.T) {
		parser, _ := NewCSVParser(strings.NewReader("  ArchiveId  ,ArchiveDescription,CREATIONDATE\n"))

		require.NoError(t, parser.ParseHeader())
		assert.Equal(t, []string{"archiveid", "archivedescription", "creationdate"}, parser.Headers())
		assert.True(t, parser.HasHeader("ArchiveID"))
		assert.False(t, parser.HasHeader("size"))
	})

	t.Run("ValidateHeaders lists missing columns", func(t *testing.T) {
		parser, _ := NewCSVParser(strings.NewReader("archiveid,size\n"))
		require.NoError(t, parser.ParseHeader())

		missing := parser.ValidateHeaders([]string{"archiveid", "creationdate", "archivedescription"})
		assert.Equal(t, []string{"creationdate", "archivedescription"}, missing)
	})

	t.Run("Duplicate headers resolve to the first column", func(t *testing.T) {
		parser, _ := NewCSVParser(strings.NewReader("archiveid,ArchiveId\na,b\n"))
		require.NoError(t, parser.ParseHeader())

		row, err := parser.ReadRow()
		require.NoError(t, err)
		assert.Equal(t, "a", row.Get("archiveid"))
	})

	t.Run("Only blank lines means missing header", func(t *testing.T) {
		parser, err := NewCSVParser(strings.NewReader("\n\n"))
		require.NoError(t, err)
		assert.ErrorIs(t, parser.ParseHeader(), ErrMissingHeader)
	})
}

func TestReadRow(t *testing.T) {
	t.Run("Values are kept verbatim by default", func(t *testing.T) {
		parser, _ := NewCSVParser(strings.NewReader("archiveid,override\nabc,  spaced  \n"))
		require.NoError(t, parser.ParseHeader())

		row, err := parser.ReadRow()
		require.NoError(t, err)
		assert.Equal(t, 2, row.LineNumber)
		assert.Equal(t, "abc", row.Get("archiveid"))
		assert.Equal(t, "  spaced  ", row.Get("override"))

		_, err = parser.ReadRow()
		assert.Equal(t, io.EOF, err)
		assert.Equal(t, 1, parser.TotalRows())
	})

	t.Run("Trim space option", func(t *testing.T) {
		parser, _ := NewCSVParser(strings.NewReader("archiveid,override\n abc ,  x  \n"), WithTrimSpace(true))
		require.NoError(t, parser.ParseHeader())

		row, err := parser.ReadRow()
		require.NoError(t, err)
		assert.Equal(t, "abc", row.Get("archiveid"))
		assert.Equal(t, "x", row.Get("override"))
	})

	t.Run("Short rows are padded", func(t *testing.T) {
		parser, _ := NewCSVParser(strings.NewReader("archiveid,override\nabc\n"))
		require.NoError(t, parser.ParseHeader())

		row, err := parser.ReadRow()
		require.NoError(t, err)
		assert.Equal(t, "", row.Get("override"))
	})

	t.Run("Parse failures become row errors", func(t *testing.T) {
		parser, _ := NewCSVParser(strings.NewReader("archiveid,override\n\"abc,x\n"), WithLazyQuotes(false))
		require.NoError(t, parser.ParseHeader())

		_, err := parser.ReadRow()
		var rowErr RowError
		require.True(t, errors.As(err, &rowErr))
		assert.Equal(t, ErrCodeImportCSVParsing, rowErr.Code)
	})
}

func TestEach(t *testing.T) {
	parser, _ := NewCSVParser(strings.NewReader("archiveid,override\na,1\n,\nb,2\n"))
	require.NoError(t, parser.ParseHeader())

	var ids []string
	err := parser.Each(func(row *Row) error {
		ids = append(ids, row.Get("archiveid"))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
	assert.Equal(t, 4, parser.Line())

	t.Run("callback error stops iteration", func(t *testing.T) {
		parser, _ := NewCSVParser(strings.NewReader("archiveid\na\nb\n"))
		require.NoError(t, parser.ParseHeader())

		stop := errors.New("stop")
		calls := 0
		err := parser.Each(func(*Row) error {
			calls++
			return stop
		})
		assert.ErrorIs(t, err, stop)
		assert.Equal(t, 1, calls)
	})
}
