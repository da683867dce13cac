package catalog

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/spf13/afero"

	"github.com/Blackdeer1524/heapdb/src/storage/heap"
	"github.com/Blackdeer1524/heapdb/src/storage/tuple"
)

var ErrInvalidSchema = errors.New("invalid schema")

const DataFileExt = ".dat"

// TableSchema is one line of a schema file:
//
//	name (field type [pk], field type, ...)
//
// where type is int, string or string(N).
type TableSchema struct {
	Name       string
	Desc       *tuple.TupleDesc
	PrimaryKey string
}

func (s TableSchema) String() string {
	fields := make([]string, s.Desc.NumFields())
	for i := range fields {
		name := s.Desc.FieldName(i)
		fields[i] = name + " " + s.Desc.FieldType(i).String()
		if name == s.PrimaryKey && name != "" {
			fields[i] += " pk"
		}
	}

	return fmt.Sprintf("%s (%s)", s.Name, strings.Join(fields, ", "))
}

func ParseSchema(r io.Reader) ([]TableSchema, error) {
	var res []TableSchema

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		schema, err := parseTable(line)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", lineNo)
		}
		res = append(res, schema)
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read schema")
	}

	return res, nil
}

func parseTable(line string) (TableSchema, error) {
	open := strings.Index(line, "(")
	closing := strings.LastIndex(line, ")")
	if open <= 0 || closing < open {
		return TableSchema{}, fmt.Errorf("%w: %q", ErrInvalidSchema, line)
	}

	name := strings.TrimSpace(line[:open])
	if name == "" || strings.ContainsAny(name, " \t/") {
		return TableSchema{}, fmt.Errorf("%w: bad table name %q", ErrInvalidSchema, name)
	}

	var (
		types      []tuple.FieldType
		names      []string
		primaryKey string
	)
	for _, def := range strings.Split(line[open+1:closing], ",") {
		parts := strings.Fields(def)
		if len(parts) < 2 || len(parts) > 3 {
			return TableSchema{}, fmt.Errorf("%w: bad field %q", ErrInvalidSchema, def)
		}

		ft, err := parseType(parts[1])
		if err != nil {
			return TableSchema{}, err
		}

		if len(parts) == 3 {
			if parts[2] != "pk" {
				return TableSchema{}, fmt.Errorf("%w: unknown annotation %q", ErrInvalidSchema, parts[2])
			}
			primaryKey = parts[0]
		}

		names = append(names, parts[0])
		types = append(types, ft)
	}

	return TableSchema{
		Name:       name,
		Desc:       tuple.NewTupleDesc(types, names),
		PrimaryKey: primaryKey,
	}, nil
}

func parseType(s string) (tuple.FieldType, error) {
	s = strings.ToLower(s)

	switch {
	case s == "int":
		return tuple.Int(), nil
	case s == "string":
		return tuple.String(tuple.DefaultStringLen), nil
	case strings.HasPrefix(s, "string(") && strings.HasSuffix(s, ")"):
		n, err := strconv.Atoi(s[len("string(") : len(s)-1])
		if err != nil || n <= 0 {
			return tuple.FieldType{}, fmt.Errorf("%w: bad string length in %q", ErrInvalidSchema, s)
		}
		return tuple.String(n), nil
	}

	return tuple.FieldType{}, fmt.Errorf("%w: unknown type %q", ErrInvalidSchema, s)
}

// DataFilePath is where the tuples of the named table live.
func DataFilePath(dataDir string, name string) string {
	return filepath.Join(dataDir, name+DataFileExt)
}

// LoadSchema reads the schema file and registers a heap file for every table
// it describes. Data files are looked up next to the schema file.
func (c *Catalog) LoadSchema(fs afero.Fs, path string, pageSize int, pool heap.PagePool) error {
	f, err := fs.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open schema %s", path)
	}
	defer f.Close()

	schemas, err := ParseSchema(f)
	if err != nil {
		return errors.Wrapf(err, "parse schema %s", path)
	}

	dataDir := filepath.Dir(path)
	for _, schema := range schemas {
		file, err := heap.NewFile(fs, DataFilePath(dataDir, schema.Name), schema.Desc, pageSize, pool, c.log)
		if err != nil {
			return errors.Wrapf(err, "open table %s", schema.Name)
		}
		c.AddTable(file, schema.Name, schema.PrimaryKey)
	}

	return nil
}
