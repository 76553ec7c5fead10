package table

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
)

// ScanParquet returns a lazy scan of a Parquet file.
func ScanParquet(path string) ScanFunc {
	return func() (*Table, error) {
		return readParquet(path)
	}
}

func readParquet(path string) (*Table, error) {
	rdr, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet %s: %w", path, err)
	}
	defer rdr.Close()

	fr, err := pqarrow.NewFileReader(rdr, pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	if err != nil {
		return nil, fmt.Errorf("failed to read parquet %s: %w", path, err)
	}

	at, err := fr.ReadTable(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to read parquet %s: %w", path, err)
	}
	defer at.Release()

	cols := make([]Column, at.NumCols())
	for i := 0; i < int(at.NumCols()); i++ {
		col := at.Column(i)
		values, err := arrowValues(col.Data())
		if err != nil {
			return nil, fmt.Errorf("column %q in %s: %w", col.Name(), path, err)
		}
		cols[i] = Column{Name: col.Name(), Values: values}
	}
	return FromColumns(cols)
}

// arrowValues flattens a chunked arrow column into plain Go values.
func arrowValues(chunked *arrow.Chunked) ([]any, error) {
	var out []any
	for _, chunk := range chunked.Chunks() {
		for i := 0; i < chunk.Len(); i++ {
			if chunk.IsNull(i) {
				out = append(out, nil)
				continue
			}
			v, err := arrowValue(chunk, i)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
	}
	return out, nil
}

func arrowValue(arr arrow.Array, i int) (any, error) {
	switch a := arr.(type) {
	case *array.Float64:
		return a.Value(i), nil
	case *array.Float32:
		return float64(a.Value(i)), nil
	case *array.Int64:
		return float64(a.Value(i)), nil
	case *array.Int32:
		return float64(a.Value(i)), nil
	case *array.String:
		return a.Value(i), nil
	case *array.LargeString:
		return a.Value(i), nil
	case *array.Boolean:
		return a.Value(i), nil
	case *array.Date32:
		return a.Value(i).ToTime().UTC(), nil
	case *array.Date64:
		return a.Value(i).ToTime().UTC(), nil
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		return a.Value(i).ToTime(unit).UTC(), nil
	default:
		return nil, fmt.Errorf("unsupported parquet type %s", arr.DataType())
	}
}
