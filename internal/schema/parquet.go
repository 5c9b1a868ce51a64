package schema

import (
	"fmt"
	"os"

	"github.com/parquet-go/parquet-go"
)

// ReadFileSchema reads the column schema embedded in a parquet file's
// footer. No row data is read at this stage.
func ReadFileSchema(path string) (FileSchema, error) {
	file, err := os.Open(path)
	if err != nil {
		return FileSchema{}, fmt.Errorf("open %q: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		return FileSchema{}, fmt.Errorf("stat %q: %w", path, err)
	}

	parquetFile, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return FileSchema{}, fmt.Errorf("read parquet footer of %q: %w", path, err)
	}

	fileSchema := FileSchema{Path: path}
	for _, field := range parquetFile.Schema().Fields() {
		fileSchema.Fields = append(fileSchema.Fields, Field{
			Name:     field.Name(),
			Type:     semanticType(field),
			Optional: field.Optional(),
		})
	}
	return fileSchema, nil
}

// semanticType folds a parquet physical/logical type into the closed
// semantic set. Groups, repeated fields, and map/list logical types are
// all nested.
func semanticType(field parquet.Field) Type {
	if !field.Leaf() || field.Repeated() {
		return TypeNested
	}

	if logical := field.Type().LogicalType(); logical != nil {
		switch {
		case logical.Map != nil, logical.List != nil, logical.Bson != nil:
			return TypeNested
		case logical.UTF8 != nil, logical.Enum != nil, logical.Json != nil, logical.UUID != nil:
			return TypeText
		case logical.Timestamp != nil, logical.Date != nil, logical.Time != nil:
			return TypeTimestamp
		case logical.Integer != nil:
			return TypeInteger
		case logical.Decimal != nil:
			return TypeFloat
		}
	}

	switch field.Type().Kind() {
	case parquet.Boolean:
		return TypeBoolean
	case parquet.Int32, parquet.Int64:
		return TypeInteger
	case parquet.Int96:
		return TypeTimestamp
	case parquet.Float, parquet.Double:
		return TypeFloat
	default:
		return TypeText
	}
}
