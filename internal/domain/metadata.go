package domain

// MetadataRow: строка таблицы METADATA_DATA, одна на загруженный файл.
type MetadataRow struct {
	Project       string
	Study         string
	SampleBarcode string
	CaseBarcode   string
	FilePath      string
	FileName      string
	DataType      string
	Pipeline      string
	Platform      string
}

// MetadataSample: строка таблицы METADATA_SAMPLES, одна на sample barcode
// и тип данных.
type MetadataSample struct {
	Project       string
	Study         string
	SampleBarcode string
	CaseBarcode   string
	DataType      string
}

// Типы признаков в FEATURE_DEFS.
const (
	FeatureTypeString  = 0
	FeatureTypeNumeric = 1
)

// FeatureDef: определение признака пользовательских данных.
type FeatureDef struct {
	Study       string
	FeatureName string
	BqMapID     string // project:dataset:table:column
	SharedMapID string
	Type        int
}
