package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"strings"
)

// Дискриминанты типа данных файла.
const (
	DataTypeUserGen  = "user_gen"
	DataTypeLowLevel = "low_level"
	DataTypeVCF      = "vcf_file"
)

// DataKind: группа обработки файла.
type DataKind int

const (
	KindUserGen DataKind = iota
	KindVCF
	KindMolecular
	KindLowLevel
)

// String возвращает имя группы для логов.
func (k DataKind) String() string {
	switch k {
	case KindUserGen:
		return "user_gen"
	case KindVCF:
		return "vcf"
	case KindMolecular:
		return "molecular"
	case KindLowLevel:
		return "low_level"
	default:
		return "unknown"
	}
}

// FlexString принимает в JSON как строку, так и число.
// Идентификаторы проектов приходят от front door в обоих видах.
type FlexString string

// UnmarshalJSON реализует json.Unmarshaler.
func (s *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = FlexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number: %w", err)
	}
	*s = FlexString(n.String())
	return nil
}

// MetadataTables: имена таблиц метаданных пользователя.
type MetadataTables struct {
	MetadataData    string `json:"METADATA_DATA"`
	MetadataSamples string `json:"METADATA_SAMPLES"`
	FeatureDefs     string `json:"FEATURE_DEFS"`
}

// Column: описание колонки user_gen файла.
type Column struct {
	Name     string     `json:"NAME"`
	Type     string     `json:"TYPE"`
	Index    int        `json:"INDEX"`
	MapTo    string     `json:"MAP_TO,omitempty"`
	SharedID FlexString `json:"SHARED_ID,omitempty"`
}

// FeatureName возвращает имя колонки с учётом MAP_TO.
func (c Column) FeatureName() string {
	if c.MapTo != "" {
		return c.MapTo
	}
	return c.Name
}

// FileEntry: один файл из job descriptor.
type FileEntry struct {
	DataType           string   `json:"DATATYPE"`
	FileName           string   `json:"FILENAME"`
	BigQueryTableName  string   `json:"BIGQUERY_TABLE_NAME"`
	SampleBarcode      string   `json:"SAMPLEBARCODE,omitempty"`
	CaseBarcode        string   `json:"CASEBARCODE,omitempty"`
	ParticipantBarcode string   `json:"PARTICIPANTBARCODE,omitempty"`
	Platform           string   `json:"PLATFORM,omitempty"`
	Pipeline           string   `json:"PIPELINE,omitempty"`
	Columns            []Column `json:"COLUMNS,omitempty"`
}

// Kind возвращает группу обработки по DATATYPE.
// Всё, что не user_gen, low_level или vcf_file, считается molecular.
func (f FileEntry) Kind() DataKind {
	switch f.DataType {
	case DataTypeUserGen:
		return KindUserGen
	case DataTypeLowLevel:
		return KindLowLevel
	case DataTypeVCF:
		return KindVCF
	default:
		return KindMolecular
	}
}

// BucketName возвращает имя bucket'а: первый сегмент FILENAME.
func (f FileEntry) BucketName() string {
	bucket, _, _ := strings.Cut(f.FileName, "/")
	return bucket
}

// BlobName возвращает путь внутри bucket'а.
func (f FileEntry) BlobName() string {
	_, blob, _ := strings.Cut(f.FileName, "/")
	return blob
}

// BaseName возвращает имя файла без пути.
func (f FileEntry) BaseName() string {
	return path.Base(f.FileName)
}

// JobDescriptor: JSON-описание загрузки, сохранённое front door'ом.
type JobDescriptor struct {
	GoogleProject   string         `json:"GOOGLE_PROJECT"`
	UserProject     FlexString     `json:"USER_PROJECT"`
	Study           FlexString     `json:"STUDY"`
	Bucket          string         `json:"BUCKET"`
	BigQueryDataset string         `json:"BIGQUERY_DATASET"`
	MetadataTables  MetadataTables `json:"USER_METADATA_TABLES"`
	Files           []FileEntry    `json:"FILES"`
}

// ParseDescriptor разбирает и проверяет job descriptor.
// Любая проблема возвращается как *ValidationError.
func ParseDescriptor(data []byte) (*JobDescriptor, error) {
	var desc JobDescriptor
	if err := json.Unmarshal(data, &desc); err != nil {
		return nil, NewValidationError("", "Upload configuration is not valid JSON", err)
	}

	if err := desc.Validate(); err != nil {
		return nil, err
	}
	return &desc, nil
}

// Validate проверяет обязательные поля.
func (d *JobDescriptor) Validate() error {
	required := []struct {
		field string
		value string
	}{
		{"GOOGLE_PROJECT", d.GoogleProject},
		{"USER_PROJECT", string(d.UserProject)},
		{"STUDY", string(d.Study)},
		{"BUCKET", d.Bucket},
		{"BIGQUERY_DATASET", d.BigQueryDataset},
		{"USER_METADATA_TABLES.METADATA_DATA", d.MetadataTables.MetadataData},
		{"USER_METADATA_TABLES.METADATA_SAMPLES", d.MetadataTables.MetadataSamples},
		{"USER_METADATA_TABLES.FEATURE_DEFS", d.MetadataTables.FeatureDefs},
	}

	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return NewValidationError(r.field, "Upload configuration is missing "+r.field, nil)
		}
	}

	if len(d.Files) == 0 {
		return NewValidationError("FILES", "Upload configuration contains no files", nil)
	}

	for i, f := range d.Files {
		if f.DataType == "" {
			return NewValidationError("FILES", fmt.Sprintf("File %d has no DATATYPE", i+1), nil)
		}
		if f.FileName == "" {
			return NewValidationError("FILES", fmt.Sprintf("File %d has no FILENAME", i+1), nil)
		}
	}

	return nil
}

// Partition раскладывает файлы по группам обработки, сохраняя порядок.
func (d *JobDescriptor) Partition() map[DataKind][]FileEntry {
	groups := make(map[DataKind][]FileEntry)
	for _, f := range d.Files {
		groups[f.Kind()] = append(groups[f.Kind()], f)
	}
	return groups
}
