// Package etl реализует обработку job descriptor'а.
//
// Pipeline проходит по файлам job в фиксированном порядке групп:
// user_gen, vcf, molecular, low_level. Доменные ошибки возвращаются
// как *domain.ValidationError, их текст уходит пользователю.
// Остальные ошибки считаются непредвиденными.
package etl

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shaiso/Ingest/internal/domain"
	"github.com/shaiso/Ingest/internal/telemetry"
)

// Порядок обработки групп файлов.
var stageOrder = []domain.DataKind{
	domain.KindUserGen,
	domain.KindVCF,
	domain.KindMolecular,
	domain.KindLowLevel,
}

// Store сохраняет метаданные загрузки.
type Store interface {
	InsertMetadataData(ctx context.Context, table string, rows []domain.MetadataRow) error
	InsertMetadataSamples(ctx context.Context, table string, samples []domain.MetadataSample) error
	InsertFeatureDefs(ctx context.Context, table string, defs []domain.FeatureDef) error
}

// Transactor: Store, который умеет выполнить все вставки job'а
// одной транзакцией. fn получает контекст, привязанный к транзакции.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Pipeline: обработчик job descriptor'а.
type Pipeline struct {
	store  Store
	logger *slog.Logger
}

// PipelineConfig: конфигурация Pipeline.
type PipelineConfig struct {
	Store  Store
	Logger *slog.Logger
}

// NewPipeline создаёт Pipeline.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{store: cfg.Store, logger: logger}
}

// loggerFor возвращает логгер job'а, если воркер положил его в контекст.
func (p *Pipeline) loggerFor(ctx context.Context) *slog.Logger {
	if ctx.Value(telemetry.CtxLogger) != nil {
		return telemetry.FromContext(ctx)
	}
	return p.logger
}

// stage: подготовленные вставки одной группы файлов.
type stage struct {
	kind    domain.DataKind
	files   int
	rows    []domain.MetadataRow
	samples []domain.MetadataSample
	defs    []domain.FeatureDef
}

// Process обрабатывает все файлы job.
//
// Все доменные проверки выполняются до первой вставки: отклонённый
// job ничего не оставляет в базе.
func (p *Pipeline) Process(ctx context.Context, desc *domain.JobDescriptor) error {
	if err := desc.Validate(); err != nil {
		return err
	}

	log := p.loggerFor(ctx)

	groups := desc.Partition()
	log.Info("processing upload",
		"user_gen", len(groups[domain.KindUserGen]),
		"vcf", len(groups[domain.KindVCF]),
		"molecular", len(groups[domain.KindMolecular]),
		"low_level", len(groups[domain.KindLowLevel]),
	)

	stages, err := p.plan(ctx, desc, groups)
	if err != nil {
		return err
	}

	write := func(ctx context.Context) error {
		for _, st := range stages {
			if err := p.write(ctx, desc, st); err != nil {
				return err
			}
		}
		return nil
	}

	if tx, ok := p.store.(Transactor); ok {
		return tx.InTx(ctx, write)
	}
	return write(ctx)
}

// plan проверяет файлы и готовит вставки в порядке stageOrder.
func (p *Pipeline) plan(ctx context.Context, desc *domain.JobDescriptor, groups map[domain.DataKind][]domain.FileEntry) ([]stage, error) {
	var stages []stage
	for _, kind := range stageOrder {
		files := groups[kind]
		if len(files) == 0 {
			continue
		}

		st := stage{kind: kind, files: len(files)}
		switch kind {
		case domain.KindUserGen:
			defs, err := p.featureDefs(ctx, desc, files)
			if err != nil {
				return nil, err
			}
			st.defs = defs
		case domain.KindMolecular:
			if err := checkSampleBarcodes(files); err != nil {
				return nil, err
			}
		}

		st.rows = metadataRows(desc, files)
		st.samples = metadataSamples(st.rows)
		stages = append(stages, st)
	}
	return stages, nil
}

// write выполняет вставки одной группы.
func (p *Pipeline) write(ctx context.Context, desc *domain.JobDescriptor, st stage) error {
	logger := p.loggerFor(ctx).With("stage", st.kind.String(), "files", st.files)
	logger.Info("stage started")

	tables := desc.MetadataTables
	if err := p.store.InsertMetadataData(ctx, tables.MetadataData, st.rows); err != nil {
		return fmt.Errorf("%s metadata: %w", st.kind, err)
	}
	if err := p.store.InsertMetadataSamples(ctx, tables.MetadataSamples, st.samples); err != nil {
		return fmt.Errorf("%s samples: %w", st.kind, err)
	}
	if len(st.defs) > 0 {
		if err := p.store.InsertFeatureDefs(ctx, tables.FeatureDefs, st.defs); err != nil {
			return fmt.Errorf("%s feature defs: %w", st.kind, err)
		}
	}

	logger.Info("stage completed", "samples", len(st.samples))
	return nil
}

// featureDefs строит определения признаков пользовательской таблицы
// cgc_user_<project>_<study>.
func (p *Pipeline) featureDefs(ctx context.Context, desc *domain.JobDescriptor, files []domain.FileEntry) ([]domain.FeatureDef, error) {
	table := UserTableName(desc)

	var defs []domain.FeatureDef
	seen := make(map[string]bool)

	for i, f := range files {
		if len(f.Columns) == 0 {
			return nil, domain.NewValidationError("COLUMNS",
				fmt.Sprintf("Upload stopped due to empty file: %s", f.BaseName()), nil)
		}

		inFile := make(map[string]bool, len(f.Columns))
		for _, col := range f.Columns {
			name := col.FeatureName()
			if inFile[name] {
				return nil, domain.NewValidationError("COLUMNS",
					"Upload stopped due to duplicated feature: "+name, nil)
			}
			inFile[name] = true

			// Файлы объединяются по sample_barcode: одноимённая
			// колонка из следующего файла описывает тот же признак
			if seen[name] || name == "sample_barcode" {
				continue
			}
			seen[name] = true

			defs = append(defs, domain.FeatureDef{
				Study:       string(desc.Study),
				FeatureName: name,
				BqMapID:     strings.Join([]string{desc.GoogleProject, desc.BigQueryDataset, table, name}, ":"),
				SharedMapID: string(col.SharedID),
				Type:        FeatureType(col.Type),
			})
		}

		p.loggerFor(ctx).Debug("user_gen file described", "index", i, "file", f.BaseName(), "columns", len(f.Columns))
	}

	return defs, nil
}

// checkSampleBarcodes отклоняет повторяющиеся sample barcode между файлами.
func checkSampleBarcodes(files []domain.FileEntry) error {
	seen := make(map[string]bool)
	for _, f := range files {
		if f.SampleBarcode == "" {
			continue
		}
		if seen[f.SampleBarcode] {
			return domain.NewValidationError("SAMPLEBARCODE",
				"Upload stopped due to duplicated sample barcode: "+f.SampleBarcode, nil)
		}
		seen[f.SampleBarcode] = true
	}
	return nil
}

// UserTableName возвращает имя BigQuery таблицы пользовательских данных.
func UserTableName(desc *domain.JobDescriptor) string {
	return fmt.Sprintf("cgc_user_%s_%s", desc.UserProject, desc.Study)
}

// FeatureType: строковые колонки (VARCHAR, STRING) дают 0, остальные 1.
func FeatureType(columnType string) int {
	t := strings.ToLower(strings.TrimSpace(columnType))
	if strings.HasPrefix(t, "varchar") || t == "string" || t == "text" {
		return domain.FeatureTypeString
	}
	return domain.FeatureTypeNumeric
}

func metadataRows(desc *domain.JobDescriptor, files []domain.FileEntry) []domain.MetadataRow {
	rows := make([]domain.MetadataRow, 0, len(files))
	for _, f := range files {
		caseBarcode := f.CaseBarcode
		if caseBarcode == "" && f.SampleBarcode != "" {
			caseBarcode = "cgc_" + f.SampleBarcode
		}

		rows = append(rows, domain.MetadataRow{
			Project:       string(desc.UserProject),
			Study:         string(desc.Study),
			SampleBarcode: f.SampleBarcode,
			CaseBarcode:   caseBarcode,
			FilePath:      f.FileName,
			FileName:      f.BaseName(),
			DataType:      f.DataType,
			Pipeline:      f.Pipeline,
			Platform:      f.Platform,
		})
	}
	return rows
}

// metadataSamples: по строке на пару sample barcode и тип данных.
// Строки без barcode в METADATA_SAMPLES не попадают.
func metadataSamples(rows []domain.MetadataRow) []domain.MetadataSample {
	type key struct{ barcode, dataType string }
	seen := make(map[key]bool)

	var samples []domain.MetadataSample
	for _, row := range rows {
		k := key{row.SampleBarcode, row.DataType}
		if row.SampleBarcode == "" || seen[k] {
			continue
		}
		seen[k] = true

		samples = append(samples, domain.MetadataSample{
			Project:       row.Project,
			Study:         row.Study,
			SampleBarcode: row.SampleBarcode,
			CaseBarcode:   row.CaseBarcode,
			DataType:      row.DataType,
		})
	}
	return samples
}
