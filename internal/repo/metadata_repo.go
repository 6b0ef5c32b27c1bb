package repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Ingest/internal/domain"
)

// MetadataRepo пишет метаданные пользовательских загрузок.
//
// Имена таблиц приходят из job descriptor'а, поэтому всегда
// экранируются как идентификаторы. Каждая вставка выполняется
// одной транзакцией: либо все строки, либо ни одной. Внутри InTx
// вставки становятся savepoint'ами общей транзакции job'а.
type MetadataRepo struct {
	pool *pgxpool.Pool
}

// beginner: pool или открытая транзакция.
type beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type txKey struct{}

// InTx выполняет fn в одной транзакции. Вставки, вызванные
// с контекстом fn, попадают в неё же.
func (r *MetadataRepo) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return pgx.BeginFunc(ctx, r.db(ctx), func(tx pgx.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// db возвращает транзакцию из контекста или pool.
func (r *MetadataRepo) db(ctx context.Context) beginner {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return r.pool
}

// NewMetadataRepo создаёт новый MetadataRepo.
func NewMetadataRepo(pool *pgxpool.Pool) *MetadataRepo {
	return &MetadataRepo{pool: pool}
}

// InsertMetadataData добавляет строки в таблицу METADATA_DATA.
func (r *MetadataRepo) InsertMetadataData(ctx context.Context, table string, rows []domain.MetadataRow) error {
	if len(rows) == 0 {
		return nil
	}

	ident, err := TableIdentifier(table)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (project_id, study_id, sample_barcode, case_barcode,
		                file_path, file_name, data_type, pipeline, platform)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, ident)

	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(query,
			row.Project,
			row.Study,
			nullIfEmpty(row.SampleBarcode),
			nullIfEmpty(row.CaseBarcode),
			row.FilePath,
			row.FileName,
			row.DataType,
			nullIfEmpty(row.Pipeline),
			nullIfEmpty(row.Platform),
		)
	}

	if err := r.sendBatch(ctx, batch); err != nil {
		return fmt.Errorf("insert metadata into %s: %w", table, err)
	}
	return nil
}

// InsertMetadataSamples добавляет строки в таблицу METADATA_SAMPLES.
func (r *MetadataRepo) InsertMetadataSamples(ctx context.Context, table string, samples []domain.MetadataSample) error {
	if len(samples) == 0 {
		return nil
	}

	ident, err := TableIdentifier(table)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (project_id, study_id, sample_barcode, case_barcode, data_type)
		VALUES ($1, $2, $3, $4, $5)
	`, ident)

	batch := &pgx.Batch{}
	for _, s := range samples {
		batch.Queue(query,
			s.Project,
			s.Study,
			s.SampleBarcode,
			nullIfEmpty(s.CaseBarcode),
			s.DataType,
		)
	}

	if err := r.sendBatch(ctx, batch); err != nil {
		return fmt.Errorf("insert samples into %s: %w", table, err)
	}
	return nil
}

// InsertFeatureDefs добавляет определения признаков в таблицу FEATURE_DEFS.
func (r *MetadataRepo) InsertFeatureDefs(ctx context.Context, table string, defs []domain.FeatureDef) error {
	if len(defs) == 0 {
		return nil
	}

	ident, err := TableIdentifier(table)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (study_id, feature_name, bq_map_id, shared_map_id, is_numeric)
		VALUES ($1, $2, $3, $4, $5)
	`, ident)

	batch := &pgx.Batch{}
	for _, def := range defs {
		batch.Queue(query,
			def.Study,
			def.FeatureName,
			def.BqMapID,
			nullIfEmpty(def.SharedMapID),
			def.Type == domain.FeatureTypeNumeric,
		)
	}

	if err := r.sendBatch(ctx, batch); err != nil {
		return fmt.Errorf("insert feature defs into %s: %w", table, err)
	}
	return nil
}

// sendBatch выполняет batch в транзакции.
func (r *MetadataRepo) sendBatch(ctx context.Context, batch *pgx.Batch) error {
	return pgx.BeginFunc(ctx, r.db(ctx), func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
}

// TableIdentifier экранирует имя таблицы вида table или schema.table.
func TableIdentifier(table string) (string, error) {
	table = strings.TrimSpace(table)
	if table == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidTable)
	}

	parts := strings.Split(table, ".")
	if len(parts) > 2 {
		return "", fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}
	for _, p := range parts {
		if p == "" {
			return "", fmt.Errorf("%w: %q", ErrInvalidTable, table)
		}
	}
	return pgx.Identifier(parts).Sanitize(), nil
}

// nullIfEmpty превращает пустую строку в NULL.
func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
