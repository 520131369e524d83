package batch

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Mdwiki-TD/svg-translate-web/internal/db"
)

// BulkInsert записывает элементы чанками. На каждый чанк заимствуется
// одно соединение, все выражения чанка уходят одним pgx.Batch в одной
// транзакции. Ошибка чанка прерывает запись; возвращается число
// элементов, записанных до неё.
func BulkInsert[T any](ctx context.Context, exec *db.Executor, items []T, chunkSize int, appendItem func(batch *pgx.Batch, item T)) (int, error) {
	if chunkSize <= 0 {
		chunkSize = 50
	}

	written := 0
	for start := 0; start < len(items); start += chunkSize {
		end := start + chunkSize
		if end > len(items) {
			end = len(items)
		}

		pgBatch := &pgx.Batch{}
		for _, item := range items[start:end] {
			appendItem(pgBatch, item)
		}

		if err := exec.ExecBatch(ctx, pgBatch); err != nil {
			return written, fmt.Errorf("bulk insert chunk at %d: %w", start, err)
		}
		written += end - start
	}
	return written, nil
}

// ChunkedQuery читает результат запроса страницами по pageSize строк.
// Соединение заимствуется на одну страницу, поэтому длинное чтение не
// держит соединение занятым между страницами. Запрос должен быть без
// LIMIT/OFFSET и с детерминированным ORDER BY.
//
// page получает строки очередной страницы и возвращает число
// обработанных строк; чтение останавливается на неполной странице.
func ChunkedQuery(ctx context.Context, exec *db.Executor, query string, pageSize int, page func(rows pgx.Rows) (int, error), args ...any) (int, error) {
	if pageSize <= 0 {
		pageSize = 50
	}

	total := 0
	for offset := 0; ; offset += pageSize {
		paged := fmt.Sprintf("%s LIMIT %d OFFSET %d", query, pageSize, offset)

		rowsRead := 0
		err := exec.Query(ctx, paged, func(rows pgx.Rows) error {
			n, err := page(rows)
			rowsRead = n
			return err
		}, args...)
		if err != nil {
			return total, fmt.Errorf("chunked query at offset %d: %w", offset, err)
		}

		total += rowsRead
		if rowsRead < pageSize {
			return total, nil
		}
	}
}
