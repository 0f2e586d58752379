package db

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/versedapp/versed/internal/catalog"
	"github.com/versedapp/versed/internal/logctx"
	"github.com/versedapp/versed/internal/store"
	"github.com/versedapp/versed/internal/telemetry"
)

// Book is one book of the attached translation.
type Book struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
}

// Verse is one verse of a chapter in the attached translation.
type Verse struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// Controller owns the attachment state of the shared database connection.
// No other component issues ATTACH or DETACH. All translation reads go
// through it and fail fast when nothing is attached.
type Controller struct {
	conn *sql.DB
	fs   *store.Store
	cat  *catalog.Catalog
	tel  *telemetry.Telemetry

	mu       sync.Mutex
	attached string // filename attached under Alias, "" when none
}

func NewController(conn *sql.DB, fs *store.Store, cat *catalog.Catalog, tel *telemetry.Telemetry) *Controller {
	return &Controller{
		conn: conn,
		fs:   fs,
		cat:  cat,
		tel:  tel,
	}
}

// Attached returns the filename currently attached under the alias, or ""
// when no translation database is attached.
func (c *Controller) Attached() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.attached
}

// Switch makes the given translation database file the one queryable under
// the alias, detaching whatever was attached before. An empty filename means
// detach only. Switching to the already attached file is a no-op. On any
// error nothing is left attached.
func (c *Controller) Switch(ctx context.Context, filename string) error {
	logger := logctx.LoggerFromContext(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if filename != "" && filename == c.attached {
		return nil
	}

	if c.attached != "" {
		detachErr := c.tel.InstrumentSwitch(ctx, "detach", func(ctx context.Context) error {
			_, err := c.conn.ExecContext(ctx, "DETACH DATABASE "+Alias)

			return err
		})
		if detachErr != nil {
			// A failed detach usually means nothing was attached from the
			// connection's point of view; proceeding is safer than wedging.
			logger.Warn("failed to detach translation database", "file", c.attached, "err", detachErr)
		}

		c.attached = ""
	}

	if filename == "" {
		return nil
	}

	if !c.fs.Exists(filename) {
		return &AttachError{Filename: filename, Reason: "file not present in local store"}
	}

	attachErr := c.tel.InstrumentSwitch(ctx, "attach", func(ctx context.Context) error {
		_, err := c.conn.ExecContext(ctx, "ATTACH DATABASE ? AS "+Alias, c.fs.PathFor(filename))

		return err
	})
	if attachErr != nil {
		return &AttachError{Filename: filename, Reason: "database rejected the attach", Err: attachErr}
	}

	c.attached = filename

	logger.Info("attached translation database", "file", filename, "alias", Alias)

	return nil
}

// tablePrefix resolves the table prefix of the attached translation. The
// prefix comes from the catalog, never from request input, so interpolating
// it into identifiers is safe.
func (c *Controller) tablePrefix() (string, error) {
	if c.attached == "" {
		return "", ErrNoTranslationAttached
	}

	desc, ok := c.cat.ByFileName(c.attached)
	if !ok {
		return "", fmt.Errorf("attached file %s has no catalog entry", c.attached)
	}

	return desc.TablePrefix(), nil
}

// Books returns the books of the attached translation in canonical order.
func (c *Controller) Books(ctx context.Context) ([]Book, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prefix, err := c.tablePrefix()
	if err != nil {
		return nil, err
	}

	var books []Book

	err = c.tel.InstrumentDBOperation(ctx, "get_books", func(ctx context.Context) error {
		query := fmt.Sprintf(`SELECT id, name, position FROM %s.%s_books ORDER BY position`, Alias, prefix)

		rows, err := c.conn.QueryContext(ctx, query)
		if err != nil {
			return err
		}

		defer rows.Close()

		for rows.Next() {
			var b Book
			if err := rows.Scan(&b.ID, &b.Name, &b.Position); err != nil {
				return err
			}

			books = append(books, b)
		}

		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get books: %w", err)
	}

	return books, nil
}

// Chapters returns the chapter numbers of a book in ascending order.
func (c *Controller) Chapters(ctx context.Context, bookID int64) ([]int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prefix, err := c.tablePrefix()
	if err != nil {
		return nil, err
	}

	var chapters []int

	err = c.tel.InstrumentDBOperation(ctx, "get_chapters", func(ctx context.Context) error {
		query := fmt.Sprintf(`SELECT DISTINCT chapter FROM %s.%s_verses WHERE book_id = ? ORDER BY chapter`, Alias, prefix)

		rows, err := c.conn.QueryContext(ctx, query, bookID)
		if err != nil {
			return err
		}

		defer rows.Close()

		for rows.Next() {
			var n int
			if err := rows.Scan(&n); err != nil {
				return err
			}

			chapters = append(chapters, n)
		}

		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get chapters: %w", err)
	}

	return chapters, nil
}

// Verses returns the verses of one chapter in verse order.
func (c *Controller) Verses(ctx context.Context, bookID int64, chapter int) ([]Verse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prefix, err := c.tablePrefix()
	if err != nil {
		return nil, err
	}

	var verses []Verse

	err = c.tel.InstrumentDBOperation(ctx, "get_verses", func(ctx context.Context) error {
		query := fmt.Sprintf(`SELECT verse, text FROM %s.%s_verses WHERE book_id = ? AND chapter = ? ORDER BY verse`, Alias, prefix)

		rows, err := c.conn.QueryContext(ctx, query, bookID, chapter)
		if err != nil {
			return err
		}

		defer rows.Close()

		for rows.Next() {
			var v Verse
			if err := rows.Scan(&v.Number, &v.Text); err != nil {
				return err
			}

			verses = append(verses, v)
		}

		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get verses: %w", err)
	}

	return verses, nil
}
