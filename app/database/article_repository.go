package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

var _ ArticleRepository = (*articleRepository)(nil)

type articleRepository struct {
	db *DB
}

func NewArticleRepository(db *DB) ArticleRepository {
	return &articleRepository{db: db}
}

const articleColumns = `id, feed_id, user_id, guid, link, title, content, content_snippet, summary, ai_summary, author, categories, enclosure_url, enclosure_type, enclosure_length, published_at, created_at`

// GetExistingGUIDs returns the subset of guids already stored for the user.
func (r *articleRepository) GetExistingGUIDs(userID int64, guids []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{})
	if len(guids) == 0 {
		return existing, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(guids)), ",")
	args := make([]any, 0, len(guids)+1)
	args = append(args, userID)
	for _, guid := range guids {
		args = append(args, guid)
	}

	rows, err := r.db.Query(`SELECT guid FROM articles WHERE user_id = ? AND guid IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query existing guids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var guid string
		if err := rows.Scan(&guid); err != nil {
			return nil, fmt.Errorf("failed to scan guid: %w", err)
		}
		existing[guid] = struct{}{}
	}
	return existing, rows.Err()
}

func (r *articleRepository) GetArticlesByIDs(ids []int64) ([]Article, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := r.db.Query(`SELECT `+articleColumns+` FROM articles WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query articles: %w", err)
	}
	defer rows.Close()

	var articles []Article
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		articles = append(articles, *article)
	}
	return articles, rows.Err()
}

// InsertArticles persists the batch in one transaction, filling in IDs.
func (r *articleRepository) InsertArticles(articles []*Article) error {
	if len(articles) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, a := range articles {
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		err := tx.QueryRow(`
			INSERT INTO articles (feed_id, user_id, guid, link, title, content, content_snippet, summary, ai_summary,
				author, categories, enclosure_url, enclosure_type, enclosure_length, published_at, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id`,
			a.FeedID, a.UserID, a.GUID, a.Link, a.Title, a.Content, a.ContentSnippet, a.Summary, a.AISummary,
			a.Author, marshalStrings(a.Categories), a.EnclosureURL, a.EnclosureType, a.EnclosureLength,
			a.PublishedAt, a.CreatedAt,
		).Scan(&a.ID)
		if err != nil {
			return fmt.Errorf("failed to insert article %q: %w", a.GUID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit articles: %w", err)
	}
	return nil
}

func (r *articleRepository) UpdateArticleContent(article *Article) error {
	_, err := r.db.Exec(`
		UPDATE articles SET content = ?, content_snippet = ?
		WHERE id = ?`,
		article.Content, article.ContentSnippet, article.ID)
	if err != nil {
		return fmt.Errorf("failed to update article content: %w", err)
	}
	return nil
}

func (r *articleRepository) UpdateArticleSummary(article *Article) error {
	_, err := r.db.Exec(`UPDATE articles SET ai_summary = ? WHERE id = ?`,
		article.AISummary, article.ID)
	if err != nil {
		return fmt.Errorf("failed to update article summary: %w", err)
	}
	return nil
}

func (r *articleRepository) UpdateArticleEnclosureLength(article *Article) error {
	_, err := r.db.Exec(`UPDATE articles SET enclosure_length = ? WHERE id = ?`,
		article.EnclosureLength, article.ID)
	if err != nil {
		return fmt.Errorf("failed to update article enclosure length: %w", err)
	}
	return nil
}

func (r *articleRepository) GetArticleCount() (int, error) {
	var count int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM articles`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count articles: %w", err)
	}
	return count, nil
}

func (r *articleRepository) CountCreatedBetween(start, end time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM articles WHERE created_at >= ? AND created_at < ?`, start, end).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count articles in range: %w", err)
	}
	return count, nil
}

func (r *articleRepository) DeleteCreatedBefore(cutoff time.Time) (int64, error) {
	res, err := r.db.Exec(`DELETE FROM articles WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old articles: %w", err)
	}
	return res.RowsAffected()
}

func scanArticle(row rowScanner) (*Article, error) {
	var a Article
	var categories string
	var published sql.NullTime
	err := row.Scan(&a.ID, &a.FeedID, &a.UserID, &a.GUID, &a.Link, &a.Title, &a.Content, &a.ContentSnippet,
		&a.Summary, &a.AISummary, &a.Author, &categories, &a.EnclosureURL, &a.EnclosureType,
		&a.EnclosureLength, &published, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	a.Categories = unmarshalStrings(categories)
	if published.Valid {
		a.PublishedAt = &published.Time
	}
	return &a, nil
}
