package feed

import (
	"bytes"
	"cmp"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/feedhook/feedhook/app/database"
)

type Parser struct {
	gofeedParser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
	}
}

// Document is a parsed syndication document reduced to what the pipeline
// consumes.
type Document struct {
	Title       string
	Description string
	ImageURL    string
	Author      string
	Items       []Item
}

// Item is one feed entry before it becomes an Article.
type Item struct {
	GUID            string
	Link            string
	Title           string
	Content         string
	ContentSnippet  string
	Summary         string
	Author          string
	Categories      []string
	EnclosureURL    string
	EnclosureType   string
	EnclosureLength int64
	PublishedAt     *time.Time
}

func (p *Parser) Run(data []byte) (*Document, error) {
	parsed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	doc := &Document{
		Title:       parsed.Title,
		Description: strings.TrimSpace(parsed.Description),
	}
	if parsed.Image != nil {
		doc.ImageURL = parsed.Image.URL
	}
	if len(parsed.Authors) > 0 && parsed.Authors[0] != nil {
		doc.Author = parsed.Authors[0].Name
	}

	doc.Items = make([]Item, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item == nil {
			continue
		}
		doc.Items = append(doc.Items, normalizeItem(item))
	}

	return doc, nil
}

func normalizeItem(item *gofeed.Item) Item {
	content := cmp.Or(item.Content, item.Description)
	normalized := Item{
		GUID:           cmp.Or(item.GUID, item.Link),
		Link:           item.Link,
		Title:          item.Title,
		Content:        content,
		ContentSnippet: PlainText(content),
		Summary:        PlainText(item.Description),
	}

	if item.PublishedParsed != nil {
		normalized.PublishedAt = item.PublishedParsed
	}
	if len(item.Authors) > 0 && item.Authors[0] != nil {
		normalized.Author = item.Authors[0].Name
	}
	if item.Categories != nil {
		normalized.Categories = item.Categories
	}

	// RSS 2.0 allows a single enclosure per item.
	if len(item.Enclosures) > 0 && item.Enclosures[0] != nil {
		enclosure := item.Enclosures[0]
		normalized.EnclosureURL = enclosure.URL
		normalized.EnclosureType = enclosure.Type
		if enclosure.Length != "" {
			if length, err := strconv.ParseInt(enclosure.Length, 10, 64); err == nil {
				normalized.EnclosureLength = length
			}
		}
	}

	return normalized
}

// ItemToArticle maps a parsed item onto an Article for the given feed.
// The item author falls back to the document-level author.
func ItemToArticle(item Item, doc *Document, f *database.Feed) *database.Article {
	return &database.Article{
		FeedID:          f.ID,
		UserID:          f.UserID,
		GUID:            item.GUID,
		Link:            item.Link,
		Title:           item.Title,
		Content:         item.Content,
		ContentSnippet:  item.ContentSnippet,
		Summary:         item.Summary,
		Author:          cmp.Or(item.Author, doc.Author),
		Categories:      item.Categories,
		EnclosureURL:    item.EnclosureURL,
		EnclosureType:   item.EnclosureType,
		EnclosureLength: item.EnclosureLength,
		PublishedAt:     item.PublishedAt,
	}
}

// PlainText strips markup from an HTML fragment, collapsing whitespace.
func PlainText(html string) string {
	if html == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.TrimSpace(html)
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
